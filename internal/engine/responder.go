package engine

import (
	"math/rand"
	"strings"
	"unicode/utf8"

	"github.com/yoockh/yoointerview/internal/interview"
)

const (
	WelcomeMessage   = "Hello! I'm your AI interviewer. I'm excited to chat with you today. Let's start with an introduction - could you tell me a bit about yourself?"
	ReadyMessage     = "Connection established. Interview starting..."
	CompletedMessage = "Thank you for your time! The interview has been completed."

	introAck           = "Thank you for that introduction! "
	introAckNoQuestion = "Thank you for sharing. Let's dive into some questions."
	outOfQuestions     = "Wonderful! Those were all my prepared questions. Is there anything else you'd like to share about your experience or qualifications? Or do you have any questions for me?"
	wrapUp             = "Thank you for your thoughtful responses! That concludes our interview. Do you have any questions for me about the role or company?"
	noMoreQuestions    = "We've covered all the main questions. Do you have any questions for me?"

	followUpMaxChars = 200
	shortAnswerChars = 100
)

var followUps = []string{
	"That's interesting! Could you elaborate on that a bit more?",
	"Can you give me a specific example of that?",
	"What was the outcome of that situation?",
	"How did you handle the challenges in that scenario?",
	"What did you learn from that experience?",
}

var transitions = []string{
	"Great answer! Let's move on to the next question. ",
	"Thank you for sharing that. Now, ",
	"Excellent! I'd also like to know: ",
	"That's very insightful. Here's another question: ",
}

var (
	vagueMarkers    = []string{"kind of", "sort of", "maybe", "probably", "i guess", "not sure"}
	starStepMarkers = []string{"situation", "task", "action", "result"}
)

// Responder chooses the interviewer's next line. Intn picks among phrasings;
// tests pin it.
type Responder struct {
	Intn func(n int) int
}

func (r *Responder) pick(xs []string) string {
	intn := rand.Intn
	if r != nil && r.Intn != nil {
		intn = r.Intn
	}
	return xs[intn(len(xs))]
}

// Reply returns the interviewer's answer to the latest candidate turn and
// advances the question cursor when a prepared question is asked.
func (r *Responder) Reply(st *State, answer string) string {
	n := st.Responses()
	switch {
	case n == 1:
		if q, ok := st.nextQuestion(); ok {
			return introAck + q
		}
		return introAckNoQuestion
	case n <= len(st.Questions):
		if needsFollowUp(answer, interview.Type(st.InterviewType)) && utf8.RuneCountInString(answer) < followUpMaxChars {
			return r.pick(followUps)
		}
		if q, ok := st.nextQuestion(); ok {
			return r.pick(transitions) + q
		}
		return outOfQuestions
	default:
		return wrapUp
	}
}

// NextQuestion serves request_next_question.
func (r *Responder) NextQuestion(st *State) string {
	if q, ok := st.nextQuestion(); ok {
		return q
	}
	return noMoreQuestions
}

func (s *State) nextQuestion() (string, bool) {
	if s.Current >= len(s.Questions) {
		return "", false
	}
	q := s.Questions[s.Current]
	s.Current++
	return q, true
}

func needsFollowUp(answer string, t interview.Type) bool {
	if utf8.RuneCountInString(answer) < shortAnswerChars {
		return true
	}
	lower := strings.ToLower(answer)
	if containsAny(lower, vagueMarkers) {
		return true
	}
	if t == interview.TypeBehavioral {
		hits := 0
		for _, m := range starStepMarkers {
			if strings.Contains(lower, m) {
				hits++
			}
		}
		if hits < 2 {
			return true
		}
	}
	return false
}
