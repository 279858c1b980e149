package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"unicode"

	"github.com/sirupsen/logrus"

	"github.com/yoockh/yoointerview/internal/interview"
	"github.com/yoockh/yoointerview/internal/providers/llm"
)

const (
	DefaultNumQuestions = 8
	minResumeChars      = 100
)

var questionBank = map[interview.Type][]string{
	interview.TypeGeneral: {
		"Tell me about yourself.",
		"Why are you interested in this position?",
		"What are your greatest strengths?",
		"What is your biggest weakness?",
		"Where do you see yourself in 5 years?",
		"Why should we hire you?",
		"Tell me about a challenging project you worked on.",
		"How do you handle stress and pressure?",
		"What motivates you at work?",
		"Do you have any questions for us?",
	},
	interview.TypeTechnical: {
		"Explain the difference between a list and a tuple in Python.",
		"What is the time complexity of binary search?",
		"How would you optimize a slow database query?",
		"Explain the concept of object-oriented programming.",
		"What is the difference between HTTP and HTTPS?",
		"How do you handle error handling in your code?",
		"Explain what APIs are and how they work.",
		"What is version control and why is it important?",
		"How would you approach debugging a complex issue?",
		"Explain the concept of cloud computing.",
	},
	interview.TypeBehavioral: {
		"Tell me about a time when you had to work with a difficult team member.",
		"Describe a situation where you had to meet a tight deadline.",
		"Give me an example of when you had to learn something new quickly.",
		"Tell me about a time when you made a mistake. How did you handle it?",
		"Describe a situation where you had to persuade others to see your point of view.",
		"Tell me about a time when you received constructive feedback.",
		"Give me an example of when you had to adapt to change.",
		"Describe a situation where you went above and beyond your job responsibilities.",
		"Tell me about a time when you had to resolve a conflict.",
		"Give me an example of when you showed leadership skills.",
	},
}

type resumeHint struct {
	keywords []string
	question string
}

var resumeHints = map[interview.Type][]resumeHint{
	interview.TypeTechnical: {
		{[]string{"python"}, "I see you have Python experience. Can you walk me through a challenging Python project you've worked on?"},
		{[]string{"javascript", "react"}, "Tell me about your experience with frontend development and JavaScript frameworks."},
		{[]string{"database", "sql"}, "Describe your experience with database design and optimization."},
		{[]string{"api"}, "Can you explain how you've designed and implemented APIs in your previous work?"},
	},
	interview.TypeBehavioral: {
		{[]string{"manager", "lead"}, "I see you have leadership experience. Tell me about a time when you had to manage a team through a difficult project."},
		{[]string{"startup"}, "You've worked at a startup. How did you handle the fast-paced, changing environment?"},
		{[]string{"remote"}, "Tell me about your experience working remotely and how you stay productive."},
	},
	interview.TypeGeneral: {
		{[]string{"internship"}, "I see you completed an internship. What was the most valuable thing you learned during that experience?"},
		{[]string{"volunteer"}, "Tell me about your volunteer work and how it has shaped your professional goals."},
	},
}

func bankFor(t interview.Type) []string {
	if qs, ok := questionBank[t]; ok {
		return qs
	}
	return questionBank[interview.TypeGeneral]
}

func hintsFor(t interview.Type) []resumeHint {
	if hs, ok := resumeHints[t]; ok {
		return hs
	}
	return resumeHints[interview.TypeGeneral]
}

// BankQuestions picks n questions from the static bank. With a resume longer
// than 100 characters up to n/2 keyword-matched questions lead the list.
func BankQuestions(t interview.Type, resume string, n int) []string {
	if n <= 0 {
		n = DefaultNumQuestions
	}
	var out []string
	if len(resume) > minResumeChars {
		lower := strings.ToLower(resume)
		for _, h := range hintsFor(t) {
			if len(out) >= n/2 {
				break
			}
			for _, k := range h.keywords {
				if strings.Contains(lower, k) {
					out = append(out, h.question)
					break
				}
			}
		}
	}
	for _, q := range bankFor(t) {
		if len(out) >= n {
			break
		}
		out = append(out, q)
	}
	return out
}

// QuestionGenerator asks the LLM for a tailored question list and falls back
// to the static bank when the model is unavailable or answers badly.
type QuestionGenerator struct {
	LLM llm.Provider
	Log logrus.FieldLogger
}

func (g *QuestionGenerator) Generate(ctx context.Context, t interview.Type, resume string, n int) []string {
	if n <= 0 {
		n = DefaultNumQuestions
	}
	if g == nil || g.LLM == nil {
		return BankQuestions(t, resume, n)
	}

	answer, err := llm.Collect(ctx, g.LLM, questionPrompt(t, resume, n))
	if err == nil {
		if qs := parseQuestions(answer); len(qs) >= n/2 && len(qs) > 0 {
			if len(qs) > n {
				qs = qs[:n]
			}
			return qs
		}
		err = fmt.Errorf("unusable question list")
	}
	if g.Log != nil {
		g.Log.WithError(err).WithField("interview_type", t).Warn("question generation fell back to bank")
	}
	return BankQuestions(t, resume, n)
}

func questionPrompt(t interview.Type, resume string, n int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are an experienced interviewer preparing a %s interview.\n", t)
	fmt.Fprintf(&b, "Write exactly %d interview questions, one per item, ordered from warm-up to in-depth.\n", n)
	b.WriteString("Reply with a JSON array of strings only.\n")
	if r := strings.TrimSpace(resume); r != "" {
		if len(r) > 4000 {
			r = r[:4000]
		}
		b.WriteString("\nCandidate resume:\n")
		b.WriteString(r)
		b.WriteString("\n")
	}
	return b.String()
}

// parseQuestions accepts a JSON array or a plain numbered/bulleted list.
func parseQuestions(answer string) []string {
	answer = llm.StripFences(answer)

	var arr []string
	if err := json.Unmarshal([]byte(answer), &arr); err == nil {
		return cleanQuestions(arr)
	}
	return cleanQuestions(strings.Split(answer, "\n"))
}

func cleanQuestions(lines []string) []string {
	out := make([]string, 0, len(lines))
	for _, l := range lines {
		l = strings.TrimLeftFunc(strings.TrimSpace(l), func(r rune) bool {
			return unicode.IsDigit(r) || r == '.' || r == ')' || r == '-' || r == '*' || unicode.IsSpace(r)
		})
		l = strings.Trim(l, `"`)
		if len(l) < 10 {
			continue
		}
		out = append(out, l)
	}
	return out
}
