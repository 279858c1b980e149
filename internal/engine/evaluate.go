package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"unicode/utf8"

	"github.com/sirupsen/logrus"

	"github.com/yoockh/yoointerview/internal/interview"
	"github.com/yoockh/yoointerview/internal/providers/llm"
)

// Evaluation scores one answer against the question that prompted it.
type Evaluation struct {
	Score        float64  `json:"score"`
	Feedback     string   `json:"feedback"`
	Strengths    []string `json:"strengths"`
	Improvements []string `json:"improvements"`
}

// Evaluator never fails; implementations degrade to a heuristic instead.
type Evaluator interface {
	Evaluate(ctx context.Context, question, answer string, t interview.Type) Evaluation
}

var (
	techKeywords     = []string{"implement", "algorithm", "optimize", "code", "system", "database", "api"}
	starKeywords     = []string{"situation", "task", "action", "result", "challenge", "solution"}
	exampleMarkers   = []string{"example", "instance", "experience", "time when"}
	learningMarkers  = []string{"learned", "improved", "result", "outcome"}
	practiceMarkers  = []string{"optimize", "efficient", "scalable"}
	structureMarkers = []string{"situation", "result", "outcome"}
	fillerWords      = map[string]bool{"um": true, "uh": true, "umm": true, "uhh": true}
)

// Heuristic scores by answer length with small keyword bonuses.
type Heuristic struct{}

func (Heuristic) Evaluate(_ context.Context, _ string, answer string, t interview.Type) Evaluation {
	answer = strings.TrimSpace(answer)
	lower := strings.ToLower(answer)

	var ev Evaluation
	switch n := utf8.RuneCountInString(answer); {
	case n < 20:
		ev.Score = 2.0
		ev.Feedback = "Your answer is quite brief. Try to provide more detail and specific examples to better demonstrate your experience and thought process."
	case n < 100:
		ev.Score = 5.0
		ev.Feedback = "Good start! Consider adding more specific examples or details to make your answer more compelling and comprehensive."
	case n < 300:
		ev.Score = 7.0
		ev.Feedback = "Well-structured answer with good detail. You've addressed the question effectively with relevant information."
	default:
		ev.Score = 8.5
		ev.Feedback = "Excellent comprehensive answer! You've provided detailed information with good structure and relevant examples."
	}

	switch t {
	case interview.TypeTechnical:
		if containsAny(lower, techKeywords) {
			ev.Score += 0.5
			ev.Feedback += " Good use of technical terminology."
		}
	case interview.TypeBehavioral:
		if containsAny(lower, starKeywords) {
			ev.Score += 0.5
			ev.Feedback += " Good structure using specific examples."
		}
	}
	ev.Score = round1(math.Min(ev.Score, 10))

	if utf8.RuneCountInString(answer) > 200 {
		ev.Strengths = append(ev.Strengths, "Comprehensive response with good detail")
	}
	if containsAny(lower, exampleMarkers) {
		ev.Strengths = append(ev.Strengths, "Used specific examples to illustrate points")
	}
	if t == interview.TypeBehavioral && containsAny(lower, learningMarkers) {
		ev.Strengths = append(ev.Strengths, "Demonstrated learning and results-oriented thinking")
	}
	if t == interview.TypeTechnical && containsAny(lower, practiceMarkers) {
		ev.Strengths = append(ev.Strengths, "Showed understanding of technical best practices")
	}

	if utf8.RuneCountInString(answer) < 100 {
		ev.Improvements = append(ev.Improvements, "Provide more detailed explanations and examples")
	}
	if t == interview.TypeBehavioral && !containsAny(lower, structureMarkers) {
		ev.Improvements = append(ev.Improvements, "Use the STAR method (Situation, Task, Action, Result) to structure your response")
	}
	if t == interview.TypeTechnical && ev.Score < 7 {
		ev.Improvements = append(ev.Improvements, "Include more technical details and explain your reasoning")
	}
	if hasFiller(lower) {
		ev.Improvements = append(ev.Improvements, "Practice speaking more confidently with fewer filler words")
	}

	ev.Strengths = limit(ev.Strengths, 3)
	ev.Improvements = limit(ev.Improvements, 3)
	return ev
}

// LLMEvaluator grades with the model and uses Fallback when the call fails or
// the reply is not the expected JSON object.
type LLMEvaluator struct {
	LLM      llm.Provider
	Fallback Evaluator
	Log      logrus.FieldLogger
}

func (e *LLMEvaluator) Evaluate(ctx context.Context, question, answer string, t interview.Type) Evaluation {
	fallback := e.Fallback
	if fallback == nil {
		fallback = Heuristic{}
	}
	if e.LLM == nil {
		return fallback.Evaluate(ctx, question, answer, t)
	}

	out, err := llm.Collect(ctx, e.LLM, evaluationPrompt(question, answer, t))
	if err == nil {
		var ev Evaluation
		if ev, err = parseEvaluation(out); err == nil {
			return ev
		}
	}
	if e.Log != nil {
		e.Log.WithError(err).Warn("llm evaluation fell back to heuristic")
	}
	return fallback.Evaluate(ctx, question, answer, t)
}

func evaluationPrompt(question, answer string, t interview.Type) string {
	return fmt.Sprintf(`You are grading a candidate in a %s job interview.
Question: %s
Answer: %s

Reply with a JSON object only:
{"score": <0-10 number>, "feedback": "<one or two sentences>", "strengths": ["..."], "improvements": ["..."]}
Give at most 3 strengths and 3 improvements.`, t, question, answer)
}

func parseEvaluation(s string) (Evaluation, error) {
	s = llm.StripFences(s)
	if i, j := strings.IndexByte(s, '{'), strings.LastIndexByte(s, '}'); i >= 0 && j > i {
		s = s[i : j+1]
	}
	var raw struct {
		Score        *float64 `json:"score"`
		Feedback     string   `json:"feedback"`
		Strengths    []string `json:"strengths"`
		Improvements []string `json:"improvements"`
	}
	if err := json.Unmarshal([]byte(s), &raw); err != nil {
		return Evaluation{}, fmt.Errorf("parse evaluation: %w", err)
	}
	if raw.Score == nil {
		return Evaluation{}, fmt.Errorf("parse evaluation: missing score")
	}
	return Evaluation{
		Score:        round1(math.Max(0, math.Min(*raw.Score, 10))),
		Feedback:     strings.TrimSpace(raw.Feedback),
		Strengths:    limit(raw.Strengths, 3),
		Improvements: limit(raw.Improvements, 3),
	}, nil
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func hasFiller(lower string) bool {
	for _, w := range strings.FieldsFunc(lower, func(r rune) bool {
		return !(r >= 'a' && r <= 'z')
	}) {
		if fillerWords[w] {
			return true
		}
	}
	return false
}

func limit(xs []string, n int) []string {
	if len(xs) > n {
		return xs[:n]
	}
	return xs
}

func round1(f float64) float64 { return math.Round(f*10) / 10 }
