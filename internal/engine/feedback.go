package engine

import (
	"fmt"
	"time"

	"github.com/yoockh/yoointerview/internal/models"
	"github.com/yoockh/yoointerview/internal/protocol"
)

const (
	defaultScore    = 5.0
	feedbackListMax = 5
)

// BuildFeedback summarises the evaluated candidate turns at time now.
func BuildFeedback(st *State, now time.Time) protocol.Feedback {
	elapsed := now.Sub(st.StartedAt)
	if elapsed < 0 {
		elapsed = 0
	}

	responses := st.Responses()
	if responses == 0 {
		return protocol.Feedback{
			OverallScore:    0,
			Summary:         "No responses provided",
			Strengths:       []string{},
			Improvements:    []string{},
			DurationSeconds: elapsed.Seconds(),
		}
	}

	var (
		sum          float64
		evaluated    int
		strengths    []string
		improvements []string
	)
	for _, t := range st.History {
		if t.Role != models.RoleCandidate || t.Evaluation == nil {
			continue
		}
		evaluated++
		sum += t.Evaluation.Score
		strengths = append(strengths, t.Evaluation.Strengths...)
		improvements = append(improvements, t.Evaluation.Improvements...)
	}

	score := defaultScore
	if evaluated > 0 {
		score = sum / float64(evaluated)
	}

	fb := protocol.Feedback{
		OverallScore:         round1(score),
		Summary:              fmt.Sprintf("Completed interview with %d responses", responses),
		Strengths:            dedupe(strengths, feedbackListMax),
		Improvements:         dedupe(improvements, feedbackListMax),
		TotalResponses:       responses,
		DurationSeconds:      elapsed.Seconds(),
		ConversationDuration: elapsed.Minutes(),
	}
	fb.ClampScore()
	return fb
}

func dedupe(xs []string, max int) []string {
	out := make([]string, 0, len(xs))
	seen := make(map[string]bool, len(xs))
	for _, x := range xs {
		if x == "" || seen[x] {
			continue
		}
		seen[x] = true
		out = append(out, x)
		if len(out) == max {
			break
		}
	}
	return out
}
