package exam

import (
	"fmt"
	"math"

	"github.com/scriptbloxx/brainsift-cli/internal/model"
)

// LocalResult is a degraded-mode score computed on the client when
// submission fails. It is kept as a distinct type so it can never be
// mistaken for (or overwrite) the server-authoritative ExamResult.
type LocalResult struct {
	Correct    int
	Total      int
	Percentage int
}

// Fallback scores the stored answers against each question's local
// CorrectAnswer field. Best effort: questions without that field count as
// incorrect.
func Fallback(exam *model.Exam, answers map[string]int) *LocalResult {
	correct := 0
	for _, q := range exam.Questions {
		a, answered := answers[q.ID]
		if answered && q.CorrectAnswer != nil && a == *q.CorrectAnswer {
			correct++
		}
	}
	total := len(exam.Questions)
	pct := 0
	if total > 0 {
		pct = int(math.Round(100 * float64(correct) / float64(total)))
	}
	return &LocalResult{Correct: correct, Total: total, Percentage: pct}
}

// FormatRemaining renders whole seconds as zero-padded mm:ss.
func FormatRemaining(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%02d:%02d", seconds/60, seconds%60)
}
