// Package grader implements the Answer Grader: a pure, deterministic
// mapping from (question, submitted answer) to a correctness verdict.
package grader

import (
	"strings"
	"unicode"

	"github.com/dinhkhaphancs/real-time-quiz-backend/internal/model"
)

// punctuation is the fixed set stripped during open-answer normalisation.
const punctuation = ".,!?;:\"'"

// Grade maps a Question and a submitted AnswerPayload to a verdict. It never
// performs I/O and never mutates its inputs.
func Grade(q *model.Question, answer model.AnswerPayload) model.AnswerVerdict {
	switch q.Type {
	case model.QuestionTypeOpen:
		return gradeOpen(q, answer)
	case model.QuestionTypeSingle:
		return gradeSingle(q, answer)
	case model.QuestionTypeMulti:
		return gradeMulti(q, answer)
	default:
		return model.VerdictMalformed
	}
}

func gradeOpen(q *model.Question, answer model.AnswerPayload) model.AnswerVerdict {
	if answer.Text == nil || answer.OptionID != nil || answer.OptionIDs != nil {
		return model.VerdictMalformed
	}
	if normalizeOpen(*answer.Text) == normalizeOpen(q.Answer.Text) {
		return model.VerdictCorrect
	}
	return model.VerdictIncorrect
}

func gradeSingle(q *model.Question, answer model.AnswerPayload) model.AnswerVerdict {
	if answer.OptionID == nil || answer.Text != nil || answer.OptionIDs != nil {
		return model.VerdictMalformed
	}
	if *answer.OptionID == q.Answer.OptionID {
		return model.VerdictCorrect
	}
	return model.VerdictIncorrect
}

func gradeMulti(q *model.Question, answer model.AnswerPayload) model.AnswerVerdict {
	if answer.OptionIDs == nil || answer.Text != nil || answer.OptionID != nil {
		return model.VerdictMalformed
	}
	if len(answer.OptionIDs) == 0 {
		return model.VerdictIncorrect
	}
	submitted := toSet(answer.OptionIDs)
	key := toSet(q.Answer.OptionIDs)
	if setsEqual(submitted, key) {
		return model.VerdictCorrect
	}
	return model.VerdictIncorrect
}

// normalizeOpen trims, collapses internal whitespace to single spaces,
// case-folds, and strips the fixed punctuation set.
func normalizeOpen(s string) string {
	var b strings.Builder
	lastWasSpace := true // swallow leading whitespace
	for _, r := range strings.TrimSpace(s) {
		if strings.ContainsRune(punctuation, r) {
			continue
		}
		if unicode.IsSpace(r) {
			if !lastWasSpace {
				b.WriteRune(' ')
			}
			lastWasSpace = true
			continue
		}
		lastWasSpace = false
		b.WriteRune(r)
	}
	normalized := strings.TrimRight(b.String(), " ")
	return strings.ToLower(normalized)
}

func toSet(ids []string) map[string]struct{} {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}

func setsEqual(a, b map[string]struct{}) bool {
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if _, ok := b[k]; !ok {
			return false
		}
	}
	return true
}
