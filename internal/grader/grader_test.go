package grader

import (
	"testing"

	"github.com/dinhkhaphancs/real-time-quiz-backend/internal/model"
	"github.com/stretchr/testify/assert"
)

func strPtr(s string) *string { return &s }

func TestGradeOpen(t *testing.T) {
	q := &model.Question{Type: model.QuestionTypeOpen, Answer: model.AnswerKey{Text: "Paris"}}

	assert.Equal(t, model.VerdictCorrect, Grade(q, model.AnswerPayload{Text: strPtr("  paris  ")}))
	assert.Equal(t, model.VerdictCorrect, Grade(q, model.AnswerPayload{Text: strPtr("PARIS")}))
	assert.Equal(t, model.VerdictIncorrect, Grade(q, model.AnswerPayload{Text: strPtr("Lyon")}))
	assert.Equal(t, model.VerdictMalformed, Grade(q, model.AnswerPayload{OptionID: strPtr("o1")}))
}

func TestGradeOpenCollapsesWhitespaceAndPunctuation(t *testing.T) {
	q := &model.Question{Type: model.QuestionTypeOpen, Answer: model.AnswerKey{Text: "it's a test!"}}
	got := Grade(q, model.AnswerPayload{Text: strPtr("  It's   a test  !  ")})
	assert.Equal(t, model.VerdictCorrect, got)
}

func TestGradeSingle(t *testing.T) {
	q := &model.Question{Type: model.QuestionTypeSingle, Answer: model.AnswerKey{OptionID: "o2"}}

	assert.Equal(t, model.VerdictCorrect, Grade(q, model.AnswerPayload{OptionID: strPtr("o2")}))
	assert.Equal(t, model.VerdictIncorrect, Grade(q, model.AnswerPayload{OptionID: strPtr("o99")}))
	assert.Equal(t, model.VerdictMalformed, Grade(q, model.AnswerPayload{Text: strPtr("o2")}))
}

func TestGradeMulti(t *testing.T) {
	q := &model.Question{Type: model.QuestionTypeMulti, Answer: model.AnswerKey{OptionIDs: []string{"o2", "o4"}}}

	assert.Equal(t, model.VerdictCorrect, Grade(q, model.AnswerPayload{OptionIDs: []string{"o4", "o2"}}))
	assert.Equal(t, model.VerdictIncorrect, Grade(q, model.AnswerPayload{OptionIDs: []string{"o2"}}))
	assert.Equal(t, model.VerdictCorrect, Grade(q, model.AnswerPayload{OptionIDs: []string{"o2", "o4", "o2"}}))
	assert.Equal(t, model.VerdictIncorrect, Grade(q, model.AnswerPayload{OptionIDs: []string{}}))
}

func TestGradeRoundTripsAnswerKey(t *testing.T) {
	questions := []*model.Question{
		{Type: model.QuestionTypeOpen, Answer: model.AnswerKey{Text: "blue whale"}},
		{Type: model.QuestionTypeSingle, Answer: model.AnswerKey{OptionID: "o1"}},
		{Type: model.QuestionTypeMulti, Answer: model.AnswerKey{OptionIDs: []string{"o1", "o3"}}},
	}

	for _, q := range questions {
		var payload model.AnswerPayload
		switch q.Type {
		case model.QuestionTypeOpen:
			payload = model.AnswerPayload{Text: strPtr(q.Answer.Text)}
		case model.QuestionTypeSingle:
			payload = model.AnswerPayload{OptionID: strPtr(q.Answer.OptionID)}
		case model.QuestionTypeMulti:
			reversed := make([]string, len(q.Answer.OptionIDs))
			for i, id := range q.Answer.OptionIDs {
				reversed[len(reversed)-1-i] = id
			}
			payload = model.AnswerPayload{OptionIDs: reversed}
		}
		assert.Equal(t, model.VerdictCorrect, Grade(q, payload))
	}
}
