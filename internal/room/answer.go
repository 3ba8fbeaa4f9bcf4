package room

import (
	"context"
	"time"

	"github.com/dinhkhaphancs/real-time-quiz-backend/internal/envelope"
	"github.com/dinhkhaphancs/real-time-quiz-backend/internal/grader"
	"github.com/dinhkhaphancs/real-time-quiz-backend/internal/model"
)

func (r *Room) handleAnswerSubmit(ctx context.Context, ev EvAnswerSubmit) {
	if r.status != model.SessionActive {
		r.sendToParticipant(ctx, ev.ParticipantID, envelope.EventBadRequest, errPayload(ErrRoomClosed), ev.RequestID)
		return
	}
	ps, ok := r.byID[ev.ParticipantID]
	if !ok || ps.connID != ev.ConnID {
		r.sendToParticipant(ctx, ev.ParticipantID, envelope.EventBadRequest, errPayload(ErrBadRequest), ev.RequestID)
		return
	}
	res, pending := r.reservations[ev.ParticipantID]
	if !pending || res.questionID != ev.QuestionID {
		r.sendToParticipant(ctx, ev.ParticipantID, envelope.EventBadRequest, errPayload(ErrBadRequest), ev.RequestID)
		return
	}
	q, found := r.quiz.QuestionByExternalID(ev.QuestionID)
	if !found {
		r.sendToParticipant(ctx, ev.ParticipantID, envelope.EventBadRequest, errPayload(ErrBadRequest), ev.RequestID)
		return
	}

	// Malformed is a grading outcome (payload shape doesn't match the
	// question type), not an envelope-level bad_request: it still consumes
	// an attempt and gets recorded like Correct/Incorrect.
	verdict := grader.Grade(q, ev.Answer)
	now := time.Now()

	prev, hadPrev := ps.questionStates[q.ExternalID]
	attemptNo := 1
	firstAt := now
	if hadPrev {
		attemptNo = prev.Attempts + 1
		firstAt = prev.FirstAttemptAt
	}

	rec := model.AnswerRecord{
		SessionID:     r.sessionID,
		ParticipantID: ev.ParticipantID,
		QuestionID:    q.ExternalID,
		AttemptNo:     attemptNo,
		Payload:       ev.Answer,
		Verdict:       verdict,
		AnsweredAt:    now,
	}
	if !r.storeOp(ctx, envelope.Destination{ParticipantID: ev.ParticipantID}, ev.RequestID, func(callCtx context.Context) error {
		return r.gw.RecordAnswer(callCtx, rec)
	}) {
		return
	}

	newQS := model.QuestionState{
		ParticipantID:  ev.ParticipantID,
		QuestionID:     q.ExternalID,
		Attempts:       attemptNo,
		IsCorrect:      hadPrev && prev.IsCorrect || verdict == model.VerdictCorrect,
		FirstAttemptAt: firstAt,
		LastAttemptAt:  now,
	}
	if !r.storeOp(ctx, envelope.Destination{ParticipantID: ev.ParticipantID}, ev.RequestID, func(callCtx context.Context) error {
		return r.gw.UpsertQuestionState(callCtx, r.sessionID, newQS)
	}) {
		return
	}
	ps.questionStates[q.ExternalID] = &newQS

	delete(r.reservations, ev.ParticipantID)
	if res.timer != nil {
		res.timer.Stop()
	}

	r.persistAggregates(ctx, ps)

	nextAction := "retry"
	if verdict == model.VerdictCorrect {
		nextAction = "continue"
	}
	r.sendToParticipant(ctx, ev.ParticipantID, envelope.EventAnswerResult, map[string]interface{}{
		"questionId": q.ExternalID,
		"correct":    verdict == model.VerdictCorrect,
		"verdict":    string(verdict),
		"attempt":    attemptNo,
		"nextAction": nextAction,
	}, ev.RequestID)

	r.markStatsDirty()
	r.recordQuestionStat(*q, ev.Answer)
	r.sendQuestionStats(ctx, q.ExternalID)
}

// recordQuestionStat tallies which option(s) this submission picked, for
// the class-wide question_stats frame. Open questions have no options to
// tally, so nothing is counted for them and their frame reports zero
// responses; for multi questions every picked option counts once, so
// totalResponses counts picks rather than submissions.
func (r *Room) recordQuestionStat(q model.Question, answer model.AnswerPayload) {
	counts, ok := r.optionCounts[q.ExternalID]
	if !ok {
		counts = make(map[string]int)
		r.optionCounts[q.ExternalID] = counts
	}
	switch q.Type {
	case model.QuestionTypeSingle:
		if answer.OptionID != nil {
			counts[*answer.OptionID]++
		}
	case model.QuestionTypeMulti:
		for _, id := range answer.OptionIDs {
			counts[id]++
		}
	}
}

type optionStat struct {
	OptionID string `json:"optionId"`
	Count    int    `json:"count"`
}

// sendQuestionStats publishes the per-option submission distribution for
// one question straight to the teacher, uncoalesced: it is not in the
// stats_update/waiting_room_update coalescing set.
func (r *Room) sendQuestionStats(ctx context.Context, questionID string) {
	counts := r.optionCounts[questionID]
	total := 0
	options := make([]optionStat, 0, len(counts))
	for optionID, n := range counts {
		options = append(options, optionStat{OptionID: optionID, Count: n})
		total += n
	}
	r.sendToTeacher(ctx, envelope.EventQuestionStats, map[string]interface{}{
		"questionId":     questionID,
		"totalResponses": total,
		"options":        options,
	}, "")
}

func (r *Room) persistAggregates(ctx context.Context, ps *participantState) {
	now := time.Now()
	correct := ps.correctCount()
	wrong := ps.totalAttempts() - correct
	pid := ps.id

	r.storeOp(ctx, envelope.Destination{Teacher: true}, "", func(callCtx context.Context) error {
		return r.gw.UpsertAggregate(callCtx, r.sessionID, &pid, correct, wrong, now)
	})

	stats := r.computeStats()
	r.storeOp(ctx, envelope.Destination{Teacher: true}, "", func(callCtx context.Context) error {
		return r.gw.UpsertAggregate(callCtx, r.sessionID, nil, stats.Class.Correct, stats.Class.Wrong, now)
	})
}
