package room

import (
	"context"
	"errors"
	"fmt"
	"unicode"

	"github.com/dinhkhaphancs/real-time-quiz-backend/internal/envelope"
	"github.com/dinhkhaphancs/real-time-quiz-backend/internal/model"
	"github.com/dinhkhaphancs/real-time-quiz-backend/internal/store"
)

const (
	minNicknameLen = 2
	maxNicknameLen = 64
)

func validNickname(nick string) bool {
	n := 0
	for _, r := range nick {
		n++
		if unicode.IsControl(r) {
			return false
		}
	}
	return n >= minNicknameLen && n <= maxNicknameLen
}

func (r *Room) reply(ev EvJoinRoom, res JoinResult) {
	if ev.Reply == nil {
		return
	}
	select {
	case ev.Reply <- res:
	default:
	}
}

func (r *Room) handleJoinRoom(ctx context.Context, ev EvJoinRoom) {
	if r.status == model.SessionFinished {
		r.reply(ev, JoinResult{Err: ErrRoomClosed})
		return
	}

	switch ev.Role {
	case "teacher":
		r.handleTeacherJoin(ctx, ev)
	case "student":
		r.handleStudentJoin(ctx, ev)
	default:
		r.reply(ev, JoinResult{Err: ErrBadRequest})
	}
}

func (r *Room) handleTeacherJoin(ctx context.Context, ev EvJoinRoom) {
	teacherID, err := r.authv.Verify(ev.CSRF, r.roomCode)
	if err != nil || teacherID != r.teacherID {
		r.reply(ev, JoinResult{Err: ErrUnauthorized})
		return
	}

	if r.teacherConnID != "" && r.teacherConnID != ev.ConnID {
		old := r.teacherConnID
		r.log.Info("teacher reconnected, superseding previous connection", "oldConn", old)
		if err := r.hub.Close(ctx, r.roomCode, envelope.Destination{ConnID: old}, "SupersededByNewer"); err != nil {
			r.log.Warn("failed to close superseded teacher connection", "error", err)
		}
	}
	r.teacherConnID = ev.ConnID
	r.reply(ev, JoinResult{IsTeacher: true})
	r.markWaitingDirty(ctx)
}

func (r *Room) handleStudentJoin(ctx context.Context, ev EvJoinRoom) {
	if !validNickname(ev.Nickname) {
		r.reply(ev, JoinResult{Err: ErrBadRequest})
		return
	}

	if ps, ok := r.participants[ev.Nickname]; ok {
		if ps.connID != "" {
			r.reply(ev, JoinResult{Err: ErrNicknameInUse})
			return
		}
		r.bindParticipant(ps, ev.ConnID)
		r.reply(ev, JoinResult{ParticipantID: ps.id})
		r.markWaitingDirty(ctx)
		return
	}

	id, err := r.createParticipantWithRetry(ctx, ev.Nickname)
	if err != nil {
		if errors.Is(err, store.ErrNicknameTaken) {
			r.reply(ev, JoinResult{Err: ErrNicknameTaken})
			return
		}
		r.reply(ev, JoinResult{Err: fmt.Errorf("room: join unavailable: %w", err)})
		return
	}

	ps := &participantState{
		id:             id,
		nickname:       ev.Nickname,
		questionStates: make(map[string]*model.QuestionState),
	}
	r.participants[ev.Nickname] = ps
	r.byID[id] = ps
	r.bindParticipant(ps, ev.ConnID)
	r.reply(ev, JoinResult{ParticipantID: id})
	r.markWaitingDirty(ctx)
}

func (r *Room) bindParticipant(ps *participantState, connID string) {
	if ps.leftTimer != nil {
		ps.leftTimer.Stop()
		ps.leftTimer = nil
	}
	ps.connID = connID
	ps.joinState = model.JoinPlaying
	ps.leftAt = nil
	r.connToParticipant[connID] = ps.id
}

func (r *Room) createParticipantWithRetry(ctx context.Context, nickname string) (int64, error) {
	var lastErr error
	for attempt := 0; ; attempt++ {
		callCtx, cancel := context.WithTimeout(ctx, r.cfg.GatewayCallTimeout)
		id, err := r.gw.CreateParticipant(callCtx, r.sessionID, nickname)
		cancel()
		if err == nil {
			return id, nil
		}
		if errors.Is(err, store.ErrNicknameTaken) {
			return 0, err
		}
		var perm *store.PermanentStoreError
		if errors.As(err, &perm) {
			r.terminateOnPermanentFailure(ctx, err)
			return 0, err
		}
		lastErr = err
		if attempt >= len(r.cfg.RetryBackoffs) {
			return 0, lastErr
		}
		r.sleepBackoff(ctx, attempt)
	}
}
