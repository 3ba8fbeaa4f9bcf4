package room

import (
	"context"
	"time"

	"github.com/dinhkhaphancs/real-time-quiz-backend/internal/envelope"
)

// participantStat is one row of a stats_update broadcast (spec.md §6
// `students: [{nickname, correct, wrong, correctPct}]`).
type participantStat struct {
	ParticipantID int64   `json:"participantId"`
	Nickname      string  `json:"nickname"`
	Correct       int     `json:"correct"`
	Wrong         int     `json:"wrong"`
	CorrectPct    float64 `json:"correctPct"`
}

type classStat struct {
	Correct    int     `json:"correct"`
	Wrong      int     `json:"wrong"`
	CorrectPct float64 `json:"correctPct"`
	WrongPct   float64 `json:"wrongPct"`
}

// statsPayload is the stats_update wire shape: spec.md §6
// `{class: {correctPct, wrongPct}, students: [...]}`.
type statsPayload struct {
	Students []participantStat `json:"students"`
	Class    classStat         `json:"class"`
}

func (r *Room) computeStats() statsPayload {
	out := statsPayload{Students: make([]participantStat, 0, len(r.participants))}
	classCorrect, classWrong := 0, 0
	for _, ps := range r.participants {
		correct := ps.correctCount()
		wrong := ps.totalAttempts() - correct
		classCorrect += correct
		classWrong += wrong
		pct := 0.0
		total := correct + wrong
		if total < 1 {
			total = 1
		}
		pct = float64(correct) / float64(total) * 100
		out.Students = append(out.Students, participantStat{
			ParticipantID: ps.id,
			Nickname:      ps.nickname,
			Correct:       correct,
			Wrong:         wrong,
			CorrectPct:    pct,
		})
	}
	classTotal := classCorrect + classWrong
	if classTotal < 1 {
		classTotal = 1
	}
	classPct := float64(classCorrect) / float64(classTotal) * 100
	out.Class = classStat{
		Correct:    classCorrect,
		Wrong:      classWrong,
		CorrectPct: classPct,
		WrongPct:   100 - classPct,
	}
	return out
}

// markStatsDirty schedules a coalesced stats_update broadcast if one is not
// already pending (spec.md §4.4.5: "if there is no pending flush, schedule
// one at now+Δ" rather than emitting immediately and rate-limiting after).
func (r *Room) markStatsDirty() {
	r.statsDirty = true
	if r.statsTimerQueued {
		return
	}
	r.statsTimerQueued = true
	time.AfterFunc(r.cfg.StatsCoalesceWindow, func() {
		r.Send(evStatsFlush{})
	})
}

func (r *Room) flushStats(ctx context.Context) {
	r.statsTimerQueued = false
	if !r.statsDirty {
		return
	}
	r.statsDirty = false
	r.sendToTeacher(ctx, envelope.EventStatsUpdate, r.computeStats(), "")
}

func (r *Room) handleRequestStats(ctx context.Context, ev EvRequestStats) {
	if ev.ConnID != r.teacherConnID {
		return
	}
	r.sendToTeacher(ctx, envelope.EventStatsUpdate, r.computeStats(), "")
}

// handleRequestWaitingRoom answers a just-registered teacher connection
// with an immediate, uncoalesced waiting_room_update: the room snapshot a
// reconnecting teacher needs without waiting for the next flush window.
func (r *Room) handleRequestWaitingRoom(ctx context.Context, ev EvRequestWaitingRoom) {
	if ev.ConnID != r.teacherConnID {
		return
	}
	r.sendToTeacher(ctx, envelope.EventWaitingRoomUpdate, r.waitingRoomSnapshot(), "")
	r.sendToTeacher(ctx, envelope.EventStatsUpdate, r.computeStats(), "")
}

// markWaitingDirty schedules a coalesced waiting_room_update broadcast
// following the same "schedule if not pending" rule as stats.
func (r *Room) markWaitingDirty(ctx context.Context) {
	r.waitingDirty = true
	if r.waitingTimerQueued {
		return
	}
	r.waitingTimerQueued = true
	time.AfterFunc(r.cfg.WaitingRoomCoalesceWindow, func() {
		r.Send(evWaitingRoomFlush{})
	})
}

func (r *Room) flushWaitingRoom(ctx context.Context) {
	r.waitingTimerQueued = false
	if !r.waitingDirty {
		return
	}
	r.waitingDirty = false
	r.broadcast(ctx, envelope.EventWaitingRoomUpdate, r.waitingRoomSnapshot(), "")
}

// rosterEntry is one row of a waiting_room_update broadcast (spec.md §6
// `participants: [{nickname, state}]`).
type rosterEntry struct {
	ParticipantID int64  `json:"participantId"`
	Nickname      string `json:"nickname"`
	State         string `json:"state"`
}

func (r *Room) waitingRoomSnapshot() map[string]interface{} {
	roster := make([]rosterEntry, 0, len(r.participants))
	for _, ps := range r.participants {
		roster = append(roster, rosterEntry{
			ParticipantID: ps.id,
			Nickname:      ps.nickname,
			State:         string(ps.joinState),
		})
	}
	return map[string]interface{}{
		"sessionId":    r.sessionID,
		"status":       string(r.status),
		"participants": roster,
	}
}
