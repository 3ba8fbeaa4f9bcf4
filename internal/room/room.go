// Package room implements the Room Actor: the per-room, single-writer
// state machine that owns participants, per-participant question progress,
// and pending-question reservations, and serializes every mutation through
// a mailbox (spec.md §4.4, §5). It is the heart of the orchestrator,
// grounded on the actor idiom found in the retrieval pack's
// utkarshjosh-quiz-maker room.go (msgChan + tickChan + closeChan select
// loop) and fleshed out against the teacher repo's service-layer
// grading/scoring/broadcast sequencing.
package room

import (
	"context"
	"time"

	"github.com/dinhkhaphancs/real-time-quiz-backend/internal/auth"
	"github.com/dinhkhaphancs/real-time-quiz-backend/internal/config"
	"github.com/dinhkhaphancs/real-time-quiz-backend/internal/envelope"
	"github.com/dinhkhaphancs/real-time-quiz-backend/internal/logging"
	"github.com/dinhkhaphancs/real-time-quiz-backend/internal/model"
	"github.com/dinhkhaphancs/real-time-quiz-backend/internal/store"
)

// Publisher is the fan-out surface the Room Actor depends on. roomhub.Hub
// satisfies it; tests substitute an in-memory fake so Room can be unit
// tested without Redis or real sockets.
type Publisher interface {
	Publish(ctx context.Context, room string, dest envelope.Destination, out envelope.Outbound) error
	Close(ctx context.Context, room string, dest envelope.Destination, reason string) error
	ConnectionCount(room string) int
}

// participantState is the actor's in-memory record for one student.
type participantState struct {
	id             int64
	nickname       string
	joinState      model.JoinState
	connID         string // "" when no live socket is bound
	connectedAt    time.Time
	leftAt         *time.Time
	leftTimer      *time.Timer
	questionStates map[string]*model.QuestionState // questionID -> state
}

func (p *participantState) correctCount() int {
	n := 0
	for _, qs := range p.questionStates {
		if qs.IsCorrect {
			n++
		}
	}
	return n
}

func (p *participantState) totalAttempts() int {
	n := 0
	for _, qs := range p.questionStates {
		n += qs.Attempts
	}
	return n
}

// reservation is the in-memory-only record of a question pushed to a
// participant and awaiting their answer (spec.md §3 "Pending Question
// Reservation").
type reservation struct {
	participantID int64
	questionID    string
	seq           uint64
	timer         *time.Timer
}

// Room is the per-roomCode Room Actor.
type Room struct {
	roomCode  string
	sessionID int64
	quizID    int64
	teacherID int64
	gameMode  model.GameMode
	status    model.SessionStatus
	crashed   bool

	quiz model.Quiz

	participants      map[string]*participantState // nickname -> state
	byID              map[int64]*participantState  // participantID -> state
	connToParticipant map[string]int64              // connID -> participantID

	teacherConnID string

	reservations   map[int64]*reservation // participantID -> active reservation
	reservationSeq uint64

	// optionCounts accumulates, per question and option, how many submitted
	// answers picked that option (single/multi only), for the question_stats
	// teacher frame.
	optionCounts map[string]map[string]int

	statsDirty       bool
	statsTimerQueued bool

	waitingDirty       bool
	waitingTimerQueued bool

	mailbox chan interface{}
	done    chan struct{}

	gw    store.Gateway
	hub   Publisher
	authv auth.CSRFVerifier
	cfg   config.RoomConfig
	log   logging.Logger
}

// New builds a Room from a freshly-loaded snapshot. The caller (Registry)
// is responsible for running Run in its own goroutine.
func New(snap *model.SessionSnapshot, gw store.Gateway, hub Publisher, authv auth.CSRFVerifier, cfg config.RoomConfig, log logging.Logger) *Room {
	r := &Room{
		roomCode:          snap.Session.RoomCode,
		sessionID:         snap.Session.SessionID,
		quizID:            snap.Session.QuizID,
		teacherID:         snap.Session.TeacherID,
		gameMode:          snap.Session.GameMode,
		status:            snap.Session.Status,
		crashed:           snap.Session.Crashed,
		quiz:              snap.Quiz,
		participants:      make(map[string]*participantState),
		byID:              make(map[int64]*participantState),
		connToParticipant: make(map[string]int64),
		reservations:      make(map[int64]*reservation),
		optionCounts:      make(map[string]map[string]int),
		mailbox:           make(chan interface{}, 256),
		done:              make(chan struct{}),
		gw:                gw,
		hub:               hub,
		authv:             authv,
		cfg:               cfg,
		log:               log.With("room", snap.Session.RoomCode),
	}

	for _, p := range snap.Participants {
		ps := &participantState{
			id:             p.ParticipantID,
			nickname:       p.Nickname,
			joinState:      p.JoinState,
			connectedAt:    p.ConnectedAt,
			leftAt:         p.LeftAt,
			questionStates: make(map[string]*model.QuestionState),
		}
		r.participants[p.Nickname] = ps
		r.byID[p.ParticipantID] = ps
	}
	for i := range snap.QuestionStates {
		qs := snap.QuestionStates[i]
		if ps, ok := r.byID[qs.ParticipantID]; ok {
			cp := qs
			ps.questionStates[qs.QuestionID] = &cp
		}
	}
	return r
}

// RoomCode returns the room's stable key.
func (r *Room) RoomCode() string { return r.roomCode }

// Send enqueues an event into the actor's mailbox. It never blocks
// indefinitely: if the room has already been torn down, the event is
// dropped (the caller's connection is on its way out regardless).
func (r *Room) Send(ev interface{}) {
	select {
	case r.mailbox <- ev:
	case <-r.done:
	}
}

// Finished reports whether the session has reached a terminal state.
func (r *Room) Finished() bool {
	return r.statusSnapshot() == model.SessionFinished
}

func (r *Room) statusSnapshot() model.SessionStatus {
	// status is only ever mutated on the actor goroutine; Finished is
	// called from the Registry's disposal sweep on a different goroutine,
	// so this read races benignly with a write of the same terminal
	// value (status only ever moves forward, never back to non-finished).
	return r.status
}

// ConnectionCount reports how many live sockets this process has for the
// room, used by the Registry's disposal rule (spec.md §4.3).
func (r *Room) ConnectionCount() int {
	return r.hub.ConnectionCount(r.roomCode)
}

// Stop halts the actor's mailbox loop.
func (r *Room) Stop() {
	select {
	case <-r.done:
	default:
		close(r.done)
	}
}

// Run drains the mailbox until the context is cancelled or Stop is called.
// The actor never awaits a socket read directly; all network I/O happens in
// the WS Adapter, which posts typed events here.
func (r *Room) Run(ctx context.Context) {
	r.log.Info("room started")
	defer r.log.Info("room stopped")
	for {
		select {
		case <-ctx.Done():
			return
		case <-r.done:
			return
		case ev := <-r.mailbox:
			r.dispatch(ctx, ev)
		}
	}
}

func (r *Room) dispatch(ctx context.Context, ev interface{}) {
	switch e := ev.(type) {
	case EvJoinRoom:
		r.handleJoinRoom(ctx, e)
	case EvStartQuiz:
		r.handleStartQuiz(ctx, e)
	case EvEndQuiz:
		r.handleEndQuiz(ctx, e)
	case EvRequestQuestion:
		r.handleRequestQuestion(ctx, e)
	case EvAnswerSubmit:
		r.handleAnswerSubmit(ctx, e)
	case EvRequestStats:
		r.handleRequestStats(ctx, e)
	case EvRequestWaitingRoom:
		r.handleRequestWaitingRoom(ctx, e)
	case EvConnectionClosed:
		r.handleConnectionClosed(ctx, e)
	case evReservationExpired:
		r.handleReservationExpired(ctx, e)
	case evLeftGraceExpired:
		r.handleLeftGraceExpired(ctx, e)
	case evStatsFlush:
		r.flushStats(ctx)
	case evWaitingRoomFlush:
		r.flushWaitingRoom(ctx)
	default:
		r.log.Warn("room: unknown event type")
	}
}
