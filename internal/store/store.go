// Package store defines the Session Store Gateway: the narrow persistence
// interface the Room Actor depends on. Concrete SQL access lives in
// internal/store/postgres; the orchestrator never imports a SQL driver
// directly.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/dinhkhaphancs/real-time-quiz-backend/internal/model"
)

// TransientStoreError wraps a failure the Room Actor should retry
// (connection blip, deadline exceeded, serialization conflict).
type TransientStoreError struct{ Err error }

func (e *TransientStoreError) Error() string { return "transient store error: " + e.Err.Error() }
func (e *TransientStoreError) Unwrap() error  { return e.Err }

// PermanentStoreError wraps a failure that should escalate to session
// termination. The postgres Gateway uses it for SQLSTATE class-2 errors
// (data exceptions, constraint violations other than unique violations)
// and for a roomCode with no session row; it classifies every other
// driver error, schema errors included, as transient.
type PermanentStoreError struct{ Err error }

func (e *PermanentStoreError) Error() string { return "permanent store error: " + e.Err.Error() }
func (e *PermanentStoreError) Unwrap() error  { return e.Err }

// ErrNicknameTaken is returned by CreateParticipant when the
// (sessionId, nickname) unique constraint fires.
var ErrNicknameTaken = errors.New("nickname already taken in this session")

// Gateway is the persistence surface the Room Actor calls. All writes are
// issued from the actor's serialized context; the Gateway need not provide
// intra-room transactional isolation, only tolerate concurrent activity
// from other rooms.
type Gateway interface {
	// LoadSession returns session metadata, quiz content, and any
	// already-persisted participants, question states, and aggregates.
	// Called once per room materialisation.
	LoadSession(ctx context.Context, roomCode string) (*model.SessionSnapshot, error)

	// CreateParticipant inserts a new participant row, returning its
	// surrogate id. A unique-constraint failure surfaces as
	// ErrNicknameTaken.
	CreateParticipant(ctx context.Context, sessionID int64, nickname string) (int64, error)

	// RecordAnswer is idempotent on the (session, participant, question,
	// attemptNo) key.
	RecordAnswer(ctx context.Context, rec model.AnswerRecord) error

	// UpsertQuestionState writes the latest per-participant-per-question
	// progress row.
	UpsertQuestionState(ctx context.Context, sessionID int64, qs model.QuestionState) error

	// UpsertAggregate writes a per-participant (participantID != nil) or
	// class-wide (participantID == nil) running tally.
	UpsertAggregate(ctx context.Context, sessionID int64, participantID *int64, correct, wrong int, ts time.Time) error

	// SetSessionStatus transitions the session row.
	SetSessionStatus(ctx context.Context, sessionID int64, status model.SessionStatus, startedAt, endedAt *time.Time) error

	// MarkParticipantLeft stamps leftAt once the disconnect grace expires.
	MarkParticipantLeft(ctx context.Context, participantID int64, leftAt time.Time) error
}
