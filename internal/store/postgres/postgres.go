// Package postgres is the concrete Session Store Gateway backing
// implementation, grounded on the teacher repo's internal/repository
// package (database/sql + lib/pq, hand-written queries, no ORM).
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dinhkhaphancs/real-time-quiz-backend/internal/config"
	"github.com/dinhkhaphancs/real-time-quiz-backend/internal/model"
	"github.com/dinhkhaphancs/real-time-quiz-backend/internal/store"
	"github.com/lib/pq"
)

// uniqueViolation is PostgreSQL's SQLSTATE for a unique_violation.
const uniqueViolation = "23505"

// Store is the lib/pq backed implementation of store.Gateway.
type Store struct {
	db *sql.DB
}

// New opens a PostgreSQL connection pool per the teacher's connection
// settings (25 open/idle) and verifies it with a ping.
func New(cfg config.PostgresConfig) (*Store, error) {
	connStr := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database, cfg.SSLMode,
	)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)

	return &Store{db: db}, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error { return s.db.Close() }

// classify wraps a raw driver error as Transient or Permanent per §4.4.6,
// except for the nickname unique-constraint which surfaces as
// store.ErrNicknameTaken so the Room Actor can answer NicknameTaken instead
// of retrying.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		if pqErr.Code == uniqueViolation {
			return store.ErrNicknameTaken
		}
		// Constraint violations other than the nickname one are not
		// transient: retrying an insert that violates a FK or check
		// constraint will never succeed.
		if len(pqErr.Code) > 0 && pqErr.Code[0] == '2' {
			return &store.PermanentStoreError{Err: err}
		}
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, sql.ErrConnDone) {
		return &store.TransientStoreError{Err: err}
	}
	return &store.TransientStoreError{Err: err}
}

// LoadSession implements store.Gateway.
func (s *Store) LoadSession(ctx context.Context, roomCode string) (*model.SessionSnapshot, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, room_code, join_token, quiz_id, teacher_id, game_mode, status, started_at, ended_at, crashed
		FROM sessions WHERE room_code = $1`, roomCode)

	var sess model.Session
	var startedAt, endedAt sql.NullTime
	if err := row.Scan(&sess.SessionID, &sess.RoomCode, &sess.JoinToken, &sess.QuizID, &sess.TeacherID,
		&sess.GameMode, &sess.Status, &startedAt, &endedAt, &sess.Crashed); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, &store.PermanentStoreError{Err: fmt.Errorf("session %s not found", roomCode)}
		}
		return nil, classify(err)
	}
	if startedAt.Valid {
		sess.StartedAt = &startedAt.Time
	}
	if endedAt.Valid {
		sess.EndedAt = &endedAt.Time
	}

	quiz, err := s.loadQuiz(ctx, sess.QuizID)
	if err != nil {
		return nil, err
	}
	participants, err := s.loadParticipants(ctx, sess.SessionID)
	if err != nil {
		return nil, err
	}
	states, err := s.loadQuestionStates(ctx, sess.SessionID)
	if err != nil {
		return nil, err
	}
	aggregates, err := s.loadAggregates(ctx, sess.SessionID)
	if err != nil {
		return nil, err
	}

	return &model.SessionSnapshot{
		Session:        sess,
		Quiz:           *quiz,
		Participants:   participants,
		QuestionStates: states,
		Aggregates:     aggregates,
	}, nil
}

func (s *Store) loadQuiz(ctx context.Context, quizID int64) (*model.Quiz, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT external_id, position, type, prompt, answer_text, answer_option_id, answer_option_ids
		FROM quiz_questions WHERE quiz_id = $1 ORDER BY position ASC`, quizID)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	quiz := &model.Quiz{ID: quizID}
	for rows.Next() {
		var q model.Question
		var answerOptionIDs pq.StringArray
		if err := rows.Scan(&q.ExternalID, &q.Position, &q.Type, &q.Prompt, &q.Answer.Text, &q.Answer.OptionID, &answerOptionIDs); err != nil {
			return nil, classify(err)
		}
		q.Answer.OptionIDs = []string(answerOptionIDs)

		options, err := s.loadOptions(ctx, quizID, q.ExternalID)
		if err != nil {
			return nil, err
		}
		q.Options = options
		quiz.Questions = append(quiz.Questions, q)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err)
	}
	return quiz, nil
}

func (s *Store) loadOptions(ctx context.Context, quizID int64, questionExternalID string) ([]model.Option, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT external_id, text FROM quiz_question_options
		WHERE quiz_id = $1 AND question_external_id = $2 ORDER BY position ASC`, quizID, questionExternalID)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	var options []model.Option
	for rows.Next() {
		var o model.Option
		if err := rows.Scan(&o.ExternalID, &o.Text); err != nil {
			return nil, classify(err)
		}
		options = append(options, o)
	}
	return options, classify(rows.Err())
}

func (s *Store) loadParticipants(ctx context.Context, sessionID int64) ([]model.Participant, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, nickname, join_state, connected_at, left_at
		FROM session_participants WHERE session_id = $1`, sessionID)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	var out []model.Participant
	for rows.Next() {
		var p model.Participant
		var leftAt sql.NullTime
		if err := rows.Scan(&p.ParticipantID, &p.SessionID, &p.Nickname, &p.JoinState, &p.ConnectedAt, &leftAt); err != nil {
			return nil, classify(err)
		}
		if leftAt.Valid {
			p.LeftAt = &leftAt.Time
		}
		out = append(out, p)
	}
	return out, classify(rows.Err())
}

func (s *Store) loadQuestionStates(ctx context.Context, sessionID int64) ([]model.QuestionState, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT participant_id, question_external_id, attempts, is_correct, first_attempt_at, last_attempt_at
		FROM session_question_states
		WHERE participant_id IN (SELECT id FROM session_participants WHERE session_id = $1)`, sessionID)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	var out []model.QuestionState
	for rows.Next() {
		var qs model.QuestionState
		if err := rows.Scan(&qs.ParticipantID, &qs.QuestionID, &qs.Attempts, &qs.IsCorrect, &qs.FirstAttemptAt, &qs.LastAttemptAt); err != nil {
			return nil, classify(err)
		}
		out = append(out, qs)
	}
	return out, classify(rows.Err())
}

func (s *Store) loadAggregates(ctx context.Context, sessionID int64) ([]model.Aggregate, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT participant_id, correct, wrong FROM session_stats_aggregate WHERE session_id = $1`, sessionID)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	var out []model.Aggregate
	for rows.Next() {
		var a model.Aggregate
		var participantID sql.NullInt64
		if err := rows.Scan(&participantID, &a.Correct, &a.Wrong); err != nil {
			return nil, classify(err)
		}
		a.SessionID = sessionID
		if participantID.Valid {
			id := participantID.Int64
			a.ParticipantID = &id
		}
		out = append(out, a)
	}
	return out, classify(rows.Err())
}

// CreateParticipant implements store.Gateway.
func (s *Store) CreateParticipant(ctx context.Context, sessionID int64, nickname string) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO session_participants (session_id, nickname, join_state, connected_at)
		VALUES ($1, $2, 'playing', now()) RETURNING id`, sessionID, nickname).Scan(&id)
	if err != nil {
		return 0, classify(err)
	}
	return id, nil
}

// RecordAnswer implements store.Gateway. Idempotent on the unique
// (session, participant, question, attempt_no) key via ON CONFLICT DO NOTHING.
func (s *Store) RecordAnswer(ctx context.Context, rec model.AnswerRecord) error {
	payload, err := json.Marshal(rec.Payload)
	if err != nil {
		return &store.PermanentStoreError{Err: err}
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO session_answers (session_id, participant_id, question_external_id, attempt_no, payload, verdict, answered_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (session_id, participant_id, question_external_id, attempt_no) DO NOTHING`,
		rec.SessionID, rec.ParticipantID, rec.QuestionID, rec.AttemptNo, payload, rec.Verdict, rec.AnsweredAt)
	return classify(err)
}

// UpsertQuestionState implements store.Gateway.
func (s *Store) UpsertQuestionState(ctx context.Context, sessionID int64, qs model.QuestionState) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO session_question_states (participant_id, question_external_id, attempts, is_correct, first_attempt_at, last_attempt_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (participant_id, question_external_id) DO UPDATE SET
			attempts = EXCLUDED.attempts,
			is_correct = EXCLUDED.is_correct,
			last_attempt_at = EXCLUDED.last_attempt_at`,
		qs.ParticipantID, qs.QuestionID, qs.Attempts, qs.IsCorrect, qs.FirstAttemptAt, qs.LastAttemptAt)
	return classify(err)
}

// UpsertAggregate implements store.Gateway. A nil participantID writes the
// class row.
func (s *Store) UpsertAggregate(ctx context.Context, sessionID int64, participantID *int64, correct, wrong int, ts time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO session_stats_aggregate (session_id, participant_id, correct, wrong, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (session_id, COALESCE(participant_id, -1)) DO UPDATE SET
			correct = EXCLUDED.correct,
			wrong = EXCLUDED.wrong,
			updated_at = EXCLUDED.updated_at`,
		sessionID, participantID, correct, wrong, ts)
	return classify(err)
}

// SetSessionStatus implements store.Gateway.
func (s *Store) SetSessionStatus(ctx context.Context, sessionID int64, status model.SessionStatus, startedAt, endedAt *time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE sessions SET status = $2, started_at = COALESCE($3, started_at), ended_at = COALESCE($4, ended_at)
		WHERE id = $1`, sessionID, status, startedAt, endedAt)
	return classify(err)
}

// MarkParticipantLeft implements store.Gateway.
func (s *Store) MarkParticipantLeft(ctx context.Context, participantID int64, leftAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE session_participants SET join_state = 'left', left_at = $2 WHERE id = $1`,
		participantID, leftAt)
	return classify(err)
}
