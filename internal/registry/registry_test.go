package registry

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dinhkhaphancs/real-time-quiz-backend/internal/config"
	"github.com/dinhkhaphancs/real-time-quiz-backend/internal/envelope"
	"github.com/dinhkhaphancs/real-time-quiz-backend/internal/logging"
	"github.com/dinhkhaphancs/real-time-quiz-backend/internal/model"
	"github.com/dinhkhaphancs/real-time-quiz-backend/internal/room"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingGateway struct {
	loads  int32
	status model.SessionStatus
}

func (g *countingGateway) LoadSession(ctx context.Context, roomCode string) (*model.SessionSnapshot, error) {
	atomic.AddInt32(&g.loads, 1)
	time.Sleep(10 * time.Millisecond) // widen the race window concurrent Acquire calls must survive
	return &model.SessionSnapshot{
		Session: model.Session{SessionID: 1, RoomCode: roomCode, QuizID: 1, TeacherID: 1, Status: g.status},
	}, nil
}

func (g *countingGateway) CreateParticipant(ctx context.Context, sessionID int64, nickname string) (int64, error) {
	return 1, nil
}
func (g *countingGateway) RecordAnswer(ctx context.Context, rec model.AnswerRecord) error { return nil }
func (g *countingGateway) UpsertQuestionState(ctx context.Context, sessionID int64, qs model.QuestionState) error {
	return nil
}
func (g *countingGateway) UpsertAggregate(ctx context.Context, sessionID int64, participantID *int64, correct, wrong int, ts time.Time) error {
	return nil
}
func (g *countingGateway) SetSessionStatus(ctx context.Context, sessionID int64, status model.SessionStatus, startedAt, endedAt *time.Time) error {
	return nil
}
func (g *countingGateway) MarkParticipantLeft(ctx context.Context, participantID int64, leftAt time.Time) error {
	return nil
}

type noopHub struct{}

func (noopHub) Publish(context.Context, string, envelope.Destination, envelope.Outbound) error {
	return nil
}
func (noopHub) Close(context.Context, string, envelope.Destination, string) error { return nil }
func (noopHub) ConnectionCount(string) int                                       { return 0 }

type noopVerifier struct{}

func (noopVerifier) Verify(token, roomCode string) (int64, error) { return 1, nil }

// Concurrent Acquire calls for a brand-new roomCode must materialize exactly
// one Room and hand every caller the same instance.
func TestAcquireConcurrentSingleMaterialization(t *testing.T) {
	gw := &countingGateway{status: model.SessionWaiting}
	reg := New(context.Background(), gw, noopHub{}, noopVerifier{}, config.DefaultRoomConfig(), logging.New(false))
	t.Cleanup(reg.Shutdown)

	const n = 20
	var wg sync.WaitGroup
	results := make([]*room.Room, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			rm, err := reg.Acquire(context.Background(), "ROOM1")
			require.NoError(t, err)
			results[i] = rm
		}(i)
	}
	wg.Wait()

	first := results[0]
	for _, rm := range results {
		assert.Same(t, first, rm)
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&gw.loads))
}

// A finished session is rejected rather than materialized into a joinable
// Room.
func TestAcquireRejectsFinishedSession(t *testing.T) {
	gw := &countingGateway{status: model.SessionFinished}
	reg := New(context.Background(), gw, noopHub{}, noopVerifier{}, config.DefaultRoomConfig(), logging.New(false))
	t.Cleanup(reg.Shutdown)

	_, err := reg.Acquire(context.Background(), "ROOM2")
	assert.Error(t, err)
}
