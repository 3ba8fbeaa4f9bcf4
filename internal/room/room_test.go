package room

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/dinhkhaphancs/real-time-quiz-backend/internal/config"
	"github.com/dinhkhaphancs/real-time-quiz-backend/internal/envelope"
	"github.com/dinhkhaphancs/real-time-quiz-backend/internal/logging"
	"github.com/dinhkhaphancs/real-time-quiz-backend/internal/model"
	"github.com/dinhkhaphancs/real-time-quiz-backend/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeHub is an in-memory Publisher recording every routed frame, used to
// drive and assert on the Room Actor without Redis or real sockets.
type fakeHub struct {
	mu     sync.Mutex
	frames []envelope.Routed
}

func (f *fakeHub) Publish(_ context.Context, _ string, dest envelope.Destination, out envelope.Outbound) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.frames = append(f.frames, envelope.Routed{Dest: dest, Outbound: out})
	return nil
}

func (f *fakeHub) Close(ctx context.Context, room string, dest envelope.Destination, reason string) error {
	return f.Publish(ctx, room, dest, envelope.NewOutbound(envelope.EventCloseConnection, map[string]string{"reason": reason}, ""))
}

func (f *fakeHub) ConnectionCount(string) int { return 0 }

func (f *fakeHub) forParticipant(pid int64) []envelope.Outbound {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []envelope.Outbound
	for _, fr := range f.frames {
		if !fr.Dest.Broadcast && !fr.Dest.Teacher && fr.Dest.ParticipantID == pid && fr.Dest.ConnID == "" {
			out = append(out, fr.Outbound)
		}
	}
	return out
}

func (f *fakeHub) lastEvent(frames []envelope.Outbound) envelope.Event {
	if len(frames) == 0 {
		return ""
	}
	return frames[len(frames)-1].Event
}

func (f *fakeHub) closedConns() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, fr := range f.frames {
		if fr.Outbound.Event == envelope.EventCloseConnection && fr.Dest.ConnID != "" {
			out = append(out, fr.Dest.ConnID)
		}
	}
	return out
}

// fakeGateway is an in-memory store.Gateway that always succeeds, used for
// room-level behavioral tests.
type fakeGateway struct {
	mu         sync.Mutex
	nextID     int64
	nicknames  map[string]int64
	statusSets []model.SessionStatus
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{nicknames: make(map[string]int64)}
}

func (g *fakeGateway) LoadSession(ctx context.Context, roomCode string) (*model.SessionSnapshot, error) {
	return nil, nil
}

func (g *fakeGateway) CreateParticipant(ctx context.Context, sessionID int64, nickname string) (int64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, taken := g.nicknames[nickname]; taken {
		return 0, store.ErrNicknameTaken
	}
	g.nextID++
	g.nicknames[nickname] = g.nextID
	return g.nextID, nil
}

func (g *fakeGateway) RecordAnswer(ctx context.Context, rec model.AnswerRecord) error { return nil }

func (g *fakeGateway) UpsertQuestionState(ctx context.Context, sessionID int64, qs model.QuestionState) error {
	return nil
}

func (g *fakeGateway) UpsertAggregate(ctx context.Context, sessionID int64, participantID *int64, correct, wrong int, ts time.Time) error {
	return nil
}

func (g *fakeGateway) SetSessionStatus(ctx context.Context, sessionID int64, status model.SessionStatus, startedAt, endedAt *time.Time) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.statusSets = append(g.statusSets, status)
	return nil
}

func (g *fakeGateway) MarkParticipantLeft(ctx context.Context, participantID int64, leftAt time.Time) error {
	return nil
}

type fakeVerifier struct {
	teacherID int64
	fail      bool
}

func (v *fakeVerifier) Verify(token, roomCode string) (int64, error) {
	if v.fail {
		return 0, ErrUnauthorized
	}
	return v.teacherID, nil
}

func testRoom(t *testing.T, quiz model.Quiz) (*Room, *fakeHub, *fakeGateway) {
	t.Helper()
	hub := &fakeHub{}
	gw := newFakeGateway()
	cfg := config.DefaultRoomConfig()
	cfg.StatsCoalesceWindow = 10 * time.Millisecond
	cfg.WaitingRoomCoalesceWindow = 10 * time.Millisecond
	cfg.ReservationTTL = 200 * time.Millisecond
	cfg.StudentDisconnectGrace = 50 * time.Millisecond
	cfg.RetryBackoffs = []time.Duration{time.Millisecond, time.Millisecond}

	snap := &model.SessionSnapshot{
		Session: model.Session{SessionID: 1, RoomCode: "ABCD", QuizID: 1, TeacherID: 42, Status: model.SessionWaiting},
		Quiz:    quiz,
	}
	r := New(snap, gw, hub, &fakeVerifier{teacherID: 42}, cfg, logging.New(false))
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go r.Run(ctx)
	return r, hub, gw
}

func testQuiz() model.Quiz {
	return model.Quiz{
		ID:    1,
		Title: "geo",
		Questions: []model.Question{
			{ExternalID: "q1", Position: 0, Type: model.QuestionTypeOpen, Prompt: "capital of france", Answer: model.AnswerKey{Text: "Paris"}},
			{ExternalID: "q2", Position: 1, Type: model.QuestionTypeSingle, Prompt: "2+2",
				Options: []model.Option{{ExternalID: "a", Text: "3"}, {ExternalID: "b", Text: "4"}}, Answer: model.AnswerKey{OptionID: "b"}},
		},
	}
}

func joinStudent(t *testing.T, r *Room, connID, nickname string) JoinResult {
	t.Helper()
	reply := make(chan JoinResult, 1)
	r.Send(EvJoinRoom{ConnID: connID, Role: "student", Nickname: nickname, Reply: reply})
	select {
	case res := <-reply:
		return res
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for join reply")
		return JoinResult{}
	}
}

func joinTeacher(t *testing.T, r *Room, connID string) JoinResult {
	t.Helper()
	reply := make(chan JoinResult, 1)
	r.Send(EvJoinRoom{ConnID: connID, Role: "teacher", CSRF: "token", Reply: reply})
	select {
	case res := <-reply:
		return res
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for join reply")
		return JoinResult{}
	}
}

func eventually(t *testing.T, fn func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if fn() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition never became true")
}

// S1 — happy path classical flow: join, start, answer every question,
// no-more-questions, end.
func TestHappyPathClassic(t *testing.T) {
	r, hub, _ := testRoom(t, testQuiz())

	res := joinStudent(t, r, "conn-alice", "alice")
	require.NoError(t, res.Err)
	pid := res.ParticipantID

	tres := joinTeacher(t, r, "conn-teacher")
	require.NoError(t, tres.Err)
	require.True(t, tres.IsTeacher)

	r.Send(EvStartQuiz{ConnID: "conn-teacher"})
	eventually(t, func() bool {
		for _, f := range hub.frames {
			if f.Dest.Broadcast && f.Outbound.Event == envelope.EventStartQuiz {
				return true
			}
		}
		return false
	})

	r.Send(EvRequestQuestion{ConnID: "conn-alice", ParticipantID: pid})
	eventually(t, func() bool { return hub.lastEvent(hub.forParticipant(pid)) == envelope.EventQuestionPush })

	r.Send(EvAnswerSubmit{ConnID: "conn-alice", ParticipantID: pid, QuestionID: "q1", Answer: model.AnswerPayload{Text: strPtr("Paris")}})
	eventually(t, func() bool { return hub.lastEvent(hub.forParticipant(pid)) == envelope.EventAnswerResult })

	r.Send(EvRequestQuestion{ConnID: "conn-alice", ParticipantID: pid})
	eventually(t, func() bool { return hub.lastEvent(hub.forParticipant(pid)) == envelope.EventQuestionPush })

	r.Send(EvAnswerSubmit{ConnID: "conn-alice", ParticipantID: pid, QuestionID: "q2", Answer: model.AnswerPayload{OptionID: strPtr("b")}})
	eventually(t, func() bool { return hub.lastEvent(hub.forParticipant(pid)) == envelope.EventAnswerResult })

	r.Send(EvRequestQuestion{ConnID: "conn-alice", ParticipantID: pid})
	eventually(t, func() bool { return hub.lastEvent(hub.forParticipant(pid)) == envelope.EventNoMoreQuestions })

	r.Send(EvEndQuiz{ConnID: "conn-teacher"})
	eventually(t, func() bool {
		for _, f := range hub.frames {
			if f.Dest.Broadcast && f.Outbound.Event == envelope.EventEndQuiz {
				return true
			}
		}
		return false
	})
}

// S4 — teacher supersession: the old teacher connection is targeted with a
// close-connection control frame naming its own ConnID, not the new one's.
func TestTeacherSupersession(t *testing.T) {
	r, hub, _ := testRoom(t, testQuiz())

	res1 := joinTeacher(t, r, "conn-1")
	require.NoError(t, res1.Err)

	res2 := joinTeacher(t, r, "conn-2")
	require.NoError(t, res2.Err)

	eventually(t, func() bool {
		closed := hub.closedConns()
		for _, id := range closed {
			if id == "conn-1" {
				return true
			}
		}
		return false
	})
	for _, id := range hub.closedConns() {
		assert.NotEqual(t, "conn-2", id)
	}
}

// S7 — session finished rejects late writes: after EndQuiz, answer_submit
// is answered with bad_request and does not mutate state.
func TestAnswerAfterFinishIsRejected(t *testing.T) {
	r, hub, _ := testRoom(t, testQuiz())

	res := joinStudent(t, r, "conn-alice", "alice")
	pid := res.ParticipantID
	joinTeacher(t, r, "conn-teacher")
	r.Send(EvStartQuiz{ConnID: "conn-teacher"})
	r.Send(EvEndQuiz{ConnID: "conn-teacher"})

	eventually(t, func() bool { return r.Finished() })

	r.Send(EvAnswerSubmit{ConnID: "conn-alice", ParticipantID: pid, QuestionID: "q1", Answer: model.AnswerPayload{Text: strPtr("Paris")}})
	eventually(t, func() bool { return hub.lastEvent(hub.forParticipant(pid)) == envelope.EventBadRequest })
}

// Nickname already bound to a live socket is rejected; a nickname whose
// socket has dropped can be rebound by reconnecting.
func TestNicknameInUseAndReconnect(t *testing.T) {
	r, _, _ := testRoom(t, testQuiz())

	first := joinStudent(t, r, "conn-1", "bob")
	require.NoError(t, first.Err)

	dup := joinStudent(t, r, "conn-2", "bob")
	assert.ErrorIs(t, dup.Err, ErrNicknameInUse)

	r.Send(EvConnectionClosed{ConnID: "conn-1"})

	reconnect := joinStudent(t, r, "conn-3", "bob")
	require.NoError(t, reconnect.Err)
	assert.Equal(t, first.ParticipantID, reconnect.ParticipantID)
}

func strPtr(s string) *string { return &s }
