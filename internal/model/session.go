package model

import "time"

// Session is the durable record of one room's lifecycle, owned by the
// Session Store Gateway and mirrored read-only inside the Room Actor.
type Session struct {
	SessionID int64
	RoomCode  string
	JoinToken string
	QuizID    int64
	TeacherID int64
	GameMode  GameMode
	Status    SessionStatus
	StartedAt *time.Time
	EndedAt   *time.Time
	Crashed   bool
}

// JoinState is the connectivity state of a Participant.
type JoinState string

const (
	JoinWaiting JoinState = "waiting"
	JoinPlaying JoinState = "playing"
	JoinLeft    JoinState = "left"
)

// Participant is a student bound by nickname within a Session.
type Participant struct {
	ParticipantID int64
	SessionID     int64
	Nickname      string
	JoinState     JoinState
	ConnectedAt   time.Time
	LeftAt        *time.Time
}

// QuestionState is the per (participant, question) progress row. IsCorrect
// only ever transitions false -> true.
type QuestionState struct {
	ParticipantID  int64
	QuestionID     string // Question.ExternalID
	Attempts       int
	IsCorrect      bool
	FirstAttemptAt time.Time
	LastAttemptAt  time.Time
}

// AnswerVerdict is the Answer Grader's output.
type AnswerVerdict string

const (
	VerdictCorrect   AnswerVerdict = "correct"
	VerdictIncorrect AnswerVerdict = "incorrect"
	VerdictMalformed AnswerVerdict = "malformed"
)

// AnswerPayload is the tagged-union submission shape from §9 "Dynamic
// payloads become tagged variants": exactly one field is populated,
// matching the Question's Type.
type AnswerPayload struct {
	Text      *string  `json:"text,omitempty"`
	OptionID  *string  `json:"optionId,omitempty"`
	OptionIDs []string `json:"optionIds,omitempty"`
}

// AnswerRecord is one append-only row per (session, participant, question,
// attemptNo).
type AnswerRecord struct {
	SessionID     int64
	ParticipantID int64
	QuestionID    string
	AttemptNo     int
	Payload       AnswerPayload
	Verdict       AnswerVerdict
	AnsweredAt    time.Time
}

// Aggregate is a running tally, either per-participant or class-wide
// (ParticipantID == nil for the class row).
type Aggregate struct {
	SessionID     int64
	ParticipantID *int64
	Correct       int
	Wrong         int
}

// CorrectPct computes correct/(correct+wrong)*100, matching spec.md's
// max(1, ...) denominator floor so an untouched aggregate reads 0%, not NaN.
func (a Aggregate) CorrectPct() float64 {
	total := a.Correct + a.Wrong
	if total < 1 {
		total = 1
	}
	return float64(a.Correct) / float64(total) * 100
}

// SessionSnapshot is everything loadSession returns: session metadata, quiz
// content, and already-persisted participants/question-states/aggregates,
// used to materialize a Room from storage.
type SessionSnapshot struct {
	Session        Session
	Quiz           Quiz
	Participants   []Participant
	QuestionStates []QuestionState
	Aggregates     []Aggregate
}
