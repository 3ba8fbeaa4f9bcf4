package model

// QuestionType enumerates the shapes of answer a Question accepts.
type QuestionType string

const (
	QuestionTypeOpen   QuestionType = "open"
	QuestionTypeSingle QuestionType = "single"
	QuestionTypeMulti  QuestionType = "multi"
)

// GameMode enumerates the experiential modes a session runs under. The core
// treats every non-classic mode identically: the game is blind to which
// mini-game drives request_question, it only reacts to the event.
type GameMode string

const (
	GameModePlatformer GameMode = "platformer"
	GameModeShooter    GameMode = "shooter"
	GameModeTycoon     GameMode = "tycoon"
	GameModeClassic    GameMode = "classic"
)

// SessionStatus is the lifecycle state of a Session.
type SessionStatus string

const (
	SessionWaiting  SessionStatus = "waiting"
	SessionActive   SessionStatus = "active"
	SessionFinished SessionStatus = "finished"
)

// Option is a single answerable choice attached to a single/multi Question.
// Options carry their own externalId and are never reordered: position in
// the slice is the display and wire order.
type Option struct {
	ExternalID string `json:"externalId"`
	Text       string `json:"text"`
}

// AnswerKey is the canonical correct answer for a Question. Exactly one of
// the three fields is meaningful, selected by the owning Question's Type.
// It is never sent to clients (see QuestionPublic).
type AnswerKey struct {
	Text       string   // open
	OptionID   string   // single
	OptionIDs  []string // multi, treated as a set
}

// Question is one entry of an immutable-during-session Quiz.
type Question struct {
	ExternalID string
	Position   int
	Type       QuestionType
	Prompt     string
	Options    []Option
	Answer     AnswerKey
}

// Quiz is the ordered, immutable-for-the-duration-of-a-session question set.
type Quiz struct {
	ID        int64
	Title     string
	Questions []Question
}

// QuestionByExternalID finds a question by its stable id, in position order.
func (q *Quiz) QuestionByExternalID(externalID string) (*Question, bool) {
	for i := range q.Questions {
		if q.Questions[i].ExternalID == externalID {
			return &q.Questions[i], true
		}
	}
	return nil, false
}
