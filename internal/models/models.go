package models

// Role tags a hub connection. A connection holds at most one role at a time.
type Role string

const (
	RoleNone      Role = ""
	RoleDisplay   Role = "display"
	RolePresenter Role = "presenter"
	RoleQuestions Role = "questions"
)

// Envelope carries the fields the hub dispatches on. Payloads that are
// relayed onward (state reports, draw events) are forwarded from the raw
// bytes so fields the hub does not know about survive the fan-out untouched.
type Envelope struct {
	Type      string `json:"type"`
	Role      Role   `json:"role,omitempty"`
	Key       string `json:"key,omitempty"`
	SessionID string `json:"sessionId,omitempty"`
	Action    string `json:"action,omitempty"`
	Hash      string `json:"hash,omitempty"`
}

/*** Hub → client frames ***/

type ConfigFrame struct {
	Type   string         `json:"type"` // "config"
	Config map[string]any `json:"config"`
}

type SyncFrame struct {
	Type       string `json:"type"` // "sync"
	Displays   int    `json:"displays"`
	Presenters int    `json:"presenters"`
}

type NavigateFrame struct {
	Type   string `json:"type"` // "navigate"
	Action string `json:"action"`
}

type GotoFrame struct {
	Type string `json:"type"` // "goto"
	Hash string `json:"hash"`
}

type ReloadFrame struct {
	Type         string `json:"type"` // "reload"
	PreserveHash bool   `json:"preserveHash"`
}

type QuestionsFrame struct {
	Type      string     `json:"type"` // "questions"
	Questions []Question `json:"questions"`
}

// Question is one audience question. Voter tokens stay in the store and are
// never serialized.
type Question struct {
	ID        string `json:"id"`
	Text      string `json:"text"`
	Votes     int    `json:"votes"`
	Answered  bool   `json:"answered"`
	CreatedAt string `json:"createdAt"`
	UpdatedAt string `json:"updatedAt"`
}

/*** HTTP API payloads ***/

type QuestionSubmitRequest struct {
	Text string `json:"text"`
}

type QuestionRef struct {
	ID string `json:"id"`
}

type QuestionAnswerRequest struct {
	ID       string `json:"id"`
	Answered bool   `json:"answered"`
}

type QuestionResponse struct {
	OK       bool      `json:"ok"`
	Voted    *bool     `json:"voted,omitempty"`
	Question *Question `json:"question,omitempty"`
}

type QuestionListResponse struct {
	Questions []Question `json:"questions"`
}

type NotesResponse struct {
	Notes *string `json:"notes"`
}

type ConfigSaveResponse struct {
	Saved  bool           `json:"saved"`
	Config map[string]any `json:"config"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}
