package models

// History entry roles. A session's history is an append-only sequence of
// question/answer pairs; a question entry is never recorded without its answer.
const (
	RoleQuestion = "question"
	RoleAnswer   = "answer"
)

// HistoryEntry is one tagged entry of a session's conversation history.
type HistoryEntry struct {
	Role string `json:"role"`
	Text string `json:"text"`
}
