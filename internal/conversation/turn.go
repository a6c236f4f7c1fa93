package conversation

import "time"

// TurnKind tags a transcript entry.
type TurnKind string

const (
	// TurnQuestion is a user question.
	TurnQuestion TurnKind = "question"
	// TurnAnswer is a collaborator answer.
	TurnAnswer TurnKind = "answer"
	// TurnError is the fixed failure notice shown instead of an answer.
	TurnError TurnKind = "error"
)

// Turn is one entry of the transcript. Source is only set on answers.
type Turn struct {
	Kind      TurnKind  `json:"kind"`
	Text      string    `json:"text"`
	Source    string    `json:"source,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// FailureText is appended as an error turn whenever the collaborator fails.
const FailureText = "Sorry, I couldn't process your question. Please try again."

// suggestedPrompts are shown while the transcript is empty.
var suggestedPrompts = []string{
	"What's my total income?",
	"How much did I spend?",
	"What are my top spending categories?",
	"What's my savings balance?",
	"Show me a summary of my finances",
}
