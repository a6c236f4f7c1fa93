// Package conversation implements the turn-based assistant session.
//
// A session is either idle or awaiting the answer to exactly one question.
// Submissions while awaiting are rejected, so turns can never interleave.
package conversation

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Answer is the collaborator's reply to a question.
type Answer struct {
	Text   string `json:"answer"`
	Source string `json:"source,omitempty"`
}

// Asker answers free-text questions about a dataset.
type Asker interface {
	Ask(ctx context.Context, datasetID, question string) (Answer, error)
}

// AskerFunc adapts a function to Asker.
type AskerFunc func(ctx context.Context, datasetID, question string) (Answer, error)

// Ask implements Asker.
func (f AskerFunc) Ask(ctx context.Context, datasetID, question string) (Answer, error) {
	return f(ctx, datasetID, question)
}

// State is the request state of a session.
type State int

const (
	// Idle accepts a new question.
	Idle State = iota
	// Awaiting has one question outstanding.
	Awaiting
)

func (s State) String() string {
	if s == Awaiting {
		return "awaiting"
	}
	return "idle"
}

// Session holds the transcript and the single outstanding request.
type Session struct {
	asker     Asker
	datasetID string
	log       zerolog.Logger
	now       func() time.Time

	mu         sync.Mutex
	state      State
	awaiting   string
	transcript []Turn
	idle       chan struct{}
}

// New creates an idle session with an empty transcript.
func New(asker Asker, datasetID string, log zerolog.Logger) *Session {
	idle := make(chan struct{})
	close(idle)
	return &Session{
		asker:     asker,
		datasetID: datasetID,
		log:       log,
		now:       time.Now,
		idle:      idle,
	}
}

// SetDataset changes the dataset identity passed to future questions.
func (s *Session) SetDataset(datasetID string) {
	s.mu.Lock()
	s.datasetID = datasetID
	s.mu.Unlock()
}

// Submit appends a question and asks the collaborator in the background.
// It returns false without changing anything when text is blank or a
// question is already outstanding.
func (s *Session) Submit(ctx context.Context, text string) bool {
	if strings.TrimSpace(text) == "" {
		return false
	}

	s.mu.Lock()
	if s.state == Awaiting {
		s.mu.Unlock()
		return false
	}
	s.transcript = append(s.transcript, Turn{Kind: TurnQuestion, Text: text, CreatedAt: s.now()})
	s.state = Awaiting
	s.awaiting = text
	s.idle = make(chan struct{})
	datasetID := s.datasetID
	done := s.idle
	s.mu.Unlock()

	go s.ask(context.WithoutCancel(ctx), datasetID, text, done)
	return true
}

func (s *Session) ask(ctx context.Context, datasetID, text string, done chan struct{}) {
	answer, err := s.asker.Ask(ctx, datasetID, text)

	s.mu.Lock()
	defer s.mu.Unlock()

	if err != nil {
		s.log.Error().Err(err).Str("dataset_id", datasetID).Msg("Question failed")
		s.transcript = append(s.transcript, Turn{Kind: TurnError, Text: FailureText, CreatedAt: s.now()})
	} else {
		s.transcript = append(s.transcript, Turn{
			Kind:      TurnAnswer,
			Text:      answer.Text,
			Source:    answer.Source,
			CreatedAt: s.now(),
		})
	}
	s.state = Idle
	s.awaiting = ""
	close(done)
}

// Wait blocks until no question is outstanding or ctx is done.
func (s *Session) Wait(ctx context.Context) error {
	s.mu.Lock()
	done := s.idle
	s.mu.Unlock()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// State returns the request state and the outstanding question, if any.
func (s *Session) State() (State, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state, s.awaiting
}

// Pending reports whether a question is outstanding.
func (s *Session) Pending() bool {
	st, _ := s.State()
	return st == Awaiting
}

// Transcript returns a copy of the turns in order.
func (s *Session) Transcript() []Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Turn(nil), s.transcript...)
}

// SuggestedPrompts returns example questions while the transcript is empty,
// and nil afterwards.
func (s *Session) SuggestedPrompts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.transcript) > 0 {
		return nil
	}
	return append([]string(nil), suggestedPrompts...)
}
