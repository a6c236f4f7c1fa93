// Package assistant answers free-text questions about an uploaded dataset.
package assistant

import (
	"context"
	"errors"
	"fmt"

	"github.com/dvloznov/cellsense/internal/conversation"
	"github.com/dvloznov/cellsense/internal/domain"
	"github.com/rs/zerolog"
)

// ErrUnanswerable is returned by an Answerer that cannot handle a question.
var ErrUnanswerable = errors.New("question not answerable")

// Answerer answers a question about a loaded dataset.
type Answerer interface {
	Answer(ctx context.Context, ds *domain.Dataset, question string) (conversation.Answer, error)
}

// DatasetSource loads datasets by ID. store.DatasetStore satisfies it.
type DatasetSource interface {
	Get(ctx context.Context, id string) (*domain.Dataset, error)
}

// Service resolves the dataset and tries each answerer in order until one
// succeeds. It implements conversation.Asker.
type Service struct {
	datasets  DatasetSource
	answerers []Answerer
	log       zerolog.Logger
}

// NewService creates a service. At least one answerer is required.
func NewService(datasets DatasetSource, log zerolog.Logger, answerers ...Answerer) *Service {
	return &Service{
		datasets:  datasets,
		answerers: answerers,
		log:       log,
	}
}

// Ask implements conversation.Asker.
func (s *Service) Ask(ctx context.Context, datasetID, question string) (conversation.Answer, error) {
	if len(s.answerers) == 0 {
		return conversation.Answer{}, fmt.Errorf("Ask: no answerers configured")
	}

	ds, err := s.datasets.Get(ctx, datasetID)
	if err != nil {
		return conversation.Answer{}, fmt.Errorf("Ask: load dataset: %w", err)
	}

	var lastErr error
	for i, a := range s.answerers {
		answer, err := a.Answer(ctx, ds, question)
		if err == nil {
			return answer, nil
		}
		lastErr = err
		if !errors.Is(err, ErrUnanswerable) {
			s.log.Warn().Err(err).Int("answerer", i).Str("dataset_id", datasetID).Msg("Answerer failed, trying next")
		}
	}
	return conversation.Answer{}, fmt.Errorf("Ask: %w", lastErr)
}

// Ensure Service implements conversation.Asker.
var _ conversation.Asker = (*Service)(nil)
