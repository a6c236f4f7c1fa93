package assistant

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/dvloznov/cellsense/internal/conversation"
	"github.com/dvloznov/cellsense/internal/domain"
	"github.com/rs/zerolog"
)

// MockDatasetSource is a mock implementation of DatasetSource for testing.
type MockDatasetSource struct {
	GetFunc func(ctx context.Context, id string) (*domain.Dataset, error)
}

func (m *MockDatasetSource) Get(ctx context.Context, id string) (*domain.Dataset, error) {
	return m.GetFunc(ctx, id)
}

// MockTextGenerator is a mock implementation of TextGenerator for testing.
type MockTextGenerator struct {
	GenerateFunc func(ctx context.Context, prompt string) (string, error)
}

func (m *MockTextGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	return m.GenerateFunc(ctx, prompt)
}

// MockAnswerer is a mock implementation of Answerer for testing.
type MockAnswerer struct {
	AnswerFunc func(ctx context.Context, ds *domain.Dataset, question string) (conversation.Answer, error)
}

func (m *MockAnswerer) Answer(ctx context.Context, ds *domain.Dataset, question string) (conversation.Answer, error) {
	return m.AnswerFunc(ctx, ds, question)
}

func financeDataset() *domain.Dataset {
	return &domain.Dataset{
		ID:       "ds-1",
		Filename: "budget.xlsx",
		Columns:  []string{"Date", "Category", "Amount"},
		RowCount: 4,
		Records: []domain.Record{
			{"Date": "2024-01-01", "Category": "Salary", "Amount": 3000.0},
			{"Date": "2024-01-02", "Category": "Rent", "Amount": -1200.0},
			{"Date": "2024-01-03", "Category": "Food", "Amount": -85.4},
			{"Date": "2024-01-04", "Category": "Food", "Amount": -14.6},
		},
		Analysis: domain.Analysis{
			TotalRows: 4,
			FinancialSummary: &domain.FinancialSummary{
				TotalIncome:   3000,
				TotalExpenses: 1300,
				NetBalance:    1700,
				Categories:    []domain.CategoryCount{{Name: "Food", Count: 2}},
			},
		},
	}
}

func TestRuleBased_Answer(t *testing.T) {
	ds := financeDataset()

	tests := []struct {
		question string
		contains string
		wantErr  bool
	}{
		{"What's my total income?", "3000.00", false},
		{"How much did I spend?", "1300.00", false},
		{"What's my savings balance?", "1700.00", false},
		{"What are my top spending categories?", "Salary (3000.00), Rent (1200.00), Food (100.00)", false},
		{"Show me a summary of my finances", "budget.xlsx has 4 rows", false},
		{"How many rows are there?", "4 rows across 3 columns", false},
		{"What is the weather like?", "", true},
	}

	r := NewRuleBased()
	for _, tt := range tests {
		t.Run(tt.question, func(t *testing.T) {
			got, err := r.Answer(context.Background(), ds, tt.question)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Answer() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				if !errors.Is(err, ErrUnanswerable) {
					t.Errorf("error = %v, want ErrUnanswerable", err)
				}
				return
			}
			if !strings.Contains(got.Text, tt.contains) {
				t.Errorf("Answer() = %q, want to contain %q", got.Text, tt.contains)
			}
			if got.Source != SourceAnalysis {
				t.Errorf("Source = %q, want %q", got.Source, SourceAnalysis)
			}
		})
	}
}

func TestRuleBased_NoSummary(t *testing.T) {
	ds := financeDataset()
	ds.Analysis.FinancialSummary = nil

	_, err := NewRuleBased().Answer(context.Background(), ds, "What's my total income?")
	if !errors.Is(err, ErrUnanswerable) {
		t.Errorf("error = %v, want ErrUnanswerable", err)
	}
}

func TestModelAnswerer(t *testing.T) {
	tests := []struct {
		name       string
		reply      string
		genErr     error
		wantText   string
		wantSource string
		wantErr    bool
	}{
		{
			name:       "strict json",
			reply:      `{"answer": "You spent 1300.", "columns": ["Amount"]}`,
			wantText:   "You spent 1300.",
			wantSource: "gemini (Amount)",
		},
		{
			name:       "fenced json",
			reply:      "```json\n{\"answer\": \"Fine.\", \"columns\": []}\n```",
			wantText:   "Fine.",
			wantSource: SourceGemini,
		},
		{
			name:       "plain text",
			reply:      "  Just text.  ",
			wantText:   "Just text.",
			wantSource: SourceGemini,
		},
		{
			name:    "generator error",
			genErr:  errors.New("quota"),
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var prompt string
			gen := &MockTextGenerator{
				GenerateFunc: func(ctx context.Context, p string) (string, error) {
					prompt = p
					return tt.reply, tt.genErr
				},
			}
			got, err := NewModelAnswerer(gen).Answer(context.Background(), financeDataset(), "How much?")
			if (err != nil) != tt.wantErr {
				t.Fatalf("Answer() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if got.Text != tt.wantText || got.Source != tt.wantSource {
				t.Errorf("Answer() = %+v, want text %q source %q", got, tt.wantText, tt.wantSource)
			}
			if !strings.Contains(prompt, "Question: How much?") || !strings.Contains(prompt, "Columns: Date, Category, Amount") {
				t.Errorf("prompt missing question or columns:\n%s", prompt)
			}
		})
	}
}

func TestService_Ask(t *testing.T) {
	source := &MockDatasetSource{
		GetFunc: func(ctx context.Context, id string) (*domain.Dataset, error) {
			if id != "ds-1" {
				return nil, errors.New("not found")
			}
			return financeDataset(), nil
		},
	}
	failing := &MockAnswerer{
		AnswerFunc: func(ctx context.Context, ds *domain.Dataset, q string) (conversation.Answer, error) {
			return conversation.Answer{}, errors.New("model down")
		},
	}
	log := zerolog.New(io.Discard)

	t.Run("falls back to next answerer", func(t *testing.T) {
		svc := NewService(source, log, failing, NewRuleBased())
		got, err := svc.Ask(context.Background(), "ds-1", "What's my total income?")
		if err != nil {
			t.Fatalf("Ask: %v", err)
		}
		if got.Source != SourceAnalysis {
			t.Errorf("Source = %q", got.Source)
		}
	})

	t.Run("all answerers fail", func(t *testing.T) {
		svc := NewService(source, log, NewRuleBased())
		_, err := svc.Ask(context.Background(), "ds-1", "Tell me a joke")
		if !errors.Is(err, ErrUnanswerable) {
			t.Errorf("error = %v, want ErrUnanswerable", err)
		}
	})

	t.Run("unknown dataset", func(t *testing.T) {
		svc := NewService(source, log, NewRuleBased())
		if _, err := svc.Ask(context.Background(), "nope", "income?"); err == nil {
			t.Error("expected error for unknown dataset")
		}
	})

	t.Run("no answerers", func(t *testing.T) {
		svc := NewService(source, log)
		if _, err := svc.Ask(context.Background(), "ds-1", "income?"); err == nil {
			t.Error("expected error without answerers")
		}
	})
}

func TestCleanModelJSON(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{`{"a":1}`, `{"a":1}`},
		{"```json\n{\"a\":1}\n```", `{"a":1}`},
		{"Sure! {\"a\":1} hope that helps", `{"a":1}`},
	}
	for _, tt := range tests {
		if got := cleanModelJSON(tt.in); got != tt.want {
			t.Errorf("cleanModelJSON(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
