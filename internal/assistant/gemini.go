package assistant

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/dvloznov/cellsense/internal/conversation"
	"github.com/dvloznov/cellsense/internal/domain"
	"google.golang.org/genai"
)

// TextGenerator sends a prompt to a language model and returns its text.
type TextGenerator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// GeminiGenerator is the TextGenerator backed by the Gemini API.
type GeminiGenerator struct {
	client *genai.Client
	model  string
}

// NewGeminiGenerator creates a Gemini client. An empty apiKey falls back to
// the GOOGLE_API_KEY / GEMINI_API_KEY environment variables read by genai.
func NewGeminiGenerator(ctx context.Context, apiKey, model string) (*GeminiGenerator, error) {
	if model == "" {
		model = DefaultModelName
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:      apiKey,
		Backend:     genai.BackendGeminiAPI,
		HTTPOptions: genai.HTTPOptions{APIVersion: "v1"},
	})
	if err != nil {
		return nil, fmt.Errorf("NewGeminiGenerator: create genai client: %w", err)
	}
	return &GeminiGenerator{client: client, model: model}, nil
}

// Generate implements TextGenerator.
func (g *GeminiGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	contents := []*genai.Content{
		{
			Role:  "user",
			Parts: []*genai.Part{{Text: prompt}},
		},
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, nil)
	if err != nil {
		return "", fmt.Errorf("Generate: generate content: %w", err)
	}

	text := resp.Text()
	if text == "" {
		return "", fmt.Errorf("Generate: empty response from model")
	}
	return text, nil
}

// ModelAnswerer answers questions with a language model.
type ModelAnswerer struct {
	gen TextGenerator
}

// NewModelAnswerer creates an answerer over gen.
func NewModelAnswerer(gen TextGenerator) *ModelAnswerer {
	return &ModelAnswerer{gen: gen}
}

type modelReply struct {
	Answer  string   `json:"answer"`
	Columns []string `json:"columns"`
}

// Answer implements Answerer. A reply that is not the requested JSON is used
// verbatim as the answer text.
func (m *ModelAnswerer) Answer(ctx context.Context, ds *domain.Dataset, question string) (conversation.Answer, error) {
	prompt, err := buildQuestionPrompt(ds, question)
	if err != nil {
		return conversation.Answer{}, fmt.Errorf("ModelAnswerer.Answer: %w", err)
	}

	raw, err := m.gen.Generate(ctx, prompt)
	if err != nil {
		return conversation.Answer{}, fmt.Errorf("ModelAnswerer.Answer: %w", err)
	}

	var reply modelReply
	if err := json.Unmarshal([]byte(cleanModelJSON(raw)), &reply); err != nil || strings.TrimSpace(reply.Answer) == "" {
		return conversation.Answer{Text: strings.TrimSpace(raw), Source: SourceGemini}, nil
	}

	source := SourceGemini
	if len(reply.Columns) > 0 {
		source = SourceGemini + " (" + strings.Join(reply.Columns, ", ") + ")"
	}
	return conversation.Answer{Text: strings.TrimSpace(reply.Answer), Source: source}, nil
}
