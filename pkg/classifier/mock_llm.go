package classifier

import (
	"context"

	"github.com/tmc/langchaingo/llms"
)

// MockLLM is a mock implementation of the LLM interface for testing.
type MockLLM struct {
	Response string
	Err      error
	Delay    func(ctx context.Context) error
}

// GenerateContent simulates a model response, an error, or a slow backend.
func (m *MockLLM) GenerateContent(ctx context.Context, messages []llms.MessageContent, opts ...llms.CallOption) (*llms.ContentResponse, error) {
	if m.Delay != nil {
		if err := m.Delay(ctx); err != nil {
			return nil, err
		}
	}
	if m.Err != nil {
		return nil, m.Err
	}
	return &llms.ContentResponse{
		Choices: []*llms.ContentChoice{
			{Content: m.Response},
		},
	}, nil
}

func (m *MockLLM) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	if m.Err != nil {
		return "", m.Err
	}
	return m.Response, nil
}
