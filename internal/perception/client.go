// Package perception is the engine's LLM callable: a small provider
// abstraction over OpenAI, Anthropic, Gemini, and Ollama, plus a
// deterministic mock used as the default provider and in tests.
package perception

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// Provider identifies an LLM backend.
type Provider string

const (
	ProviderOpenAI    Provider = "openai"
	ProviderAnthropic Provider = "anthropic"
	ProviderGemini    Provider = "gemini"
	ProviderOllama    Provider = "ollama"
	ProviderDefault   Provider = "default"
)

// LLMClient is the callable every stage uses. Implementations must honor
// context cancellation.
type LLMClient interface {
	Complete(ctx context.Context, prompt string) (string, error)
	CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// CallParams carries optional advisor parameters for a call.
type CallParams struct {
	ToolNames   []string
	Temperature float64
	MaxTokens   int
}

// Call invokes the client with tool names and advisor params folded into the
// system prompt. Providers without native tool APIs still see the catalog.
func Call(ctx context.Context, client LLMClient, systemPrompt, userPrompt string, params CallParams) (string, error) {
	if client == nil {
		return "", fmt.Errorf("no LLM client configured")
	}
	if len(params.ToolNames) > 0 {
		systemPrompt += "\n\nAvailable tools: " + strings.Join(params.ToolNames, ", ")
	}
	return client.CompleteWithSystem(ctx, systemPrompt, userPrompt)
}

// =============================================================================
// MOCK CLIENT
// =============================================================================

// MockClient is the "default" provider: deterministic, offline, and
// scriptable. When Script is empty it echoes a canned summary of the prompt.
type MockClient struct {
	mu     sync.Mutex
	Script []string // Responses returned in order, then the canned fallback.
	Calls  []string // User prompts observed, for assertions.
	Err    error    // When set, every call fails with this error.
}

// NewMockClient creates an empty mock.
func NewMockClient(script ...string) *MockClient {
	return &MockClient{Script: script}
}

// Complete implements LLMClient.
func (m *MockClient) Complete(ctx context.Context, prompt string) (string, error) {
	return m.CompleteWithSystem(ctx, "", prompt)
}

// CompleteWithSystem implements LLMClient.
func (m *MockClient) CompleteWithSystem(ctx context.Context, _, userPrompt string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return "", m.Err
	}
	m.Calls = append(m.Calls, userPrompt)
	if len(m.Script) > 0 {
		next := m.Script[0]
		m.Script = m.Script[1:]
		return next, nil
	}
	head := userPrompt
	if len(head) > 120 {
		head = head[:120]
	}
	return "Summary: " + head, nil
}
