package agent

import (
	"context"
	"fmt"
	"sync"

	"google.golang.org/genai"
)

// GeminiProvider creates chat sessions against the Gemini API.
// Clients are cached per API key, so rotating the key in the secrets file
// takes effect on the next call.
type GeminiProvider struct {
	model string
	keys  KeySource

	mu      sync.Mutex
	clients map[string]*genai.Client
}

// NewGeminiProvider creates a provider for the given model name.
func NewGeminiProvider(model string, keys KeySource) *GeminiProvider {
	if model == "" {
		model = DefaultConfig().ModelName
	}
	return &GeminiProvider{
		model:   model,
		keys:    keys,
		clients: make(map[string]*genai.Client),
	}
}

// Name implements Provider.
func (p *GeminiProvider) Name() string {
	return "gemini"
}

// Generator implements Provider.
func (p *GeminiProvider) Generator(ctx context.Context) (Generator, error) {
	if p.keys == nil {
		return nil, ErrMissingCredential
	}
	key, ok := p.keys.Lookup(APIKeyName)
	if !ok {
		return nil, ErrMissingCredential
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	client, ok := p.clients[key]
	if !ok {
		var err error
		client, err = genai.NewClient(ctx, &genai.ClientConfig{
			APIKey:  key,
			Backend: genai.BackendGeminiAPI,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create GenAI client: %w", err)
		}
		p.clients[key] = client
	}
	return &geminiGenerator{client: client, model: p.model}, nil
}

type geminiGenerator struct {
	client *genai.Client
	model  string
}

func (g *geminiGenerator) Generate(ctx context.Context, req GenerateRequest) (string, error) {
	history := make([]*genai.Content, 0, len(req.History))
	for _, m := range req.History {
		history = append(history, genai.NewContentFromText(m.Text, genai.Role(m.Role)))
	}

	var config *genai.GenerateContentConfig
	if req.System != "" {
		config = &genai.GenerateContentConfig{
			SystemInstruction: genai.NewContentFromText(req.System, genai.RoleUser),
		}
	}

	chat, err := g.client.Chats.Create(ctx, g.model, config, history)
	if err != nil {
		return "", fmt.Errorf("start chat: %w", err)
	}
	resp, err := chat.SendMessage(ctx, genai.Part{Text: req.Message})
	if err != nil {
		return "", err
	}
	if resp == nil {
		return "", nil
	}
	return resp.Text(), nil
}
