package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"realty-agent/internal/integrations/paramstore"
)

const (
	defaultModelID  = "gemini-2.5-flash"
	temperature     = 0.5
	maxOutputTokens = 1000
)

type Getter interface {
	GetParameter(ctx context.Context, name string) (string, error)
}

// Client wraps the Gemini API for single-turn generation with a per-request
// system instruction.
type Client struct {
	client  *genai.Client
	modelID string
}

// NewClient builds a Gemini client. The API key is read from the parameter
// store under <prefix>/gemini-api-key as a {"token": "..."} payload; the
// model ID from <prefix>/config/gemini_model, falling back to a default.
func NewClient(ctx context.Context, ps Getter, paramPrefix string) (*Client, error) {
	if ps == nil {
		return nil, errors.New("gemini: paramstore getter must not be nil")
	}
	paramPrefix = strings.TrimRight(strings.TrimSpace(paramPrefix), "/")
	if paramPrefix == "" {
		return nil, errors.New("gemini: parameter prefix must not be empty")
	}

	apiKey, err := fetchAPIKey(ctx, ps, paramPrefix+"/gemini-api-key")
	if err != nil {
		return nil, err
	}
	modelID, err := ps.GetParameter(ctx, paramPrefix+"/config/gemini_model")
	if err != nil || strings.TrimSpace(modelID) == "" {
		modelID = defaultModelID
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("gemini: create client: %w", err)
	}
	return &Client{client: client, modelID: modelID}, nil
}

// Generate sends one message with the given system instruction and returns
// the raw response text. No schema is enforced here; callers must treat the
// result as untrusted.
func (c *Client) Generate(ctx context.Context, systemInstruction, message string) (string, error) {
	if strings.TrimSpace(message) == "" {
		return "", errors.New("gemini: message must not be empty")
	}

	model := c.client.GenerativeModel(c.modelID)
	model.SetTemperature(temperature)
	model.SetMaxOutputTokens(maxOutputTokens)
	if strings.TrimSpace(systemInstruction) != "" {
		model.SystemInstruction = genai.NewUserContent(genai.Text(systemInstruction))
	}

	resp, err := model.GenerateContent(ctx, genai.Text(message))
	if err != nil {
		return "", fmt.Errorf("gemini: generate content: %w", err)
	}
	return responseText(resp)
}

// responseText concatenates the text parts of the first candidate.
func responseText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		return "", errors.New("gemini: no candidates in response")
	}
	candidate := resp.Candidates[0]
	if candidate.Content == nil || len(candidate.Content.Parts) == 0 {
		return "", errors.New("gemini: empty content in response")
	}

	var b strings.Builder
	for _, part := range candidate.Content.Parts {
		if text, ok := part.(genai.Text); ok {
			b.WriteString(string(text))
		}
	}
	if b.Len() == 0 {
		return "", errors.New("gemini: no text parts in response")
	}
	return b.String(), nil
}

func fetchAPIKey(ctx context.Context, ps Getter, name string) (string, error) {
	key, err := paramstore.Token(ctx, ps, name)
	if err != nil {
		return "", fmt.Errorf("gemini: fetch api key: %w", err)
	}
	return key, nil
}
