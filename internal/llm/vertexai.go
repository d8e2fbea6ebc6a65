package llm

import (
	"context"

	"cloud.google.com/go/vertexai/genai"
	"github.com/rotisserie/eris"
)

// VertexAIClient wraps the Vertex AI Gemini API
type VertexAIClient struct {
	client    *genai.Client
	model     *genai.GenerativeModel
	projectID string
	location  string
}

// NewVertexAIClient creates a new Vertex AI client for a project and region
func NewVertexAIClient(ctx context.Context, projectID, location string, opts Options) (*VertexAIClient, error) {
	if projectID == "" {
		return nil, eris.New("llm: vertex project is required")
	}
	if location == "" {
		location = "us-central1"
	}
	opts = opts.withDefaults()

	client, err := genai.NewClient(ctx, projectID, location)
	if err != nil {
		return nil, eris.Wrap(err, "llm: create vertex ai client")
	}

	model := client.GenerativeModel(opts.Model)

	// Low temperature keeps mapping suggestions stable between runs
	model.SetTemperature(opts.Temperature)
	model.SetTopK(40)
	model.SetTopP(0.95)
	model.SetMaxOutputTokens(opts.MaxOutputTokens)

	return &VertexAIClient{
		client:    client,
		model:     model,
		projectID: projectID,
		location:  location,
	}, nil
}

// Complete sends a prompt to the model and returns the concatenated text parts
func (v *VertexAIClient) Complete(ctx context.Context, prompt string) (string, error) {
	resp, err := v.model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", eris.Wrap(err, "llm: generate content")
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", eris.New("llm: no response candidates returned")
	}

	var result string
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			result += string(text)
		}
	}

	return result, nil
}

// Close closes the Vertex AI client
func (v *VertexAIClient) Close() error {
	return v.client.Close()
}
