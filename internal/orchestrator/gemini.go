package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// Gemini generates resolver output with the Gemini API.
type Gemini struct {
	client      *genai.Client
	model       string
	temperature float32
}

func NewGemini(ctx context.Context, apiKey, model string) (*Gemini, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("gemini: API key is missing")
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("gemini: create client: %w", err)
	}
	if strings.TrimSpace(model) == "" {
		model = "gemini-2.5-flash"
	}
	return &Gemini{client: client, model: model, temperature: 0.2}, nil
}

func (g *Gemini) Close() error {
	return g.client.Close()
}

func (g *Gemini) Generate(ctx context.Context, in GenerateInput) (string, error) {
	model := g.client.GenerativeModel(g.model)
	model.SetTemperature(g.temperature)
	model.ResponseMIMEType = "application/json"
	model.ResponseSchema = geminiResponseSchema()
	model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(in.System)}}

	session := model.StartChat()
	for _, ex := range in.History {
		role := "user"
		if ex.Role == "assistant" {
			role = "model"
		}
		session.History = append(session.History, &genai.Content{
			Role:  role,
			Parts: []genai.Part{genai.Text(ex.Text)},
		})
	}

	resp, err := session.SendMessage(ctx, genai.Text(in.Prompt))
	if err != nil {
		return "", fmt.Errorf("gemini generate error: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", errors.New("gemini returned no candidates")
	}
	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			sb.WriteString(string(text))
		}
	}
	return sb.String(), nil
}

func geminiResponseSchema() *genai.Schema {
	agents := make([]string, 0, len(KnownAgents))
	for _, id := range KnownAgents {
		agents = append(agents, string(id))
	}
	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"thought_process": {Type: genai.TypeString},
			"plan": {
				Type:  genai.TypeArray,
				Items: &genai.Schema{Type: genai.TypeString, Format: "enum", Enum: agents},
			},
			"response_to_user": {Type: genai.TypeString},
			"message_type": {
				Type:   genai.TypeString,
				Format: "enum",
				Enum:   []string{string(RenderText), string(RenderQRCode)},
			},
		},
		Required: []string{"thought_process", "plan", "response_to_user"},
	}
}
