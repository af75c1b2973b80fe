package orchestrator

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// responseSchema is the contract a live resolver must satisfy. Plan entries
// are restricted to the closed agent set.
const responseSchema = `{
  "type": "object",
  "required": ["thought_process", "plan", "response_to_user"],
  "properties": {
    "thought_process": {"type": "string"},
    "plan": {
      "type": "array",
      "items": {
        "type": "string",
        "enum": ["inventory_agent", "recommendation_agent", "payment_agent", "fulfillment_agent", "loyalty_agent"]
      }
    },
    "response_to_user": {"type": "string"},
    "message_type": {"type": "string", "enum": ["text", "qr_code"]}
  }
}`

var (
	ErrEmptyOutput    = errors.New("resolver output is empty")
	ErrNoJSONObject   = errors.New("resolver output has no JSON object")
	ErrSchemaMismatch = errors.New("resolver output does not match schema")
)

type wireResponse struct {
	ThoughtProcess string   `json:"thought_process"`
	Plan           []string `json:"plan"`
	ResponseToUser string   `json:"response_to_user"`
	MessageType    string   `json:"message_type,omitempty"`
}

// SchemaValidator checks raw model output against the response contract.
type SchemaValidator struct {
	schema *gojsonschema.Schema
}

func NewSchemaValidator() (*SchemaValidator, error) {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(responseSchema))
	if err != nil {
		return nil, fmt.Errorf("compile response schema: %w", err)
	}
	return &SchemaValidator{schema: schema}, nil
}

// Decode extracts the JSON object from raw, validates it and converts it.
func (v *SchemaValidator) Decode(raw string) (Response, error) {
	doc, err := extractJSONObject(raw)
	if err != nil {
		return Response{}, err
	}
	result, err := v.schema.Validate(gojsonschema.NewStringLoader(doc))
	if err != nil {
		return Response{}, fmt.Errorf("validate resolver output: %w", err)
	}
	if !result.Valid() {
		details := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			details = append(details, desc.String())
		}
		return Response{}, fmt.Errorf("%w: %s", ErrSchemaMismatch, strings.Join(details, "; "))
	}
	var wire wireResponse
	if err := json.Unmarshal([]byte(doc), &wire); err != nil {
		return Response{}, fmt.Errorf("decode resolver output: %w", err)
	}
	resp := Response{
		Narration: wire.ThoughtProcess,
		UserText:  wire.ResponseToUser,
		Render:    RenderText,
	}
	if wire.MessageType == string(RenderQRCode) {
		resp.Render = RenderQRCode
	}
	for _, name := range wire.Plan {
		resp.Plan = append(resp.Plan, AgentID(name))
	}
	return resp, nil
}

// extractJSONObject keeps the text between the first '{' and the last '}' so
// markdown fences and preambles around the payload are ignored.
func extractJSONObject(raw string) (string, error) {
	text := strings.TrimSpace(raw)
	if text == "" {
		return "", ErrEmptyOutput
	}
	first := strings.Index(text, "{")
	last := strings.LastIndex(text, "}")
	if first == -1 || last <= first {
		return "", ErrNoJSONObject
	}
	return text[first : last+1], nil
}
