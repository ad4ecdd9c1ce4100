package diagram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/voicio/voicepipe/pkg/model"
)

// ErrInvalidPayload marks a generation response that cannot be turned into
// a diagram payload. The caller decides whether to retry generation.
var ErrInvalidPayload = errors.New("invalid diagram payload")

var (
	fencedJSONPattern = regexp.MustCompile("```(?:json)?\\s*({[\\s\\S]*?})\\s*```")
	bareJSONPattern   = regexp.MustCompile(`{[\s\S]*}`)
)

// ParsePayload extracts the diagram payload from free-form model output.
// Conversational wrapping such as code fences or prose around the JSON
// object is stripped before parsing.
func ParsePayload(raw string) (*Payload, error) {
	text := strings.TrimSpace(raw)
	if text == "" {
		return nil, fmt.Errorf("empty generation response: %w", ErrInvalidPayload)
	}

	if match := fencedJSONPattern.FindStringSubmatch(text); match != nil {
		text = match[1]
	}

	var payload Payload
	if err := json.Unmarshal([]byte(text), &payload); err != nil {
		match := bareJSONPattern.FindString(text)
		if match == "" {
			return nil, fmt.Errorf("no JSON object in generation response: %w", ErrInvalidPayload)
		}
		if err := json.Unmarshal([]byte(match), &payload); err != nil {
			return nil, fmt.Errorf("malformed JSON in generation response: %w", ErrInvalidPayload)
		}
	}

	if err := payload.Validate(); err != nil {
		return nil, err
	}
	return &payload, nil
}

// NewTextPayloadGenerator adapts a plain-text generator factory for
// providers without a native structured-output surface: the model's
// free-form reply is run through ParsePayload.
func NewTextPayloadGenerator(newText model.NewStringContentGeneratorFunc) model.NewStructureContentGeneratorFunc[Payload] {
	return func(prompt string, opts ...model.GeneratorOption) (model.ContentGenerator[Payload], error) {
		inner, err := newText(prompt, opts...)
		if err != nil {
			return nil, err
		}
		return &textPayloadGenerator{inner: inner}, nil
	}
}

type textPayloadGenerator struct {
	inner model.ContentGenerator[string]
}

func (g *textPayloadGenerator) Generate(ctx context.Context) (Payload, model.GenerationMetadata, error) {
	raw, metadata, err := g.inner.Generate(ctx)
	if err != nil {
		return Payload{}, metadata, err
	}

	payload, err := ParsePayload(raw)
	if err != nil {
		return Payload{}, metadata, err
	}
	return *payload, metadata, nil
}

func (g *textPayloadGenerator) AddPromptContext(ctx context.Context, messageType model.ContextMessageType, content string) {
	g.inner.AddPromptContext(ctx, messageType, content)
}

// Validate checks the payload for the required fields. The diagram kind may
// be defaulted downstream, but a missing title or code body means the model
// did not follow the response contract.
func (p Payload) Validate() error {
	var missing []string
	if strings.TrimSpace(p.DiagramType) == "" {
		missing = append(missing, "diagram_type")
	}
	if strings.TrimSpace(p.Title) == "" {
		missing = append(missing, "title")
	}
	if strings.TrimSpace(p.MermaidCode) == "" {
		missing = append(missing, "mermaid_code")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required fields %s: %w", strings.Join(missing, ", "), ErrInvalidPayload)
	}
	return nil
}
