package pipeline

import (
	"errors"
	"fmt"
	"strings"

	"github.com/voicio/voicepipe/pkg/model"
)

var ErrInvalidRequest = errors.New("invalid request")

// Request describes one independent unit of work: a single local audio or
// video file to turn into text. Requests share no state; the pipeline may
// process any number of them concurrently.
type Request struct {
	// AudioPath is the local audio or video file to process.
	AudioPath string
	Mode      model.Mode
	Language  model.Language
	Protocol  model.Protocol

	// TranscriptionProvider picks the stage-1 provider for the transcript
	// protocol. Empty uses the pipeline's fallback chain from its head.
	TranscriptionProvider string
	// TranscriptionModel overrides the stage-1 provider's default model.
	TranscriptionModel string
	// ProcessingProvider picks the stage-2 (and, for the direct protocol,
	// stage-1) provider. Empty means gemini.
	ProcessingProvider string
	// ProcessingModel overrides the stage-2 provider's default model.
	ProcessingModel string

	// ThinkingLevel is forwarded to providers that support an effort dial.
	ThinkingLevel model.ThinkingLevel
	// Author is stamped into diagram headers.
	Author string
}

func (r Request) Validate() error {
	if strings.TrimSpace(r.AudioPath) == "" {
		return fmt.Errorf("audio path is required: %w", ErrInvalidRequest)
	}
	if !r.Mode.Valid() {
		return fmt.Errorf("unsupported mode %q: %w", r.Mode, ErrInvalidRequest)
	}
	if !r.Protocol.Valid() {
		return fmt.Errorf("unsupported protocol %q: %w", r.Protocol, ErrInvalidRequest)
	}
	return nil
}

// Result is the outcome of a successfully processed request. Summary is
// empty for the asis and diagram modes; Transcript is always set on
// success. A hard failure returns an error and no Result, never a partial
// one.
type Result struct {
	RequestID  string
	Summary    string
	Transcript string

	// TranscriptionMetadata describes the stage-1 call that produced the
	// transcript, ProcessingMetadata the stage-2 transform when one ran.
	TranscriptionMetadata model.GenerationMetadata
	ProcessingMetadata    model.GenerationMetadata
}
