package model

import "context"

// AudioTranscriptionGenerator turns one finite audio artifact into text.
// Implementations wrap either a synchronous provider call or an
// upload-and-poll file lifecycle; the caller does not see the difference.
type AudioTranscriptionGenerator interface {
	Generate(ctx context.Context) (string, GenerationMetadata, error)
}

// NewAudioTranscriptionGeneratorFunc is the factory each speech-capable
// provider implements.
type NewAudioTranscriptionGeneratorFunc func(filePath string, opts AudioOptions) (AudioTranscriptionGenerator, error)

type AudioOptions struct {
	URL       string
	AuthToken string
	Model     string
	// Language hints the expected speech language to providers that accept
	// one (ISO-639-1). Empty means autodetect.
	Language Language
	// Prompt optionally overrides the provider's default transcription prompt.
	Prompt string
	// ThinkingLevel is forwarded to providers that support an effort dial.
	ThinkingLevel ThinkingLevel
}
