package model

import "strings"

// Mode is the requested shape of the final text output.
type Mode string

const (
	ModeBrief      Mode = "brief"
	ModeDetailed   Mode = "detailed"
	ModeBullet     Mode = "bullet"
	ModeCombined   Mode = "combined"
	// ModeAsIs returns a cleaned transcript with no summary.
	ModeAsIs       Mode = "asis"
	ModeUnfiltered Mode = "unfiltered"
	// ModeDiagram stops after transcription; diagram construction is a
	// separate downstream pipeline consuming the transcript.
	ModeDiagram Mode = "diagram"
)

func SupportedModes() []Mode {
	return []Mode{
		ModeBrief,
		ModeDetailed,
		ModeBullet,
		ModeCombined,
		ModeAsIs,
		ModeUnfiltered,
		ModeDiagram,
	}
}

func (m Mode) Valid() bool {
	for _, candidate := range SupportedModes() {
		if m == candidate {
			return true
		}
	}
	return false
}

// ProducesSummary reports whether the mode yields a summary distinct from
// the transcript.
func (m Mode) ProducesSummary() bool {
	return m != ModeAsIs && m != ModeDiagram
}

// Language is the requested output language.
type Language string

const (
	LanguageEnglish Language = "en"
	LanguageRussian Language = "ru"
	LanguageKazakh  Language = "kk"

	DefaultLanguage = LanguageRussian
)

// Normalize lowercases the code and falls back to the default for
// unknown values.
func (l Language) Normalize() Language {
	switch Language(strings.ToLower(strings.TrimSpace(string(l)))) {
	case LanguageEnglish:
		return LanguageEnglish
	case LanguageRussian:
		return LanguageRussian
	case LanguageKazakh:
		return LanguageKazakh
	}
	return DefaultLanguage
}

// Protocol selects the processing strategy.
type Protocol string

const (
	// ProtocolDirect runs a single model against the audio for both
	// transcription and mode transformation.
	ProtocolDirect Protocol = "direct"
	// ProtocolTranscript splits transcription and mode transformation into
	// independently model-selectable stages.
	ProtocolTranscript Protocol = "transcript"
)

func (p Protocol) Valid() bool {
	return p == ProtocolDirect || p == ProtocolTranscript
}

// ThinkingLevel is a provider-specific effort/quality dial. Providers without
// such a concept ignore it.
type ThinkingLevel string

const (
	ThinkingOff     ThinkingLevel = "off"
	ThinkingLow     ThinkingLevel = "low"
	ThinkingMedium  ThinkingLevel = "medium"
	ThinkingHigh    ThinkingLevel = "high"
	ThinkingDynamic ThinkingLevel = "dynamic"
)

// TokenBudget maps the level to a token budget as the Gemini family counts
// it. -1 asks the provider to decide dynamically.
func (t ThinkingLevel) TokenBudget() int32 {
	switch t {
	case ThinkingOff:
		return 0
	case ThinkingLow:
		return 512
	case ThinkingMedium:
		return 1024
	case ThinkingHigh:
		return 2048
	case ThinkingDynamic:
		return -1
	}
	return 1024
}
