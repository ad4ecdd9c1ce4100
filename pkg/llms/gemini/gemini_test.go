package gemini

import (
	"testing"

	"github.com/stretchr/testify/suite"
	"google.golang.org/genai"

	"github.com/voicio/voicepipe/pkg/asset"
	"github.com/voicio/voicepipe/pkg/model"
)

type GeminiProviderSuite struct {
	suite.Suite
}

func TestGeminiProviderSuite(t *testing.T) {
	suite.Run(t, new(GeminiProviderSuite))
}

func (s *GeminiProviderSuite) TestNewAudioTranscriptionGeneratorEmptyInputReturnsError() {
	generator, err := NewAudioTranscriptionGenerator("   ", model.AudioOptions{})

	s.Require().Error(err)
	s.Nil(generator)
}

func (s *GeminiProviderSuite) TestNewStringContentGeneratorEmptyPromptReturnsError() {
	generator, err := NewStringContentGenerator(" ")

	s.Require().Error(err)
	s.Nil(generator)
}

func (s *GeminiProviderSuite) TestResolveAudioTranscriptionModelNameUsesDefault() {
	modelName := resolveAudioTranscriptionModelName(model.AudioOptions{})
	s.Equal(defaultGenerationModelName, modelName)
}

func (s *GeminiProviderSuite) TestResolveAudioTranscriptionModelNameUsesConfigValue() {
	resolved := resolveAudioTranscriptionModelName(model.AudioOptions{
		Model: "gemini-2.5-pro",
	})
	s.Equal("gemini-2.5-pro", resolved)
}

func (s *GeminiProviderSuite) TestResolveAudioMIMETypeUsesCommonMappings() {
	mimeType, err := resolveAudioMIMEType("example.m4a")
	s.Require().NoError(err)
	s.Equal("audio/mp4", mimeType)

	mimeType, err = resolveAudioMIMEType("voice.ogg")
	s.Require().NoError(err)
	s.Equal("audio/ogg", mimeType)
}

func (s *GeminiProviderSuite) TestResolveAudioMIMETypeUnsupportedExtensionReturnsError() {
	_, err := resolveAudioMIMEType("example.txt")
	s.Require().Error(err)
	s.Contains(err.Error(), "unsupported audio")
}

func (s *GeminiProviderSuite) TestBuildGenerateContentConfigMapsThinkingBudget() {
	level := model.ThinkingHigh
	config := buildGenerateContentConfig(model.GeneratorConfig{ThinkingLevel: &level}, nil)

	s.Require().NotNil(config.ThinkingConfig)
	s.Require().NotNil(config.ThinkingConfig.ThinkingBudget)
	s.Equal(level.TokenBudget(), *config.ThinkingConfig.ThinkingBudget)
}

func (s *GeminiProviderSuite) TestBuildGenerateContentConfigOmitsThinkingWhenUnset() {
	config := buildGenerateContentConfig(model.GeneratorConfig{}, nil)
	s.Nil(config.ThinkingConfig)
}

func (s *GeminiProviderSuite) TestBuildContentsWithContextSeparatesSystemInstruction() {
	systemInstruction, contents, count := buildContentsWithContext("the prompt", []*model.PromptContext{
		{MessageType: model.ContextMessageTypeSystem, Content: "always answer in Russian"},
		{MessageType: model.ContextMessageTypeHuman, Content: "transcript body"},
		nil,
		{MessageType: model.ContextMessageTypeHuman, Content: "   "},
	})

	s.Require().NotNil(systemInstruction)
	s.Equal(2, count)
	// human context plus the prompt itself
	s.Len(contents, 2)
}

func (s *GeminiProviderSuite) TestMapFileStateCoversTerminalStates() {
	s.Equal(asset.StateReady, mapFileState(genai.FileStateActive))
	s.Equal(asset.StateFailed, mapFileState(genai.FileStateFailed))
	s.Equal(asset.StateProcessing, mapFileState(genai.FileStateProcessing))
	s.Equal(asset.StateProcessing, mapFileState(genai.FileStateUnspecified))
}

func (s *GeminiProviderSuite) TestGenerateJSONSchemaDisallowsExtraProperties() {
	type diagramShape struct {
		DiagramType string `json:"diagram_type"`
		Title       string `json:"title"`
		MermaidCode string `json:"mermaid_code"`
	}

	schema, err := generateJSONSchema[diagramShape]()
	s.Require().NoError(err)

	s.Equal("object", schema["type"])
	s.Equal(false, schema["additionalProperties"])

	properties, ok := schema["properties"].(map[string]any)
	s.Require().True(ok)
	s.Contains(properties, "diagram_type")
	s.Contains(properties, "mermaid_code")
}
