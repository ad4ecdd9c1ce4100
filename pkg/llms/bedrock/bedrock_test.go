package bedrock

import (
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/voicio/voicepipe/pkg/model"
)

type BedrockProviderSuite struct {
	suite.Suite
}

func TestBedrockProviderSuite(t *testing.T) {
	suite.Run(t, new(BedrockProviderSuite))
}

func (s *BedrockProviderSuite) TestNewStringContentGeneratorEmptyPromptReturnsError() {
	generator, err := NewStringContentGenerator("   ")

	s.Require().Error(err)
	s.Nil(generator)
}

func (s *BedrockProviderSuite) TestResolveModelNameUsesDefault() {
	s.Equal(defaultModelName, resolveModelName(model.GeneratorConfig{}))
}

func (s *BedrockProviderSuite) TestBuildMessagesWithContextRoutesRoles() {
	system, messages, count := buildMessagesWithContext("the prompt", []*model.PromptContext{
		{MessageType: model.ContextMessageTypeSystem, Content: "mode template"},
		{MessageType: model.ContextMessageTypeHuman, Content: "transcript"},
		{MessageType: model.ContextMessageTypeAssistant, Content: "prior answer"},
		nil,
	})

	s.Equal(3, count)
	s.Len(system, 1)
	// human + assistant contexts plus the prompt itself
	s.Len(messages, 3)
}

func (s *BedrockProviderSuite) TestBuildInferenceConfigNilWhenUnset() {
	s.Nil(buildInferenceConfig(model.GeneratorConfig{}))
}

func (s *BedrockProviderSuite) TestBuildInferenceConfigMapsValues() {
	temperature := 0.2
	maxTokens := 2048
	inference := buildInferenceConfig(model.GeneratorConfig{
		Temperature: &temperature,
		MaxTokens:   &maxTokens,
	})

	s.Require().NotNil(inference)
	s.InDelta(0.2, float64(*inference.Temperature), 1e-6)
	s.Equal(int32(2048), *inference.MaxTokens)
}

func (s *BedrockProviderSuite) TestExtractJSONPayloadStripsFences() {
	payload := extractJSONPayload("```json\n{\"title\": \"x\"}\n```")
	s.Equal(`{"title": "x"}`, payload)
}

func (s *BedrockProviderSuite) TestExtractJSONPayloadFindsEmbeddedObject() {
	payload := extractJSONPayload("Sure, here it is: {\"a\": 1} hope that helps")
	s.Equal(`{"a": 1}`, payload)
}
