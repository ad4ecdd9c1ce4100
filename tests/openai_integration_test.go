package tests

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/voicio/voicepipe/pkg/llms/openai"
	"github.com/voicio/voicepipe/pkg/model"
	"github.com/voicio/voicepipe/pkg/prompts"
)

type OpenAIIntegrationSuite struct {
	ExternalDependenciesSuite
	apiKey  string
	baseURL string
}

func (s *OpenAIIntegrationSuite) SetupSuite() {
	s.ExternalDependenciesSuite.SetupSuite()

	s.apiKey = strings.TrimSpace(os.Getenv("OPENAI_API_KEY"))
	s.baseURL = strings.TrimSpace(os.Getenv("OPENAI_BASE_URL"))
	if s.apiKey == "" {
		s.T().Skip("OPENAI_API_KEY is not set; skipping external dependency integration test")
	}
}

func (s *OpenAIIntegrationSuite) generationOpts() []model.GeneratorOption {
	opts := []model.GeneratorOption{
		model.WithAuthToken(s.apiKey),
		model.WithModel("gpt-5-mini"),
		model.WithThinkingLevel(model.ThinkingLow),
	}
	if s.baseURL != "" {
		opts = append(opts, model.WithURL(s.baseURL))
	}
	return opts
}

func (s *OpenAIIntegrationSuite) TestBulletSummaryTransform() {
	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)
	defer cancel()

	template, err := prompts.Resolve(model.ModeBullet, model.LanguageEnglish)
	require.NoError(s.T(), err)

	generator, err := openai.NewStringContentGenerator(template, s.generationOpts()...)
	require.NoError(s.T(), err)
	generator.AddPromptContext(ctx, model.ContextMessageTypeHuman,
		"Three things for tomorrow: call the vendor about pricing, book the standup room, and send Olga the draft contract.")

	summary, metadata, err := generator.Generate(ctx)
	require.NoError(s.T(), err)
	assert.NotEmpty(s.T(), strings.TrimSpace(summary))
	assert.Equal(s.T(), "openai", metadata[model.MetadataKeyProvider])
	assert.NotEmpty(s.T(), metadata[model.MetadataKeyResponseID])
}

func (s *OpenAIIntegrationSuite) TestWhisperTranscription() {
	if _, err := os.Stat(audioFixturePath); err != nil {
		s.T().Skipf("%s is not accessible (%v); skipping openai audio integration test", audioFixturePath, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 180*time.Second)
	defer cancel()

	generator, err := openai.NewAudioTranscriptionGenerator(audioFixturePath, model.AudioOptions{
		AuthToken: s.apiKey,
		URL:       s.baseURL,
		Language:  model.LanguageRussian,
	})
	require.NoError(s.T(), err)

	transcript, metadata, err := generator.Generate(ctx)
	require.NoError(s.T(), err)
	assert.NotEmpty(s.T(), strings.TrimSpace(transcript))
	assert.Equal(s.T(), "openai", metadata[model.MetadataKeyProvider])
}

func TestOpenAIIntegrationSuite(t *testing.T) {
	suite.Run(t, new(OpenAIIntegrationSuite))
}
