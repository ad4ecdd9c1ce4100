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

	"github.com/voicio/voicepipe/pkg/llms/deepgram"
	"github.com/voicio/voicepipe/pkg/model"
)

type DeepgramIntegrationSuite struct {
	ExternalDependenciesSuite
	apiKey string
}

func (s *DeepgramIntegrationSuite) SetupSuite() {
	s.ExternalDependenciesSuite.SetupSuite()

	s.apiKey = strings.TrimSpace(os.Getenv("DEEPGRAM_API_KEY"))
	if s.apiKey == "" {
		s.T().Skip("DEEPGRAM_API_KEY is not set; skipping external dependency integration test")
	}
	if _, err := os.Stat(audioFixturePath); err != nil {
		s.T().Skipf("%s is not accessible (%v); skipping deepgram integration test", audioFixturePath, err)
	}
}

func (s *DeepgramIntegrationSuite) TestPrerecordedTranscription() {
	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)
	defer cancel()

	generator, err := deepgram.NewAudioTranscriptionGenerator(audioFixturePath, model.AudioOptions{
		AuthToken: s.apiKey,
		Language:  model.LanguageRussian,
	})
	require.NoError(s.T(), err)

	transcript, metadata, err := generator.Generate(ctx)
	require.NoError(s.T(), err)
	assert.NotEmpty(s.T(), strings.TrimSpace(transcript))
	assert.Equal(s.T(), "deepgram", metadata[model.MetadataKeyProvider])
	assert.NotEmpty(s.T(), metadata[model.MetadataKeyModel])
	assert.NotEmpty(s.T(), metadata[model.MetadataKeyLatencyMs])
}

func TestDeepgramIntegrationSuite(t *testing.T) {
	suite.Run(t, new(DeepgramIntegrationSuite))
}
