package deepgram

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/voicio/voicepipe/pkg/model"
)

type DeepgramProviderSuite struct {
	suite.Suite
}

func TestDeepgramProviderSuite(t *testing.T) {
	suite.Run(t, new(DeepgramProviderSuite))
}

func (s *DeepgramProviderSuite) writeTempAudio() string {
	path := filepath.Join(s.T().TempDir(), "voice.wav")
	s.Require().NoError(os.WriteFile(path, []byte("RIFF....WAVE"), 0o600))
	return path
}

func (s *DeepgramProviderSuite) TestNewAudioTranscriptionGeneratorEmptyInputReturnsError() {
	generator, err := NewAudioTranscriptionGenerator("  ", model.AudioOptions{AuthToken: "token"})

	s.Require().Error(err)
	s.Nil(generator)
}

func (s *DeepgramProviderSuite) TestNewAudioTranscriptionGeneratorMissingTokenReturnsError() {
	s.T().Setenv(envDeepgramKey, "")

	generator, err := NewAudioTranscriptionGenerator("voice.wav", model.AudioOptions{})

	s.Require().Error(err)
	s.Nil(generator)
}

func (s *DeepgramProviderSuite) TestResolveModelNameUsesDefault() {
	s.Equal(defaultModelName, resolveModelName(model.AudioOptions{}))
	s.Equal("nova-2", resolveModelName(model.AudioOptions{Model: "nova-2"}))
}

func (s *DeepgramProviderSuite) TestResolveContentTypeCommonMappings() {
	s.Equal("audio/wav", resolveContentType("a.wav"))
	s.Equal("audio/ogg", resolveContentType("a.oga"))
	s.Equal("application/octet-stream", resolveContentType("a.unknownext"))
}

func (s *DeepgramProviderSuite) TestGenerateReturnsTranscript() {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.Equal(http.MethodPost, r.Method)
		s.Equal("/v1/listen", r.URL.Path)
		s.Equal("nova-3", r.URL.Query().Get("model"))
		s.Equal("ru", r.URL.Query().Get("language"))
		s.Equal("Token test-key", r.Header.Get("Authorization"))

		response := listenResponse{
			Metadata: listenMetadata{RequestID: "req-123"},
			Results: listenResults{
				Channels: []listenChannel{
					{Alternatives: []listenAlternative{
						{Transcript: "привет, это тест", Confidence: 0.98},
					}},
				},
			},
		}
		s.Require().NoError(json.NewEncoder(w).Encode(response))
	}))
	defer server.Close()

	generator, err := NewAudioTranscriptionGenerator(s.writeTempAudio(), model.AudioOptions{
		URL:       server.URL,
		AuthToken: "test-key",
		Language:  model.LanguageRussian,
	})
	s.Require().NoError(err)

	transcript, meta, err := generator.Generate(context.Background())
	s.Require().NoError(err)
	s.Equal("привет, это тест", transcript)
	s.Equal(providerName, meta[model.MetadataKeyProvider])
	s.Equal("req-123", meta[model.MetadataKeyResponseID])
}

func (s *DeepgramProviderSuite) TestGenerateAPIErrorSurfacesMessage() {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"err_code":"INVALID_AUDIO","err_msg":"corrupt container"}`))
	}))
	defer server.Close()

	generator, err := NewAudioTranscriptionGenerator(s.writeTempAudio(), model.AudioOptions{
		URL:       server.URL,
		AuthToken: "test-key",
	})
	s.Require().NoError(err)

	_, _, err = generator.Generate(context.Background())
	s.Require().Error(err)
	s.Contains(err.Error(), "corrupt container")
}

func (s *DeepgramProviderSuite) TestGenerateEmptyTranscriptReturnsError() {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"metadata":{},"results":{"channels":[]}}`))
	}))
	defer server.Close()

	generator, err := NewAudioTranscriptionGenerator(s.writeTempAudio(), model.AudioOptions{
		URL:       server.URL,
		AuthToken: "test-key",
	})
	s.Require().NoError(err)

	_, _, err = generator.Generate(context.Background())
	s.Require().Error(err)
	s.Contains(err.Error(), "transcription response is empty")
}
