// Package deepgram adapts the Deepgram prerecorded speech API as an audio
// transcription provider. Deepgram takes the audio bytes synchronously, so
// there is no remote file lifecycle here.
package deepgram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/voicio/voicepipe/pkg/model"
	"github.com/voicio/voicepipe/pkg/utils"
)

const (
	providerName       = "deepgram"
	defaultModelName   = "nova-3"
	defaultBaseURL     = "https://api.deepgram.com"
	defaultHTTPTimeout = 90 * time.Second
	envDeepgramKey     = "DEEPGRAM_API_KEY"
)

type apiClient struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
}

type listenResponse struct {
	Metadata listenMetadata `json:"metadata"`
	Results  listenResults  `json:"results"`
}

type listenMetadata struct {
	RequestID string  `json:"request_id"`
	Duration  float64 `json:"duration"`
}

type listenResults struct {
	Channels []listenChannel `json:"channels"`
}

type listenChannel struct {
	Alternatives []listenAlternative `json:"alternatives"`
}

type listenAlternative struct {
	Transcript string  `json:"transcript"`
	Confidence float64 `json:"confidence"`
}

type listenErrorResponse struct {
	ErrCode string `json:"err_code"`
	ErrMsg  string `json:"err_msg"`
}

func newAPIClient(opts model.AudioOptions) (*apiClient, error) {
	apiKey := strings.TrimSpace(opts.AuthToken)
	if apiKey == "" {
		apiKey = strings.TrimSpace(os.Getenv(envDeepgramKey))
	}
	if apiKey == "" {
		return nil, utils.WrapIfNotNil(errors.New("auth token is required (set AuthToken or DEEPGRAM_API_KEY)"))
	}

	baseURL := strings.TrimSpace(opts.URL)
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	baseURL = strings.TrimSuffix(baseURL, "/")

	return &apiClient{
		httpClient: &http.Client{Timeout: defaultHTTPTimeout},
		baseURL:    baseURL,
		apiKey:     apiKey,
	}, nil
}

func (c *apiClient) transcribe(ctx context.Context, audio io.Reader, mimeType string, opts model.AudioOptions) (*listenResponse, error) {
	query := url.Values{}
	query.Set("model", resolveModelName(opts))
	query.Set("punctuate", "true")
	query.Set("smart_format", "true")
	if language := strings.TrimSpace(string(opts.Language)); language != "" {
		query.Set("language", language)
	}

	httpRequest, err := http.NewRequestWithContext(
		ctx,
		http.MethodPost,
		c.baseURL+"/v1/listen?"+query.Encode(),
		audio,
	)
	if err != nil {
		return nil, utils.WrapIfNotNil(err)
	}

	httpRequest.Header.Set("Content-Type", mimeType)
	httpRequest.Header.Set("Authorization", "Token "+c.apiKey)

	httpResponse, err := c.httpClient.Do(httpRequest)
	if err != nil {
		return nil, utils.WrapIfNotNil(err)
	}
	defer httpResponse.Body.Close()

	responseBits, err := io.ReadAll(httpResponse.Body)
	if err != nil {
		return nil, utils.WrapIfNotNil(err)
	}

	if httpResponse.StatusCode < 200 || httpResponse.StatusCode >= 300 {
		apiErr := listenErrorResponse{}
		message := strings.TrimSpace(string(responseBits))
		if unmarshalErr := json.Unmarshal(responseBits, &apiErr); unmarshalErr == nil {
			candidate := strings.TrimSpace(apiErr.ErrMsg)
			if candidate != "" {
				message = candidate
			}
		}
		if message == "" {
			message = "unknown deepgram error"
		}
		return nil, utils.WrapIfNotNil(fmt.Errorf("deepgram API error (%d): %s", httpResponse.StatusCode, message))
	}

	response := listenResponse{}
	err = json.Unmarshal(responseBits, &response)
	if err != nil {
		return nil, utils.WrapIfNotNil(err)
	}
	return &response, nil
}

func resolveModelName(opts model.AudioOptions) string {
	if name := strings.TrimSpace(opts.Model); name != "" {
		return name
	}
	return defaultModelName
}
