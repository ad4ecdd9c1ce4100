package deepgram

import (
	"context"
	"errors"
	"mime"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/voicio/voicepipe/pkg/logging"
	"github.com/voicio/voicepipe/pkg/model"
	"github.com/voicio/voicepipe/pkg/utils"
)

type audioTranscriptionGenerator struct {
	client   *apiClient
	filePath string
	opts     model.AudioOptions
}

func NewAudioTranscriptionGenerator(
	filePath string,
	opts model.AudioOptions,
) (model.AudioTranscriptionGenerator, error) {
	if strings.TrimSpace(filePath) == "" {
		return nil, utils.WrapIfNotNil(errors.New("file path is required"))
	}

	client, err := newAPIClient(opts)
	if err != nil {
		return nil, utils.WrapIfNotNil(err)
	}

	return &audioTranscriptionGenerator{
		client:   client,
		filePath: filePath,
		opts:     opts,
	}, nil
}

func (g *audioTranscriptionGenerator) Generate(ctx context.Context) (string, model.GenerationMetadata, error) {
	start := time.Now()
	meta := model.GenerationMetadata{
		model.MetadataKeyProvider: providerName,
		model.MetadataKeyModel:    resolveModelName(g.opts),
	}
	defer func() {
		meta[model.MetadataKeyLatencyMs] = strconv.FormatInt(time.Since(start).Milliseconds(), 10)
	}()

	log := logging.NewLogger(ctx)
	log.Infof("audio_transcription_request model=%q language=%q", resolveModelName(g.opts), g.opts.Language)

	file, err := os.Open(g.filePath)
	if err != nil {
		log.Errorf("error: %v", err)
		return "", meta, utils.WrapIfNotNil(err)
	}
	defer func() {
		_ = file.Close()
	}()

	response, err := g.client.transcribe(ctx, file, resolveContentType(g.filePath), g.opts)
	if err != nil {
		log.Errorf("error: %v", err)
		return "", meta, utils.WrapIfNotNil(err)
	}

	transcript := extractTranscript(response)
	if transcript == "" {
		err = errors.New("transcription response is empty")
		log.Errorf("error: %v", err)
		return "", meta, utils.WrapIfNotNil(err)
	}

	if response.Metadata.RequestID != "" {
		meta[model.MetadataKeyResponseID] = response.Metadata.RequestID
	}
	return transcript, meta, nil
}

func extractTranscript(response *listenResponse) string {
	if response == nil || len(response.Results.Channels) == 0 {
		return ""
	}
	alternatives := response.Results.Channels[0].Alternatives
	if len(alternatives) == 0 {
		return ""
	}
	return strings.TrimSpace(alternatives[0].Transcript)
}

func resolveContentType(filePath string) string {
	ext := strings.ToLower(filepath.Ext(filePath))
	switch ext {
	case ".wav":
		return "audio/wav"
	case ".mp3":
		return "audio/mpeg"
	case ".m4a", ".mp4":
		return "audio/mp4"
	case ".ogg", ".oga":
		return "audio/ogg"
	case ".webm":
		return "audio/webm"
	case ".flac":
		return "audio/flac"
	}

	if mimeType := mime.TypeByExtension(ext); mimeType != "" {
		return strings.TrimSpace(strings.Split(mimeType, ";")[0])
	}
	return "application/octet-stream"
}
