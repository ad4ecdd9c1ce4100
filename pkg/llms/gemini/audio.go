package gemini

import (
	"context"
	"errors"
	"mime"
	"path/filepath"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/voicio/voicepipe/pkg/asset"
	"github.com/voicio/voicepipe/pkg/logging"
	"github.com/voicio/voicepipe/pkg/model"
	"github.com/voicio/voicepipe/pkg/prompts"
	"github.com/voicio/voicepipe/pkg/utils"
)

type audioTranscriptionGenerator struct {
	filePath string
	opts     model.AudioOptions
	cfg      model.GeneratorConfig
	poll     asset.PollConfig
}

// NewAudioTranscriptionGenerator transcribes a local audio file through the
// Files API. The blob is uploaded, polled until active, referenced by URI in
// the generation request, and deleted before returning regardless of outcome.
func NewAudioTranscriptionGenerator(
	filePath string,
	opts model.AudioOptions,
) (model.AudioTranscriptionGenerator, error) {
	if strings.TrimSpace(filePath) == "" {
		return nil, utils.WrapIfNotNil(errors.New("file path is required"))
	}

	return &audioTranscriptionGenerator{
		filePath: filePath,
		opts:     opts,
		cfg:      audioGeneratorConfigFromOptions(opts),
		poll:     asset.DefaultPollConfig(),
	}, nil
}

func (g *audioTranscriptionGenerator) Generate(ctx context.Context) (string, model.GenerationMetadata, error) {
	start := time.Now()
	modelName := resolveAudioTranscriptionModelName(g.opts)
	meta := initMetadata(modelName)
	defer setLatencyMetadata(meta, start)

	log := logging.NewLogger(ctx)
	mimeType, err := resolveAudioMIMEType(g.filePath)
	if err != nil {
		log.Errorf("error: %v", err)
		return "", meta, utils.WrapIfNotNil(err)
	}

	client, err := newAPIClient(ctx, g.cfg)
	if err != nil {
		log.Errorf("error: %v", err)
		return "", meta, utils.WrapIfNotNil(err)
	}

	remote, err := asset.Upload(ctx, &fileService{client: client}, g.filePath, mimeType, g.poll)
	if err != nil {
		log.Errorf("error: %v", err)
		return "", meta, utils.WrapIfNotNil(err)
	}
	defer remote.Release(ctx)

	handle := remote.Handle()
	meta[model.MetadataKeyRemoteFile] = handle.ID

	prompt := strings.TrimSpace(g.opts.Prompt)
	if prompt == "" {
		prompt = prompts.TranscriptionPrompt(g.opts.Language)
	}

	contents := []*genai.Content{
		genai.NewContentFromParts(
			[]*genai.Part{
				genai.NewPartFromText(prompt),
				genai.NewPartFromURI(handle.URI, handle.MIMEType),
			},
			genai.RoleUser,
		),
	}

	config := buildGenerateContentConfig(g.cfg, nil)
	response, err := generateWithThinkingFallback(ctx, client, modelName, contents, config)
	if err != nil {
		log.Errorf("error: %v", err)
		return "", meta, utils.WrapIfNotNil(err)
	}

	transcript := strings.TrimSpace(response.Text())
	if transcript == "" {
		err = errors.New("transcription response is empty")
		log.Errorf("error: %v", err)
		return "", meta, utils.WrapIfNotNil(err)
	}

	applyGenerateMetadata(meta, response)
	return transcript, meta, nil
}

func resolveAudioTranscriptionModelName(opts model.AudioOptions) string {
	if modelName := strings.TrimSpace(opts.Model); modelName != "" {
		return modelName
	}
	return defaultGenerationModelName
}

func audioGeneratorConfigFromOptions(opts model.AudioOptions) model.GeneratorConfig {
	cfg := model.GeneratorConfig{
		URL:       opts.URL,
		AuthToken: opts.AuthToken,
	}
	if modelName := strings.TrimSpace(opts.Model); modelName != "" {
		cfg.Model = &modelName
	}
	if level := opts.ThinkingLevel; level != "" {
		cfg.ThinkingLevel = &level
	}
	return cfg
}

func resolveAudioMIMEType(filePath string) (string, error) {
	ext := strings.ToLower(filepath.Ext(strings.TrimSpace(filePath)))
	if ext == "" {
		return "", utils.WrapIfNotNil(errors.New("audio file extension is required to determine mime type"))
	}

	switch ext {
	case ".wav":
		return "audio/wav", nil
	case ".mp3":
		return "audio/mpeg", nil
	case ".m4a":
		return "audio/mp4", nil
	case ".mp4":
		return "audio/mp4", nil
	case ".webm":
		return "audio/webm", nil
	case ".ogg", ".oga":
		return "audio/ogg", nil
	case ".flac":
		return "audio/flac", nil
	case ".aac":
		return "audio/aac", nil
	}

	mimeType := mime.TypeByExtension(ext)
	if mimeType == "" {
		return "", utils.WrapIfNotNil(errors.New("unsupported audio file extension: " + ext))
	}

	// Strip parameters such as "; charset=utf-8".
	mimeType = strings.TrimSpace(strings.Split(mimeType, ";")[0])
	if !strings.HasPrefix(mimeType, "audio/") {
		return "", utils.WrapIfNotNil(errors.New("unsupported audio mime type: " + mimeType))
	}
	return mimeType, nil
}
