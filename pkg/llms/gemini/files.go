package gemini

import (
	"context"

	"google.golang.org/genai"

	"github.com/voicio/voicepipe/pkg/asset"
	"github.com/voicio/voicepipe/pkg/model"
	"github.com/voicio/voicepipe/pkg/utils"
)

// fileService adapts the Gemini Files API to the asset lifecycle contract.
type fileService struct {
	client *genai.Client
}

// NewFileService builds an asset.FileService over the Gemini Files API.
func NewFileService(ctx context.Context, cfg model.GeneratorConfig) (asset.FileService, error) {
	client, err := newAPIClient(ctx, cfg)
	if err != nil {
		return nil, utils.WrapIfNotNil(err)
	}
	return &fileService{client: client}, nil
}

func (s *fileService) Upload(ctx context.Context, path string, mimeType string) (asset.Handle, error) {
	file, err := s.client.Files.UploadFromPath(ctx, path, &genai.UploadFileConfig{
		MIMEType: mimeType,
	})
	if err != nil {
		return asset.Handle{}, utils.WrapIfNotNil(err)
	}
	return handleFromFile(file), nil
}

func (s *fileService) Describe(ctx context.Context, id string) (asset.Handle, error) {
	file, err := s.client.Files.Get(ctx, id, nil)
	if err != nil {
		return asset.Handle{}, utils.WrapIfNotNil(err)
	}
	return handleFromFile(file), nil
}

func (s *fileService) Delete(ctx context.Context, id string) error {
	_, err := s.client.Files.Delete(ctx, id, nil)
	return utils.WrapIfNotNil(err)
}

func handleFromFile(file *genai.File) asset.Handle {
	if file == nil {
		return asset.Handle{}
	}
	return asset.Handle{
		ID:       file.Name,
		URI:      file.URI,
		MIMEType: file.MIMEType,
		State:    mapFileState(file.State),
	}
}

func mapFileState(state genai.FileState) asset.State {
	switch state {
	case genai.FileStateActive:
		return asset.StateReady
	case genai.FileStateFailed:
		return asset.StateFailed
	case genai.FileStateProcessing:
		return asset.StateProcessing
	default:
		return asset.StateProcessing
	}
}
