// Package pipeline routes a prepared audio clip through external providers
// and returns the requested text artifact. It owns protocol selection, the
// transcription fallback chain, per-stage retries, and result persistence.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/voicio/voicepipe/pkg/diagram"
	"github.com/voicio/voicepipe/pkg/logging"
	"github.com/voicio/voicepipe/pkg/media"
	"github.com/voicio/voicepipe/pkg/model"
	"github.com/voicio/voicepipe/pkg/prompts"
	"github.com/voicio/voicepipe/pkg/retry"
	"github.com/voicio/voicepipe/pkg/utils"
)

// ErrTranscriptionFailed means every provider in the fallback chain was
// exhausted without producing a transcript.
var ErrTranscriptionFailed = errors.New("transcription failed")

// defaultTranscriptionChain is the stage-1 fallback order for the
// transcript protocol.
var defaultTranscriptionChain = []string{ProviderDeepgram, ProviderOpenAI, ProviderGemini}

const defaultDirectProvider = ProviderGemini

// Pipeline is the caller-facing facade. It is safe for concurrent use;
// every request is an independent unit of work.
type Pipeline struct {
	registry           *Registry
	converter          *media.Converter
	executor           retry.Executor
	transcriptionChain []string
	recorder           Recorder
	diagramOpts        []diagram.BuilderOption
	now                func() time.Time
	newRequestID       func() string
}

type Option func(*Pipeline)

// WithRegistry replaces the built-in provider registry.
func WithRegistry(registry *Registry) Option {
	return func(p *Pipeline) {
		if registry != nil {
			p.registry = registry
		}
	}
}

// WithMaxAttempts sets the per-stage retry budget.
func WithMaxAttempts(attempts int) Option {
	return func(p *Pipeline) {
		p.executor = retry.New(attempts)
	}
}

// WithTranscriptionChain replaces the stage-1 provider fallback order.
func WithTranscriptionChain(names ...string) Option {
	return func(p *Pipeline) {
		if len(names) > 0 {
			p.transcriptionChain = names
		}
	}
}

// WithRecorder persists finished results through the given recorder.
func WithRecorder(recorder Recorder) Option {
	return func(p *Pipeline) {
		p.recorder = recorder
	}
}

// WithDiagramOptions forwards options to the diagram builder, such as the
// renderer configuration or a logo overlay.
func WithDiagramOptions(opts ...diagram.BuilderOption) Option {
	return func(p *Pipeline) {
		p.diagramOpts = append(p.diagramOpts, opts...)
	}
}

func New(opts ...Option) *Pipeline {
	pipeline := &Pipeline{
		registry:           DefaultRegistry(),
		converter:          media.NewConverter(),
		executor:           retry.New(retry.DefaultMaxAttempts),
		transcriptionChain: defaultTranscriptionChain,
		now:                time.Now,
		newRequestID:       uuid.NewString,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(pipeline)
		}
	}
	return pipeline
}

// Process runs one request end to end and returns the finished artifact.
// Within the request stages are strictly sequential: media preparation,
// transcription, then the mode transform. Any stage exhausting its retries
// fails the whole request; no partial result is ever returned.
func (p *Pipeline) Process(ctx context.Context, req Request) (*Result, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	req.Language = req.Language.Normalize()

	requestID := p.newRequestID()
	log := logging.NewLogger(ctx).WithFields(logging.Fields{
		"request_id": requestID,
		"mode":       string(req.Mode),
		"protocol":   string(req.Protocol),
	})
	log.Infof("processing %s", req.AudioPath)

	prepared, err := p.converter.Prepare(ctx, req.AudioPath)
	if err != nil {
		log.Errorf("error: %v", err)
		return nil, utils.WrapIfNotNil(err, "media preparation failed")
	}
	defer prepared.Cleanup()

	transcript, transcriptionMeta, err := p.transcribe(ctx, req, prepared.AudioPath)
	if err != nil {
		log.Errorf("error: %v", err)
		return nil, err
	}

	result := &Result{
		RequestID:             requestID,
		Transcript:            transcript,
		TranscriptionMetadata: transcriptionMeta,
	}

	switch {
	case req.Mode == model.ModeDiagram:
		// Diagram construction is a separate downstream pipeline; only the
		// transcript is produced here.
	case req.Mode == model.ModeAsIs:
		cleaned, processingMeta, err := p.transform(ctx, req, transcript)
		if err != nil {
			log.Errorf("error: %v", err)
			return nil, err
		}
		result.Transcript = cleaned
		result.ProcessingMetadata = processingMeta
	default:
		summary, processingMeta, err := p.transform(ctx, req, transcript)
		if err != nil {
			log.Errorf("error: %v", err)
			return nil, err
		}
		result.Summary = summary
		result.ProcessingMetadata = processingMeta
	}

	p.record(ctx, req, result)
	log.Infof("request finished")
	return result, nil
}

// ProcessDiagram runs the diagram path: transcription via Process, then the
// structured generation and repair pipeline against the transcript.
func (p *Pipeline) ProcessDiagram(ctx context.Context, req Request) (*diagram.Render, *Result, error) {
	req.Mode = model.ModeDiagram
	result, err := p.Process(ctx, req)
	if err != nil {
		return nil, nil, err
	}

	factory, err := p.diagramFactory(req)
	if err != nil {
		return nil, nil, err
	}

	builder, err := diagram.NewBuilder(factory, p.diagramOpts...)
	if err != nil {
		return nil, nil, utils.WrapIfNotNil(err)
	}

	render, err := builder.Build(ctx, result.Transcript, req.Language, req.Author, p.generatorOptions(req)...)
	if err != nil {
		return nil, nil, err
	}
	return render, result, nil
}

// transcribe dispatches stage 1 according to the protocol.
func (p *Pipeline) transcribe(ctx context.Context, req Request, audioPath string) (string, model.GenerationMetadata, error) {
	if req.Protocol == model.ProtocolDirect {
		return p.transcribeDirect(ctx, req, audioPath)
	}
	return p.transcribeWithChain(ctx, req, audioPath)
}

// transcribeDirect sends the audio to the same provider that will run the
// mode transform.
func (p *Pipeline) transcribeDirect(ctx context.Context, req Request, audioPath string) (string, model.GenerationMetadata, error) {
	provider, err := p.registry.Lookup(p.directProviderName(req))
	if err != nil {
		return "", nil, err
	}
	if !provider.CanTranscribe() {
		return "", nil, utils.WrapIfNotNil(fmt.Errorf("provider %q cannot consume audio directly", provider.Name))
	}
	return p.runTranscription(ctx, provider, req, audioPath, req.ProcessingModel)
}

// transcribeWithChain walks the fallback chain until one provider yields a
// transcript. Each provider gets the full retry budget before the chain
// moves on.
func (p *Pipeline) transcribeWithChain(ctx context.Context, req Request, audioPath string) (string, model.GenerationMetadata, error) {
	log := logging.NewLogger(ctx)

	var lastErr error
	for _, name := range p.chainFor(req) {
		provider, err := p.registry.Lookup(name)
		if err != nil {
			log.Warnf("skipping unknown transcription provider %q", name)
			continue
		}
		if !provider.CanTranscribe() {
			log.Warnf("skipping provider %q: no speech capability", name)
			continue
		}

		transcript, metadata, err := p.runTranscription(ctx, provider, req, audioPath, req.TranscriptionModel)
		if err == nil {
			return transcript, metadata, nil
		}
		lastErr = err
		log.Warnf("transcription via %q failed, trying next provider: %v", name, err)
	}

	if lastErr == nil {
		lastErr = errors.New("no usable transcription provider")
	}
	return "", nil, utils.WrapIfNotNil(errors.Join(ErrTranscriptionFailed, lastErr))
}

func (p *Pipeline) runTranscription(ctx context.Context, provider Provider, req Request, audioPath string, modelName string) (string, model.GenerationMetadata, error) {
	type transcription struct {
		text     string
		metadata model.GenerationMetadata
	}

	opName := fmt.Sprintf("%s transcription", provider.Name)
	outcome, attempts, err := retry.Do(ctx, p.executor, opName, func(ctx context.Context) (transcription, error) {
		generator, err := provider.NewAudioTranscription(audioPath, model.AudioOptions{
			Model:         modelName,
			Language:      req.Language,
			ThinkingLevel: req.ThinkingLevel,
		})
		if err != nil {
			return transcription{}, err
		}
		text, metadata, err := generator.Generate(ctx)
		if err != nil {
			return transcription{}, err
		}
		return transcription{text: text, metadata: metadata}, nil
	})
	if err != nil {
		return "", nil, err
	}

	metadata := outcome.metadata
	if metadata == nil {
		metadata = model.GenerationMetadata{}
	}
	metadata[model.MetadataKeyAttempts] = fmt.Sprintf("%d", attempts)
	return outcome.text, metadata, nil
}

// transform runs the stage-2 mode template against the transcript.
func (p *Pipeline) transform(ctx context.Context, req Request, transcript string) (string, model.GenerationMetadata, error) {
	template, err := prompts.Resolve(req.Mode, req.Language)
	if err != nil {
		return "", nil, err
	}

	provider, err := p.registry.Lookup(p.directProviderName(req))
	if err != nil {
		return "", nil, err
	}
	if !provider.CanTransform() {
		return "", nil, utils.WrapIfNotNil(fmt.Errorf("provider %q cannot transform text", provider.Name))
	}

	type transform struct {
		text     string
		metadata model.GenerationMetadata
	}

	opName := fmt.Sprintf("%s %s transform", provider.Name, req.Mode)
	outcome, attempts, err := retry.Do(ctx, p.executor, opName, func(ctx context.Context) (transform, error) {
		generator, err := provider.NewStringContent(template, p.generatorOptions(req)...)
		if err != nil {
			return transform{}, err
		}
		generator.AddPromptContext(ctx, model.ContextMessageTypeHuman, transcript)

		text, metadata, err := generator.Generate(ctx)
		if err != nil {
			return transform{}, err
		}
		if text == "" {
			return transform{}, errors.New("empty transform response")
		}
		return transform{text: text, metadata: metadata}, nil
	})
	if err != nil {
		return "", nil, err
	}

	metadata := outcome.metadata
	if metadata == nil {
		metadata = model.GenerationMetadata{}
	}
	metadata[model.MetadataKeyAttempts] = fmt.Sprintf("%d", attempts)
	return outcome.text, metadata, nil
}

// diagramFactory resolves the structured generation capability for the
// diagram path. Text-only providers are adapted through ParsePayload.
func (p *Pipeline) diagramFactory(req Request) (model.NewStructureContentGeneratorFunc[diagram.Payload], error) {
	provider, err := p.registry.Lookup(p.directProviderName(req))
	if err != nil {
		return nil, err
	}
	if provider.CanGenerateDiagram() {
		return provider.NewDiagramContent, nil
	}
	if provider.CanTransform() {
		return diagram.NewTextPayloadGenerator(provider.NewStringContent), nil
	}
	return nil, utils.WrapIfNotNil(fmt.Errorf("provider %q cannot generate diagrams", provider.Name))
}

func (p *Pipeline) directProviderName(req Request) string {
	if req.ProcessingProvider != "" {
		return req.ProcessingProvider
	}
	return defaultDirectProvider
}

// chainFor puts an explicitly requested provider at the head of the
// fallback chain.
func (p *Pipeline) chainFor(req Request) []string {
	if req.TranscriptionProvider == "" {
		return p.transcriptionChain
	}

	chain := []string{req.TranscriptionProvider}
	for _, name := range p.transcriptionChain {
		if name != req.TranscriptionProvider {
			chain = append(chain, name)
		}
	}
	return chain
}

func (p *Pipeline) generatorOptions(req Request) []model.GeneratorOption {
	var opts []model.GeneratorOption
	if req.ProcessingModel != "" {
		opts = append(opts, model.WithModel(req.ProcessingModel))
	}
	if req.ThinkingLevel != "" {
		opts = append(opts, model.WithThinkingLevel(req.ThinkingLevel))
	}
	return opts
}

func (p *Pipeline) record(ctx context.Context, req Request, result *Result) {
	if p.recorder == nil {
		return
	}

	err := p.recorder.Record(ctx, Record{
		RequestID:             result.RequestID,
		Mode:                  req.Mode,
		Language:              req.Language,
		Protocol:              req.Protocol,
		Summary:               result.Summary,
		Transcript:            result.Transcript,
		TranscriptionMetadata: result.TranscriptionMetadata,
		ProcessingMetadata:    result.ProcessingMetadata,
		CreatedAt:             p.now(),
	})
	if err != nil {
		logging.NewLogger(ctx).Warnf("failed to record result %s: %v", result.RequestID, err)
	}
}
