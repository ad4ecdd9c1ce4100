package diagram

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/voicio/voicepipe/pkg/logging"
	"github.com/voicio/voicepipe/pkg/model"
	"github.com/voicio/voicepipe/pkg/prompts"
	"github.com/voicio/voicepipe/pkg/retry"
	"github.com/voicio/voicepipe/pkg/utils"
)

// DefaultGenerationAttempts bounds how many times the structured generation
// call is retried when the model returns an unusable payload. This budget is
// separate from the transcription retry budget on purpose.
const DefaultGenerationAttempts = 2

var ErrEmptyTranscript = errors.New("empty transcript")

// moscowTZ matches the timestamp zone stamped into diagram headers.
var moscowTZ = time.FixedZone("MSK", 3*60*60)

// Render is the diagram result. Exactly one of two sources produced Image:
// the external renderer, or the synthesized fallback when Fallback is true.
type Render struct {
	Image    []byte
	Fallback bool
	Document Document
	Metadata model.GenerationMetadata
}

// Builder drives the full repair pipeline for one transcript: structured
// generation, body normalization, rendering, and fallback synthesis.
type Builder struct {
	newGenerator model.NewStructureContentGeneratorFunc[Payload]
	renderer     *Renderer
	executor     retry.Executor
	logoPath     string
	now          func() time.Time
}

type BuilderOption func(*Builder)

// WithRenderer replaces the default renderer.
func WithRenderer(renderer *Renderer) BuilderOption {
	return func(b *Builder) {
		if renderer != nil {
			b.renderer = renderer
		}
	}
}

// WithGenerationAttempts overrides the generation retry budget.
func WithGenerationAttempts(attempts int) BuilderOption {
	return func(b *Builder) {
		b.executor = retry.New(attempts)
	}
}

// WithLogo enables a logo overlay on successful renders.
func WithLogo(path string) BuilderOption {
	return func(b *Builder) {
		b.logoPath = path
	}
}

func NewBuilder(newGenerator model.NewStructureContentGeneratorFunc[Payload], opts ...BuilderOption) (*Builder, error) {
	if newGenerator == nil {
		return nil, errors.New("generator factory is required")
	}

	builder := &Builder{
		newGenerator: newGenerator,
		renderer:     NewRenderer(),
		executor:     retry.New(DefaultGenerationAttempts),
		now:          time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(builder)
		}
	}
	return builder, nil
}

// Build turns a transcript into a diagram image. Generation failures are
// retried up to the builder's budget and then surfaced as an error; once a
// payload is obtained, every later failure degrades to the fallback image,
// so a non-nil Render always carries image bytes.
func (b *Builder) Build(ctx context.Context, transcript string, language model.Language, author string, genOpts ...model.GeneratorOption) (*Render, error) {
	log := logging.NewLogger(ctx)
	if transcript == "" {
		return nil, ErrEmptyTranscript
	}
	language = language.Normalize()

	payload, attempts, err := retry.Do(ctx, b.executor, "diagram generation", func(ctx context.Context) (payloadWithMetadata, error) {
		return b.generate(ctx, transcript, language, genOpts...)
	})
	if err != nil {
		log.Errorf("error: %v", err)
		return nil, utils.WrapIfNotNil(err, "diagram generation failed")
	}

	metadata := payload.metadata
	if metadata == nil {
		metadata = model.GenerationMetadata{}
	}
	metadata[model.MetadataKeyAttempts] = strconv.Itoa(attempts)

	doc := DocumentFromPayload(payload.payload)
	doc.Author = author
	doc.Timestamp = b.now().In(moscowTZ).Format("2006-01-02 15:04")
	doc.Body = Normalize(doc.Kind, doc.Body)

	render := &Render{Document: doc, Metadata: metadata}
	if doc.Body == "" {
		log.Warnf("diagram body empty after normalization, using fallback image")
		render.Image = Fallback(ctx, language, doc.Title, "empty diagram body after normalization", payload.payload.MermaidCode)
		render.Fallback = true
		return render, nil
	}

	image, err := b.renderer.Render(ctx, doc, language)
	if err != nil {
		log.Warnf("diagram render failed, using fallback image: %v", err)
		detail := err.Error()
		var renderErr *RenderError
		if errors.As(err, &renderErr) {
			detail = renderErr.Diagnostic()
		}
		render.Image = Fallback(ctx, language, doc.Title, detail, doc.Body)
		render.Fallback = true
		return render, nil
	}

	render.Image = image
	if b.logoPath != "" {
		render.Image = OverlayLogo(ctx, render.Image, b.logoPath)
	}
	return render, nil
}

type payloadWithMetadata struct {
	payload  Payload
	metadata model.GenerationMetadata
}

func (b *Builder) generate(ctx context.Context, transcript string, language model.Language, genOpts ...model.GeneratorOption) (payloadWithMetadata, error) {
	generator, err := b.newGenerator(prompts.DiagramPrompt(language), genOpts...)
	if err != nil {
		return payloadWithMetadata{}, utils.WrapIfNotNil(err, "failed to create diagram generator")
	}
	generator.AddPromptContext(ctx, model.ContextMessageTypeHuman, transcript)

	payload, metadata, err := generator.Generate(ctx)
	if err != nil {
		return payloadWithMetadata{}, utils.WrapIfNotNil(err, "diagram generation call failed")
	}
	if err := payload.Validate(); err != nil {
		return payloadWithMetadata{}, err
	}
	return payloadWithMetadata{payload: payload, metadata: metadata}, nil
}
