package pipeline

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/voicio/voicepipe/pkg/diagram"
	"github.com/voicio/voicepipe/pkg/model"
)

type PipelineSuite struct {
	suite.Suite
}

func TestPipelineSuite(t *testing.T) {
	suite.Run(t, new(PipelineSuite))
}

// writeWAV produces a 16kHz mono PCM header so Prepare skips conversion.
func (s *PipelineSuite) writeWAV() string {
	var buf bytes.Buffer
	buf.WriteString("RIFF")
	_ = binary.Write(&buf, binary.LittleEndian, uint32(36))
	buf.WriteString("WAVE")
	buf.WriteString("fmt ")
	_ = binary.Write(&buf, binary.LittleEndian, uint32(16))
	_ = binary.Write(&buf, binary.LittleEndian, uint16(1))     // PCM
	_ = binary.Write(&buf, binary.LittleEndian, uint16(1))     // mono
	_ = binary.Write(&buf, binary.LittleEndian, uint32(16000)) // sample rate
	_ = binary.Write(&buf, binary.LittleEndian, uint32(32000)) // byte rate
	_ = binary.Write(&buf, binary.LittleEndian, uint16(2))     // block align
	_ = binary.Write(&buf, binary.LittleEndian, uint16(16))    // bits per sample
	buf.WriteString("data")
	_ = binary.Write(&buf, binary.LittleEndian, uint32(0))

	path := filepath.Join(s.T().TempDir(), "voice.wav")
	s.Require().NoError(os.WriteFile(path, buf.Bytes(), 0o600))
	return path
}

type fakeAudioGenerator struct {
	text     string
	metadata model.GenerationMetadata
	err      error
}

func (g *fakeAudioGenerator) Generate(context.Context) (string, model.GenerationMetadata, error) {
	return g.text, g.metadata, g.err
}

type fakeStringGenerator struct {
	text     string
	metadata model.GenerationMetadata
	err      error
	contexts []model.PromptContext
}

func (g *fakeStringGenerator) Generate(context.Context) (string, model.GenerationMetadata, error) {
	return g.text, g.metadata, g.err
}

func (g *fakeStringGenerator) AddPromptContext(_ context.Context, messageType model.ContextMessageType, content string) {
	g.contexts = append(g.contexts, model.PromptContext{MessageType: messageType, Content: content})
}

type fakeDiagramGenerator struct {
	payload Payload
	err     error
}

type Payload = diagram.Payload

func (g *fakeDiagramGenerator) Generate(context.Context) (Payload, model.GenerationMetadata, error) {
	return g.payload, nil, g.err
}

func (g *fakeDiagramGenerator) AddPromptContext(context.Context, model.ContextMessageType, string) {}

type providerCalls struct {
	transcriptions int
	transforms     int
	lastPrompt     string
	lastAudioOpts  model.AudioOptions
}

func (s *PipelineSuite) newFakeProvider(name string, transcript string, transcriptErr error, transformText string, calls *providerCalls) Provider {
	return Provider{
		Name: name,
		NewAudioTranscription: func(filePath string, opts model.AudioOptions) (model.AudioTranscriptionGenerator, error) {
			calls.transcriptions++
			calls.lastAudioOpts = opts
			return &fakeAudioGenerator{
				text:     transcript,
				metadata: model.GenerationMetadata{model.MetadataKeyProvider: name},
				err:      transcriptErr,
			}, nil
		},
		NewStringContent: func(prompt string, opts ...model.GeneratorOption) (model.ContentGenerator[string], error) {
			calls.transforms++
			calls.lastPrompt = prompt
			return &fakeStringGenerator{
				text:     transformText,
				metadata: model.GenerationMetadata{model.MetadataKeyProvider: name},
			}, nil
		},
		NewDiagramContent: func(prompt string, opts ...model.GeneratorOption) (model.ContentGenerator[Payload], error) {
			return &fakeDiagramGenerator{
				payload: Payload{DiagramType: "mindmap", Title: "T", MermaidCode: "root\n  child"},
			}, nil
		},
	}
}

func (s *PipelineSuite) newTestPipeline(providers []Provider, opts ...Option) *Pipeline {
	registry := NewRegistry()
	for _, provider := range providers {
		s.Require().NoError(registry.Register(provider))
	}

	allOpts := append([]Option{WithRegistry(registry), WithMaxAttempts(1)}, opts...)
	return New(allOpts...)
}

func (s *PipelineSuite) TestProcessValidatesRequest() {
	pipeline := s.newTestPipeline(nil)

	cases := []Request{
		{Mode: model.ModeBrief, Protocol: model.ProtocolTranscript},
		{AudioPath: "a.wav", Mode: "sonnet", Protocol: model.ProtocolTranscript},
		{AudioPath: "a.wav", Mode: model.ModeBrief, Protocol: "carrier-pigeon"},
	}
	for _, req := range cases {
		_, err := pipeline.Process(context.Background(), req)
		s.ErrorIs(err, ErrInvalidRequest)
	}
}

func (s *PipelineSuite) TestProcessTranscriptProtocol() {
	calls := &providerCalls{}
	recorder := NewMemoryRecorder()
	pipeline := s.newTestPipeline(
		[]Provider{s.newFakeProvider("stt", "привет мир", nil, "📝 САММАРИ", calls)},
		WithTranscriptionChain("stt"),
		WithRecorder(recorder),
	)

	result, err := pipeline.Process(context.Background(), Request{
		AudioPath:          s.writeWAV(),
		Mode:               model.ModeBrief,
		Language:           model.LanguageRussian,
		Protocol:           model.ProtocolTranscript,
		ProcessingProvider: "stt",
	})

	s.Require().NoError(err)
	s.NotEmpty(result.RequestID)
	s.Equal("привет мир", result.Transcript)
	s.Equal("📝 САММАРИ", result.Summary)
	s.Equal("1", result.TranscriptionMetadata[model.MetadataKeyAttempts])
	s.Equal("stt", result.ProcessingMetadata[model.MetadataKeyProvider])
	s.Equal(1, calls.transcriptions)
	s.Equal(1, calls.transforms)

	records := recorder.Records()
	s.Require().Len(records, 1)
	s.Equal(result.RequestID, records[0].RequestID)
	s.Equal(model.ModeBrief, records[0].Mode)
	s.False(records[0].CreatedAt.IsZero())
}

func (s *PipelineSuite) TestProcessFallsBackToNextTranscriber() {
	brokenCalls := &providerCalls{}
	workingCalls := &providerCalls{}
	pipeline := s.newTestPipeline(
		[]Provider{
			s.newFakeProvider("broken", "", errors.New("service unavailable"), "", brokenCalls),
			s.newFakeProvider("working", "the transcript", nil, "summary", workingCalls),
		},
		WithTranscriptionChain("broken", "working"),
	)

	result, err := pipeline.Process(context.Background(), Request{
		AudioPath:          s.writeWAV(),
		Mode:               model.ModeBrief,
		Protocol:           model.ProtocolTranscript,
		ProcessingProvider: "working",
	})

	s.Require().NoError(err)
	s.Equal("the transcript", result.Transcript)
	s.Equal(1, brokenCalls.transcriptions)
	s.Equal(1, workingCalls.transcriptions)
}

func (s *PipelineSuite) TestProcessFailsWhenChainExhausted() {
	calls := &providerCalls{}
	recorder := NewMemoryRecorder()
	pipeline := s.newTestPipeline(
		[]Provider{s.newFakeProvider("broken", "", errors.New("service unavailable"), "", calls)},
		WithTranscriptionChain("broken"),
		WithRecorder(recorder),
	)

	_, err := pipeline.Process(context.Background(), Request{
		AudioPath: s.writeWAV(),
		Mode:      model.ModeBrief,
		Protocol:  model.ProtocolTranscript,
	})

	s.Require().Error(err)
	s.ErrorIs(err, ErrTranscriptionFailed)
	s.Empty(recorder.Records())
}

func (s *PipelineSuite) TestProcessAsIsReturnsCleanedTranscriptOnly() {
	calls := &providerCalls{}
	pipeline := s.newTestPipeline(
		[]Provider{s.newFakeProvider("stt", "эм ну привет", nil, "Привет.", calls)},
		WithTranscriptionChain("stt"),
	)

	result, err := pipeline.Process(context.Background(), Request{
		AudioPath:          s.writeWAV(),
		Mode:               model.ModeAsIs,
		Language:           model.LanguageRussian,
		Protocol:           model.ProtocolTranscript,
		ProcessingProvider: "stt",
	})

	s.Require().NoError(err)
	s.Empty(result.Summary)
	s.Equal("Привет.", result.Transcript)
	s.Equal(1, calls.transforms)
}

func (s *PipelineSuite) TestProcessDiagramModeSkipsTransform() {
	calls := &providerCalls{}
	pipeline := s.newTestPipeline(
		[]Provider{s.newFakeProvider("stt", "plan for the week", nil, "", calls)},
		WithTranscriptionChain("stt"),
	)

	result, err := pipeline.Process(context.Background(), Request{
		AudioPath:          s.writeWAV(),
		Mode:               model.ModeDiagram,
		Protocol:           model.ProtocolTranscript,
		ProcessingProvider: "stt",
	})

	s.Require().NoError(err)
	s.Empty(result.Summary)
	s.Equal("plan for the week", result.Transcript)
	s.Equal(0, calls.transforms)
}

func (s *PipelineSuite) TestProcessDirectUsesProcessingProviderForBothStages() {
	calls := &providerCalls{}
	pipeline := s.newTestPipeline(
		[]Provider{s.newFakeProvider("multimodal", "direct transcript", nil, "direct summary", calls)},
	)

	result, err := pipeline.Process(context.Background(), Request{
		AudioPath:          s.writeWAV(),
		Mode:               model.ModeBrief,
		Protocol:           model.ProtocolDirect,
		ProcessingProvider: "multimodal",
		ProcessingModel:    "multimodal-large",
		ThinkingLevel:      model.ThinkingHigh,
	})

	s.Require().NoError(err)
	s.Equal("direct transcript", result.Transcript)
	s.Equal("direct summary", result.Summary)
	s.Equal(1, calls.transcriptions)
	s.Equal(1, calls.transforms)
	s.Equal("multimodal-large", calls.lastAudioOpts.Model)
	s.Equal(model.ThinkingHigh, calls.lastAudioOpts.ThinkingLevel)
}

func (s *PipelineSuite) TestProcessDirectRequiresSpeechCapability() {
	pipeline := s.newTestPipeline([]Provider{{
		Name: "text-only",
		NewStringContent: func(prompt string, opts ...model.GeneratorOption) (model.ContentGenerator[string], error) {
			return &fakeStringGenerator{text: "x"}, nil
		},
	}})

	_, err := pipeline.Process(context.Background(), Request{
		AudioPath:          s.writeWAV(),
		Mode:               model.ModeBrief,
		Protocol:           model.ProtocolDirect,
		ProcessingProvider: "text-only",
	})

	s.Require().Error(err)
	s.Contains(err.Error(), "cannot consume audio directly")
}

func (s *PipelineSuite) TestProcessDiagramProducesFallbackImageWhenRendererMissing() {
	calls := &providerCalls{}
	pipeline := s.newTestPipeline(
		[]Provider{s.newFakeProvider("stt", "plan for the week", nil, "", calls)},
		WithTranscriptionChain("stt"),
		WithDiagramOptions(diagram.WithRenderer(diagram.NewRenderer(diagram.WithMermaidPath(filepath.Join(s.T().TempDir(), "missing-mmdc"))))),
	)

	render, result, err := pipeline.ProcessDiagram(context.Background(), Request{
		AudioPath:          s.writeWAV(),
		Mode:               model.ModeDiagram,
		Language:           model.LanguageEnglish,
		Protocol:           model.ProtocolTranscript,
		ProcessingProvider: "stt",
		Author:             "Dana",
	})

	s.Require().NoError(err)
	s.Equal("plan for the week", result.Transcript)
	s.True(render.Fallback)
	s.NotEmpty(render.Image)
	s.Equal("Dana", render.Document.Author)
}

func (s *PipelineSuite) TestProcessDiagramAdaptsTextOnlyProvider() {
	calls := &providerCalls{}
	provider := Provider{
		Name: "text-only",
		NewAudioTranscription: func(filePath string, opts model.AudioOptions) (model.AudioTranscriptionGenerator, error) {
			return &fakeAudioGenerator{text: "plan for the week"}, nil
		},
		NewStringContent: func(prompt string, opts ...model.GeneratorOption) (model.ContentGenerator[string], error) {
			calls.transforms++
			return &fakeStringGenerator{
				text: "```json\n{\"diagram_type\": \"flowchart\", \"title\": \"Plan\", \"mermaid_code\": \"A --> B\"}\n```",
			}, nil
		},
	}
	pipeline := s.newTestPipeline(
		[]Provider{provider},
		WithTranscriptionChain("text-only"),
		WithDiagramOptions(diagram.WithRenderer(diagram.NewRenderer(diagram.WithMermaidPath(filepath.Join(s.T().TempDir(), "missing-mmdc"))))),
	)

	render, result, err := pipeline.ProcessDiagram(context.Background(), Request{
		AudioPath:          s.writeWAV(),
		Mode:               model.ModeDiagram,
		Language:           model.LanguageEnglish,
		Protocol:           model.ProtocolTranscript,
		ProcessingProvider: "text-only",
	})

	s.Require().NoError(err)
	s.Equal("plan for the week", result.Transcript)
	s.Equal(1, calls.transforms)
	s.Equal("Plan", render.Document.Title)
	s.Equal("A --> B;", render.Document.Body)
}

func (s *PipelineSuite) TestChainForPutsExplicitProviderFirst() {
	pipeline := s.newTestPipeline(nil, WithTranscriptionChain("deepgram", "openai", "gemini"))

	chain := pipeline.chainFor(Request{TranscriptionProvider: "openai"})

	s.Equal([]string{"openai", "deepgram", "gemini"}, chain)
}

func (s *PipelineSuite) TestRegistryRejectsDuplicates() {
	registry := NewRegistry()
	s.Require().NoError(registry.Register(Provider{Name: "one"}))

	err := registry.Register(Provider{Name: "one"})

	s.Require().Error(err)
	s.Contains(err.Error(), "already registered")
}

func (s *PipelineSuite) TestDefaultRegistryCapabilities() {
	registry := DefaultRegistry()

	s.Equal([]string{"bedrock", "deepgram", "gemini", "ollama", "openai"}, registry.Names())

	gemini, err := registry.Lookup(ProviderGemini)
	s.Require().NoError(err)
	s.True(gemini.CanTranscribe())
	s.True(gemini.CanTransform())
	s.True(gemini.CanGenerateDiagram())

	deepgram, err := registry.Lookup(ProviderDeepgram)
	s.Require().NoError(err)
	s.True(deepgram.CanTranscribe())
	s.False(deepgram.CanTransform())

	bedrock, err := registry.Lookup(ProviderBedrock)
	s.Require().NoError(err)
	s.False(bedrock.CanTranscribe())
	s.True(bedrock.CanTransform())
}
