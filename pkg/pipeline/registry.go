package pipeline

import (
	"fmt"
	"sort"
	"sync"

	"github.com/voicio/voicepipe/pkg/diagram"
	"github.com/voicio/voicepipe/pkg/llms/bedrock"
	"github.com/voicio/voicepipe/pkg/llms/deepgram"
	"github.com/voicio/voicepipe/pkg/llms/gemini"
	"github.com/voicio/voicepipe/pkg/llms/ollama"
	"github.com/voicio/voicepipe/pkg/llms/openai"
	"github.com/voicio/voicepipe/pkg/model"
	"github.com/voicio/voicepipe/pkg/utils"
)

// Provider bundles the capabilities one external service exposes to the
// pipeline. A nil factory means the provider lacks that capability.
type Provider struct {
	Name string

	// NewAudioTranscription is the stage-1 speech capability.
	NewAudioTranscription model.NewAudioTranscriptionGeneratorFunc
	// NewStringContent is the stage-2 text transform capability.
	NewStringContent model.NewStringContentGeneratorFunc
	// NewDiagramContent is the structured diagram generation capability.
	NewDiagramContent model.NewStructureContentGeneratorFunc[diagram.Payload]
}

func (p Provider) CanTranscribe() bool {
	return p.NewAudioTranscription != nil
}

func (p Provider) CanTransform() bool {
	return p.NewStringContent != nil
}

func (p Provider) CanGenerateDiagram() bool {
	return p.NewDiagramContent != nil
}

// Registry holds the providers available to a pipeline, keyed by name.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider
}

func NewRegistry() *Registry {
	return &Registry{providers: make(map[string]Provider)}
}

func (r *Registry) Register(provider Provider) error {
	if provider.Name == "" {
		return utils.WrapIfNotNil(fmt.Errorf("provider name is required"))
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.providers[provider.Name]; exists {
		return utils.WrapIfNotNil(fmt.Errorf("provider %q already registered", provider.Name))
	}
	r.providers[provider.Name] = provider
	return nil
}

func (r *Registry) Lookup(name string) (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	provider, ok := r.providers[name]
	if !ok {
		return Provider{}, utils.WrapIfNotNil(fmt.Errorf("unknown provider %q", name))
	}
	return provider, nil
}

// Names returns the registered provider names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Built-in provider names.
const (
	ProviderGemini   = "gemini"
	ProviderOpenAI   = "openai"
	ProviderDeepgram = "deepgram"
	ProviderBedrock  = "bedrock"
	ProviderOllama   = "ollama"
)

// DefaultRegistry registers every built-in provider adapter.
func DefaultRegistry() *Registry {
	registry := NewRegistry()
	for _, provider := range []Provider{
		{
			Name:                  ProviderGemini,
			NewAudioTranscription: gemini.NewAudioTranscriptionGenerator,
			NewStringContent:      gemini.NewStringContentGenerator,
			NewDiagramContent:     gemini.NewStructureContentGenerator[diagram.Payload],
		},
		{
			Name:                  ProviderOpenAI,
			NewAudioTranscription: openai.NewAudioTranscriptionGenerator,
			NewStringContent:      openai.NewStringContentGenerator,
			NewDiagramContent:     openai.NewStructureContentGenerator[diagram.Payload],
		},
		{
			Name:                  ProviderDeepgram,
			NewAudioTranscription: deepgram.NewAudioTranscriptionGenerator,
		},
		{
			Name:              ProviderBedrock,
			NewStringContent:  bedrock.NewStringContentGenerator,
			NewDiagramContent: bedrock.NewStructureContentGenerator[diagram.Payload],
		},
		{
			Name:              ProviderOllama,
			NewStringContent:  ollama.NewStringContentGenerator,
			NewDiagramContent: ollama.NewStructureContentGenerator[diagram.Payload],
		},
	} {
		// Names are unique literals, so Register cannot fail here.
		_ = registry.Register(provider)
	}
	return registry
}
