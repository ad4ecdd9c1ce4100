package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/voicio/voicepipe/pkg/model"
)

// Record is the persistence snapshot of one finished request.
type Record struct {
	RequestID  string
	Mode       model.Mode
	Language   model.Language
	Protocol   model.Protocol
	Summary    string
	Transcript string

	TranscriptionMetadata model.GenerationMetadata
	ProcessingMetadata    model.GenerationMetadata
	CreatedAt             time.Time
}

// Recorder receives finished results for persistence. Recording is best
// effort: a failing recorder never fails the request it records.
type Recorder interface {
	Record(ctx context.Context, record Record) error
}

// MemoryRecorder keeps records in memory, newest last. Embedding
// applications without a durable store use it for session history.
type MemoryRecorder struct {
	mu      sync.Mutex
	records []Record
}

func NewMemoryRecorder() *MemoryRecorder {
	return &MemoryRecorder{}
}

func (r *MemoryRecorder) Record(_ context.Context, record Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, record)
	return nil
}

// Records returns a copy of everything recorded so far.
func (r *MemoryRecorder) Records() []Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Record(nil), r.records...)
}
