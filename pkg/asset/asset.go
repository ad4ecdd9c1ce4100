// Package asset manages the remote lifecycle of an audio blob submitted to a
// file-oriented provider: upload, poll until the provider finishes server-side
// processing, and unconditional release of the remote handle. Each Asset is
// owned by exactly one request.
package asset

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/looplab/fsm"
	"github.com/voicio/voicepipe/pkg/logging"
	"github.com/voicio/voicepipe/pkg/utils"
)

// State is the remote lifecycle state of an uploaded blob.
type State string

const (
	StateUploading  State = "uploading"
	StateProcessing State = "processing"
	StateReady      State = "ready"
	StateFailed     State = "failed"
)

const (
	eventUploaded = "uploaded"
	eventActivate = "activate"
	eventFail     = "fail"
)

var (
	// ErrProcessingFailed reports a terminal provider-side processing
	// failure. The remote handle has already been deleted; the caller may
	// retry with a fresh upload.
	ErrProcessingFailed = errors.New("remote file processing failed")
	// ErrPollBudgetExceeded reports that the asset never reached a terminal
	// state within the poll budget.
	ErrPollBudgetExceeded = errors.New("poll budget exceeded while file still processing")
)

// Handle identifies an uploaded blob on the provider side.
type Handle struct {
	ID       string
	URI      string
	MIMEType string
	State    State
}

// FileService is the provider-facing file lifecycle contract.
type FileService interface {
	Upload(ctx context.Context, path string, mimeType string) (Handle, error)
	Describe(ctx context.Context, id string) (Handle, error)
	Delete(ctx context.Context, id string) error
}

// PollConfig bounds the polling loop. The poll budget is intentionally
// separate from any outer retry budget.
type PollConfig struct {
	Interval time.Duration
	MaxPolls int
}

func DefaultPollConfig() PollConfig {
	return PollConfig{
		Interval: time.Second,
		MaxPolls: 120,
	}
}

// Asset is one uploaded blob and its lifecycle machine.
type Asset struct {
	svc     FileService
	handle  Handle
	machine *fsm.FSM

	releaseOnce sync.Once
}

func newMachine() *fsm.FSM {
	return fsm.NewFSM(
		string(StateUploading),
		fsm.Events{
			{Name: eventUploaded, Src: []string{string(StateUploading)}, Dst: string(StateProcessing)},
			{Name: eventActivate, Src: []string{string(StateProcessing)}, Dst: string(StateReady)},
			{Name: eventFail, Src: []string{string(StateUploading), string(StateProcessing)}, Dst: string(StateFailed)},
		},
		fsm.Callbacks{},
	)
}

// Upload submits the file and polls until the provider reports a terminal
// state. On ErrProcessingFailed and on any error after a successful upload
// the remote handle has already been released; a returned *Asset must be
// released by the caller.
func Upload(ctx context.Context, svc FileService, path string, mimeType string, cfg PollConfig) (*Asset, error) {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultPollConfig().Interval
	}
	if cfg.MaxPolls <= 0 {
		cfg.MaxPolls = DefaultPollConfig().MaxPolls
	}

	log := logging.NewLogger(ctx)
	a := &Asset{svc: svc, machine: newMachine()}

	handle, err := svc.Upload(ctx, path, mimeType)
	if err != nil {
		return nil, utils.WrapIfNotNil(err)
	}
	a.handle = handle
	log.Debugf("uploaded remote file id=%q uri=%q", handle.ID, handle.URI)

	if err := a.machine.Event(ctx, eventUploaded); err != nil {
		a.Release(ctx)
		return nil, utils.WrapIfNotNil(err)
	}

	if err := a.observe(ctx, handle.State); err != nil {
		a.Release(ctx)
		return nil, err
	}

	for poll := 0; a.State() == StateProcessing; poll++ {
		if poll >= cfg.MaxPolls {
			a.Release(ctx)
			return nil, utils.WrapIfNotNil(ErrPollBudgetExceeded)
		}

		timer := time.NewTimer(cfg.Interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			a.Release(ctx)
			return nil, utils.WrapIfNotNil(ctx.Err())
		case <-timer.C:
		}

		handle, err = svc.Describe(ctx, a.handle.ID)
		if err != nil {
			a.Release(ctx)
			return nil, utils.WrapIfNotNil(err)
		}
		a.handle = handle
		log.Debugf("remote file id=%q state=%q", handle.ID, handle.State)

		if err := a.observe(ctx, handle.State); err != nil {
			a.Release(ctx)
			return nil, err
		}
	}

	return a, nil
}

// observe advances the machine from a provider-reported state and converts
// terminal failure into ErrProcessingFailed.
func (a *Asset) observe(ctx context.Context, reported State) error {
	switch reported {
	case StateReady:
		if err := a.machine.Event(ctx, eventActivate); err != nil {
			return utils.WrapIfNotNil(err)
		}
		return nil
	case StateFailed:
		if err := a.machine.Event(ctx, eventFail); err != nil {
			return utils.WrapIfNotNil(err)
		}
		return utils.WrapIfNotNil(ErrProcessingFailed)
	default:
		return nil
	}
}

// Handle returns the provider-assigned handle.
func (a *Asset) Handle() Handle {
	return a.handle
}

// State returns the current lifecycle state.
func (a *Asset) State() State {
	return State(a.machine.Current())
}

// Release deletes the remote handle. It is idempotent and never fails the
// caller: an undeletable remote file only costs provider-side hygiene, not
// correctness of the current request.
func (a *Asset) Release(ctx context.Context) {
	if a == nil {
		return
	}
	a.releaseOnce.Do(func() {
		if a.handle.ID == "" {
			return
		}
		if err := a.svc.Delete(ctx, a.handle.ID); err != nil {
			logging.NewLogger(ctx).Warnf("could not delete remote file %q: %v", a.handle.ID, err)
			return
		}
		logging.NewLogger(ctx).Debugf("deleted remote file %q", a.handle.ID)
	})
}
