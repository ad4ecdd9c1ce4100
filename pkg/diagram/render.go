package diagram

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/voicio/voicepipe/pkg/logging"
	"github.com/voicio/voicepipe/pkg/media"
	"github.com/voicio/voicepipe/pkg/model"
)

const (
	defaultMermaidPath   = "mmdc"
	defaultRenderTimeout = 60 * time.Second

	// 900x1600 keeps the output at a 9:16 portrait ratio for phone screens.
	renderWidth  = "900"
	renderHeight = "1600"
)

// RenderError is a renderer invocation failure. It is never surfaced to the
// pipeline caller; the builder converts it into a fallback image.
type RenderError struct {
	Message    string
	CommandLog media.CommandLog
	Err        error
}

func (e *RenderError) Error() string {
	if e == nil {
		return ""
	}
	if e.CommandLog.Command == "" {
		return e.Message
	}
	return fmt.Sprintf("%s (cmd=%s exit=%d)", e.Message, e.CommandLog.Command, e.CommandLog.ExitCode)
}

func (e *RenderError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Diagnostic is the display form of the failure: the message plus any
// stderr the renderer produced.
func (e *RenderError) Diagnostic() string {
	if e == nil {
		return ""
	}
	detail := e.Error()
	if stderr := strings.TrimSpace(e.CommandLog.Stderr); stderr != "" {
		detail += "\n" + stderr
	}
	return detail
}

type commandResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

type commandRunner interface {
	Run(ctx context.Context, name string, args ...string) (commandResult, error)
}

type execRunner struct{}

func (r *execRunner) Run(ctx context.Context, name string, args ...string) (commandResult, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	result := commandResult{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		ExitCode: 0,
	}
	if err != nil {
		result.ExitCode = -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
		}
		return result, err
	}

	return result, nil
}

// Renderer shells out to the Mermaid CLI. Rendering runs under a fixed
// wall-clock timeout and is never retried; a failed render is terminal for
// this stage.
type Renderer struct {
	mermaidPath     string
	puppeteerConfig string
	timeout         time.Duration

	runner    commandRunner
	mkdirTemp func(dir, pattern string) (string, error)
}

type RendererOption func(*Renderer)

// WithMermaidPath overrides the mmdc binary location.
func WithMermaidPath(path string) RendererOption {
	return func(r *Renderer) {
		r.mermaidPath = path
	}
}

// WithPuppeteerConfig passes a puppeteer config file to mmdc, needed when
// the headless browser lives in a non-standard location.
func WithPuppeteerConfig(path string) RendererOption {
	return func(r *Renderer) {
		r.puppeteerConfig = path
	}
}

// WithRenderTimeout bounds one renderer invocation.
func WithRenderTimeout(timeout time.Duration) RendererOption {
	return func(r *Renderer) {
		r.timeout = timeout
	}
}

func NewRenderer(opts ...RendererOption) *Renderer {
	renderer := &Renderer{
		mermaidPath: defaultMermaidPath,
		timeout:     defaultRenderTimeout,
		runner:      &execRunner{},
		mkdirTemp:   os.MkdirTemp,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(renderer)
		}
	}
	return renderer
}

// Render composes the document and invokes mmdc on it, returning PNG bytes.
// A non-zero exit, a missing binary, a timeout, or an empty output file all
// come back as a RenderError.
func (r *Renderer) Render(ctx context.Context, doc Document, language model.Language) ([]byte, error) {
	log := logging.NewLogger(ctx)

	tempDir, err := r.mkdirTemp("", "voicepipe-diagram-*")
	if err != nil {
		log.Errorf("error: %v", err)
		return nil, &RenderError{Message: "failed to create temp dir", Err: err}
	}
	defer func() {
		if removeErr := os.RemoveAll(tempDir); removeErr != nil {
			log.Warnf("failed to remove temp dir %s: %v", tempDir, removeErr)
		}
	}()

	inputPath := filepath.Join(tempDir, "diagram.mmd")
	outputPath := filepath.Join(tempDir, "diagram.png")
	if err := os.WriteFile(inputPath, []byte(doc.Compose(language)), 0o600); err != nil {
		log.Errorf("error: %v", err)
		return nil, &RenderError{Message: "failed to write diagram source", Err: err}
	}

	args := []string{
		"-i", inputPath,
		"-o", outputPath,
		"-b", "transparent",
		"-w", renderWidth,
		"-H", renderHeight,
		"--pdfFit",
	}
	if r.puppeteerConfig != "" {
		args = append(args, "-p", r.puppeteerConfig)
	}

	runCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	log.Debugf("rendering diagram kind=%s via %s", doc.Kind, r.mermaidPath)
	result, err := r.runner.Run(runCtx, r.mermaidPath, args...)
	commandLog := media.CommandLog{
		Command:  r.mermaidPath,
		Args:     args,
		ExitCode: result.ExitCode,
		Stdout:   result.Stdout,
		Stderr:   result.Stderr,
	}
	if err != nil {
		log.Errorf("error: %v", err)
		return nil, &RenderError{Message: "mermaid renderer failed", CommandLog: commandLog, Err: err}
	}
	if result.ExitCode != 0 {
		return nil, &RenderError{Message: "mermaid renderer exited non-zero", CommandLog: commandLog}
	}

	image, err := os.ReadFile(outputPath)
	if err != nil {
		log.Errorf("error: %v", err)
		return nil, &RenderError{Message: "renderer produced no output", CommandLog: commandLog, Err: err}
	}
	if len(image) == 0 {
		return nil, &RenderError{Message: "renderer produced empty output", CommandLog: commandLog}
	}

	return image, nil
}

func newRendererForTests(runner commandRunner, mkdirTemp func(dir, pattern string) (string, error)) *Renderer {
	renderer := NewRenderer()
	if runner != nil {
		renderer.runner = runner
	}
	if mkdirTemp != nil {
		renderer.mkdirTemp = mkdirTemp
	}
	return renderer
}
