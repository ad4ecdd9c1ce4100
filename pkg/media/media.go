// Package media prepares local voice and video-clip files for speech
// providers. The only external tool is ffmpeg; everything it produces is
// 16 kHz mono PCM WAV, which every supported speech model accepts.
package media

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/voicio/voicepipe/pkg/logging"
)

// CommandLog captures one external command invocation result.
type CommandLog struct {
	Command  string   `json:"command"`
	Args     []string `json:"args"`
	ExitCode int      `json:"exitCode"`
	Stdout   string   `json:"stdout"`
	Stderr   string   `json:"stderr"`
}

// ConversionError is a command-aware preprocessing failure.
type ConversionError struct {
	Message    string
	CommandLog CommandLog
	Err        error
}

func (e *ConversionError) Error() string {
	if e == nil {
		return ""
	}
	if e.CommandLog.Command == "" {
		return e.Message
	}
	return fmt.Sprintf("%s (cmd=%s exit=%d)", e.Message, e.CommandLog.Command, e.CommandLog.ExitCode)
}

func (e *ConversionError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

type commandResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// commandRunner abstracts process execution for testability.
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

// Converter turns arbitrary audio and video containers into WAV files
// suitable for speech models.
type Converter struct {
	ffmpegPath string
	runner     commandRunner
	mkdirTemp  func(dir, pattern string) (string, error)
	stat       func(name string) (os.FileInfo, error)
}

func NewConverter() *Converter {
	return &Converter{
		ffmpegPath: "ffmpeg",
		runner:     &execRunner{},
		mkdirTemp:  os.MkdirTemp,
		stat:       os.Stat,
	}
}

// Prepared is a converted audio artifact. Cleanup removes the temporary
// directory holding it.
type Prepared struct {
	AudioPath string
	Log       CommandLog
	tempDir   string
}

func (p *Prepared) Cleanup() {
	if p == nil || p.tempDir == "" {
		return
	}
	_ = os.RemoveAll(p.tempDir)
	p.tempDir = ""
}

// wavExtensions lists inputs that may skip conversion when their format
// chunk already matches the target.
var wavExtensions = map[string]bool{
	".wav": true,
}

// Prepare converts the input to 16 kHz mono WAV. A WAV input already in
// PCM 16 kHz mono passes through untouched with no temp dir to clean;
// anything else, including WAVs at other rates or channel counts, goes
// through ffmpeg.
func (c *Converter) Prepare(ctx context.Context, inputPath string) (*Prepared, error) {
	if strings.TrimSpace(inputPath) == "" {
		return nil, &ConversionError{Message: "input media path is required"}
	}
	if _, err := c.stat(inputPath); err != nil {
		return nil, &ConversionError{
			Message: fmt.Sprintf("cannot access input media: %s", inputPath),
			Err:     err,
		}
	}

	if wavExtensions[strings.ToLower(filepath.Ext(inputPath))] {
		format, err := readWAVFormat(inputPath)
		if err == nil && format.matchesTarget() {
			return &Prepared{AudioPath: inputPath}, nil
		}
		if err != nil {
			logging.NewLogger(ctx).Debugf("cannot read WAV format of %q, converting: %v", inputPath, err)
		}
	}

	tempDir, err := c.mkdirTemp("", "voicepipe-*")
	if err != nil {
		return nil, &ConversionError{
			Message: "failed to create temporary workspace",
			Err:     err,
		}
	}

	outPath := filepath.Join(tempDir, "audio-16k-mono.wav")
	args := buildFFmpegArgs(inputPath, outPath)

	cmdResult, runErr := c.runner.Run(ctx, c.ffmpegPath, args...)
	log := CommandLog{
		Command:  c.ffmpegPath,
		Args:     args,
		ExitCode: cmdResult.ExitCode,
		Stdout:   cmdResult.Stdout,
		Stderr:   cmdResult.Stderr,
	}
	logging.NewLogger(ctx).Debugf("ffmpeg exit=%d input=%q", log.ExitCode, inputPath)

	if runErr != nil {
		_ = os.RemoveAll(tempDir)
		return nil, &ConversionError{
			Message:    "ffmpeg audio conversion failed",
			CommandLog: log,
			Err:        runErr,
		}
	}
	if _, err := c.stat(outPath); err != nil {
		_ = os.RemoveAll(tempDir)
		return nil, &ConversionError{
			Message:    "ffmpeg completed but output file is missing",
			CommandLog: log,
			Err:        err,
		}
	}

	return &Prepared{
		AudioPath: outPath,
		Log:       log,
		tempDir:   tempDir,
	}, nil
}

const (
	targetSampleRate = 16000
	targetChannels   = 1

	// wavFormatPCM is the fmt-chunk audio format tag for uncompressed PCM.
	wavFormatPCM = 1
)

// wavFormat is the part of a WAV fmt chunk that decides whether conversion
// is needed.
type wavFormat struct {
	audioFormat uint16
	channels    uint16
	sampleRate  uint32
}

func (f wavFormat) matchesTarget() bool {
	return f.audioFormat == wavFormatPCM &&
		f.channels == targetChannels &&
		f.sampleRate == targetSampleRate
}

// readWAVFormat walks the RIFF chunks of a WAV file until it finds the fmt
// chunk and decodes its leading fields.
func readWAVFormat(path string) (wavFormat, error) {
	file, err := os.Open(path)
	if err != nil {
		return wavFormat{}, err
	}
	defer file.Close()

	var riffHeader [12]byte
	if _, err := io.ReadFull(file, riffHeader[:]); err != nil {
		return wavFormat{}, fmt.Errorf("short RIFF header: %w", err)
	}
	if string(riffHeader[0:4]) != "RIFF" || string(riffHeader[8:12]) != "WAVE" {
		return wavFormat{}, errors.New("not a RIFF/WAVE file")
	}

	for {
		var chunkHeader [8]byte
		if _, err := io.ReadFull(file, chunkHeader[:]); err != nil {
			return wavFormat{}, fmt.Errorf("no fmt chunk: %w", err)
		}
		chunkSize := binary.LittleEndian.Uint32(chunkHeader[4:8])

		if string(chunkHeader[0:4]) == "fmt " {
			var fmtChunk [8]byte
			if chunkSize < uint32(len(fmtChunk)) {
				return wavFormat{}, errors.New("fmt chunk too short")
			}
			if _, err := io.ReadFull(file, fmtChunk[:]); err != nil {
				return wavFormat{}, fmt.Errorf("short fmt chunk: %w", err)
			}
			return wavFormat{
				audioFormat: binary.LittleEndian.Uint16(fmtChunk[0:2]),
				channels:    binary.LittleEndian.Uint16(fmtChunk[2:4]),
				sampleRate:  binary.LittleEndian.Uint32(fmtChunk[4:8]),
			}, nil
		}

		// Chunks are word-aligned; odd sizes carry a pad byte.
		skip := int64(chunkSize)
		if chunkSize%2 == 1 {
			skip++
		}
		if _, err := file.Seek(skip, io.SeekCurrent); err != nil {
			return wavFormat{}, err
		}
	}
}

// buildFFmpegArgs builds CLI args for mono 16k PCM WAV output. -vn drops
// any video stream, so video clips come out as plain audio.
func buildFFmpegArgs(inputPath, outPath string) []string {
	return []string{
		"-hide_banner",
		"-nostdin",
		"-y",
		"-i", inputPath,
		"-vn",
		"-ac", strconv.Itoa(targetChannels),
		"-ar", strconv.Itoa(targetSampleRate),
		"-c:a", "pcm_s16le",
		outPath,
	}
}

// newConverterForTests constructs a converter with injectable dependencies.
func newConverterForTests(
	ffmpegPath string,
	runner commandRunner,
	mkdirTemp func(dir, pattern string) (string, error),
	stat func(name string) (os.FileInfo, error),
) *Converter {
	return &Converter{
		ffmpegPath: ffmpegPath,
		runner:     runner,
		mkdirTemp:  mkdirTemp,
		stat:       stat,
	}
}
