package media

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/suite"
)

type fakeRunner struct {
	result   commandResult
	err      error
	calls    int
	lastName string
	lastArgs []string

	// createOutput writes the expected output file so the stat check passes.
	createOutput bool
}

func (r *fakeRunner) Run(ctx context.Context, name string, args ...string) (commandResult, error) {
	r.calls++
	r.lastName = name
	r.lastArgs = args
	if r.createOutput && len(args) > 0 {
		outPath := args[len(args)-1]
		_ = os.WriteFile(outPath, []byte("RIFF"), 0o600)
	}
	return r.result, r.err
}

type MediaConverterSuite struct {
	suite.Suite
}

func TestMediaConverterSuite(t *testing.T) {
	suite.Run(t, new(MediaConverterSuite))
}

func (s *MediaConverterSuite) newConverter(runner commandRunner) *Converter {
	tempRoot := s.T().TempDir()
	return newConverterForTests(
		"ffmpeg",
		runner,
		func(dir, pattern string) (string, error) {
			return os.MkdirTemp(tempRoot, pattern)
		},
		os.Stat,
	)
}

func (s *MediaConverterSuite) writeInput(name string) string {
	path := filepath.Join(s.T().TempDir(), name)
	s.Require().NoError(os.WriteFile(path, []byte("media"), 0o600))
	return path
}

func (s *MediaConverterSuite) TestPrepareEmptyPathFails() {
	converter := s.newConverter(&fakeRunner{})

	prepared, err := converter.Prepare(context.Background(), "  ")
	s.Require().Error(err)
	s.Nil(prepared)

	var convErr *ConversionError
	s.Require().ErrorAs(err, &convErr)
	s.Contains(convErr.Message, "required")
}

func (s *MediaConverterSuite) TestPrepareMissingInputFails() {
	converter := s.newConverter(&fakeRunner{})

	_, err := converter.Prepare(context.Background(), "/nonexistent/voice.ogg")
	s.Require().Error(err)
	s.Contains(err.Error(), "cannot access input media")
}

// writeWAV writes a minimal RIFF/WAVE file with the given fmt chunk.
func (s *MediaConverterSuite) writeWAV(name string, audioFormat, channels uint16, sampleRate uint32) string {
	var buf bytes.Buffer
	buf.WriteString("RIFF")
	_ = binary.Write(&buf, binary.LittleEndian, uint32(36))
	buf.WriteString("WAVE")
	buf.WriteString("fmt ")
	_ = binary.Write(&buf, binary.LittleEndian, uint32(16))
	_ = binary.Write(&buf, binary.LittleEndian, audioFormat)
	_ = binary.Write(&buf, binary.LittleEndian, channels)
	_ = binary.Write(&buf, binary.LittleEndian, sampleRate)
	_ = binary.Write(&buf, binary.LittleEndian, sampleRate*uint32(channels)*2) // byte rate
	_ = binary.Write(&buf, binary.LittleEndian, channels*2)                    // block align
	_ = binary.Write(&buf, binary.LittleEndian, uint16(16))                    // bits per sample
	buf.WriteString("data")
	_ = binary.Write(&buf, binary.LittleEndian, uint32(0))

	path := filepath.Join(s.T().TempDir(), name)
	s.Require().NoError(os.WriteFile(path, buf.Bytes(), 0o600))
	return path
}

func (s *MediaConverterSuite) TestPrepareWavAtTargetFormatPassesThrough() {
	runner := &fakeRunner{}
	converter := s.newConverter(runner)
	input := s.writeWAV("voice.wav", 1, 1, 16000)

	prepared, err := converter.Prepare(context.Background(), input)
	s.Require().NoError(err)
	s.Equal(input, prepared.AudioPath)
	s.Equal(0, runner.calls)

	// no temp dir to clean
	prepared.Cleanup()
}

func (s *MediaConverterSuite) TestPrepareConvertsOffTargetWAV() {
	runner := &fakeRunner{createOutput: true}
	converter := s.newConverter(runner)
	input := s.writeWAV("stereo.wav", 1, 2, 44100)

	prepared, err := converter.Prepare(context.Background(), input)
	s.Require().NoError(err)
	s.Equal(1, runner.calls)
	s.NotEqual(input, prepared.AudioPath)

	prepared.Cleanup()
}

func (s *MediaConverterSuite) TestPrepareConvertsMalformedWAV() {
	runner := &fakeRunner{createOutput: true}
	converter := s.newConverter(runner)
	input := s.writeInput("broken.wav")

	prepared, err := converter.Prepare(context.Background(), input)
	s.Require().NoError(err)
	s.Equal(1, runner.calls)

	prepared.Cleanup()
}

func (s *MediaConverterSuite) TestReadWAVFormat() {
	path := s.writeWAV("studio.wav", 1, 2, 44100)

	format, err := readWAVFormat(path)
	s.Require().NoError(err)
	s.Equal(uint16(1), format.audioFormat)
	s.Equal(uint16(2), format.channels)
	s.Equal(uint32(44100), format.sampleRate)
	s.False(format.matchesTarget())

	_, err = readWAVFormat(s.writeInput("noise.wav"))
	s.Error(err)
}

func (s *MediaConverterSuite) TestPrepareConvertsNonWavInput() {
	runner := &fakeRunner{createOutput: true}
	converter := s.newConverter(runner)
	input := s.writeInput("clip.mp4")

	prepared, err := converter.Prepare(context.Background(), input)
	s.Require().NoError(err)
	s.Equal(1, runner.calls)
	s.Equal("ffmpeg", runner.lastName)
	s.Contains(runner.lastArgs, "-vn")
	s.Contains(runner.lastArgs, "16000")

	_, statErr := os.Stat(prepared.AudioPath)
	s.Require().NoError(statErr)

	prepared.Cleanup()
	_, statErr = os.Stat(prepared.AudioPath)
	s.Error(statErr)
}

func (s *MediaConverterSuite) TestPrepareCommandFailureSurfacesLog() {
	runner := &fakeRunner{
		result: commandResult{ExitCode: 1, Stderr: "invalid data"},
		err:    errors.New("exit status 1"),
	}
	converter := s.newConverter(runner)
	input := s.writeInput("voice.ogg")

	_, err := converter.Prepare(context.Background(), input)
	s.Require().Error(err)

	var convErr *ConversionError
	s.Require().ErrorAs(err, &convErr)
	s.Equal(1, convErr.CommandLog.ExitCode)
	s.Equal("invalid data", convErr.CommandLog.Stderr)
}

func (s *MediaConverterSuite) TestPrepareMissingOutputFails() {
	runner := &fakeRunner{}
	converter := s.newConverter(runner)
	input := s.writeInput("voice.m4a")

	_, err := converter.Prepare(context.Background(), input)
	s.Require().Error(err)
	s.Contains(err.Error(), "output file is missing")
}

func (s *MediaConverterSuite) TestBuildFFmpegArgsShape() {
	args := buildFFmpegArgs("in.mp4", "out.wav")
	s.Equal("out.wav", args[len(args)-1])
	s.Contains(args, "-nostdin")
	s.Contains(args, "pcm_s16le")
}
