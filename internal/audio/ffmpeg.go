package audio

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
)

// TempStore stages uploaded bytes on disk for external tools.
// storage.LocalStorage satisfies it.
type TempStore interface {
	SaveTemp(ctx context.Context, name string, data io.Reader) (path string, err error)
	LoadTemp(ctx context.Context, path string) (io.ReadCloser, error)
	CleanupTemp(ctx context.Context, paths []string) error
}

// FFmpegDecoder implements Decoder using the ffmpeg CLI.
// It transcodes any container ffmpeg understands into 16-bit PCM WAV at the
// source sample rate and channel count, then decodes that WAV in-process.
type FFmpegDecoder struct {
	ffmpegPath string
	store      TempStore
}

// NewFFmpegDecoder creates a new FFmpegDecoder.
// If ffmpegPath is empty, it defaults to "ffmpeg" (found in PATH).
func NewFFmpegDecoder(ffmpegPath string, store TempStore) *FFmpegDecoder {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	return &FFmpegDecoder{ffmpegPath: ffmpegPath, store: store}
}

// Decode implements Decoder.
func (d *FFmpegDecoder) Decode(ctx context.Context, data []byte, format Format) (*PCM, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty input", ErrDecode)
	}

	inputPath, err := d.store.SaveTemp(ctx, "upload_"+string(format), bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("stage input: %w", err)
	}
	outputPath := inputPath + ".wav"
	defer func() {
		_ = d.store.CleanupTemp(context.WithoutCancel(ctx), []string{inputPath, outputPath})
	}()

	// No -ar: the native sample rate must be preserved.
	args := []string{
		"-y",
		"-hide_banner",
		"-loglevel", "error",
		"-i", inputPath,
		"-vn",
		"-map", "0:a:0",
		"-c:a", "pcm_s16le",
		"-f", "wav",
		outputPath,
	}
	if err := d.runFFmpeg(ctx, args); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecode, err)
	}

	rc, err := d.store.LoadTemp(ctx, outputPath)
	if err != nil {
		return nil, fmt.Errorf("%w: open transcoded audio: %w", ErrDecode, err)
	}
	defer func() { _ = rc.Close() }()

	wavData, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("%w: read transcoded audio: %w", ErrDecode, err)
	}
	return decodeWAV(wavData)
}

// runFFmpeg executes ffmpeg with the given arguments and returns an error
// containing stderr output if the command fails.
func (d *FFmpegDecoder) runFFmpeg(ctx context.Context, args []string) error {
	// #nosec G204 - ffmpegPath is set by the application, not user input
	cmd := exec.CommandContext(ctx, d.ffmpegPath, args...)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("ffmpeg cancelled: %w", ctx.Err())
		}
		return &FFmpegError{
			Args:   args,
			Stderr: stderr.String(),
			Err:    err,
		}
	}
	return nil
}

// FFmpegError represents an error from running ffmpeg, including the stderr output.
type FFmpegError struct {
	Args   []string
	Stderr string
	Err    error
}

func (e *FFmpegError) Error() string {
	return fmt.Sprintf("ffmpeg error: %v\nargs: %v\nstderr: %s", e.Err, e.Args, e.Stderr)
}

func (e *FFmpegError) Unwrap() error {
	return e.Err
}

// Verify interface implementation at compile time.
var _ Decoder = (*FFmpegDecoder)(nil)
