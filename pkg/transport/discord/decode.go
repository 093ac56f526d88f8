package discord

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"strings"
)

// Decoder opens an audio reference and returns a stream of raw 48 kHz stereo
// s16le PCM. Closing the stream releases every resource behind it.
type Decoder func(ctx context.Context, audioRef string) (io.ReadCloser, error)

// FFmpegDecoder returns a [Decoder] that shells out to ffmpeg. audioRef may be
// a local path or an http(s) URL; ffmpeg reads both.
func FFmpegDecoder(ffmpegPath string) Decoder {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	return func(ctx context.Context, audioRef string) (io.ReadCloser, error) {
		args := []string{
			"-hide_banner",
			"-loglevel", "error",
			"-nostdin",
		}
		if strings.HasPrefix(audioRef, "http://") || strings.HasPrefix(audioRef, "https://") {
			args = append(args, "-reconnect", "1", "-reconnect_streamed", "1", "-reconnect_delay_max", "5")
		}
		args = append(args,
			"-i", audioRef,
			"-vn",
			"-f", "s16le",
			"-ar", strconv.Itoa(opusSampleRate),
			"-ac", strconv.Itoa(opusChannels),
			"pipe:1",
		)

		cmd := exec.CommandContext(ctx, ffmpegPath, args...)
		var stderr bytes.Buffer
		cmd.Stderr = &stderr
		stdout, err := cmd.StdoutPipe()
		if err != nil {
			return nil, fmt.Errorf("discord: ffmpeg stdout: %w", err)
		}
		if err := cmd.Start(); err != nil {
			return nil, fmt.Errorf("discord: start ffmpeg: %w", err)
		}
		return &ffmpegStream{cmd: cmd, stdout: stdout, stderr: &stderr}, nil
	}
}

type ffmpegStream struct {
	cmd    *exec.Cmd
	stdout io.ReadCloser
	stderr *bytes.Buffer
}

func (s *ffmpegStream) Read(p []byte) (int, error) { return s.stdout.Read(p) }

// Close stops ffmpeg if it is still running and reaps it.
func (s *ffmpegStream) Close() error {
	_ = s.stdout.Close()
	if s.cmd.ProcessState == nil && s.cmd.Process != nil {
		_ = s.cmd.Process.Kill()
	}
	err := s.cmd.Wait()
	if err != nil && s.stderr.Len() > 0 {
		return fmt.Errorf("discord: ffmpeg: %w: %s", err, strings.TrimSpace(s.stderr.String()))
	}
	return err
}
