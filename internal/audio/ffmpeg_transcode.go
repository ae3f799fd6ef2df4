package audio

import (
	"context"
	"errors"
	"fmt"
	"os/exec"

	"audioloop/internal/artifact"
	"audioloop/internal/domain"
)

// FFMPEGTranscoder converts WAV capture artifacts into AAC/M4A using ffmpeg.
type FFMPEGTranscoder struct {
	command string
	bitrate string
}

func NewFFMPEGTranscoder(command string, bitrate string) *FFMPEGTranscoder {
	if command == "" {
		command = "ffmpeg"
	}
	if bitrate == "" {
		bitrate = "128k"
	}
	return &FFMPEGTranscoder{command: command, bitrate: bitrate}
}

// Transcode blocks until dst is written. A cancelled ctx kills ffmpeg and
// returns ctx.Err().
func (t *FFMPEGTranscoder) Transcode(ctx context.Context, src domain.Artifact, dst domain.Artifact) error {
	if src.Format != domain.FormatCapture {
		return fmt.Errorf("unsupported source format %q", src.Format)
	}
	if dst.Format != domain.FormatPlayback {
		return fmt.Errorf("unsupported destination format %q", dst.Format)
	}

	info, err := artifact.InspectWAV(src.Path)
	if err != nil {
		return fmt.Errorf("invalid capture artifact: %w", err)
	}
	if info.DataBytes == 0 {
		return errors.New("capture artifact contains no audio")
	}

	args := []string{
		"-nostdin",
		"-hide_banner",
		"-loglevel", "warning",
		"-y",
		"-i", src.Path,
		"-vn",
		"-c:a", "aac",
		"-b:a", t.bitrate,
		"-f", "ipod",
		dst.Path,
	}

	out, err := exec.CommandContext(ctx, t.command, args...).CombinedOutput()
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if err != nil {
		return fmt.Errorf("ffmpeg transcode failed: %w: %s", err, stringsTrimSpaceSafe(string(out)))
	}
	return nil
}
