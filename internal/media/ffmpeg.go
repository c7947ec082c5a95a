package media

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// FFmpeg runs ffmpeg/ffprobe subprocesses for clip extraction. Binaries are
// resolved through the PATH once at construction.
type FFmpeg struct {
	ffmpegPath  string
	ffprobePath string
}

// NewFFmpeg locates the ffmpeg binary. ffprobe is optional: when it is
// missing, probes report an error and callers skip duration clamping.
func NewFFmpeg() (*FFmpeg, error) {
	ffmpegPath, err := exec.LookPath("ffmpeg")
	if err != nil {
		return nil, fmt.Errorf("ffmpeg not found in PATH: %w", err)
	}
	ffprobePath, _ := exec.LookPath("ffprobe")

	return &FFmpeg{
		ffmpegPath:  ffmpegPath,
		ffprobePath: ffprobePath,
	}, nil
}

// ExtractAudioClip stream-copies a window of src into out.
func (ff *FFmpeg) ExtractAudioClip(ctx context.Context, src, out string, start, duration float64) error {
	return ff.run(ctx, audioClipArgs(src, out, start, duration))
}

// ExtractVideoClip transcodes a window of src into a broadly playable mp4.
func (ff *FFmpeg) ExtractVideoClip(ctx context.Context, src, out string, start, duration float64) error {
	return ff.run(ctx, videoClipArgs(src, out, start, duration))
}

func (ff *FFmpeg) run(ctx context.Context, args []string) error {
	cmd := exec.CommandContext(ctx, ff.ffmpegPath, args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("ffmpeg: %w: %s", err, strings.TrimSpace(string(output)))
	}
	return nil
}

// ProbeDuration returns the container duration of src in seconds.
func (ff *FFmpeg) ProbeDuration(ctx context.Context, src string) (float64, error) {
	if ff.ffprobePath == "" {
		return 0, fmt.Errorf("ffprobe not available")
	}

	cmd := exec.CommandContext(ctx, ff.ffprobePath, probeArgs(src)...)
	output, err := cmd.Output()
	if err != nil {
		return 0, fmt.Errorf("ffprobe: %w", err)
	}

	var probe struct {
		Format struct {
			Duration string `json:"duration"`
		} `json:"format"`
	}
	if err := json.Unmarshal(output, &probe); err != nil {
		return 0, fmt.Errorf("parse ffprobe output: %w", err)
	}
	duration, err := strconv.ParseFloat(probe.Format.Duration, 64)
	if err != nil {
		return 0, fmt.Errorf("parse duration %q: %w", probe.Format.Duration, err)
	}
	return duration, nil
}

func audioClipArgs(src, out string, start, duration float64) []string {
	return []string{
		"-i", src,
		"-ss", formatSeconds(start),
		"-t", formatSeconds(duration),
		"-acodec", "copy",
		"-y", out,
	}
}

func videoClipArgs(src, out string, start, duration float64) []string {
	return []string{
		"-i", src,
		"-ss", formatSeconds(start),
		"-t", formatSeconds(duration),
		"-c:v", "libx264",
		"-profile:v", "baseline",
		"-level", "3.0",
		"-preset", "fast",
		"-c:a", "aac",
		"-ar", "48000",
		"-b:a", "192k",
		"-ac", "2",
		"-movflags", "+faststart",
		"-y", out,
	}
}

func probeArgs(src string) []string {
	return []string{
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		src,
	}
}

func formatSeconds(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}
