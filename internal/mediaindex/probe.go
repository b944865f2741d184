package mediaindex

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// ProbeDurationMs asks ffprobe for the duration of an audio file. The
// matcher tolerates zero durations, so an absent ffprobe or a probe failure
// degrades to 0 rather than erroring.
func ProbeDurationMs(ctx context.Context, path string) int64 {
	if _, err := exec.LookPath("ffprobe"); err != nil {
		return 0
	}

	cmd := exec.CommandContext(ctx, "ffprobe",
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "csv=p=0",
		path,
	)
	output, err := cmd.Output()
	if err != nil {
		return 0
	}

	seconds, err := strconv.ParseFloat(strings.TrimSpace(string(output)), 64)
	if err != nil {
		return 0
	}
	return int64(seconds * 1000)
}

// ProbeBitrate returns the overall bitrate of an audio file in bits per
// second.
func ProbeBitrate(ctx context.Context, path string) (int, error) {
	if _, err := exec.LookPath("ffprobe"); err != nil {
		return 0, fmt.Errorf("ffprobe not found: %w", err)
	}

	cmd := exec.CommandContext(ctx, "ffprobe",
		"-v", "error",
		"-show_entries", "format=bit_rate",
		"-of", "csv=p=0",
		path,
	)
	output, err := cmd.Output()
	if err != nil {
		return 0, fmt.Errorf("probing bitrate: %w", err)
	}

	bitrate, err := strconv.Atoi(strings.TrimSpace(string(output)))
	if err != nil {
		return 0, fmt.Errorf("parsing bitrate: %w", err)
	}
	return bitrate, nil
}
