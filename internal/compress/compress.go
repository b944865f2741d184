package compress

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/hairocraft/callsync/internal/mediaindex"
	"go.uber.org/zap"
)

// Target encoding for uploaded recordings: mono AAC at 32kbps, well below
// what OEM recorders produce.
const (
	targetBitrate = 32000
	outputSuffix  = "_c32.m4a"
	// Inputs within this margin of the target are left alone; re-encoding
	// them would grow the file.
	skipMarginNum = 3
	skipMarginDen = 2
)

// Compressor shrinks a recording before upload. A failure must never break
// the upload: callers treat any error as "no compressed file" and send the
// original.
type Compressor interface {
	// Compress returns the path of the smaller output file, or "" when
	// the input is already compact enough. The input file is never
	// touched.
	Compress(ctx context.Context, inputPath string) (string, error)
}

type commandRunner func(ctx context.Context, name string, args ...string) error

// FFmpeg is the default compressor, shelling out to ffmpeg/ffprobe.
type FFmpeg struct {
	cacheDir string
	run      commandRunner
	probe    func(ctx context.Context, path string) (int, error)
	log      *zap.SugaredLogger
}

var _ Compressor = (*FFmpeg)(nil)

func NewFFmpeg(cacheDir string) *FFmpeg {
	return &FFmpeg{
		cacheDir: cacheDir,
		run:      runCommand,
		probe:    mediaindex.ProbeBitrate,
		log:      zap.S().Named("compress"),
	}
}

func (f *FFmpeg) Compress(ctx context.Context, inputPath string) (string, error) {
	if bitrate, err := f.probe(ctx, inputPath); err == nil {
		if bitrate <= targetBitrate*skipMarginNum/skipMarginDen {
			f.log.Debugf("%s already at %d bps, skipping re-encode", filepath.Base(inputPath), bitrate)
			return "", nil
		}
	}

	if err := os.MkdirAll(f.cacheDir, 0o755); err != nil {
		return "", fmt.Errorf("creating cache dir: %w", err)
	}

	base := filepath.Base(inputPath)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	outputPath := filepath.Join(f.cacheDir, base+outputSuffix)

	err := f.run(ctx, "ffmpeg",
		"-y",
		"-i", inputPath,
		"-vn",
		"-ac", "1",
		"-b:a", "32k",
		outputPath,
	)
	if err != nil {
		// Never leave a partial output behind.
		_ = os.Remove(outputPath)
		return "", fmt.Errorf("transcoding %s: %w", base, err)
	}

	return outputPath, nil
}

func runCommand(ctx context.Context, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s failed: %w: %s", name, err, string(output))
	}
	return nil
}
