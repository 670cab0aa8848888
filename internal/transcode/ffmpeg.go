// Package transcode drives the external video transform process. The
// transform burns the account's handle and logo into the frame with
// per-run positional jitter, and output is verified with a stream probe
// before the pipeline moves on.
package transcode

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"os/exec"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/reelrunner/internal/retry"
	"github.com/JakeFAU/reelrunner/internal/runner"
)

// Options locates the external binaries and overlay assets.
type Options struct {
	FFmpegPath  string
	FFprobePath string
	FontFile    string
	LogoPath    string
}

// FFmpeg invokes ffmpeg with a fixed argument template and verifies the
// result with ffprobe.
type FFmpeg struct {
	opts   Options
	rng    *rand.Rand
	logger *zap.Logger
}

// New builds an FFmpeg transcoder. rng jitters overlay placement between
// runs; pass a seeded source in tests for stable output.
func New(opts Options, rng *rand.Rand, logger *zap.Logger) *FFmpeg {
	if opts.FFmpegPath == "" {
		opts.FFmpegPath = "ffmpeg"
	}
	if opts.FFprobePath == "" {
		opts.FFprobePath = "ffprobe"
	}
	return &FFmpeg{opts: opts, rng: rng, logger: logger}
}

var (
	overlayPositions = []string{"20:H-h-20", "W-w-20:H-h-20", "20:20", "W-w-20:20"}
	textPositions    = []string{"x=20:y=20", "x=w-tw-20:y=20", "x=20:y=h-th-20", "x=w-tw-20:y=h-th-20"}
	usernameColors   = []string{"white", "yellow", "lightblue", "orange", "cyan"}
)

// Transform runs the ffmpeg template over inputPath, writing outputPath, then
// probes the output. A non-zero exit or an output without at least one valid
// stream is a hard failure. Allocation failures reported on stderr surface as
// resource-exhaustion errors so the guarded executor can react.
func (f *FFmpeg) Transform(ctx context.Context, acct runner.Account, inputPath, outputPath string) error {
	args := f.buildArgs(acct, inputPath, outputPath)

	cmd := exec.CommandContext(ctx, f.opts.FFmpegPath, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	f.logger.Info("transforming asset",
		zap.String("account", acct.Name),
		zap.String("input", inputPath),
		zap.String("output", outputPath),
	)
	if err := cmd.Run(); err != nil {
		return classifyRunError(err, stderr.String())
	}

	if err := f.verify(ctx, outputPath); err != nil {
		return fmt.Errorf("verify transformed asset: %w", err)
	}
	return nil
}

func classifyRunError(err error, stderr string) error {
	detail := strings.TrimSpace(stderr)
	if len(detail) > 512 {
		detail = detail[len(detail)-512:]
	}
	if retry.IsResourceExhausted(fmt.Errorf("%s", detail)) {
		return fmt.Errorf("ffmpeg: %s: %w", detail, retry.ErrResourceExhausted)
	}
	return fmt.Errorf("ffmpeg failed: %v: %s", err, detail)
}

// buildArgs renders the fixed argument template with per-run jitter. The
// filter graph scales slightly past the frame and crops back so the output
// never matches the source frame hash.
func (f *FFmpeg) buildArgs(acct runner.Account, inputPath, outputPath string) []string {
	overlayPos := overlayPositions[f.rng.Intn(len(overlayPositions))]
	textPos := textPositions[f.rng.Intn(len(textPositions))]
	centerPos := fmt.Sprintf("x=(w-tw)/2+%d:y=(h-th)/2+%d", f.rng.Intn(101)-50, f.rng.Intn(101)-50)
	usernameColor := usernameColors[f.rng.Intn(len(usernameColors))]
	usernameSize := 36 + f.rng.Intn(4)
	watermarkSize := 13 + f.rng.Intn(4)
	logoScale := 0.19 + f.rng.Float64()*0.04
	logoWidth := int(720 * logoScale)

	titleFilter := ""
	if acct.Title != "" {
		title := strings.ReplaceAll(acct.Title, "'", `\'`)
		titleFilter = fmt.Sprintf(
			"drawtext=text='%s':fontfile=%s:fontsize=40:fontcolor=white:x=(w-text_w)/2:y=20:"+
				"shadowcolor=black@0.7:shadowx=2:shadowy=2,",
			title, f.opts.FontFile,
		)
	}

	filter := fmt.Sprintf(
		"[1:v]scale=%d:-1,format=rgba[logo];"+
			"[0:v]scale=iw*1.02:ih*1.02,crop=iw-20:ih-20,%s"+
			"eq=brightness=0.02:saturation=1.3:contrast=1.1,"+
			"drawtext=text='@%s':fontfile=%s:fontsize=%d:fontcolor=%s:%s:"+
			"shadowcolor=black@0.5:shadowx=2:shadowy=2,"+
			"drawtext=text='@%s':fontfile=%s:fontsize=%d:fontcolor=white@0.03:%s:"+
			"shadowcolor=black@0.3:shadowx=1:shadowy=1[vt];"+
			"[vt][logo]overlay=%s:format=auto[v];"+
			"[0:a]adelay=200|200,asetrate=44100*1.02,aresample=44100,atempo=1.01,volume=1.1[a]",
		logoWidth, titleFilter,
		acct.Username, f.opts.FontFile, usernameSize, usernameColor, textPos,
		acct.Username, f.opts.FontFile, watermarkSize, centerPos,
		overlayPos,
	)

	return []string{
		"-i", inputPath,
		"-i", f.opts.LogoPath,
		"-filter_complex", filter,
		"-map", "[v]",
		"-map", "[a]",
		"-c:v", "libx264",
		"-preset", "ultrafast",
		"-crf", "28",
		"-threads", "2",
		"-c:a", "aac",
		"-b:a", "96k",
		"-movflags", "+faststart",
		"-y",
		outputPath,
	}
}

type probeOutput struct {
	Streams []json.RawMessage `json:"streams"`
}

// verify probes path and requires at least one valid stream.
func (f *FFmpeg) verify(ctx context.Context, path string) error {
	cmd := exec.CommandContext(ctx, f.opts.FFprobePath,
		"-v", "error",
		"-show_streams",
		"-of", "json",
		path,
	)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("ffprobe failed: %v: %s", err, strings.TrimSpace(stderr.String()))
	}
	return RequireStreams(stdout.Bytes())
}

// RequireStreams parses probe JSON and fails unless it reports at least one
// stream.
func RequireStreams(probeJSON []byte) error {
	var probe probeOutput
	if err := json.Unmarshal(probeJSON, &probe); err != nil {
		return fmt.Errorf("decode probe output: %w", err)
	}
	if len(probe.Streams) == 0 {
		return fmt.Errorf("no valid streams in output")
	}
	return nil
}
