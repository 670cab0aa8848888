package transcode

import (
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/reelrunner/internal/retry"
	"github.com/JakeFAU/reelrunner/internal/runner"
)

func newTestFFmpeg() *FFmpeg {
	return New(Options{
		FFmpegPath:  "ffmpeg",
		FFprobePath: "ffprobe",
		FontFile:    "/fonts/Bold.ttf",
		LogoPath:    "logo.png",
	}, rand.New(rand.NewSource(1)), zap.NewNop())
}

func TestBuildArgs_Template(t *testing.T) {
	t.Parallel()
	f := newTestFFmpeg()
	acct := runner.Account{Name: "acct1", Username: "rider"}

	args := f.buildArgs(acct, "in.mp4", "out.mp4")

	joined := strings.Join(args, " ")
	require.Equal(t, "-i", args[0])
	require.Equal(t, "in.mp4", args[1])
	require.Equal(t, "logo.png", args[3])
	require.Equal(t, "out.mp4", args[len(args)-1])
	require.Contains(t, joined, "-filter_complex")
	require.Contains(t, joined, "drawtext=text='@rider'")
	require.Contains(t, joined, "libx264")
	require.Contains(t, joined, "+faststart")
	require.NotContains(t, joined, "fontsize=40", "no title filter without a title")
}

func TestBuildArgs_TitleOverlay(t *testing.T) {
	t.Parallel()
	f := newTestFFmpeg()
	acct := runner.Account{Name: "acct1", Username: "rider", Title: "Editor's pick"}

	args := f.buildArgs(acct, "in.mp4", "out.mp4")
	joined := strings.Join(args, " ")
	require.Contains(t, joined, `drawtext=text='Editor\'s pick'`)
	require.Contains(t, joined, "fontsize=40")
}

func TestBuildArgs_JitterStaysInRange(t *testing.T) {
	t.Parallel()
	f := New(Options{FontFile: "f.ttf", LogoPath: "l.png"}, rand.New(rand.NewSource(42)), zap.NewNop())
	acct := runner.Account{Username: "u"}

	for i := 0; i < 50; i++ {
		args := f.buildArgs(acct, "in.mp4", "out.mp4")
		joined := strings.Join(args, " ")
		matched := false
		for _, pos := range overlayPositions {
			if strings.Contains(joined, "overlay="+pos+":format=auto") {
				matched = true
				break
			}
		}
		require.True(t, matched, "overlay position must come from the fixed set")
	}
}

func TestRequireStreams(t *testing.T) {
	t.Parallel()
	require.NoError(t, RequireStreams([]byte(`{"streams":[{"codec_type":"video"}]}`)))
	require.Error(t, RequireStreams([]byte(`{"streams":[]}`)))
	require.Error(t, RequireStreams([]byte(`{}`)))
	require.Error(t, RequireStreams([]byte(`not json`)))
}

func TestClassifyRunError(t *testing.T) {
	t.Parallel()
	err := classifyRunError(errors.New("exit status 1"), "Error while filtering: Cannot allocate memory")
	require.True(t, retry.IsResourceExhausted(err))

	err = classifyRunError(errors.New("exit status 1"), "Invalid data found when processing input")
	require.False(t, errors.Is(err, retry.ErrResourceExhausted))
	require.Contains(t, err.Error(), "Invalid data")

	long := strings.Repeat("x", 1000) + " tail-marker"
	err = classifyRunError(fmt.Errorf("exit status 1"), long)
	require.Contains(t, err.Error(), "tail-marker")
}
