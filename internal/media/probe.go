package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/abema/go-mp4"
)

// ErrUnreadableMedia indicates the duration of a file could not be determined.
var ErrUnreadableMedia = errors.New("media: unreadable media")

// MaxProbeDuration bounds a declared duration; anything longer is treated as a corrupt header.
const MaxProbeDuration = 24 * time.Hour

// Prober measures the playback duration of a video.
type Prober interface {
	Probe(ctx context.Context, data []byte) (time.Duration, error)
}

// MP4Prober reads the movie header of ISO base media files.
type MP4Prober struct{}

// Probe returns the duration declared by the movie header.
func (MP4Prober) Probe(_ context.Context, data []byte) (time.Duration, error) {
	if len(data) == 0 {
		return 0, fmt.Errorf("%w: empty file", ErrUnreadableMedia)
	}
	info, err := mp4.Probe(bytes.NewReader(data))
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnreadableMedia, err)
	}
	if info.Timescale == 0 {
		return 0, fmt.Errorf("%w: missing movie header", ErrUnreadableMedia)
	}
	timescale := uint64(info.Timescale)
	if info.Duration/timescale >= uint64(MaxProbeDuration/time.Second) {
		return 0, fmt.Errorf("%w: implausible duration %d/%d", ErrUnreadableMedia, info.Duration, timescale)
	}
	whole := time.Duration(info.Duration/timescale) * time.Second
	fraction := time.Duration(info.Duration%timescale) * time.Second / time.Duration(timescale)
	return whole + fraction, nil
}

// FFProbe shells out to ffprobe for containers MP4Prober does not understand.
type FFProbe struct {
	// Path is the ffprobe binary; defaults to "ffprobe" on PATH.
	Path string
}

// Probe writes data to a temporary file and asks ffprobe for the container duration.
func (p FFProbe) Probe(ctx context.Context, data []byte) (time.Duration, error) {
	if len(data) == 0 {
		return 0, fmt.Errorf("%w: empty file", ErrUnreadableMedia)
	}
	binary := strings.TrimSpace(p.Path)
	if binary == "" {
		binary = "ffprobe"
	}

	tempFile, err := os.CreateTemp("", "fanreel-probe-*")
	if err != nil {
		return 0, fmt.Errorf("media: create probe file: %w", err)
	}
	defer os.Remove(tempFile.Name())
	if _, err := tempFile.Write(data); err != nil {
		tempFile.Close()
		return 0, fmt.Errorf("media: write probe file: %w", err)
	}
	if err := tempFile.Close(); err != nil {
		return 0, fmt.Errorf("media: close probe file: %w", err)
	}

	cmd := exec.CommandContext(ctx, binary,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		tempFile.Name(),
	)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return 0, fmt.Errorf("%w: ffprobe: %v: %s", ErrUnreadableMedia, err, strings.TrimSpace(string(output)))
	}
	return parseProbeSeconds(string(output))
}

func parseProbeSeconds(output string) (time.Duration, error) {
	seconds, err := strconv.ParseFloat(strings.TrimSpace(output), 64)
	if err != nil || math.IsNaN(seconds) || math.IsInf(seconds, 0) || seconds < 0 || seconds >= MaxProbeDuration.Seconds() {
		return 0, fmt.Errorf("%w: unexpected duration %q", ErrUnreadableMedia, strings.TrimSpace(output))
	}
	return time.Duration(seconds * float64(time.Second)), nil
}

// NewProber selects a prober by name ("mp4" or "ffprobe").
func NewProber(name string, ffprobePath string) (Prober, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "mp4":
		return MP4Prober{}, nil
	case "ffprobe":
		return FFProbe{Path: ffprobePath}, nil
	default:
		return nil, fmt.Errorf("media: unsupported prober %q", name)
	}
}
