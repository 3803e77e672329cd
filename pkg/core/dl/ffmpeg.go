package dl

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

const (
	// PCM layout every cache file uses.
	SampleRate = 48000
	Channels   = 2
	// BytesPerSecond is the size of one second of s16le stereo audio.
	BytesPerSecond = SampleRate * Channels * 2

	loudnormFilter = "loudnorm=I=-16:TP=-1.5:LRA=11"
)

// FFmpeg shells out to the ffmpeg and ffprobe binaries.
type FFmpeg struct {
	Bin   string
	Probe string
}

func (f *FFmpeg) bin() string {
	if f.Bin == "" {
		return "ffmpeg"
	}
	return f.Bin
}

func (f *FFmpeg) probe() string {
	if f.Probe == "" {
		return "ffprobe"
	}
	return f.Probe
}

// transcodeArgs builds the ffmpeg command line for one conversion.
func transcodeArgs(in, out string, normalize bool) []string {
	args := []string{"-hide_banner", "-loglevel", "error", "-y", "-i", in, "-vn"}
	if normalize {
		args = append(args, "-af", loudnormFilter)
	}
	return append(args,
		"-f", "s16le",
		"-acodec", "pcm_s16le",
		"-ac", strconv.Itoa(Channels),
		"-ar", strconv.Itoa(SampleRate),
		out,
	)
}

// Transcode converts in to raw PCM at out.
func (f *FFmpeg) Transcode(ctx context.Context, in, out string, normalize bool) error {
	// #nosec G204
	cmd := exec.CommandContext(ctx, f.bin(), transcodeArgs(in, out, normalize)...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return fmt.Errorf("ffmpeg exited with code %d: %s", exitErr.ExitCode(), strings.TrimSpace(stderr.String()))
		}
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("ffmpeg timed out on %s", in)
		}
		return fmt.Errorf("ffmpeg: %w", err)
	}
	return nil
}

// ffprobeFormat is the part of ffprobe's JSON output we read.
type ffprobeFormat struct {
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

func parseProbe(out []byte) (int, error) {
	var info ffprobeFormat
	if err := json.Unmarshal(out, &info); err != nil {
		return 0, fmt.Errorf("failed to parse ffprobe output: %w", err)
	}
	if info.Format.Duration == "" {
		return 0, nil
	}
	d, err := strconv.ParseFloat(info.Format.Duration, 64)
	if err != nil {
		return 0, fmt.Errorf("bad duration %q: %w", info.Format.Duration, err)
	}
	return int(d), nil
}

// Duration returns the length of a media file in seconds.
func (f *FFmpeg) Duration(ctx context.Context, path string) (int, error) {
	// #nosec G204
	cmd := exec.CommandContext(ctx, f.probe(),
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		path,
	)
	out, err := cmd.Output()
	if err != nil {
		return 0, fmt.Errorf("ffprobe: %w", err)
	}
	return parseProbe(out)
}
