package probe

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/smazurov/camfleet/internal/ffmpeg"
)

// FFprobe probes by running ffprobe against the source.
type FFprobe struct {
	Timeout time.Duration
}

type ffprobeOutput struct {
	Streams []struct {
		CodecType string `json:"codec_type"`
		CodecName string `json:"codec_name"`
	} `json:"streams"`
}

// Probe runs ffprobe and reports the streams it found.
func (p *FFprobe) Probe(ctx context.Context, uri string) Result {
	ctx, cancel := context.WithTimeout(ctx, p.Timeout)
	defer cancel()

	args := ffmpeg.ProbeArgs(uri, p.Timeout.Microseconds())
	started := time.Now()

	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	out, err := cmd.Output()
	latency := time.Since(started)
	if err != nil {
		if ctx.Err() != nil {
			return Result{Latency: latency, Err: timeoutError(ctx, p.Timeout, err)}
		}
		var stderr string
		if exitErr, ok := err.(*exec.ExitError); ok {
			stderr = strings.TrimSpace(string(exitErr.Stderr))
		}
		if stderr != "" {
			err = fmt.Errorf("%w: %s", err, ffmpeg.MaskCredentials(stderr))
		}
		return Result{Latency: latency, Err: err}
	}

	medias, err := parseFFprobe(out)
	if err != nil {
		return Result{Latency: latency, Err: err}
	}
	return Result{Reachable: true, Latency: latency, Medias: medias}
}

func parseFFprobe(data []byte) ([]Media, error) {
	var parsed ffprobeOutput
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse ffprobe output: %w", err)
	}
	var medias []Media
	for _, s := range parsed.Streams {
		medias = append(medias, Media{Kind: s.CodecType, Codecs: []string{strings.ToUpper(s.CodecName)}})
	}
	return medias, nil
}
