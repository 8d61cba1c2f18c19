// Package probe checks camera reachability without starting a session.
package probe

import (
	"context"
	"errors"
	"time"

	"github.com/smazurov/camfleet/internal/streams"
)

// DefaultTimeout bounds a single probe.
const DefaultTimeout = 10 * time.Second

// Probe modes.
const (
	ModeRTSP    = "rtsp"
	ModeFFprobe = "ffprobe"
)

// Media describes one elementary stream announced by the camera.
type Media struct {
	Kind   string   `json:"kind" example:"video" doc:"video or audio"`
	Codecs []string `json:"codecs" example:"H264" doc:"Codec names"`
}

// Result is the outcome of one probe.
type Result struct {
	Reachable bool          `json:"reachable"`
	Latency   time.Duration `json:"latency_ns"`
	Medias    []Media       `json:"medias,omitempty"`
	Err       error         `json:"-"`
}

// HasVideo reports whether the camera announced a video stream.
func (r Result) HasVideo() bool {
	for _, m := range r.Medias {
		if m.Kind == "video" {
			return true
		}
	}
	return false
}

// Prober opens a short-lived diagnostic connection to a camera.
type Prober interface {
	Probe(ctx context.Context, uri string) Result
}

// New returns the prober for mode. Unknown modes use RTSP.
func New(mode string, timeout time.Duration) Prober {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if mode == ModeFFprobe {
		return &FFprobe{Timeout: timeout}
	}
	return &RTSP{Timeout: timeout}
}

// Camera probes a configured camera.
func Camera(ctx context.Context, p Prober, cam streams.CameraSpec) Result {
	uri, err := streams.BuildSourceURI(cam.SessionConfig())
	if err != nil {
		return Result{Err: err}
	}
	return p.Probe(ctx, uri)
}

// timeoutError maps context expiry to a ProbeTimeout error.
func timeoutError(ctx context.Context, timeout time.Duration, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return streams.NewStreamError(streams.ErrCodeProbeTimeout, "camera did not answer within "+timeout.String(), err)
	}
	return err
}
