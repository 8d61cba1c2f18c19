package probe

import (
	"context"
	"sync"
	"time"

	"github.com/AlexxIT/go2rtc/pkg/rtsp"

	"github.com/smazurov/camfleet/internal/ffmpeg"
	"github.com/smazurov/camfleet/internal/logging"
)

// RTSP probes with an RTSP DESCRIBE request.
type RTSP struct {
	Timeout time.Duration
}

// Probe connects, sends DESCRIBE and reports the announced medias. Dial is
// bounded by the timeout itself; the connection is only closed from here
// once Dial has returned, since go2rtc's Close is not safe before that.
func (p *RTSP) Probe(ctx context.Context, uri string) Result {
	logger := logging.GetLogger("probe")
	ctx, cancel := context.WithTimeout(ctx, p.Timeout)
	defer cancel()

	started := time.Now()
	conn := rtsp.NewClient(uri)
	conn.Timeout = dialSeconds(p.Timeout)

	type outcome struct {
		medias []Media
		err    error
	}
	done := make(chan outcome, 1)

	var (
		mu        sync.Mutex
		dialed    bool
		abandoned bool
	)

	go func() {
		err := conn.Dial()
		mu.Lock()
		dialed = err == nil
		stop := abandoned
		mu.Unlock()
		if err != nil {
			done <- outcome{err: err}
			return
		}
		defer conn.Close()
		if stop {
			done <- outcome{err: context.Canceled}
			return
		}
		if err := conn.Describe(); err != nil {
			done <- outcome{err: err}
			return
		}
		var medias []Media
		for _, m := range conn.Medias {
			media := Media{Kind: m.Kind}
			for _, c := range m.Codecs {
				media.Codecs = append(media.Codecs, c.Name)
			}
			medias = append(medias, media)
		}
		done <- outcome{medias: medias}
	}()

	select {
	case out := <-done:
		res := Result{Latency: time.Since(started), Medias: out.medias, Err: out.err}
		res.Reachable = out.err == nil
		logger.Debug("RTSP probe finished", "uri", ffmpeg.MaskCredentials(uri),
			"reachable", res.Reachable, "latency", res.Latency, "error", out.err)
		return res
	case <-ctx.Done():
		mu.Lock()
		abandoned = true
		if dialed {
			// Unblocks a pending Describe.
			_ = conn.Close()
		}
		mu.Unlock()
		logger.Debug("RTSP probe timed out", "uri", ffmpeg.MaskCredentials(uri))
		return Result{Latency: time.Since(started), Err: timeoutError(ctx, p.Timeout, ctx.Err())}
	}
}

// dialSeconds converts a probe timeout to go2rtc's whole-second dial timeout.
func dialSeconds(d time.Duration) int {
	secs := int((d + time.Second - 1) / time.Second)
	if secs < 1 {
		return 1
	}
	return secs
}
