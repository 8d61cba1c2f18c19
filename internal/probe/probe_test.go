package probe

import (
	"context"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/smazurov/camfleet/internal/ffmpeg"
	"github.com/smazurov/camfleet/internal/streams"
)

func TestRTSPProbeTimesOut(t *testing.T) {
	// A listener that accepts but never answers.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			defer conn.Close()
		}
	}()

	p := &RTSP{Timeout: 200 * time.Millisecond}
	started := time.Now()
	res := p.Probe(context.Background(), "rtsp://"+ln.Addr().String()+"/stream1")

	if res.Reachable {
		t.Fatal("silent server must not be reachable")
	}
	if !streams.HasCode(res.Err, streams.ErrCodeProbeTimeout) {
		t.Errorf("expected %s, got %v", streams.ErrCodeProbeTimeout, res.Err)
	}
	if elapsed := time.Since(started); elapsed > 2*time.Second {
		t.Errorf("probe took %v, timeout not enforced", elapsed)
	}
}

func TestRTSPProbeAbandonsPendingDial(t *testing.T) {
	tests := []struct {
		name        string
		timeout     time.Duration
		cancelAfter time.Duration
		wantTimeout bool
	}{
		{name: "probe timeout", timeout: 300 * time.Millisecond, wantTimeout: true},
		{name: "caller cancels", timeout: time.Second, cancelAfter: 300 * time.Millisecond},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			addr := stalledAddr(t)

			ctx := context.Background()
			if tt.cancelAfter > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithCancel(ctx)
				time.AfterFunc(tt.cancelAfter, cancel)
				defer cancel()
			}

			started := time.Now()
			res := (&RTSP{Timeout: tt.timeout}).Probe(ctx, "rtsp://"+addr+"/stream1")

			if res.Reachable || res.Err == nil {
				t.Fatalf("expected failure, got %+v", res)
			}
			if got := streams.HasCode(res.Err, streams.ErrCodeProbeTimeout); got != tt.wantTimeout {
				t.Errorf("timeout code = %v, want %v (%v)", got, tt.wantTimeout, res.Err)
			}
			if elapsed := time.Since(started); elapsed > 900*time.Millisecond {
				t.Errorf("probe returned after %v, dial was not abandoned", elapsed)
			}

			// The abandoned dial gives up on its own; it must not panic when it does.
			time.Sleep(dialWait(tt.timeout))
		})
	}
}

func dialWait(timeout time.Duration) time.Duration {
	return time.Duration(dialSeconds(timeout))*time.Second + 500*time.Millisecond
}

func TestDialSeconds(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want int
	}{
		{0, 1},
		{300 * time.Millisecond, 1},
		{time.Second, 1},
		{1500 * time.Millisecond, 2},
		{5 * time.Second, 5},
	}
	for _, tt := range tests {
		if got := dialSeconds(tt.in); got != tt.want {
			t.Errorf("dialSeconds(%v) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestRTSPProbeConnectionRefused(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	ln.Close()

	res := (&RTSP{Timeout: 2 * time.Second}).Probe(context.Background(), "rtsp://"+addr+"/stream1")
	if res.Reachable || res.Err == nil {
		t.Fatalf("expected failure, got %+v", res)
	}
	if streams.HasCode(res.Err, streams.ErrCodeProbeTimeout) {
		t.Error("refused connection should not be reported as a timeout")
	}
}

func TestRTSPProbeDescribe(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	sdp := "v=0\r\n" +
		"o=- 0 0 IN IP4 127.0.0.1\r\n" +
		"s=camera\r\n" +
		"t=0 0\r\n" +
		"m=video 0 RTP/AVP 96\r\n" +
		"a=rtpmap:96 H264/90000\r\n" +
		"a=control:trackID=0\r\n"

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		buf := make([]byte, 4096)
		for {
			n, err := conn.Read(buf)
			if err != nil {
				return
			}
			req := string(buf[:n])
			cseq := "1"
			for _, line := range strings.Split(req, "\r\n") {
				if v, ok := strings.CutPrefix(line, "CSeq: "); ok {
					cseq = v
				}
			}
			resp := "RTSP/1.0 200 OK\r\nCSeq: " + cseq + "\r\n"
			if strings.HasPrefix(req, "DESCRIBE") {
				resp += "Content-Type: application/sdp\r\n" +
					"Content-Length: " + itoa(len(sdp)) + "\r\n\r\n" + sdp
			} else {
				resp += "Public: OPTIONS, DESCRIBE, SETUP, PLAY, TEARDOWN\r\n\r\n"
			}
			if _, err := conn.Write([]byte(resp)); err != nil {
				return
			}
		}
	}()

	res := (&RTSP{Timeout: 3 * time.Second}).Probe(context.Background(), "rtsp://"+ln.Addr().String()+"/stream1")
	if !res.Reachable {
		t.Fatalf("expected reachable, got %v", res.Err)
	}
	if !res.HasVideo() {
		t.Errorf("expected a video media, got %+v", res.Medias)
	}
}

func TestParseFFprobe(t *testing.T) {
	out := []byte(`{"streams":[{"codec_type":"video","codec_name":"h264","width":1920,"height":1080},{"codec_type":"audio","codec_name":"aac"}]}`)
	medias, err := parseFFprobe(out)
	if err != nil {
		t.Fatalf("parseFFprobe: %v", err)
	}
	if len(medias) != 2 {
		t.Fatalf("expected 2 medias, got %d", len(medias))
	}
	if medias[0].Kind != "video" || medias[0].Codecs[0] != "H264" {
		t.Errorf("medias[0] = %+v", medias[0])
	}

	if _, err := parseFFprobe([]byte("not json")); err == nil {
		t.Error("expected error for malformed output")
	}
}

func TestFFprobeTimeout(t *testing.T) {
	orig := ffmpeg.FFprobeBinary
	defer func() { ffmpeg.FFprobeBinary = orig }()

	ffmpeg.FFprobeBinary = writeScript(t, "#!/bin/sh\nexec sleep 5\n")

	res := (&FFprobe{Timeout: 100 * time.Millisecond}).Probe(context.Background(), "rtsp://127.0.0.1/x")
	if !streams.HasCode(res.Err, streams.ErrCodeProbeTimeout) {
		t.Errorf("expected %s, got %v", streams.ErrCodeProbeTimeout, res.Err)
	}
}

func TestCameraRequiresHost(t *testing.T) {
	res := Camera(context.Background(), New(ModeRTSP, time.Second), streams.CameraSpec{ID: "cam1"})
	if !streams.HasCode(res.Err, streams.ErrCodeConfigInvalid) {
		t.Errorf("expected %s, got %v", streams.ErrCodeConfigInvalid, res.Err)
	}
}
