package ffmpeg

import (
	"regexp"
	"strconv"
	"strings"
)

// Metrics holds throughput indicators scraped from one output chunk.
// Nil fields were not present in the chunk.
type Metrics struct {
	FPS         *float64
	BitrateKbps *float64
}

// Empty reports whether neither indicator was found.
func (m Metrics) Empty() bool {
	return m.FPS == nil && m.BitrateKbps == nil
}

var (
	fpsPattern     = regexp.MustCompile(`(?:^|\s)fps=\s*([0-9]+(?:\.[0-9]+)?)`)
	bitratePattern = regexp.MustCompile(`bitrate=\s*([0-9]+(?:\.[0-9]+)?)\s*(k|M)?bits/s`)
)

// ParseMetrics extracts fps and bitrate from an ffmpeg stats chunk such as
// "frame=  250 fps= 25 q=23.0 size=  1024kB time=00:00:10.00 bitrate= 838.9kbits/s speed=1x".
func ParseMetrics(chunk string) Metrics {
	var m Metrics
	if match := fpsPattern.FindStringSubmatch(chunk); match != nil {
		if v, err := strconv.ParseFloat(match[1], 64); err == nil {
			m.FPS = &v
		}
	}
	if match := bitratePattern.FindStringSubmatch(chunk); match != nil {
		if v, err := strconv.ParseFloat(match[1], 64); err == nil {
			if match[2] == "M" {
				v *= 1000
			} else if match[2] == "" {
				v /= 1000
			}
			m.BitrateKbps = &v
		}
	}
	return m
}

// IsProgressLine reports whether a chunk is a periodic stats line.
func IsProgressLine(chunk string) bool {
	return strings.HasPrefix(chunk, "frame=") || strings.HasPrefix(chunk, "size=")
}

// InputOpened reports whether the chunk confirms the RTSP input was opened.
// ffmpeg prints the input description only after a successful DESCRIBE/SETUP.
func InputOpened(chunk string) bool {
	_, msg := ParseLogLevel(chunk)
	return strings.HasPrefix(msg, "Input #0")
}

var connectionFailures = []struct {
	needle string
	reason string
}{
	{"Connection refused", "connection refused"},
	{"Connection timed out", "connection timed out"},
	{"No route to host", "no route to host"},
	{"Network is unreachable", "network unreachable"},
	{"401 Unauthorized", "unauthorized"},
	{"403 Forbidden", "forbidden"},
	{"404 Not Found", "stream not found"},
	{"method DESCRIBE failed", "describe failed"},
	{"Invalid data found when processing input", "invalid input data"},
	{"Could not find codec parameters", "no codec parameters"},
	{"End of file", "end of stream"},
}

// ConnectionFailure reports whether the chunk contains a known connection
// failure indicator, returning a short reason.
func ConnectionFailure(chunk string) (string, bool) {
	for _, f := range connectionFailures {
		if strings.Contains(chunk, f.needle) {
			return f.reason, true
		}
	}
	return "", false
}
