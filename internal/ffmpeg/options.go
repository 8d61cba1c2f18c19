package ffmpeg

import (
	"fmt"
	"strings"
)

// OptionType is a typed input behavior flag applied before -i.
type OptionType string

// Input options usable from camera configuration.
const (
	OptionGeneratePTS     OptionType = "genpts"
	OptionIgnoreDTS       OptionType = "igndts"
	OptionDiscardCorrupt  OptionType = "discardcorrupt"
	OptionNoBuffer        OptionType = "nobuffer"
	OptionLowDelay        OptionType = "low_delay"
	OptionThreadQueue1024 OptionType = "thread_queue_1024"
)

// Binary names, overridable for tests and non-standard installs.
var (
	FFmpegBinary  = "ffmpeg"
	FFprobeBinary = "ffprobe"
)

// ParseOptions converts configuration strings into options, rejecting unknown ones.
func ParseOptions(values []string) ([]OptionType, error) {
	opts := make([]OptionType, 0, len(values))
	for _, v := range values {
		opt := OptionType(strings.TrimSpace(v))
		switch opt {
		case OptionGeneratePTS, OptionIgnoreDTS, OptionDiscardCorrupt,
			OptionNoBuffer, OptionLowDelay, OptionThreadQueue1024:
			opts = append(opts, opt)
		default:
			return nil, fmt.Errorf("unknown ffmpeg option %q", v)
		}
	}
	return opts, nil
}

// applyOptions renders input options. fflags are merged into one flag.
func applyOptions(opts []OptionType) []string {
	var fflags []string
	var args []string
	for _, opt := range opts {
		switch opt {
		case OptionGeneratePTS:
			fflags = append(fflags, "+genpts")
		case OptionIgnoreDTS:
			fflags = append(fflags, "+igndts")
		case OptionDiscardCorrupt:
			fflags = append(fflags, "+discardcorrupt")
		case OptionNoBuffer:
			fflags = append(fflags, "+nobuffer")
		case OptionLowDelay:
			args = append(args, "-flags", "low_delay")
		case OptionThreadQueue1024:
			args = append(args, "-thread_queue_size", "1024")
		}
	}
	if len(fflags) > 0 {
		args = append([]string{"-fflags", strings.Join(fflags, "")}, args...)
	}
	return args
}

// ProbeArgs builds an ffprobe invocation that only reads stream headers.
// timeoutMicros bounds the socket I/O wait inside ffprobe itself.
func ProbeArgs(uri string, timeoutMicros int64) []string {
	return []string{
		FFprobeBinary, "-hide_banner",
		"-v", "error",
		"-rtsp_transport", "tcp",
		"-timeout", fmt.Sprintf("%d", timeoutMicros),
		"-show_entries", "stream=codec_type,codec_name,width,height",
		"-of", "json",
		uri,
	}
}
