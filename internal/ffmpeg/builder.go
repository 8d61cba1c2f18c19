package ffmpeg

import (
	"path/filepath"
	"strconv"
	"strings"
)

// PlaylistName returns the playlist file name for an output key.
func PlaylistName(outputKey string) string {
	return outputKey + ".m3u8"
}

// SegmentPattern returns the segment file pattern handed to -hls_segment_filename.
func SegmentPattern(outputKey string) string {
	return outputKey + "_%05d.ts"
}

// BuildHLSArgs builds the ffmpeg argument vector, program first.
func BuildHLSArgs(p *HLSParams) []string {
	args := []string{FFmpegBinary, "-hide_banner", "-loglevel", "level+info", "-nostdin"}

	// Input
	transport := p.RTSPTransport
	if transport == "" {
		transport = "tcp"
	}
	args = append(args, "-rtsp_transport", transport)
	args = append(args, "-use_wallclock_as_timestamps", "1")
	args = append(args, applyOptions(p.Options)...)
	args = append(args, "-i", p.SourceURI)

	// Video
	preset := orDefault(p.Preset, "ultrafast")
	tune := orDefault(p.Tune, "zerolatency")
	args = append(args, "-map", "0:v:0", "-c:v", "libx264", "-preset", preset, "-tune", tune)
	if p.Width > 0 && p.Height > 0 {
		args = append(args, "-s", strconv.Itoa(p.Width)+"x"+strconv.Itoa(p.Height))
	}
	if p.FPS > 0 {
		args = append(args, "-r", strconv.Itoa(p.FPS), "-g", strconv.Itoa(p.FPS*2))
	}
	if p.BitrateKbps > 0 {
		rate := strconv.Itoa(p.BitrateKbps) + "k"
		args = append(args, "-b:v", rate, "-maxrate", rate, "-bufsize", strconv.Itoa(p.BitrateKbps*2)+"k")
	}

	// Audio, optional in the source
	if p.DisableAudio {
		args = append(args, "-an")
	} else {
		audioRate := p.AudioBitrateKbps
		if audioRate == 0 {
			audioRate = 128
		}
		sampleRate := p.AudioSampleRate
		if sampleRate == 0 {
			sampleRate = 44100
		}
		args = append(args, "-map", "0:a:0?", "-c:a", "aac",
			"-b:a", strconv.Itoa(audioRate)+"k", "-ar", strconv.Itoa(sampleRate))
	}

	// Output
	segment := p.SegmentSeconds
	if segment == 0 {
		segment = 2
	}
	listSize := p.PlaylistSize
	if listSize == 0 {
		listSize = 6
	}
	args = append(args,
		"-f", "hls",
		"-hls_time", strconv.Itoa(segment),
		"-hls_list_size", strconv.Itoa(listSize),
		"-hls_flags", "delete_segments+independent_segments",
		"-hls_segment_filename", filepath.Join(p.OutputDir, SegmentPattern(p.OutputKey)),
		filepath.Join(p.OutputDir, PlaylistName(p.OutputKey)),
	)

	return args
}

// CommandString renders args as a shell-safe single line for display.
// Credentials in rtsp:// URIs are masked.
func CommandString(args []string) string {
	var cmd strings.Builder
	for i, arg := range args {
		if i > 0 {
			cmd.WriteByte(' ')
		}
		arg = MaskCredentials(arg)
		if arg == "" || strings.ContainsAny(arg, " \t\"'?&$") {
			cmd.WriteString(strconv.Quote(arg))
		} else {
			cmd.WriteString(arg)
		}
	}
	return cmd.String()
}

// MaskCredentials replaces the password part of an rtsp:// userinfo.
func MaskCredentials(s string) string {
	if !strings.HasPrefix(s, "rtsp://") && !strings.HasPrefix(s, "rtsps://") {
		return s
	}
	schemeEnd := strings.Index(s, "://") + 3
	authority := s[schemeEnd:]
	if slash := strings.Index(authority, "/"); slash != -1 {
		authority = authority[:slash]
	}
	at := strings.LastIndex(authority, "@")
	if at == -1 {
		return s
	}
	userinfo := authority[:at]
	at += schemeEnd
	colon := strings.Index(userinfo, ":")
	if colon == -1 {
		return s
	}
	return s[:schemeEnd] + userinfo[:colon] + ":***" + s[at:]
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
