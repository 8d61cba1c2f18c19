package streams

import (
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/smazurov/camfleet/internal/ffmpeg"
	"github.com/smazurov/camfleet/internal/process"
)

// RemoveSegments deletes the playlist and segment files of outputKey from
// dir. Only key.m3u8, key.m3u8.tmp and key_<digits>.ts are touched.
func RemoveSegments(dir, outputKey string) (int, error) {
	if outputKey == "" {
		return 0, nil
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, nil
		}
		return 0, err
	}

	var (
		removed int
		errs    []error
	)
	for _, entry := range entries {
		if entry.IsDir() || !ownsFile(outputKey, entry.Name()) {
			continue
		}
		if err := os.Remove(filepath.Join(dir, entry.Name())); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, err)
			continue
		}
		removed++
	}
	return removed, errors.Join(errs...)
}

// ownsFile reports whether name belongs to outputKey's playlist or segments.
func ownsFile(outputKey, name string) bool {
	playlist := ffmpeg.PlaylistName(outputKey)
	if name == playlist || name == playlist+".tmp" {
		return true
	}
	return IsSegment(outputKey, name)
}

// IsSegment reports whether name is one of outputKey's numbered segments.
// A key that prefixes another (cam and cam_1) never claims the other's files.
func IsSegment(outputKey, name string) bool {
	seq, ok := strings.CutPrefix(name, outputKey+"_")
	if !ok {
		return false
	}
	seq, ok = strings.CutSuffix(seq, ".ts")
	if !ok || seq == "" {
		return false
	}
	for _, r := range seq {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// customCommand expands a user supplied command line.
func customCommand(template, sourceURI, outputDir, outputKey string) ([]string, error) {
	args, err := process.ParseCommand(template)
	if err != nil {
		return nil, err
	}
	replacer := strings.NewReplacer(
		"{source}", sourceURI,
		"{playlist}", filepath.Join(outputDir, ffmpeg.PlaylistName(outputKey)),
		"{segments}", filepath.Join(outputDir, ffmpeg.SegmentPattern(outputKey)),
	)
	for i, arg := range args {
		args[i] = replacer.Replace(arg)
	}
	return args, nil
}
