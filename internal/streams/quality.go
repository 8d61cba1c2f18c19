package streams

import (
	"fmt"
	"slices"
	"strings"
)

// QualityProfile is the concrete encoding target of a quality tier.
type QualityProfile struct {
	Name        string `json:"name" toml:"name"`
	Width       int    `json:"width" toml:"width"`
	Height      int    `json:"height" toml:"height"`
	BitrateKbps int    `json:"bitrate_kbps" toml:"bitrate_kbps"`
	FPS         int    `json:"fps" toml:"fps"`
}

// Resolution returns WIDTHxHEIGHT.
func (q QualityProfile) Resolution() string {
	return fmt.Sprintf("%dx%d", q.Width, q.Height)
}

// DefaultQuality is used when a camera does not name a tier.
const DefaultQuality = "medium"

var qualityProfiles = map[string]QualityProfile{
	"low":    {Name: "low", Width: 854, Height: 480, BitrateKbps: 800, FPS: 15},
	"medium": {Name: "medium", Width: 1280, Height: 720, BitrateKbps: 1500, FPS: 25},
	"high":   {Name: "high", Width: 1920, Height: 1080, BitrateKbps: 3000, FPS: 30},
	"ultra":  {Name: "ultra", Width: 3840, Height: 2160, BitrateKbps: 8000, FPS: 30},
}

// ResolveQuality maps a tier name to its profile. Empty means DefaultQuality.
func ResolveQuality(tier string) (QualityProfile, error) {
	tier = strings.ToLower(strings.TrimSpace(tier))
	if tier == "" {
		tier = DefaultQuality
	}
	profile, ok := qualityProfiles[tier]
	if !ok {
		return QualityProfile{}, fmt.Errorf("unknown quality tier %q (valid: %s)", tier, strings.Join(QualityTiers(), ", "))
	}
	return profile, nil
}

// QualityTiers lists the known tiers from lowest to highest bitrate.
func QualityTiers() []string {
	tiers := make([]string, 0, len(qualityProfiles))
	for name := range qualityProfiles {
		tiers = append(tiers, name)
	}
	slices.SortFunc(tiers, func(a, b string) int {
		return qualityProfiles[a].BitrateKbps - qualityProfiles[b].BitrateKbps
	})
	return tiers
}
