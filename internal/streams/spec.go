package streams

import (
	"fmt"
	"regexp"
	"slices"
	"strings"

	"github.com/smazurov/camfleet/internal/ffmpeg"
	"github.com/smazurov/camfleet/internal/process"
)

// CameraSpec is the persisted configuration of one camera.
type CameraSpec struct {
	// ID doubles as the session id and the output key.
	ID string `toml:"id" json:"id"`

	// Name is a human-readable label, defaults to ID.
	Name string `toml:"name,omitempty" json:"name,omitempty"`

	// Enabled cameras are started at boot and kept running on reload.
	Enabled bool `toml:"enabled" json:"enabled"`

	Vendor   string `toml:"vendor" json:"vendor"`
	Host     string `toml:"host" json:"host"`
	Port     int    `toml:"port,omitempty" json:"port,omitempty"`
	Username string `toml:"username,omitempty" json:"username,omitempty"`
	Password string `toml:"password,omitempty" json:"-"`
	Channel  int    `toml:"channel,omitempty" json:"channel,omitempty"`

	// Path is the URI template for vendors without a known scheme.
	// "{channel}" is substituted, e.g. "/live/ch{channel}".
	Path string `toml:"path,omitempty" json:"path,omitempty"`

	Quality      string   `toml:"quality,omitempty" json:"quality,omitempty"`
	Transport    string   `toml:"transport,omitempty" json:"transport,omitempty"`
	DisableAudio bool     `toml:"disable_audio,omitempty" json:"disable_audio,omitempty"`
	Options      []string `toml:"ffmpeg_options,omitempty" json:"ffmpeg_options,omitempty"`

	// CustomFFmpegCommand bypasses command generation entirely.
	// Placeholders: {source}, {playlist}, {segments}.
	CustomFFmpegCommand string `toml:"custom_ffmpeg_command,omitempty" json:"custom_ffmpeg_command,omitempty"`
}

// SessionConfig converts the persisted camera into a start request.
func (c CameraSpec) SessionConfig() SessionConfig {
	return SessionConfig{
		SessionID:     c.ID,
		Vendor:        c.Vendor,
		Host:          c.Host,
		Port:          c.Port,
		Username:      c.Username,
		Password:      c.Password,
		Channel:       c.Channel,
		Path:          c.Path,
		Quality:       c.Quality,
		Transport:     c.Transport,
		DisableAudio:  c.DisableAudio,
		Options:       slices.Clone(c.Options),
		CustomCommand: c.CustomFFmpegCommand,
	}
}

// SessionConfig is the input of a session start.
type SessionConfig struct {
	SessionID     string
	Vendor        string
	Host          string
	Port          int
	Username      string
	Password      string
	Channel       int
	Path          string
	Quality       string
	Transport     string
	DisableAudio  bool
	Options       []string
	CustomCommand string
}

// Equal reports whether two configurations would produce the same transcode.
func (c SessionConfig) Equal(o SessionConfig) bool {
	return c.SessionID == o.SessionID &&
		c.Vendor == o.Vendor &&
		c.Host == o.Host &&
		c.Port == o.Port &&
		c.Username == o.Username &&
		c.Password == o.Password &&
		c.Channel == o.Channel &&
		c.Path == o.Path &&
		c.Quality == o.Quality &&
		c.Transport == o.Transport &&
		c.DisableAudio == o.DisableAudio &&
		c.CustomCommand == o.CustomCommand &&
		slices.Equal(c.Options, o.Options)
}

var sessionIDPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_-]{0,63}$`)

// Validate checks the configuration without touching any session state.
func (c SessionConfig) Validate() error {
	var problems []string

	if !sessionIDPattern.MatchString(c.SessionID) {
		problems = append(problems, "session id must be 1-64 characters of letters, digits, '-' or '_'")
	}
	if strings.TrimSpace(c.Host) == "" && c.CustomCommand == "" {
		problems = append(problems, "host is required")
	}
	if c.Port < 0 || c.Port > 65535 {
		problems = append(problems, fmt.Sprintf("port %d out of range", c.Port))
	}
	if c.Channel < 0 {
		problems = append(problems, "channel must not be negative")
	}
	if _, err := ResolveQuality(c.Quality); err != nil {
		problems = append(problems, err.Error())
	}
	switch c.Transport {
	case "", "tcp", "udp":
	default:
		problems = append(problems, fmt.Sprintf("transport %q must be tcp or udp", c.Transport))
	}
	if _, err := ffmpeg.ParseOptions(c.Options); err != nil {
		problems = append(problems, err.Error())
	}
	if c.CustomCommand != "" {
		if _, err := process.ParseCommand(c.CustomCommand); err != nil {
			problems = append(problems, "custom command: "+err.Error())
		}
	}

	if len(problems) > 0 {
		return NewStreamError(ErrCodeConfigInvalid, strings.Join(problems, "; "), nil)
	}
	return nil
}
