package streams

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
)

// DefaultRTSPPort is used when a camera does not set one.
const DefaultRTSPPort = 554

// defaultGenericPath is the template for vendors without a known scheme.
const defaultGenericPath = "/stream{channel}"

// vendorPaths maps a vendor family to its path and query for a channel.
var vendorPaths = map[string]func(channel int) (path, query string){
	// Indexed streaming-channel path: channel 1 main stream is 101.
	"hikvision": func(ch int) (string, string) {
		return fmt.Sprintf("/Streaming/Channels/%d01", ch), ""
	},
	// Channel and subtype query parameters, subtype 0 is the main stream.
	"dahua": func(ch int) (string, string) {
		return "/cam/realmonitor", fmt.Sprintf("channel=%d&subtype=0", ch)
	},
	"amcrest": func(ch int) (string, string) {
		return "/cam/realmonitor", fmt.Sprintf("channel=%d&subtype=0", ch)
	},
	// Fixed media profile path, single-sensor devices ignore the channel.
	"axis": func(ch int) (string, string) {
		if ch > 1 {
			return "/axis-media/media.amp", fmt.Sprintf("camera=%d", ch)
		}
		return "/axis-media/media.amp", ""
	},
	"reolink": func(ch int) (string, string) {
		return fmt.Sprintf("/h264Preview_%02d_main", ch), ""
	},
	"uniview": func(ch int) (string, string) {
		return fmt.Sprintf("/media/video%d", ch), ""
	},
}

// KnownVendors lists vendor families with a dedicated URI scheme.
func KnownVendors() []string {
	vendors := make([]string, 0, len(vendorPaths))
	for v := range vendorPaths {
		vendors = append(vendors, v)
	}
	return vendors
}

// BuildSourceURI constructs the RTSP locator for a camera, embedding
// credentials in the userinfo. Unknown vendors use the generic template.
func BuildSourceURI(cfg SessionConfig) (string, error) {
	if strings.TrimSpace(cfg.Host) == "" {
		return "", NewStreamError(ErrCodeConfigInvalid, "host is required", nil)
	}

	port := cfg.Port
	if port == 0 {
		port = DefaultRTSPPort
	}
	channel := cfg.Channel
	if channel == 0 {
		channel = 1
	}

	var path, query string
	if build, ok := vendorPaths[strings.ToLower(strings.TrimSpace(cfg.Vendor))]; ok {
		path, query = build(channel)
	} else {
		template := cfg.Path
		if template == "" {
			template = defaultGenericPath
		}
		template = strings.ReplaceAll(template, "{channel}", strconv.Itoa(channel))
		path, query, _ = strings.Cut(template, "?")
		if !strings.HasPrefix(path, "/") {
			path = "/" + path
		}
	}

	u := url.URL{
		Scheme:   "rtsp",
		Host:     net.JoinHostPort(cfg.Host, strconv.Itoa(port)),
		Path:     path,
		RawQuery: query,
	}
	if cfg.Username != "" {
		u.User = url.UserPassword(cfg.Username, cfg.Password)
	}
	return u.String(), nil
}
