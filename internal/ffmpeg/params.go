package ffmpeg

// HLSParams holds everything needed to build an RTSP to HLS transcode.
type HLSParams struct {
	// Input
	SourceURI     string
	RTSPTransport string       // tcp (default) or udp
	Options       []OptionType // input behavior flags

	// Video
	Width       int
	Height      int
	FPS         int
	BitrateKbps int
	Preset      string // ultrafast when empty
	Tune        string // zerolatency when empty

	// Audio
	DisableAudio     bool
	AudioBitrateKbps int // 128 when zero
	AudioSampleRate  int // 44100 when zero

	// Output
	OutputDir      string
	OutputKey      string
	SegmentSeconds int // 2 when zero
	PlaylistSize   int // 6 when zero
}
