// Package mediainfo defines the stream metadata model shared by all capture
// backends. A StreamInfo is produced once when a backend loads a file and is
// invalidated when the file is unloaded.
package mediainfo

// StreamInfo describes the streams of a loaded media file.
//
// Backends populate only the fields they can determine; a zero value means the
// attribute is unknown. Duration and capture timestamps are expressed in the
// owning backend's native time unit (see capture.Backend.TimeToSeconds), all
// other fields are unit-free.
type StreamInfo struct {
	// Duration is the total playable length in the backend's native time unit.
	Duration float64

	Width  int
	Height int

	VideoFramerate float64
	VideoBitrate   float64
	VideoCodec     string
	Interlaced     bool

	AudioChannels int
	AudioRate     float64
	AudioBitrate  float64
	AudioCodec    string

	// Title is an optional container-level title tag.
	Title string
}

// HasVideo reports whether the file has a video stream with known dimensions.
func (i *StreamInfo) HasVideo() bool {
	return i.Width > 0 && i.Height > 0
}

// Clone returns a copy of the info, safe to hand to callers while the backend
// keeps merging asynchronous tag metadata into its own copy.
func (i *StreamInfo) Clone() *StreamInfo {
	c := *i
	return &c
}
