package sheet

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/tmorran/vidsheet/internal/mediainfo"
)

// minThumbnailDim is the smallest default edge for a thumbnail when no size
// was requested.
const minThumbnailDim = 150

// FormatDuration renders seconds as H:MM:SS.
func FormatDuration(seconds float64) string {
	s := int(seconds)
	return fmt.Sprintf("%d:%02d:%02d", s/3600, (s%3600)/60, s%60)
}

// HeaderText builds the informational block under the sheet title. Stream
// fields at their zero value are treated as unknown and omitted;
// durationSeconds is the display duration, already converted out of the
// backend's native unit.
func HeaderText(info *mediainfo.StreamInfo, fileSize int64, durationSeconds float64) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Size   : %s (%d bytes)\n", humanize.IBytes(uint64(fileSize)), fileSize)
	fmt.Fprintf(&b, "Length : %s\n", FormatDuration(durationSeconds))

	var video []string
	if info.Width > 0 && info.Height > 0 {
		video = append(video, fmt.Sprintf("%dx%d", info.Width, info.Height))
	}
	if info.VideoCodec != "" {
		video = append(video, info.VideoCodec)
	}
	if info.VideoFramerate > 0 {
		video = append(video, fmt.Sprintf("%.2f frames/sec", info.VideoFramerate))
	}
	if info.VideoBitrate > 0 {
		video = append(video, fmt.Sprintf("%.2f kb/sec", info.VideoBitrate/1024.0))
	}
	if info.Interlaced {
		video = append(video, "interlaced")
	}
	if len(video) > 0 {
		fmt.Fprintf(&b, "Video  : %s\n", strings.Join(video, ", "))
	}

	var audio []string
	if info.AudioChannels > 0 {
		audio = append(audio, fmt.Sprintf("%d channel(s)", info.AudioChannels))
	}
	if info.AudioCodec != "" {
		audio = append(audio, info.AudioCodec)
	}
	if info.AudioRate > 0 {
		audio = append(audio, fmt.Sprintf("%.2f kHz", info.AudioRate/1000.0))
	}
	if info.AudioBitrate > 0 {
		audio = append(audio, fmt.Sprintf("%.2f kb/sec", info.AudioBitrate/1024.0))
	}
	if len(audio) > 0 {
		fmt.Fprintf(&b, "Audio  : %s", strings.Join(audio, ", "))
	}

	return strings.TrimRight(b.String(), "\n")
}

// ThumbnailSize resolves the requested thumbnail dimensions. A zero width or
// height is unspecified: when both are missing the smaller video edge is
// pinned to the minimum dimension, and any single missing value is derived
// from the video's aspect ratio.
func ThumbnailSize(info *mediainfo.StreamInfo, width, height int) (int, int) {
	if width == 0 && height == 0 {
		if info.Height > 0 && info.Height < info.Width {
			height = minThumbnailDim
		} else {
			width = minThumbnailDim
		}
	}

	switch {
	case width > 0 && height == 0:
		if info.Width > 0 && info.Height > 0 {
			height = width * info.Height / info.Width
		} else {
			height = minThumbnailDim
		}
	case height > 0 && width == 0:
		if info.Width > 0 && info.Height > 0 {
			width = height * info.Width / info.Height
		} else {
			width = minThumbnailDim
		}
	}

	return width, height
}
