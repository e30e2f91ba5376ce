package mplayer

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/tmorran/vidsheet/internal/mediainfo"
)

// ErrMalformedProbeLine is returned when the probe output contains a
// non-empty line without a KEY=value separator.
var ErrMalformedProbeLine = errors.New("mplayer: malformed probe output line")

// sentinelFramerate is the bogus framerate midentify reports for container
// formats it cannot parse properly (observed on some WMV files). When seen,
// the reported duration is untrustworthy and must be calibrated.
const sentinelFramerate = 1000

// parseProbeOutput converts midentify's newline-delimited KEY=value output
// into StreamInfo. Recognized keys follow a fixed table; unknown keys are
// ignored. Values keep midentify's escaping stripped.
func parseProbeOutput(output string) (*mediainfo.StreamInfo, error) {
	info := &mediainfo.StreamInfo{}

	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimRight(line, "\r")
		if line == "" {
			continue
		}

		key, value, found := strings.Cut(line, "=")
		if !found {
			return nil, fmt.Errorf("%w: %q", ErrMalformedProbeLine, line)
		}
		value = strings.ReplaceAll(value, "\\", "")

		if err := applyProbeField(info, key, value); err != nil {
			return nil, fmt.Errorf("mplayer: parse %s: %w", key, err)
		}
	}

	return info, nil
}

func applyProbeField(info *mediainfo.StreamInfo, key, value string) error {
	switch key {
	case "ID_LENGTH":
		return parseFloat(value, &info.Duration)
	case "ID_VIDEO_WIDTH":
		return parseInt(value, &info.Width)
	case "ID_VIDEO_HEIGHT":
		return parseInt(value, &info.Height)
	case "ID_VIDEO_FPS":
		return parseFloat(value, &info.VideoFramerate)
	case "ID_VIDEO_BITRATE":
		return parseFloat(value, &info.VideoBitrate)
	case "ID_VIDEO_FORMAT":
		info.VideoCodec = value
	case "ID_AUDIO_NCH":
		return parseInt(value, &info.AudioChannels)
	case "ID_AUDIO_RATE":
		return parseFloat(value, &info.AudioRate)
	case "ID_AUDIO_BITRATE":
		return parseFloat(value, &info.AudioBitrate)
	case "ID_AUDIO_CODEC":
		info.AudioCodec = value
	}
	return nil
}

func parseFloat(s string, dst *float64) error {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return err
	}
	*dst = v
	return nil
}

func parseInt(s string, dst *int) error {
	v, err := strconv.Atoi(s)
	if err != nil {
		return err
	}
	*dst = v
	return nil
}
