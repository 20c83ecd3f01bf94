// Package ladder maps requested quality tiers to concrete encoding profiles.
// The mapping is a fixed table with a documented fallback so a partially
// configured ladder still produces a complete batch.
package ladder

import "fmt"

// ContainerMode selects how the worker packages the encoded output.
type ContainerMode string

const (
	// ContainerSingle produces one output file per tier.
	ContainerSingle ContainerMode = "single"
	// ContainerSegmented produces chunked output suitable for HLS-style delivery.
	ContainerSegmented ContainerMode = "segmented"
)

const (
	// DefaultVideoBitrateKbps is used for tiers missing from the bitrate
	// table. Returning a usable default instead of an error keeps the ladder
	// total even when only part of it is configured.
	DefaultVideoBitrateKbps = 1500

	// SegmentDurationSeconds is the fixed chunk length for segmented output.
	SegmentDurationSeconds = 10

	segmentNamePattern = "segment_%05d.ts"
)

var videoBitrates = map[string]int{
	"480p":  1000,
	"720p":  2500,
	"1080p": 5000,
}

var resolutions = map[string]string{
	"480p":  "854x480",
	"720p":  "1280x720",
	"1080p": "1920x1080",
}

const defaultResolution = "1280x720"

// Profile describes the encoding parameters for one quality tier. It is the
// parameters payload of a transcode job and the request body sent to the
// worker.
type Profile struct {
	Tier                   string        `json:"tier"`
	Resolution             string        `json:"resolution"`
	VideoCodec             string        `json:"video_codec"`
	VideoBitrateKbps       int           `json:"video_bitrate_kbps"`
	AudioCodec             string        `json:"audio_codec"`
	AudioBitrateKbps       int           `json:"audio_bitrate_kbps"`
	ContainerMode          ContainerMode `json:"container_mode"`
	SegmentDurationSeconds int           `json:"segment_duration_seconds,omitempty"`
}

// ProfileFor returns the encoding profile for a quality tier. Unknown tiers
// fall back to the default bitrate and resolution rather than failing.
func ProfileFor(tier string, audioBitrateKbps int, segmented bool) Profile {
	bitrate, ok := videoBitrates[tier]
	if !ok {
		bitrate = DefaultVideoBitrateKbps
	}
	resolution, ok := resolutions[tier]
	if !ok {
		resolution = defaultResolution
	}

	profile := Profile{
		Tier:             tier,
		Resolution:       resolution,
		VideoCodec:       "h264",
		VideoBitrateKbps: bitrate,
		AudioCodec:       "aac",
		AudioBitrateKbps: audioBitrateKbps,
		ContainerMode:    ContainerSingle,
	}
	if segmented {
		profile.ContainerMode = ContainerSegmented
		profile.SegmentDurationSeconds = SegmentDurationSeconds
	}
	return profile
}

// SegmentName returns the zero-padded file name of the nth segment of a
// segmented output. The scheme is fixed; players and the hosting service
// both rely on it.
func SegmentName(index int) string {
	return fmt.Sprintf(segmentNamePattern, index)
}
