package ladder

import "testing"

func TestProfileForKnownTiers(t *testing.T) {
	cases := []struct {
		tier       string
		bitrate    int
		resolution string
	}{
		{"480p", 1000, "854x480"},
		{"720p", 2500, "1280x720"},
		{"1080p", 5000, "1920x1080"},
	}
	for _, tc := range cases {
		profile := ProfileFor(tc.tier, 128, false)
		if profile.VideoBitrateKbps != tc.bitrate {
			t.Errorf("%s: bitrate %d, expected %d", tc.tier, profile.VideoBitrateKbps, tc.bitrate)
		}
		if profile.Resolution != tc.resolution {
			t.Errorf("%s: resolution %s, expected %s", tc.tier, profile.Resolution, tc.resolution)
		}
		if profile.ContainerMode != ContainerSingle || profile.SegmentDurationSeconds != 0 {
			t.Errorf("%s: unexpected container settings %+v", tc.tier, profile)
		}
		if profile.AudioBitrateKbps != 128 {
			t.Errorf("%s: audio bitrate %d", tc.tier, profile.AudioBitrateKbps)
		}
	}
}

func TestProfileForUnknownTierFallsBack(t *testing.T) {
	profile := ProfileFor("4k", 192, false)
	if profile.VideoBitrateKbps != DefaultVideoBitrateKbps {
		t.Fatalf("expected default bitrate %d, got %d", DefaultVideoBitrateKbps, profile.VideoBitrateKbps)
	}
	if profile.Resolution != "1280x720" {
		t.Fatalf("expected default resolution, got %s", profile.Resolution)
	}
	if profile.Tier != "4k" {
		t.Fatalf("requested tier must be preserved, got %s", profile.Tier)
	}
}

func TestProfileForSegmented(t *testing.T) {
	profile := ProfileFor("720p", 128, true)
	if profile.ContainerMode != ContainerSegmented {
		t.Fatalf("expected segmented container, got %s", profile.ContainerMode)
	}
	if profile.SegmentDurationSeconds != SegmentDurationSeconds {
		t.Fatalf("expected %ds segments, got %d", SegmentDurationSeconds, profile.SegmentDurationSeconds)
	}
}

func TestSegmentName(t *testing.T) {
	if name := SegmentName(0); name != "segment_00000.ts" {
		t.Errorf("unexpected first segment name %q", name)
	}
	if name := SegmentName(42); name != "segment_00042.ts" {
		t.Errorf("unexpected segment name %q", name)
	}
}
