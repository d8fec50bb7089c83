package domain

import (
	"encoding/json"
	"math"
	"testing"
)

func TestDetectionResponseDecodesAudioMetadata(t *testing.T) {
	raw := []byte(`{
		"file_type": "audio",
		"detection_result": "fake",
		"confidence_score": 0.91,
		"processing_time_ms": 120.5,
		"file_hash": "abc123",
		"metadata": {
			"raw_score": 1.7,
			"sigmoid_output": 0.91,
			"probability_real": 0.09,
			"probability_fake": 0.91,
			"uncertainty_bounds": [0.88, 0.94]
		}
	}`)

	var resp DetectionResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Metadata.Audio == nil {
		t.Fatalf("expected audio metadata variant")
	}
	if resp.Metadata.Image != nil {
		t.Fatalf("image variant must not be set for an audio response")
	}
	if resp.Metadata.Audio.SigmoidOutput != 0.91 {
		t.Fatalf("sigmoid_output = %v, want 0.91", resp.Metadata.Audio.SigmoidOutput)
	}

	score, ok := resp.RawScore()
	if !ok || score != 0.91 {
		t.Fatalf("RawScore = %v, %v; want 0.91, true", score, ok)
	}
}

func TestDetectionResponseDecodesImageMetadata(t *testing.T) {
	raw := []byte(`{
		"file_type": "image",
		"detection_result": "real",
		"confidence_score": 0.8,
		"metadata": {
			"resolution": "1920x1080",
			"processed_resolution": "224x224",
			"logits": [2.0, -1.0]
		}
	}`)

	var resp DetectionResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Metadata.Image == nil {
		t.Fatalf("expected image metadata variant")
	}

	score, ok := resp.RawScore()
	if !ok {
		t.Fatalf("expected a reinterpretable score")
	}
	want := math.Exp(-1.0-2.0) / (1 + math.Exp(-1.0-2.0))
	if math.Abs(score-want) > 1e-12 {
		t.Fatalf("softmax fake score = %v, want %v", score, want)
	}
}

func TestDetectionResponseWithoutMetadataHasNoScore(t *testing.T) {
	raw := []byte(`{"file_type": "video", "detection_result": "fake", "confidence_score": 0.7}`)

	var resp DetectionResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if _, ok := resp.RawScore(); ok {
		t.Fatalf("video response must not expose a raw score")
	}
}

func TestDetectionResponseRoundTripsVariant(t *testing.T) {
	original := DetectionResponse{
		FileType:        FileTypeImage,
		DetectionResult: ResultUncertain,
		ConfidenceScore: 0.52,
		Metadata: Metadata{
			Image: &ImageMetadata{Resolution: "640x480", Logits: [2]float64{0.1, 0.2}},
		},
	}

	raw, err := json.Marshal(original)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded DetectionResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded.Metadata.Image == nil || decoded.Metadata.Image.Resolution != "640x480" {
		t.Fatalf("variant lost in round trip: %+v", decoded.Metadata)
	}
	if decoded.Metadata.Audio != nil {
		t.Fatalf("audio variant must stay empty")
	}
}

func TestFileExtension(t *testing.T) {
	cases := []struct {
		filename string
		want     string
	}{
		{"clip.WAV", ".wav"},
		{"archive.tar.gz", ".gz"},
		{"noextension", ""},
		{".hidden", ".hidden"},
	}
	for _, tc := range cases {
		if got := FileExtension(tc.filename); got != tc.want {
			t.Fatalf("FileExtension(%q) = %q, want %q", tc.filename, got, tc.want)
		}
	}
}

func TestSupportedFormatsAllowsNormalizedLookups(t *testing.T) {
	formats := SupportedFormats{Audio: []string{"WAV", ".mp3"}, Image: []string{"png"}}

	if !formats.Allows(".wav") {
		t.Fatalf("expected .wav to be allowed")
	}
	if !formats.Allows("PNG") {
		t.Fatalf("expected PNG to be allowed")
	}
	if formats.Allows(".xyz") {
		t.Fatalf(".xyz must not be allowed")
	}

	all := formats.Normalized().All()
	want := []string{".mp3", ".png", ".wav"}
	if len(all) != len(want) {
		t.Fatalf("All() = %v, want %v", all, want)
	}
	for i := range want {
		if all[i] != want[i] {
			t.Fatalf("All() = %v, want %v", all, want)
		}
	}
}
