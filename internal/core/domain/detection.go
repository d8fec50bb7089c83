package domain

import (
	"encoding/json"
	"fmt"
	"math"
	"time"
)

type FileType string

const (
	FileTypeAudio   FileType = "audio"
	FileTypeImage   FileType = "image"
	FileTypeVideo   FileType = "video"
	FileTypeUnknown FileType = "unknown"
)

type DetectionResult string

const (
	ResultReal      DetectionResult = "real"
	ResultFake      DetectionResult = "fake"
	ResultUncertain DetectionResult = "uncertain"
)

// AudioMetadata carries the audio model's raw outputs.
type AudioMetadata struct {
	RawScore          float64    `json:"raw_score"`
	SigmoidOutput     float64    `json:"sigmoid_output"`
	ProbabilityReal   float64    `json:"probability_real"`
	ProbabilityFake   float64    `json:"probability_fake"`
	UncertaintyBounds [2]float64 `json:"uncertainty_bounds"`
}

// ImageMetadata carries the image model's raw outputs.
type ImageMetadata struct {
	Resolution          string     `json:"resolution"`
	ProcessedResolution string     `json:"processed_resolution"`
	Logits              [2]float64 `json:"logits"`
}

// Metadata is a tagged union keyed by the response file type: exactly one
// variant is set for audio/image responses, none for video/unknown.
type Metadata struct {
	Audio *AudioMetadata
	Image *ImageMetadata
}

// DetectionResponse is the backend's answer for one analyzed file. Immutable
// once received; replaced wholesale when a new analysis starts.
type DetectionResponse struct {
	FileType         FileType        `json:"file_type"`
	DetectionResult  DetectionResult `json:"detection_result"`
	ConfidenceScore  float64         `json:"confidence_score"`
	ProcessingTimeMs float64         `json:"processing_time_ms"`
	FileHash         string          `json:"file_hash"`
	Timestamp        time.Time       `json:"timestamp"`
	Metadata         Metadata        `json:"metadata,omitempty"`
}

type detectionResponseAlias struct {
	FileType         FileType        `json:"file_type"`
	DetectionResult  DetectionResult `json:"detection_result"`
	ConfidenceScore  float64         `json:"confidence_score"`
	ProcessingTimeMs float64         `json:"processing_time_ms"`
	FileHash         string          `json:"file_hash"`
	Timestamp        time.Time       `json:"timestamp"`
	Metadata         json.RawMessage `json:"metadata,omitempty"`
}

func (r *DetectionResponse) UnmarshalJSON(data []byte) error {
	var alias detectionResponseAlias
	if err := json.Unmarshal(data, &alias); err != nil {
		return err
	}

	r.FileType = alias.FileType
	r.DetectionResult = alias.DetectionResult
	r.ConfidenceScore = alias.ConfidenceScore
	r.ProcessingTimeMs = alias.ProcessingTimeMs
	r.FileHash = alias.FileHash
	r.Timestamp = alias.Timestamp
	r.Metadata = Metadata{}

	if len(alias.Metadata) == 0 {
		return nil
	}

	switch alias.FileType {
	case FileTypeAudio:
		var meta AudioMetadata
		if err := json.Unmarshal(alias.Metadata, &meta); err != nil {
			return fmt.Errorf("decode audio metadata: %w", err)
		}
		r.Metadata.Audio = &meta
	case FileTypeImage:
		var meta ImageMetadata
		if err := json.Unmarshal(alias.Metadata, &meta); err != nil {
			return fmt.Errorf("decode image metadata: %w", err)
		}
		r.Metadata.Image = &meta
	}
	return nil
}

func (r DetectionResponse) MarshalJSON() ([]byte, error) {
	alias := detectionResponseAlias{
		FileType:         r.FileType,
		DetectionResult:  r.DetectionResult,
		ConfidenceScore:  r.ConfidenceScore,
		ProcessingTimeMs: r.ProcessingTimeMs,
		FileHash:         r.FileHash,
		Timestamp:        r.Timestamp,
	}

	var variant any
	switch {
	case r.Metadata.Audio != nil:
		variant = r.Metadata.Audio
	case r.Metadata.Image != nil:
		variant = r.Metadata.Image
	}
	if variant != nil {
		raw, err := json.Marshal(variant)
		if err != nil {
			return nil, fmt.Errorf("encode metadata: %w", err)
		}
		alias.Metadata = raw
	}
	return json.Marshal(alias)
}

// RawScore extracts the sigmoid-like fake score the verdict interpreter runs
// on. Audio responses carry it directly; for images it is recovered from the
// class logits pair via softmax. The second return is false when the response
// has no reinterpretable score (video/unknown, or missing metadata).
func (r *DetectionResponse) RawScore() (float64, bool) {
	switch {
	case r.Metadata.Audio != nil:
		return r.Metadata.Audio.SigmoidOutput, true
	case r.Metadata.Image != nil:
		realLogit := r.Metadata.Image.Logits[0]
		fakeLogit := r.Metadata.Image.Logits[1]
		// Subtract the max before exponentiating to keep softmax stable.
		m := math.Max(realLogit, fakeLogit)
		expReal := math.Exp(realLogit - m)
		expFake := math.Exp(fakeLogit - m)
		return expFake / (expReal + expFake), true
	default:
		return 0, false
	}
}

// ServiceInfo mirrors the backend's GET / payload.
type ServiceInfo struct {
	Service   string            `json:"service"`
	Version   string            `json:"version"`
	Endpoints map[string]string `json:"endpoints"`
}

// HealthStatus mirrors the backend's GET /health payload.
type HealthStatus struct {
	Status       string       `json:"status"`
	Timestamp    time.Time    `json:"timestamp"`
	ModelsLoaded ModelsLoaded `json:"models_loaded"`
}

type ModelsLoaded struct {
	Audio bool `json:"audio"`
	Image bool `json:"image"`
	Video bool `json:"video"`
}
