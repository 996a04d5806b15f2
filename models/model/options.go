package model

// LoadOptions carries family-specific load configuration; fields not
// relevant to a family are ignored by it.
type LoadOptions struct {
	// Languages selects the OCR language set. Defaults to English + Korean.
	Languages []string `json:"languages" yaml:"languages"`
	// GPU requests GPU execution when the runtime supports it.
	GPU bool `json:"gpu" yaml:"gpu"`
}

// Device names the execution device the options request.
func (o LoadOptions) Device() string {
	if o.GPU {
		return "cuda"
	}
	return "cpu"
}

// PredictOptions carries per-call inference configuration. The zero value
// is valid; each adapter applies its own documented defaults to unset
// fields.
type PredictOptions struct {
	// ConfidenceThreshold filters detections below this confidence.
	// Detection and keypoint families, default 0.5.
	ConfidenceThreshold float32 `json:"confidence_threshold" yaml:"confidence_threshold"`
	// SelectedClasses, when non-empty, keeps only detections whose class
	// name is listed. Applied after inference, not as a model hint.
	SelectedClasses []string `json:"selected_classes" yaml:"selected_classes"`

	// TextPrompt is the period-delimited zero-shot prompt, e.g.
	// "person. car.". Required by the zero-shot detector.
	TextPrompt string `json:"text_prompt" yaml:"text_prompt"`
	// BoxThreshold is the zero-shot box confidence threshold, default 0.3.
	BoxThreshold float32 `json:"box_threshold" yaml:"box_threshold"`
	// TextThreshold is the text-match threshold: default 0.25 for the
	// zero-shot detector, 0.7 for OCR.
	TextThreshold float32 `json:"text_threshold" yaml:"text_threshold"`
	// BatchSize chunks batched zero-shot inference, default 4.
	BatchSize int `json:"batch_size" yaml:"batch_size"`

	// OCR engine pass-through thresholds.
	MinSize       int     `json:"min_size" yaml:"min_size"`             // default 10
	LowText       float32 `json:"low_text" yaml:"low_text"`             // default 0.4
	LinkThreshold float32 `json:"link_threshold" yaml:"link_threshold"` // default 0.4
	WidthThs      float32 `json:"width_ths" yaml:"width_ths"`           // default 0.5
	HeightThs     float32 `json:"height_ths" yaml:"height_ths"`         // default 0.5
	Paragraph     bool    `json:"paragraph" yaml:"paragraph"`
}

// DefaultPredictOptions returns the documented defaults for detection and
// keypoint inference.
func DefaultPredictOptions() PredictOptions {
	return PredictOptions{
		ConfidenceThreshold: 0.5,
		BoxThreshold:        0.3,
		TextThreshold:       0.25,
		BatchSize:           4,
	}
}
