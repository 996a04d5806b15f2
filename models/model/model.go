// Package model - adapter contract shared by every model family.
package model

import (
	"context"

	"github.com/autolabel-ai/go-autolabel/images"
	"github.com/autolabel-ai/go-autolabel/results"
)

// Type categorizes what a model produces.
type Type string

const (
	// TypeDetection is object detection (fixed-vocabulary or zero-shot).
	TypeDetection Type = "detection"
	// TypeKeypoint is pose/keypoint estimation.
	TypeKeypoint Type = "keypoint"
	// TypeOCR is text recognition.
	TypeOCR Type = "ocr"
	// TypeSegmentation is instance/semantic segmentation.
	TypeSegmentation Type = "segmentation"
)

// TaskType tags the annotation kind a result carries.
type TaskType string

const (
	// TaskBBox is a bounding-box result.
	TaskBBox TaskType = "bbox"
	// TaskKeypoint is a keypoint result.
	TaskKeypoint TaskType = "keypoint"
	// TaskText is a text result.
	TaskText TaskType = "text"
	// TaskMask is a mask result.
	TaskMask TaskType = "mask"
	// TaskPolygon is a polygon result.
	TaskPolygon TaskType = "polygon"
)

// Name identifies a model family in the registry.
type Name string

const (
	// NameYOLO is the fixed-vocabulary YOLO detector.
	NameYOLO Name = "yolo"
	// NameGroundingDINO is the zero-shot text-prompt detector.
	NameGroundingDINO Name = "grounding_dino"
	// NameYOLOPose is the COCO-17 pose model.
	NameYOLOPose Name = "yolo_pose"
	// NameEasyOCR is the multi-language text recognizer.
	NameEasyOCR Name = "easyocr"
)

// Adapter is the uniform capability every model family exposes. An adapter
// is constructed unloaded; Load acquires the backing model, Predict requires
// a successful Load, Info may be called at any time and never fails.
type Adapter interface {
	// Load acquires and initializes the backing model. source is a local
	// file path or a hub identifier depending on the family.
	Load(ctx context.Context, source string, opts LoadOptions) (*LoadResult, error)
	// Predict runs inference over one canonical frame.
	Predict(ctx context.Context, frame *images.Frame, opts PredictOptions) (*Result, error)
	// Info returns a snapshot describing the adapter. Never fails.
	Info() Info
	// Loaded reports whether Load has succeeded and Unload has not been
	// called since.
	Loaded() bool
	// Unload releases the backing model handle. Safe to call repeatedly.
	Unload()
}

// BatchPredictor is implemented by adapters with a native batched inference
// path. Implementations must return exactly one result per input frame, in
// input order.
type BatchPredictor interface {
	PredictBatch(ctx context.Context, frames []*images.Frame, opts PredictOptions) ([]*Result, error)
}

// VocabularyProvider is implemented by fixed-vocabulary detectors whose
// class IDs are baked into the model artifact. The returned map is the
// authoritative id -> name table; it may contain gaps for custom-trained
// models.
type VocabularyProvider interface {
	Classes() map[int]string
}

// Result is the task-typed output of one Predict call. Exactly one of
// Boxes, Persons or Texts is populated, according to TaskType.
type Result struct {
	TaskType  TaskType `json:"task_type"`
	ModelType Name     `json:"model_type"`

	Boxes         []results.Detection `json:"boxes,omitempty"`
	NumDetections int                 `json:"num_detections"`

	Persons        []results.Person `json:"keypoints,omitempty"`
	NumPersons     int              `json:"num_persons,omitempty"`
	KeypointFormat string           `json:"keypoint_format,omitempty"`

	Texts     []results.Text `json:"texts,omitempty"`
	NumTexts  int            `json:"num_texts,omitempty"`
	Languages []string       `json:"languages,omitempty"`

	// TextPrompt and PromptClasses echo the zero-shot prompt so callers can
	// rebuild the transient phrase-index class mapping. Zero-shot class IDs
	// are only meaningful within a single call; anything persistent must
	// resolve classes by name.
	TextPrompt    string   `json:"text_prompt,omitempty"`
	PromptClasses []string `json:"prompt_classes,omitempty"`
}

// LoadResult is the small metadata record a successful Load returns.
type LoadResult struct {
	Message            string   `json:"message"`
	Device             string   `json:"device"`
	NumClasses         int      `json:"num_classes,omitempty"`
	NumKeypoints       int      `json:"num_keypoints,omitempty"`
	Languages          []string `json:"languages,omitempty"`
	SupportsTextPrompt bool     `json:"supports_text_prompt"`
}

// Info is the point-in-time snapshot returned by Adapter.Info.
type Info struct {
	ModelType          Name     `json:"model_type"`
	Task               Type     `json:"task"`
	Framework          string   `json:"framework"`
	Device             string   `json:"device"`
	IsLoaded           bool     `json:"is_loaded"`
	Source             string   `json:"source,omitempty"`
	NumClasses         int      `json:"num_classes,omitempty"`
	ClassNames         []string `json:"class_names,omitempty"`
	NumKeypoints       int      `json:"num_keypoints,omitempty"`
	KeypointNames      []string `json:"keypoint_names,omitempty"`
	Languages          []string `json:"languages,omitempty"`
	SupportsTextPrompt bool     `json:"supports_text_prompt"`
	SupportsBatch      bool     `json:"supports_batch_inference"`
	ZeroShot           bool     `json:"zero_shot,omitempty"`
}
