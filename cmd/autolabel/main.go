// Command autolabel runs the labeling pipeline over an image or a directory
// and writes the results as a YOLO-format project.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/golang/glog"

	"github.com/autolabel-ai/go-autolabel/images"
	"github.com/autolabel-ai/go-autolabel/models/model"
	"github.com/autolabel-ai/go-autolabel/pipeline"
	"github.com/autolabel-ai/go-autolabel/project"
	"github.com/autolabel-ai/go-autolabel/render"
	"github.com/autolabel-ai/go-autolabel/util"
)

func main() {
	var (
		inputPath     string
		projectName   string
		outputRoot    string
		presetName    string
		detectorPath  string
		posePath      string
		dinoSource    string
		ocrSource     string
		prompt        string
		classList     string
		languages     string
		confidence    float64
		previewDir    string
		useGPU        bool
	)

	flag.StringVar(&inputPath, "input", "", "Image file or directory to label")
	flag.StringVar(&projectName, "project", "autolabel", "Project name for the saved dataset")
	flag.StringVar(&outputRoot, "output", "projects", "Root directory for saved projects")
	flag.StringVar(&presetName, "preset", "", "Task preset: safety, document or full (default: loaded slots)")
	flag.StringVar(&detectorPath, "detector", "", "Path to a YOLO detection ONNX model")
	flag.StringVar(&posePath, "pose", "", "Path to a YOLO pose ONNX model")
	flag.StringVar(&dinoSource, "zero-shot", "", "Grounding DINO source (hub repo or local path); requires -prompt")
	flag.StringVar(&ocrSource, "ocr", "", "EasyOCR source (hub repo or local directory)")
	flag.StringVar(&prompt, "prompt", "", "Period-delimited zero-shot prompt, e.g. \"person. forklift.\"")
	flag.StringVar(&classList, "classes", "", "Comma-separated class list overriding the detector vocabulary")
	flag.StringVar(&languages, "languages", "", "Comma-separated OCR languages (default en,ko)")
	flag.Float64Var(&confidence, "confidence", 0.5, "Detection confidence threshold")
	flag.StringVar(&previewDir, "preview", "", "Directory for annotated preview images (optional)")
	flag.BoolVar(&useGPU, "gpu", false, "Request GPU execution")
	flag.Parse()

	if inputPath == "" {
		fmt.Fprintln(os.Stderr, "autolabel: -input is required")
		flag.Usage()
		os.Exit(2)
	}

	if err := run(inputPath, projectName, outputRoot, presetName, detectorPath, posePath,
		dinoSource, ocrSource, prompt, classList, languages, float32(confidence), previewDir, useGPU); err != nil {
		glog.Errorf("autolabel: %v", err)
		os.Exit(1)
	}
}

func run(inputPath, projectName, outputRoot, presetName, detectorPath, posePath,
	dinoSource, ocrSource, prompt, classList, languages string,
	confidence float32, previewDir string, useGPU bool) error {

	ctx := context.Background()
	manager := pipeline.NewManager()
	defer manager.Clear()

	loadOpts := model.LoadOptions{GPU: useGPU}
	if languages != "" {
		loadOpts.Languages = splitList(languages)
	}

	if detectorPath != "" && dinoSource != "" {
		return fmt.Errorf("-detector and -zero-shot both target the detection slot; pick one")
	}
	if detectorPath != "" {
		if _, err := manager.AddModel(ctx, model.TypeDetection, model.NameYOLO, detectorPath, loadOpts); err != nil {
			return err
		}
	}
	if dinoSource != "" {
		if prompt == "" {
			return fmt.Errorf("-zero-shot requires -prompt")
		}
		if _, err := manager.AddModel(ctx, model.TypeDetection, model.NameGroundingDINO, dinoSource, loadOpts); err != nil {
			return err
		}
	}
	if posePath != "" {
		if _, err := manager.AddModel(ctx, model.TypeKeypoint, model.NameYOLOPose, posePath, loadOpts); err != nil {
			return err
		}
	}
	if ocrSource != "" {
		if _, err := manager.AddModel(ctx, model.TypeOCR, model.NameEasyOCR, ocrSource, loadOpts); err != nil {
			return err
		}
	}

	tasks, err := resolveTasks(manager, presetName)
	if err != nil {
		return err
	}
	if len(tasks) == 0 {
		return fmt.Errorf("no models loaded; supply -detector, -zero-shot, -pose or -ocr")
	}

	files, err := loadInput(inputPath)
	if err != nil {
		return err
	}

	opts := model.DefaultPredictOptions()
	opts.ConfidenceThreshold = confidence
	opts.TextPrompt = prompt

	var labeled []project.Image
	for _, file := range files {
		frame, err := images.FromBytes(file.Data)
		if err != nil {
			glog.Warningf("autolabel: skipping %s: %v", file.Name, err)
			continue
		}

		outcome := manager.RunMulti(ctx, frame, tasks, perTaskOptions(tasks, opts))

		img := project.Image{
			Name:   file.Name,
			Data:   file.Data,
			Width:  frame.Width,
			Height: frame.Height,
		}
		for task, res := range outcome {
			if res.Error != "" {
				glog.Warningf("autolabel: %s on %s: %s", task, file.Name, res.Error)
				continue
			}
			img.Boxes = append(img.Boxes, res.Result.Boxes...)
			if previewDir != "" {
				if err := writePreview(previewDir, file.Name, task, frame, res.Result); err != nil {
					glog.Warningf("autolabel: preview for %s: %v", file.Name, err)
				}
			}
		}
		labeled = append(labeled, img)
	}

	vocab, _ := manager.Vocabulary(model.TypeDetection)
	result, err := project.NewService(outputRoot).Save(project.SaveRequest{
		ProjectName:        projectName,
		Classes:            splitList(classList),
		DetectorVocabulary: vocab,
		Images:             labeled,
		LowConfidence:      confidence,
	})
	if err != nil {
		return err
	}

	fmt.Printf("saved %s: %d/%d images, %d label files, %d classes\n",
		result.ProjectDir, result.SavedImages, result.TotalImages,
		result.SavedLabels, len(result.Classes))
	if len(result.LowConfidence) > 0 {
		fmt.Printf("review %d low-confidence images: %s\n",
			len(result.LowConfidence), strings.Join(result.LowConfidence, ", "))
	}
	return nil
}

// resolveTasks picks the slots to run: the preset when given, otherwise
// every occupied slot.
func resolveTasks(manager *pipeline.Manager, presetName string) ([]pipeline.Task, error) {
	if presetName != "" {
		return pipeline.Preset(presetName)
	}
	var tasks []pipeline.Task
	for task := range manager.Info() {
		tasks = append(tasks, task)
	}
	return tasks, nil
}

func perTaskOptions(tasks []pipeline.Task, opts model.PredictOptions) map[pipeline.Task]model.PredictOptions {
	out := make(map[pipeline.Task]model.PredictOptions, len(tasks))
	for _, task := range tasks {
		out[task] = opts
	}
	return out
}

func loadInput(path string) ([]util.ImageFile, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return util.LoadDirectoryImageFiles(path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return []util.ImageFile{{Path: path, Name: filepath.Base(path), Data: data}}, nil
}

func writePreview(dir, name string, task pipeline.Task, frame *images.Frame, res *model.Result) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	stem := strings.TrimSuffix(name, filepath.Ext(name))
	out := filepath.Join(dir, fmt.Sprintf("%s_%s.jpg", stem, task))
	return render.Preview(frame, res, out)
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
