// Package onnx runs a YOLOv8-style COCO detector exported to ONNX through
// onnxruntime.
package onnx

import (
	"context"
	"fmt"
	"image"
	"os"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/menta2k/vehicle-crop/pkg/detection"
	"github.com/menta2k/vehicle-crop/pkg/types"
)

// Config configures the ONNX detector
type Config struct {
	// ModelPath is the .onnx file, e.g. yolov8m.onnx
	ModelPath string
	// SharedLibraryPath points at libonnxruntime; empty uses ONNXRUNTIME_LIB
	// or the platform default name
	SharedLibraryPath string
	// InputSize is the square model input side
	InputSize int
	// ConfidenceThreshold drops detections scoring below it
	ConfidenceThreshold float32
	// NMSThreshold is the IoU above which same-class boxes are suppressed
	NMSThreshold float32
	// IntraOpThreads is passed to onnxruntime, 0 keeps its default
	IntraOpThreads int
	InputName      string
	OutputName     string
}

// DefaultConfig returns settings for a stock ultralytics export
func DefaultConfig() Config {
	return Config{
		InputSize:           640,
		ConfidenceThreshold: 0.5,
		NMSThreshold:        0.7,
		InputName:           "images",
		OutputName:          "output0",
	}
}

// Detector owns one onnxruntime session. The session reuses its input and
// output tensors, so runs are serialized.
type Detector struct {
	mu      sync.Mutex
	config  Config
	session *ort.AdvancedSession
	input   *ort.Tensor[float32]
	output  *ort.Tensor[float32]
	boxes   int
}

var (
	envMu   sync.Mutex
	envRefs int
)

func acquireEnvironment(libPath string) error {
	envMu.Lock()
	defer envMu.Unlock()

	if envRefs == 0 {
		if _, err := os.Stat(libPath); err != nil {
			return fmt.Errorf("ONNX Runtime library not found at %s: %w", libPath, err)
		}
		ort.SetSharedLibraryPath(libPath)
		if err := ort.InitializeEnvironment(); err != nil {
			return fmt.Errorf("error initializing ORT environment: %w", err)
		}
	}
	envRefs++
	return nil
}

func releaseEnvironment() error {
	envMu.Lock()
	defer envMu.Unlock()

	envRefs--
	if envRefs == 0 {
		return ort.DestroyEnvironment()
	}
	return nil
}

// NewDetector loads the model. Call Close to release it.
func NewDetector(config Config) (*Detector, error) {
	def := DefaultConfig()
	if config.InputSize <= 0 {
		config.InputSize = def.InputSize
	}
	if config.InputSize%32 != 0 {
		return nil, fmt.Errorf("input size %d is not a multiple of 32", config.InputSize)
	}
	if config.NMSThreshold <= 0 {
		config.NMSThreshold = def.NMSThreshold
	}
	if config.InputName == "" {
		config.InputName = def.InputName
	}
	if config.OutputName == "" {
		config.OutputName = def.OutputName
	}
	if _, err := os.Stat(config.ModelPath); err != nil {
		return nil, fmt.Errorf("model not found: %w", err)
	}

	if err := acquireEnvironment(sharedLibraryPath(config.SharedLibraryPath)); err != nil {
		return nil, err
	}

	d, err := newSession(config)
	if err != nil {
		_ = releaseEnvironment()
		return nil, err
	}
	return d, nil
}

func newSession(config Config) (*Detector, error) {
	size := int64(config.InputSize)
	boxes := anchorCount(config.InputSize)

	input, err := ort.NewEmptyTensor[float32](ort.NewShape(1, 3, size, size))
	if err != nil {
		return nil, fmt.Errorf("error creating input tensor: %w", err)
	}

	output, err := ort.NewEmptyTensor[float32](ort.NewShape(1, 4+detection.NumClasses, int64(boxes)))
	if err != nil {
		input.Destroy()
		return nil, fmt.Errorf("error creating output tensor: %w", err)
	}

	options, err := ort.NewSessionOptions()
	if err != nil {
		input.Destroy()
		output.Destroy()
		return nil, fmt.Errorf("error creating ORT session options: %w", err)
	}
	defer options.Destroy()

	if config.IntraOpThreads > 0 {
		if err := options.SetIntraOpNumThreads(config.IntraOpThreads); err != nil {
			input.Destroy()
			output.Destroy()
			return nil, fmt.Errorf("error setting intra-op threads: %w", err)
		}
	}

	session, err := ort.NewAdvancedSession(
		config.ModelPath,
		[]string{config.InputName},
		[]string{config.OutputName},
		[]ort.ArbitraryTensor{input},
		[]ort.ArbitraryTensor{output},
		options,
	)
	if err != nil {
		input.Destroy()
		output.Destroy()
		return nil, fmt.Errorf("error creating ORT session: %w", err)
	}

	return &Detector{
		config:  config,
		session: session,
		input:   input,
		output:  output,
		boxes:   boxes,
	}, nil
}

// Detect runs the model on img and returns detections in img pixel space
func (d *Detector) Detect(ctx context.Context, img image.Image) ([]types.Detection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.session == nil {
		return nil, fmt.Errorf("detector closed")
	}

	bounds := img.Bounds()
	if bounds.Dx() <= 0 || bounds.Dy() <= 0 {
		return nil, fmt.Errorf("invalid image dimensions %dx%d", bounds.Dx(), bounds.Dy())
	}

	if err := prepareInput(img, d.config.InputSize, d.input.GetData()); err != nil {
		return nil, fmt.Errorf("failed to prepare input: %w", err)
	}

	if err := d.session.Run(); err != nil {
		return nil, fmt.Errorf("failed to run inference: %w", err)
	}

	dets := decodeOutput(d.output.GetData(), d.boxes, d.config.InputSize,
		bounds.Dx(), bounds.Dy(), d.config.ConfidenceThreshold)
	return nonMaxSuppression(dets, d.config.NMSThreshold), nil
}

// Close releases the session and its tensors
func (d *Detector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.session == nil {
		return nil
	}

	var firstErr error
	for _, destroy := range []func() error{d.session.Destroy, d.input.Destroy, d.output.Destroy} {
		if err := destroy(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	d.session, d.input, d.output = nil, nil, nil

	if err := releaseEnvironment(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// anchorCount is the number of candidate boxes for the three YOLOv8 strides
func anchorCount(size int) int {
	n := 0
	for _, stride := range []int{8, 16, 32} {
		side := size / stride
		n += side * side
	}
	return n
}

func sharedLibraryPath(configured string) string {
	if configured != "" {
		return configured
	}
	if env := os.Getenv("ONNXRUNTIME_LIB"); env != "" {
		return env
	}
	return defaultLibraryName
}
