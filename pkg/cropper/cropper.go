// Package cropper crops every image of a dataset tree down to its vehicle.
package cropper

import (
	"context"
	"fmt"
	"image"
	"path/filepath"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/menta2k/vehicle-crop/internal/utils"
	"github.com/menta2k/vehicle-crop/pkg/detection"
	"github.com/menta2k/vehicle-crop/pkg/processing"
	"github.com/menta2k/vehicle-crop/pkg/selector"
	"github.com/menta2k/vehicle-crop/pkg/types"
)

// Config holds configuration for the cropping pipeline
type Config struct {
	// Workers is the number of files processed concurrently
	Workers int
	// FailFast stops the run on the first per-file error
	FailFast bool
	// Output controls the written files. An empty Extension keeps the
	// source extension.
	Output types.CropOptions
}

// DefaultConfig returns a sequential pipeline writing files as-is
func DefaultConfig() Config {
	return Config{
		Workers: 1,
		Output:  types.CropOptions{Quality: 95},
	}
}

// Outcome describes what happened to one file
type Outcome int

const (
	// Cropped means a vehicle box was found and written
	Cropped Outcome = iota
	// Fallback means no vehicle was found and the full image was written
	Fallback
	// Skipped means the output already existed
	Skipped
)

func (o Outcome) String() string {
	switch o {
	case Cropped:
		return "cropped"
	case Fallback:
		return "fallback"
	case Skipped:
		return "skipped"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Stats counts the outcomes of a run
type Stats struct {
	Processed int `json:"processed"`
	Fallback  int `json:"fallback"`
	Skipped   int `json:"skipped"`
	Failed    int `json:"failed"`
}

// Result is the crop of a single image
type Result struct {
	Image      image.Image
	Box        types.SelectedBox
	Detections []types.Detection
	// Fallback is set when no eligible detection was present
	Fallback bool
}

// Pipeline runs detect, select, crop and save over image files
type Pipeline struct {
	detector  detection.Detector
	selector  *selector.Selector
	processor *processing.Processor
	config    Config
	log       logrus.FieldLogger
}

// Option customizes a Pipeline
type Option func(*Pipeline)

// WithSelector replaces the default car/truck selector
func WithSelector(s *selector.Selector) Option {
	return func(p *Pipeline) { p.selector = s }
}

// WithProcessor replaces the default image processor
func WithProcessor(proc *processing.Processor) Option {
	return func(p *Pipeline) { p.processor = proc }
}

// WithLogger sets the logger used for per-file reporting
func WithLogger(log logrus.FieldLogger) Option {
	return func(p *Pipeline) { p.log = log }
}

// New creates a pipeline around a detector. The pipeline does not own the
// detector; the caller closes it.
func New(det detection.Detector, config Config, opts ...Option) *Pipeline {
	if config.Workers < 1 {
		config.Workers = 1
	}
	if config.Output.Quality <= 0 {
		config.Output.Quality = DefaultConfig().Output.Quality
	}
	p := &Pipeline{
		detector:  det,
		selector:  selector.New(),
		processor: processing.NewProcessor(),
		config:    config,
		log:       logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// CropImage detects objects in img and crops it to the selected box
func (p *Pipeline) CropImage(ctx context.Context, img image.Image) (Result, error) {
	if err := p.processor.ValidateImage(img); err != nil {
		return Result{}, err
	}

	dets, err := p.detector.Detect(ctx, img)
	if err != nil {
		return Result{}, fmt.Errorf("detection failed: %w", err)
	}

	bounds := img.Bounds()
	box, err := p.selector.Select(bounds.Dx(), bounds.Dy(), dets)
	if err != nil {
		return Result{}, err
	}

	cropped, err := p.processor.CropImageToBox(img, box)
	if err != nil {
		return Result{}, err
	}

	return Result{
		Image:      cropped,
		Box:        box,
		Detections: dets,
		Fallback:   !p.hasEligible(dets),
	}, nil
}

func (p *Pipeline) hasEligible(dets []types.Detection) bool {
	for _, d := range dets {
		if p.selector.Eligible(d.ClassID) {
			return true
		}
	}
	return false
}

// OutputPath maps src to outputDir/<subset>/<class>/<name>, mirroring the two
// parent directories of src. The extension is replaced when one is configured.
func (p *Pipeline) OutputPath(src, outputDir string) string {
	classDir := filepath.Dir(src)
	subsetDir := filepath.Dir(classDir)
	dst := filepath.Join(outputDir, filepath.Base(subsetDir), filepath.Base(classDir), filepath.Base(src))
	return utils.ReplaceExt(dst, p.config.Output.Extension)
}

// DebugPath maps src to <outputDir>_debug/<subset>/<class>/<name>_debug.png,
// a tree next to the cropped one so overlays never mix with training data.
func (p *Pipeline) DebugPath(src, outputDir string) string {
	dst := p.OutputPath(src, filepath.Clean(outputDir)+"_debug")
	return strings.TrimSuffix(dst, filepath.Ext(dst)) + "_debug.png"
}

// ProcessFile crops src into dst. An existing dst is left untouched. When
// debugDst is not empty the detections and the selected box are drawn over
// src and saved there as PNG.
func (p *Pipeline) ProcessFile(ctx context.Context, src, dst, debugDst string) (Outcome, error) {
	if utils.FileExists(dst) {
		return Skipped, nil
	}

	img, err := p.processor.LoadImage(src)
	if err != nil {
		return 0, fmt.Errorf("failed to load %s: %w", src, err)
	}

	res, err := p.CropImage(ctx, img)
	if err != nil {
		return 0, fmt.Errorf("failed to crop %s: %w", src, err)
	}

	if err := utils.EnsureDir(filepath.Dir(dst)); err != nil {
		return 0, fmt.Errorf("failed to create output directory: %w", err)
	}

	opts := p.config.Output
	if err := p.processor.SaveImage(res.Image, dst, opts.Extension, opts.Quality, opts.Lossless); err != nil {
		return 0, fmt.Errorf("failed to save %s: %w", dst, err)
	}

	if debugDst != "" {
		if err := utils.EnsureDir(filepath.Dir(debugDst)); err != nil {
			return 0, fmt.Errorf("failed to create debug directory: %w", err)
		}
		overlay := p.processor.CreateDebugOverlay(img, res.Detections, p.selector.Eligible, res.Box)
		if err := p.processor.SaveImage(overlay, debugDst, "png", 0, false); err != nil {
			return 0, fmt.Errorf("failed to save debug overlay: %w", err)
		}
	}

	p.log.WithFields(logrus.Fields{
		"file":       src,
		"box":        res.Box.String(),
		"detections": len(res.Detections),
	}).Debug("cropped image")

	if res.Fallback {
		return Fallback, nil
	}
	return Cropped, nil
}

// Run crops every image under inputDir into outputDir. Per-file failures are
// logged and counted unless FailFast is set, in which case the first one is
// returned.
func (p *Pipeline) Run(ctx context.Context, inputDir, outputDir string) (Stats, error) {
	if !utils.DirExists(inputDir) {
		return Stats{}, fmt.Errorf("input directory %s does not exist", inputDir)
	}
	if err := utils.EnsureDir(outputDir); err != nil {
		return Stats{}, fmt.Errorf("failed to create output directory: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		mu       sync.Mutex
		stats    Stats
		firstErr error
		wg       sync.WaitGroup
	)

	jobs := make(chan string)
	for i := 0; i < p.config.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for src := range jobs {
				if ctx.Err() != nil {
					continue
				}
				debugDst := ""
				if p.config.Output.Debug {
					debugDst = p.DebugPath(src, outputDir)
				}
				outcome, err := p.ProcessFile(ctx, src, p.OutputPath(src, outputDir), debugDst)

				mu.Lock()
				switch {
				case err != nil:
					stats.Failed++
					p.log.WithError(err).WithField("file", src).Warn("failed to process image")
					if p.config.FailFast && firstErr == nil {
						firstErr = err
						cancel()
					}
				case outcome == Skipped:
					stats.Skipped++
				case outcome == Fallback:
					stats.Fallback++
					stats.Processed++
				default:
					stats.Processed++
				}
				mu.Unlock()
			}
		}()
	}

	walkErr := utils.WalkImageFiles(ctx, inputDir, func(path string) error {
		select {
		case jobs <- path:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})
	close(jobs)
	wg.Wait()

	if firstErr != nil {
		return stats, firstErr
	}
	if walkErr != nil {
		return stats, fmt.Errorf("failed to walk %s: %w", inputDir, walkErr)
	}

	p.log.WithFields(logrus.Fields{
		"processed": stats.Processed,
		"fallback":  stats.Fallback,
		"skipped":   stats.Skipped,
		"failed":    stats.Failed,
	}).Info("cropping finished")

	return stats, nil
}
