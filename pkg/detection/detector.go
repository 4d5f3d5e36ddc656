package detection

import (
	"context"
	"image"

	"github.com/menta2k/vehicle-crop/pkg/types"
)

// Detector finds objects in an image. Implementations only report detections
// at or above their configured confidence threshold. A Detector is created
// once, shared read-only across calls and released with Close.
type Detector interface {
	Detect(ctx context.Context, img image.Image) ([]types.Detection, error)
	Close() error
}

// FilterByConfidence returns the detections whose confidence is at least min.
// The input slice is not modified.
func FilterByConfidence(dets []types.Detection, min float64) []types.Detection {
	out := make([]types.Detection, 0, len(dets))
	for _, d := range dets {
		if d.Confidence >= min {
			out = append(out, d)
		}
	}
	return out
}

// Func adapts a plain function to the Detector interface
type Func func(ctx context.Context, img image.Image) ([]types.Detection, error)

// Detect calls f
func (f Func) Detect(ctx context.Context, img image.Image) ([]types.Detection, error) {
	return f(ctx, img)
}

// Close is a no-op
func (f Func) Close() error {
	return nil
}
