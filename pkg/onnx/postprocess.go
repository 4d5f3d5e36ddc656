package onnx

import (
	"fmt"
	"image"
	"runtime"
	"sort"

	"github.com/nfnt/resize"

	"github.com/menta2k/vehicle-crop/pkg/detection"
	"github.com/menta2k/vehicle-crop/pkg/types"
)

var defaultLibraryName = func() string {
	switch runtime.GOOS {
	case "windows":
		return "onnxruntime.dll"
	case "darwin":
		return "libonnxruntime.dylib"
	default:
		return "libonnxruntime.so"
	}
}()

// prepareInput resizes img to size x size and writes it to dst as planar
// RGB floats in [0,1]
func prepareInput(img image.Image, size int, dst []float32) error {
	channelSize := size * size
	if len(dst) < channelSize*3 {
		return fmt.Errorf("destination tensor only holds %d floats, needs %d", len(dst), channelSize*3)
	}
	red := dst[0:channelSize]
	green := dst[channelSize : channelSize*2]
	blue := dst[channelSize*2 : channelSize*3]

	resized := resize.Resize(uint(size), uint(size), img, resize.Bilinear)
	rb := resized.Bounds()

	i := 0
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			r, g, b, _ := resized.At(rb.Min.X+x, rb.Min.Y+y).RGBA()
			red[i] = float32(r>>8) / 255.0
			green[i] = float32(g>>8) / 255.0
			blue[i] = float32(b>>8) / 255.0
			i++
		}
	}
	return nil
}

// decodeOutput reads a [4+classes, boxes] YOLOv8 output (cx, cy, w, h then
// class scores), keeps the best class per box when it scores at least
// threshold, and scales boxes back to a width x height image. Boxes are
// clamped to the image because the model regresses past its edges.
func decodeOutput(output []float32, boxes, inputSize, width, height int, threshold float32) []types.Detection {
	if len(output) < boxes*(4+detection.NumClasses) {
		return nil
	}

	sx := float64(width) / float64(inputSize)
	sy := float64(height) / float64(inputSize)

	dets := make([]types.Detection, 0, 64)
	for idx := 0; idx < boxes; idx++ {
		classID := -1
		var best float32
		for c := 0; c < detection.NumClasses; c++ {
			if p := output[boxes*(c+4)+idx]; classID < 0 || p > best {
				best, classID = p, c
			}
		}
		if best < threshold {
			continue
		}

		cx, cy := float64(output[idx]), float64(output[boxes+idx])
		w, h := float64(output[2*boxes+idx]), float64(output[3*boxes+idx])

		box := types.Box{
			X1: clampf((cx-w/2)*sx, 0, float64(width)),
			Y1: clampf((cy-h/2)*sy, 0, float64(height)),
			X2: clampf((cx+w/2)*sx, 0, float64(width)),
			Y2: clampf((cy+h/2)*sy, 0, float64(height)),
		}
		if box.X2 <= box.X1 || box.Y2 <= box.Y1 {
			continue
		}

		dets = append(dets, types.Detection{ClassID: classID, Confidence: float64(best), Box: box})
	}
	return dets
}

// nonMaxSuppression keeps the highest scoring box among same-class boxes that
// overlap by more than iouThreshold. The result is ordered by confidence.
func nonMaxSuppression(dets []types.Detection, iouThreshold float32) []types.Detection {
	sorted := append([]types.Detection(nil), dets...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Confidence > sorted[j].Confidence
	})

	kept := make([]types.Detection, 0, len(sorted))
	for _, candidate := range sorted {
		suppressed := false
		for _, k := range kept {
			if k.ClassID == candidate.ClassID && iou(k.Box, candidate.Box) > float64(iouThreshold) {
				suppressed = true
				break
			}
		}
		if !suppressed {
			kept = append(kept, candidate)
		}
	}
	return kept
}

func iou(a, b types.Box) float64 {
	ix1, iy1 := maxf(a.X1, b.X1), maxf(a.Y1, b.Y1)
	ix2, iy2 := minf(a.X2, b.X2), minf(a.Y2, b.Y2)
	if ix2 <= ix1 || iy2 <= iy1 {
		return 0
	}
	inter := (ix2 - ix1) * (iy2 - iy1)
	union := a.Area() + b.Area() - inter
	if union <= 0 {
		return 0
	}
	return inter / union
}

func clampf(v, lo, hi float64) float64 {
	return minf(maxf(v, lo), hi)
}

func maxf(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

func minf(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
