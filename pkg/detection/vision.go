package detection

import (
	"context"
	"fmt"
	"image"
	"math"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/menta2k/vehicle-crop/pkg/client"
	"github.com/menta2k/vehicle-crop/pkg/types"
)

// DefaultPrompt asks a vision model for every object in the image
const DefaultPrompt = `You are an object detector.

Return JSON only:
{
  "objects": [
    {"label": "string", "confidence": 0.0, "box": {"x1": 0.0, "y1": 0.0, "x2": 0.0, "y2": 0.0}}
  ],
  "description": "short neutral sentence (≤ 20 words)"
}

HARD RULES
- Report every distinct object: vehicles (car, truck, bus, motorcycle), people, animals and other COCO objects.
- Labels are lowercase COCO class names such as "car", "truck", "person".
- All coordinates are normalized to [0,1] (NOT pixels). x1,y1 is the top-left corner, x2,y2 the bottom-right.
- Each box tightly encloses its object, x1 < x2 and y1 < y2.
- If nothing is found, return {"objects":[],"description":"no objects"}.
- JSON only. No markdown, no code fences, no comments, no trailing commas.`

// pingPrompt is sent by Ping, any non-empty answer counts
const pingPrompt = "Reply with OK."

// ImageEncoder turns an image into the base64 payload sent to the model
type ImageEncoder func(img image.Image) (string, error)

// VisionConfig configures a VisionDetector
type VisionConfig struct {
	Model               string
	Prompt              string
	ConfidenceThreshold float64
	// Logger defaults to the logrus standard logger
	Logger logrus.FieldLogger
}

// VisionDetector detects objects with a multimodal language model
type VisionDetector struct {
	client client.VisionClient
	encode ImageEncoder
	config VisionConfig
}

// NewVisionDetector creates a new detector with a vision client
func NewVisionDetector(c client.VisionClient, encode ImageEncoder, config VisionConfig) *VisionDetector {
	if config.Prompt == "" {
		config.Prompt = DefaultPrompt
	}
	if config.Logger == nil {
		config.Logger = logrus.StandardLogger()
	}
	return &VisionDetector{client: c, encode: encode, config: config}
}

// Detect asks the model for the objects in img and converts them to pixel detections
func (d *VisionDetector) Detect(ctx context.Context, img image.Image) ([]types.Detection, error) {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w <= 0 || h <= 0 {
		return nil, fmt.Errorf("invalid image dimensions %dx%d", w, h)
	}

	imgB64, err := d.encode(img)
	if err != nil {
		return nil, fmt.Errorf("failed to encode image: %w", err)
	}

	result, err := d.client.AnalyzeImage(ctx, d.config.Model, d.config.Prompt, imgB64)
	if err != nil {
		return nil, err
	}

	if len(result.Objects) == 0 && result.Description == client.NoJSONDescription {
		d.config.Logger.WithField("model", d.config.Model).Warn("model reply held no JSON, treating it as no detections")
	}

	return FilterByConfidence(toDetections(result.Objects, w, h), d.config.ConfidenceThreshold), nil
}

// Ping checks that the model answers a plain text query
func (d *VisionDetector) Ping(ctx context.Context) error {
	reply, err := d.client.SimpleQuery(ctx, d.config.Model, pingPrompt, "")
	if err != nil {
		return fmt.Errorf("model %s is not reachable: %w", d.config.Model, err)
	}
	if strings.TrimSpace(reply) == "" {
		return fmt.Errorf("model %s returned an empty reply", d.config.Model)
	}
	return nil
}

// Close is a no-op, the underlying HTTP clients hold no exclusive resources
func (d *VisionDetector) Close() error {
	return nil
}

// toDetections maps labels to class ids and scales boxes to pixels.
// Unknown labels and boxes with no area are dropped.
func toDetections(objects []types.LabeledObject, w, h int) []types.Detection {
	out := make([]types.Detection, 0, len(objects))
	for _, o := range objects {
		id, ok := ClassID(o.Label)
		if !ok {
			continue
		}
		b := normalizeBox(o.Box)
		if b.X2 <= b.X1 || b.Y2 <= b.Y1 {
			continue
		}
		out = append(out, types.Detection{
			ClassID:    id,
			Confidence: clamp(o.Confidence, 0, 1),
			Box: types.Box{
				X1: b.X1 * float64(w),
				Y1: b.Y1 * float64(h),
				X2: b.X2 * float64(w),
				Y2: b.Y2 * float64(h),
			},
		})
	}
	return out
}

// clamp ensures a value is within the given bounds
func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) || v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// normalizeBox orders the corners and clamps them to [0,1]
func normalizeBox(b types.Box) types.Box {
	if b.X1 > b.X2 {
		b.X1, b.X2 = b.X2, b.X1
	}
	if b.Y1 > b.Y2 {
		b.Y1, b.Y2 = b.Y2, b.Y1
	}
	return types.Box{
		X1: clamp(b.X1, 0, 1),
		Y1: clamp(b.Y1, 0, 1),
		X2: clamp(b.X2, 0, 1),
		Y2: clamp(b.Y2, 0, 1),
	}
}
