// Package selector reduces the output of a multi-class object detector to the
// single bounding box that is cropped out of an image.
//
// The policy is deliberately simple: only vehicle classes are eligible, the
// eligible detection with the largest area wins (first one on ties), and an
// image without an eligible detection is kept whole. Coordinates are
// truncated toward zero so they can address the pixel grid directly.
package selector

import (
	"math"

	"github.com/pkg/errors"

	"github.com/menta2k/vehicle-crop/pkg/detection"
	"github.com/menta2k/vehicle-crop/pkg/types"
)

var (
	// ErrInvalidDimensions is returned when the image width or height is not positive.
	ErrInvalidDimensions = errors.New("invalid image dimensions")
	// ErrMalformedBox is returned for an eligible detection whose box is inverted,
	// negative, non-finite or outside the image.
	ErrMalformedBox = errors.New("malformed detection box")
	// ErrDegenerateBox is returned when the chosen box has no pixel area after truncation.
	ErrDegenerateBox = errors.New("degenerate detection box")
)

// Selector picks the crop box for an image from its detections.
// The zero value is not usable, build one with New.
type Selector struct {
	eligible map[int]struct{}
}

// New returns a Selector that considers the given class ids.
// With no ids it falls back to detection.VehicleClasses.
func New(classIDs ...int) *Selector {
	if len(classIDs) == 0 {
		classIDs = detection.VehicleClasses
	}
	s := &Selector{eligible: make(map[int]struct{}, len(classIDs))}
	for _, id := range classIDs {
		s.eligible[id] = struct{}{}
	}
	return s
}

var defaultSelector = New()

// VehicleBox selects the crop box using the default car/truck classes
func VehicleBox(width, height int, detections []types.Detection) (types.SelectedBox, error) {
	return defaultSelector.Select(width, height, detections)
}

// Eligible reports whether detections of classID are candidates
func (s *Selector) Eligible(classID int) bool {
	_, ok := s.eligible[classID]
	return ok
}

// Select returns exactly one box for a width x height image.
//
// Detections of other classes are ignored entirely. With no eligible
// detection the full image is returned. Otherwise the eligible box with the
// strictly largest area is chosen and its coordinates truncated to integers.
func (s *Selector) Select(width, height int, detections []types.Detection) (types.SelectedBox, error) {
	if width <= 0 || height <= 0 {
		return types.SelectedBox{}, errors.Wrapf(ErrInvalidDimensions, "%dx%d", width, height)
	}

	best := -1
	bestArea := math.Inf(-1)
	for i, d := range detections {
		if !s.Eligible(d.ClassID) {
			continue
		}
		if err := validateBox(d.Box, width, height); err != nil {
			return types.SelectedBox{}, errors.Wrapf(err, "detection %d (class %d)", i, d.ClassID)
		}
		if area := d.Box.Area(); area > bestArea {
			best, bestArea = i, area
		}
	}

	if best < 0 {
		return types.FullImage(width, height), nil
	}

	b := detections[best].Box
	box := types.SelectedBox{
		Left:   int(b.X1),
		Top:    int(b.Y1),
		Right:  int(b.X2),
		Bottom: int(b.Y2),
	}
	if box.Width() <= 0 || box.Height() <= 0 {
		return types.SelectedBox{}, errors.Wrapf(ErrDegenerateBox, "detection %d truncates to %s", best, box)
	}

	return box, nil
}

func validateBox(b types.Box, width, height int) error {
	for _, v := range [...]float64{b.X1, b.Y1, b.X2, b.Y2} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return errors.Wrapf(ErrMalformedBox, "non-finite coordinate in %+v", b)
		}
		if v < 0 {
			return errors.Wrapf(ErrMalformedBox, "negative coordinate in %+v", b)
		}
	}
	if b.X1 > b.X2 || b.Y1 > b.Y2 {
		return errors.Wrapf(ErrMalformedBox, "inverted box %+v", b)
	}
	if b.X2 > float64(width) || b.Y2 > float64(height) {
		return errors.Wrapf(ErrMalformedBox, "box %+v outside %dx%d image", b, width, height)
	}
	return nil
}
