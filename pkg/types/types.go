package types

import (
	"fmt"
	"image"
)

// Box is an axis-aligned rectangle in the pixel space of the source image.
// X1, Y1 is the top-left corner and X2, Y2 the bottom-right corner.
type Box struct {
	X1 float64 `json:"x1"`
	Y1 float64 `json:"y1"`
	X2 float64 `json:"x2"`
	Y2 float64 `json:"y2"`
}

// Width returns the horizontal extent of the box
func (b Box) Width() float64 {
	return b.X2 - b.X1
}

// Height returns the vertical extent of the box
func (b Box) Height() float64 {
	return b.Y2 - b.Y1
}

// Area returns the area of the box in square pixels
func (b Box) Area() float64 {
	return b.Width() * b.Height()
}

// Detection is one candidate object reported by an object detector
type Detection struct {
	ClassID    int     `json:"class_id"`
	Confidence float64 `json:"confidence"`
	Box        Box     `json:"box"`
}

// SelectedBox is the integer crop rectangle chosen for an image.
// A valid box satisfies 0 <= Left < Right <= width and 0 <= Top < Bottom <= height.
type SelectedBox struct {
	Left   int `json:"left"`
	Top    int `json:"top"`
	Right  int `json:"right"`
	Bottom int `json:"bottom"`
}

// FullImage returns the box covering a whole width x height image
func FullImage(width, height int) SelectedBox {
	return SelectedBox{Left: 0, Top: 0, Right: width, Bottom: height}
}

// Rect converts the box to an image.Rectangle
func (s SelectedBox) Rect() image.Rectangle {
	return image.Rect(s.Left, s.Top, s.Right, s.Bottom)
}

// Width returns Right - Left
func (s SelectedBox) Width() int {
	return s.Right - s.Left
}

// Height returns Bottom - Top
func (s SelectedBox) Height() int {
	return s.Bottom - s.Top
}

func (s SelectedBox) String() string {
	return fmt.Sprintf("(%d, %d, %d, %d)", s.Left, s.Top, s.Right, s.Bottom)
}

// CropOptions controls how cropped images are written
type CropOptions struct {
	Extension string
	Quality   int
	Lossless  bool
	Debug     bool
}

// LabeledObject is one object reported by a vision language model.
// Box coordinates are normalized to [0,1] of the image size.
type LabeledObject struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
	Box        Box     `json:"box"`
}

// AnalysisResult contains the complete analysis result from the vision model
type AnalysisResult struct {
	Objects     []LabeledObject `json:"objects"`
	Description string          `json:"description"`
}
