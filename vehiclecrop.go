// Package vehiclecrop crops car dataset images down to the vehicle they show.
//
// An object detector reports boxes for every object in an image. The selector
// keeps only cars and trucks, picks the one with the largest area and the
// image is cropped to it. Images without a vehicle are kept whole, so a
// dataset run never loses a sample.
//
// Basic usage:
//
//	package main
//
//	import (
//		"context"
//		"log"
//
//		vehiclecrop "github.com/menta2k/vehicle-crop"
//		"github.com/menta2k/vehicle-crop/pkg/onnx"
//	)
//
//	func main() {
//		cfg := onnx.DefaultConfig()
//		cfg.ModelPath = "models/yolov8m.onnx"
//		det, err := onnx.NewDetector(cfg)
//		if err != nil {
//			log.Fatal(err)
//		}
//
//		vc := vehiclecrop.New(det)
//		defer vc.Close()
//
//		img, err := vc.LoadImage("car.jpg")
//		if err != nil {
//			log.Fatal(err)
//		}
//
//		res, err := vc.CropVehicle(context.Background(), img)
//		if err != nil {
//			log.Fatal(err)
//		}
//
//		if err := vc.SaveImage(res.Image, "car_cropped.jpg"); err != nil {
//			log.Fatal(err)
//		}
//		log.Printf("cropped to %s", res.Box)
//	}
//
// The package consists of these main components:
//
// 1. Selector (pkg/selector): picks the crop box from a list of detections
// 2. Detectors (pkg/onnx, pkg/ollama, pkg/llamacpp): produce the detections
// 3. Cropper (pkg/cropper): runs detect, select, crop and save over a dataset tree
// 4. Dataset (pkg/dataset) and Augment (pkg/augment): fetch the raw data and
// build augmentation layers for training
package vehiclecrop

import (
	"context"
	"fmt"
	"image"

	"github.com/menta2k/vehicle-crop/pkg/cropper"
	"github.com/menta2k/vehicle-crop/pkg/detection"
	"github.com/menta2k/vehicle-crop/pkg/processing"
	"github.com/menta2k/vehicle-crop/pkg/selector"
	"github.com/menta2k/vehicle-crop/pkg/types"
)

// Version of the vehicle crop library
const Version = "1.0.0"

// VehicleCropper provides a high-level interface for cropping vehicle images
type VehicleCropper struct {
	detector  detection.Detector
	selector  *selector.Selector
	processor *processing.Processor
	pipeline  *cropper.Pipeline
}

// New creates a VehicleCropper with default configuration. It takes
// ownership of det, which is released by Close.
func New(det detection.Detector) *VehicleCropper {
	return NewWithConfig(det, cropper.DefaultConfig())
}

// NewWithConfig creates a VehicleCropper with a custom pipeline configuration
func NewWithConfig(det detection.Detector, config cropper.Config, opts ...cropper.Option) *VehicleCropper {
	vc := &VehicleCropper{
		detector:  det,
		selector:  selector.New(),
		processor: processing.NewProcessor(),
	}
	opts = append([]cropper.Option{
		cropper.WithSelector(vc.selector),
		cropper.WithProcessor(vc.processor),
	}, opts...)
	vc.pipeline = cropper.New(det, config, opts...)
	return vc
}

// VehicleBox selects the crop box for a width x height image from its
// detections. It needs no detector.
func VehicleBox(width, height int, detections []types.Detection) (types.SelectedBox, error) {
	return selector.VehicleBox(width, height, detections)
}

// LoadImage loads an image from a file path or URL
func (vc *VehicleCropper) LoadImage(source string) (image.Image, error) {
	return vc.processor.LoadImageSmart(source)
}

// SaveImage saves an image, choosing the format from the extension
func (vc *VehicleCropper) SaveImage(img image.Image, path string) error {
	return vc.processor.SaveImage(img, path, "", 95, false)
}

// GetImageInfo returns basic information about an image
func (vc *VehicleCropper) GetImageInfo(img image.Image) processing.ImageInfo {
	return vc.processor.GetImageInfo(img)
}

// DetectVehicles returns the car and truck detections in img
func (vc *VehicleCropper) DetectVehicles(ctx context.Context, img image.Image) ([]types.Detection, error) {
	dets, err := vc.detector.Detect(ctx, img)
	if err != nil {
		return nil, fmt.Errorf("detection failed: %w", err)
	}
	vehicles := make([]types.Detection, 0, len(dets))
	for _, d := range dets {
		if vc.selector.Eligible(d.ClassID) {
			vehicles = append(vehicles, d)
		}
	}
	return vehicles, nil
}

// CropVehicle crops img to its largest vehicle, or returns it whole
func (vc *VehicleCropper) CropVehicle(ctx context.Context, img image.Image) (cropper.Result, error) {
	return vc.pipeline.CropImage(ctx, img)
}

// ProcessImageFile crops one file. An existing output is left untouched.
func (vc *VehicleCropper) ProcessImageFile(ctx context.Context, inputPath, outputPath string) (cropper.Outcome, error) {
	return vc.pipeline.ProcessFile(ctx, inputPath, outputPath, "")
}

// ProcessImageFileDebug crops one file like ProcessImageFile and also saves
// the detection overlay to debugPath
func (vc *VehicleCropper) ProcessImageFileDebug(ctx context.Context, inputPath, outputPath, debugPath string) (cropper.Outcome, error) {
	return vc.pipeline.ProcessFile(ctx, inputPath, outputPath, debugPath)
}

// ProcessDataset crops every image of a <subset>/<class>/<file> tree
func (vc *VehicleCropper) ProcessDataset(ctx context.Context, inputDir, outputDir string) (cropper.Stats, error) {
	return vc.pipeline.Run(ctx, inputDir, outputDir)
}

// Close releases the detector
func (vc *VehicleCropper) Close() error {
	return vc.detector.Close()
}

// GetVersion returns the library version
func GetVersion() string {
	return Version
}
