package main

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/menta2k/vehicle-crop/internal/config"
	"github.com/menta2k/vehicle-crop/pkg/client"
	"github.com/menta2k/vehicle-crop/pkg/detection"
	"github.com/menta2k/vehicle-crop/pkg/llamacpp"
	"github.com/menta2k/vehicle-crop/pkg/ollama"
	"github.com/menta2k/vehicle-crop/pkg/onnx"
	"github.com/menta2k/vehicle-crop/pkg/processing"
)

const (
	defaultOllamaURL = "http://localhost:11434"
	pingTimeout      = 60 * time.Second
)

// newDetector builds the configured backend. Vision backends must answer a
// ping before a run starts. The caller closes the detector.
func newDetector(ctx context.Context, cfg config.DetectorConfig, proc *processing.Processor, log logrus.FieldLogger) (detection.Detector, error) {
	switch cfg.Backend {
	case config.BackendONNX:
		oc := onnx.DefaultConfig()
		oc.ModelPath = cfg.ModelPath
		oc.SharedLibraryPath = cfg.SharedLibraryPath
		if cfg.InputSize > 0 {
			oc.InputSize = cfg.InputSize
		}
		oc.ConfidenceThreshold = float32(cfg.ConfidenceThreshold)
		if cfg.NMSThreshold > 0 {
			oc.NMSThreshold = float32(cfg.NMSThreshold)
		}
		det, err := onnx.NewDetector(oc)
		if err != nil {
			return nil, err
		}
		return det, nil

	case config.BackendOllama, config.BackendLlamaCpp:
		var (
			vc  client.VisionClient
			err error
		)
		if cfg.Backend == config.BackendOllama {
			url := cfg.URL
			if url == "" {
				url = defaultOllamaURL
			}
			vc, err = ollama.NewClient(url)
		} else {
			vc, err = llamacpp.NewClient(cfg.URL)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to create %s client: %w", cfg.Backend, err)
		}
		det := detection.NewVisionDetector(vc, proc.ModelEncoder("jpg", cfg.MaxImageDim, 85), detection.VisionConfig{
			Model:               cfg.Model,
			ConfidenceThreshold: cfg.ConfidenceThreshold,
			Logger:              log,
		})

		pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
		defer cancel()
		if err := det.Ping(pingCtx); err != nil {
			return nil, err
		}
		log.WithFields(logrus.Fields{"backend": cfg.Backend, "model": cfg.Model}).Info("vision model is reachable")
		return det, nil

	default:
		return nil, fmt.Errorf("unknown backend %q (use onnx, ollama or llamacpp)", cfg.Backend)
	}
}
