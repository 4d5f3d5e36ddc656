package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/menta2k/vehicle-crop/internal/config"
	"github.com/menta2k/vehicle-crop/pkg/cropper"
	"github.com/menta2k/vehicle-crop/pkg/processing"
	"github.com/menta2k/vehicle-crop/pkg/types"
)

func usage() {
	fmt.Fprintf(flag.CommandLine.Output(),
		"usage: %s [flags] <data_folder> <output_data_folder>\n\n"+
			"Crops every image under data_folder (laid out as <subset>/<class>/<file>)\n"+
			"to its largest car or truck and writes it to the same place under\n"+
			"output_data_folder. Images without a vehicle are copied whole.\n\n",
		filepath.Base(os.Args[0]))
	flag.PrintDefaults()
}

func main() {
	def := config.Default()

	var (
		configPath string
		backend    string
		model      string
		url        string
		ortLib     string
		confidence float64
		workers    int
		ext        string
		quality    int
		lossless   bool
		debug      bool
		failFast   bool
		verbose    bool
	)

	flag.StringVar(&configPath, "config", "", "JSON or YAML config file")
	flag.StringVar(&backend, "backend", def.Detector.Backend, "detector backend: onnx|ollama|llamacpp")
	flag.StringVar(&model, "model", "", "ONNX model path (onnx) or model name (ollama, llamacpp)")
	flag.StringVar(&url, "url", "", "server URL for ollama/llamacpp")
	flag.StringVar(&ortLib, "ort-lib", "", "path to the onnxruntime shared library")
	flag.Float64Var(&confidence, "confidence", def.Detector.ConfidenceThreshold, "minimum detection confidence (0-1)")
	flag.IntVar(&workers, "workers", def.Cropper.Workers, "images processed concurrently")
	flag.StringVar(&ext, "ext", "", "output format jpg|png|webp, empty keeps the source format")
	flag.IntVar(&quality, "quality", def.Output.Quality, "JPEG/WebP output quality (1-100)")
	flag.BoolVar(&lossless, "lossless", false, "WebP lossless output")
	flag.BoolVar(&debug, "debug", false, "also write detection overlays under <out>_debug")
	flag.BoolVar(&failFast, "fail-fast", false, "stop at the first image that fails")
	flag.BoolVar(&verbose, "v", false, "log every processed image")
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() != 2 {
		flag.Usage()
		os.Exit(2)
	}
	inputDir, outputDir := flag.Arg(0), flag.Arg(1)

	log := logrus.StandardLogger()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if verbose {
		log.SetLevel(logrus.DebugLevel)
	}

	cfg := def
	if configPath != "" {
		loaded, err := config.LoadFromFile(configPath)
		if err != nil {
			log.Fatal(err)
		}
		cfg = loaded
	}

	// explicit flags win over the config file
	modelSet := false
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "backend":
			cfg.Detector.Backend = backend
		case "model":
			modelSet = true
		case "url":
			cfg.Detector.URL = url
		case "ort-lib":
			cfg.Detector.SharedLibraryPath = ortLib
		case "confidence":
			cfg.Detector.ConfidenceThreshold = confidence
		case "workers":
			cfg.Cropper.Workers = workers
		case "ext":
			cfg.Output.Format = ext
		case "quality":
			cfg.Output.Quality = quality
		case "lossless":
			cfg.Output.Lossless = lossless
		case "debug":
			cfg.Output.Debug = debug
		case "fail-fast":
			cfg.Cropper.FailFast = failFast
		}
	})
	if modelSet {
		if cfg.Detector.Backend == config.BackendONNX {
			cfg.Detector.ModelPath = model
		} else {
			cfg.Detector.Model = model
		}
	}

	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	proc := processing.NewProcessor()
	proc.MinImageSize = cfg.Cropper.MinImageSize

	det, err := newDetector(ctx, cfg.Detector, proc, log)
	if err != nil {
		log.Fatalf("failed to create detector: %v", err)
	}
	defer det.Close()

	log.WithFields(logrus.Fields{
		"backend": cfg.Detector.Backend,
		"input":   inputDir,
		"output":  outputDir,
		"workers": cfg.Cropper.Workers,
	}).Info("cropping dataset")

	pipeline := cropper.New(det, cropper.Config{
		Workers:  cfg.Cropper.Workers,
		FailFast: cfg.Cropper.FailFast,
		Output: types.CropOptions{
			Extension: cfg.Output.Format,
			Quality:   cfg.Output.Quality,
			Lossless:  cfg.Output.Lossless,
			Debug:     cfg.Output.Debug,
		},
	}, cropper.WithProcessor(proc), cropper.WithLogger(log))

	stats, err := pipeline.Run(ctx, inputDir, outputDir)
	if err != nil {
		det.Close()
		log.Fatalf("cropping stopped: %v", err)
	}
	if stats.Failed > 0 {
		log.Warnf("%d images could not be processed", stats.Failed)
	}
}
