package main

import (
	"flag"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/menta2k/vehicle-crop/internal/config"
	"github.com/menta2k/vehicle-crop/internal/utils"
	"github.com/menta2k/vehicle-crop/pkg/augment"
	"github.com/menta2k/vehicle-crop/pkg/processing"
)

func main() {
	var (
		configPath string
		in         string
		outDir     string
		n          int
		seed       int64
		ext        string
		quality    int
	)

	flag.StringVar(&configPath, "config", "", "experiment YAML with a data_aug_layer section")
	flag.StringVar(&in, "in", "", "input image path or URL")
	flag.StringVar(&outDir, "out", "out", "output directory")
	flag.IntVar(&n, "n", 8, "number of augmented samples")
	flag.Int64Var(&seed, "seed", 0, "random seed, 0 uses the clock")
	flag.StringVar(&ext, "ext", "", "output format jpg|png|webp, empty keeps the source format")
	flag.IntVar(&quality, "quality", 90, "JPEG/WebP output quality (1-100)")
	flag.Parse()

	log := logrus.StandardLogger()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	if configPath == "" || in == "" {
		log.Fatal("usage: augment -config experiment.yml -in image.jpg [-out dir] [-n 8] [-seed 42]")
	}

	cfg, err := config.LoadFromFile(configPath)
	if err != nil {
		log.Fatal(err)
	}

	seq, err := augment.FromConfig(cfg.DataAugLayer)
	if err != nil {
		log.Fatalf("invalid data_aug_layer: %v", err)
	}
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	seq.Seed(seed)

	proc := processing.NewProcessor()
	img, err := proc.LoadImageSmart(in)
	if err != nil {
		log.Fatal(err)
	}

	if err := utils.EnsureDir(outDir); err != nil {
		log.Fatal(err)
	}

	log.WithFields(logrus.Fields{"layers": seq.Layers(), "seed": seed}).Info("augmenting")
	for i := 0; i < n; i++ {
		out := utils.GenerateOutputFilename(in, outDir, "", fmt.Sprintf("_aug%03d", i), ext)
		if err := proc.SaveImage(seq.Apply(img), out, ext, quality, false); err != nil {
			log.Fatal(err)
		}
		log.WithField("file", out).Debug("wrote sample")
	}
	log.Infof("wrote %d samples to %s", n, outDir)
}
