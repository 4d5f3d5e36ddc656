package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/menta2k/vehicle-crop/internal/config"
	"github.com/menta2k/vehicle-crop/pkg/dataset"
)

func main() {
	var (
		configPath string
		bucket     string
		region     string
		dataDir    string
		listOnly   bool
	)

	flag.StringVar(&configPath, "config", "", "JSON or YAML config file")
	flag.StringVar(&bucket, "bucket", "", "S3 bucket holding the dataset")
	flag.StringVar(&region, "region", "", "AWS region, defaults to AWS_REGION")
	flag.StringVar(&dataDir, "data-dir", "", "local directory for the archive and labels")
	flag.BoolVar(&listOnly, "list", false, "only list the objects in the bucket")
	flag.Parse()

	log := logrus.StandardLogger()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	cfg := config.Default()
	if configPath != "" {
		loaded, err := config.LoadFromFile(configPath)
		if err != nil {
			log.Fatal(err)
		}
		cfg = loaded
	}
	if bucket != "" {
		cfg.Dataset.Bucket = bucket
	}
	if region != "" {
		cfg.Dataset.Region = region
	}
	if dataDir != "" {
		cfg.Dataset.DataDir = dataDir
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := dataset.NewS3Store(ctx, cfg.Dataset.Region)
	if err != nil {
		log.Fatal(err)
	}

	fetcher := dataset.NewFetcher(store, cfg.Dataset, log)

	if _, err := fetcher.List(ctx); err != nil {
		log.Fatal(err)
	}
	if listOnly {
		return
	}

	if err := fetcher.Fetch(ctx); err != nil {
		log.Fatal(err)
	}
	log.WithFields(logrus.Fields{
		"archive": fetcher.ArchivePath(),
		"labels":  fetcher.LabelsPath(),
	}).Info("dataset ready")
}
