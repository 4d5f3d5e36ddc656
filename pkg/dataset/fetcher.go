// Package dataset downloads the raw car image archive and its labels from
// object storage and unpacks them on disk.
package dataset

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"github.com/menta2k/vehicle-crop/internal/utils"
)

// Config names the objects to fetch and where they go
type Config struct {
	Bucket string `json:"bucket" yaml:"bucket"`
	Region string `json:"region,omitempty" yaml:"region,omitempty"`
	// DataDir receives the downloaded archive and labels
	DataDir string `json:"data_dir" yaml:"data_dir"`
	// ExtractDir receives the unpacked archive; empty means DataDir
	ExtractDir  string `json:"extract_dir,omitempty" yaml:"extract_dir,omitempty"`
	ArchiveKey  string `json:"archive_key" yaml:"archive_key"`
	ArchiveFile string `json:"archive_file" yaml:"archive_file"`
	LabelsKey   string `json:"labels_key" yaml:"labels_key"`
	LabelsFile  string `json:"labels_file" yaml:"labels_file"`
}

// DefaultConfig returns the published car dataset locations
func DefaultConfig() Config {
	return Config{
		Bucket:      "anyoneai-ay22-01",
		DataDir:     "data",
		ArchiveKey:  "training-datasets/car_ims.tgz",
		ArchiveFile: "training_image_set.tgz",
		LabelsKey:   "training-datasets/car_dataset_labels.csv",
		LabelsFile:  "car_dataset_labels.csv",
	}
}

// Fetcher downloads the dataset from an ObjectStore
type Fetcher struct {
	store  ObjectStore
	config Config
	log    logrus.FieldLogger
}

// NewFetcher creates a fetcher. A nil logger uses the logrus standard logger.
func NewFetcher(store ObjectStore, config Config, log logrus.FieldLogger) *Fetcher {
	if log == nil {
		log = logrus.StandardLogger()
	}
	if config.ExtractDir == "" {
		config.ExtractDir = config.DataDir
	}
	return &Fetcher{store: store, config: config, log: log}
}

// List logs and returns every key in the bucket
func (f *Fetcher) List(ctx context.Context) ([]string, error) {
	keys, err := f.store.ListKeys(ctx, f.config.Bucket)
	if err != nil {
		return nil, err
	}
	for _, key := range keys {
		f.log.WithFields(logrus.Fields{"bucket": f.config.Bucket, "key": key}).Info("object")
	}
	return keys, nil
}

// ArchivePath is where the image archive is stored locally
func (f *Fetcher) ArchivePath() string {
	return filepath.Join(f.config.DataDir, f.config.ArchiveFile)
}

// LabelsPath is where the labels csv is stored locally
func (f *Fetcher) LabelsPath() string {
	return filepath.Join(f.config.DataDir, f.config.LabelsFile)
}

// Fetch downloads and unpacks the image archive, then downloads the labels
func (f *Fetcher) Fetch(ctx context.Context) error {
	if err := utils.EnsureDir(f.config.DataDir); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	if err := f.download(ctx, f.config.ArchiveKey, f.ArchivePath()); err != nil {
		return err
	}

	archive, err := os.Open(f.ArchivePath())
	if err != nil {
		return fmt.Errorf("failed to open archive: %w", err)
	}
	defer archive.Close()

	files, err := ExtractTarGz(archive, f.config.ExtractDir)
	if err != nil {
		return fmt.Errorf("failed to extract %s: %w", f.ArchivePath(), err)
	}
	f.log.WithFields(logrus.Fields{"dir": f.config.ExtractDir, "files": files}).Info("extracted archive")

	return f.download(ctx, f.config.LabelsKey, f.LabelsPath())
}

// download writes key to path through a temporary file so an interrupted
// transfer never leaves a partial file at path
func (f *Fetcher) download(ctx context.Context, key, path string) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.part")
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer os.Remove(tmp.Name())

	n, err := f.store.Download(ctx, f.config.Bucket, key, tmp)
	if err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to move download into place: %w", err)
	}

	f.log.WithFields(logrus.Fields{
		"key":  key,
		"file": path,
		"size": utils.FormatFileSize(n),
	}).Info("downloaded object")
	return nil
}
