package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/menta2k/vehicle-crop/pkg/augment"
	"github.com/menta2k/vehicle-crop/pkg/dataset"
)

// Detector backends
const (
	BackendONNX     = "onnx"
	BackendOllama   = "ollama"
	BackendLlamaCpp = "llamacpp"
)

// Config holds the application configuration
type Config struct {
	Dataset  dataset.Config `json:"dataset" yaml:"dataset"`
	Detector DetectorConfig `json:"detector" yaml:"detector"`
	Cropper  CropperConfig  `json:"cropper" yaml:"cropper"`
	Output   OutputConfig   `json:"output" yaml:"output"`
	// DataAugLayer maps layer names (random_flip, random_rotation,
	// random_zoom, random_contrast) to their parameters
	DataAugLayer map[string]augment.LayerParams `json:"data_aug_layer,omitempty" yaml:"data_aug_layer,omitempty"`
}

// DetectorConfig selects and configures the object detector
type DetectorConfig struct {
	Backend string `json:"backend" yaml:"backend"`
	// ModelPath is the .onnx file for the onnx backend
	ModelPath         string `json:"model_path" yaml:"model_path"`
	SharedLibraryPath string `json:"shared_library_path,omitempty" yaml:"shared_library_path,omitempty"`
	InputSize         int    `json:"input_size" yaml:"input_size"`
	// Model and URL address the vision model for the ollama and llamacpp backends
	Model               string  `json:"model" yaml:"model"`
	URL                 string  `json:"url" yaml:"url"`
	MaxImageDim         int     `json:"max_image_dim" yaml:"max_image_dim"`
	ConfidenceThreshold float64 `json:"confidence_threshold" yaml:"confidence_threshold"`
	NMSThreshold        float64 `json:"nms_threshold" yaml:"nms_threshold"`
}

// CropperConfig holds configuration for the batch cropping pipeline
type CropperConfig struct {
	Workers      int  `json:"workers" yaml:"workers"`
	FailFast     bool `json:"fail_fast" yaml:"fail_fast"`
	MinImageSize int  `json:"min_image_size" yaml:"min_image_size"`
}

// OutputConfig holds configuration for written images
type OutputConfig struct {
	// Format overrides the output extension; empty keeps the source one
	Format   string `json:"format" yaml:"format"`
	Quality  int    `json:"quality" yaml:"quality"`
	Lossless bool   `json:"lossless" yaml:"lossless"`
	Debug    bool   `json:"debug" yaml:"debug"`
}

// Default returns a configuration with default values
func Default() *Config {
	return &Config{
		Dataset: dataset.DefaultConfig(),
		Detector: DetectorConfig{
			Backend:             BackendONNX,
			ModelPath:           "models/yolov8m.onnx",
			InputSize:           640,
			Model:               "qwen2.5vl:7b",
			MaxImageDim:         1024,
			ConfidenceThreshold: 0.5,
			NMSThreshold:        0.7,
		},
		Cropper: CropperConfig{
			Workers:      1,
			MinImageSize: 1,
		},
		Output: OutputConfig{
			Quality: 95,
		},
	}
}

func isYAML(filename string) bool {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".yml", ".yaml":
		return true
	}
	return false
}

// LoadFromFile loads configuration from a JSON or YAML file, chosen by
// extension. Missing fields keep their default values.
func LoadFromFile(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := Default()
	if isYAML(filename) {
		err = yaml.Unmarshal(data, config)
	} else {
		err = json.Unmarshal(data, config)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// SaveToFile saves configuration as JSON or YAML, chosen by extension
func (c *Config) SaveToFile(filename string) error {
	dir := filepath.Dir(filename)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	var (
		data []byte
		err  error
	)
	if isYAML(filename) {
		data, err = yaml.Marshal(c)
	} else {
		data, err = json.MarshalIndent(c, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Dataset.Bucket == "" {
		return fmt.Errorf("dataset.bucket cannot be empty")
	}

	if c.Dataset.DataDir == "" {
		return fmt.Errorf("dataset.data_dir cannot be empty")
	}

	switch c.Detector.Backend {
	case BackendONNX:
		if c.Detector.ModelPath == "" {
			return fmt.Errorf("detector.model_path is required for the onnx backend")
		}
		if c.Detector.InputSize <= 0 || c.Detector.InputSize%32 != 0 {
			return fmt.Errorf("detector.input_size must be a positive multiple of 32")
		}
	case BackendOllama, BackendLlamaCpp:
		if c.Detector.Model == "" {
			return fmt.Errorf("detector.model is required for the %s backend", c.Detector.Backend)
		}
	default:
		return fmt.Errorf("detector.backend must be one of onnx, ollama, llamacpp")
	}

	if c.Detector.ConfidenceThreshold < 0 || c.Detector.ConfidenceThreshold > 1 {
		return fmt.Errorf("detector.confidence_threshold must be between 0 and 1")
	}

	if c.Detector.NMSThreshold < 0 || c.Detector.NMSThreshold > 1 {
		return fmt.Errorf("detector.nms_threshold must be between 0 and 1")
	}

	if c.Cropper.Workers < 1 {
		return fmt.Errorf("cropper.workers must be positive")
	}

	if c.Cropper.MinImageSize < 1 {
		return fmt.Errorf("cropper.min_image_size must be positive")
	}

	if c.Output.Quality < 1 || c.Output.Quality > 100 {
		return fmt.Errorf("output.quality must be between 1 and 100")
	}

	if _, err := augment.FromConfig(c.DataAugLayer); err != nil {
		return fmt.Errorf("data_aug_layer: %w", err)
	}

	return nil
}

// GetConfigPath returns the default configuration file path
func GetConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./config.json"
	}
	return filepath.Join(home, ".config", "vehicle-crop", "config.json")
}
