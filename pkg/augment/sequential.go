// Package augment builds random image augmentation pipelines from the
// data_aug_layer section of an experiment config.
package augment

import (
	"fmt"
	"image"
	"math/rand"
	"sort"
	"sync"
	"time"
)

// LayerOrder is the order layers run in, regardless of config order
var LayerOrder = []string{"random_flip", "random_rotation", "random_zoom", "random_contrast"}

var builders = map[string]func(LayerParams) (Layer, error){
	"random_flip":     newRandomFlip,
	"random_rotation": newRandomRotation,
	"random_zoom":     newRandomZoom,
	"random_contrast": newRandomContrast,
}

// Sequential applies its layers one after another
type Sequential struct {
	mu     sync.Mutex
	layers []Layer
	rng    *rand.Rand
}

// NewSequential creates a pipeline seeded from the clock
func NewSequential(layers ...Layer) *Sequential {
	return &Sequential{
		layers: layers,
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// FromConfig builds the layers named in cfg. Unknown layer names or
// parameters are rejected. An empty cfg gives an identity pipeline.
func FromConfig(cfg map[string]LayerParams) (*Sequential, error) {
	var unknown []string
	for name := range cfg {
		if _, ok := builders[name]; !ok {
			unknown = append(unknown, name)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return nil, fmt.Errorf("unknown augmentation layers %v", unknown)
	}

	var layers []Layer
	for _, name := range LayerOrder {
		params, ok := cfg[name]
		if !ok {
			continue
		}
		if params == nil {
			params = LayerParams{}
		}
		layer, err := builders[name](params)
		if err != nil {
			return nil, err
		}
		layers = append(layers, layer)
	}
	return NewSequential(layers...), nil
}

// Seed resets the random source so runs are reproducible
func (s *Sequential) Seed(seed int64) *Sequential {
	s.mu.Lock()
	s.rng = rand.New(rand.NewSource(seed))
	s.mu.Unlock()
	return s
}

// Layers returns the layer names in application order
func (s *Sequential) Layers() []string {
	names := make([]string, len(s.layers))
	for i, l := range s.layers {
		names[i] = l.Name()
	}
	return names
}

// Apply runs every layer on img. It is safe for concurrent use; draws from
// the shared random source are serialized.
func (s *Sequential) Apply(img image.Image) image.Image {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, l := range s.layers {
		img = l.Apply(img, s.rng)
	}
	return img
}
