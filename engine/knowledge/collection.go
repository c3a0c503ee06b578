package knowledge

import (
	"errors"
	"fmt"
	"strings"
)

// Distance enumerates vector distance metrics supported by the vector engine.
type Distance string

const (
	DistanceCosine    Distance = "Cosine"
	DistanceDot       Distance = "Dot"
	DistanceEuclidean Distance = "Euclid"
)

// Collection is a named vector-store partition with a fixed dimension and
// capability flags. Collections are static configuration, never created per
// request.
type Collection struct {
	Name        string     `koanf:"name"`
	Dimension   int        `koanf:"dimension"`
	Distance    Distance   `koanf:"distance"`
	TextCapable bool       `koanf:"text_capable"`
	Multimodal  bool       `koanf:"multimodal"`
	OnDisk      bool       `koanf:"on_disk"`
	Shards      uint       `koanf:"shards"`
	Modalities  []Modality `koanf:"modalities"`
}

// Validate checks the collection configuration for defects.
func (c *Collection) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return errors.New("knowledge: collection name is required")
	}
	if c.Dimension <= 0 {
		return fmt.Errorf("knowledge: collection %q dimension must be greater than zero", c.Name)
	}
	switch c.Distance {
	case DistanceCosine, DistanceDot, DistanceEuclidean:
	case "":
		c.Distance = DistanceCosine
	default:
		return fmt.Errorf("knowledge: collection %q has unknown distance %q", c.Name, c.Distance)
	}
	if !c.TextCapable && !c.Multimodal {
		return fmt.Errorf("knowledge: collection %q must be text capable, multimodal, or both", c.Name)
	}
	return nil
}

// AcceptsModality reports whether the collection is a routing target for the
// given modality. A collection with no modality list accepts everything.
func (c *Collection) AcceptsModality(m Modality) bool {
	if len(c.Modalities) == 0 {
		return true
	}
	for _, candidate := range c.Modalities {
		if candidate == m {
			return true
		}
	}
	return false
}
