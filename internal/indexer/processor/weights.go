package processor

import (
	"strings"

	"github.com/Adithya-Monish-Kumar-K/webindex/pkg/config"
)

// TagWeights maps an element name to the weight added for every term
// occurrence inside it. Names missing from the table weigh Fallback.
type TagWeights struct {
	weights  map[string]float64
	Fallback float64
}

// NewTagWeights copies weights; keys are matched case-insensitively.
func NewTagWeights(weights map[string]float64, fallback float64) TagWeights {
	w := TagWeights{
		weights:  make(map[string]float64, len(weights)),
		Fallback: fallback,
	}
	for name, v := range weights {
		w.weights[strings.ToLower(name)] = v
	}
	return w
}

// DefaultTagWeights is title=50, h1..h6=35..10, b/strong=5, anything else 1.
func DefaultTagWeights() TagWeights {
	return NewTagWeights(config.DefaultTagWeights(), 1)
}

// FromConfig builds the table from indexer settings, falling back to the
// defaults when none are configured.
func FromConfig(cfg config.IndexerConfig) TagWeights {
	if len(cfg.TagWeights) == 0 {
		return NewTagWeights(config.DefaultTagWeights(), cfg.DefaultTagWeight)
	}
	return NewTagWeights(cfg.TagWeights, cfg.DefaultTagWeight)
}

// Weight returns the weight of a tag.
func (w TagWeights) Weight(tag string) float64 {
	if v, ok := w.weights[tag]; ok {
		return v
	}
	return w.Fallback
}
