package category

import (
	"cmp"
	"errors"
	"fmt"
)

var errInvalidCount = errors.New("count must be greater than zero")

// Category holds the training counts observed for a single label.
type Category[C cmp.Ordered, F comparable] struct {
	name     C
	features map[F]int // Map of features to their occurrence count
	tally    int       // Total feature occurrences in this category
	samples  int       // Training samples assigned to this category
}

// Summary is a read-only view of a category's counters.
type Summary struct {
	Samples  int
	Tally    int
	Distinct int
}

// NewCategory returns a pointer to a instance of type Category
func NewCategory[C cmp.Ordered, F comparable](name C) *Category[C, F] {
	return &Category[C, F]{
		name:     name,
		features: make(map[F]int),
	}
}

// Name returns the category label.
func (cat *Category[C, F]) Name() C {
	return cat.name
}

// TrainFeature adds count occurrences of a feature to this category
func (cat *Category[C, F]) TrainFeature(feature F, count int) error {
	if count <= 0 {
		return fmt.Errorf("%w: %d", errInvalidCount, count)
	}

	cat.features[feature] += count
	cat.tally += count
	return nil
}

// AddSample records one training sample for this category.
func (cat *Category[C, F]) AddSample() {
	cat.samples++
}

// GetFeatureCount returns a feature's count from this category, zero when unseen.
func (cat *Category[C, F]) GetFeatureCount(feature F) int {
	return cat.features[feature]
}

// GetTally returns the total of all feature occurrences for this category
func (cat *Category[C, F]) GetTally() int {
	return cat.tally
}

// GetSamples returns the number of training samples for this category
func (cat *Category[C, F]) GetSamples() int {
	return cat.samples
}

// Distinct returns the number of distinct features seen in this category.
func (cat *Category[C, F]) Distinct() int {
	return len(cat.features)
}

func (cat *Category[C, F]) summary() Summary {
	return Summary{
		Samples:  cat.samples,
		Tally:    cat.tally,
		Distinct: len(cat.features),
	}
}
