package category

import (
	"cmp"
	"errors"
	"fmt"
	"maps"
	"slices"
)

var (
	errInvalidName         = errors.New("invalid category name")
	errInvalidSamples      = errors.New("invalid sample count")
	errInvalidFeatureCount = errors.New("invalid feature count")
	errTallyMismatch       = errors.New("category tally does not match feature counts")
	errFeatureTotals       = errors.New("feature totals do not match category counts")
)

// PersistedCategory is the serializable state of one category.
type PersistedCategory[F comparable] struct {
	Samples  int
	Tally    int
	Features map[F]int
}

// Categories represents all our trained categories and the feature totals
// across them. The global feature table is always the column sum of the
// per-category tables.
type Categories[C cmp.Ordered, F comparable] struct {
	categories map[C]*Category[C, F] // Map of category names to categories
	features   map[F]int             // Map of features to their count across all categories
	samples    int                   // Total training samples
}

// NewCategories returns a pointer to a instance of type Categories
func NewCategories[C cmp.Ordered, F comparable]() *Categories[C, F] {
	return &Categories[C, F]{
		categories: make(map[C]*Category[C, F]),
		features:   make(map[F]int),
	}
}

// AddCategory is responsible for adding a new trainable category
func (cats *Categories[C, F]) AddCategory(name C) *Category[C, F] {
	cat := NewCategory[C, F](name)
	cats.categories[name] = cat
	return cat
}

// GetCategory returns a specified category, creating it when missing
func (cats *Categories[C, F]) GetCategory(name C) *Category[C, F] {
	if val, ok := cats.categories[name]; ok {
		return val
	}

	return cats.AddCategory(name)
}

// LookupCategory returns a category without creating it.
func (cats *Categories[C, F]) LookupCategory(name C) (*Category[C, F], bool) {
	cat, ok := cats.categories[name]
	return cat, ok
}

// Names returns the category names in ascending order.
func (cats *Categories[C, F]) Names() []C {
	return slices.Sorted(maps.Keys(cats.categories))
}

// Train records one sample of features under the named category.
func (cats *Categories[C, F]) Train(name C, features []F) {
	cat := cats.GetCategory(name)
	for _, feature := range features {
		// count is the constant 1, which TrainFeature always accepts
		_ = cat.TrainFeature(feature, 1)
		cats.features[feature]++
	}
	cat.AddSample()
	cats.samples++
}

// FeatureTotal returns how often a feature was seen across all categories.
func (cats *Categories[C, F]) FeatureTotal(feature F) int {
	return cats.features[feature]
}

// VocabularySize returns the number of distinct features seen in training.
func (cats *Categories[C, F]) VocabularySize() int {
	return len(cats.features)
}

// TotalSamples returns the number of training samples across all categories.
func (cats *Categories[C, F]) TotalSamples() int {
	return cats.samples
}

// Summaries returns a value snapshot of per-category counters.
func (cats *Categories[C, F]) Summaries() map[C]Summary {
	out := make(map[C]Summary, len(cats.categories))
	for name, cat := range cats.categories {
		out[name] = cat.summary()
	}
	return out
}

// ExportStates returns a deep copy of the per-category tables.
func (cats *Categories[C, F]) ExportStates() map[C]PersistedCategory[F] {
	out := make(map[C]PersistedCategory[F], len(cats.categories))
	for name, cat := range cats.categories {
		out[name] = PersistedCategory[F]{
			Samples:  cat.samples,
			Tally:    cat.tally,
			Features: maps.Clone(cat.features),
		}
	}
	return out
}

// ExportFeatures returns a copy of the global feature table.
func (cats *Categories[C, F]) ExportFeatures() map[F]int {
	return maps.Clone(cats.features)
}

// ReplaceStates validates persisted tables and replaces all current state.
// Nothing changes when validation fails.
func (cats *Categories[C, F]) ReplaceStates(states map[C]PersistedCategory[F], features map[F]int) error {
	if err := ValidateStates(states, features); err != nil {
		return err
	}

	next := make(map[C]*Category[C, F], len(states))
	totals := make(map[F]int)
	samples := 0
	for name, state := range states {
		cat := NewCategory[C, F](name)
		for feature, count := range state.Features {
			cat.features[feature] = count
			totals[feature] += count
		}
		cat.tally = state.Tally
		cat.samples = state.Samples
		next[name] = cat
		samples += state.Samples
	}

	cats.categories = next
	cats.features = totals
	cats.samples = samples
	return nil
}

// ValidName reports whether name can label a category. The zero value and
// NaN are rejected.
func ValidName[C cmp.Ordered](name C) bool {
	var zero C
	return name != zero && name == name
}

// ValidateStates checks persisted tables for internal consistency. A nil
// features table skips the global total check.
func ValidateStates[C cmp.Ordered, F comparable](states map[C]PersistedCategory[F], features map[F]int) error {
	totals := make(map[F]int)
	for name, state := range states {
		if !ValidName(name) {
			return fmt.Errorf("%w: %v", errInvalidName, name)
		}
		if state.Samples <= 0 {
			return fmt.Errorf("%w for %v: %d", errInvalidSamples, name, state.Samples)
		}

		sum := 0
		for feature, count := range state.Features {
			if count <= 0 {
				return fmt.Errorf("%w for %v feature %v: %d", errInvalidFeatureCount, name, feature, count)
			}
			sum += count
			totals[feature] += count
		}
		if sum != state.Tally {
			return fmt.Errorf("%w for %v: tally=%d sum=%d", errTallyMismatch, name, state.Tally, sum)
		}
	}

	if features == nil {
		return nil
	}
	if len(features) != len(totals) {
		return fmt.Errorf("%w: %d features persisted, %d derived", errFeatureTotals, len(features), len(totals))
	}
	for feature, count := range features {
		if totals[feature] != count {
			return fmt.Errorf("%w for %v: persisted=%d derived=%d", errFeatureTotals, feature, count, totals[feature])
		}
	}
	return nil
}
