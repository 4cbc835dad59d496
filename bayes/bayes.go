// Package bayes implements a multinomial Naive Bayes classifier over generic
// category and feature types.
//
// Scores are computed in log space with additive smoothing, so features that
// never appeared in training lower a category's score without zeroing it.
package bayes

import (
	"cmp"
	"errors"
	"fmt"
	"math"
	"slices"
	"sync"

	"github.com/hickeroar/naivebayes/bayes/category"
)

const defaultSmoothing = 1.0

// Bounds for the smoothing constant. Outside them α·|V| can overflow or the
// likelihood can round to zero.
const (
	MinSmoothing = 1e-9
	MaxSmoothing = 1e6
)

var (
	// ErrInvalidInput is the parent of all input validation errors.
	ErrInvalidInput = errors.New("invalid input")
	// ErrInvalidCategory is returned when training with a zero-value or NaN category.
	ErrInvalidCategory = fmt.Errorf("%w: category must be non-zero", ErrInvalidInput)
	// ErrNotTrained is returned when scoring before any sample was trained.
	ErrNotTrained = errors.New("classifier has not been trained")
	// ErrUnknownCategory is returned when scoring a category that was never trained.
	ErrUnknownCategory = errors.New("unknown category")
)

// Classifier is responsible for classifying feature samples. It is safe for
// concurrent use: training takes an exclusive lock, reads share one.
type Classifier[C cmp.Ordered, F comparable] struct {
	mu         sync.RWMutex
	categories *category.Categories[C, F]
	smoothing  float64
}

// Classification is the outcome of classifying one feature sample.
type Classification[C cmp.Ordered, F comparable] struct {
	Category    C
	Features    []F
	Score       float64 // log posterior score, comparable across categories
	Probability float64 // posterior normalized over all known categories
}

// Option configures a Classifier.
type Option func(*options)

type options struct {
	smoothing float64
}

// WithSmoothing sets the additive smoothing constant. Values outside
// [MinSmoothing, MaxSmoothing], and NaN, are ignored.
func WithSmoothing(alpha float64) Option {
	return func(o *options) {
		if ValidSmoothing(alpha) {
			o.smoothing = alpha
		}
	}
}

// ValidSmoothing reports whether alpha is an accepted smoothing constant.
func ValidSmoothing(alpha float64) bool {
	return alpha >= MinSmoothing && alpha <= MaxSmoothing
}

// NewClassifier returns a pointer to a instance of type Classifier
func NewClassifier[C cmp.Ordered, F comparable](opts ...Option) *Classifier[C, F] {
	o := options{smoothing: defaultSmoothing}
	for _, opt := range opts {
		opt(&o)
	}

	return &Classifier[C, F]{
		categories: category.NewCategories[C, F](),
		smoothing:  o.smoothing,
	}
}

// Smoothing returns the additive smoothing constant in use.
func (c *Classifier[C, F]) Smoothing() float64 {
	return c.smoothing
}

// Train records one sample: every feature occurrence is counted under the
// category and the category's sample count grows by one.
func (c *Classifier[C, F]) Train(cat C, features []F) error {
	if !category.ValidName(cat) {
		return fmt.Errorf("%w: %v", ErrInvalidCategory, cat)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.categories.Train(cat, features)
	return nil
}

// Reset empties every table and returns the classifier to the untrained state.
func (c *Classifier[C, F]) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.categories = category.NewCategories[C, F]()
}

// FeatureLikelihood estimates P(feature | category).
func (c *Classifier[C, F]) FeatureLikelihood(cat C, feature F) float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.featureLikelihood(cat, feature)
}

// FeatureSetLogLikelihood returns the sum of log P(f | category) over features.
func (c *Classifier[C, F]) FeatureSetLogLikelihood(cat C, features []F) float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.featureSetLogLikelihood(cat, features)
}

// PosteriorScore returns log P(category) + log P(features | category).
func (c *Classifier[C, F]) PosteriorScore(cat C, features []F) (float64, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.categories.TotalSamples() == 0 {
		return 0, ErrNotTrained
	}
	if _, ok := c.categories.LookupCategory(cat); !ok {
		return 0, fmt.Errorf("%w: %v", ErrUnknownCategory, cat)
	}
	return c.posteriorScore(cat, features), nil
}

// Classify returns the category with the highest posterior score. Exact ties
// go to the smallest category. The second return value is false when the
// classifier has not been trained.
func (c *Classifier[C, F]) Classify(features []F) (Classification[C, F], bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	names, scores := c.scoreAll(features)
	if len(names) == 0 {
		return Classification[C, F]{}, false
	}

	best := 0
	for i := 1; i < len(names); i++ {
		if scores[i] > scores[best] || (scores[i] == scores[best] && cmp.Less(names[i], names[best])) {
			best = i
		}
	}

	return Classification[C, F]{
		Category:    names[best],
		Features:    slices.Clone(features),
		Score:       scores[best],
		Probability: math.Exp(scores[best] - logSumExp(scores)),
	}, true
}

// Scores returns the normalized posterior probability of every category.
// The map is empty when the classifier has not been trained.
func (c *Classifier[C, F]) Scores(features []F) map[C]float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()

	names, scores := c.scoreAll(features)
	out := make(map[C]float64, len(names))
	if len(names) == 0 {
		return out
	}

	norm := logSumExp(scores)
	for i, name := range names {
		out[name] = math.Exp(scores[i] - norm)
	}
	return out
}

// Categories returns the trained categories in ascending order.
func (c *Classifier[C, F]) Categories() []C {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.categories.Names()
}

// CategoryCount returns the number of samples trained under a category.
func (c *Classifier[C, F]) CategoryCount(cat C) int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if found, ok := c.categories.LookupCategory(cat); ok {
		return found.GetSamples()
	}
	return 0
}

// FeatureCount returns how often a feature was trained under a category.
func (c *Classifier[C, F]) FeatureCount(cat C, feature F) int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if found, ok := c.categories.LookupCategory(cat); ok {
		return found.GetFeatureCount(feature)
	}
	return 0
}

// GlobalFeatureCount returns how often a feature was trained across all categories.
func (c *Classifier[C, F]) GlobalFeatureCount(feature F) int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.categories.FeatureTotal(feature)
}

// TotalSamples returns the number of training samples seen.
func (c *Classifier[C, F]) TotalSamples() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.categories.TotalSamples()
}

// VocabularySize returns the number of distinct features seen in training.
func (c *Classifier[C, F]) VocabularySize() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.categories.VocabularySize()
}

// Trained reports whether at least one sample has been trained.
func (c *Classifier[C, F]) Trained() bool {
	return c.TotalSamples() > 0
}

// Summaries returns per-category counters.
func (c *Classifier[C, F]) Summaries() map[C]category.Summary {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.categories.Summaries()
}

// featureLikelihood is (count + α) / (tally + α·|V|). A feature never seen in
// training counts toward |V|, which keeps the estimate within (0, 1].
func (c *Classifier[C, F]) featureLikelihood(cat C, feature F) float64 {
	vocabulary := c.categories.VocabularySize()
	if c.categories.FeatureTotal(feature) == 0 {
		vocabulary++
	}

	count, tally := 0, 0
	if found, ok := c.categories.LookupCategory(cat); ok {
		count = found.GetFeatureCount(feature)
		tally = found.GetTally()
	}

	return (float64(count) + c.smoothing) / (float64(tally) + c.smoothing*float64(vocabulary))
}

func (c *Classifier[C, F]) featureSetLogLikelihood(cat C, features []F) float64 {
	sum := 0.0
	for _, feature := range features {
		sum += math.Log(c.featureLikelihood(cat, feature))
	}
	return sum
}

// posteriorScore assumes the category exists and the classifier is trained.
func (c *Classifier[C, F]) posteriorScore(cat C, features []F) float64 {
	found, _ := c.categories.LookupCategory(cat)
	prior := float64(found.GetSamples()) / float64(c.categories.TotalSamples())
	return math.Log(prior) + c.featureSetLogLikelihood(cat, features)
}

func (c *Classifier[C, F]) scoreAll(features []F) ([]C, []float64) {
	if c.categories.TotalSamples() == 0 {
		return nil, nil
	}

	names := c.categories.Names()
	scores := make([]float64, len(names))
	for i, name := range names {
		scores[i] = c.posteriorScore(name, features)
	}
	return names, scores
}

func logSumExp(values []float64) float64 {
	peak := slices.Max(values)
	if math.IsInf(peak, -1) {
		return peak
	}

	sum := 0.0
	for _, v := range values {
		sum += math.Exp(v - peak)
	}
	return peak + math.Log(sum)
}
