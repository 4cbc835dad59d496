package bayes

import (
	"strings"
	"testing"
)

// buildBenchmarkClassifier creates a classifier preloaded for benchmarks.
func buildBenchmarkClassifier() *Classifier[string, string] {
	classifier := NewClassifier[string, string]()
	_ = classifier.Train("tech", strings.Fields(strings.Repeat("kubernetes latency tracing retries ", 50)))
	_ = classifier.Train("finance", strings.Fields(strings.Repeat("portfolio rebalancing volatility alpha beta ", 50)))
	_ = classifier.Train("cooking", strings.Fields(strings.Repeat("simmer saute reduction stock umami ", 50)))
	return classifier
}

// BenchmarkTrain benchmarks train.
func BenchmarkTrain(b *testing.B) {
	classifier := NewClassifier[string, string]()
	sample := strings.Fields(strings.Repeat("distributed systems retries idempotency ", 20))

	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		_ = classifier.Train("tech", sample)
	}
}

// BenchmarkScores benchmarks scores.
func BenchmarkScores(b *testing.B) {
	classifier := buildBenchmarkClassifier()
	sample := strings.Fields("portfolio volatility and latency retries under stress")

	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		_ = classifier.Scores(sample)
	}
}

// BenchmarkClassify benchmarks classify.
func BenchmarkClassify(b *testing.B) {
	classifier := buildBenchmarkClassifier()
	sample := strings.Fields("simmer stock reduction with balanced acidity")

	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		_, _ = classifier.Classify(sample)
	}
}
