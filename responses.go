package main

import (
	"github.com/hickeroar/naivebayes/bayes"
	"github.com/hickeroar/naivebayes/bayes/category"
)

// InfoResponse describes the trained model.
type InfoResponse struct {
	Categories     map[string]category.Summary `json:"Categories" yaml:"categories"`
	TotalSamples   int                         `json:"TotalSamples" yaml:"total_samples"`
	VocabularySize int                         `json:"VocabularySize" yaml:"vocabulary_size"`
}

// NewInfoResponse snapshots the classifier counters.
func NewInfoResponse(classifier *bayes.Classifier[string, string]) *InfoResponse {
	return &InfoResponse{
		Categories:     classifier.Summaries(),
		TotalSamples:   classifier.TotalSamples(),
		VocabularySize: classifier.VocabularySize(),
	}
}

// TrainingResponse is returned by endpoints that change training state.
type TrainingResponse struct {
	Success    bool
	Categories map[string]category.Summary
}

// NewTrainingResponse gets an assembled instance of TrainingResponse
func NewTrainingResponse(classifier *bayes.Classifier[string, string], success bool) *TrainingResponse {
	return &TrainingResponse{
		Success:    success,
		Categories: classifier.Summaries(),
	}
}

// ClassifyResponse is the outcome of classifying one text.
type ClassifyResponse struct {
	Category    string  `json:"Category" yaml:"category"`
	Classified  bool    `json:"Classified" yaml:"classified"`
	Score       float64 `json:"Score" yaml:"score"`
	Probability float64 `json:"Probability" yaml:"probability"`
}

// NewClassifyResponse converts a classification. An untrained classifier
// yields Classified=false and zero values.
func NewClassifyResponse(result bayes.Classification[string, string], classified bool) *ClassifyResponse {
	if !classified {
		return &ClassifyResponse{}
	}
	return &ClassifyResponse{
		Category:    result.Category,
		Classified:  true,
		Score:       result.Score,
		Probability: result.Probability,
	}
}
