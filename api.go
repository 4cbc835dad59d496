package main

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"sync/atomic"

	"github.com/hickeroar/naivebayes/bayes"
	"github.com/hickeroar/naivebayes/metrics"
	"github.com/hickeroar/naivebayes/tokenizer"
)

const maxRequestBodyBytes = 1 << 20 // 1 MiB

const authRealm = `Bearer realm="naivebayes"`

var categoryPathPattern = regexp.MustCompile(`^[-_A-Za-z0-9]+$`)

// ClassifierAPI serves classifier HTTP endpoints over a shared classifier.
type ClassifierAPI struct {
	classifier *bayes.Classifier[string, string]
	tokenizer  *tokenizer.Tokenizer
	metrics    *metrics.Metrics
	logger     *slog.Logger
	ready      atomic.Bool
}

// NewClassifierAPI wires a classifier, tokenizer and metrics into an API.
// The API starts not ready.
func NewClassifierAPI(classifier *bayes.Classifier[string, string], tok *tokenizer.Tokenizer, m *metrics.Metrics, logger *slog.Logger) *ClassifierAPI {
	if logger == nil {
		logger = slog.Default()
	}
	api := &ClassifierAPI{
		classifier: classifier,
		tokenizer:  tok,
		metrics:    m,
		logger:     logger,
	}
	api.observeModel()
	return api
}

// RegisterRoutes registers all API routes on the provided ServeMux.
func (c *ClassifierAPI) RegisterRoutes(mux *http.ServeMux) {
	c.handle(mux, "/info", "info", c.InfoHandler)
	c.handle(mux, "/train/", "train", c.TrainHandler)
	c.handle(mux, "/classify", "classify", c.ClassifyHandler)
	c.handle(mux, "/score", "score", c.ScoreHandler)
	c.handle(mux, "/reset", "reset", c.ResetHandler)
	mux.HandleFunc("/healthz", HealthHandler)
	mux.HandleFunc("/readyz", c.ReadyHandler)
	if c.metrics != nil {
		mux.Handle("/metrics", c.metrics.Handler())
	}
}

func (c *ClassifierAPI) handle(mux *http.ServeMux, pattern, name string, fn http.HandlerFunc) {
	if c.metrics == nil {
		mux.HandleFunc(pattern, fn)
		return
	}
	mux.Handle(pattern, c.metrics.Instrument(name, fn))
}

// withAuthorizationToken requires a bearer token on every route except the
// probes and metrics. An empty token disables the check.
func withAuthorizationToken(next http.Handler, token string) http.Handler {
	if token == "" {
		return next
	}
	expected := []byte(token)

	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		switch req.URL.Path {
		case "/healthz", "/readyz", "/metrics":
			next.ServeHTTP(w, req)
			return
		}

		provided, ok := strings.CutPrefix(req.Header.Get("Authorization"), "Bearer ")
		if !ok || subtle.ConstantTimeCompare([]byte(strings.TrimSpace(provided)), expected) != 1 {
			w.Header().Set("WWW-Authenticate", authRealm)
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next.ServeHTTP(w, req)
	})
}

func writeJSON(w http.ResponseWriter, status int, value any) {
	jsonResponse, err := json.Marshal(value)
	if err != nil {
		http.Error(w, `{"error":"failed to marshal response"}`, http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(jsonResponse); err != nil {
		slog.Warn("failed to write response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func readBody(w http.ResponseWriter, req *http.Request) (string, bool) {
	req.Body = http.MaxBytesReader(w, req.Body, maxRequestBodyBytes)
	defer req.Body.Close()

	body, err := io.ReadAll(req.Body)
	if err != nil {
		var maxBytesError *http.MaxBytesError
		if errors.As(err, &maxBytesError) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return "", false
		}
		writeError(w, http.StatusBadRequest, "unable to read request body")
		return "", false
	}

	return string(body), true
}

func categoryFromPath(path, prefix string) (string, bool) {
	category := strings.TrimPrefix(path, prefix)
	if category == "" || category == path || strings.Contains(category, "/") {
		return "", false
	}

	if !categoryPathPattern.MatchString(category) {
		return "", false
	}

	return category, true
}

func requireMethod(w http.ResponseWriter, req *http.Request, method string) bool {
	if req.Method != method {
		w.Header().Set("Allow", method)
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return false
	}
	return true
}

func (c *ClassifierAPI) observeModel() {
	if c.metrics == nil {
		return
	}
	c.metrics.ObserveModel(len(c.classifier.Categories()), c.classifier.VocabularySize())
}

// InfoHandler returns the current classifier training state.
func (c *ClassifierAPI) InfoHandler(w http.ResponseWriter, req *http.Request) {
	if !requireMethod(w, req, http.MethodGet) {
		return
	}

	writeJSON(w, http.StatusOK, NewInfoResponse(c.classifier))
}

// TrainHandler trains a category using request body text.
func (c *ClassifierAPI) TrainHandler(w http.ResponseWriter, req *http.Request) {
	if !requireMethod(w, req, http.MethodPost) {
		return
	}

	category, ok := categoryFromPath(req.URL.Path, "/train/")
	if !ok {
		writeError(w, http.StatusNotFound, "invalid category route")
		return
	}

	body, ok := readBody(w, req)
	if !ok {
		return
	}

	features := c.tokenizer.Tokenize(body)
	if err := c.classifier.Train(category, features); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if c.metrics != nil {
		c.metrics.TrainSamples.WithLabelValues(category).Inc()
	}
	c.observeModel()
	c.logger.Debug("trained sample", "category", category, "features", len(features))

	writeJSON(w, http.StatusOK, NewTrainingResponse(c.classifier, true))
}

// ClassifyHandler classifies request body text and returns the top match.
func (c *ClassifierAPI) ClassifyHandler(w http.ResponseWriter, req *http.Request) {
	if !requireMethod(w, req, http.MethodPost) {
		return
	}

	body, ok := readBody(w, req)
	if !ok {
		return
	}

	result, classified := c.classifier.Classify(c.tokenizer.Tokenize(body))
	if classified && c.metrics != nil {
		c.metrics.Classifications.WithLabelValues(result.Category).Inc()
	}

	writeJSON(w, http.StatusOK, NewClassifyResponse(result, classified))
}

// ScoreHandler returns the normalized probability of every category for
// request body text.
func (c *ClassifierAPI) ScoreHandler(w http.ResponseWriter, req *http.Request) {
	if !requireMethod(w, req, http.MethodPost) {
		return
	}

	body, ok := readBody(w, req)
	if !ok {
		return
	}

	writeJSON(w, http.StatusOK, c.classifier.Scores(c.tokenizer.Tokenize(body)))
}

// ResetHandler deletes all training data and gives us a fresh slate.
func (c *ClassifierAPI) ResetHandler(w http.ResponseWriter, req *http.Request) {
	if !requireMethod(w, req, http.MethodPost) {
		return
	}

	c.classifier.Reset()
	c.observeModel()
	c.logger.Info("classifier reset")

	writeJSON(w, http.StatusOK, NewTrainingResponse(c.classifier, true))
}

// HealthHandler returns liveness status for process health checks.
func HealthHandler(w http.ResponseWriter, req *http.Request) {
	if !requireMethod(w, req, http.MethodGet) {
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ReadyHandler returns readiness status for traffic checks.
func (c *ClassifierAPI) ReadyHandler(w http.ResponseWriter, req *http.Request) {
	if !requireMethod(w, req, http.MethodGet) {
		return
	}
	if !c.ready.Load() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not ready"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
