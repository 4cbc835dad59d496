package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/hickeroar/naivebayes/bayes"
	"github.com/hickeroar/naivebayes/metrics"
	"github.com/hickeroar/naivebayes/tokenizer"
)

// assertJSONContentType verifies the response content type is JSON.
func assertJSONContentType(t *testing.T, rr *httptest.ResponseRecorder) {
	t.Helper()
	contentType := rr.Header().Get("Content-Type")
	if !strings.HasPrefix(contentType, "application/json") {
		t.Fatalf("expected application/json content type, got %q", contentType)
	}
}

// assertJSONErrorShape verifies a JSON error response payload shape.
func assertJSONErrorShape(t *testing.T, rr *httptest.ResponseRecorder) {
	t.Helper()
	assertJSONContentType(t, rr)
	var payload map[string]string
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("expected JSON error payload: %v", err)
	}
	if payload["error"] == "" {
		t.Fatalf("expected non-empty error field, got payload=%v", payload)
	}
}

// newTestServer creates a classifier API test server and mux.
func newTestServer() (*ClassifierAPI, *http.ServeMux) {
	tok, err := tokenizer.New(tokenizer.DefaultConfig())
	if err != nil {
		panic(err)
	}
	api := NewClassifierAPI(bayes.NewClassifier[string, string](), tok, metrics.New(), slog.New(slog.DiscardHandler))
	api.ready.Store(true)
	mux := http.NewServeMux()
	api.RegisterRoutes(mux)
	return api, mux
}

// newTestServerWithAuth creates an authenticated API test handler.
func newTestServerWithAuth(token string) (*ClassifierAPI, http.Handler) {
	api, mux := newTestServer()
	return api, withAuthorizationToken(mux, token)
}

func serve(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestClassifyMethodNotAllowed(t *testing.T) {
	_, mux := newTestServer()
	rr := serve(t, mux, http.MethodGet, "/classify", "")

	if rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("unexpected status: got %d, want %d", rr.Code, http.StatusMethodNotAllowed)
	}
	if allow := rr.Header().Get("Allow"); allow != http.MethodPost {
		t.Fatalf("unexpected Allow header: got %q, want %q", allow, http.MethodPost)
	}
	assertJSONErrorShape(t, rr)
}

func TestAuthorizationMiddlewareRejectsInvalidOrMissingToken(t *testing.T) {
	_, handler := newTestServerWithAuth("secret-token")

	tests := []struct {
		name   string
		header string
	}{
		{name: "missing header", header: ""},
		{name: "wrong scheme", header: "Basic secret-token"},
		{name: "missing bearer token", header: "Bearer"},
		{name: "empty bearer token", header: "Bearer "},
		{name: "wrong token", header: "Bearer wrong-token"},
		{name: "token prefix", header: "Bearer secret"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/info", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rr := httptest.NewRecorder()

			handler.ServeHTTP(rr, req)

			if rr.Code != http.StatusUnauthorized {
				t.Fatalf("unexpected status: got %d, want %d", rr.Code, http.StatusUnauthorized)
			}
			if got := rr.Header().Get("WWW-Authenticate"); got != `Bearer realm="naivebayes"` {
				t.Fatalf("unexpected WWW-Authenticate header: got %q", got)
			}
			assertJSONErrorShape(t, rr)
		})
	}
}

func TestAuthorizationMiddlewareAllowsProtectedEndpointWithValidToken(t *testing.T) {
	_, handler := newTestServerWithAuth("secret-token")
	req := httptest.NewRequest(http.MethodGet, "/info", nil)
	req.Header.Set("Authorization", "Bearer secret-token")
	rr := httptest.NewRecorder()

	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("unexpected status: got %d, want %d", rr.Code, http.StatusOK)
	}
	assertJSONContentType(t, rr)
}

func TestAuthorizationMiddlewareBypassesProbesAndMetrics(t *testing.T) {
	_, handler := newTestServerWithAuth("secret-token")

	for _, path := range []string{"/healthz", "/readyz", "/metrics"} {
		rr := serve(t, handler, http.MethodGet, path, "")
		if rr.Code != http.StatusOK {
			t.Fatalf("unexpected status for %s: got %d, want %d", path, rr.Code, http.StatusOK)
		}
	}
}

func TestAuthorizationDisabledWithEmptyToken(t *testing.T) {
	_, mux := newTestServer()
	if got := withAuthorizationToken(mux, ""); got != http.Handler(mux) {
		t.Fatal("expected empty token to return the handler unchanged")
	}
}

func TestTrainInfoResetLifecycle(t *testing.T) {
	_, mux := newTestServer()

	trainRR := serve(t, mux, http.MethodPost, "/train/spam", "buy now")
	if trainRR.Code != http.StatusOK {
		t.Fatalf("unexpected train status: got %d, want %d", trainRR.Code, http.StatusOK)
	}

	infoRR := serve(t, mux, http.MethodGet, "/info", "")
	if infoRR.Code != http.StatusOK {
		t.Fatalf("unexpected info status: got %d, want %d", infoRR.Code, http.StatusOK)
	}

	var infoResp struct {
		Categories     map[string]struct{ Samples, Tally, Distinct int }
		TotalSamples   int
		VocabularySize int
	}
	if err := json.Unmarshal(infoRR.Body.Bytes(), &infoResp); err != nil {
		t.Fatalf("failed to unmarshal info response: %v", err)
	}
	spam, ok := infoResp.Categories["spam"]
	if !ok {
		t.Fatal("expected spam category in info response")
	}
	if spam.Samples != 1 || spam.Tally != 2 || spam.Distinct != 2 {
		t.Fatalf("unexpected spam summary: %+v", spam)
	}
	if infoResp.TotalSamples != 1 || infoResp.VocabularySize != 2 {
		t.Fatalf("unexpected totals: samples=%d vocabulary=%d", infoResp.TotalSamples, infoResp.VocabularySize)
	}

	resetRR := serve(t, mux, http.MethodPost, "/reset", "")
	if resetRR.Code != http.StatusOK {
		t.Fatalf("unexpected reset status: got %d, want %d", resetRR.Code, http.StatusOK)
	}

	var resetResp struct {
		Success    bool
		Categories map[string]json.RawMessage
	}
	if err := json.Unmarshal(resetRR.Body.Bytes(), &resetResp); err != nil {
		t.Fatalf("failed to unmarshal reset response: %v", err)
	}
	if !resetResp.Success {
		t.Fatal("expected reset success=true")
	}
	if len(resetResp.Categories) != 0 {
		t.Fatalf("expected no categories after reset, got %d", len(resetResp.Categories))
	}
}

func TestClassifyAndScoreHandlers(t *testing.T) {
	_, mux := newTestServer()
	serve(t, mux, http.MethodPost, "/train/spam", "buy cheap pills now")
	serve(t, mux, http.MethodPost, "/train/ham", "team meeting schedule tomorrow")

	classifyRR := serve(t, mux, http.MethodPost, "/classify", "cheap pills")
	if classifyRR.Code != http.StatusOK {
		t.Fatalf("unexpected classify status: got %d, want %d", classifyRR.Code, http.StatusOK)
	}
	var result ClassifyResponse
	if err := json.Unmarshal(classifyRR.Body.Bytes(), &result); err != nil {
		t.Fatalf("failed to unmarshal classify response: %v", err)
	}
	if !result.Classified || result.Category != "spam" {
		t.Fatalf("unexpected classification: %+v", result)
	}
	if result.Probability <= 0.5 || result.Probability > 1 {
		t.Fatalf("unexpected probability: %f", result.Probability)
	}

	scoreRR := serve(t, mux, http.MethodPost, "/score", "cheap pills")
	var scores map[string]float64
	if err := json.Unmarshal(scoreRR.Body.Bytes(), &scores); err != nil {
		t.Fatalf("failed to unmarshal score response: %v", err)
	}
	if scores["spam"] <= scores["ham"] {
		t.Fatalf("expected spam score > ham score, got %v", scores)
	}
	if sum := scores["spam"] + scores["ham"]; math.Abs(sum-1) > 1e-9 {
		t.Fatalf("expected scores to sum to 1, got %f", sum)
	}
}

func TestClassifyUntrainedReturnsNotClassified(t *testing.T) {
	_, mux := newTestServer()
	rr := serve(t, mux, http.MethodPost, "/classify", "anything at all")

	if rr.Code != http.StatusOK {
		t.Fatalf("unexpected status: got %d, want %d", rr.Code, http.StatusOK)
	}
	var result ClassifyResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &result); err != nil {
		t.Fatalf("failed to unmarshal classify response: %v", err)
	}
	if result.Classified || result.Category != "" {
		t.Fatalf("expected unclassified result, got %+v", result)
	}

	scoreRR := serve(t, mux, http.MethodPost, "/score", "anything")
	if body := strings.TrimSpace(scoreRR.Body.String()); body != "{}" {
		t.Fatalf("expected empty scores, got %s", body)
	}
}

func TestHandlersRecordMetrics(t *testing.T) {
	api, mux := newTestServer()
	serve(t, mux, http.MethodPost, "/train/spam", "buy now")
	serve(t, mux, http.MethodPost, "/train/spam", "cheap pills")
	serve(t, mux, http.MethodPost, "/classify", "buy pills")

	if got := testutil.ToFloat64(api.metrics.TrainSamples.WithLabelValues("spam")); got != 2 {
		t.Fatalf("unexpected train counter: got %f, want 2", got)
	}
	if got := testutil.ToFloat64(api.metrics.Classifications.WithLabelValues("spam")); got != 1 {
		t.Fatalf("unexpected classification counter: got %f, want 1", got)
	}
	if got := testutil.ToFloat64(api.metrics.Categories); got != 1 {
		t.Fatalf("unexpected categories gauge: got %f, want 1", got)
	}
	if got := testutil.ToFloat64(api.metrics.Vocabulary); got != 4 {
		t.Fatalf("unexpected vocabulary gauge: got %f, want 4", got)
	}

	serve(t, mux, http.MethodPost, "/reset", "")
	if got := testutil.ToFloat64(api.metrics.Vocabulary); got != 0 {
		t.Fatalf("expected vocabulary gauge to reset, got %f", got)
	}

	rr := serve(t, mux, http.MethodGet, "/metrics", "")
	if !strings.Contains(rr.Body.String(), `naivebayes_http_request_duration_seconds_count{handler="train"} 2`) {
		t.Fatalf("expected train latency samples in metrics output")
	}
}

func TestInvalidCategoryRoute(t *testing.T) {
	_, mux := newTestServer()

	for _, path := range []string{"/train/spam!", "/train/", "/train/a/b"} {
		rr := serve(t, mux, http.MethodPost, path, "text")
		if rr.Code != http.StatusNotFound {
			t.Fatalf("unexpected status for %s: got %d, want %d", path, rr.Code, http.StatusNotFound)
		}
		assertJSONErrorShape(t, rr)
	}
}

func TestBadBodyRejected(t *testing.T) {
	_, mux := newTestServer()

	for _, path := range []string{"/train/spam", "/classify", "/score"} {
		req := httptest.NewRequest(http.MethodPost, path, nil)
		req.Body = io.NopCloser(errReader{})
		rr := httptest.NewRecorder()
		mux.ServeHTTP(rr, req)
		if rr.Code != http.StatusBadRequest {
			t.Fatalf("unexpected status for %s: got %d, want %d", path, rr.Code, http.StatusBadRequest)
		}
		assertJSONErrorShape(t, rr)
	}
}

func TestHealthHandlerMethodNotAllowed(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/healthz", nil)
	rr := httptest.NewRecorder()
	HealthHandler(rr, req)
	if rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("unexpected status: got %d, want %d", rr.Code, http.StatusMethodNotAllowed)
	}
	assertJSONErrorShape(t, rr)
}

func TestReadyHandlerMethodNotAllowed(t *testing.T) {
	api, _ := newTestServer()
	req := httptest.NewRequest(http.MethodPost, "/readyz", nil)
	rr := httptest.NewRecorder()
	api.ReadyHandler(rr, req)
	if rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("unexpected status: got %d, want %d", rr.Code, http.StatusMethodNotAllowed)
	}
	assertJSONErrorShape(t, rr)
}

type errReader struct{}

// Read returns a deterministic read failure for body-read error tests.
func (errReader) Read([]byte) (int, error) {
	return 0, errors.New("read failed")
}

type failWriteRecorder struct {
	header http.Header
	status int
}

func (f *failWriteRecorder) Header() http.Header {
	return f.header
}

func (f *failWriteRecorder) WriteHeader(statusCode int) {
	f.status = statusCode
}

func (f *failWriteRecorder) Write([]byte) (int, error) {
	return 0, errors.New("write failed")
}

func TestWriteJSONMarshalAndWriteErrors(t *testing.T) {
	rr := httptest.NewRecorder()
	writeJSON(rr, http.StatusOK, map[string]any{"bad": func() {}})
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected internal server error for marshal failure, got %d", rr.Code)
	}

	failing := &failWriteRecorder{header: make(http.Header)}
	writeJSON(failing, http.StatusOK, map[string]string{"ok": "ok"})
	if failing.status != http.StatusOK {
		t.Fatalf("expected status to be set before write failure, got %d", failing.status)
	}
}

func TestOversizedBodyRejected(t *testing.T) {
	_, mux := newTestServer()
	oversized := bytes.Repeat([]byte("a"), maxRequestBodyBytes+1)
	req := httptest.NewRequest(http.MethodPost, "/classify", bytes.NewReader(oversized))
	rr := httptest.NewRecorder()

	mux.ServeHTTP(rr, req)

	if rr.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("unexpected status: got %d, want %d", rr.Code, http.StatusRequestEntityTooLarge)
	}
	assertJSONErrorShape(t, rr)
}

func TestReadyEndpointNotReady(t *testing.T) {
	api, mux := newTestServer()
	api.ready.Store(false)

	rr := serve(t, mux, http.MethodGet, "/readyz", "")

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("unexpected status for /readyz: got %d, want %d", rr.Code, http.StatusServiceUnavailable)
	}
	assertJSONContentType(t, rr)
}

func TestRoutesWithoutMetrics(t *testing.T) {
	tok, err := tokenizer.New(tokenizer.DefaultConfig())
	if err != nil {
		t.Fatalf("unexpected tokenizer error: %v", err)
	}
	api := NewClassifierAPI(bayes.NewClassifier[string, string](), tok, nil, nil)
	mux := http.NewServeMux()
	api.RegisterRoutes(mux)

	if rr := serve(t, mux, http.MethodPost, "/train/spam", "buy now"); rr.Code != http.StatusOK {
		t.Fatalf("unexpected train status: got %d, want %d", rr.Code, http.StatusOK)
	}
	if rr := serve(t, mux, http.MethodGet, "/metrics", ""); rr.Code != http.StatusNotFound {
		t.Fatalf("expected /metrics to be absent, got %d", rr.Code)
	}
}

func TestConcurrentRequests(t *testing.T) {
	_, mux := newTestServer()

	var wg sync.WaitGroup
	for i := 0; i < 30; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			if rr := serve(t, mux, http.MethodPost, "/train/spam", "buy now buy now"); rr.Code != http.StatusOK {
				t.Errorf("unexpected train status: got %d", rr.Code)
			}
			if rr := serve(t, mux, http.MethodPost, "/classify", "buy now"); rr.Code != http.StatusOK {
				t.Errorf("unexpected classify status: got %d", rr.Code)
			}
			if rr := serve(t, mux, http.MethodPost, "/score", "buy now"); rr.Code != http.StatusOK {
				t.Errorf("unexpected score status: got %d", rr.Code)
			}
		}()
	}
	wg.Wait()
}

func TestAPIContractMatrix(t *testing.T) {
	type testCase struct {
		name        string
		method      string
		path        string
		body        []byte
		status      int
		allowHeader string
		expectError bool
	}

	oversized := bytes.Repeat([]byte("a"), maxRequestBodyBytes+1)
	tests := []testCase{
		{name: "info get ok", method: http.MethodGet, path: "/info", status: http.StatusOK},
		{name: "info wrong method", method: http.MethodPost, path: "/info", status: http.StatusMethodNotAllowed, allowHeader: http.MethodGet, expectError: true},
		{name: "train accepts broadened category", method: http.MethodPost, path: "/train/spam_v2", body: []byte("buy now"), status: http.StatusOK},
		{name: "train accepts empty body", method: http.MethodPost, path: "/train/spam", status: http.StatusOK},
		{name: "train rejects invalid category", method: http.MethodPost, path: "/train/spam!", body: []byte("buy now"), status: http.StatusNotFound, expectError: true},
		{name: "train wrong method", method: http.MethodGet, path: "/train/spam", status: http.StatusMethodNotAllowed, allowHeader: http.MethodPost, expectError: true},
		{name: "classify wrong method", method: http.MethodGet, path: "/classify", status: http.StatusMethodNotAllowed, allowHeader: http.MethodPost, expectError: true},
		{name: "classify oversized body", method: http.MethodPost, path: "/classify", body: oversized, status: http.StatusRequestEntityTooLarge, expectError: true},
		{name: "score wrong method", method: http.MethodGet, path: "/score", status: http.StatusMethodNotAllowed, allowHeader: http.MethodPost, expectError: true},
		{name: "reset wrong method", method: http.MethodGet, path: "/reset", status: http.StatusMethodNotAllowed, allowHeader: http.MethodPost, expectError: true},
		{name: "healthz get ok", method: http.MethodGet, path: "/healthz", status: http.StatusOK},
		{name: "readyz get ok", method: http.MethodGet, path: "/readyz", status: http.StatusOK},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, mux := newTestServer()
			req := httptest.NewRequest(tc.method, tc.path, bytes.NewReader(tc.body))
			rr := httptest.NewRecorder()
			mux.ServeHTTP(rr, req)

			if rr.Code != tc.status {
				t.Fatalf("unexpected status: got %d want %d", rr.Code, tc.status)
			}

			assertJSONContentType(t, rr)

			if tc.allowHeader != "" {
				if allow := rr.Header().Get("Allow"); allow != tc.allowHeader {
					t.Fatalf("unexpected Allow header: got %q want %q", allow, tc.allowHeader)
				}
			}
			if tc.expectError {
				assertJSONErrorShape(t, rr)
			}
		})
	}
}
