package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/hickeroar/naivebayes/bayes"
	"github.com/hickeroar/naivebayes/bayes/redisstore"
	"github.com/hickeroar/naivebayes/config"
)

const storeConnectTimeout = 5 * time.Second

// modelStore loads and saves the classifier between runs.
type modelStore interface {
	Load(ctx context.Context, classifier *bayes.Classifier[string, string]) error
	Save(ctx context.Context, classifier *bayes.Classifier[string, string]) error
	Close() error
}

// fileStore keeps the model in a gob file. A missing file loads as an
// untrained model.
type fileStore struct {
	path string
}

func (s *fileStore) Load(_ context.Context, classifier *bayes.Classifier[string, string]) error {
	err := classifier.LoadFromFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

func (s *fileStore) Save(_ context.Context, classifier *bayes.Classifier[string, string]) error {
	return classifier.SaveToFile(s.path)
}

func (s *fileStore) Close() error {
	return nil
}

func (s *fileStore) String() string {
	return "file:" + s.path
}

// openStore picks redis when a URL is configured and the gob file otherwise.
var openStore = func(ctx context.Context, cfg config.ModelConfig) (modelStore, error) {
	if cfg.RedisURL == "" {
		return &fileStore{path: cfg.Path}, nil
	}

	ctx, cancel := context.WithTimeout(ctx, storeConnectTimeout)
	defer cancel()

	store, err := redisstore.New(ctx, cfg.RedisURL, cfg.RedisPrefix)
	if err != nil {
		return nil, fmt.Errorf("open redis store: %w", err)
	}
	return store, nil
}
