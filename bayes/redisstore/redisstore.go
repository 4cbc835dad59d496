// Package redisstore keeps a string classifier's counting tables in Redis
// hashes so several processes can share one trained model.
//
// Layout, for prefix p:
//
//	p:categories        hash  category -> sample count
//	p:category:<name>   hash  feature  -> count in that category
//	p:features          hash  feature  -> count across all categories
package redisstore

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/hickeroar/naivebayes/bayes"
	"github.com/hickeroar/naivebayes/bayes/category"
)

// DefaultPrefix is used when no key prefix is configured.
const DefaultPrefix = "naivebayes"

const maxSaveAttempts = 5

var errInvalidCount = errors.New("invalid stored count")

// Store saves and loads classifier state in Redis.
type Store struct {
	client redis.UniversalClient
	prefix string
}

// New parses url, connects and verifies the connection with a ping.
func New(ctx context.Context, url, prefix string) (*Store, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}

	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	return NewFromClient(client, prefix), nil
}

// NewFromClient wraps an existing client.
func NewFromClient(client redis.UniversalClient, prefix string) *Store {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Store{client: client, prefix: prefix}
}

// Prefix returns the key prefix in use.
func (s *Store) Prefix() string {
	return s.prefix
}

// Close releases the client connection.
func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) categoriesKey() string {
	return s.prefix + ":categories"
}

func (s *Store) categoryKey(name string) string {
	return s.prefix + ":category:" + name
}

func (s *Store) featuresKey() string {
	return s.prefix + ":features"
}

// Save replaces the stored model with the classifier's current state. The
// category list is watched, so a concurrent save aborts and retries instead
// of leaving rows the other writer listed.
func (s *Store) Save(ctx context.Context, classifier *bayes.Classifier[string, string]) error {
	state := classifier.State()

	save := func(tx *redis.Tx) error {
		previous, err := tx.HKeys(ctx, s.categoriesKey()).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return fmt.Errorf("list stored categories: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, s.replacedKeys(previous, state)...)

			if len(state.Categories) > 0 {
				samples := make(map[string]any, len(state.Categories))
				for name, cat := range state.Categories {
					samples[name] = cat.Samples
					if len(cat.Features) > 0 {
						pipe.HSet(ctx, s.categoryKey(name), toHash(cat.Features))
					}
				}
				pipe.HSet(ctx, s.categoriesKey(), samples)
			}
			if len(state.Features) > 0 {
				pipe.HSet(ctx, s.featuresKey(), toHash(state.Features))
			}
			return nil
		})
		return err
	}

	var err error
	for range maxSaveAttempts {
		err = s.client.Watch(ctx, save, s.categoriesKey())
		if !errors.Is(err, redis.TxFailedErr) {
			break
		}
	}
	if err != nil {
		return fmt.Errorf("save model: %w", err)
	}
	return nil
}

// replacedKeys lists every key a save overwrites: the two global hashes, the
// rows of previously stored categories and the rows about to be written.
func (s *Store) replacedKeys(previous []string, state bayes.State[string, string]) []string {
	keys := make([]string, 0, len(previous)+len(state.Categories)+2)
	keys = append(keys, s.categoriesKey(), s.featuresKey())

	seen := make(map[string]bool, len(previous))
	for _, name := range previous {
		seen[name] = true
		keys = append(keys, s.categoryKey(name))
	}
	for _, name := range slices.Sorted(maps.Keys(state.Categories)) {
		if !seen[name] {
			keys = append(keys, s.categoryKey(name))
		}
	}
	return keys
}

// Load reads the stored model and replaces the classifier's state. An empty
// store yields an untrained classifier.
func (s *Store) Load(ctx context.Context, classifier *bayes.Classifier[string, string]) error {
	samples, err := s.client.HGetAll(ctx, s.categoriesKey()).Result()
	if err != nil {
		return fmt.Errorf("read categories: %w", err)
	}

	names := make([]string, 0, len(samples))
	pipe := s.client.Pipeline()
	featureCmds := make(map[string]*redis.MapStringStringCmd, len(samples))
	for name := range samples {
		names = append(names, name)
		featureCmds[name] = pipe.HGetAll(ctx, s.categoryKey(name))
	}
	globalCmd := pipe.HGetAll(ctx, s.featuresKey())
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("read feature tables: %w", err)
	}

	state := bayes.State[string, string]{
		Categories: make(map[string]category.PersistedCategory[string], len(names)),
	}
	for _, name := range names {
		n, err := parseCount(samples[name])
		if err != nil {
			return fmt.Errorf("category %q samples: %w", name, err)
		}
		features, tally, err := fromHash(featureCmds[name].Val())
		if err != nil {
			return fmt.Errorf("category %q: %w", name, err)
		}
		state.Categories[name] = category.PersistedCategory[string]{
			Samples:  n,
			Tally:    tally,
			Features: features,
		}
	}

	global, _, err := fromHash(globalCmd.Val())
	if err != nil {
		return fmt.Errorf("global features: %w", err)
	}
	state.Features = global

	return classifier.Restore(state)
}

// Clear removes every key the store owns.
func (s *Store) Clear(ctx context.Context) error {
	previous, err := s.client.HKeys(ctx, s.categoriesKey()).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("list stored categories: %w", err)
	}

	keys := []string{s.categoriesKey(), s.featuresKey()}
	for _, name := range previous {
		keys = append(keys, s.categoryKey(name))
	}
	if err := s.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("clear model: %w", err)
	}
	return nil
}

func toHash(counts map[string]int) map[string]any {
	out := make(map[string]any, len(counts))
	for k, v := range counts {
		out[k] = v
	}
	return out
}

func fromHash(raw map[string]string) (map[string]int, int, error) {
	out := make(map[string]int, len(raw))
	total := 0
	for k, v := range raw {
		n, err := parseCount(v)
		if err != nil {
			return nil, 0, fmt.Errorf("feature %q: %w", k, err)
		}
		out[k] = n
		total += n
	}
	return out, total, nil
}

func parseCount(raw string) (int, error) {
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%w: %q", errInvalidCount, raw)
	}
	return n, nil
}
