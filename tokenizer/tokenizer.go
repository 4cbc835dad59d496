// Package tokenizer turns free text into classifier features.
package tokenizer

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/kljensen/snowball"
	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const bigramSeparator = "|"

var errInvalidLengths = errors.New("invalid token length bounds")

// Config controls how text is split and normalized.
type Config struct {
	Language  string `mapstructure:"language"`   // snowball stemmer language
	Stem      bool   `mapstructure:"stem"`       // apply stemming
	MinLength int    `mapstructure:"min_length"` // minimum token length in runes
	MaxLength int    `mapstructure:"max_length"` // maximum token length in runes, 0 for no limit
	Bigrams   bool   `mapstructure:"bigrams"`    // also emit adjacent token pairs
}

// DefaultConfig returns the tokenizer settings used when none are given.
func DefaultConfig() Config {
	return Config{
		Language:  "english",
		Stem:      true,
		MinLength: 2,
		MaxLength: 64,
	}
}

// Tokenizer splits text into normalized tokens. It is safe for concurrent use.
type Tokenizer struct {
	cfg Config
}

// New validates cfg and returns a Tokenizer.
func New(cfg Config) (*Tokenizer, error) {
	if cfg.MinLength < 0 || cfg.MaxLength < 0 || (cfg.MaxLength > 0 && cfg.MinLength > cfg.MaxLength) {
		return nil, fmt.Errorf("%w: min=%d max=%d", errInvalidLengths, cfg.MinLength, cfg.MaxLength)
	}
	if cfg.Stem {
		if _, err := snowball.Stem("test", cfg.Language, true); err != nil {
			return nil, fmt.Errorf("stemmer: %w", err)
		}
	}
	return &Tokenizer{cfg: cfg}, nil
}

// Config returns the settings in use.
func (t *Tokenizer) Config() Config {
	return t.cfg
}

// Tokenize folds case, strips diacritics, splits on anything that is not a
// letter or digit and optionally stems. The result keeps input order and
// repeats.
func (t *Tokenizer) Tokenize(text string) []string {
	// transformers and casers carry state, so they are built per call
	stripMarks := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	normalized, _, err := transform.String(stripMarks, text)
	if err != nil {
		normalized = text
	}
	normalized = cases.Fold().String(normalized)

	words := strings.FieldsFunc(normalized, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})

	tokens := make([]string, 0, len(words))
	for _, word := range words {
		n := utf8.RuneCountInString(word)
		if n < t.cfg.MinLength || (t.cfg.MaxLength > 0 && n > t.cfg.MaxLength) {
			continue
		}
		tokens = append(tokens, t.stem(word))
	}

	if !t.cfg.Bigrams || len(tokens) < 2 {
		return tokens
	}
	unigrams := len(tokens)
	for i := 0; i+1 < unigrams; i++ {
		tokens = append(tokens, tokens[i]+bigramSeparator+tokens[i+1])
	}
	return tokens
}

func (t *Tokenizer) stem(word string) string {
	if !t.cfg.Stem {
		return word
	}
	stemmed, err := snowball.Stem(word, t.cfg.Language, true)
	if err != nil || stemmed == "" {
		return word
	}
	return stemmed
}
