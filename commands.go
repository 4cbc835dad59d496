package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/hickeroar/naivebayes/bayes"
	"github.com/hickeroar/naivebayes/tokenizer"
)

const maxTrainingLineBytes = maxRequestBodyBytes

var (
	errMalformedLine = errors.New("expected category<TAB>text")
	errInvalidName   = errors.New("category must match " + categoryPathPattern.String())
	errOutputFormat  = errors.New("output must be json or yaml")
)

// loadModel opens the configured store and loads the classifier from it.
// The caller closes the returned store.
func loadModel(ctx context.Context, app *application) (*bayes.Classifier[string, string], modelStore, error) {
	store, err := openStore(ctx, app.cfg.Model)
	if err != nil {
		return nil, nil, err
	}

	classifier := bayes.NewClassifier[string, string](bayes.WithSmoothing(app.cfg.Classifier.Smoothing))
	if err := store.Load(ctx, classifier); err != nil {
		store.Close()
		return nil, nil, fmt.Errorf("load model: %w", err)
	}
	return classifier, store, nil
}

func newTrainCmd(app *application) *cobra.Command {
	var (
		categoryName string
		inputFile    string
	)

	cmd := &cobra.Command{
		Use:   "train [text...]",
		Short: "Train the model and save it",
		Long: `Train adds samples to the stored model.

With --category, the arguments (or stdin when there are none) form one sample.
Otherwise every non-empty input line is "category<TAB>text"; lines starting
with # are skipped. Input comes from --file or stdin.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			tok, err := tokenizer.New(app.cfg.Tokenizer)
			if err != nil {
				return err
			}
			classifier, store, err := loadModel(ctx, app)
			if err != nil {
				return err
			}
			defer store.Close()

			in := cmd.InOrStdin()
			if inputFile != "" {
				f, err := os.Open(inputFile)
				if err != nil {
					return fmt.Errorf("open input: %w", err)
				}
				defer f.Close()
				in = f
			}

			var trained int
			if categoryName != "" {
				text := strings.Join(args, " ")
				if len(args) == 0 {
					raw, err := io.ReadAll(in)
					if err != nil {
						return fmt.Errorf("read input: %w", err)
					}
					text = string(raw)
				}
				if err := trainSample(classifier, tok, categoryName, text); err != nil {
					return err
				}
				trained = 1
			} else {
				if len(args) > 0 {
					return errors.New("text arguments require --category")
				}
				if trained, err = trainLines(classifier, tok, in); err != nil {
					return err
				}
			}

			if err := store.Save(ctx, classifier); err != nil {
				return fmt.Errorf("save model: %w", err)
			}
			app.logger.Info("training complete", "samples", trained, "total", classifier.TotalSamples())
			_, err = fmt.Fprintf(app.out, "trained %d samples (%d total)\n", trained, classifier.TotalSamples())
			return err
		},
	}

	cmd.Flags().StringVarP(&categoryName, "category", "c", "", "train every argument as one sample of this category")
	cmd.Flags().StringVarP(&inputFile, "file", "f", "", "read training lines from this file instead of stdin")
	return cmd
}

func trainSample(classifier *bayes.Classifier[string, string], tok *tokenizer.Tokenizer, name, text string) error {
	if !categoryPathPattern.MatchString(name) {
		return fmt.Errorf("%w: %q", errInvalidName, name)
	}
	return classifier.Train(name, tok.Tokenize(text))
}

// trainLines reads category<TAB>text lines. It stops at the first bad line;
// samples before it stay trained.
func trainLines(classifier *bayes.Classifier[string, string], tok *tokenizer.Tokenizer, r io.Reader) (int, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxTrainingLineBytes)

	trained, lineNo := 0, 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimRight(scanner.Text(), "\r")
		if strings.TrimSpace(line) == "" || strings.HasPrefix(line, "#") {
			continue
		}

		name, text, ok := strings.Cut(line, "\t")
		if !ok {
			return trained, fmt.Errorf("line %d: %w", lineNo, errMalformedLine)
		}
		if err := trainSample(classifier, tok, strings.TrimSpace(name), text); err != nil {
			return trained, fmt.Errorf("line %d: %w", lineNo, err)
		}
		trained++
	}
	if err := scanner.Err(); err != nil {
		return trained, fmt.Errorf("read input: %w", err)
	}
	return trained, nil
}

func newClassifyCmd(app *application) *cobra.Command {
	var withScores bool

	cmd := &cobra.Command{
		Use:   "classify [text...]",
		Short: "Classify text with the stored model",
		Long:  `Classify prints the best category as JSON. Text comes from the arguments, or stdin when there are none.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			tok, err := tokenizer.New(app.cfg.Tokenizer)
			if err != nil {
				return err
			}
			classifier, store, err := loadModel(cmd.Context(), app)
			if err != nil {
				return err
			}
			defer store.Close()

			text := strings.Join(args, " ")
			if len(args) == 0 {
				raw, err := io.ReadAll(io.LimitReader(cmd.InOrStdin(), maxRequestBodyBytes))
				if err != nil {
					return fmt.Errorf("read input: %w", err)
				}
				text = string(raw)
			}

			features := tok.Tokenize(text)
			result, classified := classifier.Classify(features)
			response := NewClassifyResponse(result, classified)

			var payload any = response
			if withScores {
				payload = struct {
					*ClassifyResponse
					Scores map[string]float64
				}{response, classifier.Scores(features)}
			}

			encoder := json.NewEncoder(app.out)
			encoder.SetIndent("", "  ")
			return encoder.Encode(payload)
		},
	}

	cmd.Flags().BoolVar(&withScores, "scores", false, "include the probability of every category")
	return cmd
}

func newInfoCmd(app *application) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "info",
		Short: "Print a summary of the stored model",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if output != "json" && output != "yaml" {
				return fmt.Errorf("%w: %q", errOutputFormat, output)
			}

			classifier, store, err := loadModel(cmd.Context(), app)
			if err != nil {
				return err
			}
			defer store.Close()

			return writeInfo(app.out, NewInfoResponse(classifier), output)
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "json", "output format (json, yaml)")
	return cmd
}

func writeInfo(w io.Writer, info *InfoResponse, output string) error {
	if output == "yaml" {
		encoder := yaml.NewEncoder(w)
		encoder.SetIndent(2)
		if err := encoder.Encode(info); err != nil {
			return fmt.Errorf("encode yaml: %w", err)
		}
		return encoder.Close()
	}

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(info)
}
