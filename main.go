// Command naivebayes trains and serves a multinomial Naive Bayes text
// classifier.
package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/hickeroar/naivebayes/config"
	"github.com/hickeroar/naivebayes/logging"
)

var (
	logFatal = func(v ...any) {
		slog.Error("fatal", "error", fmt.Sprint(v...))
		os.Exit(1)
	}
	runMain = func() error {
		return newRootCmd().Execute()
	}
)

// application is the state shared by every subcommand once configuration
// has been loaded.
type application struct {
	viper  *viper.Viper
	cfg    *config.Config
	logger *slog.Logger
	out    io.Writer
}

var flagBindings = map[string]string{
	"logging.level":        "log-level",
	"logging.format":       "log-format",
	"logging.file":         "log-file",
	"model.path":           "model-path",
	"model.redis_url":      "redis-url",
	"model.redis_prefix":   "redis-prefix",
	"classifier.smoothing": "smoothing",
	"tokenizer.language":   "language",
	"tokenizer.stem":       "stem",
	"tokenizer.bigrams":    "bigrams",
}

func newRootCmd() *cobra.Command {
	app := &application{viper: config.New()}
	var cfgFile string

	cmd := &cobra.Command{
		Use:           "naivebayes",
		Short:         "Naive Bayes text classifier",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(app.viper, cfgFile)
			if err != nil {
				return err
			}

			logger, err := logging.New(cfg.Logging)
			if err != nil {
				return fmt.Errorf("failed to setup logging: %w", err)
			}
			slog.SetDefault(logger)

			app.cfg = cfg
			app.logger = logger
			app.out = cmd.OutOrStdout()
			return nil
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default: ./naivebayes.yaml or $HOME/.config/naivebayes/naivebayes.yaml)")
	flags.String("log-level", "info", "log level (debug, info, warn, error)")
	flags.String("log-format", "console", "log format (console, json)")
	flags.String("log-file", "", "write logs to this file with rotation instead of stderr")
	flags.String("model-path", "", "absolute path of the gob model file")
	flags.String("redis-url", "", "keep the model in redis instead of a file (redis://host:port/db)")
	flags.String("redis-prefix", "naivebayes", "key prefix for the redis model")
	flags.Float64("smoothing", 1, "additive smoothing constant")
	flags.String("language", "english", "stemmer language")
	flags.Bool("stem", true, "stem tokens")
	flags.Bool("bigrams", false, "add adjacent token pairs as features")

	for key, name := range flagBindings {
		_ = app.viper.BindPFlag(key, flags.Lookup(name))
	}

	cmd.AddCommand(
		newServeCmd(app),
		newTrainCmd(app),
		newClassifyCmd(app),
		newInfoCmd(app),
	)
	return cmd
}

func main() {
	if err := runMain(); err != nil {
		logFatal(err)
	}
}
