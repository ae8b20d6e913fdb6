package main

import (
	"strings"

	"github.com/gaoyiyeah/end2end/ctc"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/unixpickle/essentials"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// defaultAlphabet is the label table used when none is
// configured: a blank followed by a space, an apostrophe,
// and the lowercase letters.
const defaultAlphabet = "_ 'abcdefghijklmnopqrstuvwxyz"

// app holds the state shared by the commands of one
// invocation.
type app struct {
	v      *viper.Viper
	logger *zap.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{v: viper.New(), logger: zap.NewNop()}

	rootCmd := &cobra.Command{
		Use:           "end2end",
		Short:         "CTC loss and decoding tools",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			_ = a.logger.Sync()
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.String("config", "", "YAML config file")
	flags.String("log-level", "warn", "log level (debug, info, warn, error)")
	a.mustBindPFlag("config", flags.Lookup("config"))
	a.mustBindPFlag("log.level", flags.Lookup("log-level"))

	rootCmd.AddCommand(
		a.newDecodeCmd(),
		a.newLossCmd(),
		a.newScoreCmd(),
		a.newCompileCmd(),
	)
	return rootCmd
}

func (a *app) setup() error {
	a.v.SetEnvPrefix("END2END")
	a.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	a.v.AutomaticEnv()

	if path := a.v.GetString("config"); path != "" {
		a.v.SetConfigFile(path)
		if err := a.v.ReadInConfig(); err != nil {
			return essentials.AddCtx("read config", err)
		}
	}

	logger, err := newLogger(a.v.GetString("log.level"))
	if err != nil {
		return err
	}
	a.logger = logger
	return nil
}

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, essentials.AddCtx("create logger", err)
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.Encoding = "console"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, err := cfg.Build()
	if err != nil {
		return nil, essentials.AddCtx("create logger", err)
	}
	return logger, nil
}

func (a *app) mustBindPFlag(key string, flag *pflag.Flag) {
	if err := a.v.BindPFlag(key, flag); err != nil {
		panic(err)
	}
}

// addDecoderFlags registers the flags that configure a
// ctc.Decoder.
func addDecoderFlags(cmd *cobra.Command) {
	defaults := ctc.DefaultConfig()
	flags := cmd.Flags()
	flags.String("lm", "", "ARPA or compiled language model")
	flags.Int("beam-width", defaults.BeamWidth, "hypotheses kept per timestep")
	flags.Float64("lm-weight", defaults.LMWeight, "language model weight")
	flags.Float64("oov-score", defaults.OOVScore, "score of out-of-vocabulary words")
	flags.Bool("case-sensitive", false, "do not lower-case words for the language model")
	flags.String("alphabet", defaultAlphabet, "one label per character, used when no labels are configured")
	flags.Int("blank", defaults.Blank, "index of the blank label")
}

// bindDecoderFlags binds the decoder flags of the running
// command into viper.
// Several commands share the keys, so binding happens
// when a command runs rather than when it is created.
func (a *app) bindDecoderFlags(cmd *cobra.Command) {
	flags := cmd.Flags()
	a.mustBindPFlag("decoder.lm_path", flags.Lookup("lm"))
	a.mustBindPFlag("decoder.beam_width", flags.Lookup("beam-width"))
	a.mustBindPFlag("decoder.lm_weight", flags.Lookup("lm-weight"))
	a.mustBindPFlag("decoder.oov_score", flags.Lookup("oov-score"))
	a.mustBindPFlag("decoder.case_sensitive", flags.Lookup("case-sensitive"))
	a.mustBindPFlag("decoder.blank", flags.Lookup("blank"))
	a.mustBindPFlag("alphabet", flags.Lookup("alphabet"))
}

// decoderConfig assembles a ctc.Config from the defaults,
// the config file, the environment, and flags.
func (a *app) decoderConfig(cmd *cobra.Command) (ctc.Config, error) {
	a.bindDecoderFlags(cmd)
	settings := struct {
		Decoder ctc.Config `mapstructure:"decoder"`
	}{Decoder: ctc.DefaultConfig()}
	if err := a.v.Unmarshal(&settings); err != nil {
		return settings.Decoder, essentials.AddCtx("decoder config", err)
	}
	cfg := settings.Decoder
	if len(cfg.Labels) == 0 {
		cfg.Labels = splitAlphabet(a.v.GetString("alphabet"))
	}
	return cfg, nil
}

func (a *app) newDecoder(cmd *cobra.Command) (*ctc.Decoder, error) {
	cfg, err := a.decoderConfig(cmd)
	if err != nil {
		return nil, err
	}
	a.logger.Debug("creating decoder",
		zap.Int("beam_width", cfg.BeamWidth),
		zap.Int("labels", len(cfg.Labels)),
		zap.String("lm_path", cfg.LMPath),
		zap.Float64("lm_weight", cfg.LMWeight))
	return ctc.NewDecoder(cfg)
}

func splitAlphabet(alphabet string) []string {
	var res []string
	for _, r := range alphabet {
		res = append(res, string(r))
	}
	return res
}
