// Package cli implements the speecheval command tree.
package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"speech-eval-toolkit/internal/config"
)

// Exit codes returned by Execute.
const (
	ExitOK      = 0
	ExitFailure = 1
	ExitUsage   = 2
)

type usageError struct{ err error }

func (e usageError) Error() string { return e.err.Error() }
func (e usageError) Unwrap() error { return e.err }

// app is shared by every command of one invocation.
type app struct {
	v       *viper.Viper
	cfg     *config.Config
	cfgFile string
}

const viperAnnotation = "viper:"

// bindFlag maps a flag of cmd onto a configuration key. Bindings are applied
// only for the command being run, so several commands may bind the same key.
func bindFlag(cmd *cobra.Command, flag, key string) {
	if cmd.Annotations == nil {
		cmd.Annotations = map[string]string{}
	}
	cmd.Annotations[viperAnnotation+flag] = key
}

func (a *app) load(cmd *cobra.Command) error {
	for k, key := range cmd.Annotations {
		flag, ok := strings.CutPrefix(k, viperAnnotation)
		if !ok {
			continue
		}
		f := cmd.Flags().Lookup(flag)
		if f == nil {
			return fmt.Errorf("flag --%s is not defined", flag)
		}
		if err := a.v.BindPFlag(key, f); err != nil {
			return err
		}
	}
	if f := cmd.Flags().Lookup("log-level"); f != nil {
		if err := a.v.BindPFlag("log.level", f); err != nil {
			return err
		}
	}
	cfg, err := config.Load(a.v, a.cfgFile)
	if err != nil {
		return err
	}
	if err := config.SetupLogging(cfg.Log.Level, cmd.ErrOrStderr()); err != nil {
		return usageError{fmt.Errorf("invalid log level %q: %w", cfg.Log.Level, err)}
	}
	a.cfg = cfg
	return nil
}

// NewRootCommand builds the full command tree.
func NewRootCommand() *cobra.Command {
	a := &app{v: viper.New()}
	root := &cobra.Command{
		Use:           "speecheval",
		Short:         "Speech-to-text evaluation toolkit",
		Long:          "speecheval runs ASR engines over audio datasets, scores them with WER, CER and DER, and captures live audio for realtime transcription.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.load(cmd)
		},
	}
	root.PersistentFlags().StringVar(&a.cfgFile, "config", "", "config file (default ./speecheval.yaml)")
	root.PersistentFlags().String("log-level", "info", "log level: debug, info, warn, error")
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return usageError{err}
	})

	root.AddCommand(
		newDatasetCommand(a),
		newConvertCommand(a),
		newEvaluateCommand(a),
		newBatchCommand(a),
		newAverageCommand(a),
		newTranscribeCommand(a),
		newDERCommand(a),
		newDiarizeCommand(a),
		newRealtimeCommand(a),
		newListenCommand(a),
		newRecordCommand(a),
		newSummarizeCommand(a),
		newServeCommand(a),
	)
	return root
}

// Execute runs the command line and returns the process exit code. SIGINT
// and SIGTERM cancel the command's context.
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return run(ctx, NewRootCommand(), os.Args[1:])
}

func run(ctx context.Context, root *cobra.Command, args []string) int {
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	switch {
	case err == nil:
		return ExitOK
	case isUsageError(err):
		fmt.Fprintln(root.ErrOrStderr(), "Error:", err)
		fmt.Fprintln(root.ErrOrStderr(), "Run 'speecheval --help' for usage.")
		return ExitUsage
	default:
		log.Error().Err(err).Msg("Command failed")
		return ExitFailure
	}
}

func isUsageError(err error) bool {
	var ue usageError
	if errors.As(err, &ue) {
		return true
	}
	msg := err.Error()
	return strings.HasPrefix(msg, "unknown command") ||
		strings.HasPrefix(msg, "required flag") ||
		strings.Contains(msg, "arg(s)")
}

// requireFlags rejects empty string flags with a usage error. Flags marked
// with cobra's MarkFlagRequired are reported the same way.
func requireFlags(fs *pflag.FlagSet, names ...string) error {
	var missing []string
	for _, n := range names {
		if f := fs.Lookup(n); f == nil || f.Value.String() == "" {
			missing = append(missing, "--"+n)
		}
	}
	if len(missing) > 0 {
		return usageError{fmt.Errorf("required flag(s) %s not set", strings.Join(missing, ", "))}
	}
	return nil
}
