// -- cmd/root.go --
package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/xkilldash9x/tabctl/internal/browser/session"
	"github.com/xkilldash9x/tabctl/internal/config"
	"github.com/xkilldash9x/tabctl/internal/observability"
)

// app is the state shared by every subcommand of one root command.
type app struct {
	v       *viper.Viper
	cfgFile string
	cfg     *config.Config
	logger  *zap.Logger

	// fs receives output files. sessionOpts are appended to every
	// session.New call; tests use both to run without a browser.
	fs          afero.Fs
	sessionOpts []session.Option
}

// NewRootCommand builds a fresh command tree with its own viper instance.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&app{v: viper.New(), fs: afero.NewOsFs()})
}

func newRootCommand(a *app) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "tabctl",
		Short:         "tabctl drives a headless browser tab: screenshots, evaluation and media capture.",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := a.initializeConfig(); err != nil {
				return err
			}
			a.logger.Debug("Configuration loaded.", zap.String("version", Version), zap.String("config", a.v.ConfigFileUsed()))
			return nil
		},
	}
	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&a.cfgFile, "config", "c", "", "config file (default is ./config.yaml)")
	flags.Bool("headless", true, "run the browser without a window")
	flags.String("browser", "", "browser executable (default from config: chromium)")
	flags.String("log-level", "", "log level (debug, info, warn, error)")
	mustBind(a.v, "browser.headless", flags.Lookup("headless"))
	mustBind(a.v, "browser.binary", flags.Lookup("browser"))
	mustBind(a.v, "logger.level", flags.Lookup("log-level"))

	rootCmd.AddCommand(
		newScreenshotCmd(a),
		newEvalCmd(a),
		newCaptureCmd(a),
		newVersionCmd(),
	)
	return rootCmd
}

// Execute runs the command tree under ctx and logs a failure before
// returning it.
func Execute(ctx context.Context) error {
	err := NewRootCommand().ExecuteContext(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		observability.GetLogger().Error("Command execution failed.", zap.Error(err))
	}
	observability.Sync()
	return err
}

// initializeConfig reads the config file and environment into a.cfg and
// sets up logging from it.
func (a *app) initializeConfig() error {
	v := a.v
	if a.cfgFile != "" {
		v.SetConfigFile(a.cfgFile)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
	config.SetDefaults(v)
	config.BindEnv(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("error reading config file: %w", err)
		}
		// No config file; defaults and environment apply.
	}

	cfg, err := config.NewConfigFromViper(v)
	if err != nil {
		observability.InitializeLogger(config.NewDefaultConfig().Logger())
		return err
	}
	a.cfg = cfg
	observability.InitializeLogger(cfg.Logger())
	a.logger = observability.Component("cli")
	return nil
}

// commandLogger scopes log lines to one subcommand run against url.
func commandLogger(cmd *cobra.Command, url string) *zap.Logger {
	return observability.Component("cli", zap.String("command", cmd.Name()), zap.String("url", url))
}

func (a *app) newSession(ctx context.Context, logger *zap.Logger) (*session.Session, error) {
	return session.New(ctx, a.cfg, logger, a.sessionOpts...)
}

// closeSession tears s down on a context that outlives a cancelled command.
func (a *app) closeSession(ctx context.Context, s *session.Session, err *error) {
	if cerr := s.Close(session.Detach(ctx)); cerr != nil {
		*err = errors.Join(*err, cerr)
	}
}

// mustBind ties a flag to a config key. It only fails for a nil flag.
func mustBind(v *viper.Viper, key string, f *pflag.Flag) {
	if err := v.BindPFlag(key, f); err != nil {
		panic(fmt.Sprintf("bind flag for %s: %v", key, err))
	}
}
