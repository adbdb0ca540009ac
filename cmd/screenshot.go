// -- cmd/screenshot.go --
package cmd

import (
	"fmt"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/tabctl/internal/browser/session"
)

func newScreenshotCmd(a *app) *cobra.Command {
	var (
		output string
		opts   session.PageOptions
	)
	cmd := &cobra.Command{
		Use:   "screenshot URL",
		Short: "Load a page in a fresh browser and save a PNG of the viewport",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			log := commandLogger(cmd, args[0])
			png, err := session.Screenshot(cmd.Context(), a.cfg, log, args[0], opts, a.sessionOpts...)
			if err != nil {
				return fmt.Errorf("screenshot %s: %w", args[0], err)
			}
			if err := afero.WriteFile(a.fs, output, png, 0o644); err != nil {
				return fmt.Errorf("write screenshot: %w", err)
			}
			log.Info("Screenshot saved.", zap.String("path", output), zap.Int("bytes", len(png)))
			fmt.Fprintln(cmd.OutOrStdout(), output)
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "screenshot.png", "output PNG path")
	cmd.Flags().IntVar(&opts.Width, "width", 0, "viewport width (default from browser.window_width)")
	cmd.Flags().IntVar(&opts.Height, "height", 0, "viewport height (default from browser.window_height)")
	cmd.Flags().DurationVar(&opts.Delay, "delay", 0, "extra wait after the load event")
	return cmd
}
