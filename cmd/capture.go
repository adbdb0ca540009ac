// -- cmd/capture.go --
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/tabctl/internal/browser/capture"
	"github.com/xkilldash9x/tabctl/internal/browser/interact"
	"github.com/xkilldash9x/tabctl/internal/browser/session"
	"github.com/xkilldash9x/tabctl/internal/browser/wait"
)

func newCaptureCmd(a *app) *cobra.Command {
	var (
		output      string
		waitVisible string
		click       string
	)
	cmd := &cobra.Command{
		Use:   "capture URL",
		Short: "Record matching response bodies (video/audio by default) into one file",
		Long: `Open URL and append the body of every response whose mime type matches
to the output file, in the order the responses arrived. The inactivity timeout
starts with the first matching response, so page load, --wait-visible and
--click may take as long as they need. The capture then ends once no body has
been written for the inactivity timeout, or on interrupt.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			ctx := cmd.Context()
			ccfg := a.cfg.Capture()
			log := commandLogger(cmd, args[0])

			s, err := a.newSession(ctx, log)
			if err != nil {
				return err
			}
			defer a.closeSession(ctx, s, &err)

			// Subscribe before navigating so early segments are kept.
			c := capture.New(s.Registry(), s, s, log, capture.WithConfig(ccfg), capture.WithFs(a.fs))
			stream, err := c.CaptureStreamTo(ctx, output, capture.MatchMime(ccfg.MimePatterns...), ccfg.InactivityTimeout)
			if err != nil {
				return err
			}
			defer func() {
				stream.Stop()
				_ = stream.Wait(session.Detach(ctx))
			}()

			if err := s.OpenURL(ctx, args[0], session.PageOptions{}); err != nil {
				return err
			}
			if waitVisible != "" {
				w := wait.New(s, log, wait.WithConfig(a.cfg.Wait()), wait.WithFs(a.fs))
				if err := w.ForVisible(ctx, s, waitVisible, 0); err != nil {
					return err
				}
			}
			if click != "" {
				in := interact.New(s, a.cfg.Input(), log)
				if err := in.Click(ctx, interact.Selector(click), interact.MouseOptions{}); err != nil {
					return fmt.Errorf("click %q: %w", click, err)
				}
			}

			if err := stream.Wait(ctx); err != nil {
				return err
			}
			st := stream.Stats()
			log.Info("Capture complete.",
				zap.String("path", output), zap.Int("bodies", st.Written), zap.Int64("bytes", st.Bytes), zap.Int("dropped", st.Dropped), zap.Int("abandoned", st.Abandoned))
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d bodies, %d bytes\n", output, st.Written, st.Bytes)
			return nil
		},
	}
	flags := cmd.Flags()
	flags.StringVarP(&output, "output", "o", "capture.bin", "output file")
	flags.StringSlice("mime", nil, "mime glob to capture, repeatable (default from capture.mime_patterns)")
	flags.Duration("inactivity", 0, "finish after this long without a new body (default from capture.inactivity_timeout)")
	flags.StringVar(&waitVisible, "wait-visible", "", "selector to wait for before clicking")
	flags.StringVar(&click, "click", "", "selector to click once the page has loaded, e.g. a play button")
	mustBind(a.v, "capture.mime_patterns", flags.Lookup("mime"))
	mustBind(a.v, "capture.inactivity_timeout", flags.Lookup("inactivity"))
	return cmd
}
