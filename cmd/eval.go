// -- cmd/eval.go --
package cmd

import (
	"fmt"

	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"

	"github.com/xkilldash9x/tabctl/internal/browser/session"
)

func newEvalCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "eval URL EXPRESSION",
		Short: "Load a page and print the JSON value of a JavaScript expression",
		Long: `Load a page and evaluate EXPRESSION in it. Only numbers, strings,
booleans and undefined (printed as null) are accepted as results.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			ctx := cmd.Context()
			s, err := a.newSession(ctx, commandLogger(cmd, args[0]))
			if err != nil {
				return err
			}
			defer a.closeSession(ctx, s, &err)

			if err := s.OpenURL(ctx, args[0], session.PageOptions{}); err != nil {
				return err
			}
			v, err := s.Evaluate(ctx, args[1])
			if err != nil {
				return err
			}
			out, err := jsoniter.ConfigCompatibleWithStandardLibrary.Marshal(v)
			if err != nil {
				return fmt.Errorf("encode result: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return nil
		},
	}
}
