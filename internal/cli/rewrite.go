package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/PuerkitoBio/goquery"
	"github.com/spf13/cobra"

	"github.com/watsumi/gentle-review/internal/enhancer"
	"github.com/watsumi/gentle-review/internal/page"
)

var rewriteOutput string

var rewriteCmd = &cobra.Command{
	Use:   "rewrite <page.html>",
	Short: "Enhance every review comment of a saved page",
	Args: func(cmd *cobra.Command, args []string) error {
		if err := cobra.ExactArgs(1)(cmd, args); err != nil {
			return usageError{err}
		}
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		doc, err := page.Parse(f)
		f.Close()
		if err != nil {
			return err
		}
		defer doc.Close()

		a, err := newApp(ctx, cfg, useMock)
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.engine.Initialize(ctx, logProgress()); err != nil {
			return err
		}

		ctrl := enhancer.New(doc, a.engine, enhancer.WithNotifier(func(kind enhancer.ToastKind, msg string) {
			slog.Info("notice", "kind", kind, "message", msg)
		}))
		n, err := ctrl.Scan(ctx)
		if err != nil {
			return err
		}
		slog.Info("comments fitted", "count", n)

		var failed int
		for _, c := range ctrl.Comments() {
			if c.Content == "" {
				continue
			}
			if _, err := ctrl.Trigger(ctx, c.ID); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				failed++
				slog.Warn("comment not enhanced", "comment", c.ID, "error", err)
			}
		}

		// Toasts are transient and do not belong in the saved page.
		if err := doc.Update(func(m *page.Mutator) {
			m.Find("." + enhancer.ClassToast).Each(func(_ int, s *goquery.Selection) {
				m.Remove(s.Get(0))
			})
		}); err != nil {
			return err
		}

		out, err := doc.HTML()
		if err != nil {
			return err
		}
		w := cmd.OutOrStdout()
		if rewriteOutput != "" {
			file, err := os.Create(rewriteOutput)
			if err != nil {
				return err
			}
			defer file.Close()
			w = file
		}
		if _, err := fmt.Fprintln(w, out); err != nil {
			return err
		}
		if failed > 0 {
			return fmt.Errorf("%d comments could not be enhanced", failed)
		}
		return nil
	},
}

func init() {
	rewriteCmd.Flags().StringVarP(&rewriteOutput, "output", "o", "", "write the annotated page here instead of stdout")
}
