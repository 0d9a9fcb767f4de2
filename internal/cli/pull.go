package cli

import (
	"github.com/spf13/cobra"
)

var pullCmd = &cobra.Command{
	Use:   "pull",
	Short: "Download the configured model into the local engine cache",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), cfg, useMock)
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.engine.Initialize(cmd.Context(), logProgress()); err != nil {
			return err
		}
		cmd.Printf("%s ready (model %s)\n", a.engine.Name(), a.engine.Model())
		return nil
	},
}
