package debug

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var continueCmd = &cobra.Command{
	Use:   "continue",
	Short: "恢复运行到下个断点",
	Annotations: map[string]string{
		cmdGroupAnnotation: cmdGroupSession,
	},
	Aliases: []string{"c"},
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireProject(); err != nil {
			return err
		}
		m := CurrentProject.Monitor()
		if m == nil {
			return errNotConnected
		}

		if err := m.Resume(context.Background()); err != nil {
			return fmt.Errorf("continue error: %v", err)
		}
		CurrentProject.Catalog.ClearHits()
		fmt.Println("continue ok")
		return nil
	},
}

func init() {
	debugRootCmd.AddCommand(continueCmd)
}
