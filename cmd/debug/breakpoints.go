package debug

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var breaksCmd = &cobra.Command{
	Use:     "breaks",
	Short:   "列出所有断点",
	Long:    "列出所有断点",
	Aliases: []string{"bs", "breakpoints"},
	Annotations: map[string]string{
		cmdGroupAnnotation: cmdGroupBreakpoints,
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireProject(); err != nil {
			return err
		}
		bps := CurrentProject.Catalog.Breakpoints()
		if len(bps) == 0 {
			fmt.Println("no breakpoints")
			return nil
		}
		for _, bp := range bps {
			printBreakpoint(os.Stdout, bp)
		}
		return nil
	},
}

func init() {
	debugRootCmd.AddCommand(breaksCmd)
}
