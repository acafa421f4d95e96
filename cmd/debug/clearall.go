package debug

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var clearallCmd = &cobra.Command{
	Use:   "clearall",
	Short: "清除所有的断点",
	Long:  `清除所有的断点`,
	Annotations: map[string]string{
		cmdGroupAnnotation: cmdGroupBreakpoints,
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireProject(); err != nil {
			return err
		}
		force, _ := cmd.Flags().GetBool("force")

		failed := 0
		for _, brk := range CurrentProject.Catalog.Breakpoints() {
			removed, err := CurrentProject.Catalog.Remove(context.Background(), brk.ID, force)
			if !removed {
				failed++
				fmt.Printf("清除断点%d失败: %v\n", brk.ID, err)
			}
		}
		if failed != 0 {
			return fmt.Errorf("%d个断点未清除", failed)
		}
		fmt.Println("清空断点成功")
		return nil
	},
}

func init() {
	debugRootCmd.AddCommand(clearallCmd)

	clearallCmd.Flags().BoolP("force", "f", false, "调试器删除失败时也移除断点")
}
