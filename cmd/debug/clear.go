package debug

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

var clearCmd = &cobra.Command{
	Use:   "clear <breakpoint no.>",
	Short: "清除指定编号的断点",
	Long: `清除指定编号的断点。

若调试器删除checkpoint失败, 断点保留并标记错误, 使用 --force 强制移除。`,
	Annotations: map[string]string{
		cmdGroupAnnotation: cmdGroupBreakpoints,
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireProject(); err != nil {
			return err
		}
		if len(args) != 1 {
			return errors.New("参数错误")
		}
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		force, _ := cmd.Flags().GetBool("force")

		removed, err := CurrentProject.Catalog.Remove(context.Background(), id, force)
		if !removed {
			if err == nil {
				err = errors.New("断点未移除")
			}
			return err
		}
		if err != nil {
			fmt.Printf("warning: %v\n", err)
		}
		fmt.Println("移除断点成功")
		return nil
	},
}

func init() {
	debugRootCmd.AddCommand(clearCmd)

	clearCmd.Flags().BoolP("force", "f", false, "调试器删除失败时也移除断点")
}
