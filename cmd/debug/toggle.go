package debug

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

var toggleCmd = &cobra.Command{
	Use:   "toggle <breakpoint no.>",
	Short: "启用或禁用断点",
	Long: `启用或禁用断点。

断点已布置时, 只有调试器中所有checkpoint都切换成功, 断点状态才会改变。`,
	Aliases: []string{"t"},
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

		bp, err := CurrentProject.Catalog.ToggleEnabled(context.Background(), id)
		if err != nil {
			return err
		}
		if bp.Enabled {
			fmt.Printf("breakpoint %d enabled\n", bp.ID)
		} else {
			fmt.Printf("breakpoint %d disabled\n", bp.ID)
		}
		return nil
	},
}

func init() {
	debugRootCmd.AddCommand(toggleCmd)
}
