package debug

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hitzhangjie/retrodbg/pkg/config"
)

var loadCmd = &cobra.Command{
	Use:   "load <file>",
	Short: "加载调试符号 (VICE标签文件或KickAssembler .dbg文件)",
	Annotations: map[string]string{
		cmdGroupAnnotation: cmdGroupSource,
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireProject(); err != nil {
			return err
		}
		if len(args) != 1 {
			return errors.New("参数错误")
		}
		path, err := config.ExpandPath(args[0])
		if err != nil {
			return err
		}

		n, err := CurrentProject.LoadSymbols(context.Background(), path)
		if err != nil {
			return err
		}
		fmt.Printf("loaded %d symbols from %s\n", n, path)
		return nil
	},
}

func init() {
	debugRootCmd.AddCommand(loadCmd)
}
