package debug

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hitzhangjie/retrodbg/pkg/breakpoint"
	"github.com/hitzhangjie/retrodbg/pkg/expr/condition"
)

var condCmd = &cobra.Command{
	Use:   "cond <breakpoint no.> [condition]",
	Short: "设置断点的条件表达式, 省略条件则清除",
	Long: `设置断点的条件表达式, 省略条件则清除。

条件表达式示例:
  A == $10
  c:X != $00 && Y < $80
  @io:$d020 == $01 || .counter == $ff`,
	Annotations: map[string]string{
		cmdGroupAnnotation: cmdGroupBreakpoints,
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireProject(); err != nil {
			return err
		}
		if len(args) == 0 {
			return errors.New("参数错误")
		}
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		cond := strings.Join(args[1:], " ")

		if cond != "" {
			res := condition.Verify(cond, CurrentProject.Program.Symbols())
			if res.HasError {
				PrintDiagnostics(os.Stdout, cond, res.Diagnostics)
				return errors.New("invalid condition")
			}
		}

		cat := CurrentProject.Catalog
		orig := cat.Get(id)
		if orig == nil {
			return breakpoint.ErrBreakpointNotExisted
		}
		edited := orig.Clone()
		edited.Condition = cond

		bp, err := cat.Update(context.Background(), id, edited)
		if err != nil {
			return err
		}
		printBreakpoint(os.Stdout, bp)
		if bp.Error != breakpoint.NoError {
			return fmt.Errorf("%s: %s", bp.Error, bp.ErrorText)
		}
		return nil
	},
}

func init() {
	debugRootCmd.AddCommand(condCmd)
}
