package debug

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hitzhangjie/retrodbg/pkg/breakpoint"
	"github.com/hitzhangjie/retrodbg/pkg/expr/address"
	"github.com/hitzhangjie/retrodbg/pkg/expr/condition"
)

var breakCmd = &cobra.Command{
	Use:   "break <locspec> [if <condition>]",
	Short: "添加断点",
	Long: `添加断点，位置可以通过locspec格式指定。

当前支持的locspec格式，包括两种:
- 文件名:行号, 如 src/main.asm:12
- 地址表达式, 如 $0810, start+3, 配合 --end 指定地址范围

条件表达式写在 if 之后, 如 break src/main.asm:12 if A == $10 && X != $00`,
	Aliases: []string{"b", "breakpoint"},
	Annotations: map[string]string{
		cmdGroupAnnotation: cmdGroupBreakpoints,
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireProject(); err != nil {
			return err
		}

		loc, cond := splitCondition(args)
		if len(loc) == 0 {
			return errors.New("参数错误")
		}
		locStr := strings.Join(loc, "")

		modeStr, _ := cmd.Flags().GetString("mode")
		mode, err := breakpoint.ParseMode(modeStr)
		if err != nil {
			return err
		}
		end, _ := cmd.Flags().GetString("end")
		nostop, _ := cmd.Flags().GetBool("nostop")

		if cond != "" {
			res := condition.Verify(cond, CurrentProject.Program.Symbols())
			if res.HasError {
				PrintDiagnostics(os.Stdout, cond, res.Diagnostics)
				return errors.New("invalid condition")
			}
		}

		var bind breakpoint.Bind
		if strings.Contains(locStr, ":") {
			file, lineno, err := parseFileLineno(locStr)
			if err != nil {
				return err
			}
			bind = breakpoint.LineBind{File: projectRelative(file), Line: lineno - 1}
		} else {
			for _, text := range []string{locStr, end} {
				if text == "" {
					continue
				}
				if hasErr, diags := address.Verify(text); hasErr {
					PrintDiagnostics(os.Stdout, text, diags)
					return errors.New("invalid address")
				}
			}
			ub := breakpoint.UnboundBind{Start: locStr}
			if end != "" {
				ub.End = &end
			}
			bind = ub
		}

		bp, err := breakpoint.New(bind, mode, cond, nil)
		if err != nil {
			return err
		}
		bp.StopWhenHit = !nostop

		bp, err = CurrentProject.Catalog.AddBreakpoint(context.Background(), bp)
		if err != nil {
			return err
		}
		fmt.Printf("add breakpoint %d at %s", bp.ID, bp.Bind)
		if len(bp.Ranges) != 0 {
			fmt.Printf(", addr: %s", bp.Ranges[0])
		}
		fmt.Println()
		return nil
	},
}

func init() {
	debugRootCmd.AddCommand(breakCmd)

	breakCmd.Flags().StringP("mode", "m", "exec", "触发方式: exec, load, store")
	breakCmd.Flags().StringP("end", "e", "", "地址范围的结束地址表达式")
	breakCmd.Flags().Bool("nostop", false, "命中时不暂停, 仅计数")
}
