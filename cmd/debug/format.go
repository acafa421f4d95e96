package debug

import (
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/hitzhangjie/retrodbg/pkg/breakpoint"
	"github.com/hitzhangjie/retrodbg/pkg/expr"
)

// PrintDiagnostics 打印表达式text及其诊断信息, 用^标出出错位置
func PrintDiagnostics(w io.Writer, text string, diags []expr.Diagnostic) {
	lines := strings.Split(text, "\n")
	for _, d := range diags {
		if d.Line >= 1 && d.Line <= len(lines) {
			n := d.Length
			if n < 1 {
				n = 1
			}
			fmt.Fprintf(w, "  %s\n", lines[d.Line-1])
			fmt.Fprintf(w, "  %s%s\n", strings.Repeat(" ", d.Column), strings.Repeat("^", n))
		}
		fmt.Fprintf(w, "  %s: %s\n", d.Kind, d.Message)
	}
}

// must be form file:lineno, like main.asm:100. lineno is 1-based.
func parseFileLineno(s string) (file string, lineno int, err error) {
	idx := strings.LastIndex(s, ":")
	if idx <= 0 {
		err = fmt.Errorf("invalid location: %s, must be file:lineno", s)
		return
	}

	file = s[:idx]
	v, err := strconv.ParseInt(s[idx+1:], 10, 64)
	if err != nil || v < 1 {
		err = fmt.Errorf("invalid location: %s, must be file:lineno", s)
		return
	}
	lineno = int(v)
	return
}

// projectRelative 将文件路径转换为相对于工程目录的路径
func projectRelative(file string) string {
	if CurrentProject == nil || !filepath.IsAbs(file) {
		return filepath.ToSlash(file)
	}
	rel, err := filepath.Rel(CurrentProject.Dir, file)
	if err != nil {
		return filepath.ToSlash(file)
	}
	return filepath.ToSlash(rel)
}

func parseID(s string) (uint64, error) {
	id, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid breakpoint no.: %s", s)
	}
	return id, nil
}

// splitCondition splits "locspec ... if cond ..." into its two parts.
func splitCondition(args []string) (loc []string, cond string) {
	for i, a := range args {
		if a == "if" {
			return args[:i], strings.Join(args[i+1:], " ")
		}
	}
	return args, ""
}

func printBreakpoint(w io.Writer, bp *breakpoint.Breakpoint) {
	state := "enabled"
	if !bp.Enabled {
		state = "disabled"
	}
	if bp.IsHit {
		state += ",hit"
	}

	var ranges []string
	for _, r := range bp.Ranges {
		ranges = append(ranges, r.String())
	}

	fmt.Fprintf(w, "%-4d %-9s %-6s %-24s %-16s hits:%-4d", bp.ID, state, bp.Mode, bp.Bind, strings.Join(ranges, ","), bp.HitCount)
	if len(bp.Checkpoints) != 0 {
		fmt.Fprintf(w, " checkpoints:%v", bp.Checkpoints)
	}
	if !bp.StopWhenHit {
		fmt.Fprint(w, " nostop")
	}
	if bp.Condition != "" {
		fmt.Fprintf(w, " if %s", bp.Condition)
	}
	if bp.Error != breakpoint.NoError {
		fmt.Fprintf(w, " [%s: %s]", bp.Error, bp.ErrorText)
	}
	fmt.Fprintln(w)
}

func requireProject() error {
	if CurrentProject == nil {
		return fmt.Errorf("no project opened")
	}
	return nil
}
