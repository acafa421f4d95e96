package debug

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hitzhangjie/retrodbg/pkg/expr/address"
)

var evalCmd = &cobra.Command{
	Use:     "eval <address expression>",
	Short:   "计算地址表达式",
	Aliases: []string{"p", "print"},
	Annotations: map[string]string{
		cmdGroupAnnotation: cmdGroupExpr,
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireProject(); err != nil {
			return err
		}
		text := strings.Join(args, " ")

		if hasErr, diags := address.Verify(text); hasErr {
			PrintDiagnostics(os.Stdout, text, diags)
			return errors.New("invalid address")
		}

		v, err := address.MustEvaluate(CurrentProject.Program.Labels(), text)
		if err != nil {
			return err
		}
		fmt.Printf("$%04x (%d)", v, v)
		if file, line, ok := CurrentProject.Program.AddressToLine(v); ok {
			fmt.Printf(" %s:%d", file, line+1)
		}
		fmt.Println()
		return nil
	},
}

func init() {
	debugRootCmd.AddCommand(evalCmd)
}
