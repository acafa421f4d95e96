package debug

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hitzhangjie/retrodbg/pkg/expr/condition"
)

var verifyCmd = &cobra.Command{
	Use:   "verify <condition>",
	Short: "校验条件表达式并显示词法分类",
	Annotations: map[string]string{
		cmdGroupAnnotation: cmdGroupExpr,
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireProject(); err != nil {
			return err
		}
		text := strings.Join(args, " ")

		prog := CurrentProject.Program
		v := condition.NewValidator(CurrentProject.Config, prog.Symbols, nil)
		defer v.Close()

		res, err := v.VerifyAsync(context.Background(), text)
		if err != nil {
			return err
		}

		for _, tok := range res.Tokens {
			fmt.Printf("  %-12s %-8s %s\n", tok.Type, tok.Span, tok.Text)
		}
		if res.HasError {
			PrintDiagnostics(os.Stdout, text, res.Diagnostics)
			return errors.New("invalid condition")
		}
		fmt.Println("ok")
		return nil
	},
}

func init() {
	debugRootCmd.AddCommand(verifyCmd)
}
