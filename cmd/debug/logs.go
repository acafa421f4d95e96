package debug

import (
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/hitzhangjie/retrodbg/pkg/logger"
)

var logsCmd = &cobra.Command{
	Use:   "logs [n]",
	Short: "查看最近的n条日志",
	Annotations: map[string]string{
		cmdGroupAnnotation: cmdGroupOthers,
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		n := 20
		if len(args) != 0 {
			v, err := strconv.Atoi(args[0])
			if err != nil {
				return err
			}
			n = v
		}
		if reset, _ := cmd.Flags().GetBool("clear"); reset {
			logger.Clear()
			return nil
		}
		logger.Tail(os.Stdout, n)
		return nil
	},
}

func init() {
	debugRootCmd.AddCommand(logsCmd)

	logsCmd.Flags().Bool("clear", false, "清空日志")
}
