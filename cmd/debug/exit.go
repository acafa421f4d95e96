package debug

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/spf13/cobra"
)

var exitCmd = &cobra.Command{
	Use:     "exit",
	Short:   "保存断点并结束会话",
	Aliases: []string{"quit", "q"},
	Annotations: map[string]string{
		cmdGroupAnnotation: cmdGroupOthers,
	},
	Run: func(cmd *cobra.Command, args []string) {
		CurrentSession.Stop()
	},
}

func init() {
	debugRootCmd.AddCommand(exitCmd)
}

// Cleanup 清理会话: 删除调试器中的断点, 断开连接, 保存断点文件
func Cleanup() {
	cleanupOnce.Do(func() {
		if CurrentProject == nil {
			return
		}
		if err := CurrentProject.Close(context.Background()); err != nil {
			fmt.Fprintf(os.Stderr, "close project: %v\n", err)
			return
		}
		fmt.Fprintf(os.Stdout, "breakpoints saved\n")
	})
}

var cleanupOnce sync.Once
