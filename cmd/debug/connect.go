package debug

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var connectCmd = &cobra.Command{
	Use:   "connect [host:port]",
	Short: "连接VICE调试器并布置所有断点",
	Long: `连接VICE的binary monitor (x64sc -binarymonitor), 默认地址取自配置项 monitor.address。

连接成功后所有断点会被布置到调试器中。`,
	Annotations: map[string]string{
		cmdGroupAnnotation: cmdGroupSession,
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireProject(); err != nil {
			return err
		}
		addr := CurrentProject.Config.MonitorAddress
		if len(args) != 0 {
			addr = args[0]
		}

		armed, err := CurrentProject.Connect(context.Background(), addr)
		if err != nil {
			return err
		}
		fmt.Printf("connected to %s, %d breakpoints armed\n", addr, armed)
		return nil
	},
}

var disconnectCmd = &cobra.Command{
	Use:   "disconnect",
	Short: "删除调试器中的断点并断开连接",
	Annotations: map[string]string{
		cmdGroupAnnotation: cmdGroupSession,
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireProject(); err != nil {
			return err
		}
		if err := CurrentProject.Disconnect(context.Background()); err != nil {
			return err
		}
		fmt.Println("disconnected")
		return nil
	},
}

var rearmCmd = &cobra.Command{
	Use:   "rearm",
	Short: "重新布置所有断点",
	Annotations: map[string]string{
		cmdGroupAnnotation: cmdGroupSession,
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireProject(); err != nil {
			return err
		}
		if CurrentProject.Monitor() == nil {
			return errNotConnected
		}

		ctx := context.Background()
		cat := CurrentProject.Catalog
		if err := cat.DisarmAll(ctx); err != nil {
			return err
		}
		armed, err := cat.RearmAll(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("%d breakpoints armed\n", armed)
		return nil
	},
}

func init() {
	debugRootCmd.AddCommand(connectCmd)
	debugRootCmd.AddCommand(disconnectCmd)
	debugRootCmd.AddCommand(rearmCmd)
}
