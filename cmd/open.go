/*
Copyright © 2020 hit.zhangjie@gmail.com

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hitzhangjie/retrodbg/cmd/debug"
	"github.com/hitzhangjie/retrodbg/pkg/config"
)

// openCmd represents the open command
var openCmd = &cobra.Command{
	Use:   "open [project directory]",
	Short: "打开工程, 加载断点和调试符号, 进入交互式会话",
	Long: `打开工程, 加载断点和调试符号, 进入交互式会话。

断点保存在工程目录下的 .retrodbg/breakpoints.json (配置项 project.breakpoints)。`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dir := "."
		if len(args) != 0 {
			dir = args[0]
		}
		dir, err := config.ExpandPath(dir)
		if err != nil {
			return err
		}

		p, err := debug.OpenProject(platform(), dir)
		if err != nil {
			return err
		}
		debug.CurrentProject = p
		fmt.Printf("opened %s, %d breakpoints\n", dir, len(p.Catalog.Breakpoints()))

		ctx := context.Background()
		symbols, _ := cmd.Flags().GetStringSlice("symbols")
		for _, file := range symbols {
			path, err := config.ExpandPath(file)
			if err != nil {
				return err
			}
			n, err := p.LoadSymbols(ctx, path)
			if err != nil {
				p.Close(ctx)
				return fmt.Errorf("load %s: %v", file, err)
			}
			fmt.Printf("loaded %d symbols from %s\n", n, path)
		}

		if connect, _ := cmd.Flags().GetBool("connect"); connect {
			armed, err := p.Connect(ctx, p.Config.MonitorAddress)
			if err != nil {
				fmt.Printf("connect %s: %v\n", p.Config.MonitorAddress, err)
			} else {
				fmt.Printf("connected to %s, %d breakpoints armed\n", p.Config.MonitorAddress, armed)
			}
		}
		return nil
	},
	PostRun: func(cmd *cobra.Command, args []string) {
		// save breakpoints and leave the emulator clean when the session ends
		debug.CurrentSession = debug.NewDebugSession().AtExit(debug.Cleanup)
		debug.CurrentSession.Start()
	},
}

func init() {
	rootCmd.AddCommand(openCmd)

	openCmd.Flags().StringSliceP("symbols", "s", nil, "调试符号文件 (VICE标签文件或KickAssembler .dbg文件)")
	openCmd.Flags().BoolP("connect", "c", false, "连接VICE调试器 (monitor.address)")
}
