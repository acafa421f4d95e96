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
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hitzhangjie/retrodbg/cmd/debug"
	"github.com/hitzhangjie/retrodbg/pkg/config"
	"github.com/hitzhangjie/retrodbg/pkg/expr/address"
	"github.com/hitzhangjie/retrodbg/pkg/expr/condition"
	"github.com/hitzhangjie/retrodbg/pkg/symbol"
)

var errInvalid = errors.New("expression has errors")

// checkCmd represents the check command
var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "校验表达式",
}

var checkCondCmd = &cobra.Command{
	Use:   "cond <condition>",
	Short: "校验条件表达式",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		prog, err := loadSymbols(cmd)
		if err != nil {
			return err
		}
		text := strings.Join(args, " ")

		res := condition.Verify(text, prog.Symbols())
		for _, tok := range res.Tokens {
			fmt.Printf("%-12s %-8s %s\n", tok.Type, tok.Span, tok.Text)
		}
		if res.HasError {
			debug.PrintDiagnostics(os.Stdout, text, res.Diagnostics)
			return errInvalid
		}
		return nil
	},
}

var checkAddrCmd = &cobra.Command{
	Use:   "addr <address expression>",
	Short: "校验并计算地址表达式",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		prog, err := loadSymbols(cmd)
		if err != nil {
			return err
		}
		text := strings.Join(args, " ")

		if hasErr, diags := address.Verify(text); hasErr {
			debug.PrintDiagnostics(os.Stdout, text, diags)
			return errInvalid
		}
		v, err := address.MustEvaluate(prog.Labels(), text)
		if err != nil {
			return err
		}
		fmt.Printf("$%04x (%d)\n", v, v)
		return nil
	},
}

func loadSymbols(cmd *cobra.Command) (*symbol.Program, error) {
	prog := symbol.NewProgram(platform(), "")
	files, _ := cmd.Flags().GetStringSlice("symbols")
	for _, file := range files {
		path, err := config.ExpandPath(file)
		if err != nil {
			return nil, err
		}
		if _, err := prog.LoadFile(path); err != nil {
			return nil, fmt.Errorf("load %s: %v", file, err)
		}
	}
	return prog, nil
}

func init() {
	rootCmd.AddCommand(checkCmd)
	checkCmd.AddCommand(checkCondCmd)
	checkCmd.AddCommand(checkAddrCmd)

	checkCmd.PersistentFlags().StringSliceP("symbols", "s", nil, "调试符号文件 (VICE标签文件或KickAssembler .dbg文件)")
}
