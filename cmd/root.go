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
	"fmt"
	"os"
	"strings"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/hitzhangjie/retrodbg/pkg/config"
	"github.com/hitzhangjie/retrodbg/pkg/logger"
)

var cfgFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "retrodbg",
	Short: "retrodbg is a breakpoint manager and debugger frontend for 6502 assembler projects",
	Long: `retrodbg manages the breakpoints of a retro assembler project and arms them
in a running VICE emulator through its binary monitor protocol.

Breakpoints are bound to source lines or address expressions and may carry
a hit condition such as "A == $10 && X != $00".`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.retrodbg.yaml)")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "echo log entries to stderr")
	viper.BindPFlag(config.KeyLogEcho, rootCmd.PersistentFlags().Lookup("verbose"))
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	config.SetDefaults(viper.GetViper())

	if cfgFile != "" {
		// Use config file from the flag.
		viper.SetConfigFile(cfgFile)
	} else {
		// Find home directory.
		home, err := homedir.Dir()
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}

		// Search config in home directory with name ".retrodbg" (without extension).
		viper.AddConfigPath(home)
		viper.SetConfigName(".retrodbg")
	}

	viper.SetEnvPrefix("retrodbg")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv() // read in environment variables that match

	// If a config file is found, read it in.
	if err := viper.ReadInConfig(); err == nil {
		logger.Logf("config", "using config file: %s", viper.ConfigFileUsed())
	}

	logger.SetEcho(viper.GetBool(config.KeyLogEcho))
}

// platform returns the settings every component is built with.
func platform() config.Platform {
	return config.FromViper(viper.GetViper())
}
