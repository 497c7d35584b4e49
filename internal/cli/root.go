// Package cli implements the ironforge command-line client: a thin
// wrapper over the HTTP API (C5) using the resilient httpclient for
// transport retries.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile string
	apiAddr string
	verbose bool
)

// rootCmd is the base command.
var rootCmd = &cobra.Command{
	Use:   "ironforge",
	Short: "ironforge - distributed job queue client",
	Long: `
   ___                ______
  /   |  _____  ____  / ____/___  _________ ____
 / /| | / __ \ / __ \/ /_  / __ \/ ___/ __ \/ __ \
/ ___ |/ /_/ // /_/ / __/ / /_/ / /  / /_/ / /_/ /
/_/  |_|\____/ \____/_/    \____/_/   \____/\____/

Submit, inspect, and retry jobs against a running IronForge API server.
`,
	Version: "0.1.0",
}

// Execute runs the CLI.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./ironforge.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVar(&apiAddr, "api", "http://127.0.0.1:3000", "IronForge API base URL")

	viper.BindPFlag("api", rootCmd.PersistentFlags().Lookup("api"))
	viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("ironforge")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath("$HOME/.ironforge")
	}

	viper.SetEnvPrefix("IRONFORGE")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil && verbose {
		fmt.Println("using config:", viper.ConfigFileUsed())
	}
	if viper.IsSet("api") {
		apiAddr = viper.GetString("api")
	}
}

func green(s string) string  { return "\033[32m" + s + "\033[0m" }
func red(s string) string    { return "\033[31m" + s + "\033[0m" }
func yellow(s string) string { return "\033[33m" + s + "\033[0m" }
func cyan(s string) string   { return "\033[36m" + s + "\033[0m" }
func bold(s string) string   { return "\033[1m" + s + "\033[0m" }

func success(msg string) { fmt.Println(green("✓ ") + msg) }
func fail(msg string)    { fmt.Fprintln(os.Stderr, red("✗ ")+msg) }
func info(msg string)    { fmt.Println(cyan("ℹ ") + msg) }
