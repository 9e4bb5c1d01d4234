// Package main is the scriba command line tool. It grades answer
// documents offline, without the API server or its databases.
package main

import (
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var rootCmd = &cobra.Command{
	Use:   "scriba",
	Short: "Offline grading tools for exam answer documents",
	Long: `scriba grades free-text exam answers from JSON documents without the
API server or its databases.

The evaluate command scores student answers against an answer key and
writes a results document. The report command renders that document as
a markdown summary.

Configuration comes from the same SCRIBA_* environment variables the
API server reads. Without SCRIBA_OPENAI_API_KEY the semantic metric
is skipped and every result carries a warning.`,
}

func init() {
	cobra.OnInitialize(initConfig)
}

func initConfig() {
	viper.SetEnvPrefix("SCRIBA")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
