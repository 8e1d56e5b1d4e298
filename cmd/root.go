// Package cmd wires the CLI: configuration loading, logging setup and the
// start command running the feed.
package cmd

import (
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"bitfeed/internal/logger"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "bitfeed",
	Short: "Bitfinex market-data feed",
	Long: `bitfeed maintains a WebSocket connection to the Bitfinex v2 public
API, reconstructs tickers and order books for the configured symbols, and
fans the resulting events out to Kafka, Prometheus and an optional console
view.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return logger.Setup(logger.Config{
			Level:      viper.GetString("log.level"),
			Format:     viper.GetString("log.format"),
			File:       viper.GetString("log.file"),
			MaxSizeMB:  viper.GetInt("log.max_size_mb"),
			MaxBackups: viper.GetInt("log.max_backups"),
			MaxAgeDays: viper.GetInt("log.max_age_days"),
		})
	},
}

// Execute runs the CLI.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "config file (default ./configs/config.yaml)")
	pf.String("log-level", "info", "log level: trace, debug, info, warn, error")
	pf.String("log-format", "text", "log format: text or json")
	pf.String("log-file", "", "rotating log file path (empty: stdout only)")
	pf.String("cpuprofile", "", "write a CPU profile to this file")
	pf.String("memprofile", "", "write a heap profile to this file on exit")

	viper.BindPFlag("log.level", pf.Lookup("log-level"))
	viper.BindPFlag("log.format", pf.Lookup("log-format"))
	viper.BindPFlag("log.file", pf.Lookup("log-file"))
	viper.BindPFlag("profile.cpu", pf.Lookup("cpuprofile"))
	viper.BindPFlag("profile.mem", pf.Lookup("memprofile"))
}

func initConfig() {
	// .env is optional, used in development
	godotenv.Load()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath("./configs")
		viper.AddConfigPath(".")
	}

	viper.SetEnvPrefix("BITFEED")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// a missing config file is fine, flags and env cover everything
	viper.ReadInConfig()
}
