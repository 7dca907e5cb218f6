package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"route-aggregator/internal/app"
	"route-aggregator/internal/config"
)

var rootCmd = &cobra.Command{
	Use:   "routectl",
	Short: "Operate the route aggregator from the command line",
	Long: `routectl runs the quote pipeline in-process and manages operator access.

It reads the same YAML configuration as the server. Settings can also come from
ROUTECTL_* environment variables or a .routectl.yaml file in $HOME or the working directory.

Examples:
  routectl quote 1000000 --from-chain 1 --to-chain 42161 \
    --from-token 0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48 \
    --to-token 0xaf88d065e77c8cc2239327c5edb3a432268e5831
  routectl sources
  routectl admin-token --user alice --ttl 30m`,
	SilenceUsage: true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initViper)

	rootCmd.PersistentFlags().StringP("config", "c", "", "server configuration file (default config.yaml)")
	rootCmd.PersistentFlags().BoolP("json", "j", false, "Output in JSON format")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Show pipeline logs")
	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
}

func initViper() {
	viper.SetConfigName(".routectl")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("$HOME")
	viper.AddConfigPath(".")

	viper.SetEnvPrefix("ROUTECTL")
	viper.AutomaticEnv()

	_ = viper.ReadInConfig()
}

func loadConfig() (*config.Config, error) {
	quietLogs()
	cfg, err := config.Load(viper.GetString("config"))
	if err != nil {
		return nil, err
	}
	// the CLI never publishes events
	cfg.NATS.URL = ""
	return cfg, nil
}

func newContainer(cfg *config.Config) (*app.ServiceContainer, error) {
	logger := app.NewLogger(cfg.Log, "debug")
	if !viper.GetBool("verbose") {
		logger.SetOutput(io.Discard)
	}
	return app.NewServiceContainer(cfg, logger)
}

// quietLogs silences startup chatter unless --verbose is set.
func quietLogs() {
	if !viper.GetBool("verbose") {
		log.SetOutput(io.Discard)
		logrus.SetOutput(io.Discard)
	}
}

func printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

func printError(err error) {
	color.Red("\nError: %v\n", err)
}
