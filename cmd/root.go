package cmd

import (
	"fmt"
	"os"

	homedir "github.com/mitchellh/go-homedir"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile string
	quiet   bool
	debug   bool
)

// rootCmd is the base command: it carries no action of its own, only the
// persistent flags and logging/config setup shared by every subcommand.
var rootCmd = &cobra.Command{
	Use:   "chainsaw",
	Short: "Hunt Sigma and Chainsaw detections over a stream of records",
	Long: `chainsaw loads Sigma and native Chainsaw detection rules, binds them to a
record format via a mapping file, and hunts a set of record sources for
matches.

	chainsaw hunt --rules ./rules --mapping ./mappings/sigma-event-logs.yml events.jsonl.gz
`,
}

// Execute adds all child commands to the root command and sets flags
// appropriately. Called once by main.main.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	cobra.OnInitialize(initLogging)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file, read as TOML (default is $HOME/.chainsaw.toml)")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "Quiet output. Suppress warnings. Takes precedence over --debug.")
	rootCmd.PersistentFlags().BoolVarP(&debug, "debug", "d", false, "Debug mode. Enable trace logging.")
}

// initConfig reads a config file, always parsed as TOML whatever its
// extension, and CHAINSAW-prefixed environment variables.
func initConfig() {
	viper.SetConfigType("toml")
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := homedir.Dir()
		if err != nil {
			fmt.Println(err)
			os.Exit(1)
		}
		viper.AddConfigPath(home)
		viper.SetConfigName(".chainsaw")
	}

	viper.SetEnvPrefix("chainsaw")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Println("Using config file:", viper.ConfigFileUsed())
	}
}

func initLogging() {
	log.SetFormatter(&log.TextFormatter{
		DisableColors: false,
		FullTimestamp: true,
	})
	switch {
	case quiet:
		log.SetLevel(log.ErrorLevel)
	case debug:
		log.SetLevel(log.TraceLevel)
	default:
		log.SetLevel(log.InfoLevel)
	}
}
