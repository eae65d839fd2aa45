package cmd

import (
	"fmt"
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

var (
	cfgFile string
	quiet   bool
	debug   bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "minisiem",
	Short: "Batch log correlation over exported security logs",
	Long: `Reads a folder of log exports (Windows event JSON, journald JSON, CSV, plain
syslog), normalizes them into a common event model and evaluates threshold
rules against the whole batch. For example:

minisiem run --path ./logs --rules-dir ./rules --out ./reports`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	cobra.OnInitialize(initLogging)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.go-mini-siem.yaml)")

	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "Quiet output. Suppress warnings and other stuff. Cannot be used together with --debug and --quiet will take precedence.")
	rootCmd.PersistentFlags().BoolVarP(&debug, "debug", "d", false, "Debug mode. Enable trace logging. Cannot be used together with --quiet.")

	rootCmd.PersistentFlags().StringSlice("rules-dir", []string{"rules"},
		"Directories that contain correlation rules.")
	viper.BindPFlag("rules.dir", rootCmd.PersistentFlags().Lookup("rules-dir"))

	rootCmd.PersistentFlags().StringSlice("rules-pattern", []string{"*.yml", "*.yaml"},
		"File name globs for rule files.")
	viper.BindPFlag("rules.pattern", rootCmd.PersistentFlags().Lookup("rules-pattern"))

	rootCmd.PersistentFlags().String("metrics-file", "",
		`Write run counters to this file in prometheus text format.`)
	viper.BindPFlag("metrics.file", rootCmd.PersistentFlags().Lookup("metrics-file"))

	inputFlags(rootCmd)
}

// inputFlags are shared by commands that read log exports
func inputFlags(cmd *cobra.Command) {
	cmd.PersistentFlags().String("path", "",
		`Folder with log files (json/ndjson/csv/anything else as raw lines, optionally .gz or .zst).`)
	viper.BindPFlag("input.path", cmd.PersistentFlags().Lookup("path"))

	cmd.PersistentFlags().StringSlice("include", []string{},
		`Only read files whose name matches one of these globs.`)
	viper.BindPFlag("input.include", cmd.PersistentFlags().Lookup("include"))

	cmd.PersistentFlags().StringSlice("exclude", []string{},
		`Skip files whose name matches one of these globs.`)
	viper.BindPFlag("input.exclude", cmd.PersistentFlags().Lookup("exclude"))

	cmd.PersistentFlags().Bool("recursive", false,
		`Descend into subfolders of --path.`)
	viper.BindPFlag("input.recursive", cmd.PersistentFlags().Lookup("recursive"))

	cmd.PersistentFlags().Int("ingest-workers", 4,
		`Number of parallel file decoders.`)
	viper.BindPFlag("ingest.workers", cmd.PersistentFlags().Lookup("ingest-workers"))
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		// Use config file from the flag.
		viper.SetConfigFile(cfgFile)
	} else {
		// Find home directory.
		home, err := homedir.Dir()
		if err != nil {
			fmt.Println(err)
			os.Exit(1)
		}

		// Search config in home directory with name ".go-mini-siem" (without extension).
		viper.AddConfigPath(home)
		viper.SetConfigName(".go-mini-siem")
	}

	viper.AutomaticEnv() // read in environment variables that match

	// If a config file is found, read it in.
	if err := viper.ReadInConfig(); err == nil {
		log.Debug("Using config file: ", viper.ConfigFileUsed())
	}
}

func initLogging() {
	log.SetFormatter(&log.TextFormatter{
		DisableColors: false,
		FullTimestamp: true,
	})
	if quiet {
		log.SetLevel(log.ErrorLevel)
	} else if debug {
		log.SetLevel(log.TraceLevel)
	}
}
