package main

import (
	"io"
	"os"
	"strings"

	"github.com/fgeck/gomysql-telegram/internal/config"
	"github.com/fgeck/gomysql-telegram/internal/models"
	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	// Version is set at build time.
	Version = "dev"

	// Configuration flags.
	configFile string
	envFile    string
	verbose    bool
	quiet      bool
	jsonOutput bool

	// Console sink and level chosen by the flags; the run command tees into a log file as well.
	consoleOut   io.Writer = os.Stdout
	consoleLevel           = zerolog.InfoLevel
)

var rootCmd = &cobra.Command{
	Use:   "gomysql-telegram",
	Short: "Back up a MySQL database and deliver it to a Telegram chat",
	Long: `gomysql-telegram is a one-shot MySQL backup tool that:
  - verifies the MySQL server is reachable
  - exports the database with mysqldump
  - compresses the dump (xz by default)
  - sends the archive and the run log to a Telegram chat
  - optionally wakes the database host before and shuts it down after

Settings come from the environment (a .env file is loaded first) and an optional
YAML file. Use with an external scheduler (cron, systemd timer, etc.)`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		setupLogging()
	},
	SilenceUsage: true,
	Version:      Version,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "optional YAML config file; environment variables take precedence")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before reading the environment")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose (debug) output")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "enable quiet mode (errors only)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output logs in JSON format")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(probeCmd)
}

func setupLogging() {
	if jsonOutput {
		consoleOut = os.Stdout
	} else {
		output := zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: "15:04:05",
			NoColor:    !isTerminal(os.Stdout),
		}
		output.FormatLevel = func(i interface{}) string {
			if s, ok := i.(string); ok {
				return strings.ToUpper(s)
			}
			return ""
		}
		consoleOut = output
	}

	switch {
	case quiet:
		consoleLevel = zerolog.ErrorLevel
	case verbose:
		consoleLevel = zerolog.DebugLevel
	default:
		consoleLevel = zerolog.InfoLevel
	}

	// Levels are filtered per sink so the log file can keep debug output.
	zerolog.SetGlobalLevel(zerolog.DebugLevel)
	log.Logger = newLogger()
}

// newLogger builds a logger writing to the console at consoleLevel and to every extra sink at debug level.
func newLogger(extra ...io.Writer) zerolog.Logger {
	writers := []io.Writer{
		&zerolog.FilteredLevelWriter{
			Writer: zerolog.LevelWriterAdapter{Writer: consoleOut},
			Level:  consoleLevel,
		},
	}
	writers = append(writers, extra...)
	return zerolog.New(zerolog.MultiLevelWriter(writers...)).With().Timestamp().Logger()
}

func isTerminal(f *os.File) bool {
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// loadConfig reads the dotenv file, the optional config file and the environment, then validates.
func loadConfig() (*models.BackupConfig, error) {
	if err := config.LoadDotEnv(envFile); err != nil {
		return nil, err
	}

	parser := config.NewParser()

	var (
		cfg *models.BackupConfig
		err error
	)
	if configFile != "" {
		cfg, err = parser.LoadFile(configFile)
	} else {
		cfg, err = parser.LoadEnv()
	}
	if err != nil {
		return nil, err
	}

	if err := config.Validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
