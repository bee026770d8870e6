package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/fgeck/gomysql-telegram/internal/models"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration",
	Long:  `Load and validate the configuration without contacting MySQL or Telegram.`,
	RunE:  validateConfig,
}

var (
	headingColor = color.New(color.Bold)
	okColor      = color.New(color.FgGreen)
	warnColor    = color.New(color.FgYellow)
)

func validateConfig(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		log.Error().Err(err).Msg("configuration validation failed")
		return err
	}

	printSummary(cfg)
	return nil
}

func enabled(b bool) string {
	if b {
		return okColor.Sprint("enabled")
	}
	return warnColor.Sprint("disabled")
}

func printSummary(cfg *models.BackupConfig) {
	_, _ = okColor.Println("Configuration is valid!")
	fmt.Println()

	_, _ = headingColor.Println("MySQL:")
	fmt.Printf("  Host: %s:%d\n", cfg.MySQL.Host, cfg.MySQL.Port)
	fmt.Printf("  User: %s\n", cfg.MySQL.Username)
	fmt.Printf("  Database: %s\n", cfg.MySQL.DatabaseLabel())
	fmt.Printf("  mysqldump: %s\n", cfg.MySQL.DumpBinary)
	fmt.Printf("  Probe timeout: %s\n", cfg.MySQL.ProbeTimeout)
	fmt.Printf("  Dump timeout: %s\n", cfg.MySQL.DumpTimeout)
	fmt.Println()

	_, _ = headingColor.Println("Telegram:")
	fmt.Printf("  Chat ID: %d\n", cfg.Telegram.ChatID)
	fmt.Printf("  Bot Token: (configured)\n")
	fmt.Printf("  API URL: %s\n", cfg.Telegram.APIURL)
	fmt.Printf("  Attempts per file: %d, %s apart\n", cfg.Telegram.MaxRetries, cfg.Telegram.RetryDelay)
	fmt.Println()

	_, _ = headingColor.Println("Run:")
	fmt.Printf("  Working directory: %s\n", cfg.Workspace.BaseDir)
	fmt.Printf("  Compression: %s\n", cfg.Compression.Codec)
	if cfg.Message != "" {
		fmt.Printf("  Custom message: %q\n", cfg.Message)
	}
	fmt.Println()

	_, _ = headingColor.Println("Optional Features:")
	fmt.Printf("  Wake-on-LAN: %s\n", enabled(cfg.WOL != nil))
	fmt.Printf("  SSH Shutdown: %s\n", enabled(cfg.SSHShutdown != nil))

	if cfg.WOL != nil {
		fmt.Println()
		_, _ = headingColor.Println("WOL Configuration:")
		fmt.Printf("  MAC Address: %s\n", cfg.WOL.MACAddress)
		fmt.Printf("  Broadcast IP: %s\n", cfg.WOL.BroadcastIP)
		fmt.Printf("  Wait for: %s (up to %s)\n", cfg.WOL.TargetAddr, cfg.WOL.Timeout)
	}

	if cfg.SSHShutdown != nil {
		fmt.Println()
		_, _ = headingColor.Println("SSH Shutdown Configuration:")
		fmt.Printf("  Host: %s:%d\n", cfg.SSHShutdown.Host, cfg.SSHShutdown.Port)
		fmt.Printf("  Username: %s\n", cfg.SSHShutdown.Username)
		fmt.Printf("  OS: %s\n", cfg.SSHShutdown.OS)
		fmt.Printf("  Shutdown Delay: %d minute(s)\n", cfg.SSHShutdown.ShutdownDelay)
	}
}
