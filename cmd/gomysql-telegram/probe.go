package main

import (
	"context"
	"fmt"
	"time"

	"github.com/fgeck/gomysql-telegram/internal/services/mysqlprobe"
	"github.com/fgeck/gomysql-telegram/internal/services/ssh"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var probeCmd = &cobra.Command{
	Use:   "probe",
	Short: "Check MySQL connectivity and show the grants of the backup user",
	Long: `Run the connectivity check of the backup workflow on its own.
Prints the grants of the configured user and, when SSH shutdown is configured,
verifies that the database host accepts the SSH key. Nothing is sent to Telegram.`,
	RunE: runProbe,
}

func runProbe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		log.Error().Err(err).Msg("invalid configuration")
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	res, err := mysqlprobe.New(log.Logger).Probe(ctx, cfg.MySQL)
	if err != nil {
		return err
	}
	if res.Error != nil {
		_, _ = warnColor.Printf("MySQL %s:%d is not reachable: %v\n", cfg.MySQL.Host, cfg.MySQL.Port, res.Error)
		return res.Error
	}

	_, _ = okColor.Printf("MySQL %s:%d is reachable (%s)\n", cfg.MySQL.Host, cfg.MySQL.Port, res.Duration.Round(time.Millisecond))
	if len(res.Grants) > 0 {
		_, _ = headingColor.Println("Grants:")
		for _, g := range res.Grants {
			fmt.Printf("  %s\n", g)
		}
	}

	if cfg.SSHShutdown == nil {
		return nil
	}

	check, err := ssh.New(log.Logger).Check(ctx, *cfg.SSHShutdown)
	if err != nil {
		return err
	}
	if check.Error != nil {
		_, _ = warnColor.Printf("SSH %s:%d check failed: %v\n", cfg.SSHShutdown.Host, cfg.SSHShutdown.Port, check.Error)
		return check.Error
	}
	_, _ = okColor.Printf("SSH %s:%d accepts the shutdown key\n", cfg.SSHShutdown.Host, cfg.SSHShutdown.Port)

	return nil
}
