package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/tamarack-wildlife/settle-cli/internal/config"
)

var cfg *config.Config

var profilePath string

var rootCmd = &cobra.Command{
	Use:   "settle-cli",
	Short: "Time-to-settle analysis for translocated animals",
	Long:  "Builds cumulative home ranges from telemetry fixes, fits a logistic growth curve to the pooled series, and derives the number of days animals took to settle after release.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		if profilePath != "" {
			p, err := config.LoadProfile(profilePath)
			if err != nil {
				return err
			}
			p.Apply(cfg)
			zap.L().Info("study profile applied",
				zap.String("study", p.Name),
				zap.String("path", profilePath),
			)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&profilePath, "profile", "", "study profile YAML merged over config")
}
