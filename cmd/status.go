package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/claude-relay/internal/config"
	"github.com/nextlevelbuilder/claude-relay/internal/oauth"
)

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Print whether a usable access token is currently available",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(resolveConfigPath())
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			credStore, _, err := buildStorage(cfg)
			if err != nil {
				return fmt.Errorf("build storage: %w", err)
			}
			mgr := oauth.New(credStore, cfg.OAuthClientID)
			if mgr.Status(context.Background()) {
				fmt.Println("authenticated")
			} else {
				fmt.Println("not authenticated")
			}
			return nil
		},
	}
}
