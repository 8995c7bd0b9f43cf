package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/claude-relay/internal/config"
	"github.com/nextlevelbuilder/claude-relay/internal/oauth"
)

func logoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Remove the stored credential",
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
			if err := mgr.Logout(context.Background()); err != nil {
				return fmt.Errorf("logout: %w", err)
			}
			fmt.Println("Logged out.")
			return nil
		},
	}
}
