package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/claude-relay/internal/config"
	"github.com/nextlevelbuilder/claude-relay/internal/oauth"
)

func loginCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "login",
		Short: "Authenticate this proxy against the Anthropic developer console",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLogin()
		},
	}
}

func runLogin() error {
	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	credStore, _, err := buildStorage(cfg)
	if err != nil {
		return fmt.Errorf("build storage: %w", err)
	}
	mgr := oauth.New(credStore, cfg.OAuthClientID)

	authURL := fmt.Sprintf(
		"https://console.anthropic.com/oauth/authorize?client_id=%s&response_type=code",
		oauth.DefaultClientID(),
	)

	var pasted string
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewNote().
				Title("claude-relay login").
				Description(fmt.Sprintf("Open this URL in a browser, approve access, then paste back the resulting code:\n\n%s", authURL)),
			huh.NewInput().
				Title("Authorization code").
				Description("Paste the code#verifier pair shown after approving access.").
				Value(&pasted),
		),
	)

	if err := form.Run(); err != nil {
		return fmt.Errorf("login prompt: %w", err)
	}

	code, verifier, _ := strings.Cut(strings.TrimSpace(pasted), "#")
	if code == "" {
		return fmt.Errorf("no code entered")
	}

	if err := mgr.ExchangeCode(context.Background(), code, verifier); err != nil {
		return fmt.Errorf("exchange code: %w", err)
	}

	fmt.Println("Logged in.")
	return nil
}
