package main

import (
	"fmt"
	"time"

	"github.com/dapp-works/urpc/adapters/auth"
	"github.com/dapp-works/urpc/config"
	"github.com/spf13/cobra"
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Issue a caller token for jwt auth mode",
	Long: `Issue a signed bearer token with the configured auth.jwt_secret.

The token carries the claims access predicates read: the role decides
isAdmin and the teams feed team-based rules.

Examples:
  urpc token --user alice --role admin
  urpc token --user bob --team bd --team operator --ttl 1h`,
	RunE: runToken,
}

var (
	tokenUser       string
	tokenEmail      string
	tokenRole       string
	tokenTeams      []string
	tokenSuperAdmin bool
	tokenTTL        time.Duration
)

func init() {
	rootCmd.AddCommand(tokenCmd)

	tokenCmd.Flags().StringVar(&tokenUser, "user", "", "user id (required)")
	tokenCmd.Flags().StringVar(&tokenEmail, "email", "", "user email")
	tokenCmd.Flags().StringVar(&tokenRole, "role", "user", "role: admin or user")
	tokenCmd.Flags().StringSliceVar(&tokenTeams, "team", nil, "team membership (repeatable)")
	tokenCmd.Flags().BoolVar(&tokenSuperAdmin, "super-admin", false, "grant every team")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 0, "token lifetime (default: auth.token_ttl)")
	tokenCmd.MarkFlagRequired("user")
}

func runToken(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadWithFallback(cfgFile)
	if err != nil {
		return err
	}
	if cfg.Auth.Mode != "jwt" {
		return fmt.Errorf("auth.mode is %q, tokens need jwt", cfg.Auth.Mode)
	}

	ttl := cfg.Auth.TokenTTL
	if tokenTTL > 0 {
		ttl = tokenTTL
	}

	tokens := auth.NewTokenService(cfg.Auth.JWTSecret, ttl)
	token, expiresAt, err := tokens.GenerateToken(auth.Identity{
		UserID:     tokenUser,
		Email:      tokenEmail,
		Role:       tokenRole,
		Teams:      tokenTeams,
		SuperAdmin: tokenSuperAdmin,
	})
	if err != nil {
		return fmt.Errorf("sign token: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, token)
	fmt.Fprintf(cmd.ErrOrStderr(), "expires %s\n", expiresAt.Format(time.RFC3339))
	return nil
}
