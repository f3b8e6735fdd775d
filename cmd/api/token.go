package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/capitalize-ai/voicechat/internal/config"
	"github.com/capitalize-ai/voicechat/internal/middleware"
)

var (
	tokenSubject string
	tokenTTL     time.Duration
	tokenScopes  []string
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Mint a bearer token for the local API",
	Long: `Mint a JWT signed with JWT_SECRET for use as
"Authorization: Bearer <token>" or the access_token query parameter.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if cfg.JWTSecret == "" {
			return errors.New("JWT_SECRET is not set; the API accepts unauthenticated requests")
		}
		ttl := tokenTTL
		if ttl <= 0 {
			ttl = cfg.JWTExpiration
		}
		token, err := middleware.IssueToken(cfg.JWTSecret, tokenSubject, ttl, tokenScopes...)
		if err != nil {
			return fmt.Errorf("issue token: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), token)
		return nil
	},
}

func init() {
	tokenCmd.Flags().StringVarP(&tokenSubject, "subject", "s", "local", "Token subject")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 0, "Token lifetime (defaults to JWT_EXPIRATION)")
	tokenCmd.Flags().StringSliceVar(&tokenScopes, "scope", nil, "Scopes to embed in the token")
}
