// Package main provides tracehookctl, the admin CLI for token
// management. It operates directly on the token registry file; a
// running server picks the changes up through its file watcher, so no
// restart or network round trip is needed.
package main

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/thebtf/tracehook/internal/config"
	"github.com/thebtf/tracehook/internal/registry"
	"github.com/thebtf/tracehook/pkg/models"
)

// Version is set at build time via ldflags.
var Version = "dev"

var (
	tokensFile string
	secretKey  string
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "tracehookctl",
		Short:         "Admin CLI for tracehook token management",
		Long:          "tracehookctl issues, revokes, and lists access tokens by editing the token registry file directly. A running tracehook server notices the change without a restart.",
		SilenceUsage:  true,
		SilenceErrors: false,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	root.PersistentFlags().StringVar(&tokensFile, "tokens-file", "", "Token registry path (default from config)")
	root.PersistentFlags().StringVar(&secretKey, "secret", "", "Token signing secret (default from config)")

	root.AddCommand(
		newGenerateCmd(),
		newRevokeCmd(),
		newListCmd(),
		newInfoCmd(),
	)

	root.Version = Version
	root.SetVersionTemplate(fmt.Sprintf("tracehookctl %s\n", Version))

	return root
}

// openRegistry resolves the secret and registry path from flags over
// config and returns a registry handle.
func openRegistry() *registry.Registry {
	cfg := config.Get()
	secret := secretKey
	if secret == "" {
		secret = cfg.TokenSecret
	}
	path := tokensFile
	if path == "" {
		path = cfg.TokensFile
	}
	return registry.New(secret, path)
}

// preview shortens a token for display. Full tokens are only printed
// at generation time.
func preview(token string) string {
	if len(token) > 22 {
		return token[:22] + "..."
	}
	return token + "..."
}

func newGenerateCmd() *cobra.Command {
	var scopesFlag string

	cmd := &cobra.Command{
		Use:   "generate <user_id>",
		Short: "Generate a new token for a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID := args[0]

			var scopes []string
			if scopesFlag != "" {
				for _, s := range strings.Split(scopesFlag, ",") {
					if s = strings.TrimSpace(s); s != "" {
						scopes = append(scopes, s)
					}
				}
			}

			reg := openRegistry()
			token, err := reg.Generate(userID, scopes)
			if err != nil {
				return fmt.Errorf("generate token: %w", err)
			}

			if scopes == nil {
				scopes = models.DefaultScopes
			}
			fmt.Printf("\nToken generated for %s\n", userID)
			fmt.Printf("\nToken:  %s\n", token)
			fmt.Printf("Scopes: %s\n", strings.Join(scopes, ", "))
			fmt.Printf("\nShare this token securely with %s. They should add it to their environment:\n", userID)
			fmt.Printf("\n  export TRACEHOOK_TOKEN=%q\n\n", token)
			return nil
		},
	}

	cmd.Flags().StringVar(&scopesFlag, "scopes", "", `Comma-separated scopes (default "usage:write")`)

	return cmd
}

func newRevokeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "revoke <token>",
		Short: "Revoke an existing token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reg := openRegistry()
			revoked, err := reg.Revoke(args[0])
			if err != nil {
				return fmt.Errorf("revoke token: %w", err)
			}
			if !revoked {
				return fmt.Errorf("token not found: %s", preview(args[0]))
			}
			fmt.Printf("Token revoked: %s\n", preview(args[0]))
			return nil
		},
	}
}

func newListCmd() *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List issued tokens",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			reg := openRegistry()
			tokens := reg.List(all)

			if len(tokens) == 0 {
				fmt.Println("No tokens found.")
				if !all {
					fmt.Println("Use --all to include revoked tokens.")
				}
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "TOKEN\tUSER\tSCOPES\tSTATUS\tCREATED")
			for _, t := range tokens {
				status := "active"
				if t.Revoked {
					status = "revoked"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
					preview(t.Token), t.UserID, strings.Join(t.Scopes, ","),
					status, t.CreatedAt.Format(time.RFC3339))
			}
			return w.Flush()
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "Include revoked tokens")

	return cmd
}

func newInfoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "info <token>",
		Short: "Show the full registry record for a token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reg := openRegistry()
			rec, ok := reg.Get(args[0])
			if !ok {
				return fmt.Errorf("token not found: %s", preview(args[0]))
			}

			status := "active"
			if rec.Revoked {
				status = "revoked"
			} else if rec.Expired(time.Now()) {
				status = "expired"
			}

			fmt.Printf("Token:   %s\n", preview(args[0]))
			fmt.Printf("User:    %s\n", rec.UserID)
			fmt.Printf("Scopes:  %s\n", strings.Join(rec.Scopes, ", "))
			fmt.Printf("Status:  %s\n", status)
			fmt.Printf("Created: %s\n", rec.CreatedAt.Format(time.RFC3339))
			if rec.RevokedAt != nil {
				fmt.Printf("Revoked: %s\n", rec.RevokedAt.Format(time.RFC3339))
			}
			if rec.ExpiresAt != nil {
				fmt.Printf("Expires: %s\n", rec.ExpiresAt.Format(time.RFC3339))
			}
			return nil
		},
	}
}
