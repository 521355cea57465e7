// SPDX-FileCopyrightText: Copyright 2026 Grantly Authors
// SPDX-License-Identifier: Apache-2.0

package app

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/grantly-io/grantly/pkg/ids"
	"github.com/grantly-io/grantly/pkg/oauth"
)

func newClientCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "client",
		Short: "Manage OAuth client registrations",
	}
	cmd.AddCommand(newClientNewCmd())
	return cmd
}

func newClientNewCmd() *cobra.Command {
	var (
		confidential    bool
		redirectURIs    []string
		allowedScopes   []string
		grantTypes      []string
		requiresConsent bool
	)

	cmd := &cobra.Command{
		Use:   "new",
		Short: "Generate a client registration",
		Long: `Generate an OAuth client entry for the clients file. Confidential clients
get a random secret, printed once to stderr; only its hash is stored.`,
		RunE: func(_ *cobra.Command, _ []string) error {
			seed := clientSeed{
				ID:              ids.New(),
				Type:            string(oauth.ClientPublic),
				RedirectURIs:    redirectURIs,
				AllowedScopes:   allowedScopes,
				GrantTypes:      grantTypes,
				RequiresConsent: requiresConsent,
			}

			if confidential {
				secret, err := newClientSecret()
				if err != nil {
					return err
				}
				hash, err := oauth.HashClientSecret(secret)
				if err != nil {
					return fmt.Errorf("failed to hash client secret: %w", err)
				}
				seed.Type = string(oauth.ClientConfidential)
				seed.SecretHash = hash
				fmt.Fprintf(os.Stderr, "client_secret (store it now, it is not recoverable): %s\n", secret)
			}

			out, err := json.MarshalIndent(seed, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(out))
			return nil
		},
	}

	cmd.Flags().BoolVar(&confidential, "confidential", false, "Issue a client secret")
	cmd.Flags().StringSliceVar(&redirectURIs, "redirect-uri", nil, "Allowed redirect URI (repeatable, matched exactly)")
	cmd.Flags().StringSliceVar(&allowedScopes, "scope", nil, "Allowed scope (repeatable)")
	cmd.Flags().StringSliceVar(&grantTypes, "grant-type", []string{string(oauth.GrantAuthorizationCode), string(oauth.GrantRefreshToken)}, "Allowed grant type (repeatable)")
	cmd.Flags().BoolVar(&requiresConsent, "requires-consent", false, "Force an explicit consent step")

	return cmd
}

func newClientSecret() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate client secret: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
