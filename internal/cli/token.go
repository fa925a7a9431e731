package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/loyalty/backend/internal/infrastructure/auth"
	"github.com/spf13/cobra"
)

// TokenOptions holds flags for the token command
type TokenOptions struct {
	*RootOptions
	Tenant   string
	User     string
	Username string
	TTL      time.Duration
}

// NewTokenCommand creates the token command
func NewTokenCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TokenOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Sign an API access token for a merchant",
		Long: `Sign an HS256 access token with jwt.secret, for support staff and
integration tests. Production tokens normally come from the identity provider
sharing the secret.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runToken(opts, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&opts.Tenant, "tenant", "", "owner (merchant) ID (required)")
	cmd.Flags().StringVar(&opts.User, "user", "", "user ID to embed")
	cmd.Flags().StringVar(&opts.Username, "username", "", "username to embed")
	cmd.Flags().DurationVar(&opts.TTL, "ttl", time.Hour, "token lifetime")
	_ = cmd.MarkFlagRequired("tenant")
	return cmd
}

func runToken(opts *TokenOptions, w io.Writer) error {
	tenantID, err := uuid.Parse(opts.Tenant)
	if err != nil {
		return fmt.Errorf("invalid --tenant %q", opts.Tenant)
	}
	input := auth.IssueTokenInput{TenantID: tenantID, Username: opts.Username, TTL: opts.TTL}
	if opts.User != "" {
		if input.UserID, err = uuid.Parse(opts.User); err != nil {
			return fmt.Errorf("invalid --user %q", opts.User)
		}
	}

	cfg, _, err := opts.load()
	if err != nil {
		return err
	}
	token, expiresAt, err := auth.NewJWTService(cfg.JWT).IssueToken(input)
	if err != nil {
		return err
	}

	result := struct {
		Token     string    `json:"token"`
		ExpiresAt time.Time `json:"expires_at"`
	}{token, expiresAt}
	return opts.print(w, result, func(w io.Writer) error {
		_, err := fmt.Fprintln(w, token)
		return err
	})
}
