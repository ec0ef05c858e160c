// Command issue-token mints a bearer token for the API using the
// configured signing secret. Operators use it to hand out agent and
// admin credentials; the service itself has no login endpoint.
package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/pflag"

	"github.com/spec-kit/sla-ticket-service/internal/auth"
	"github.com/spec-kit/sla-ticket-service/internal/config"
	"github.com/spec-kit/sla-ticket-service/internal/domain"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	var subject, role string
	var ttlMinutes int

	flagSet := pflag.NewFlagSet("issue-token", pflag.ContinueOnError)
	flagSet.StringVar(&subject, "subject", "", "subject id recorded in the token (required)")
	flagSet.StringVar(&role, "role", string(domain.RoleAgent), "role granted: agent or admin")
	flagSet.IntVar(&ttlMinutes, "ttl", 0, "lifetime in minutes (default AUTH_ACCESS_TOKEN_TTL_MINUTES)")
	flagSet.BoolP("help", "h", false, "show help")

	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			printHelp(flagSet)
			return nil
		}
		return err
	}
	if help, _ := flagSet.GetBool("help"); help {
		printHelp(flagSet)
		return nil
	}
	if rest := flagSet.Args(); len(rest) > 0 {
		return fmt.Errorf("unexpected argument: %s", rest[0])
	}
	if subject == "" {
		return errors.New("--subject is required")
	}
	if !domain.Role(role).Valid() {
		return fmt.Errorf("unknown role %q", role)
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if ttlMinutes <= 0 {
		ttlMinutes = cfg.Auth.AccessTokenTTLMinutes
	}

	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, ttlMinutes)
	token, expiresAt, err := tokens.GenerateToken(subject, domain.Role(role))
	if err != nil {
		return err
	}
	fmt.Println(token)
	fmt.Fprintf(os.Stderr, "expires %s\n", expiresAt.UTC().Format(time.RFC3339))
	return nil
}

func printHelp(flagSet *pflag.FlagSet) {
	fmt.Fprintf(os.Stderr, `issue-token mints a signed API token.

Usage:
  issue-token --subject <id> [--role agent|admin] [--ttl minutes]

Flags:
%s`, flagSet.FlagUsages())
}
