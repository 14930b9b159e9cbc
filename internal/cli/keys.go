package cli

import (
	"encoding/hex"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/toolgate/internal/identity"
	"github.com/ppiankov/toolgate/internal/signing"
)

var (
	keygenOut string
	hashRole  string
	tokenTTL  time.Duration
)

func init() {
	rootCmd.AddCommand(keygenCmd)
	rootCmd.AddCommand(hashKeyCmd)
	rootCmd.AddCommand(tokenCmd)
	keygenCmd.Flags().StringVarP(&keygenOut, "out", "o", signing.DefaultKeyPath(), "Where to write the hex key")
	hashKeyCmd.Flags().StringVar(&hashRole, "role", "analyst", "Role recorded in the directory snippet")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", time.Hour, "Token lifetime")
}

var keygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Generate a ledger signing key",
	Long:  "Writes a random 32-byte key, hex encoded, with owner-only permissions.\nAn existing key file is never overwritten.",
	Args:  cobra.NoArgs,
	RunE:  runKeygen,
}

var hashKeyCmd = &cobra.Command{
	Use:   "hash-key <actor-id>",
	Short: "Generate an API key for an actor",
	Long:  "Prints a new API key once, and the actor directory entry holding its bcrypt hash.\nOnly the hash belongs in the directory file.",
	Args:  cobra.ExactArgs(1),
	RunE:  runHashKey,
}

var tokenCmd = &cobra.Command{
	Use:   "token <actor-id>",
	Short: "Issue a bearer token for an actor in the directory",
	Long:  "Signs an HS256 token with $TOOLGATE_JWT_SECRET for an actor listed in --actors.",
	Args:  cobra.ExactArgs(1),
	RunE:  runToken,
}

func runKeygen(cmd *cobra.Command, args []string) error {
	if keygenOut == "" {
		return fmt.Errorf("--out is required")
	}
	key, err := signing.GenerateKey()
	if err != nil {
		return err
	}
	if err := signing.WriteKey(keygenOut, key); err != nil {
		return err
	}
	fmt.Printf("Created %s\n", keygenOut)
	return nil
}

func runHashKey(cmd *cobra.Command, args []string) error {
	if _, err := parseRoleFlag(hashRole); err != nil {
		return err
	}
	key, hash, err := identity.GenerateAPIKey(args[0])
	if err != nil {
		return err
	}
	fmt.Printf("API key (shown once): %s\n\n", key)
	fmt.Printf("actors:\n  %s:\n    role: %s\n    api_key_hash: %q\n", args[0], hashRole, hash)
	return nil
}

func runToken(cmd *cobra.Command, args []string) error {
	raw := os.Getenv("TOOLGATE_JWT_SECRET")
	if raw == "" {
		return fmt.Errorf("TOOLGATE_JWT_SECRET is unset")
	}
	secret, err := hex.DecodeString(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid TOOLGATE_JWT_SECRET: %w", err)
	}
	dir, err := identity.LoadDirectory(actorsPath)
	if err != nil {
		return err
	}
	actor, ok := dir.Lookup(args[0])
	if !ok {
		return fmt.Errorf("actor %q is not in %s or is disabled", args[0], actorsPath)
	}
	tokens, err := identity.NewJWTAuthenticator(secret, dir)
	if err != nil {
		return err
	}
	token, err := tokens.Issue(actor, tokenTTL)
	if err != nil {
		return err
	}
	fmt.Println(token)
	return nil
}
