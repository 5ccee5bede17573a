package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"likesync/pkg/auth"
	"likesync/pkg/ui"
)

// authCmd represents the auth command
var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manage the API bearer token",
	Long: `Manage stored bearer tokens.

Tokens are stored using:
  - System keychain (when available)
  - Encrypted file with PBKDF2 key derivation

and are also read from LIKESYNC_BEARER_TOKEN, TWITTER_BEARER_TOKEN and a
creds.json in the working directory.`,
}

// loginCmd represents the auth login command
var loginCmd = &cobra.Command{
	Use:   "login [profile]",
	Short: "Store a bearer token securely",
	Example: `  # Store the default token
  likesync auth login

  # Store a second token under a profile name
  likesync auth login work`,
	Args: cobra.MaximumNArgs(1),
	RunE: runLogin,
}

// logoutCmd represents the auth logout command
var logoutCmd = &cobra.Command{
	Use:   "logout [profile]",
	Short: "Remove a stored bearer token",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runLogout,
}

// authStatusCmd represents the auth status command
var authStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show stored tokens and the one sync would use",
	Args:  cobra.NoArgs,
	RunE:  runAuthStatus,
}

func init() {
	rootCmd.AddCommand(authCmd)
	authCmd.AddCommand(loginCmd)
	authCmd.AddCommand(logoutCmd)
	authCmd.AddCommand(authStatusCmd)
}

func profileArg(args []string) string {
	if len(args) > 0 {
		return args[0]
	}
	return auth.DefaultProfile
}

func runLogin(cmd *cobra.Command, args []string) error {
	manager, err := auth.NewManager()
	if err != nil {
		return fmt.Errorf("failed to initialize credential manager: %w", err)
	}
	profile := profileArg(args)
	reader := bufio.NewReader(os.Stdin)

	auth.ShowTokenGuide(os.Stdout)

	if existing, _ := manager.Retrieve(profile); existing != nil {
		fmt.Printf("\nA token for '%s' already exists. Replace it? (y/N): ", profile)
		input, _ := reader.ReadString('\n')
		if !strings.HasPrefix(strings.ToLower(strings.TrimSpace(input)), "y") {
			return nil
		}
	}

	fmt.Print("\nBearer token (input is hidden): ")
	token, err := readPassword(reader)
	if err != nil {
		return fmt.Errorf("failed to read token: %w", err)
	}
	if len(token) < 20 || strings.ContainsAny(token, " \t") {
		return fmt.Errorf("that does not look like a bearer token")
	}

	if err := manager.Store(&auth.Credential{Profile: profile, BearerToken: token}); err != nil {
		return err
	}

	ui.PrintSuccess(fmt.Sprintf("Token saved for profile '%s': %s", profile, auth.MaskToken(token)))
	if profile != auth.DefaultProfile {
		fmt.Printf("\nUse it with:\n  likesync sync -u <user> --profile %s\n", profile)
	}
	return nil
}

func runLogout(cmd *cobra.Command, args []string) error {
	manager, err := auth.NewManager()
	if err != nil {
		return fmt.Errorf("failed to initialize credential manager: %w", err)
	}

	profile := profileArg(args)
	if err := manager.Delete(profile); err != nil {
		return err
	}
	ui.PrintSuccess("Token removed: " + profile)
	return nil
}

func runAuthStatus(cmd *cobra.Command, args []string) error {
	manager, err := auth.NewManager()
	if err != nil {
		return fmt.Errorf("failed to initialize credential manager: %w", err)
	}

	creds, err := manager.List()
	if err != nil {
		return err
	}
	if len(creds) == 0 {
		ui.PrintWarning("No bearer token found. Run 'likesync auth login'")
		return nil
	}

	ui.PrintHighlight("Stored tokens")
	for _, cred := range creds {
		sanitized := auth.SanitizeCredential(cred)
		ui.PrintInfo(sanitized.Profile, sanitized.BearerToken)
	}

	if active, err := manager.RetrieveDefault(); err == nil {
		ui.PrintInfo("Used by sync", auth.MaskToken(active.BearerToken))
	}
	return nil
}

// readPassword reads a secret from stdin without echoing when stdin is a
// terminal
func readPassword(reader *bufio.Reader) (string, error) {
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		secret, err := term.ReadPassword(fd)
		fmt.Println()
		if err == nil {
			return strings.TrimSpace(string(secret)), nil
		}
	}

	input, err := reader.ReadString('\n')
	if err != nil && input == "" {
		return "", err
	}
	return strings.TrimSpace(input), nil
}
