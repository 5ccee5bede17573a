package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"likesync/pkg/config"
	"likesync/pkg/cursor"
	"likesync/pkg/knownposts"
	"likesync/pkg/linksink"
	"likesync/pkg/logger"
	"likesync/pkg/storage"
	"likesync/pkg/twitter"
	"likesync/pkg/ui"
)

var (
	statusUser   string
	statusRecent int
)

// statusCmd represents the status command
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the sync state of a user",
	Long: `Show the stored cursor, counters, known posts and external link count.

Without --user every user directory under the output directory is listed.
A handle is resolved through the API and needs a bearer token; a numeric
id is read from disk only.`,
	Example: `  likesync status
  likesync status -u 12 --recent 20`,
	Args: cobra.NoArgs,
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
	statusCmd.Flags().StringVarP(&statusUser, "user", "u", "", "handle or numeric id")
	statusCmd.Flags().IntVar(&statusRecent, "recent", 5, "number of most recently processed posts to show")
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadConfig(nil)
	if err != nil {
		return err
	}

	if statusUser == "" {
		users, err := listUsers(cfg.Output.BaseDirectory)
		if err != nil {
			return err
		}
		if len(users) == 0 {
			ui.PrintWarning("No synced users under " + cfg.Output.BaseDirectory)
			return nil
		}
		for _, id := range users {
			if err := printStatus(cfg, id, 0, log); err != nil {
				ui.PrintError("Failed to read state of "+id, err)
			}
		}
		return nil
	}

	userID := twitter.SanitizeUsername(statusUser)
	if !twitter.IsNumericID(userID) {
		token, err := resolveToken(profileName)
		if err != nil {
			return err
		}
		client := twitter.NewClient(twitter.Options{
			BaseURL:     cfg.Twitter.APIBaseURL,
			BearerToken: token,
			UserAgent:   cfg.Twitter.UserAgent,
			Logger:      log,
		})
		user, err := client.LookupUser(context.Background(), userID)
		if err != nil {
			return fmt.Errorf("failed to resolve @%s: %w", userID, err)
		}
		userID = user.ID
	}

	return printStatus(cfg, userID, statusRecent, log)
}

// listUsers returns the numeric user directories under base
func listUsers(base string) ([]string, error) {
	entries, err := os.ReadDir(base)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", base, err)
	}

	var users []string
	for _, e := range entries {
		if e.IsDir() && twitter.IsNumericID(e.Name()) {
			users = append(users, e.Name())
		}
	}
	sort.Strings(users)
	return users, nil
}

// printStatus prints the durable state of one user without modifying it
func printStatus(cfg *config.Config, userID string, recent int, log logger.Logger) error {
	layout, err := storage.NewLayout(cfg.Output.BaseDirectory, userID)
	if err != nil {
		return err
	}
	if _, err := os.Stat(layout.Root()); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			ui.PrintWarning("No state for user " + userID)
			return nil
		}
		return err
	}

	cur := cursor.NewManager(layout.CursorPath(), log)
	state, err := cur.Load(userID)
	if err != nil {
		return err
	}

	ui.PrintHighlight("User " + userID)
	ui.PrintInfo("Directory", layout.Root())
	ui.PrintInfo("Next page", describeToken(state))
	if !state.UpdatedAt.IsZero() {
		ui.PrintInfo("Last commit", state.UpdatedAt.Local().Format("2006-01-02 15:04:05"))
	}
	printCounters(state.Counters)

	store, err := knownposts.Open(cfg.Store, layout, log)
	if err != nil {
		return err
	}
	defer store.Close()

	stats := store.Stats()
	ui.PrintInfo("Known posts", fmt.Sprintf("%d (%s)", stats.Identifiers, stats.Backend))
	if len(stats.Shards) > 0 {
		parts := make([]string, 0, len(stats.Shards))
		for _, sh := range stats.Shards {
			parts = append(parts, fmt.Sprintf("%s=%d", sh.File, sh.Count))
		}
		ui.PrintInfo("Shards", strings.Join(parts, " "))
	}

	if recent > 0 {
		ids, err := store.Recent(recent)
		if err != nil {
			return err
		}
		for _, id := range ids {
			fmt.Fprintf(ui.Output, "  %s\n", twitter.GetPostURL("", id))
		}
	}

	links, err := linksink.New(layout.ExternalLinksPath()).Lines()
	if err != nil {
		return err
	}
	ui.PrintInfo("External links", fmt.Sprint(len(links)))
	return nil
}

func describeToken(state cursor.State) string {
	if state.IsComplete() {
		return "none, last pass completed (next run starts from the newest like)"
	}
	if token, ok := state.Token(); ok {
		return token
	}
	return "newest like"
}

func printCounters(c cursor.Counters) {
	ui.PrintInfo("Liked posts seen", fmt.Sprint(c.TotalLikedSeen))
	ui.PrintInfo("Images downloaded", fmt.Sprint(c.ImagesDownloaded))
	ui.PrintInfo("External URLs", fmt.Sprint(c.NonNativeURLCount))
	ui.PrintInfo("API requests", fmt.Sprint(c.APIRequestsMade))
}
