package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"likesync/pkg/auth"
	"likesync/pkg/config"
	"likesync/pkg/logger"
	"likesync/pkg/metrics"
	"likesync/pkg/ratelimit"
	"likesync/pkg/syncer"
	"likesync/pkg/twitter"
	"likesync/pkg/ui"
)

var (
	// Sync command flags
	syncUser        string
	syncFolder      string
	syncPageToken   string
	ignoreProcessed bool
	verbose         bool
	maxRequests     int
	stopAtKnown     bool
	concurrent      int
	storeBackend    string
	metricsFile     string
	profileName     string
)

// syncCmd represents the sync command
var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Download the liked posts of a user",
	Long: `Sync the liked posts of a user, newest first.

Images hosted on the platform are saved as
  (<author>)[twitter]<media id>_<YYYYMMDD>.<ext>
and posts without one have their URL appended to external_urls.txt.

The bearer token is taken from, in order:
  - LIKESYNC_BEARER_TOKEN or TWITTER_BEARER_TOKEN
  - the stored profile (see 'likesync auth login')
  - creds.json in the working directory`,
	Example: `  # Sync by handle
  likesync sync -u jack

  # Sync by numeric id into a custom folder
  likesync sync -u 12 -f likes

  # Re-download images of posts that were already processed
  likesync sync -u jack -i

  # Daily incremental run: stop at the first page with a known post
  likesync sync -u jack --stop-at-known --max-requests 5`,
	Args: cobra.NoArgs,
	RunE: runSync,
}

func init() {
	rootCmd.AddCommand(syncCmd)

	syncCmd.Flags().StringVarP(&syncUser, "user", "u", "", "handle or numeric id of the user whose likes to sync (required)")
	syncCmd.Flags().StringVarP(&syncFolder, "folder", "f", "", "images folder inside the user directory (default \"downloaded images\")")
	syncCmd.Flags().StringVarP(&syncPageToken, "page-token", "p", "", "start at this pagination token instead of the stored one")
	syncCmd.Flags().BoolVarP(&ignoreProcessed, "ignore-processed", "i", false, "download images of already processed posts again")
	syncCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "log every post and switch to debug logging")
	syncCmd.Flags().IntVar(&maxRequests, "max-requests", 0, "API requests allowed this run (0 = unlimited)")
	syncCmd.Flags().BoolVar(&stopAtKnown, "stop-at-known", false, "stop after the first page containing an already processed post")
	syncCmd.Flags().IntVar(&concurrent, "concurrent", 3, "number of concurrent downloads")
	syncCmd.Flags().StringVar(&storeBackend, "store", "", "known posts backend (shards, sqlite)")
	syncCmd.Flags().StringVar(&metricsFile, "metrics-file", "", "write Prometheus metrics to this file after the run")
	syncCmd.Flags().StringVar(&profileName, "profile", "", "stored credential profile to use")
	_ = syncCmd.MarkFlagRequired("user")
}

// syncFlagOverrides collects the sync flags that override config values
func syncFlagOverrides(cmd *cobra.Command) map[string]interface{} {
	flags := make(map[string]interface{})
	if cmd.Flags().Changed("max-requests") {
		flags["max-requests"] = maxRequests
	}
	if cmd.Flags().Changed("concurrent") {
		flags["concurrent"] = concurrent
	}
	if storeBackend != "" {
		flags["store"] = storeBackend
	}
	if metricsFile != "" {
		flags["metrics-file"] = metricsFile
	}
	if verbose {
		flags["verbose"] = true
	}
	return flags
}

func runSync(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadConfig(syncFlagOverrides(cmd))
	if err != nil {
		return err
	}

	token, err := resolveToken(profileName)
	if err != nil {
		return err
	}

	if !quiet {
		ui.PrintLogo()
	}
	ui.PrintInfo("Target user", syncUser)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts := syncer.Options{
		User:            syncUser,
		Folder:          syncFolder,
		PageToken:       syncPageToken,
		IgnoreProcessed: ignoreProcessed,
		Verbose:         verbose,
		StopAtKnown:     stopAtKnown,
	}

	result, err := executeSync(ctx, cfg, token, opts, log)
	ui.PrintSummary(result)

	if errors.Is(err, context.Canceled) {
		ui.PrintWarning("Interrupted; committed pages are saved and the next run resumes from there")
		return nil
	}
	return err
}

// executeSync wires the API client, progress output, notifications and
// metrics around one syncer run
func executeSync(ctx context.Context, cfg *config.Config, token string, opts syncer.Options, log logger.Logger) (*syncer.Result, error) {
	client := twitter.NewClient(twitter.Options{
		BaseURL:     cfg.Twitter.APIBaseURL,
		BearerToken: token,
		UserAgent:   cfg.Twitter.UserAgent,
		Limiter:     ratelimit.NewSlidingWindow(cfg.RateLimit.RequestsPerWindow, cfg.RateLimit.Window),
		Logger:      log,
	})

	budget := opts.MaxRequests
	if budget == 0 {
		budget = cfg.RateLimit.MaxRequestsPerRun
	}
	tracker := ui.NewStatusTracker(budget)
	hooks := []syncer.Hooks{tracker.Hooks(!quiet)}

	var recorder *metrics.Recorder
	if cfg.Metrics.Textfile != "" {
		recorder = metrics.New(opts.User)
		hooks = append(hooks, recorder.Hooks())
	}

	s := syncer.New(cfg, client, log)
	s.SetHooks(syncer.MergeHooks(hooks...))

	result, err := s.Run(ctx, opts)

	ui.NewNotifier(cfg.Notifications).NotifyResult(result, err)

	if recorder != nil {
		recorder.ObserveResult(result, time.Now())
		if werr := recorder.WriteTextfile(cfg.Metrics.Textfile); werr != nil {
			log.WithError(werr).Warn("Failed to write metrics")
		}
	}

	return result, err
}

// resolveToken finds the bearer token for profile, or the default one
func resolveToken(profile string) (string, error) {
	manager, err := auth.NewManager()
	if err != nil {
		return "", fmt.Errorf("failed to initialize credential manager: %w", err)
	}

	var cred *auth.Credential
	if profile != "" {
		cred, err = manager.Retrieve(profile)
	} else {
		cred, err = manager.RetrieveDefault()
	}
	if err != nil {
		return "", fmt.Errorf("no bearer token found (run 'likesync auth login' or set %s): %w",
			auth.TokenEnvVars[0], err)
	}
	return cred.BearerToken, nil
}
