package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/TobiSchelling/noticeflow/internal/config"
	"github.com/TobiSchelling/noticeflow/internal/logging"
	"github.com/TobiSchelling/noticeflow/internal/notice"
	"github.com/TobiSchelling/noticeflow/internal/pipeline"
	"github.com/TobiSchelling/noticeflow/internal/scheduler"
	"github.com/TobiSchelling/noticeflow/internal/server"
)

var version = "dev"

var (
	verbose    bool
	configPath string
	cfg        *config.Config
	logCloser  io.Closer
)

var (
	bold  = color.New(color.Bold).SprintFunc()
	green = color.New(color.FgGreen).SprintFunc()
	red   = color.New(color.FgRed).SprintFunc()
	dim   = color.New(color.Faint).SprintFunc()
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "noticeflow",
	Short:   "Notice summaries delivered to subscribers",
	Long:    "noticeflow discovers new notices on configured sources, summarizes them and mails the summaries to subscribers.",
	Version: version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Skip config loading for init and version
		if cmd.Name() == "init" || cmd.Name() == "version" {
			return nil
		}

		path, err := config.ResolveConfigPath(configPath)
		if err != nil {
			return err
		}
		cfg, err = config.Load(path)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		if errs := cfg.Validate(); len(errs) > 0 {
			msgs := make([]string, len(errs))
			for i, e := range errs {
				msgs[i] = "  " + e.Error()
			}
			return fmt.Errorf("invalid config %s:\n%s", path, strings.Join(msgs, "\n"))
		}

		_, logCloser = logging.Setup(cfg.Logging, verbose)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logCloser != nil {
			logCloser.Close()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config file")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(sourcesCmd)
	rootCmd.AddCommand(subscribersCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("noticeflow", version)
	},
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration in ~/.config/noticeflow/",
	RunE: func(cmd *cobra.Command, args []string) error {
		target := filepath.Join(config.ConfigDir(), "config.yaml")
		if _, err := os.Stat(target); err == nil {
			fmt.Printf("Config already exists: %s\n", target)
			return nil
		}

		if err := os.MkdirAll(config.ConfigDir(), 0o755); err != nil {
			return fmt.Errorf("creating config directory: %w", err)
		}

		if err := os.WriteFile(target, config.DefaultConfigYAML, 0o644); err != nil {
			return fmt.Errorf("writing config: %w", err)
		}

		fmt.Printf("Created config: %s\n", target)
		fmt.Println("Put GOOGLE_API_KEY, EMAIL_ADDRESS and EMAIL_PASSWORD in a .env file next to it.")
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show database and system status",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		stats, err := st.GetStats(ctx)
		if err != nil {
			return fmt.Errorf("getting stats: %w", err)
		}

		fmt.Printf("Store: %s\n\n", storeLocation())
		fmt.Println(bold("Notices:"))
		fmt.Printf("  Sources: %d\n", stats.Sources)
		fmt.Printf("  Stored: %d\n", stats.Notices)
		fmt.Printf("  Summarized: %s\n", green(stats.Summarized))
		fmt.Printf("  Summary failures: %s\n", red(stats.SummaryFailures))
		fmt.Println(bold("\nSubscribers:"))
		fmt.Printf("  Total: %d\n", stats.Subscribers)
		fmt.Printf("  Active subscriptions: %d\n", stats.ActiveSubscriptions)
		fmt.Println(bold("\nRuns:"))
		fmt.Printf("  Recorded: %d\n", stats.Runs)

		runs, err := st.RecentRuns(ctx, 1)
		if err == nil && len(runs) > 0 {
			last := runs[0]
			fmt.Printf("  Last: %s %s\n", last.StartedAt.Local().Format("2006-01-02 15:04"),
				dim(fmt.Sprintf("(%d fetched, %d delivered)", last.Fetched, last.Delivered)))
		}

		fmt.Println(bold("\nSummarization:"))
		fmt.Printf("  Provider: %s (%s)\n", cfg.Summarization.Provider, cfg.Summarization.Model)
		fmt.Printf("  OCR: %t\n", cfg.Processing.OCR.Enabled)
		return nil
	},
}

// --- run command ---

var (
	dryRun   bool
	sourceID int64
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run once: discover -> fetch -> store -> process -> distribute",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		pipe, err := pipeline.New(cfg, st)
		if err != nil {
			return err
		}

		var result *pipeline.Result
		if dryRun {
			result = pipe.DryRun(ctx, sourceID)
		} else {
			result = pipe.Run(ctx, sourceID)
		}

		for i, step := range result.Steps {
			fmt.Printf("\nStep %d/%d: %s\n", i+1, len(result.Steps), bold(step.Name))
			if step.Err != nil {
				fmt.Printf("  %s %v\n", red("Error:"), step.Err)
			} else {
				fmt.Printf("  %s\n", step.Summary)
			}
		}

		if !dryRun {
			fmt.Printf("\n%s run %s\n", green("Run complete!"), dim(result.Run.ID))
		}
		return nil
	},
}

func init() {
	runCmd.Flags().BoolVar(&dryRun, "dry-run", false, "Show what would be done without fetching or sending")
	runCmd.Flags().Int64Var(&sourceID, "source", 0, "Limit the run to one source ID")
}

// --- serve command ---

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run daily on schedule and serve status endpoints",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		pipe, err := pipeline.New(cfg, st)
		if err != nil {
			return err
		}

		sched, err := scheduler.New(cfg.Schedule, func(ctx context.Context) {
			if err := pipe.Run(ctx, 0).Err(); err != nil {
				slog.Error("scheduled run finished with errors", "err", err)
			}
		})
		if err != nil {
			return err
		}
		sched.Start()
		defer sched.Stop()

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}
		fmt.Printf("Daily run at %s %s, next %s\n", cfg.Schedule.Time, cfg.Schedule.Timezone,
			sched.Next().Format("2006-01-02 15:04 MST"))
		fmt.Printf("Status at http://localhost:%d/api/stats\n", port)
		fmt.Println("Press Ctrl+C to stop")
		return server.Serve(ctx, st, port)
	},
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "Port to run server on (default from config)")
}

// --- stats command ---

var statsDays int

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show delivery statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		s, err := st.DeliveryStats(ctx, statsDays)
		if err != nil {
			return err
		}

		fmt.Println(bold(fmt.Sprintf("Deliveries, last %d days:", statsDays)))
		fmt.Printf("  Sends: %d\n", s.TotalSends)
		fmt.Printf("  Recipients: %d\n", s.TotalRecipients)
		fmt.Printf("  Succeeded: %s\n", green(s.SuccessfulSends))
		fmt.Printf("  Failed: %s\n", red(s.FailedSends))
		fmt.Printf("  Success rate: %.1f%%\n", s.SuccessRate)
		return nil
	},
}

func init() {
	statsCmd.Flags().IntVar(&statsDays, "days", 7, "Window in days")
}

// --- sources command ---

var sourcesCmd = &cobra.Command{
	Use:   "sources",
	Short: "Manage notice sources",
}

var sourcesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all sources",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		sources, err := st.Sources(ctx)
		if err != nil {
			return err
		}
		if len(sources) == 0 {
			fmt.Println("No sources defined. Add one with: noticeflow sources add")
			return nil
		}

		fmt.Println("Sources:")
		fmt.Println()
		for _, s := range sources {
			fmt.Printf("  [%d] %s\n", s.ID, bold(s.Title))
			if s.FeedURL != "" {
				fmt.Printf("        feed: %s\n", s.FeedURL)
			} else {
				fmt.Printf("        %s %s\n", s.URL, dim(s.LinkSelector))
			}
		}
		return nil
	},
}

var newSource notice.Source

var sourcesAddCmd = &cobra.Command{
	Use:   "add [title] [url]",
	Short: "Add a source",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if newSource.LinkSelector == "" && newSource.FeedURL == "" {
			return errors.New("either --link-selector or --feed-url is required")
		}
		ctx := cmd.Context()
		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		src := newSource
		src.Title, src.URL = args[0], args[1]
		id, err := st.AddSource(ctx, src)
		if err != nil {
			return err
		}
		fmt.Printf("Added source [%d]: %s\n", id, src.Title)
		return nil
	},
}

var sourcesRemoveCmd = &cobra.Command{
	Use:   "remove [id]",
	Short: "Remove a source with its notices and subscriptions",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		src, err := st.Source(ctx, id)
		if err != nil {
			return err
		}
		if err := st.RemoveSource(ctx, id); err != nil {
			return err
		}
		fmt.Printf("Removed source [%d]: %s\n", id, src.Title)
		return nil
	},
}

func init() {
	sourcesAddCmd.Flags().StringVar(&newSource.LinkSelector, "link-selector", "", "CSS selector for notice links on the list page")
	sourcesAddCmd.Flags().StringVar(&newSource.ContentSelector, "content-selector", "", "CSS selector for the notice body")
	sourcesAddCmd.Flags().StringVar(&newSource.FeedURL, "feed-url", "", "RSS/Atom feed URL instead of a list page")

	sourcesCmd.AddCommand(sourcesListCmd)
	sourcesCmd.AddCommand(sourcesAddCmd)
	sourcesCmd.AddCommand(sourcesRemoveCmd)
}

// --- subscribers command ---

var subscribersCmd = &cobra.Command{
	Use:   "subscribers",
	Short: "Manage subscribers",
}

var subscribersListCmd = &cobra.Command{
	Use:   "list",
	Short: "List subscribers and their sources",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		subs, err := st.ListSubscribers(ctx)
		if err != nil {
			return err
		}
		if len(subs) == 0 {
			fmt.Println("No subscribers. Add one with: noticeflow subscribers add")
			return nil
		}
		for _, s := range subs {
			icon := "*"
			if !s.EmailNotifications {
				icon = " "
			}
			ids := make([]string, len(s.Sources))
			for i, id := range s.Sources {
				ids[i] = strconv.FormatInt(id, 10)
			}
			fmt.Printf("  [%d] %s %s %s\n", s.ID, icon, s.Email, dim("sources: "+strings.Join(ids, ",")))
		}
		return nil
	},
}

var subscribersAddCmd = &cobra.Command{
	Use:   "add [email]",
	Short: "Add a subscriber",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		id, err := st.AddSubscriber(ctx, args[0])
		if err != nil {
			return err
		}
		fmt.Printf("Subscriber [%d]: %s\n", id, args[0])
		return nil
	},
}

var subscribersSubscribeCmd = &cobra.Command{
	Use:   "subscribe [email] [source-id]",
	Short: "Subscribe an email to a source",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		sourceID, err := parseID(args[1])
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		src, err := st.Source(ctx, sourceID)
		if err != nil {
			return err
		}
		subID, err := st.AddSubscriber(ctx, args[0])
		if err != nil {
			return err
		}
		if err := st.Subscribe(ctx, subID, sourceID); err != nil {
			return err
		}
		fmt.Printf("%s now receives %s\n", args[0], src.Title)
		return nil
	},
}

var subscribersUnsubscribeCmd = &cobra.Command{
	Use:   "unsubscribe [email] [source-id]",
	Short: "Stop sending a source to an email",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		sourceID, err := parseID(args[1])
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		sub, err := st.Subscriber(ctx, args[0])
		if err != nil {
			return err
		}
		if err := st.Unsubscribe(ctx, sub.ID, sourceID); err != nil {
			return err
		}
		fmt.Printf("%s unsubscribed from source %d\n", args[0], sourceID)
		return nil
	},
}

var subscribersNotifyCmd = &cobra.Command{
	Use:       "notifications [email] [on|off]",
	Short:     "Turn all mail for a subscriber on or off",
	Args:      cobra.ExactArgs(2),
	ValidArgs: []string{"on", "off"},
	RunE: func(cmd *cobra.Command, args []string) error {
		var enabled bool
		switch args[1] {
		case "on":
			enabled = true
		case "off":
		default:
			return fmt.Errorf("expected on or off, got %q", args[1])
		}
		ctx := cmd.Context()
		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		sub, err := st.Subscriber(ctx, args[0])
		if err != nil {
			return err
		}
		if err := st.SetEmailNotifications(ctx, sub.ID, enabled); err != nil {
			return err
		}
		fmt.Printf("Notifications for %s: %s\n", args[0], args[1])
		return nil
	},
}

func init() {
	subscribersCmd.AddCommand(subscribersListCmd)
	subscribersCmd.AddCommand(subscribersAddCmd)
	subscribersCmd.AddCommand(subscribersSubscribeCmd)
	subscribersCmd.AddCommand(subscribersUnsubscribeCmd)
	subscribersCmd.AddCommand(subscribersNotifyCmd)
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid ID: %s", s)
	}
	return id, nil
}
