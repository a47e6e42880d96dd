package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/rcliao/element-memory/internal/analyzer"
	"github.com/rcliao/element-memory/internal/browser"
	"github.com/rcliao/element-memory/internal/classifier"
	"github.com/rcliao/element-memory/internal/config"
	"github.com/rcliao/element-memory/internal/extract"
	"github.com/rcliao/element-memory/internal/model"
	"github.com/rcliao/element-memory/internal/site"
	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "analyze <url>",
		Short: "Analyze a page, reusing cached knowledge",
		Long: "Render a page, extract its significant elements and resolve each one against the site's knowledge. " +
			"Cached elements are served from the store; the rest are classified and stored.",
		Args: cobra.ExactArgs(1),
		Run:  runAnalyze,
	}

	cmd.Flags().Bool("fresh", false, "Reclassify every element, replacing stored knowledge")
	cmd.Flags().Bool("cached-only", false, "Only load stored knowledge; never call the classifier")
	cmd.Flags().Int("concurrency", 0, "Elements resolved in parallel (default from config)")
	cmd.Flags().String("snapshot", "", "Read a page snapshot JSON file instead of launching a browser")
	cmd.Flags().String("remote", "", "DevTools URL of a running browser")
	cmd.Flags().Bool("headful", false, "Show the browser window")
	cmd.MarkFlagsMutuallyExclusive("fresh", "cached-only")

	RootCmd.AddCommand(cmd)
}

func runAnalyze(cmd *cobra.Command, args []string) {
	fresh, _ := cmd.Flags().GetBool("fresh")
	cachedOnly, _ := cmd.Flags().GetBool("cached-only")
	concurrency, _ := cmd.Flags().GetInt("concurrency")
	snapshotPath, _ := cmd.Flags().GetString("snapshot")
	remote, _ := cmd.Flags().GetString("remote")
	headful, _ := cmd.Flags().GetBool("headful")

	cfg := loadConfig()
	if concurrency > 0 {
		cfg.Analysis.Concurrency = concurrency
	}
	if remote != "" {
		cfg.Browser.RemoteURL = remote
	}
	if headful {
		cfg.Browser.Headless = false
	}
	if err := cfg.Validate(); err != nil {
		exitErr("config", err)
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	id := parseSite(cfg, args[0])

	s, err := openStore(cfg)
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	cls, err := classifier.New(classifier.Config{
		Provider:    cfg.Classifier.Provider,
		APIKey:      cfg.Classifier.APIKey,
		BaseURL:     cfg.Classifier.BaseURL,
		Model:       cfg.Classifier.Model,
		MaxTokens:   cfg.Classifier.MaxTokens,
		Temperature: cfg.Classifier.Temperature,
		Logger:      slog.Default(),
	})
	if err != nil {
		exitErr("classifier", err)
	}

	var src extract.PageSource
	if snapshotPath != "" {
		src = snapshotFile(snapshotPath)
	} else {
		target, err := site.NavigationURL(args[0])
		if err != nil {
			exitErr("parse url", err)
		}
		page, closeBrowser, err := openBrowserPage(ctx, cfg, target)
		if err != nil {
			exitErr("open page", err)
		}
		defer closeBrowser()
		src = page
	}

	ex := extract.New(extract.Options{
		MinWidth:    cfg.Extract.MinWidth,
		MinHeight:   cfg.Extract.MinHeight,
		MaxElements: cfg.Extract.MaxElements,
		Tolerance:   extract.DefaultOptions().Tolerance,
	})
	seq, err := ex.Extract(ctx, src)
	if err != nil {
		exitErr("extract", err)
	}

	o := analyzer.New(analyzer.Config{Store: s, Classifier: cls, Logger: slog.Default()})

	var report *analyzer.RunReport
	if cachedOnly {
		report, err = o.Replay(ctx, id, seq)
	} else {
		report, err = o.Run(ctx, id, seq, analyzer.RunOptions{
			Fresh:       fresh,
			Concurrency: cfg.Analysis.Concurrency,
		})
	}
	if err != nil {
		exitErr("analyze", err)
	}

	if formatFlag == "text" {
		printReport(report)
		return
	}
	printJSON(report)
}

func openBrowserPage(ctx context.Context, cfg *config.Config, pageURL string) (*browser.Page, func(), error) {
	mgr := browser.NewManager(browser.Config{
		RemoteURL:      cfg.Browser.RemoteURL,
		Headless:       cfg.Browser.Headless,
		Stealth:        cfg.Browser.Stealth,
		Timeout:        cfg.Browser.Timeout,
		BlockResources: cfg.Browser.BlockResources,
		Logger:         slog.Default(),
	})
	if err := mgr.Start(ctx); err != nil {
		return nil, nil, err
	}
	page, err := browser.OpenPage(ctx, mgr, pageURL)
	if err != nil {
		mgr.Close()
		return nil, nil, err
	}
	return page, func() {
		page.Close()
		mgr.Close()
	}, nil
}

// snapshotFile is a PageSource backed by a saved snapshot.
type snapshotFile string

func (f snapshotFile) Snapshot(ctx context.Context) (*extract.Snapshot, error) {
	data, err := os.ReadFile(string(f))
	if err != nil {
		return nil, err
	}
	var snap extract.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("parse snapshot %s: %w", f, err)
	}
	return &snap, nil
}

func printReport(r *analyzer.RunReport) {
	fmt.Println(r.Summary())
	fmt.Printf("site: %s  run: %s  cache hits: %d  llm calls: %d  failures: %d\n",
		r.Site, r.RunID, r.CacheHits, r.LLMCalls, r.Failures)
	for _, res := range r.Results {
		switch {
		case res.Error != "":
			fmt.Printf("  %2d  %-30s  FAILED: %s\n", res.Index, res.Selector, res.Error)
		case res.Knowledge != nil:
			src := "llm"
			if res.Cached {
				src = "cache"
			}
			fmt.Printf("  %2d  %-30s  [%s, %s] %s\n", res.Index, res.Selector,
				src, model.ConfidenceLevel(res.Knowledge.Confidence), res.Knowledge.Understanding)
		}
	}
}
