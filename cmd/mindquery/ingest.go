package main

import (
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/KANCHARLABRUNDARIKA/KnowledgeBased-MindQuery/pkg/watcher"
)

var seedCmd = &cobra.Command{
	Use:   "seed DIR",
	Short: "Load the .md and .txt files of DIR into the shared default knowledge base",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		bar := getProgressBar(-1, " Seeding default knowledge base")
		result, err := a.svc.SeedDefault(cmd.Context(), args[0], barProgress(bar, " Reading files", " Seeding default knowledge base"))
		_ = bar.Finish()
		if err != nil {
			return err
		}
		color.Green("\n✓ Seeded %d documents as %d chunks", result.Documents, result.Chunks)
		for _, name := range result.Skipped {
			color.Yellow("  skipped %s (no text)", name)
		}
		return nil
	},
}

var crawlCmd = &cobra.Command{
	Use:   "crawl URL",
	Short: "Crawl a site into the user's knowledge base",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		user, err := requireUser()
		if err != nil {
			return err
		}
		a, err := newApp(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		bar := getProgressBar(-1, " Scraping pages")
		result, err := a.svc.IngestURL(cmd.Context(), user, args[0], barProgress(bar, " Scraping pages", " Storing pages"))
		_ = bar.Finish()
		if err != nil {
			return err
		}
		color.Green("\n✓ Stored %d pages as %d chunks", result.Documents, result.Chunks)
		return nil
	},
}

var initialSync bool

var watchCmd = &cobra.Command{
	Use:   "watch DIR",
	Short: "Keep the user's knowledge base in step with a folder",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		user, err := requireUser()
		if err != nil {
			return err
		}
		a, err := newApp(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		w, err := watcher.New(watcher.Config{
			Dir:          args[0],
			UserID:       user,
			DocumentType: documentType,
			InitialSync:  initialSync,
			OnEvent: func(e watcher.Event) {
				if e.Err != nil {
					color.Red("✗ %s %s: %v", e.Op, e.Path, e.Err)
					return
				}
				color.Green("✓ %s %s (%d chunks)", e.Op, e.Path, e.Chunks)
			},
		}, a.svc, a.log)
		if err != nil {
			return err
		}
		defer w.Close()

		color.Cyan("Watching %s for %s (Ctrl+C to stop)", args[0], user)
		return w.Run(cmd.Context())
	},
}

func init() {
	watchCmd.Flags().StringVarP(&documentType, "type", "t", "", "document type tag for uploaded files")
	watchCmd.Flags().BoolVar(&initialSync, "sync", true, "upload the files already in the folder first")
	rootCmd.AddCommand(seedCmd, crawlCmd, watchCmd)
}
