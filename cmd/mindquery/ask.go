package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/KANCHARLABRUNDARIKA/KnowledgeBased-MindQuery/internal/models"
)

var (
	askMode     string
	showSources bool
)

var askCmd = &cobra.Command{
	Use:   "ask QUESTION",
	Short: "Answer one question from the knowledge bases",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		mode, err := models.ParseMode(askMode)
		if err != nil {
			return err
		}
		user := userID
		if mode.NeedsUser() {
			if user, err = requireUser(); err != nil {
				return err
			}
		}

		a, err := newApp(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		spinner := getSpinner(" Thinking...")
		answer, err := a.svc.AskQuestion(cmd.Context(), user, strings.Join(args, " "), mode)
		_ = spinner.Finish()
		if err != nil {
			return err
		}
		printAnswer(answer, showSources)
		return nil
	},
}

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Chat with your knowledge base interactively",
	Long: `Starts an interactive session. Paste a link to crawl it into your
knowledge base. Commands: /mode personal|combined|default, /stats, /list, exit.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		mode, err := models.ParseMode(askMode)
		if err != nil {
			return err
		}
		user := sessionUser()

		a, err := newApp(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		return runChat(cmd.Context(), a, user, mode)
	},
}

var urlRegex = regexp.MustCompile(`https?://[^\s]+`)

func runChat(ctx context.Context, a *app, user string, mode models.Mode) error {
	color.Cyan("\nChat with your knowledge base as %s in %s mode (type 'exit' to quit)", user, mode)

	scanner := bufio.NewScanner(os.Stdin)
	userPrompt := color.New(color.FgGreen).PrintfFunc()

	for {
		userPrompt("\nYou: ")
		if !scanner.Scan() {
			return scanner.Err()
		}
		if ctx.Err() != nil {
			return nil
		}

		query := strings.TrimSpace(scanner.Text())
		switch {
		case query == "":
			continue
		case strings.EqualFold(query, "exit"):
			return nil
		case strings.HasPrefix(query, "/"):
			if next, ok := chatCommand(ctx, a, user, mode, query); ok {
				mode = next
			}
			continue
		}

		if url := urlRegex.FindString(query); url != "" {
			color.Blue("\nDetected URL: %s", url)
			bar := getProgressBar(-1, " Scraping pages")
			result, err := a.svc.IngestURL(ctx, user, url, barProgress(bar, " Scraping pages", " Storing pages"))
			_ = bar.Finish()
			if err != nil {
				color.Red("\nFailed to ingest URL: %v", err)
				continue
			}
			color.Green("\n✓ Stored %d pages as %d chunks", result.Documents, result.Chunks)
			if query == url {
				continue
			}
		}

		spinner := getSpinner(" Searching knowledge base...")
		answer, err := a.svc.AskQuestion(ctx, user, query, mode)
		_ = spinner.Finish()
		if err != nil {
			color.Red("\nError: %v", err)
			continue
		}
		printAnswer(answer, true)
	}
}

// chatCommand runs a slash command and reports a changed mode, if any.
func chatCommand(ctx context.Context, a *app, user string, mode models.Mode, line string) (models.Mode, bool) {
	fields := strings.Fields(line)
	switch fields[0] {
	case "/mode":
		if len(fields) != 2 {
			color.Yellow("current mode: %s", mode)
			return mode, false
		}
		next, err := models.ParseMode(fields[1])
		if err != nil {
			color.Red("%v", err)
			return mode, false
		}
		color.Green("mode set to %s", next)
		return next, true
	case "/stats":
		stats, err := a.svc.GetStats(ctx, user)
		if err != nil {
			color.Red("%v", err)
			return mode, false
		}
		printStats(stats)
	case "/list":
		result, err := a.svc.ListDocuments(ctx, user)
		if err != nil {
			color.Red("%v", err)
			return mode, false
		}
		printDocuments(result)
	default:
		fmt.Println("commands: /mode [personal|combined|default], /stats, /list, exit")
	}
	return mode, false
}

func init() {
	for _, c := range []*cobra.Command{askCmd, chatCmd} {
		c.Flags().StringVarP(&askMode, "mode", "m", string(models.ModePersonal), "personal, combined or default")
	}
	askCmd.Flags().BoolVarP(&showSources, "sources", "s", false, "print the sources of the answer")
	rootCmd.AddCommand(askCmd, chatCmd)
}
