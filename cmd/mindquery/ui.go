package main

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/schollz/progressbar/v3"

	"github.com/KANCHARLABRUNDARIKA/KnowledgeBased-MindQuery/internal/models"
	"github.com/KANCHARLABRUNDARIKA/KnowledgeBased-MindQuery/internal/types"
)

func getProgressBar(total int, description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(total,
		progressbar.OptionSetDescription(color.BlueString(description)),
		progressbar.OptionSetItsString("items"),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "█",
			SaucerHead:    "█",
			SaucerPadding: "░",
			BarStart:      "[",
			BarEnd:        "]",
		}),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionFullWidth(),
		progressbar.OptionSetRenderBlankState(true),
	)
}

func getSpinner(description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(-1,
		progressbar.OptionSetDescription(color.CyanString(description)),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionSetWidth(20),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetRenderBlankState(true),
	)
}

// barProgress drives a progress bar from ingestion updates. While the total
// is unknown the bar counts up; once it is known the bar is resized.
func barProgress(bar *progressbar.ProgressBar, unknown, known string) types.Progress {
	return func(done, total int, item string) {
		if total < 0 {
			bar.Describe(color.BlueString("%s (%d)", unknown, done))
			_ = bar.Set(done)
			return
		}
		if bar.GetMax() != total {
			bar.ChangeMax(total)
			bar.Describe(color.BlueString("%s", known))
		}
		_ = bar.Set(done)
	}
}

var assistantPrompt = color.New(color.FgCyan).PrintfFunc()

func printAnswer(answer *models.Answer, showSources bool) {
	switch answer.Status {
	case models.AnswerUnavailable:
		color.Red("\n%s", answer.Answer)
		return
	case models.AnswerNoResults:
		color.Yellow("\n%s", answer.Answer)
	default:
		assistantPrompt("\nAssistant: %s\n", answer.Answer)
	}

	for _, note := range answer.Notes {
		color.Yellow("! %s", note)
	}

	if showSources && len(answer.Sources) > 0 {
		color.White("\nSources:")
		for i, s := range answer.Sources {
			fmt.Printf("  %d. %s #%d [%s, %.3f]\n     %s\n", i+1,
				color.GreenString(s.DocumentName), s.ChunkID, s.KnowledgeBase, s.Score,
				strings.ReplaceAll(s.Preview, "\n", " "))
		}
	}
}

func printDocuments(result *models.ListResult) {
	if result.TotalDocuments == 0 {
		color.Yellow("No documents.")
		return
	}
	for _, d := range result.Documents {
		fmt.Printf("  %-40s %4d chunks  %s\n", d.Name, d.Chunks, color.CyanString(d.DocumentType))
	}
	color.Green("%d documents", result.TotalDocuments)
}

func printStats(stats *models.StatsResult) {
	c := color.New(color.FgGreen)
	switch stats.Status {
	case models.StatusAbsent:
		c = color.New(color.FgYellow)
	case models.StatusEmpty:
		c = color.New(color.FgCyan)
	}
	fmt.Printf("user %s: %d documents, %d chunks, status %s\n",
		stats.UserID, stats.TotalDocuments, stats.TotalChunks, c.Sprint(stats.Status))
}
