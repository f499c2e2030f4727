package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var documentType string

var uploadCmd = &cobra.Command{
	Use:   "upload FILE...",
	Short: "Add files to the user's knowledge base",
	Args:  cobra.MinimumNArgs(1),
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

		bar := getProgressBar(len(args), " Uploading documents")
		failed := 0
		for _, path := range args {
			data, err := os.ReadFile(path)
			if err != nil {
				color.Red("\n%s: %v", path, err)
				failed++
				_ = bar.Add(1)
				continue
			}
			result, err := a.svc.UploadDocument(cmd.Context(), user, path, data, documentType)
			_ = bar.Add(1)
			if err != nil {
				color.Red("\n%s: %v", path, err)
				failed++
				continue
			}
			color.Green("\n✓ %s: %d chunks", result.DocumentName, result.ChunksCreated)
		}
		_ = bar.Finish()

		if failed > 0 {
			return fmt.Errorf("%d of %d files failed", failed, len(args))
		}
		return nil
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List the documents in the user's knowledge base",
	Args:  cobra.NoArgs,
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

		result, err := a.svc.ListDocuments(cmd.Context(), user)
		if err != nil {
			return err
		}
		printDocuments(result)
		return nil
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete NAME",
	Short: "Remove one document from the user's knowledge base",
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

		result, err := a.svc.DeleteDocument(cmd.Context(), user, args[0])
		if err != nil {
			return err
		}
		color.Green("✓ Deleted %s (%d chunks)", args[0], result.DeletedChunks)
		return nil
	},
}

var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove every document from the user's knowledge base",
	Args:  cobra.NoArgs,
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

		result, err := a.svc.ClearKnowledgeBase(cmd.Context(), user)
		if err != nil {
			return err
		}
		color.Green("✓ Cleared %d chunks", result.ClearedChunks)
		return nil
	},
}

var destroyCmd = &cobra.Command{
	Use:   "destroy",
	Short: "Delete the user's knowledge base entirely",
	Args:  cobra.NoArgs,
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

		if err := a.svc.DeleteKnowledgeBase(cmd.Context(), user); err != nil {
			return err
		}
		color.Green("✓ Deleted knowledge base of %s", user)
		return nil
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show document and chunk counts",
	Args:  cobra.NoArgs,
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

		stats, err := a.svc.GetStats(cmd.Context(), user)
		if err != nil {
			return err
		}
		printStats(stats)
		return nil
	},
}

func init() {
	uploadCmd.Flags().StringVarP(&documentType, "type", "t", "", "document type tag, e.g. cv (default generic)")
	rootCmd.AddCommand(uploadCmd, listCmd, deleteCmd, clearCmd, destroyCmd, statsCmd)
}
