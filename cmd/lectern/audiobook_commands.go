package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"lectern/internal/api"
	"lectern/internal/config"
)

func newAudiobookCommand(ctx *commandContext) *cobra.Command {
	audiobookCmd := &cobra.Command{
		Use:     "audiobook",
		Aliases: []string{"book"},
		Short:   "Add and inspect audiobooks",
	}
	audiobookCmd.AddCommand(newAudiobookAddCommand(ctx))
	audiobookCmd.AddCommand(newAudiobookShowCommand(ctx))
	audiobookCmd.AddCommand(newAudiobookListCommand(ctx))
	return audiobookCmd
}

func newAudiobookAddCommand(ctx *commandContext) *cobra.Command {
	var title string
	var author string

	cmd := &cobra.Command{
		Use:   "add <audio-file>",
		Short: "Upload an audio file and queue it for processing",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := config.ExpandPath(args[0])
			if err != nil {
				return err
			}
			file, err := os.Open(path)
			if err != nil {
				return fmt.Errorf("open %s: %w", path, err)
			}
			defer file.Close()

			name := filepath.Base(path)
			if strings.TrimSpace(title) == "" {
				title = strings.TrimSuffix(name, filepath.Ext(name))
			}
			svc, err := ctx.jobService()
			if err != nil {
				return err
			}
			result, err := svc.Ingest(cmd.Context(), api.IngestRequest{Title: title, Author: author, FileName: name}, file)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Added audiobook %d %q (%s)\n", result.Audiobook.ID, result.Audiobook.Title, formatBytes(result.Audiobook.FileSizeBytes))
			if result.Job != nil {
				fmt.Fprintf(out, "Queued job %d; lecternd will pick it up on its next poll\n", result.Job.ID)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&title, "title", "t", "", "Audiobook title (defaults to the file name)")
	cmd.Flags().StringVarP(&author, "author", "a", "", "Audiobook author")
	return cmd
}

func newAudiobookShowCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show an audiobook with its generated content",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "audiobook")
			if err != nil {
				return err
			}
			svc, err := ctx.jobService()
			if err != nil {
				return err
			}
			detail, err := svc.Audiobook(cmd.Context(), id)
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd, detail)
			}
			fmt.Fprint(cmd.OutOrStdout(), renderTable(fieldValueColumns, buildAudiobookRows(*detail)))
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output JSON")
	return cmd
}

func newAudiobookListCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	var limit int

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List audiobooks, newest first",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, err := ctx.jobService()
			if err != nil {
				return err
			}
			books, err := svc.ListAudiobooks(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd, books)
			}
			out := cmd.OutOrStdout()
			if len(books) == 0 {
				fmt.Fprintln(out, "No audiobooks")
				return nil
			}
			fmt.Fprint(out, renderTable(audiobookListColumns, buildAudiobookListRows(books)))
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 50, "Maximum number of audiobooks to list")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output JSON")
	return cmd
}
