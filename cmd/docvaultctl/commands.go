package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/kirillkom/docvault/internal/core/domain"
	"github.com/kirillkom/docvault/internal/core/ports"
)

type backend struct {
	catalog ports.FileCatalog
	retry   ports.RetryService
	search  ports.SearchService
	reports ports.ReportService
	close   func()
}

type backendOpener func(ctx context.Context) (*backend, error)

func newRootCommand(open backendOpener) *cobra.Command {
	var userID string
	root := &cobra.Command{
		Use:           "docvaultctl",
		Short:         "Operate a docvault deployment from the command line",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&userID, "user", "u", "", "Act on behalf of this user id (empty means all users)")

	withBackend := func(run func(cmd *cobra.Command, b *backend, args []string) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			b, err := open(cmd.Context())
			if err != nil {
				return err
			}
			if b.close != nil {
				defer b.close()
			}
			return run(cmd, b, args)
		}
	}
	user := func() string { return userID }

	root.AddCommand(newStuckCommand(withBackend, user))
	root.AddCommand(newFilesCommand(withBackend, user))
	root.AddCommand(newSearchCommand(withBackend, user))
	root.AddCommand(newExportCommand(withBackend, user))
	return root
}

type runWrapper func(run func(cmd *cobra.Command, b *backend, args []string) error) func(*cobra.Command, []string) error

func newStuckCommand(with runWrapper, user func() string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stuck",
		Short: "Inspect and requeue files stuck in pending or processing",
	}
	cmd.AddCommand(&cobra.Command{
		Use:     "list",
		Short:   "List stuck files",
		Example: "docvaultctl stuck list",
		Args:    cobra.NoArgs,
		RunE: with(func(cmd *cobra.Command, b *backend, _ []string) error {
			files, err := b.retry.ListStuck(cmd.Context(), user())
			if err != nil {
				return err
			}
			return printFiles(cmd.OutOrStdout(), files)
		}),
	})
	cmd.AddCommand(&cobra.Command{
		Use:     "retry",
		Short:   "Requeue every stuck file below the retry limit",
		Example: "docvaultctl stuck retry",
		Args:    cobra.NoArgs,
		RunE: with(func(cmd *cobra.Command, b *backend, _ []string) error {
			report, err := b.retry.RetryStuck(cmd.Context(), user())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "requeued: %d\nfailed: %d\n", len(report.Requeued), len(report.Failed))
			for _, msg := range report.Errors {
				fmt.Fprintf(out, "error: %s\n", msg)
			}
			return nil
		}),
	})
	return cmd
}

func newFilesCommand(with runWrapper, user func() string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "files",
		Short: "File operations",
	}

	var status string
	var limit int
	list := &cobra.Command{
		Use:     "list",
		Short:   "List files",
		Example: "docvaultctl files list --status error",
		Args:    cobra.NoArgs,
		RunE: with(func(cmd *cobra.Command, b *backend, _ []string) error {
			summaries, err := b.catalog.List(cmd.Context(), domain.FileQuery{
				UserID: user(),
				Status: domain.ProcessingStatus(status),
				Limit:  limit,
			})
			if err != nil {
				return err
			}
			files := make([]domain.File, 0, len(summaries))
			for _, s := range summaries {
				files = append(files, s.File)
			}
			return printFiles(cmd.OutOrStdout(), files)
		}),
	}
	list.Flags().StringVarP(&status, "status", "s", "", "Filter by processing status")
	list.Flags().IntVarP(&limit, "limit", "l", 50, "Max files")
	cmd.AddCommand(list)

	var includeText bool
	show := &cobra.Command{
		Use:   "show <id>",
		Short: "Print a file with its analysis as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: with(func(cmd *cobra.Command, b *backend, args []string) error {
			detail, err := b.catalog.Get(cmd.Context(), user(), args[0], includeText)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(detail)
		}),
	}
	show.Flags().BoolVarP(&includeText, "text", "t", false, "Include extracted text")
	cmd.AddCommand(show)

	cmd.AddCommand(&cobra.Command{
		Use:     "retry <id>",
		Short:   "Reset a file to pending and requeue it",
		Example: "docvaultctl files retry 0f8c...",
		Args:    cobra.ExactArgs(1),
		RunE: with(func(cmd *cobra.Command, b *backend, args []string) error {
			file, err := b.retry.RetryFile(cmd.Context(), user(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "requeued %s (%s)\n", file.ID, file.Status)
			return nil
		}),
	})
	return cmd
}

func newSearchCommand(with runWrapper, user func() string) *cobra.Command {
	var limit int
	var mode string
	var category string
	cmd := &cobra.Command{
		Use:     "search <query>",
		Short:   "Search processed files",
		Args:    cobra.MinimumNArgs(1),
		Example: "docvaultctl search -m hybrid -l 5 quarterly revenue",
		RunE: with(func(cmd *cobra.Command, b *backend, args []string) error {
			result, err := b.search.Search(cmd.Context(), domain.SearchRequest{
				UserID:   user(),
				Query:    strings.Join(args, " "),
				Limit:    limit,
				Category: category,
				Mode:     domain.SearchMode(mode),
			})
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			for _, hit := range result.Hits {
				fmt.Fprintf(tw, "%.4f\t%s\t%s\n", hit.Score, hit.FileID, hit.OriginalName)
			}
			return tw.Flush()
		}),
	}
	cmd.Flags().IntVarP(&limit, "limit", "l", 10, "Max results")
	cmd.Flags().StringVarP(&mode, "mode", "m", "", "semantic, keyword or hybrid")
	cmd.Flags().StringVarP(&category, "category", "c", "", "Only files tagged with this category")
	return cmd
}

func newExportCommand(with runWrapper, user func() string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export reports and learning packages",
	}

	var reportOut string
	report := &cobra.Command{
		Use:     "report",
		Short:   "Write the XLSX file inventory",
		Example: "docvaultctl export report -o files.xlsx",
		Args:    cobra.NoArgs,
		RunE: with(func(cmd *cobra.Command, b *backend, _ []string) error {
			return writeOutput(cmd, reportOut, func(w io.Writer) error {
				return b.reports.WriteFilesReport(cmd.Context(), user(), w)
			})
		}),
	}
	report.Flags().StringVarP(&reportOut, "output", "o", "files.xlsx", "Output path, - for stdout")
	cmd.AddCommand(report)

	var scormOut string
	scorm := &cobra.Command{
		Use:     "scorm <id>",
		Short:   "Write a SCORM 1.2 package for a processed file",
		Example: "docvaultctl export scorm -o lesson.zip 0f8c...",
		Args:    cobra.ExactArgs(1),
		RunE: with(func(cmd *cobra.Command, b *backend, args []string) error {
			out := scormOut
			if out == "" {
				out = fmt.Sprintf("scorm-%s.zip", args[0])
			}
			return writeOutput(cmd, out, func(w io.Writer) error {
				return b.reports.WriteSCORMPackage(cmd.Context(), user(), args[0], w)
			})
		}),
	}
	scorm.Flags().StringVarP(&scormOut, "output", "o", "", "Output path, - for stdout")
	cmd.AddCommand(scorm)
	return cmd
}

// writeOutput removes a partially written file when write fails.
func writeOutput(cmd *cobra.Command, path string, write func(io.Writer) error) error {
	if path == "-" {
		return write(cmd.OutOrStdout())
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := write(f); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "wrote %s\n", path)
	return nil
}

func printFiles(w io.Writer, files []domain.File) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTATUS\tRETRIES\tNAME\tERROR")
	for _, f := range files {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\n", f.ID, f.Status, f.RetryCount, f.OriginalName, f.Error)
	}
	return tw.Flush()
}
