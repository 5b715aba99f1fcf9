package main

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"tapedeck/internal/catalog"
	"tapedeck/internal/daemon"
	"tapedeck/internal/playlist"
	"tapedeck/internal/remote"
)

func openCatalog(cmd *cobra.Command, ctx *commandContext, reload bool) (*catalog.Catalog, error) {
	cfg, err := ctx.ensureConfig()
	if err != nil {
		return nil, err
	}
	cat, err := daemon.NewCatalog(cfg, ctx.ensureLogger())
	if err != nil {
		return nil, err
	}
	if err := cat.Build(cmd.Context(), reload); err != nil {
		return nil, fmt.Errorf("build catalog: %w", err)
	}
	return cat, nil
}

func newDatesCommand(ctx *commandContext) *cobra.Command {
	var year int
	var reload bool

	cmd := &cobra.Command{
		Use:   "dates",
		Short: "List dates with at least one tape",
		RunE: func(cmd *cobra.Command, args []string) error {
			cat, err := openCatalog(cmd, ctx, reload)
			if err != nil {
				return err
			}

			rows := make([][]string, 0, 64)
			for _, date := range cat.Dates() {
				if year != 0 && !strings.HasPrefix(date, fmt.Sprintf("%04d-", year)) {
					continue
				}
				group := cat.Tapes(date)
				best := ""
				if len(group) > 0 {
					best = group[0].Identifier()
				}
				rows = append(rows, []string{date, strconv.Itoa(len(group)), best})
			}
			if len(rows) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No dates in catalog.")
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]tableColumn{col("Date"), numCol("Tapes"), col("Best")},
				rows))
			return nil
		},
	}

	cmd.Flags().IntVar(&year, "year", 0, "Restrict to one year")
	cmd.Flags().BoolVar(&reload, "reload", false, "Refetch shards before listing")
	return cmd
}

func newBestCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "best <date>",
		Short: "Show the ranked tapes for a date",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cat, err := openCatalog(cmd, ctx, false)
			if err != nil {
				return err
			}

			group := cat.Tapes(args[0])
			if len(group) == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "No tapes for %s.\n", args[0])
				return nil
			}
			rows := make([][]string, 0, len(group))
			for i, t := range group {
				streamOnly := ""
				if t.StreamOnly() {
					streamOnly = "yes"
				}
				rows = append(rows, []string{
					strconv.Itoa(i + 1),
					t.Identifier(),
					t.Artist,
					fmt.Sprintf("%.2f", t.Score()),
					streamOnly,
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]tableColumn{numCol("#"), col("Identifier"), col("Collection"), numCol("Score"), col("Stream only")},
				rows))
			return nil
		},
	}
	return cmd
}

func newResortCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "resort <date>",
		Short: "Re-rank a date after fetching tracks for the top candidates",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cat, err := openCatalog(cmd, ctx, false)
			if err != nil {
				return err
			}

			group, err := cat.Resort(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if len(group) == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "No playable tapes for %s.\n", args[0])
				return nil
			}
			rows := make([][]string, 0, len(group))
			for i, t := range group {
				rows = append(rows, []string{
					strconv.Itoa(i + 1),
					t.Identifier(),
					fmt.Sprintf("%.2f", t.Score()),
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]tableColumn{numCol("#"), col("Identifier"), numCol("Score")},
				rows))
			return nil
		},
	}
	return cmd
}

func newPlaylistCommand(ctx *commandContext) *cobra.Command {
	var urlsOnly bool

	cmd := &cobra.Command{
		Use:   "playlist <date>",
		Short: "Print the playable URL list for the best tape of a date",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cat, err := openCatalog(cmd, ctx, false)
			if err != nil {
				return err
			}

			best := cat.Best(args[0])
			if best == nil {
				fmt.Fprintf(cmd.OutOrStdout(), "No tapes for %s.\n", args[0])
				return nil
			}

			entries, err := playlist.Project(cmd.Context(), best)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if urlsOnly {
				for _, entry := range entries {
					fmt.Fprintln(out, entry.URL)
				}
				return nil
			}

			fmt.Fprintf(out, "%s  (%s)\n", best.Identifier(), best.Venue(1))
			rows := make([][]string, 0, len(entries))
			for _, entry := range entries {
				title := entry.Title
				if entry.Break {
					title = "-- " + title + " --"
				}
				rows = append(rows, []string{
					strconv.Itoa(entry.Position),
					title,
					entry.Format,
					entry.URL,
				})
			}
			fmt.Fprintln(out, renderTable(
				[]tableColumn{numCol("#"), col("Title"), col("Format"), col("URL")},
				rows))
			return nil
		},
	}

	cmd.Flags().BoolVar(&urlsOnly, "urls", false, "Print bare URLs, one per line")
	return cmd
}

func newCollectionsCommand(ctx *commandContext) *cobra.Command {
	var filter string

	cmd := &cobra.Command{
		Use:   "collections",
		Short: "List known archive collections",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			client, err := remote.NewScrapeClient(cfg.Archive.ScrapeURL, remote.WithLogger(ctx.ensureLogger()))
			if err != nil {
				return err
			}

			names, err := client.CollectionNames(cmd.Context())
			if err != nil {
				return fmt.Errorf("list collections: %w", err)
			}

			configured := make(map[string]bool, len(cfg.Archive.Collections))
			for _, name := range cfg.Archive.Collections {
				configured[name] = true
			}

			needle := strings.ToLower(strings.TrimSpace(filter))
			rows := make([][]string, 0, len(names))
			for _, name := range names {
				if needle != "" && !strings.Contains(strings.ToLower(name), needle) {
					continue
				}
				enabled := ""
				if configured[name] {
					enabled = "yes"
				}
				rows = append(rows, []string{name, enabled})
			}
			if len(rows) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No collections matched.")
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]tableColumn{col("Collection"), col("Configured")},
				rows))
			return nil
		},
	}

	cmd.Flags().StringVar(&filter, "filter", "", "Case-insensitive substring filter")
	return cmd
}

func newYearsCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "years",
		Short: "Summarize catalog coverage per year",
		RunE: func(cmd *cobra.Command, args []string) error {
			cat, err := openCatalog(cmd, ctx, false)
			if err != nil {
				return err
			}

			years := cat.YearList()
			if len(years) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "Catalog is empty.")
				return nil
			}
			rows := make([][]string, 0, len(years))
			for _, year := range years {
				byArtist := cat.YearArtists(year, 0)
				names := make([]string, 0, len(byArtist))
				tapes := 0
				for name, group := range byArtist {
					names = append(names, name)
					tapes += len(group)
				}
				sort.Strings(names)
				rows = append(rows, []string{
					strconv.Itoa(year),
					strconv.Itoa(tapes),
					strings.Join(names, ", "),
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]tableColumn{numCol("Year"), numCol("Tapes"), col("Artists")},
				rows))
			return nil
		},
	}
	return cmd
}
