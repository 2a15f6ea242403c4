package history

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tphakala/trackid-go/internal/conf"
	"github.com/tphakala/trackid-go/internal/datastore"
)

type options struct {
	limit    int
	attempts bool
	stats    bool
	since    time.Duration
}

// Command creates the history command, which prints persisted tracks,
// attempts and statistics from the datastore.
func Command(settings *conf.Settings) *cobra.Command {
	opts := &options{}

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show identified tracks and attempt statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := datastore.Open(&settings.Datastore, nil)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()
			return show(cmd.Context(), cmd.OutOrStdout(), store, opts, time.Now())
		},
	}

	cmd.AddCommand(pruneCommand(settings))

	if err := setupFlags(cmd, settings, opts); err != nil {
		fmt.Printf("error setting up flags: %v\n", err)
		os.Exit(1)
	}

	return cmd
}

func pruneCommand(settings *conf.Settings) *cobra.Command {
	var olderThan time.Duration

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete attempt log entries older than a given age",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := datastore.Open(&settings.Datastore, nil)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			n, err := store.PruneAttempts(cmd.Context(), time.Now().Add(-olderThan))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %s attempts older than %s\n", humanize.Comma(n), olderThan)
			return nil
		},
	}
	cmd.Flags().DurationVar(&olderThan, "older-than", 30*24*time.Hour, "Minimum age of removed entries")
	return cmd
}

func show(ctx context.Context, w io.Writer, store *datastore.Store, opts *options, now time.Time) error {
	switch {
	case opts.stats:
		return showStats(ctx, w, store, now.Add(-opts.since), opts.limit)
	case opts.attempts:
		return showAttempts(ctx, w, store, opts.limit, now)
	default:
		return showTracks(ctx, w, store, opts.limit, now)
	}
}

func showTracks(ctx context.Context, w io.Writer, store *datastore.Store, limit int, now time.Time) error {
	tracks, err := store.RecentTracks(ctx, limit)
	if err != nil {
		return err
	}
	if len(tracks) == 0 {
		fmt.Fprintln(w, "No tracks identified yet")
		return nil
	}

	tw := newTable(w)
	tw.AppendHeader(table.Row{"#", "Title", "Artist", "Album", "Identified"})
	for i, t := range tracks {
		tw.AppendRow(table.Row{i + 1, t.Title, t.Artist, t.Album, humanize.RelTime(t.Timestamp, now, "ago", "from now")})
	}
	tw.Render()
	return nil
}

func showAttempts(ctx context.Context, w io.Writer, store *datastore.Store, limit int, now time.Time) error {
	attempts, err := store.RecentAttempts(ctx, limit)
	if err != nil {
		return err
	}
	if len(attempts) == 0 {
		fmt.Fprintln(w, "No identification attempts recorded")
		return nil
	}

	tw := newTable(w)
	tw.AppendHeader(table.Row{"When", "Trigger", "Outcome", "Track", "Took", "Detail"})
	for _, a := range attempts {
		name := ""
		if a.Title != "" {
			name = a.Artist + " - " + a.Title
		}
		tw.AppendRow(table.Row{
			humanize.RelTime(a.CreatedAt, now, "ago", "from now"),
			a.Trigger,
			a.Outcome,
			name,
			(time.Duration(a.DurationMs) * time.Millisecond).String(),
			a.Message,
		})
	}
	tw.Render()
	return nil
}

func showStats(ctx context.Context, w io.Writer, store *datastore.Store, since time.Time, limit int) error {
	st, err := store.Stats(ctx, since)
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "Attempts since %s: %s\n", humanize.Time(since), humanize.Comma(st.Total))
	if st.Total > 0 {
		fmt.Fprintf(w, "Hit rate: %.1f%%\n", st.HitRate()*100)

		outcomes := make([]string, 0, len(st.ByOutcome))
		for o := range st.ByOutcome {
			outcomes = append(outcomes, o)
		}
		sort.Strings(outcomes)

		tw := newTable(w)
		tw.AppendHeader(table.Row{"Outcome", "Count"})
		for _, o := range outcomes {
			tw.AppendRow(table.Row{o, humanize.Comma(st.ByOutcome[o])})
		}
		tw.Render()
	}

	artists, err := store.TopArtists(ctx, limit)
	if err != nil {
		return err
	}
	if len(artists) == 0 {
		return nil
	}
	tw := newTable(w)
	tw.AppendHeader(table.Row{"Artist", "Tracks"})
	for _, a := range artists {
		tw.AppendRow(table.Row{a.Artist, humanize.Comma(a.Count)})
	}
	tw.Render()
	return nil
}

func newTable(w io.Writer) table.Writer {
	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.SetStyle(table.StyleLight)
	return tw
}

func setupFlags(cmd *cobra.Command, settings *conf.Settings, opts *options) error {
	cmd.Flags().IntVarP(&opts.limit, "limit", "n", viper.GetInt("history.capacity"), "Number of rows to show")
	cmd.Flags().BoolVar(&opts.attempts, "attempts", false, "Show the attempt log instead of tracks")
	cmd.Flags().BoolVar(&opts.stats, "stats", false, "Show attempt statistics and top artists")
	cmd.Flags().DurationVar(&opts.since, "since", 24*time.Hour, "Statistics window")
	cmd.Flags().StringVar(&settings.Datastore.SQLite.Path, "db", viper.GetString("datastore.sqlite.path"), "Path of the SQLite database")

	// Bind flags to the viper settings
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return fmt.Errorf("error binding flags: %v", err)
	}

	return nil
}
