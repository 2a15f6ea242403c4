package identify

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tphakala/trackid-go/internal/app"
	"github.com/tphakala/trackid-go/internal/buildinfo"
	"github.com/tphakala/trackid-go/internal/conf"
	"github.com/tphakala/trackid-go/internal/errors"
	"github.com/tphakala/trackid-go/internal/pipeline"
)

// Command creates the identify command, which connects to the stream,
// identifies what is playing once and exits.
func Command(settings *conf.Settings, build *buildinfo.Context) *cobra.Command {
	var (
		asJSON bool
		output string
	)

	cmd := &cobra.Command{
		Use:   "identify",
		Short: "Identify the track currently playing on a stream",
		RunE: func(cmd *cobra.Command, args []string) error {
			if settings.Stream.URL == "" {
				return errors.Newf("no stream URL configured, use --url").
					Component("cli").
					Category(errors.CategoryValidation).
					Build()
			}
			// one attempt only
			settings.Scheduler.Enabled = false
			settings.Stream.Output = output

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			res, err := run(ctx, settings, build)
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(res)
			}
			printResult(cmd.OutOrStdout(), res)
			return nil
		},
	}

	if err := setupFlags(cmd, settings, &output, &asJSON); err != nil {
		fmt.Printf("error setting up flags: %v\n", err)
		os.Exit(1)
	}

	return cmd
}

func run(ctx context.Context, settings *conf.Settings, build *buildinfo.Context) (pipeline.Result, error) {
	a, err := app.New(ctx, settings, build, app.Options{})
	if err != nil {
		return pipeline.Result{}, err
	}
	defer a.Close()

	if err := a.Pipeline.Play(ctx); err != nil {
		return pipeline.Result{}, err
	}
	return a.Pipeline.Identify(ctx, pipeline.TriggerManual)
}

func printResult(w io.Writer, res pipeline.Result) {
	switch res.Outcome {
	case pipeline.OutcomeMiss:
		fmt.Fprintln(w, "No match found")
		return
	case pipeline.OutcomeDuplicate:
		fmt.Fprintln(w, "Already identified recently:")
	}
	if res.Track == nil {
		return
	}

	t := res.Track
	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.SetStyle(table.StyleLight)
	tw.AppendRow(table.Row{"Title", t.Title})
	tw.AppendRow(table.Row{"Artist", t.Artist})
	if t.Album != "" {
		tw.AppendRow(table.Row{"Album", t.Album})
	}
	if t.ReleaseDate != "" {
		tw.AppendRow(table.Row{"Released", t.ReleaseDate})
	}
	if t.ConfidencePercent != nil {
		tw.AppendRow(table.Row{"Confidence", strconv.Itoa(*t.ConfidencePercent) + "%"})
	}
	if t.HasArtwork() {
		tw.AppendRow(table.Row{"Artwork", t.Artwork})
	}
	tw.AppendRow(table.Row{"Service", t.Service})
	tw.Render()
}

func setupFlags(cmd *cobra.Command, settings *conf.Settings, output *string, asJSON *bool) error {
	cmd.Flags().StringVar(&settings.Stream.URL, "url", viper.GetString("stream.url"), "Live stream URL")
	cmd.Flags().StringVar(output, "output", "none", "Audio output while sampling (\"speaker\" or \"none\")")
	cmd.Flags().BoolVar(asJSON, "json", false, "Print the result as JSON")

	// Bind flags to the viper settings
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return fmt.Errorf("error binding flags: %v", err)
	}

	return nil
}
