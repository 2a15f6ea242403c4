package serve

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tphakala/trackid-go/internal/app"
	"github.com/tphakala/trackid-go/internal/buildinfo"
	"github.com/tphakala/trackid-go/internal/conf"
)

// Command creates the serve command, which plays the configured stream and
// serves the control API until interrupted.
func Command(settings *conf.Settings, build *buildinfo.Context) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Play a stream and serve the control API",
		Long:  "Play the configured live stream, identify tracks on demand or on a schedule and serve the HTTP control API.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return run(ctx, settings, build)
		},
	}

	if err := setupFlags(cmd, settings); err != nil {
		fmt.Printf("error setting up flags: %v\n", err)
		os.Exit(1)
	}

	return cmd
}

func run(ctx context.Context, settings *conf.Settings, build *buildinfo.Context) error {
	a, err := app.New(ctx, settings, build, app.Options{HTTP: true, Delivery: true})
	if err != nil {
		return err
	}
	defer a.Close()
	return a.Run(ctx)
}

func setupFlags(cmd *cobra.Command, settings *conf.Settings) error {
	cmd.Flags().StringVar(&settings.Stream.URL, "url", viper.GetString("stream.url"), "Live stream URL")
	cmd.Flags().StringVar(&settings.Stream.Output, "output", viper.GetString("stream.output"), "Audio output (\"speaker\" or \"none\")")
	cmd.Flags().StringVar(&settings.WebServer.Listen, "listen", viper.GetString("webserver.listen"), "Listen address of the HTTP API")
	cmd.Flags().BoolVar(&settings.Scheduler.Enabled, "auto", viper.GetBool("scheduler.enabled"), "Identify tracks automatically while playing")
	cmd.Flags().DurationVar(&settings.Scheduler.Interval, "interval", viper.GetDuration("scheduler.interval"), "Auto-identify interval")

	// Bind flags to the viper settings
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return fmt.Errorf("error binding flags: %v", err)
	}

	return nil
}
