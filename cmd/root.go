package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tphakala/trackid-go/cmd/config"
	"github.com/tphakala/trackid-go/cmd/history"
	"github.com/tphakala/trackid-go/cmd/identify"
	"github.com/tphakala/trackid-go/cmd/serve"
	"github.com/tphakala/trackid-go/internal/buildinfo"
	"github.com/tphakala/trackid-go/internal/conf"
)

// RootCommand creates and returns the root command
func RootCommand(settings *conf.Settings, build *buildinfo.Context) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "trackid",
		Short:        "Live stream player with track identification",
		Version:      build.GetVersion(),
		SilenceUsage: true,
	}

	// Set up the global flags for the root command.
	setupFlags(rootCmd, settings)

	rootCmd.AddCommand(
		serve.Command(settings, build),
		identify.Command(settings, build),
		history.Command(settings),
		config.Command(settings),
	)

	// flags may have changed settings after Load validated them
	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		return conf.ValidateSettings(settings)
	}

	return rootCmd
}

func setupFlags(rootCmd *cobra.Command, settings *conf.Settings) {
	rootCmd.PersistentFlags().BoolVarP(&settings.Debug, "debug", "d", viper.GetBool("debug"), "Enable debug output")

	if err := viper.BindPFlags(rootCmd.PersistentFlags()); err != nil {
		fmt.Printf("error binding flags: %v\n", err)
	}
}
