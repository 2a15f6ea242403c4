package main

import (
	"fmt"
	"os"
	"time"

	"github.com/tphakala/trackid-go/cmd"
	"github.com/tphakala/trackid-go/internal/buildinfo"
	"github.com/tphakala/trackid-go/internal/conf"
	"github.com/tphakala/trackid-go/internal/errors"
	"github.com/tphakala/trackid-go/internal/logger"
)

// Set at build time with -ldflags "-X main.version=... -X main.buildDate=..."
var (
	version   = "dev"
	buildDate = ""
)

func main() {
	os.Exit(run())
}

func run() int {
	build := buildinfo.NewContext(version, buildDate)

	settings, err := conf.Load(os.Getenv("TRACKID_CONFIG"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "error loading configuration: %v\n", err)
		return 1
	}

	if settings.Debug {
		settings.Logging.DefaultLevel = "debug"
	}
	cl, err := logger.NewCentralLogger(&settings.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error initializing logger: %v\n", err)
		return 1
	}
	logger.SetGlobal(cl)
	defer func() { _ = cl.Close() }()

	if settings.Sentry.Enabled {
		if err := errors.InitSentry(settings.Sentry.DSN, build.GetVersion()); err != nil {
			logger.Global().Module("main").Warn("sentry initialization failed", logger.Error(err))
		} else {
			defer errors.FlushSentry(2 * time.Second)
		}
	}

	if err := cmd.RootCommand(settings, build).Execute(); err != nil {
		return 1
	}
	return 0
}
