package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v3"

	"github.com/robert-malhotra/go-stac-ingest/pkg/geocatalog"
	"github.com/robert-malhotra/go-stac-ingest/pkg/sas"
)

const (
	userAgent        = "stac-ingest/1.0"
	defaultSourceURL = "https://planetarycomputer.microsoft.com/api/stac/v1"
	defaultEnvFile   = ".env"
	envFileFlagName  = "env-file"
)

// Flags are built per command tree; urfave/cli flags keep parse state.
func rootFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "geocatalog-url",
			Aliases: []string{"g"},
			Usage:   "GeoCatalog endpoint URL",
			Sources: cli.EnvVars("GEOCATALOG_URL"),
		},
		&cli.StringFlag{
			Name:    "api-version",
			Usage:   "GeoCatalog api-version query parameter",
			Value:   geocatalog.DefaultAPIVersion,
			Sources: cli.EnvVars("GEOCATALOG_API_VERSION"),
		},
		&cli.StringFlag{
			Name:    "auth",
			Usage:   "how to obtain GeoCatalog tokens: cli, default, token or none",
			Value:   "cli",
			Sources: cli.EnvVars("GEOCATALOG_AUTH"),
		},
		&cli.StringFlag{
			Name:    "token",
			Usage:   "static bearer token, used with --auth token",
			Sources: cli.EnvVars("GEOCATALOG_TOKEN"),
		},
		&cli.DurationFlag{
			Name:    "timeout",
			Aliases: []string{"t"},
			Usage:   "HTTP client timeout (e.g. 30s, 1m)",
			Value:   60 * time.Second,
		},
		&cli.StringFlag{
			Name:    "log-level",
			Usage:   "log level (debug, info, warn, error)",
			Value:   "info",
			Sources: cli.EnvVars("LOG_LEVEL"),
		},
		&cli.StringFlag{
			Name:    "log-format",
			Usage:   "log format: text or json",
			Value:   "text",
			Sources: cli.EnvVars("LOG_FORMAT"),
		},
		&cli.StringFlag{
			Name:    "log-file",
			Usage:   "also write logs to this file, rotated by size",
			Sources: cli.EnvVars("LOG_FILE"),
		},
		&cli.StringFlag{
			Name:  envFileFlagName,
			Usage: "dotenv file loaded before flags are read; a missing default file is ignored",
			Value: defaultEnvFile,
		},
	}
}

func pollFlags() []cli.Flag {
	return []cli.Flag{
		&cli.DurationFlag{
			Name:  "poll-interval",
			Usage: "delay between operation status rounds",
			Value: 30 * time.Second,
		},
		&cli.DurationFlag{
			Name:  "poll-timeout",
			Usage: "give up waiting for operations after this long",
			Value: 30 * time.Minute,
		},
	}
}

func runFlags() []cli.Flag {
	return append([]cli.Flag{
		&cli.StringFlag{
			Name:    "source-url",
			Usage:   "source STAC API URL",
			Value:   defaultSourceURL,
			Sources: cli.EnvVars("SOURCE_STAC_URL"),
		},
		&cli.StringFlag{
			Name:    "source-collection",
			Aliases: []string{"c"},
			Usage:   "source collection id",
			Sources: cli.EnvVars("SOURCE_COLLECTION"),
		},
		&cli.StringFlag{
			Name:  "collection-id",
			Usage: "destination collection id (default {source}-{suffix}-{random})",
		},
		&cli.StringFlag{
			Name:  "id-suffix",
			Usage: "suffix used when deriving the destination collection id",
		},
		&cli.StringFlag{
			Name:  "bbox",
			Usage: "search bounding box minx,miny,maxx,maxy",
		},
		&cli.StringFlag{
			Name:  "datetime",
			Usage: "search datetime or interval, e.g. 2023-01-01/2023-12-31",
		},
		&cli.StringFlag{
			Name:  "id-prefix",
			Usage: "only ingest items whose id starts with this prefix",
		},
		&cli.IntFlag{
			Name:  "max-items",
			Usage: "stop after this many matching items (0 = all)",
		},
		&cli.IntFlag{
			Name:  "batch-size",
			Usage: "items per ingestion request",
			Value: 100,
		},
		&cli.DurationFlag{
			Name:  "batch-delay",
			Usage: "pause between ingestion requests",
			Value: time.Second,
		},
		&cli.DurationFlag{
			Name:  "verify-delay",
			Usage: "pause before counting the ingested items",
			Value: 10 * time.Second,
		},
		&cli.BoolFlag{
			Name:  "no-monitor",
			Usage: "do not wait for ingestion operations",
		},
		&cli.BoolFlag{
			Name:  "sign",
			Usage: "sign asset hrefs with Planetary Computer SAS tokens",
			Value: true,
		},
		&cli.StringFlag{
			Name:  "sas-url",
			Usage: "SAS token API URL",
			Value: sas.DefaultEndpoint,
		},
		&cli.StringFlag{
			Name:    "pc-subscription-key",
			Usage:   "Planetary Computer subscription key",
			Sources: cli.EnvVars("PC_SDK_SUBSCRIPTION_KEY"),
		},
		&cli.BoolFlag{
			Name:  "continue-on-error",
			Usage: "log failed batches and interrupted searches instead of stopping",
		},
	}, pollFlags()...)
}

func newApp() *cli.Command {
	return &cli.Command{
		Name:  "stac-ingest",
		Usage: "Copy STAC items from a public catalog into a GeoCatalog",
		Flags: rootFlags(),
		Commands: []*cli.Command{
			{
				Name:   "run",
				Usage:  "Create the collection and ingest matching items",
				Flags:  runFlags(),
				Action: runAction,
			},
			{
				Name:      "monitor",
				Usage:     "Wait for ingestion operations",
				ArgsUsage: "<operation-id>...",
				Flags:     pollFlags(),
				Action:    monitorAction,
			},
			{
				Name:      "verify",
				Usage:     "Count the items of a collection",
				ArgsUsage: "<collection-id>",
				Action:    verifyAction,
			},
		},
	}
}

func main() {
	if err := loadEnvFile(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newApp().Run(ctx, os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}

// loadEnvFile loads the dotenv file named by --env-file (default .env)
// before flags are parsed, so its values feed the flags' environment
// sources. Variables already set in the environment win.
func loadEnvFile(args []string) error {
	path, explicit := defaultEnvFile, false
	for i, arg := range args {
		name, value, hasValue := strings.Cut(strings.TrimLeft(arg, "-"), "=")
		if !strings.HasPrefix(arg, "-") || name != envFileFlagName {
			continue
		}
		explicit = true
		switch {
		case hasValue:
			path = value
		case i+1 < len(args):
			path = args[i+1]
		}
	}
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) && !explicit {
			return nil
		}
		return fmt.Errorf("load env file %s: %w", path, err)
	}
	return nil
}
