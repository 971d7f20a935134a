package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v3"

	"github.com/robert-malhotra/go-stac-ingest/pkg/fetch"
	"github.com/robert-malhotra/go-stac-ingest/pkg/geocatalog"
	"github.com/robert-malhotra/go-stac-ingest/pkg/ingest"
)

func outWriter(cmd *cli.Command) io.Writer {
	if w := cmd.Root().Writer; w != nil {
		return w
	}
	return os.Stdout
}

func errWriter(cmd *cli.Command) io.Writer {
	if w := cmd.Root().ErrWriter; w != nil {
		return w
	}
	return os.Stderr
}

// setup validates cfg and builds the logger and destination client.
func setup(ctx context.Context, cmd *cli.Command, cfg *config) (*logrus.Entry, *geocatalog.Client, func(), error) {
	if err := cfg.validate(); err != nil {
		return nil, nil, nil, err
	}
	log, closer, err := newLogger(cfg, errWriter(cmd))
	if err != nil {
		return nil, nil, nil, err
	}
	dest, err := newDestination(ctx, cfg, log)
	if err != nil {
		closer.Close()
		return nil, nil, nil, err
	}
	return log, dest, func() { closer.Close() }, nil
}

func runAction(ctx context.Context, cmd *cli.Command) error {
	cfg, err := runConfig(cmd)
	if err != nil {
		return err
	}
	log, dest, done, err := setup(ctx, cmd, cfg)
	if err != nil {
		return err
	}
	defer done()

	source, err := newSource(cfg, log)
	if err != nil {
		return err
	}

	pipe := &ingest.Pipeline{
		Source:      source,
		Destination: dest,
		Fetcher:     fetch.New(),
		Log:         log,
		Config: ingest.Config{
			SourceCollection: cfg.SourceCollection,
			CollectionID:     cfg.CollectionID,
			IDSuffix:         cfg.IDSuffix,
			BBox:             cfg.BBox,
			Datetime:         cfg.Datetime,
			IDPrefix:         cfg.IDPrefix,
			MaxItems:         cfg.MaxItems,
			BatchSize:        cfg.BatchSize,
			BatchDelay:       cfg.BatchDelay,
			ContinueOnError:  cfg.ContinueOnError,
			Poll: geocatalog.PollOptions{
				Interval: cfg.PollInterval,
				Timeout:  cfg.PollTimeout,
			},
			SkipMonitor: cfg.NoMonitor,
			VerifyDelay: cfg.VerifyDelay,
		},
	}
	if cfg.Sign {
		signer, err := newSigner(cfg, log)
		if err != nil {
			return err
		}
		pipe.Signer = signer
	}

	log.WithFields(logrus.Fields{
		"source":   cfg.SourceCollection,
		"bbox":     cfg.BBox,
		"datetime": cfg.Datetime,
	}).Info("starting ingestion")

	sum, runErr := pipe.Run(ctx)
	if runErr == nil && !sum.OK() {
		log.Warn("ingestion finished with failures")
	}
	if err := writeSummary(outWriter(cmd), sum); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}

func monitorAction(ctx context.Context, cmd *cli.Command) error {
	ids := cmd.Args().Slice()
	if len(ids) == 0 {
		return fmt.Errorf("expected at least 1 argument: operation id")
	}
	cfg := rootConfig(cmd).withPolling(cmd)
	log, dest, done, err := setup(ctx, cmd, cfg)
	if err != nil {
		return err
	}
	defer done()

	latest := make(map[string]*geocatalog.Operation, len(ids))
	res, err := ingest.Monitor(ctx, dest, ids, geocatalog.PollOptions{
		Interval: cfg.PollInterval,
		Timeout:  cfg.PollTimeout,
		OnStatus: func(op *geocatalog.Operation) { latest[op.ID] = op },
	}, log)
	if err != nil {
		return err
	}
	if err := writeOperations(outWriter(cmd), ids, latest); err != nil {
		return err
	}
	return res.Err()
}

func verifyAction(ctx context.Context, cmd *cli.Command) error {
	if cmd.Args().Len() != 1 {
		return fmt.Errorf("expected 1 argument: collection id")
	}
	id := cmd.Args().First()
	log, dest, done, err := setup(ctx, cmd, rootConfig(cmd))
	if err != nil {
		return err
	}
	defer done()

	n, err := dest.CountItems(ctx, id)
	if err != nil {
		return err
	}
	log.WithFields(logrus.Fields{"collection": id, "items": n}).Info("collection verified")
	_, err = fmt.Fprintln(outWriter(cmd), id+"\t"+strconv.Itoa(n))
	return err
}
