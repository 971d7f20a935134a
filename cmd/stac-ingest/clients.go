package main

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/robert-malhotra/go-stac-ingest/pkg/auth"
	"github.com/robert-malhotra/go-stac-ingest/pkg/client"
	"github.com/robert-malhotra/go-stac-ingest/pkg/geocatalog"
	"github.com/robert-malhotra/go-stac-ingest/pkg/sas"
)

func commonOptions(cfg *config, log *logrus.Entry) []client.ClientOption {
	return []client.ClientOption{
		client.WithTimeout(cfg.Timeout),
		client.WithLogger(log),
		client.WithUserAgent(userAgent),
	}
}

func newDestination(ctx context.Context, cfg *config, log *logrus.Entry) (*geocatalog.Client, error) {
	tokens, err := auth.TokenSource(ctx, auth.Config{Mode: auth.Mode(cfg.Auth), Token: cfg.Token})
	if err != nil {
		return nil, err
	}
	return geocatalog.New(cfg.GeoCatalogURL,
		geocatalog.WithAPIVersion(cfg.APIVersion),
		geocatalog.WithTokenSource(tokens),
		geocatalog.WithClientOptions(commonOptions(cfg, log)...),
	)
}

func newSource(cfg *config, log *logrus.Entry) (*client.Client, error) {
	opts := append(commonOptions(cfg, log),
		client.WithMiddleware(auth.HeaderMiddleware(auth.SubscriptionKeyHeader, cfg.SubscriptionKey)))
	c, err := client.NewClient(cfg.SourceURL, opts...)
	if err != nil {
		return nil, fmt.Errorf("source catalog: %w", err)
	}
	return c, nil
}

func newSigner(cfg *config, log *logrus.Entry) (*sas.Signer, error) {
	s, err := sas.NewSigner(cfg.SASURL,
		sas.WithSubscriptionKey(cfg.SubscriptionKey),
		sas.WithClientOptions(commonOptions(cfg, log)...),
	)
	if err != nil {
		return nil, fmt.Errorf("sas signer: %w", err)
	}
	return s, nil
}
