package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/urfave/cli/v3"

	"github.com/robert-malhotra/go-stac-ingest/pkg/client"
)

// config is the resolved command line of one invocation.
type config struct {
	GeoCatalogURL string        `validate:"required,url"`
	APIVersion    string        `validate:"required"`
	Auth          string        `validate:"oneof=cli default token none"`
	Token         string        `validate:"required_if=Auth token"`
	Timeout       time.Duration `validate:"gte=0"`

	LogLevel  string `validate:"oneof=trace debug info warn warning error"`
	LogFormat string `validate:"oneof=text json"`
	LogFile   string

	SourceURL        string    `validate:"required_with=SourceCollection,omitempty,url"`
	SourceCollection string    `validate:"omitempty,collection_id"`
	CollectionID     string    `validate:"omitempty,collection_id"`
	IDSuffix         string    `validate:"omitempty,collection_id"`
	BBox             []float64 `validate:"omitempty,bbox"`
	Datetime         string    `validate:"omitempty,stac_datetime"`
	IDPrefix         string
	MaxItems         int           `validate:"gte=0"`
	BatchSize        int           `validate:"gte=1,lte=1000"`
	BatchDelay       time.Duration `validate:"gte=0"`
	PollInterval     time.Duration `validate:"gt=0"`
	PollTimeout      time.Duration `validate:"gt=0"`
	VerifyDelay      time.Duration `validate:"gte=0"`
	NoMonitor        bool
	Sign             bool
	SASURL           string `validate:"required_if=Sign true,omitempty,url"`
	SubscriptionKey  string
	ContinueOnError  bool
}

// rootConfig reads the flags shared by every subcommand.
func rootConfig(cmd *cli.Command) *config {
	return &config{
		GeoCatalogURL: strings.TrimSpace(cmd.String("geocatalog-url")),
		APIVersion:    cmd.String("api-version"),
		Auth:          strings.ToLower(cmd.String("auth")),
		Token:         cmd.String("token"),
		Timeout:       cmd.Duration("timeout"),
		LogLevel:      strings.ToLower(cmd.String("log-level")),
		LogFormat:     strings.ToLower(cmd.String("log-format")),
		LogFile:       cmd.String("log-file"),
		BatchSize:     1,
		PollInterval:  30 * time.Second,
		PollTimeout:   30 * time.Minute,
	}
}

// withPolling reads the operation polling flags of run and monitor.
func (c *config) withPolling(cmd *cli.Command) *config {
	c.PollInterval = cmd.Duration("poll-interval")
	c.PollTimeout = cmd.Duration("poll-timeout")
	return c
}

// runConfig reads the flags of the run subcommand.
func runConfig(cmd *cli.Command) (*config, error) {
	cfg := rootConfig(cmd).withPolling(cmd)
	bbox, err := parseBBox(cmd.String("bbox"))
	if err != nil {
		return nil, err
	}
	cfg.SourceURL = strings.TrimSpace(cmd.String("source-url"))
	cfg.SourceCollection = strings.TrimSpace(cmd.String("source-collection"))
	cfg.CollectionID = strings.TrimSpace(cmd.String("collection-id"))
	cfg.IDSuffix = strings.TrimSpace(cmd.String("id-suffix"))
	cfg.BBox = bbox
	cfg.Datetime = strings.TrimSpace(cmd.String("datetime"))
	cfg.IDPrefix = cmd.String("id-prefix")
	cfg.MaxItems = int(cmd.Int("max-items"))
	cfg.BatchSize = int(cmd.Int("batch-size"))
	cfg.BatchDelay = cmd.Duration("batch-delay")
	cfg.VerifyDelay = cmd.Duration("verify-delay")
	cfg.NoMonitor = cmd.Bool("no-monitor")
	cfg.Sign = cmd.Bool("sign")
	cfg.SASURL = strings.TrimSpace(cmd.String("sas-url"))
	cfg.SubscriptionKey = cmd.String("pc-subscription-key")
	cfg.ContinueOnError = cmd.Bool("continue-on-error")

	if cfg.SourceCollection == "" {
		return nil, errors.New("flag --source-collection is required")
	}
	return cfg, nil
}

// parseBBox parses "minx,miny,maxx,maxy" (or the 6-value 3D form).
func parseBBox(s string) ([]float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	bbox := make([]float64, len(parts))
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid bbox %q: %w", s, err)
		}
		bbox[i] = v
	}
	return bbox, nil
}

var configValidator = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("bbox", validateBBox)
	_ = v.RegisterValidation("stac_datetime", validateDatetime)
	_ = v.RegisterValidation("collection_id", validateCollectionID)
	return v
}

func validateBBox(fl validator.FieldLevel) bool {
	bbox, ok := fl.Field().Interface().([]float64)
	return ok && client.ValidateBBox(bbox) == nil
}

func validateDatetime(fl validator.FieldLevel) bool {
	_, err := client.NormalizeDatetime(fl.Field().String())
	return err == nil
}

// validateCollectionID accepts the characters allowed in collection ids.
func validateCollectionID(fl validator.FieldLevel) bool {
	id := fl.Field().String()
	if id == "" || len(id) > 128 {
		return false
	}
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
		default:
			return false
		}
	}
	return true
}

// validate reports every invalid field as one error.
func (c *config) validate() error {
	err := configValidator.Struct(c)
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fieldMessage(fe))
	}
	return fmt.Errorf("invalid configuration: %s", strings.Join(msgs, "; "))
}

var flagNames = map[string]string{
	"GeoCatalogURL":    "--geocatalog-url",
	"APIVersion":       "--api-version",
	"Auth":             "--auth",
	"Token":            "--token",
	"Timeout":          "--timeout",
	"LogLevel":         "--log-level",
	"LogFormat":        "--log-format",
	"SourceURL":        "--source-url",
	"SourceCollection": "--source-collection",
	"CollectionID":     "--collection-id",
	"IDSuffix":         "--id-suffix",
	"BBox":             "--bbox",
	"Datetime":         "--datetime",
	"MaxItems":         "--max-items",
	"BatchSize":        "--batch-size",
	"BatchDelay":       "--batch-delay",
	"PollInterval":     "--poll-interval",
	"PollTimeout":      "--poll-timeout",
	"VerifyDelay":      "--verify-delay",
	"SASURL":           "--sas-url",
}

func fieldMessage(fe validator.FieldError) string {
	name, ok := flagNames[fe.Field()]
	if !ok {
		name = fe.Field()
	}
	switch fe.Tag() {
	case "required", "required_if", "required_with":
		return name + " is required"
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", name, fe.Param())
	case "url":
		return fmt.Sprintf("%s must be an absolute URL, got %q", name, fe.Value())
	case "bbox":
		return name + " must have 4 or 6 values with min <= max"
	case "stac_datetime":
		return fmt.Sprintf("%s %q is not a valid datetime or interval", name, fe.Value())
	case "collection_id":
		return fmt.Sprintf("%s %q may only contain letters, digits, '-', '_' and '.'", name, fe.Value())
	default:
		return fmt.Sprintf("%s failed %s=%s", name, fe.Tag(), fe.Param())
	}
}
