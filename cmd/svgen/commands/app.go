package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/sharo-jef/webllm-svg/pkg/artifacts"
	"github.com/sharo-jef/webllm-svg/pkg/cache"
	"github.com/sharo-jef/webllm-svg/pkg/cli"
	"github.com/sharo-jef/webllm-svg/pkg/generation"
	"github.com/sharo-jef/webllm-svg/pkg/inference"
	"github.com/sharo-jef/webllm-svg/pkg/kv"
	"github.com/sharo-jef/webllm-svg/pkg/prefs"
	"github.com/sharo-jef/webllm-svg/pkg/storage"
)

// app holds the resources a command works with: the inference adapter,
// the local kv database and artifact directory, and the cache manager over
// all of them.
type app struct {
	settings cli.Settings
	paths    *cli.Paths

	adapter   *inference.OpenAI
	kv        *kv.Badger
	files     *storage.Local
	prefs     *prefs.Store
	artifacts *artifacts.Store
	cache     *cache.Manager
}

func openApp() (*app, error) {
	s, err := GetSettings()
	if err != nil {
		return nil, err
	}
	paths, err := cli.NewPaths(appName)
	if err != nil {
		return nil, err
	}
	if err := paths.Ensure(); err != nil {
		return nil, fmt.Errorf("create app directories: %w", err)
	}

	db, err := kv.NewBadger(kv.BadgerOptions{Dir: paths.KVDir()})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", paths.KVDir(), err)
	}
	files, err := storage.NewLocal(paths.ArtifactsDir())
	if err != nil {
		db.Close()
		return nil, err
	}

	adapter := inference.NewOpenAI(s.BaseURL, s.APIKey)
	adapter.WarmUp = s.WarmUp

	ps := prefs.New(db)
	a := &app{
		settings:  s,
		paths:     paths,
		adapter:   adapter,
		kv:        db,
		files:     files,
		prefs:     ps,
		artifacts: artifacts.New(db, files, slog.Default()),
	}
	a.cache = cache.New(adapter, cache.Options{
		Categories: []cache.Category{
			&cache.KVCategory{Label: "artifact-index", Store: db, Prefix: artifacts.Prefix},
			&cache.FileCategory{Label: "artifact-files", Store: files},
			&cache.KVCategory{Label: "preferences", Store: db, Prefix: ps.Scope()},
		},
	})
	return a, nil
}

func (a *app) Close() error {
	return a.kv.Close()
}

// orchestratorOptions maps the settings onto generation options.
func (a *app) orchestratorOptions(maxAttempts int, skipFree bool, selection string) (generation.Options, error) {
	opts := generation.Options{
		MaxAttempts: a.settings.MaxAttempts,
		Residency:   a.cache,
		Logger:      slog.Default(),
	}
	if maxAttempts > 0 {
		opts.MaxAttempts = maxAttempts
	}
	if skipFree || a.settings.SkipFree {
		opts.SkipPolicy = generation.SkipFree
	}
	switch selection {
	case "", "last":
		opts.Selection = generation.SelectLast
	case "first":
		opts.Selection = generation.SelectFirst
	default:
		return opts, fmt.Errorf("unknown selection %q (want first or last)", selection)
	}
	return opts, nil
}

// defaults is the request template from the settings.
func (a *app) defaults() generation.Request {
	return generation.Request{
		Model:        a.settings.Model,
		Size:         a.settings.Size,
		MaxTokens:    a.settings.MaxTokens,
		Temperature:  a.settings.Temperature,
		CurrentColor: a.settings.CurrentColor,
	}
}

// exportStore returns the S3 store of the context's export settings.
func (a *app) exportStore() (*storage.S3Store, error) {
	exp := a.settings.Export
	if exp == nil || exp.Bucket == "" {
		return nil, errors.New("no export bucket configured for this context")
	}
	return storage.NewS3(newS3Client(exp), exp.Bucket, exp.Prefix), nil
}

// newS3Client builds a client from the export settings and the standard
// AWS_* credential variables. A custom endpoint (MinIO, R2) switches to
// path-style addressing.
func newS3Client(exp *cli.S3Export) *s3.Client {
	region := exp.Region
	if region == "" {
		region = os.Getenv("AWS_REGION")
	}
	if region == "" {
		region = "us-east-1"
	}
	creds := aws.CredentialsProviderFunc(func(context.Context) (aws.Credentials, error) {
		id, secret := os.Getenv("AWS_ACCESS_KEY_ID"), os.Getenv("AWS_SECRET_ACCESS_KEY")
		if id == "" || secret == "" {
			return aws.Credentials{}, errors.New("AWS_ACCESS_KEY_ID and AWS_SECRET_ACCESS_KEY are required for export")
		}
		return aws.Credentials{
			AccessKeyID:     id,
			SecretAccessKey: secret,
			SessionToken:    os.Getenv("AWS_SESSION_TOKEN"),
			Source:          "svgen-env",
		}, nil
	})
	return s3.New(s3.Options{
		Region:       region,
		Credentials:  aws.NewCredentialsCache(creds),
		BaseEndpoint: nonEmpty(exp.Endpoint),
		UsePathStyle: exp.Endpoint != "",
	})
}

func nonEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return aws.String(s)
}
