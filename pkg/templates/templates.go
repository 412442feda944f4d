// SPDX-FileCopyrightText: Copyright 2026 The Uitsmijter Authors
// SPDX-License-Identifier: Apache-2.0

// Package templates renders the HTML pages of the authorization server
// and keeps per-tenant template overrides synchronized from an object
// store into the local view root.
package templates

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"html/template"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/uitsmijter/uitsmijter/pkg/entities"
	"github.com/uitsmijter/uitsmijter/pkg/logger"
)

// Pages every tenant may override.
var Pages = []string{"index", "login", "logout", "error"}

// fetchTimeout bounds one object-store download.
const fetchTimeout = 30 * time.Second

//go:embed defaults/*.html
var defaultFS embed.FS

// ObjectFetcher is the narrow slice of the S3 API the loader needs.
type ObjectFetcher interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// ClientFactory builds an object-store client for a tenant's template
// source. Tests swap it for a fake.
type ClientFactory func(ctx context.Context, src *entities.TemplateSource) (ObjectFetcher, error)

// Loader resolves and renders templates and mirrors tenant overrides
// from the object store.
type Loader struct {
	viewRoot string
	factory  ClientFactory
}

// LoaderOption configures a Loader.
type LoaderOption func(*Loader)

// WithClientFactory overrides the object-store client construction.
func WithClientFactory(factory ClientFactory) LoaderOption {
	return func(l *Loader) {
		l.factory = factory
	}
}

// NewLoader creates a template loader rooted at viewRoot.
func NewLoader(viewRoot string, opts ...LoaderOption) *Loader {
	l := &Loader{
		viewRoot: viewRoot,
		factory:  newS3Client,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// newS3Client builds a real S3 client from the tenant's descriptor.
func newS3Client(ctx context.Context, src *entities.TemplateSource) (ObjectFetcher, error) {
	region := src.Region
	if region == "" {
		region = "us-east-1"
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(region),
		awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(src.AccessKeyID, src.SecretAccessKey, ""),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to configure object store client: %w", err)
	}

	return s3.NewFromConfig(cfg, func(o *s3.Options) {
		if src.Host != "" {
			o.BaseEndpoint = aws.String(src.Host)
			o.UsePathStyle = true
		}
	}), nil
}

// Attach subscribes the loader to registry changes: tenant additions
// trigger a fetch, removals drop the slug directory. Fetches run on a
// background goroutine so the registry mutator never blocks on I/O.
func (l *Loader) Attach(store *entities.Store) {
	store.Subscribe(func(change entities.Change) {
		if change.Tenant == nil {
			return
		}
		tenant := change.Tenant

		switch change.Kind {
		case entities.EntityAdded:
			if tenant.Config.Templates == nil {
				return
			}
			go func() {
				if err := l.FetchTenant(context.Background(), tenant); err != nil {
					logger.Errorf("failed to fetch templates for tenant %s: %v", tenant.Name, err)
				}
			}()
		case entities.EntityRemoved:
			l.RemoveTenant(tenant.Name)
		}
	})
}

// FetchTenant downloads the tenant's template set into the view root.
// Missing objects are skipped, existing files are replaced atomically.
func (l *Loader) FetchTenant(ctx context.Context, tenant *entities.Tenant) error {
	src := tenant.Config.Templates
	if src == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, fetchTimeout)
	defer cancel()

	client, err := l.factory(ctx, src)
	if err != nil {
		return err
	}

	dir := filepath.Join(l.viewRoot, tenant.Name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create template directory: %w", err)
	}

	fetched := 0
	for _, page := range Pages {
		key := src.Path + "/" + page + ".html"
		out, err := client.GetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(src.Bucket),
			Key:    aws.String(key),
		})
		if err != nil {
			logger.Debugw("template object not fetched", "tenant", tenant.Name, "key", key, "error", err)
			continue
		}

		data, err := io.ReadAll(out.Body)
		_ = out.Body.Close()
		if err != nil {
			return fmt.Errorf("failed to read template object %s: %w", key, err)
		}

		if err := writeAtomic(filepath.Join(dir, page+".html"), data); err != nil {
			return err
		}
		fetched++
	}

	logger.Infow("fetched tenant templates", "tenant", tenant.Name, "count", fetched)
	return nil
}

// writeAtomic replaces the target via a rename so readers never see a
// half-written file.
func writeAtomic(target string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(target), ".template-*")
	if err != nil {
		return fmt.Errorf("failed to stage template: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("failed to stage template: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("failed to stage template: %w", err)
	}
	if err := os.Rename(tmp.Name(), target); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("failed to replace template: %w", err)
	}
	return nil
}

// RemoveTenant deletes the tenant's template directory.
func (l *Loader) RemoveTenant(slug string) {
	if slug == "" {
		return
	}
	if err := os.RemoveAll(filepath.Join(l.viewRoot, slug)); err != nil {
		logger.Errorf("failed to remove templates for tenant %s: %v", slug, err)
	}
}

// resolve walks the fallback chain and returns the template source.
// Chain: <slug>/<page>, <slug>/index, default/<page> on disk, then the
// embedded defaults.
func (l *Loader) resolve(slug, page string) ([]byte, error) {
	candidates := []string{}
	if slug != "" {
		candidates = append(candidates,
			filepath.Join(l.viewRoot, slug, page+".html"),
			filepath.Join(l.viewRoot, slug, "index.html"),
		)
	}
	candidates = append(candidates,
		filepath.Join(l.viewRoot, "default", page+".html"),
		filepath.Join(l.viewRoot, "default", "index.html"),
	)

	for _, path := range candidates {
		data, err := os.ReadFile(path)
		if err == nil {
			return data, nil
		}
	}

	data, err := defaultFS.ReadFile("defaults/" + page + ".html")
	if err == nil {
		return data, nil
	}
	return defaultFS.ReadFile("defaults/index.html")
}

// PageData carries everything the built-in pages interpolate.
type PageData struct {
	Title       string
	Reason      string
	Status      int
	Location    string
	RequestURI  string
	TenantName  string
	ImprintURL  string
	PrivacyURL  string
	RegisterURL string
	Payload     any
}

// Render writes the resolved page for the tenant. The render buffers
// first so a template fault never produces a torn response.
func (l *Loader) Render(w http.ResponseWriter, slug, page string, status int, data *PageData) error {
	source, err := l.resolve(slug, page)
	if err != nil {
		return fmt.Errorf("no template for page %q: %w", page, err)
	}

	tmpl, err := template.New(page).Parse(string(source))
	if err != nil {
		return fmt.Errorf("failed to parse template %q: %w", page, err)
	}

	var buf bytes.Buffer
	if data == nil {
		data = &PageData{}
	}
	if err := tmpl.Execute(&buf, data); err != nil {
		return fmt.Errorf("failed to render template %q: %w", page, err)
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, err = w.Write(buf.Bytes())
	return err
}
