// SPDX-FileCopyrightText: Copyright 2026 The Uitsmijter Authors
// SPDX-License-Identifier: Apache-2.0

package app

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/uitsmijter/uitsmijter/pkg/codestore"
	"github.com/uitsmijter/uitsmijter/pkg/config"
	"github.com/uitsmijter/uitsmijter/pkg/entities"
	"github.com/uitsmijter/uitsmijter/pkg/entities/loader"
	"github.com/uitsmijter/uitsmijter/pkg/events"
	"github.com/uitsmijter/uitsmijter/pkg/logger"
	"github.com/uitsmijter/uitsmijter/pkg/script"
	"github.com/uitsmijter/uitsmijter/pkg/server"
	"github.com/uitsmijter/uitsmijter/pkg/server/handlers"
	"github.com/uitsmijter/uitsmijter/pkg/server/middleware"
	"github.com/uitsmijter/uitsmijter/pkg/session"
	"github.com/uitsmijter/uitsmijter/pkg/signer"
	"github.com/uitsmijter/uitsmijter/pkg/templates"
)

func newServeCmd() *cobra.Command {
	var (
		env      string
		hostname string
		port     int
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the authorization server",
		Long: `Run the authorization server: the OAuth endpoints, the login flow, the
forward-auth interceptor and the entity loaders.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			settings := config.Load(env)
			settings.Hostname = hostname
			settings.Port = port
			return runServe(cmd.Context(), settings)
		},
	}

	cmd.Flags().StringVar(&env, "env", "development", "Runtime environment (development or production)")
	cmd.Flags().StringVar(&hostname, "hostname", "", "Address to bind the listener to")
	cmd.Flags().IntVar(&port, "port", 8080, "Port to listen on")
	return cmd
}

func runServe(ctx context.Context, settings *config.Settings) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Infow("starting uitsmijter",
		"environment", settings.Environment,
		"resources", settings.ResourcesRoot,
		"kubernetes", settings.SupportKubernetesCRD,
	)

	secret := settings.JWTSecret
	if secret == "" {
		buf := make([]byte, 32)
		if _, err := rand.Read(buf); err != nil {
			return fmt.Errorf("failed to generate a signing secret: %w", err)
		}
		secret = hex.EncodeToString(buf)
		logger.Warn("JWT_SECRET is unset, generated an ephemeral secret; tokens do not survive restarts")
	}
	sign := signer.New(secret)
	if _, err := sign.ActiveSigningKey(); err != nil {
		return fmt.Errorf("failed to prepare the signing key: %w", err)
	}

	codes, err := buildCodeStore(ctx, settings)
	if err != nil {
		return err
	}
	defer func() {
		if err := codes.Close(); err != nil {
			logger.Warnf("failed to close the code store: %v", err)
		}
	}()

	store := entities.NewStore()
	recorder := events.NewRecorder()
	recorder.Attach(store)

	tmpl := templates.NewLoader(settings.ViewRoot)
	tmpl.Attach(store)

	sessions := session.NewManager(settings.CookieName, settings.Secure)
	scripts := script.NewHost(script.WithTimeout(settings.ScriptTimeout))

	h := handlers.New(settings, store, codes, sign, scripts, sessions, tmpl, recorder)
	router := server.Router(settings, middleware.NewResolver(settings, store, sign, sessions), h, recorder)

	sources := []loader.Source{loader.NewFileSource(settings.ResourcesRoot)}
	if settings.SupportKubernetesCRD {
		namespace := ""
		if settings.ScopedKubernetesCRD {
			namespace = settings.Namespace
		}
		k8s, err := loader.NewKubernetesSource(ctx, namespace)
		if err != nil {
			return fmt.Errorf("failed to connect the control plane: %w", err)
		}
		sources = append(sources, k8s)
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return loader.New(store).Run(ctx, sources...)
	})
	g.Go(func() error {
		return server.Serve(ctx, settings, router)
	})
	return g.Wait()
}

// buildCodeStore selects the session backend: Redis when configured,
// otherwise the in-process store.
func buildCodeStore(ctx context.Context, settings *config.Settings) (codestore.Store, error) {
	if settings.RedisHost == "" {
		logger.Info("using the in-memory code store; sessions do not survive restarts")
		return codestore.NewMemoryStore(), nil
	}

	addr := settings.RedisHost
	if _, _, err := net.SplitHostPort(addr); err != nil {
		addr = net.JoinHostPort(addr, "6379")
	}
	store, err := codestore.NewRedisStore(ctx, addr, settings.RedisPassword)
	if err != nil {
		return nil, fmt.Errorf("failed to connect redis at %s: %w", addr, err)
	}
	logger.Infof("using the redis code store at %s", addr)
	return store, nil
}
