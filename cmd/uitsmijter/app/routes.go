// SPDX-FileCopyrightText: Copyright 2026 The Uitsmijter Authors
// SPDX-License-Identifier: Apache-2.0

package app

import (
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/spf13/cobra"

	"github.com/uitsmijter/uitsmijter/pkg/codestore"
	"github.com/uitsmijter/uitsmijter/pkg/config"
	"github.com/uitsmijter/uitsmijter/pkg/entities"
	"github.com/uitsmijter/uitsmijter/pkg/events"
	"github.com/uitsmijter/uitsmijter/pkg/script"
	"github.com/uitsmijter/uitsmijter/pkg/server"
	"github.com/uitsmijter/uitsmijter/pkg/server/handlers"
	"github.com/uitsmijter/uitsmijter/pkg/server/middleware"
	"github.com/uitsmijter/uitsmijter/pkg/session"
	"github.com/uitsmijter/uitsmijter/pkg/signer"
	"github.com/uitsmijter/uitsmijter/pkg/templates"
)

func newRoutesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "routes",
		Short: "Print the route table",
		RunE: func(cmd *cobra.Command, _ []string) error {
			settings := config.Load("development")
			settings.DisplayVersion = true
			settings.Metrics = true

			store := entities.NewStore()
			codes := codestore.NewMemoryStore()
			defer func() { _ = codes.Close() }()

			sign := signer.New("routes")
			sessions := session.NewManager(settings.CookieName, settings.Secure)
			recorder := events.NewRecorder()
			h := handlers.New(settings, store, codes, sign, script.NewHost(), sessions,
				templates.NewLoader(settings.ViewRoot), recorder)
			router := server.Router(settings,
				middleware.NewResolver(settings, store, sign, sessions), h, recorder)

			var lines []string
			walker := func(method, route string, _ http.Handler, _ ...func(http.Handler) http.Handler) error {
				lines = append(lines, fmt.Sprintf("%-7s %s", method, strings.ReplaceAll(route, "/*/", "/")))
				return nil
			}
			if err := chi.Walk(router, walker); err != nil {
				return err
			}

			sort.Strings(lines)
			for _, line := range lines {
				cmd.Println(line)
			}
			return nil
		},
	}
}
