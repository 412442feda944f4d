// SPDX-FileCopyrightText: Copyright 2026 The Uitsmijter Authors
// SPDX-License-Identifier: Apache-2.0

// Package main is the entry point for the uitsmijter authorization server.
package main

import (
	"os"

	"github.com/uitsmijter/uitsmijter/cmd/uitsmijter/app"
	"github.com/uitsmijter/uitsmijter/pkg/logger"
)

func main() {
	logger.Initialize()
	defer logger.Sync()

	if err := app.NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
