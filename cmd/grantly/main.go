// SPDX-FileCopyrightText: Copyright 2026 Grantly Authors
// SPDX-License-Identifier: Apache-2.0

// Package main is the entry point for the grantly authorization server.
package main

import (
	"os"

	"github.com/grantly-io/grantly/cmd/grantly/app"
	"github.com/grantly-io/grantly/pkg/logger"
)

func main() {
	logger.Initialize()

	if err := app.NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
