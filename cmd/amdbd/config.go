// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

// The amdbd service: an optional long-running wrapper around the amdb
// façade exposing liveness/readiness endpoints for operators who want AmDb
// running as its own process rather than embedded in another binary.
package main

import (
	"os"
	"strings"
)

// serverConfig holds the operator-facing toggles amdbd itself needs, on top
// of the amdb.Config values LoadConfig already reads from the environment.
type serverConfig struct {
	Port string
	Bind string
}

func loadServerConfig() serverConfig {
	cfg := serverConfig{
		Port: os.Getenv("AMDBD_PORT"),
		Bind: os.Getenv("AMDBD_BIND"),
	}
	if cfg.Port == "" {
		cfg.Port = "8080"
	}
	if cfg.Bind == "" {
		cfg.Bind = "*"
	}
	return cfg
}

func listenAddr(bind, port string) string {
	if strings.TrimSpace(bind) == "*" {
		return ":" + port
	}
	return bind + ":" + port
}
