package main

import (
	"os"
	"strconv"
)

type config struct {
	port            string
	databaseURL     string
	probeKeepLimit  int
	shutdownTimeout int
}

func loadConfig() config {
	return config{
		port:            envStr("GATEWAY_PORT", "8000"),
		databaseURL:     envStr("DATABASE_URL", ""),
		probeKeepLimit:  envInt("PROBE_HISTORY_LIMIT", 100),
		shutdownTimeout: envInt("SHUTDOWN_TIMEOUT_SECONDS", 30),
	}
}

func envStr(key, fallback string) string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	return val
}

func envInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return n
}
