// Command dhd-sim runs a simulated mixing device.
//
// The simulator serves the websocket control API on /api/ws with an
// in-memory device tree, so the bridge can be exercised without hardware.
//
// Usage:
//
//	dhd-sim [flags]
//
// Flags:
//
//	-listen string     Listen address (default ":8080")
//	-token string      Require this authentication token
//	-tree string       Seed tree file (YAML)
//	-log-level string  Log level: debug, info, warn, error (default "info")
//
// Examples:
//
//	# Serve the built-in tree
//	dhd-sim -listen :8080
//
//	# Serve a custom tree with authentication
//	dhd-sim -tree console.yaml -token secret
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/dhd-bridge/dhd-go/internal/devicesim"
	"github.com/dhd-bridge/dhd-go/pkg/transport"
)

var (
	listen   = flag.String("listen", ":8080", "Listen address")
	token    = flag.String("token", "", "Require this authentication token")
	treeFile = flag.String("tree", "", "Seed tree file (YAML)")
	logLevel = flag.String("log-level", "info", "Log level: debug, info, warn, error")
)

func main() {
	flag.Parse()

	var level slog.Level
	if err := level.UnmarshalText([]byte(*logLevel)); err != nil {
		fmt.Fprintf(os.Stderr, "dhd-sim: %v\n", err)
		os.Exit(2)
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	tree := defaultTree()
	if *treeFile != "" {
		t, err := loadTree(*treeFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "dhd-sim: %v\n", err)
			os.Exit(2)
		}
		tree = t
	}

	sim := devicesim.New(devicesim.Config{Token: *token, Tree: tree, Logger: logger})
	srv := &http.Server{Addr: *listen, Handler: sim, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		logger.Info("simulator listening", "addr", *listen, "path", transport.APIPath, "auth", *token != "")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("shutting down", "signal", sig.String())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	sim.DropAll()
	_ = srv.Shutdown(ctx)
}

// loadTree reads a YAML seed tree. The document root must be a mapping.
func loadTree(name string) (map[string]any, error) {
	data, err := os.ReadFile(name)
	if err != nil {
		return nil, err
	}
	var tree map[string]any
	if err := yaml.Unmarshal(data, &tree); err != nil {
		return nil, fmt.Errorf("parse %s: %w", name, err)
	}
	if tree == nil {
		tree = make(map[string]any)
	}
	return tree, nil
}

// defaultTree is a small console: two faders, two logics.
func defaultTree() map[string]any {
	fader := func(label string) map[string]any {
		return map[string]any{"label": label, "on": true, "pfl1": false, "level": 0.0}
	}
	return map[string]any{
		"general": map[string]any{"name": "dhd-sim"},
		"audio": map[string]any{
			"mixers": map[string]any{
				"0": map[string]any{
					"faders": map[string]any{
						"0": fader("MIC 1"),
						"1": fader("MIC 2"),
					},
				},
			},
		},
		"control": map[string]any{
			"logics": map[string]any{"0": false, "1": false},
		},
	}
}
