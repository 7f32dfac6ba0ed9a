// Package main provides the entry point for MerLink.
// MerLink connects to Meraki client VPN: it logs in to the Meraki
// dashboard, resolves an organization and network, reads the network's
// client VPN settings and dials the connection with the operating
// system's own L2TP/IPSEC support.
//
// Usage:
//
//	merlink [command] [flags]
//
// Environment:
//
//	MERLINK_USERNAME, MERLINK_PASSWORD, MERLINK_ORGANIZATION and
//	MERLINK_NETWORK override the config file; a .env file in the working
//	directory is read as well.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/yllada/merlink/cli"
	"github.com/yllada/merlink/common"
)

// Build-time variables injected via ldflags (-X main.appVersion=x.y.z)
// Default values are used for local development builds
var (
	appVersion = "dev"
	buildTime  = "unknown"
	commitSHA  = "unknown"
)

func main() {
	os.Exit(run())
}

func run() int {
	// Logs go to the file only; --verbose mirrors them to stderr.
	if err := common.InitLogger(common.LogConfig{
		Level:       common.LevelInfo,
		EnableFile:  true,
		MaxFileSize: 5 * 1024 * 1024, // 5MB
		MaxBackups:  5,
		Quiet:       true,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: Could not initialize file logging: %v\n", err)
	}
	defer common.CloseLogger()

	// Setup graceful shutdown context
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	setupSignalHandler(cancel)

	return cli.New(appVersion, commitSHA, buildTime).Execute(ctx, os.Args[1:])
}

// setupSignalHandler configures graceful shutdown on SIGINT/SIGTERM.
// When a signal is received, it cancels the context so a pending dashboard
// request or tunnel wait returns.
func setupSignalHandler(cancel context.CancelFunc) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		common.LogInfo("Received signal %v, initiating graceful shutdown...", sig)
		cancel()
	}()
}
