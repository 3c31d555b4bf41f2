package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/itoreflect/reflector"
	"github.com/itoreflect/reflector/internal/classify"
	"github.com/itoreflect/reflector/internal/logging"
)

func main() {
	var (
		ifname  = flag.String("iface", "", "network interface to reflect ITO traffic on")
		workers = flag.Int("workers", 0, "number of worker queues, 0 = probe the interface")
		port    = flag.Uint("port", 0, "ITO UDP port, 0 = accept any UDP destination port")
		mode    = flag.String("mode", "full", "reflect mode: mac, mac-ip, or full")
		verbose = flag.Bool("v", false, "verbose output")
	)
	flag.Parse()

	if *ifname == "" {
		fmt.Fprintln(os.Stderr, "usage: itoreflector -iface <name> [-workers N] [-port N] [-mode mac|mac-ip|full]")
		os.Exit(2)
	}

	logConfig := logging.DefaultConfig()
	if *verbose {
		logConfig.Level = logging.LevelDebug
	}
	logger := logging.NewLogger(logConfig)
	logging.SetDefault(logger)

	r, err := reflector.Init(*ifname)
	if err != nil {
		logger.Error("failed to initialize reflector", "iface", *ifname, "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := r.Cleanup(); err != nil {
			logger.Error("cleanup failed", "error", err)
		}
	}()

	cfg := r.GetConfig()
	cfg.NumWorkers = *workers
	cfg.ITOPort = uint16(*port)
	cfg.Logger = logger
	reflectMode, err := parseMode(*mode)
	if err != nil {
		logger.Error("invalid mode", "mode", *mode, "error", err)
		os.Exit(2)
	}
	cfg.ReflectMode = reflectMode
	if err := r.SetConfig(cfg); err != nil {
		logger.Error("failed to apply configuration", "error", err)
		os.Exit(1)
	}

	if err := r.Start(); err != nil {
		logger.Error("failed to start reflector", "error", err)
		os.Exit(1)
	}
	logger.Info("reflector running", "iface", *ifname, "workers", cfg.NumWorkers)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	statsTicker := time.NewTicker(5 * time.Second)
	defer statsTicker.Stop()

	for {
		select {
		case <-sigCh:
			logger.Info("received shutdown signal")
			if err := r.Stop(); err != nil {
				logger.Error("error stopping reflector", "error", err)
				os.Exit(1)
			}
			return
		case <-statsTicker.C:
			r.ReportMetrics()
			snap := r.GetSnapshot()
			logger.Info("stats",
				"pps", fmt.Sprintf("%.0f", snap.PacketsPerSec),
				"mbps", fmt.Sprintf("%.2f", snap.MbitsPerSec),
				"received", snap.PacketsReceived,
				"reflected", snap.PacketsReflected,
				"error_rate", fmt.Sprintf("%.4f", snap.ErrorRate))
		}
	}
}

func parseMode(s string) (classify.ReflectMode, error) {
	switch s {
	case "mac":
		return classify.ModeMACOnly, nil
	case "mac-ip":
		return classify.ModeMACAndIP, nil
	case "full":
		return classify.ModeMACIPAndPorts, nil
	default:
		return 0, fmt.Errorf("unknown mode %q, want mac, mac-ip, or full", s)
	}
}
