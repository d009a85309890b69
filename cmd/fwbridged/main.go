package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/celskeggs/theseus-scratch/internal/fwbridge"
	"github.com/celskeggs/theseus-scratch/internal/fwmetrics"
)

// Helper implementations moved to dedicated files: version.go, config.go, logger.go, metrics_logger.go, link_init.go, mdns.go.

const shutdownGrace = 5 * time.Second

func main() {
	cfg, showVersion := parseFlags()
	if showVersion {
		fmt.Printf("fwbridged %s (commit %s, built %s)\n", version, commit, date)
		return
	}
	if cfg == nil {
		os.Exit(1)
	}
	l := setupLogger(cfg.logFormat, cfg.logLevel)
	l.Info("build_info", "version", version, "commit", commit, "date", date)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var wg sync.WaitGroup
	startMetricsLogger(ctx, cfg.logMetricsEvery, l, &wg)

	ex, err := initExchange(cfg, l)
	if err != nil {
		l.Error("link_init_error", "error", err)
		return
	}
	defer func() {
		if err := ex.Detach(); err != nil {
			l.Warn("link_detach_error", "error", err)
		}
	}()

	hub := fwbridge.NewHub()
	hub.OutBufSize = cfg.hubBuffer
	switch cfg.hubPolicy {
	case "drop":
		hub.Policy = fwbridge.PolicyDrop
	case "kick":
		hub.Policy = fwbridge.PolicyKick
	default:
		l.Warn("unknown_hub_policy", "policy", cfg.hubPolicy, "used", "drop")
		hub.Policy = fwbridge.PolicyDrop
	}
	l.Info("hub_config", "policy", cfg.hubPolicy, "buffer", hub.OutBufSize)

	srv := fwbridge.NewServer(
		fwbridge.WithHub(hub),
		fwbridge.WithExchange(ex),
		fwbridge.WithLogger(l),
		fwbridge.WithListenAddr(cfg.listenAddr),
		fwbridge.WithMaxClients(cfg.maxClients),
		fwbridge.WithHandshakeTimeout(cfg.handshakeTO),
	)
	go func() {
		if err := srv.Serve(ctx); err != nil {
			l.Error("tcp_server_error", "error", err)
			cancel()
		}
	}()

	go func() {
		if !cfg.mdnsEnable {
			return
		}
		select {
		case <-srv.Ready():
		case <-ctx.Done():
			return
		}
		addr := srv.Addr()
		var portNum int
		if _, p, err := net.SplitHostPort(addr); err == nil {
			if pn, perr := strconv.Atoi(p); perr == nil {
				portNum = pn
			}
		}
		if portNum == 0 {
			lastColon := strings.LastIndex(addr, ":")
			if lastColon >= 0 {
				if pn, perr := strconv.Atoi(addr[lastColon+1:]); perr == nil {
					portNum = pn
				}
			}
		}
		cleanupMDNS, err := startMDNS(ctx, cfg, portNum)
		if err != nil {
			l.Warn("mdns_start_failed", "error", err)
			return
		}
		l.Info("mdns_started", "service", mdnsServiceType, "name", cfg.mdnsName, "port", portNum)
		go func() { <-ctx.Done(); cleanupMDNS() }()
	}()

	fwmetrics.SetReadinessFunc(func() bool {
		select {
		case <-srv.Ready():
		default:
			return false
		}
		return ctx.Err() == nil
	})
	if cfg.metricsAddr != "" {
		srvHTTP := fwmetrics.StartHTTP(cfg.metricsAddr)
		defer func() { _ = srvHTTP.Shutdown(context.Background()) }()
	}

	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	s := <-sigCh
	l.Info("shutdown_signal", "signal", s.String())
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		l.Warn("bridge_shutdown_error", "error", err)
	}
	wg.Wait()
}
