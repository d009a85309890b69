package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/celskeggs/theseus-scratch/internal/fwtransport"
)

type appConfig struct {
	linkPath        string
	linkMode        string
	baud            int
	linkReadTO      time.Duration
	listenAddr      string
	logFormat       string
	logLevel        string
	metricsAddr     string
	hubBuffer       int
	hubPolicy       string
	logMetricsEvery time.Duration
	maxClients      int
	handshakeTO     time.Duration
	clientReadTO    time.Duration
	mdnsEnable      bool
	mdnsName        string
}

func parseFlags() (*appConfig, bool) {
	cfg := &appConfig{}
	linkPath := flag.String("link", "/dev/ttyUSB0", "Link device path (or FIFO base path for fifo-cons/fifo-prod)")
	linkMode := flag.String("link-mode", "serial", "Link mode: serial|virtio|fifo-cons|fifo-prod")
	baud := flag.Int("baud", 115200, "Serial baud rate (ignored for virtio/fifo modes)")
	linkReadTO := flag.Duration("link-read-timeout", 50*time.Millisecond, "Underlying link poll timeout")
	listen := flag.String("listen", ":20100", "TCP listen address for the monitor/inject bridge")
	logFormat := flag.String("log-format", "text", "Log format: text|json")
	logLevel := flag.String("log-level", "info", "Log level: debug|info|warn|error")
	metricsAddr := flag.String("metrics-addr", "", "Metrics HTTP listen address (e.g., :9100); empty disables")
	hubBuf := flag.Int("hub-buffer", 64, "Per-client outbound buffer (packets)")
	hubPolicy := flag.String("hub-policy", "drop", "Backpressure policy: drop|kick")
	logMetricsEvery := flag.Duration("log-metrics-interval", 0, "If >0, periodically log link health counters")
	maxClients := flag.Int("max-clients", 0, "Maximum simultaneous TCP clients (0 = unlimited)")
	handshakeTO := flag.Duration("handshake-timeout", 3*time.Second, "Client handshake timeout")
	clientReadTO := flag.Duration("client-read-timeout", 60*time.Second, "Per-connection read deadline (validated only; the bridge server uses its built-in 60s deadline)")
	mdnsEnable := flag.Bool("mdns-enable", false, "Enable mDNS advertisement of the bridge port")
	mdnsName := flag.String("mdns-name", "", "mDNS instance name (default fwbridge-<hostname>)")
	showVersion := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	setFlags := map[string]struct{}{}
	flag.Visit(func(f *flag.Flag) { setFlags[f.Name] = struct{}{} })

	cfg.linkPath = *linkPath
	cfg.linkMode = *linkMode
	cfg.baud = *baud
	cfg.linkReadTO = *linkReadTO
	cfg.listenAddr = *listen
	cfg.logFormat = *logFormat
	cfg.logLevel = *logLevel
	cfg.metricsAddr = *metricsAddr
	cfg.hubBuffer = *hubBuf
	cfg.hubPolicy = *hubPolicy
	cfg.logMetricsEvery = *logMetricsEvery
	cfg.maxClients = *maxClients
	cfg.handshakeTO = *handshakeTO
	cfg.clientReadTO = *clientReadTO
	cfg.mdnsEnable = *mdnsEnable
	cfg.mdnsName = *mdnsName

	if err := applyEnvOverrides(cfg, setFlags); err != nil {
		fmt.Printf("environment override error: %v\n", err)
		return nil, *showVersion
	}
	if err := cfg.validate(); err != nil {
		fmt.Printf("configuration error: %v\n", err)
		return nil, *showVersion
	}
	return cfg, *showVersion
}

// linkModeValue maps the configured string to the fwtransport.Mode it opens.
func (c *appConfig) linkModeValue() (fwtransport.Mode, error) {
	switch c.linkMode {
	case "serial":
		return fwtransport.ModeSerial, nil
	case "virtio":
		return fwtransport.ModeVirtio, nil
	case "fifo-cons":
		return fwtransport.ModeFIFOConsumer, nil
	case "fifo-prod":
		return fwtransport.ModeFIFOProducer, nil
	default:
		return 0, fmt.Errorf("unknown link-mode %q", c.linkMode)
	}
}

// validate performs basic semantic validation of the parsed configuration.
// It does not attempt to open the link or listener, only checks values.
func (c *appConfig) validate() error {
	if c == nil {
		return errors.New("nil config")
	}
	switch c.logFormat {
	case "text", "json":
	default:
		return fmt.Errorf("invalid log-format: %s", c.logFormat)
	}
	switch c.logLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log-level: %s", c.logLevel)
	}
	if _, err := c.linkModeValue(); err != nil {
		return err
	}
	switch c.hubPolicy {
	case "drop", "kick":
	default:
		return fmt.Errorf("invalid hub-policy: %s", c.hubPolicy)
	}
	if c.hubBuffer <= 0 {
		return fmt.Errorf("hub-buffer must be > 0 (got %d)", c.hubBuffer)
	}
	if c.baud <= 0 {
		return fmt.Errorf("baud must be > 0 (got %d)", c.baud)
	}
	if c.linkReadTO <= 0 {
		return fmt.Errorf("link-read-timeout must be > 0")
	}
	if c.handshakeTO <= 0 {
		return fmt.Errorf("handshake-timeout must be > 0")
	}
	if c.clientReadTO <= 0 {
		return fmt.Errorf("client-read-timeout must be > 0")
	}
	if c.maxClients < 0 {
		return fmt.Errorf("max-clients must be >= 0")
	}
	return nil
}

// applyEnvOverrides maps FWBRIDGED_* environment variables to config fields
// unless a corresponding flag was explicitly set. Boolean & numeric parsing
// is lax: empty values ignored. Duration accepts Go time.ParseDuration format.
func applyEnvOverrides(c *appConfig, set map[string]struct{}) error {
	var firstErr error
	get := func(k string) (string, bool) { v, ok := os.LookupEnv(k); return strings.TrimSpace(v), ok }
	if _, ok := set["link"]; !ok {
		if v, ok := get("FWBRIDGED_LINK"); ok && v != "" {
			c.linkPath = v
		}
	}
	if _, ok := set["link-mode"]; !ok {
		if v, ok := get("FWBRIDGED_LINK_MODE"); ok && v != "" {
			c.linkMode = v
		}
	}
	if _, ok := set["baud"]; !ok {
		if v, ok := get("FWBRIDGED_BAUD"); ok && v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 {
				c.baud = n
			} else if err != nil && firstErr == nil {
				firstErr = fmt.Errorf("invalid FWBRIDGED_BAUD: %w", err)
			}
		}
	}
	if _, ok := set["link-read-timeout"]; !ok {
		if v, ok := get("FWBRIDGED_LINK_READ_TIMEOUT"); ok && v != "" {
			if d, err := time.ParseDuration(v); err == nil && d > 0 {
				c.linkReadTO = d
			} else if err != nil && firstErr == nil {
				firstErr = fmt.Errorf("invalid FWBRIDGED_LINK_READ_TIMEOUT: %w", err)
			}
		}
	}
	if _, ok := set["listen"]; !ok {
		if v, ok := get("FWBRIDGED_LISTEN"); ok && v != "" {
			c.listenAddr = v
		}
	}
	if _, ok := set["log-format"]; !ok {
		if v, ok := get("FWBRIDGED_LOG_FORMAT"); ok && v != "" {
			c.logFormat = v
		}
	}
	if _, ok := set["log-level"]; !ok {
		if v, ok := get("FWBRIDGED_LOG_LEVEL"); ok && v != "" {
			c.logLevel = v
		}
	}
	if _, ok := set["metrics-addr"]; !ok {
		if v, ok := get("FWBRIDGED_METRICS"); ok {
			c.metricsAddr = v
		}
	}
	if _, ok := set["hub-buffer"]; !ok {
		if v, ok := get("FWBRIDGED_HUB_BUFFER"); ok && v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 {
				c.hubBuffer = n
			} else if err != nil && firstErr == nil {
				firstErr = fmt.Errorf("invalid FWBRIDGED_HUB_BUFFER: %w", err)
			}
		}
	}
	if _, ok := set["hub-policy"]; !ok {
		if v, ok := get("FWBRIDGED_HUB_POLICY"); ok && v != "" {
			c.hubPolicy = v
		}
	}
	if _, ok := set["max-clients"]; !ok {
		if v, ok := get("FWBRIDGED_MAX_CLIENTS"); ok && v != "" {
			if n, err := strconv.Atoi(v); err == nil && n >= 0 {
				c.maxClients = n
			} else if err != nil && firstErr == nil {
				firstErr = fmt.Errorf("invalid FWBRIDGED_MAX_CLIENTS: %w", err)
			}
		}
	}
	if _, ok := set["handshake-timeout"]; !ok {
		if v, ok := get("FWBRIDGED_HANDSHAKE_TIMEOUT"); ok && v != "" {
			if d, err := time.ParseDuration(v); err == nil && d > 0 {
				c.handshakeTO = d
			} else if err != nil && firstErr == nil {
				firstErr = fmt.Errorf("invalid FWBRIDGED_HANDSHAKE_TIMEOUT: %w", err)
			}
		}
	}
	if _, ok := set["client-read-timeout"]; !ok {
		if v, ok := get("FWBRIDGED_CLIENT_READ_TIMEOUT"); ok && v != "" {
			if d, err := time.ParseDuration(v); err == nil && d > 0 {
				c.clientReadTO = d
			} else if err != nil && firstErr == nil {
				firstErr = fmt.Errorf("invalid FWBRIDGED_CLIENT_READ_TIMEOUT: %w", err)
			}
		}
	}
	if _, ok := set["mdns-enable"]; !ok {
		if v, ok := get("FWBRIDGED_MDNS_ENABLE"); ok && v != "" {
			switch strings.ToLower(v) {
			case "1", "true", "yes", "on":
				c.mdnsEnable = true
			case "0", "false", "no", "off":
				c.mdnsEnable = false
			}
		}
	}
	if _, ok := set["mdns-name"]; !ok {
		if v, ok := get("FWBRIDGED_MDNS_NAME"); ok && v != "" {
			c.mdnsName = v
		}
	}
	if _, ok := set["log-metrics-interval"]; !ok {
		if v, ok := get("FWBRIDGED_LOG_METRICS_INTERVAL"); ok && v != "" {
			if d, err := time.ParseDuration(v); err == nil && d >= 0 {
				c.logMetricsEvery = d
			} else if err != nil && firstErr == nil {
				firstErr = fmt.Errorf("invalid FWBRIDGED_LOG_METRICS_INTERVAL: %w", err)
			}
		}
	}
	return firstErr
}
