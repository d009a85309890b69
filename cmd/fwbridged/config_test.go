package main

import (
	"testing"
	"time"
)

func TestConfigValidate_OK(t *testing.T) {
	c := &appConfig{
		linkPath:     "/dev/null",
		linkMode:     "serial",
		baud:         115200,
		listenAddr:   ":20100",
		linkReadTO:   10 * time.Millisecond,
		logFormat:    "text",
		logLevel:     "info",
		hubBuffer:    8,
		hubPolicy:    "drop",
		maxClients:   0,
		handshakeTO:  time.Second,
		clientReadTO: time.Second,
	}
	if err := c.validate(); err != nil {
		t.Fatalf("expected ok got %v", err)
	}
}

func TestConfigValidate_Errors(t *testing.T) {
	tests := []struct {
		name string
		mod  func(*appConfig)
	}{
		{"badFormat", func(c *appConfig) { c.logFormat = "xx" }},
		{"badLevel", func(c *appConfig) { c.logLevel = "nope" }},
		{"badLinkMode", func(c *appConfig) { c.linkMode = "x" }},
		{"badPolicy", func(c *appConfig) { c.hubPolicy = "x" }},
		{"badHubBuf", func(c *appConfig) { c.hubBuffer = 0 }},
		{"badBaud", func(c *appConfig) { c.baud = 0 }},
		{"badLinkReadTO", func(c *appConfig) { c.linkReadTO = 0 }},
		{"badHandshakeTO", func(c *appConfig) { c.handshakeTO = 0 }},
		{"badClientReadTO", func(c *appConfig) { c.clientReadTO = 0 }},
		{"badMaxClients", func(c *appConfig) { c.maxClients = -1 }},
	}
	for _, tc := range tests {
		base := &appConfig{
			linkPath: "/dev/null", linkMode: "serial", baud: 115200, listenAddr: ":20100", linkReadTO: 10 * time.Millisecond,
			logFormat: "text", logLevel: "info", hubBuffer: 8, hubPolicy: "drop",
			maxClients: 0, handshakeTO: time.Second, clientReadTO: time.Second,
		}
		tc.mod(base)
		if err := base.validate(); err == nil {
			t.Fatalf("%s: expected error", tc.name)
		}
	}
}

func TestLinkModeValue(t *testing.T) {
	c := &appConfig{linkMode: "fifo-cons"}
	if _, err := c.linkModeValue(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	c.linkMode = "bogus"
	if _, err := c.linkModeValue(); err == nil {
		t.Fatalf("expected error for bogus link mode")
	}
}
