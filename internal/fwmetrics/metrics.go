// Package fwmetrics exposes Prometheus counters/gauges for the fakewire
// link and a cheap local snapshot for non-Prometheus logging.
package fwmetrics

import (
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/celskeggs/theseus-scratch/internal/fwlog"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	BytesRx = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fw_bytes_rx_total",
		Help: "Total raw bytes read from the transport.",
	})
	BytesTx = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fw_bytes_tx_total",
		Help: "Total raw bytes written to the transport.",
	})
	PacketsRx = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fw_packets_rx_total",
		Help: "Total packets delivered to ReadPacket.",
	})
	PacketsTx = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fw_packets_tx_total",
		Help: "Total packets handed to WritePacket.",
	})
	PacketsTruncated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fw_packets_truncated_total",
		Help: "Total received packets that exceeded the caller's buffer.",
	})
	CodecErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fw_codec_errors_total",
		Help: "Total CODEC_ERROR events raised by the decoder.",
	})
	Resets = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fw_resets_total",
		Help: "Total transitions back to CONNECTING due to a protocol violation or collision.",
	})
	HandshakesSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fw_handshakes_sent_total",
		Help: "Total HANDSHAKE_1/HANDSHAKE_2 symbols sent.",
	})
	HandshakesMatched = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fw_handshakes_matched_total",
		Help: "Total times OPERATING was reached via a matched handshake.",
	})
	CreditsIssued = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fw_credits_issued_total",
		Help: "Total FLOW_CONTROL symbols sent (credits extended to the peer).",
	})
	CreditsConsumed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fw_credits_consumed_total",
		Help: "Total FLOW_CONTROL symbols received (credits available to us).",
	})
	LinkUp = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "fw_link_operating",
		Help: "1 if the exchange is currently OPERATING, else 0.",
	})
	Errors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fw_errors_total",
		Help: "Error counters by subsystem.",
	}, []string{"where"})

	BridgeClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "fw_bridge_clients",
		Help: "Number of TCP monitor/inject clients currently connected to the bridge.",
	})
	BridgeBroadcastDrop = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fw_bridge_broadcast_drop_total",
		Help: "Total monitor packets dropped because a client's outbound queue was full.",
	})
	BridgeBroadcastKick = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fw_bridge_broadcast_kick_total",
		Help: "Total clients disconnected because their outbound queue was full.",
	})

	readinessMu sync.RWMutex
	readinessFn func() bool
)

// Error label constants (stable label values to bound cardinality).
const (
	ErrTransportRead   = "transport_read"
	ErrTransportWrite  = "transport_write"
	ErrBridgeAccept    = "bridge_accept"
	ErrBridgeIO        = "bridge_io"
	ErrBridgeHandshake = "bridge_handshake"
)

// StartHTTP serves Prometheus metrics at /metrics and a readiness probe at
// /ready.
func StartHTTP(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		if IsReady() {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ready\n"))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("not ready\n"))
	})
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		fwlog.L().Info("metrics_listen", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			fwlog.L().Error("metrics_http_error", "error", err)
		}
	}()
	return srv
}

// Local mirrored counters for cheap periodic logging.
var (
	localBytesRx     uint64
	localBytesTx     uint64
	localPacketsRx   uint64
	localPacketsTx   uint64
	localTruncated   uint64
	localCodecErrors uint64
	localResets      uint64
	localHandshakeOK uint64
	localErrors      uint64
)

// Snapshot is a cheap copy of the local counters.
type Snapshot struct {
	BytesRx      uint64
	BytesTx      uint64
	PacketsRx    uint64
	PacketsTx    uint64
	Truncated    uint64
	CodecErrors  uint64
	Resets       uint64
	HandshakesOK uint64
	Errors       uint64
}

func Snap() Snapshot {
	return Snapshot{
		BytesRx:      atomic.LoadUint64(&localBytesRx),
		BytesTx:      atomic.LoadUint64(&localBytesTx),
		PacketsRx:    atomic.LoadUint64(&localPacketsRx),
		PacketsTx:    atomic.LoadUint64(&localPacketsTx),
		Truncated:    atomic.LoadUint64(&localTruncated),
		CodecErrors:  atomic.LoadUint64(&localCodecErrors),
		Resets:       atomic.LoadUint64(&localResets),
		HandshakesOK: atomic.LoadUint64(&localHandshakeOK),
		Errors:       atomic.LoadUint64(&localErrors),
	}
}

func AddBytesRx(n int) {
	BytesRx.Add(float64(n))
	atomic.AddUint64(&localBytesRx, uint64(n))
}

func AddBytesTx(n int) {
	BytesTx.Add(float64(n))
	atomic.AddUint64(&localBytesTx, uint64(n))
}

func IncPacketsRx() {
	PacketsRx.Inc()
	atomic.AddUint64(&localPacketsRx, 1)
}

func IncPacketsTx() {
	PacketsTx.Inc()
	atomic.AddUint64(&localPacketsTx, 1)
}

func IncTruncated() {
	PacketsTruncated.Inc()
	atomic.AddUint64(&localTruncated, 1)
}

func IncCodecError() {
	CodecErrors.Inc()
	atomic.AddUint64(&localCodecErrors, 1)
}

func IncReset() {
	Resets.Inc()
	atomic.AddUint64(&localResets, 1)
}

func IncHandshakeSent() { HandshakesSent.Inc() }

func IncHandshakeMatched() {
	HandshakesMatched.Inc()
	atomic.AddUint64(&localHandshakeOK, 1)
}

func IncCreditIssued()   { CreditsIssued.Inc() }
func IncCreditConsumed() { CreditsConsumed.Inc() }

func SetLinkUp(up bool) {
	if up {
		LinkUp.Set(1)
	} else {
		LinkUp.Set(0)
	}
}

func SetBridgeClients(n int) { BridgeClients.Set(float64(n)) }
func IncBridgeDrop()         { BridgeBroadcastDrop.Inc() }
func IncBridgeKick()         { BridgeBroadcastKick.Inc() }

func IncError(label string) {
	Errors.WithLabelValues(label).Inc()
	atomic.AddUint64(&localErrors, 1)
}

// SetReadinessFunc registers a function used by /ready and IsReady.
func SetReadinessFunc(fn func() bool) { readinessMu.Lock(); readinessFn = fn; readinessMu.Unlock() }

// IsReady invokes the registered readiness function if present.
func IsReady() bool {
	readinessMu.RLock()
	fn := readinessFn
	readinessMu.RUnlock()
	if fn == nil {
		return true
	}
	return fn()
}
