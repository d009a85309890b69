package fwbridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/celskeggs/theseus-scratch/internal/fwlog"
	"github.com/celskeggs/theseus-scratch/internal/fwmetrics"
)

// PacketExchange is the minimal view of *fwexchange.Exchange the bridge
// needs, kept as an interface so the server doesn't care whether it's
// fronting a real link or a test double.
type PacketExchange interface {
	ReadPacket(buf []byte) (int, error)
	WritePacket(data []byte) error
}

const (
	defaultHandshakeTimeout = 3 * time.Second
	defaultReadDeadline     = 60 * time.Second
	defaultFlushInterval    = 5 * time.Millisecond
	defaultRecvBufSize      = 65536
)

// Server owns the TCP listener that exposes one fakewire exchange to
// monitor/inject clients.
type Server struct {
	mu       sync.RWMutex
	addr     string
	Hub      *Hub
	Exchange PacketExchange

	handshakeTimeout time.Duration
	readDeadline     time.Duration
	flushInterval    time.Duration
	recvBufSize      int
	maxClients       int

	readyOnce  sync.Once
	readyCh    chan struct{}
	lastErrMu  sync.Mutex
	lastErr    error
	errCh      chan error
	listener   net.Listener
	clientsMu  sync.RWMutex
	clients    map[*Client]net.Conn
	wg         sync.WaitGroup
	logger     *slog.Logger
	nextConnID uint64

	totalAccepted      atomic.Uint64
	totalHandshakeFail atomic.Uint64
	totalConnected     atomic.Uint64
	totalDisconnected  atomic.Uint64
}

// ServerOption configures a Server at construction time.
type ServerOption func(*Server)

// NewServer builds a Server with sensible option-function defaults.
func NewServer(opts ...ServerOption) *Server {
	s := &Server{
		handshakeTimeout: defaultHandshakeTimeout,
		readDeadline:     defaultReadDeadline,
		flushInterval:    defaultFlushInterval,
		recvBufSize:      defaultRecvBufSize,
		readyCh:          make(chan struct{}),
		errCh:            make(chan error, 1),
		clients:          make(map[*Client]net.Conn),
		logger:           fwlog.L(),
	}
	for _, o := range opts {
		o(s)
	}
	if s.addr == "" {
		s.addr = ":0"
	}
	if s.Hub == nil {
		s.Hub = NewHub()
	}
	return s
}

func WithListenAddr(a string) ServerOption       { return func(s *Server) { s.addr = a } }
func WithHub(h *Hub) ServerOption                { return func(s *Server) { s.Hub = h } }
func WithExchange(e PacketExchange) ServerOption { return func(s *Server) { s.Exchange = e } }
func WithLogger(l *slog.Logger) ServerOption {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}
func WithMaxClients(n int) ServerOption {
	return func(s *Server) {
		if n > 0 {
			s.maxClients = n
		}
	}
}
func WithHandshakeTimeout(d time.Duration) ServerOption {
	return func(s *Server) {
		if d > 0 {
			s.handshakeTimeout = d
		}
	}
}

func (s *Server) Addr() string           { s.mu.RLock(); defer s.mu.RUnlock(); return s.addr }
func (s *Server) setAddr(a string)       { s.mu.Lock(); s.addr = a; s.mu.Unlock() }
func (s *Server) Ready() <-chan struct{} { return s.readyCh }
func (s *Server) Errors() <-chan error   { return s.errCh }

func (s *Server) setError(err error) {
	if err == nil {
		return
	}
	s.lastErrMu.Lock()
	s.lastErr = err
	s.lastErrMu.Unlock()
	select {
	case s.errCh <- err:
	default:
	}
}

func (s *Server) LastError() error {
	s.lastErrMu.Lock()
	defer s.lastErrMu.Unlock()
	return s.lastErr
}

// Serve listens for TCP clients and relays packets between them and the
// attached exchange until ctx is cancelled.
func (s *Server) Serve(ctx context.Context) error {
	if s.Exchange == nil {
		return errors.New("fwbridge: Server.Exchange not set")
	}
	ln, err := net.Listen("tcp", s.Addr())
	if err != nil {
		wrap := fmt.Errorf("%w: %v", ErrListen, err)
		fwmetrics.IncError(mapErrToMetric(wrap))
		s.setError(wrap)
		return wrap
	}
	s.setAddr(ln.Addr().String())
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()
	s.readyOnce.Do(func() { close(s.readyCh) })
	s.logger.Info("fwbridge_listen", "addr", s.Addr())

	s.wg.Add(1)
	go s.relayExchangeToHub(ctx)

	go func() { <-ctx.Done(); _ = ln.Close() }()
	for {
		if err := s.acceptOnce(ctx, ln); err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				return nil
			}
			return err
		}
	}
}

// relayExchangeToHub is the single reader of the attached exchange; every
// packet it receives is broadcast to all connected monitor clients.
func (s *Server) relayExchangeToHub(ctx context.Context) {
	defer s.wg.Done()
	buf := make([]byte, s.recvBufSize)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		n, err := s.Exchange.ReadPacket(buf)
		if err != nil {
			// Disconnected: nothing more will ever arrive on this
			// exchange. Keep serving TCP clients (they may be
			// watching for the link to come back via a fresh
			// Server/Exchange pairing at the daemon level) but stop
			// relaying.
			s.logger.Warn("fwbridge_exchange_closed", "error", err)
			return
		}
		end := n
		if end > len(buf) {
			end = len(buf) // packet was truncated by the exchange itself
		}
		cp := make([]byte, end)
		copy(cp, buf[:end])
		s.Hub.Broadcast(cp)
	}
}

func (s *Server) acceptOnce(ctx context.Context, ln net.Listener) error {
	conn, err := ln.Accept()
	if err != nil {
		select {
		case <-ctx.Done():
			return context.Canceled
		default:
		}
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			time.Sleep(200 * time.Millisecond)
			return nil
		}
		wrap := fmt.Errorf("%w: %v", ErrAccept, err)
		fwmetrics.IncError(mapErrToMetric(wrap))
		s.setError(wrap)
		return wrap
	}
	s.totalAccepted.Add(1)
	connID := atomic.AddUint64(&s.nextConnID, 1)
	connLogger := s.logger.With("conn_id", connID, "remote", conn.RemoteAddr().String())
	if tcp, ok := conn.(*net.TCPConn); ok {
		_ = tcp.SetNoDelay(true)
	}

	if err := Handshake(ctx, conn, s.handshakeTimeout); err != nil {
		wrap := fmt.Errorf("%w: %v", ErrHandshake, err)
		fwmetrics.IncError(mapErrToMetric(wrap))
		s.totalHandshakeFail.Add(1)
		connLogger.Warn("fwbridge_handshake_failed", "error", wrap)
		_ = conn.Close()
		return nil
	}

	if s.maxClients > 0 && s.Hub.Count() >= s.maxClients {
		connLogger.Warn("fwbridge_client_reject_max", "max_clients", s.maxClients)
		_ = conn.Close()
		return nil
	}

	bufSize := s.Hub.OutBufSize
	if bufSize <= 0 {
		bufSize = 64
	}
	cl := &Client{Out: make(chan []byte, bufSize), Closed: make(chan struct{})}
	s.Hub.Add(cl)
	s.clientsMu.Lock()
	s.clients[cl] = conn
	s.clientsMu.Unlock()
	s.totalConnected.Add(1)
	connLogger.Info("fwbridge_client_connected")

	s.startWriter(ctx.Done(), conn, cl, connLogger)
	s.startReader(ctx.Done(), conn, cl, connLogger)
	return nil
}

// Shutdown closes the listener and every client connection, then waits for
// all goroutines to exit or ctx to expire.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	ln := s.listener
	s.listener = nil
	s.mu.Unlock()
	if ln != nil {
		_ = ln.Close()
	}

	s.clientsMu.Lock()
	for cl, conn := range s.clients {
		_ = conn.Close()
		s.Hub.Remove(cl)
		delete(s.clients, cl)
	}
	s.clientsMu.Unlock()

	done := make(chan struct{})
	go func() { s.wg.Wait(); close(done) }()
	select {
	case <-ctx.Done():
		return fmt.Errorf("%w: %v", ErrContextDone, ctx.Err())
	case <-done:
		s.logger.Info("fwbridge_shutdown_summary",
			"accepted", s.totalAccepted.Load(),
			"handshake_fail", s.totalHandshakeFail.Load(),
			"connected", s.totalConnected.Load(),
			"disconnected", s.totalDisconnected.Load())
		return nil
	}
}
