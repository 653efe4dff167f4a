package rpc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"

	"github.com/devhost-project/devhost-go/pkg/devhost"
	"github.com/devhost-project/devhost-go/pkg/log"
	"github.com/devhost-project/devhost-go/pkg/transport"
)

// ServerConfig configures a Server.
type ServerConfig struct {
	// Host serves the devices (required).
	Host *devhost.Host

	// Root is opened as handle 1 of every session (default: the host's
	// root device at connect time).
	Root *devhost.Device

	// Network and Address select the listener (default: unix socket at
	// transport.DefaultAddress).
	Network string
	Address string

	// MaxMessageSize bounds request frames (default: transport default).
	MaxMessageSize uint32

	// MaxHandles bounds open handles per session.
	MaxHandles int

	// Logger is the optional logger for debug output.
	// If nil, logging is disabled.
	Logger *slog.Logger

	// ProtocolLogger receives frame, message and connection events (optional).
	ProtocolLogger log.Logger
}

// Server accepts remote I/O connections and runs one Session per
// connection.
type Server struct {
	cfg ServerConfig
	ts  *transport.Server
	ctx context.Context

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewServer creates a server. Call Start to listen.
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Host == nil {
		return nil, errors.New("rpc server needs a host")
	}
	if cfg.Network == "" {
		cfg.Network = transport.DefaultNetwork
	}
	if cfg.Address == "" && cfg.Network == "unix" {
		cfg.Address = transport.DefaultAddress
	}

	s := &Server{
		cfg:      cfg,
		ctx:      context.Background(),
		sessions: make(map[string]*Session),
	}
	ts, err := transport.NewServer(transport.ServerConfig{
		Network:        cfg.Network,
		Address:        cfg.Address,
		MaxMessageSize: cfg.MaxMessageSize,
		Channel:        log.ChannelRemoteIO,
		Logger:         cfg.ProtocolLogger,
		OnConnect:      s.onConnect,
		OnDisconnect:   s.onDisconnect,
		OnMessage:      s.onMessage,
		OnError:        s.onError,
	})
	if err != nil {
		return nil, err
	}
	s.ts = ts
	return s, nil
}

// Start begins accepting connections. ctx bounds the server's lifetime and
// is passed to device callbacks.
func (s *Server) Start(ctx context.Context) error {
	s.ctx = ctx
	if err := s.ts.Start(ctx); err != nil {
		return fmt.Errorf("rpc server: %w", err)
	}
	s.debugLog("rpc server listening", "network", s.cfg.Network, "address", s.ts.Addr())
	return nil
}

// Serve starts the server and blocks until ctx is cancelled.
func (s *Server) Serve(ctx context.Context) error {
	if err := s.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	return s.Stop()
}

// Stop closes the listener and every session.
func (s *Server) Stop() error {
	return s.ts.Stop()
}

// Addr returns the listen address.
func (s *Server) Addr() net.Addr { return s.ts.Addr() }

// Sessions returns the number of live sessions.
func (s *Server) Sessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

func (s *Server) session(connID string) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessions[connID]
}

func (s *Server) onConnect(conn *transport.ServerConn) {
	sess := NewSession(SessionConfig{
		Host:           s.cfg.Host,
		Conn:           conn,
		MaxHandles:     s.cfg.MaxHandles,
		Logger:         s.cfg.Logger,
		ProtocolLogger: s.cfg.ProtocolLogger,
	})

	root := s.cfg.Root
	if root == nil {
		root = s.cfg.Host.Root()
	}
	if root == nil {
		s.warnLog("rejecting connection: no root device", "connID", conn.ConnID())
		sess.Kill(s.ctx)
		return
	}
	if _, err := sess.Bootstrap(s.ctx, root); err != nil {
		s.warnLog("rejecting connection: root open failed", "connID", conn.ConnID(), "error", err)
		sess.Kill(s.ctx)
		return
	}

	s.mu.Lock()
	s.sessions[conn.ConnID()] = sess
	s.mu.Unlock()
	s.debugLog("session opened", "connID", conn.ConnID(), "remote", conn.RemoteAddr())
}

func (s *Server) onMessage(conn *transport.ServerConn, data []byte) {
	sess := s.session(conn.ConnID())
	if sess == nil {
		return
	}
	if err := sess.HandleFrame(s.ctx, data); err != nil {
		s.debugLog("frame handling failed", "connID", conn.ConnID(), "error", err)
	}
}

func (s *Server) onDisconnect(conn *transport.ServerConn) {
	s.mu.Lock()
	sess := s.sessions[conn.ConnID()]
	delete(s.sessions, conn.ConnID())
	s.mu.Unlock()

	if sess != nil {
		sess.Close(s.ctx)
	}
}

func (s *Server) onError(conn *transport.ServerConn, err error) {
	if conn == nil {
		s.warnLog("rpc listener error", "error", err)
		return
	}
	s.debugLog("rpc connection error", "connID", conn.ConnID(), "error", err)
}

func (s *Server) debugLog(msg string, args ...any) {
	if s.cfg.Logger != nil {
		s.cfg.Logger.Debug(msg, args...)
	}
}

func (s *Server) warnLog(msg string, args ...any) {
	if s.cfg.Logger != nil {
		s.cfg.Logger.Warn(msg, args...)
	}
}
