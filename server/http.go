package server

import (
	"context"
	"fmt"
	"net"
	"sync/atomic"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/gridironlabs/gridfeed/types"
)

type serverState int32

const (
	stateStopped serverState = iota
	stateStarting
	stateRunning
	stateStopping
)

const (
	defaultReadTimeout     = 30
	defaultWriteTimeout    = 30
	defaultIdleTimeout     = 120
	defaultShutdownTimeout = 5
)

// HTTPServer serves the API over fasthttp. Start binds the listener before
// returning so a busy port fails fast instead of surfacing later in logs.
type HTTPServer struct {
	logger types.Logger
	config *types.HTTPConfig
	router types.HTTPRouter

	server   *fasthttp.Server
	listener net.Listener
	state    atomic.Int32
	serveErr chan error
}

func NewHTTPServer(logger types.Logger, config *types.HTTPConfig, router types.HTTPRouter, serviceName string) (*HTTPServer, error) {
	if router == nil {
		return nil, types.ErrHandlerIsNil
	}
	if config == nil {
		config = &types.HTTPConfig{Port: 8080}
	}

	server := &fasthttp.Server{
		Handler:            router.Handler(),
		Name:               serviceName,
		ReadTimeout:        secondsOr(config.ReadTimeout, defaultReadTimeout),
		WriteTimeout:       secondsOr(config.WriteTimeout, defaultWriteTimeout),
		IdleTimeout:        secondsOr(config.IdleTimeout, defaultIdleTimeout),
		DisableKeepalive:   false,
		CloseOnShutdown:    true,
		StreamRequestBody:  false,
		LogAllErrors:       false,
		MaxRequestBodySize: 4 << 20,
	}

	return &HTTPServer{
		logger:   logger,
		config:   config,
		router:   router,
		server:   server,
		serveErr: make(chan error, 1),
	}, nil
}

func (s *HTTPServer) Start() error {
	if !s.transition(stateStopped, stateStarting) {
		return types.ErrServerAlreadyRunning
	}

	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		s.state.Store(int32(stateStopped))
		return types.WrapError(types.ErrServerStartFailed, err.Error())
	}
	s.listener = listener

	go func() {
		if err := s.server.Serve(listener); err != nil {
			s.serveErr <- err
		}
	}()

	s.state.Store(int32(stateRunning))
	s.logger.Info("http server started", zap.String("address", addr))

	return nil
}

func (s *HTTPServer) Stop() error {
	if !s.transition(stateRunning, stateStopping) {
		return types.ErrServerNotRunning
	}
	defer s.state.Store(int32(stateStopped))

	timeout := secondsOr(s.config.ShutdownTimeout, defaultShutdownTimeout)
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return s.server.ShutdownWithContext(groupCtx)
	})

	if err := group.Wait(); err != nil {
		s.logger.Warn("http server shutdown incomplete", zap.Error(err))
		return err
	}

	select {
	case err := <-s.serveErr:
		s.logger.Warn("http server serve error", zap.Error(err))
	default:
	}

	s.logger.Info("http server stopped")
	return nil
}

func (s *HTTPServer) IsRunning() bool {
	return serverState(s.state.Load()) == stateRunning
}

// Addr returns the bound listener address, useful when Port is 0.
func (s *HTTPServer) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *HTTPServer) transition(from, to serverState) bool {
	return s.state.CompareAndSwap(int32(from), int32(to))
}

func secondsOr(value, fallback int) time.Duration {
	if value <= 0 {
		return time.Duration(fallback) * time.Second
	}
	return time.Duration(value) * time.Second
}
