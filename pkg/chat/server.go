package chat

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// Server drives the HTTP server lifecycle around a chat router: serve until
// interrupted, then shut down gracefully and release the manager's resources.
type Server struct {
	baseCtx context.Context
	manager *Manager
	backend StreamBackend
	archive Archive
	httpSrv *http.Server
}

type ServerConfig struct {
	Addr    string
	Manager *Manager
	Backend StreamBackend
	Archive Archive
}

func NewServer(ctx context.Context, cfg ServerConfig) (*Server, error) {
	if ctx == nil {
		return nil, errors.New("ctx is nil")
	}
	if cfg.Manager == nil {
		return nil, errors.New("manager is nil")
	}
	if cfg.Addr == "" {
		return nil, errors.New("addr is empty")
	}
	r, err := NewRouter(ctx, cfg.Manager)
	if err != nil {
		return nil, err
	}
	return &Server{
		baseCtx: ctx,
		manager: cfg.Manager,
		backend: cfg.Backend,
		archive: cfg.Archive,
		httpSrv: &http.Server{
			Addr:              cfg.Addr,
			Handler:           r.Handler(),
			ReadHeaderTimeout: 10 * time.Second,
		},
	}, nil
}

func (s *Server) HTTPServer() *http.Server {
	if s == nil {
		return nil
	}
	return s.httpSrv
}

func (s *Server) Run(ctx context.Context) error {
	if s == nil || s.httpSrv == nil {
		return errors.New("server is not initialized")
	}
	if ctx == nil {
		return errors.New("ctx is nil")
	}
	eg := errgroup.Group{}
	srvCtx, srvCancel := context.WithCancel(ctx)
	defer srvCancel()

	eg.Go(func() error {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		select {
		case <-sigChan:
			log.Info().Msg("received interrupt signal, shutting down gracefully...")
		case <-srvCtx.Done():
		}
		srvCancel()
		shutdownBase := context.WithoutCancel(ctx)
		shutdownCtx, cancel := context.WithTimeout(shutdownBase, 30*time.Second)
		defer cancel()
		if err := s.httpSrv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("server shutdown error")
			return err
		}
		if s.manager != nil {
			s.manager.Close()
		}
		if s.backend != nil {
			if err := s.backend.Close(); err != nil {
				log.Error().Err(err).Msg("stream backend close error")
			}
		}
		if s.archive != nil {
			if err := s.archive.Close(); err != nil {
				log.Error().Err(err).Msg("archive close error")
			}
		}
		log.Info().Msg("server shutdown complete")
		return nil
	})

	eg.Go(func() error {
		log.Info().Str("addr", s.httpSrv.Addr).Msg("starting chat server")
		if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("server listen error")
			return err
		}
		srvCancel()
		return nil
	})

	return eg.Wait()
}
