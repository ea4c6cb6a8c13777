package listener

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"
)

const maxAcceptBackoff = time.Second

// ConnectionHandler owns a client connection for its whole lifetime,
// including closing it.
type ConnectionHandler interface {
	HandleConnection(ctx context.Context, conn net.Conn)
}

type Server struct {
	listener net.Listener
	handler  ConnectionHandler
	logger   *slog.Logger
}

// Listen binds address. A bind failure is returned as is so the caller can
// exit.
func Listen(address string, handler ConnectionHandler, logger *slog.Logger) (*Server, error) {
	ln, err := net.Listen("tcp", address)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", address, err)
	}
	return NewServer(ln, handler, logger), nil
}

func NewServer(ln net.Listener, handler ConnectionHandler, logger *slog.Logger) *Server {
	return &Server{
		listener: ln,
		handler:  handler,
		logger:   logger,
	}
}

func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}

// Close releases the listener without serving.
func (s *Server) Close() error {
	return s.listener.Close()
}

// Serve accepts connections until ctx is cancelled, then closes the
// listener and returns nil. In-flight sessions are not waited for.
func (s *Server) Serve(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() {
		s.listener.Close()
	})
	defer stop()

	s.logger.Info("Listening for client connections", slog.String("address", s.Addr().String()))

	var backoff time.Duration
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, net.ErrClosed) {
				return err
			}

			if backoff == 0 {
				backoff = 5 * time.Millisecond
			} else {
				backoff = min(backoff*2, maxAcceptBackoff)
			}
			s.logger.Warn("Accept failed", slog.Any("err", err), slog.Duration("retry_in", backoff))
			time.Sleep(backoff)
			continue
		}
		backoff = 0

		go s.handler.HandleConnection(ctx, conn)
	}
}
