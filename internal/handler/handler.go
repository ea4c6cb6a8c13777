package handler

import (
	"bufio"
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/angeloszaimis/balancebeam/internal/httpmsg"
	"github.com/angeloszaimis/balancebeam/internal/metrics"
	"github.com/angeloszaimis/balancebeam/internal/ratelimit"
)

const forwardedForHeader = "X-Forwarded-For"

// Connector opens a connection to a live upstream, failing over as needed.
type Connector interface {
	ConnectWithFailover(ctx context.Context) (net.Conn, string, error)
}

type ConnectionHandler struct {
	logger           *slog.Logger
	connector        Connector
	limiter          *ratelimit.Limiter
	metricsCollector *metrics.Collector
}

// session pairs one client connection with the upstream chosen for it.
type session struct {
	handler        *ConnectionHandler
	logger         *slog.Logger
	clientIP       string
	clientReader   *bufio.Reader
	clientWriter   *bufio.Writer
	upstreamAddr   string
	upstreamReader *bufio.Reader
	upstreamWriter *bufio.Writer
}

// HandleConnection serves clientConn until the client hangs up or an
// unrecoverable error occurs, then closes it. One upstream connection is
// opened per client connection and reused for every request on it.
func (h *ConnectionHandler) HandleConnection(ctx context.Context, clientConn net.Conn) {
	defer clientConn.Close()

	clientIP := extractClientIP(clientConn.RemoteAddr())
	log := h.logger.With(slog.String("client", clientIP))
	log.Info("Connection received")

	clientWriter := bufio.NewWriter(clientConn)

	upstreamConn, upstreamAddr, err := h.connector.ConnectWithFailover(ctx)
	if err != nil {
		log.Warn("No upstream available", slog.Any("err", err))
		h.sendError(log, clientWriter, http.StatusBadGateway)
		return
	}
	defer upstreamConn.Close()

	s := &session{
		handler:        h,
		logger:         log.With(slog.String("upstream", upstreamAddr)),
		clientIP:       clientIP,
		clientReader:   bufio.NewReader(clientConn),
		clientWriter:   clientWriter,
		upstreamAddr:   upstreamAddr,
		upstreamReader: bufio.NewReader(upstreamConn),
		upstreamWriter: bufio.NewWriter(upstreamConn),
	}
	s.serve()
}

func (s *session) serve() {
	h := s.handler

	for {
		req, err := httpmsg.ReadRequest(s.clientReader)
		if err != nil {
			if !s.handleReadError(err) {
				return
			}
			continue
		}

		s.logger.Info("Request received", slog.String("request", httpmsg.FormatRequestLine(req)))

		if err := h.limiter.CheckAndCount(s.clientIP); err != nil {
			s.logger.Warn("Rate limit exceeded", slog.Int("max_requests", h.limiter.Max()))
			h.emitEvent(metrics.MetricEvent{Type: metrics.EventRateLimited})
			if !h.sendError(s.logger, s.clientWriter, http.StatusTooManyRequests) {
				return
			}
			continue
		}

		// Append rather than overwrite so chained proxies keep the full path.
		httpmsg.ExtendHeaderValue(req.Header, forwardedForHeader, s.clientIP)

		start := time.Now()
		if err := httpmsg.WriteRequest(s.upstreamWriter, req); err != nil {
			s.logger.Error("Failed to send request to upstream", slog.Any("err", err))
			h.sendError(s.logger, s.clientWriter, http.StatusBadGateway)
			return
		}
		h.emitEvent(metrics.MetricEvent{
			Type:     metrics.EventRequestForwarded,
			Upstream: s.upstreamAddr,
		})

		resp, err := httpmsg.ReadResponse(s.upstreamReader, req)
		if err != nil {
			s.logger.Error("Failed to read response from upstream", slog.Any("err", err))
			h.sendError(s.logger, s.clientWriter, http.StatusBadGateway)
			return
		}
		duration := time.Since(start)

		if err := httpmsg.WriteResponse(s.clientWriter, resp); err != nil {
			s.logger.Warn("Failed to send response to client", slog.Any("err", err))
			return
		}

		h.emitEvent(metrics.MetricEvent{
			Type:       metrics.EventResponseRelayed,
			Upstream:   s.upstreamAddr,
			Duration:   duration,
			StatusCode: resp.StatusCode,
		})
		s.logger.Debug("Response relayed",
			slog.String("response", httpmsg.FormatResponseLine(resp)),
			slog.Duration("duration", duration))
	}
}

// handleReadError answers a failed client read and reports whether the
// session can keep going.
func (s *session) handleReadError(err error) bool {
	kind, ok := httpmsg.KindOf(err)
	if !ok {
		kind = httpmsg.KindMalformed
	}

	switch kind {
	case httpmsg.KindClosed:
		s.logger.Debug("Client finished sending requests")
		return false

	case httpmsg.KindConnection:
		s.logger.Info("Error reading request from client", slog.Any("err", err))
		s.handler.sendError(s.logger, s.clientWriter, kind.StatusCode())
		return false

	case httpmsg.KindBodyTooLarge:
		// The unread body is still in the stream and cannot be resynced.
		s.logger.Info("Request body too large", slog.Any("err", err))
		s.handler.sendError(s.logger, s.clientWriter, kind.StatusCode())
		return false

	default:
		s.logger.Debug("Error parsing request", slog.Any("err", err))
		return s.handler.sendError(s.logger, s.clientWriter, kind.StatusCode())
	}
}

// sendError writes an error response to the client and reports whether it
// went through.
func (h *ConnectionHandler) sendError(log *slog.Logger, w *bufio.Writer, status int) bool {
	resp := httpmsg.ErrorResponse(status)

	h.emitEvent(metrics.MetricEvent{
		Type:       metrics.EventErrorResponse,
		StatusCode: status,
	})

	log.Info("Sending error response", slog.String("response", httpmsg.FormatResponseLine(resp)))
	if err := httpmsg.WriteResponse(w, resp); err != nil {
		if !errors.Is(err, net.ErrClosed) {
			log.Warn("Failed to send response to client", slog.Any("err", err))
		}
		return false
	}
	return true
}

func extractClientIP(addr net.Addr) string {
	if addr == nil {
		return ""
	}

	host, _, err := net.SplitHostPort(addr.String())
	if err != nil {
		return addr.String()
	}
	return host
}

func (h *ConnectionHandler) emitEvent(event metrics.MetricEvent) {
	h.metricsCollector.Emit(event)
}

func NewConnectionHandler(logger *slog.Logger, connector Connector, limiter *ratelimit.Limiter, collector *metrics.Collector) *ConnectionHandler {
	return &ConnectionHandler{
		logger:           logger,
		connector:        connector,
		limiter:          limiter,
		metricsCollector: collector,
	}
}
