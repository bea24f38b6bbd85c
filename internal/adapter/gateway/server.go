package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"gpimon/internal/domain"
	"gpimon/internal/infra/middleware"
	"gpimon/internal/usecase/gpi"
)

const (
	defaultSendBuffer   = 64
	writeTimeout        = 5 * time.Second
	shutdownGracePeriod = 5 * time.Second
)

// Monitor is the part of the GPI controller the gateway drives.
type Monitor interface {
	RequestOutput(ctx context.Context, value uint64) error
	Status() gpi.Status
}

// RPCHandler handles a single RPC method call.
type RPCHandler func(ctx context.Context, client *ClientInfo, payload json.RawMessage) (json.RawMessage, error)

// Options configures a Server.
type Options struct {
	Addr       string
	RateLimit  middleware.RateLimitConfig
	SendBuffer int                // outbound frames queued per client (default: 64)
	Audit      domain.AuditLogger // optional record of writes and rejected clients
}

// clientConn tracks a single WebSocket connection.
type clientConn struct {
	info      *ClientInfo
	ws        *websocket.Conn
	sendCh    chan Frame // buffered outbound queue
	done      chan struct{}
	closeOnce sync.Once
}

func (cc *clientConn) close() { cc.closeOnce.Do(func() { close(cc.done) }) }

// Server is the WebSocket gateway that forwards input changes and accepts
// output writes.
type Server struct {
	bus        domain.EventBus
	monitor    Monitor
	auth       Authenticator
	logger     *slog.Logger
	opts       Options
	metrics    *Metrics
	clients    sync.Map // connID (uint64) -> *clientConn
	nextID     atomic.Uint64
	handlersMu sync.RWMutex
	handlers   map[string]RPCHandler

	mu          sync.Mutex
	httpSrv     *http.Server
	boundAddr   string
	unsubChange func()
	ready       chan struct{}
	stopOnce    sync.Once
}

// NewServer creates a gateway server with the write and status methods registered.
func NewServer(bus domain.EventBus, monitor Monitor, auth Authenticator, opts Options, logger *slog.Logger) *Server {
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = defaultSendBuffer
	}
	s := &Server{
		bus:      bus,
		monitor:  monitor,
		auth:     auth,
		logger:   logger,
		opts:     opts,
		metrics:  &Metrics{},
		handlers: make(map[string]RPCHandler),
		ready:    make(chan struct{}),
	}
	s.RegisterHandler(MethodWrite, s.handleWrite)
	s.RegisterHandler(MethodStatus, s.handleStatus)
	return s
}

// RegisterHandler adds an RPC handler for the given method name.
// Safe to call concurrently with active connections.
func (s *Server) RegisterHandler(method string, handler RPCHandler) {
	s.handlersMu.Lock()
	s.handlers[method] = handler
	s.handlersMu.Unlock()
}

// Metrics returns the gateway counters.
func (s *Server) Metrics() *Metrics { return s.metrics }

// Handler returns the HTTP handler serving every gateway route.
func (s *Server) Handler(ctx context.Context) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleUpgrade)
	mux.HandleFunc("GET /status", statusHandler(s.monitor))
	mux.HandleFunc("GET /metrics", metricsHandler(s.monitor, s.metrics, s.clientCount))
	return middleware.SecurityHeaders(middleware.RateLimit(ctx, s.opts.RateLimit)(mux))
}

// Start begins accepting connections. Blocks until ctx is cancelled or the
// listener fails.
func (s *Server) Start(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.opts.Addr)
	if err != nil {
		return fmt.Errorf("gateway listen: %w", err)
	}

	unsub, err := gpi.OnChange(s.bus, s.forwardChange)
	if err != nil {
		listener.Close()
		return fmt.Errorf("gateway subscribe: %w", err)
	}

	s.mu.Lock()
	s.boundAddr = listener.Addr().String()
	s.unsubChange = unsub
	s.httpSrv = &http.Server{
		Handler:           s.Handler(ctx),
		ReadHeaderTimeout: 10 * time.Second,
	}
	srv := s.httpSrv
	s.mu.Unlock()
	close(s.ready)

	s.logger.Info("gateway started", "addr", listener.Addr().String())

	go func() {
		<-ctx.Done()
		s.Stop(context.Background())
	}()

	if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("gateway serve: %w", err)
	}
	return nil
}

// Ready is closed once the listener is bound.
func (s *Server) Ready() <-chan struct{} { return s.ready }

// BoundAddr returns the actual address the server bound to. Only valid after Ready.
func (s *Server) BoundAddr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.boundAddr
}

// Stop gracefully shuts down the gateway server.
func (s *Server) Stop(ctx context.Context) error {
	var err error
	s.stopOnce.Do(func() {
		s.mu.Lock()
		unsub, srv := s.unsubChange, s.httpSrv
		s.mu.Unlock()

		if unsub != nil {
			unsub()
		}

		s.clients.Range(func(key, value any) bool {
			cc := value.(*clientConn)
			cc.close()
			cc.ws.Close(websocket.StatusGoingAway, "server shutting down")
			s.clients.Delete(key)
			return true
		})

		if srv != nil {
			shutdownCtx, cancel := context.WithTimeout(ctx, shutdownGracePeriod)
			defer cancel()
			err = srv.Shutdown(shutdownCtx)
		}
		s.logger.Info("gateway stopped")
	})
	return err
}

func (s *Server) clientCount() int {
	n := 0
	s.clients.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

func (s *Server) forwardChange(_ context.Context, value uint64) {
	s.metrics.ChangesTotal.Add(1)
	frame := Frame{
		Type:  FrameTypeEvent,
		Event: string(domain.EventGPIChange),
		Value: &value,
	}
	s.clients.Range(func(_, v any) bool {
		cc := v.(*clientConn)
		select {
		case cc.sendCh <- frame:
		default:
			s.metrics.DroppedTotal.Add(1)
			s.logger.Warn("gateway: dropped event for slow client", "client", cc.info.Name)
		}
		return true
	})
}

func (s *Server) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	clientInfo, err := s.auth.Authenticate(token)
	if err != nil {
		s.audit(r.Context(), domain.AuditEvent{
			Type:    domain.AuditAccessDenied,
			Action:  "connect",
			Outcome: "rejected",
			Detail:  map[string]string{"remote": middleware.ClientIP(r, s.opts.RateLimit.TrustedProxies)},
		})
		middleware.WriteError(w, http.StatusUnauthorized, err)
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{
			"localhost",
			"localhost:*",
			"127.0.0.1",
			"127.0.0.1:*",
			"[::1]",
			"[::1]:*",
		},
	})
	if err != nil {
		s.logger.Warn("websocket accept failed", "error", err)
		return
	}

	connID := s.nextID.Add(1)
	cc := &clientConn{
		info:   clientInfo,
		ws:     ws,
		sendCh: make(chan Frame, s.opts.SendBuffer),
		done:   make(chan struct{}),
	}
	s.clients.Store(connID, cc)

	s.logger.Info("gateway client connected", "conn_id", connID, "client", clientInfo.Name)

	go s.writeLoop(cc)

	s.readLoop(r.Context(), cc)

	cc.close()
	s.clients.Delete(connID)
	ws.Close(websocket.StatusNormalClosure, "")
	s.logger.Info("gateway client disconnected", "conn_id", connID)
}

func (s *Server) readLoop(ctx context.Context, cc *clientConn) {
	for {
		select {
		case <-cc.done:
			return
		default:
		}

		var frame Frame
		if err := wsjson.Read(ctx, cc.ws, &frame); err != nil {
			return
		}
		if frame.Type != FrameTypeRequest {
			continue
		}
		// Writes from one client must reach the monitor in the order sent.
		if frame.Method == MethodWrite {
			s.dispatchRPC(ctx, cc, frame)
			continue
		}
		go s.dispatchRPC(ctx, cc, frame)
	}
}

func (s *Server) writeLoop(cc *clientConn) {
	for {
		select {
		case <-cc.done:
			return
		case frame := <-cc.sendCh:
			ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
			err := wsjson.Write(ctx, cc.ws, frame)
			cancel()
			if err != nil {
				return
			}
		}
	}
}

func (s *Server) dispatchRPC(ctx context.Context, cc *clientConn, req Frame) {
	s.handlersMu.RLock()
	handler, ok := s.handlers[req.Method]
	s.handlersMu.RUnlock()
	if !ok {
		s.sendResponse(cc, req.ID, nil,
			domain.NewSubSystemError("gateway", "Server.dispatchRPC", domain.ErrRPCMethodNotFound, req.Method))
		return
	}

	result, err := handler(ctx, cc.info, req.Payload)
	s.sendResponse(cc, req.ID, result, err)
}

func (s *Server) sendResponse(cc *clientConn, id uint64, result json.RawMessage, err error) {
	resp := Frame{
		Type:    FrameTypeResponse,
		ID:      id,
		Payload: result,
	}
	if err != nil {
		resp.Error = err.Error()
		resp.Code = string(domain.ErrorCodeOf(err))
	}
	select {
	case cc.sendCh <- resp:
	case <-cc.done:
	default:
		s.logger.Warn("gateway: dropped RPC response for slow client", "frame_id", id)
	}
}

func (s *Server) handleWrite(ctx context.Context, client *ClientInfo, payload json.RawMessage) (json.RawMessage, error) {
	var params WriteParams
	if len(payload) == 0 || json.Unmarshal(payload, &params) != nil {
		return nil, domain.NewSubSystemError("gateway", "Server.handleWrite", domain.ErrRPCInvalidPayload, "expected {\"value\":N}")
	}
	detail := map[string]string{"value": fmt.Sprintf("0x%x", params.Value)}
	if err := s.monitor.RequestOutput(ctx, params.Value); err != nil {
		s.metrics.WriteErrorsTotal.Add(1)
		detail["code"] = string(domain.ErrorCodeOf(err))
		s.audit(ctx, domain.AuditEvent{Type: domain.AuditOutputWrite, Actor: client.Name, Action: MethodWrite, Outcome: "rejected", Detail: detail})
		if domain.IsRetryableError(err) {
			s.logger.Warn("gateway write not queued", "client", client.Name, "error", err)
		} else {
			s.logger.Error("gateway write failed", "client", client.Name, "error", err)
		}
		return nil, err
	}
	s.metrics.WritesTotal.Add(1)
	s.audit(ctx, domain.AuditEvent{Type: domain.AuditOutputWrite, Actor: client.Name, Action: MethodWrite, Outcome: "queued", Detail: detail})
	s.logger.Debug("gateway write queued", "client", client.Name, "value", fmt.Sprintf("0x%x", params.Value))
	return json.Marshal(WriteResult{Queued: true})
}

func (s *Server) audit(ctx context.Context, ev domain.AuditEvent) {
	if s.opts.Audit == nil {
		return
	}
	if err := s.opts.Audit.Log(ctx, ev); err != nil {
		s.logger.Warn("audit log write failed", "type", string(ev.Type), "error", err)
	}
}

func (s *Server) handleStatus(_ context.Context, _ *ClientInfo, _ json.RawMessage) (json.RawMessage, error) {
	return json.Marshal(s.monitor.Status())
}
