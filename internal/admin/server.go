package admin

import (
	"context"
	"encoding/hex"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/danmuck/spilink/internal/auth"
	"github.com/danmuck/spilink/internal/observability"
	"github.com/danmuck/spilink/internal/protocol/frame"
	"github.com/danmuck/spilink/internal/transport"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

const version = "0.1.0"

var ErrBadPayload = errors.New("admin: payload must be non-empty hex")

// Link is the transport surface the admin API drives.
type Link interface {
	Name() string
	Submit(payload []byte) error
	Receive() (frame.Frame, bool)
	Signal()
	Stats() transport.Stats
}

// Options configures the admin listener. A non-empty Token guards the
// routes that change link state.
type Options struct {
	Addr        string
	CorsOrigins []string
	Token       string
}

type Server struct {
	Addr     string
	Appeared time.Time

	link   Link
	guard  auth.Validator
	router *gin.Engine
	logger zerolog.Logger
}

type submitRequest struct {
	Hex string `json:"hex"`
}

type frameResponse struct {
	Length int    `json:"length"`
	Hex    string `json:"hex"`
}

func New(link Link, opts Options) *Server {
	observability.RegisterMetrics()
	logger := observability.LinkComponent("admin", link.Name())

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(observability.HTTPObserver(link.Name(), logger))
	r.Use(cors.New(cors.Config{
		AllowOrigins: normalizeOrigins(opts.CorsOrigins),
		AllowMethods: []string{"GET", "POST"},
		AllowHeaders: []string{"Origin", "Content-Type", "Authorization"},
		MaxAge:       12 * time.Hour,
	}))
	_ = r.SetTrustedProxies([]string{"127.0.0.1", "::1"})

	s := &Server{
		Addr:     opts.Addr,
		Appeared: time.Now(),
		link:     link,
		router:   r,
		logger:   logger,
	}
	if token := strings.TrimSpace(opts.Token); token != "" {
		s.guard = auth.StaticToken{Token: token}
	}
	s.registerRoutes()
	return s
}

func (s *Server) HTTPRouter() *gin.Engine {
	return s.router
}

func (s *Server) registerRoutes() {
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"uptime":  time.Since(s.Appeared).String(),
			"service": s.link.Name(),
			"version": version,
		})
	})

	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	s.router.GET("/ready", func(c *gin.Context) {
		st := s.link.Stats()
		status := http.StatusOK
		if st.State != transport.StateRunning {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{
			"ready":   status == http.StatusOK,
			"state":   st.State.String(),
			"service": s.link.Name(),
			"version": version,
		})
	})

	s.router.GET("/status", func(c *gin.Context) {
		st := s.link.Stats()
		c.JSON(http.StatusOK, gin.H{
			"link":                 s.link.Name(),
			"state":                st.State.String(),
			"tx_depth":             st.TXDepth,
			"rx_depth":             st.RXDepth,
			"transactions":         st.Transactions,
			"transaction_failures": st.TransactionFailures,
			"frames_sent":          st.FramesSent,
			"frames_received":      st.FramesReceived,
			"frames_rejected":      st.FramesRejected,
			"frames_dropped":       st.FramesDropped,
			"edges_queued":         st.EdgesQueued,
			"edges_coalesced":      st.EdgesCoalesced,
		})
	})

	guarded := s.router.Group("/", auth.Guard(s.guard))

	guarded.POST("/frames", func(c *gin.Context) {
		var req submitRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		payload, err := hex.DecodeString(strings.TrimSpace(req.Hex))
		if err != nil || len(payload) == 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": ErrBadPayload.Error()})
			return
		}
		if err := s.link.Submit(payload); err != nil {
			c.JSON(submitStatus(err), gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusAccepted, gin.H{"status": "queued", "length": len(payload)})
	})

	guarded.GET("/frames/next", func(c *gin.Context) {
		f, ok := s.link.Receive()
		if !ok {
			c.Status(http.StatusNoContent)
			return
		}
		c.JSON(http.StatusOK, frameResponse{
			Length: int(f.Header.Length),
			Hex:    hex.EncodeToString(f.Payload),
		})
	})

	guarded.POST("/signal", func(c *gin.Context) {
		s.link.Signal()
		c.JSON(http.StatusAccepted, gin.H{"status": "signaled"})
	})
}

func submitStatus(err error) int {
	switch {
	case errors.Is(err, transport.ErrOversizedFrame):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, transport.ErrAllocationFailure):
		return http.StatusTooManyRequests
	case errors.Is(err, transport.ErrInvalidArgument):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// Run serves until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", s.Addr).Msg("admin_listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		<-errCh
		return nil
	}
}

func normalizeOrigins(origins []string) []string {
	if len(origins) == 0 {
		return []string{"http://localhost:3000"}
	}
	return origins
}
