package observability

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// MetricsServer serves the default Prometheus registry on /metrics.
type MetricsServer struct {
	srv  *http.Server
	ln   net.Listener
	log  zerolog.Logger
	done chan struct{}
}

// StartMetricsServer listens on addr and serves in the background until Close.
func StartMetricsServer(addr string, logger zerolog.Logger) (*MetricsServer, error) {
	RegisterMetrics()
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("observability: metrics listen %s: %w", addr, err)
	}
	m := &MetricsServer{
		srv:  &http.Server{Handler: r, ReadHeaderTimeout: 5 * time.Second},
		ln:   ln,
		log:  logger,
		done: make(chan struct{}),
	}
	go func() {
		defer close(m.done)
		if err := m.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			m.log.Error().Err(err).Msg("metrics server stopped")
		}
	}()
	m.log.Info().Str("addr", ln.Addr().String()).Msg("serving metrics")
	return m, nil
}

func (m *MetricsServer) Addr() string { return m.ln.Addr().String() }

// Close shuts the server down, waiting for in-flight scrapes until ctx ends.
func (m *MetricsServer) Close(ctx context.Context) error {
	err := m.srv.Shutdown(ctx)
	<-m.done
	return err
}
