// Package api serves the REST interface for aggregated prices.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"github.com/JirA44/obelisk-dex-sub013/pkg/feed"
	"github.com/JirA44/obelisk-dex-sub013/pkg/feed/venues"
	"github.com/JirA44/obelisk-dex-sub013/pkg/logging"
	"github.com/JirA44/obelisk-dex-sub013/pkg/metrics"
)

const defaultTWAPWindow = 5 * time.Minute

// Server is the HTTP API server.
type Server struct {
	addr        string
	corsOrigins []string
	latest      *feed.LatestStore
	history     *feed.HistoryBuffer
	connectors  []venues.Connector
	logger      *logging.Logger
	router      *mux.Router
}

// NewServer creates an API server over the latest prices and history.
func NewServer(addr string, corsOrigins []string, latest *feed.LatestStore, history *feed.HistoryBuffer, connectors []venues.Connector, logger *logging.Logger) *Server {
	if logger == nil {
		logger = logging.NewNoopLogger()
	}
	if len(corsOrigins) == 0 {
		corsOrigins = []string{"*"}
	}

	s := &Server{
		addr:        addr,
		corsOrigins: corsOrigins,
		latest:      latest,
		history:     history,
		connectors:  connectors,
		logger:      logger,
		router:      mux.NewRouter(),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.router.HandleFunc("/health", s.instrument("health", s.handleHealth)).Methods("GET")
	s.router.HandleFunc("/v1/prices", s.instrument("prices", s.handlePrices)).Methods("GET")
	s.router.HandleFunc("/v1/prices/{asset}", s.instrument("price", s.handlePrice)).Methods("GET")
	s.router.HandleFunc("/v1/twap/{asset}", s.instrument("twap", s.handleTWAP)).Methods("GET")
}

// Start serves until the context is cancelled.
func (s *Server) Start(ctx context.Context) error {
	handler := cors.New(cors.Options{
		AllowedOrigins: s.corsOrigins,
		AllowedMethods: []string{"GET", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type"},
	}).Handler(s.router)

	server := &http.Server{
		Addr:              s.addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	s.logger.Info("Starting API server", "addr", s.addr)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler { return s.router }

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) instrument(endpoint string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next(rec, r)
		metrics.RecordHTTPRequest(endpoint, strconv.Itoa(rec.status), time.Since(start))
	}
}

type venueStatus struct {
	Name      string `json:"name"`
	Connected bool   `json:"connected"`
	LastTick  string `json:"lastTick,omitempty"`
}

type healthResponse struct {
	Status string        `json:"status"`
	Assets int           `json:"assets"`
	Venues []venueStatus `json:"venues"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	resp := healthResponse{
		Status: "ok",
		Assets: len(s.latest.All()),
	}
	for _, connector := range s.connectors {
		status := venueStatus{
			Name:      connector.Name(),
			Connected: connector.Connected(),
		}
		if last := connector.LastTick(); !last.IsZero() {
			status.LastTick = last.UTC().Format(time.RFC3339)
		}
		resp.Venues = append(resp.Venues, status)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handlePrices(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.latest.All())
}

func (s *Server) handlePrice(w http.ResponseWriter, r *http.Request) {
	asset := strings.ToUpper(mux.Vars(r)["asset"])
	price, ok := s.latest.Get(asset)
	if !ok {
		writeError(w, http.StatusNotFound, "no price for asset "+asset)
		return
	}
	writeJSON(w, http.StatusOK, price)
}

type twapResponse struct {
	Asset    string `json:"asset"`
	TWAP     string `json:"twap"`
	WindowMs int64  `json:"windowMs"`
}

func (s *Server) handleTWAP(w http.ResponseWriter, r *http.Request) {
	asset := strings.ToUpper(mux.Vars(r)["asset"])

	window := defaultTWAPWindow
	if raw := r.URL.Query().Get("window"); raw != "" {
		parsed, err := time.ParseDuration(raw)
		if err != nil || parsed <= 0 {
			writeError(w, http.StatusBadRequest, "invalid window: "+raw)
			return
		}
		window = parsed
	}

	twap, ok := s.history.TWAP(asset, window, time.Now())
	if !ok {
		writeError(w, http.StatusNotFound, "no history for asset "+asset)
		return
	}

	writeJSON(w, http.StatusOK, twapResponse{
		Asset:    asset,
		TWAP:     twap.String(),
		WindowMs: window.Milliseconds(),
	})
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
