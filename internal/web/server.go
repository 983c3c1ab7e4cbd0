// Package web exposes the HTTP boundary: trading controls, status and
// analysis reads, and an SSE stream of status snapshots.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"coinpilot/internal/domain"
	"coinpilot/internal/services/feed"
	"coinpilot/internal/storage/snapshots"
)

const snapshotPollInterval = 2 * time.Second

type controller interface {
	Start() bool
	Stop() bool
	IsActive() bool
	PlaceManualBuy(ctx context.Context, symbol string, quoteAmount decimal.Decimal) error
	PlaceManualSell(ctx context.Context, symbol string) error
}

type snapshotReader interface {
	Latest() (domain.StatusSnapshot, bool, error)
	SnapshotsAfter(index uint64) ([]snapshots.Record, error)
}

type analysisReader interface {
	Analysis(symbol string) (domain.BacktestResult, bool)
}

// Server exposes HTTP endpoints serving the HTML UI, the control API and an
// SSE stream.
type Server struct {
	addr    string
	control controller
	store   snapshotReader
	reports analysisReader
	prices  *feed.PriceTable
	log     *zap.Logger
}

// NewServer creates a new web server instance.
func NewServer(addr string, control controller, store snapshotReader, reports analysisReader, prices *feed.PriceTable, logger *zap.Logger) *Server {
	return &Server{
		addr:    addr,
		control: control,
		store:   store,
		reports: reports,
		prices:  prices,
		log:     logger,
	}
}

// Start runs the HTTP server (blocking) and shuts it down when ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/start", s.handleStart)
	mux.HandleFunc("/stop", s.handleStop)
	mux.HandleFunc("/buy", s.handleBuy)
	mux.HandleFunc("/sell", s.handleSell)
	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/status/stream", s.handleStatusStream)
	mux.HandleFunc("/analysis", s.handleAnalysis)
	mux.HandleFunc("/price", s.handlePrice)

	server := &http.Server{
		Addr:              s.addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

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

func writeJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeOK(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": data})
}

func writeErr(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]any{"success": false, "error": err.Error()})
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprint(w, indexHTML)
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeErr(w, http.StatusMethodNotAllowed, errors.New("POST required"))
		return
	}
	if !s.control.Start() {
		writeErr(w, http.StatusConflict, errors.New("already active"))
		return
	}
	writeOK(w, map[string]bool{"active": true})
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeErr(w, http.StatusMethodNotAllowed, errors.New("POST required"))
		return
	}
	if !s.control.Stop() {
		writeErr(w, http.StatusConflict, errors.New("already inactive"))
		return
	}
	writeOK(w, map[string]bool{"active": false})
}

type buyRequest struct {
	Symbol string  `json:"symbol"`
	Amount float64 `json:"amount"`
}

func (s *Server) handleBuy(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeErr(w, http.StatusMethodNotAllowed, errors.New("POST required"))
		return
	}
	var req buyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, err)
		return
	}
	if req.Symbol == "" || req.Amount <= 0 {
		writeErr(w, http.StatusBadRequest, errors.New("symbol and positive amount required"))
		return
	}
	if err := s.control.PlaceManualBuy(r.Context(), req.Symbol, decimal.NewFromFloat(req.Amount)); err != nil {
		s.log.Warn("manual buy rejected", zap.String("symbol", req.Symbol), zap.Error(err))
		writeErr(w, http.StatusUnprocessableEntity, err)
		return
	}
	writeOK(w, map[string]string{"symbol": req.Symbol})
}

type sellRequest struct {
	Symbol string `json:"symbol"`
}

func (s *Server) handleSell(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeErr(w, http.StatusMethodNotAllowed, errors.New("POST required"))
		return
	}
	var req sellRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, err)
		return
	}
	if req.Symbol == "" {
		writeErr(w, http.StatusBadRequest, errors.New("symbol required"))
		return
	}
	if err := s.control.PlaceManualSell(r.Context(), req.Symbol); err != nil {
		s.log.Warn("manual sell rejected", zap.String("symbol", req.Symbol), zap.Error(err))
		writeErr(w, http.StatusUnprocessableEntity, err)
		return
	}
	writeOK(w, map[string]string{"symbol": req.Symbol})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	snapshot, ok, err := s.store.Latest()
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	if !ok {
		snapshot = domain.StatusSnapshot{
			At:     time.Now(),
			Active: s.control.IsActive(),
		}
	}
	writeOK(w, snapshot)
}

func (s *Server) handleAnalysis(w http.ResponseWriter, r *http.Request) {
	symbol := r.URL.Query().Get("symbol")
	if symbol == "" {
		writeErr(w, http.StatusBadRequest, errors.New("symbol query parameter required"))
		return
	}
	result, ok := s.reports.Analysis(symbol)
	if !ok {
		writeErr(w, http.StatusNotFound, fmt.Errorf("no analysis for %s", symbol))
		return
	}
	writeOK(w, result)
}

func (s *Server) handlePrice(w http.ResponseWriter, r *http.Request) {
	symbol := r.URL.Query().Get("symbol")
	if symbol == "" {
		writeErr(w, http.StatusBadRequest, errors.New("symbol query parameter required"))
		return
	}
	snap, ok := s.prices.Get(symbol)
	if !ok {
		writeErr(w, http.StatusNotFound, fmt.Errorf("no live price for %s", symbol))
		return
	}
	price, _ := snap.Price.Float64()
	turnover, _ := snap.Turnover24.Float64()
	writeOK(w, map[string]any{
		"symbol":      snap.Symbol,
		"price":       price,
		"turnover_24": turnover,
		"observed_at": snap.ObservedAt,
	})
}

func (s *Server) handleStatusStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	// send a comment heartbeat every 30s so proxies keep connection
	heartbeat := time.NewTicker(30 * time.Second)
	defer heartbeat.Stop()

	pollTicker := time.NewTicker(snapshotPollInterval)
	defer pollTicker.Stop()

	lastIndex := uint64(0)
	sendSnapshots := func() error {
		records, err := s.store.SnapshotsAfter(lastIndex)
		if err != nil {
			return err
		}
		for _, record := range records {
			payload, err := json.Marshal(record.Snapshot)
			if err != nil {
				return err
			}
			fmt.Fprintf(w, "event: status\n")
			fmt.Fprintf(w, "data: %s\n\n", payload)
			flusher.Flush()
			lastIndex = record.Index
		}
		return nil
	}

	if err := sendSnapshots(); err != nil {
		http.Error(w, "failed to load snapshots", http.StatusInternalServerError)
		s.log.Error("status stream initial load failed", zap.Error(err))
		return
	}

	for {
		select {
		case <-r.Context().Done():
			return
		case <-heartbeat.C:
			fmt.Fprintf(w, ": ping\n\n")
			flusher.Flush()
		case <-pollTicker.C:
			if err := sendSnapshots(); err != nil {
				s.log.Error("status stream poll failed", zap.Error(err))
			}
		}
	}
}
