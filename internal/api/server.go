// Package api exposes the replay session over a local REST surface so a
// chart frontend can poll state and issue playback and order commands.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/luciferkid9/PUNPORT-REPLAY-sub000/internal/engine"
	"github.com/luciferkid9/PUNPORT-REPLAY-sub000/internal/model"
)

// SessionReader is the read side of a replay session.
type SessionReader interface {
	VisibleCandles() []model.Candle
	CurrentPrice() float64
	CurrentSimTime() (int64, bool)
	State() model.SimulationState
	Account() model.AccountState
	Trades(status model.OrderStatus) []model.Trade
	TimeInvested() int64
	EMA(period int) []model.IndicatorPoint
	RSI(period int) []model.IndicatorPoint
	MACD() []model.MACDPoint
	TrendPanel(ctx context.Context) map[model.Timeframe]model.TrendLabel
}

// SessionCommander is the command side of a replay session.
type SessionCommander interface {
	Play()
	Pause()
	Step() error
	SetSpeed(ms int) error
	JumpToDate(ctx context.Context, target int64) error
	JumpToFirstData(ctx context.Context) error
	LoadMoreHistory(ctx context.Context) (int, error)
	PlaceOrder(req engine.PlaceRequest) (*model.Trade, error)
	CloseOrder(id string, exitPrice ...float64) (*model.Trade, error)
	ModifyTrade(id string, sl, tp float64) error
	ModifyPendingEntry(id string, entry float64) error
	Annotate(id, note string) error
}

// Session is the full surface the server binds to.
type Session interface {
	SessionReader
	SessionCommander
}

// Server is the replay REST server.
type Server struct {
	session Session
	logger  *zap.Logger
	mux     *http.ServeMux
	srv     *http.Server
	address string
}

// NewServer creates a server bound to the given session.
func NewServer(address string, session Session, logger *zap.Logger) *Server {
	s := &Server{
		session: session,
		logger:  logger,
		mux:     http.NewServeMux(),
		address: address,
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("/api/health", s.handleHealth)
	s.mux.HandleFunc("/api/state", s.handleState)
	s.mux.HandleFunc("/api/candles", s.handleCandles)
	s.mux.HandleFunc("/api/account", s.handleAccount)
	s.mux.HandleFunc("/api/trades", s.handleTrades)
	s.mux.HandleFunc("/api/indicators", s.handleIndicators)
	s.mux.HandleFunc("/api/trend", s.handleTrend)
	s.mux.HandleFunc("/api/control", s.handleControl)
	s.mux.HandleFunc("/api/orders", s.handleOrders)
	s.mux.HandleFunc("/api/orders/close", s.handleClose)
	s.mux.HandleFunc("/api/orders/modify", s.handleModify)
}

// Handler returns the full route tree with CORS applied.
func (s *Server) Handler() http.Handler {
	return corsMiddleware(s.mux)
}

// Run starts the HTTP server and blocks until ctx cancels.
func (s *Server) Run(ctx context.Context) error {
	s.srv = &http.Server{
		Addr:    s.address,
		Handler: s.Handler(),
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("api_server_started", zap.String("address", s.address))
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.srv.Shutdown(shutCtx)
	case err := <-errCh:
		return err
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, model.APIResponse{
		Data:      map[string]string{"status": "ok"},
		Timestamp: time.Now(),
	})
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	simTime, hasTime := s.session.CurrentSimTime()
	writeJSON(w, http.StatusOK, model.APIResponse{
		Data: map[string]any{
			"simulation":   s.session.State(),
			"simTime":      simTime,
			"simTimeOk":    hasTime,
			"currentPrice": s.session.CurrentPrice(),
			"timeInvested": s.session.TimeInvested(),
		},
		Timestamp: time.Now(),
	})
}

func (s *Server) handleCandles(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, model.APIResponse{
		Data:      s.session.VisibleCandles(),
		Timestamp: time.Now(),
	})
}

func (s *Server) handleAccount(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, model.APIResponse{
		Data:      s.session.Account(),
		Timestamp: time.Now(),
	})
}

func (s *Server) handleTrades(w http.ResponseWriter, r *http.Request) {
	status := model.OrderStatus(r.URL.Query().Get("status"))
	writeJSON(w, http.StatusOK, model.APIResponse{
		Data:      s.session.Trades(status),
		Timestamp: time.Now(),
	})
}

func (s *Server) handleIndicators(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	data := map[string]any{}
	switch q.Get("name") {
	case "ema":
		data["ema"] = s.session.EMA(intParam(q.Get("period"), 20))
	case "rsi":
		data["rsi"] = s.session.RSI(intParam(q.Get("period"), 14))
	case "macd":
		data["macd"] = s.session.MACD()
	default:
		data["ema"] = s.session.EMA(intParam(q.Get("period"), 20))
		data["rsi"] = s.session.RSI(14)
		data["macd"] = s.session.MACD()
	}
	writeJSON(w, http.StatusOK, model.APIResponse{Data: data, Timestamp: time.Now()})
}

func (s *Server) handleTrend(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, model.APIResponse{
		Data:      s.session.TrendPanel(r.Context()),
		Timestamp: time.Now(),
	})
}

// controlRequest is a playback command.
type controlRequest struct {
	Action  string `json:"action"` // play, pause, step, speed, jump, jumpFirst, moreHistory
	SpeedMs int    `json:"speedMs,omitempty"`
	Target  int64  `json:"target,omitempty"` // unix seconds for jump
}

func (s *Server) handleControl(w http.ResponseWriter, r *http.Request) {
	var req controlRequest
	if !decodePost(w, r, &req) {
		return
	}

	var err error
	result := map[string]any{"status": "ok"}
	switch req.Action {
	case "play":
		s.session.Play()
	case "pause":
		s.session.Pause()
	case "step":
		err = s.session.Step()
	case "speed":
		err = s.session.SetSpeed(req.SpeedMs)
	case "jump":
		err = s.session.JumpToDate(r.Context(), req.Target)
	case "jumpFirst":
		err = s.session.JumpToFirstData(r.Context())
	case "moreHistory":
		var inserted int
		inserted, err = s.session.LoadMoreHistory(r.Context())
		result["inserted"] = inserted
	default:
		writeError(w, http.StatusBadRequest, errors.New("unknown action: "+req.Action))
		return
	}
	if err != nil {
		writeError(w, http.StatusConflict, err)
		return
	}

	s.logger.Info("api_control", zap.String("action", req.Action))
	writeJSON(w, http.StatusOK, model.APIResponse{Data: result, Timestamp: time.Now()})
}

func (s *Server) handleOrders(w http.ResponseWriter, r *http.Request) {
	var req engine.PlaceRequest
	if !decodePost(w, r, &req) {
		return
	}

	trade, err := s.session.PlaceOrder(req)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err)
		return
	}

	s.logger.Info("api_order_placed",
		zap.String("id", trade.ID),
		zap.String("symbol", trade.Symbol),
		zap.String("side", string(trade.Side)),
	)
	writeJSON(w, http.StatusOK, model.APIResponse{Data: trade, Timestamp: time.Now()})
}

type closeRequest struct {
	ID        string  `json:"id"`
	ExitPrice float64 `json:"exitPrice,omitempty"`
}

func (s *Server) handleClose(w http.ResponseWriter, r *http.Request) {
	var req closeRequest
	if !decodePost(w, r, &req) {
		return
	}

	var (
		trade *model.Trade
		err   error
	)
	if req.ExitPrice > 0 {
		trade, err = s.session.CloseOrder(req.ID, req.ExitPrice)
	} else {
		trade, err = s.session.CloseOrder(req.ID)
	}
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err)
		return
	}
	writeJSON(w, http.StatusOK, model.APIResponse{Data: trade, Timestamp: time.Now()})
}

type modifyRequest struct {
	ID         string  `json:"id"`
	StopLoss   float64 `json:"stopLoss"`
	TakeProfit float64 `json:"takeProfit"`
	Entry      float64 `json:"entry,omitempty"`
	Note       string  `json:"note,omitempty"`
}

func (s *Server) handleModify(w http.ResponseWriter, r *http.Request) {
	var req modifyRequest
	if !decodePost(w, r, &req) {
		return
	}

	var err error
	switch {
	case req.Note != "":
		err = s.session.Annotate(req.ID, req.Note)
	case req.Entry > 0:
		err = s.session.ModifyPendingEntry(req.ID, req.Entry)
	default:
		err = s.session.ModifyTrade(req.ID, req.StopLoss, req.TakeProfit)
	}
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err)
		return
	}
	writeJSON(w, http.StatusOK, model.APIResponse{
		Data:      map[string]string{"status": "ok"},
		Timestamp: time.Now(),
	})
}

func decodePost(w http.ResponseWriter, r *http.Request, dst any) bool {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, errors.New("POST required"))
		return false
	}
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, errors.New("invalid JSON: "+err.Error()))
		return false
	}
	return true
}

func intParam(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, model.APIResponse{
		Error:     err.Error(),
		Timestamp: time.Now(),
	})
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
