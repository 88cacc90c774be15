package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/luciferkid9/PUNPORT-REPLAY-sub000/internal/api"
	"github.com/luciferkid9/PUNPORT-REPLAY-sub000/internal/engine"
	"github.com/luciferkid9/PUNPORT-REPLAY-sub000/internal/model"
)

// stubSession records commands and serves canned reads.
type stubSession struct {
	candles  []model.Candle
	account  model.AccountState
	trades   []model.Trade
	state    model.SimulationState
	simTime  int64
	price    float64
	invested int64

	actions   []string
	placed    []engine.PlaceRequest
	closed    []string
	stepErr   error
	placeErr  error
	lastSL    float64
	lastTP    float64
	lastEntry float64
	lastNote  string
}

func (s *stubSession) VisibleCandles() []model.Candle { return s.candles }
func (s *stubSession) CurrentPrice() float64          { return s.price }
func (s *stubSession) CurrentSimTime() (int64, bool)  { return s.simTime, s.simTime != 0 }
func (s *stubSession) State() model.SimulationState   { return s.state }
func (s *stubSession) Account() model.AccountState    { return s.account }
func (s *stubSession) TimeInvested() int64            { return s.invested }

func (s *stubSession) EMA(int) []model.IndicatorPoint { return []model.IndicatorPoint{{Time: 60, Value: 1.1}} }
func (s *stubSession) RSI(int) []model.IndicatorPoint { return []model.IndicatorPoint{{Time: 60, Value: 55}} }
func (s *stubSession) MACD() []model.MACDPoint        { return []model.MACDPoint{{Time: 60}} }

func (s *stubSession) Trades(status model.OrderStatus) []model.Trade {
	out := make([]model.Trade, 0)
	for _, t := range s.trades {
		if status == "" || t.Status == status {
			out = append(out, t)
		}
	}
	return out
}

func (s *stubSession) TrendPanel(context.Context) map[model.Timeframe]model.TrendLabel {
	return map[model.Timeframe]model.TrendLabel{model.TFH4: model.TrendBullish}
}

func (s *stubSession) Play()  { s.actions = append(s.actions, "play") }
func (s *stubSession) Pause() { s.actions = append(s.actions, "pause") }

func (s *stubSession) Step() error {
	s.actions = append(s.actions, "step")
	return s.stepErr
}

func (s *stubSession) SetSpeed(ms int) error {
	s.actions = append(s.actions, "speed")
	return nil
}

func (s *stubSession) JumpToDate(_ context.Context, target int64) error {
	s.actions = append(s.actions, "jump")
	return nil
}

func (s *stubSession) JumpToFirstData(context.Context) error {
	s.actions = append(s.actions, "jumpFirst")
	return nil
}

func (s *stubSession) LoadMoreHistory(context.Context) (int, error) {
	s.actions = append(s.actions, "moreHistory")
	return 8, nil
}

func (s *stubSession) PlaceOrder(req engine.PlaceRequest) (*model.Trade, error) {
	if s.placeErr != nil {
		return nil, s.placeErr
	}
	s.placed = append(s.placed, req)
	return &model.Trade{ID: "t-1", Symbol: "EURUSD", Side: req.Side, Status: model.StatusOpen}, nil
}

func (s *stubSession) CloseOrder(id string, exitPrice ...float64) (*model.Trade, error) {
	s.closed = append(s.closed, id)
	return &model.Trade{ID: id, Status: model.StatusClosed}, nil
}

func (s *stubSession) ModifyTrade(id string, sl, tp float64) error {
	s.lastSL, s.lastTP = sl, tp
	return nil
}

func (s *stubSession) ModifyPendingEntry(id string, entry float64) error {
	s.lastEntry = entry
	return nil
}

func (s *stubSession) Annotate(id, note string) error {
	s.lastNote = note
	return nil
}

func newTestServer(t *testing.T, sess *stubSession) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(api.NewServer("127.0.0.1:0", sess, zap.NewNop()).Handler())
	t.Cleanup(srv.Close)
	return srv
}

func getResponse(t *testing.T, srv *httptest.Server, path string) model.APIResponse {
	t.Helper()
	resp, err := http.Get(srv.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body model.APIResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return body
}

func postJSON(t *testing.T, srv *httptest.Server, path string, payload any) (*http.Response, model.APIResponse) {
	t.Helper()
	buf, err := json.Marshal(payload)
	require.NoError(t, err)
	resp, err := http.Post(srv.URL+path, "application/json", bytes.NewReader(buf))
	require.NoError(t, err)
	defer resp.Body.Close()

	var body model.APIResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return resp, body
}

func TestServer_State(t *testing.T) {
	sess := &stubSession{simTime: 1_700_003_600, price: 1.1042, invested: 90,
		state: model.SimulationState{IsPlaying: true, Speed: 500, CurrentIndex: 7, MaxIndex: 40}}
	srv := newTestServer(t, sess)

	body := getResponse(t, srv, "/api/state")
	data, ok := body.Data.(map[string]any)
	require.True(t, ok)
	assert.EqualValues(t, 1_700_003_600, data["simTime"])
	assert.EqualValues(t, 1.1042, data["currentPrice"])
	assert.EqualValues(t, 90, data["timeInvested"])
}

func TestServer_CandlesAndTrades(t *testing.T) {
	sess := &stubSession{
		candles: []model.Candle{{Time: 60, Open: 1, High: 2, Low: 0.5, Close: 1.5}},
		trades: []model.Trade{
			{ID: "a", Status: model.StatusOpen},
			{ID: "b", Status: model.StatusClosed},
		},
	}
	srv := newTestServer(t, sess)

	candles := getResponse(t, srv, "/api/candles")
	list, ok := candles.Data.([]any)
	require.True(t, ok)
	assert.Len(t, list, 1)

	open := getResponse(t, srv, "/api/trades?status=OPEN")
	trades, ok := open.Data.([]any)
	require.True(t, ok)
	require.Len(t, trades, 1)
	first, ok := trades[0].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "a", first["id"])
}

func TestServer_Indicators(t *testing.T) {
	srv := newTestServer(t, &stubSession{})

	body := getResponse(t, srv, "/api/indicators?name=ema&period=50")
	data, ok := body.Data.(map[string]any)
	require.True(t, ok)
	assert.Contains(t, data, "ema")
	assert.NotContains(t, data, "rsi")

	body = getResponse(t, srv, "/api/indicators")
	data, ok = body.Data.(map[string]any)
	require.True(t, ok)
	assert.Contains(t, data, "ema")
	assert.Contains(t, data, "rsi")
	assert.Contains(t, data, "macd")
}

func TestServer_ControlDispatch(t *testing.T) {
	sess := &stubSession{}
	srv := newTestServer(t, sess)

	for _, action := range []string{"play", "pause", "step", "jumpFirst"} {
		resp, _ := postJSON(t, srv, "/api/control", map[string]any{"action": action})
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	}
	resp, body := postJSON(t, srv, "/api/control", map[string]any{"action": "moreHistory"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	data, ok := body.Data.(map[string]any)
	require.True(t, ok)
	assert.EqualValues(t, 8, data["inserted"])

	assert.Equal(t, []string{"play", "pause", "step", "jumpFirst", "moreHistory"}, sess.actions)
}

func TestServer_ControlRejectsUnknownAction(t *testing.T) {
	srv := newTestServer(t, &stubSession{})

	resp, body := postJSON(t, srv, "/api/control", map[string]any{"action": "rewind"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, body.Error, "unknown action")
}

func TestServer_ControlRequiresPost(t *testing.T) {
	srv := newTestServer(t, &stubSession{})

	resp, err := http.Get(srv.URL + "/api/control")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestServer_ControlStepConflict(t *testing.T) {
	sess := &stubSession{stepErr: engine.ErrAccountBlown}
	srv := newTestServer(t, sess)

	resp, body := postJSON(t, srv, "/api/control", map[string]any{"action": "step"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.NotEmpty(t, body.Error)
}

func TestServer_PlaceOrder(t *testing.T) {
	sess := &stubSession{}
	srv := newTestServer(t, sess)

	resp, body := postJSON(t, srv, "/api/orders", map[string]any{
		"side": "LONG", "type": "MARKET", "quantity": 0.1,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	require.Len(t, sess.placed, 1)
	assert.Equal(t, model.SideLong, sess.placed[0].Side)
	assert.InDelta(t, 0.1, sess.placed[0].Quantity, 1e-9)

	trade, ok := body.Data.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "t-1", trade["id"])
}

func TestServer_PlaceOrderRejection(t *testing.T) {
	sess := &stubSession{placeErr: engine.ErrInsufficientMargin}
	srv := newTestServer(t, sess)

	resp, body := postJSON(t, srv, "/api/orders", map[string]any{
		"side": "LONG", "type": "MARKET", "quantity": 500,
	})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.NotEmpty(t, body.Error)
}

func TestServer_CloseAndModify(t *testing.T) {
	sess := &stubSession{}
	srv := newTestServer(t, sess)

	resp, _ := postJSON(t, srv, "/api/orders/close", map[string]any{"id": "t-9"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []string{"t-9"}, sess.closed)

	resp, _ = postJSON(t, srv, "/api/orders/modify", map[string]any{
		"id": "t-9", "stopLoss": 1.09, "takeProfit": 1.12,
	})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.InDelta(t, 1.09, sess.lastSL, 1e-9)
	assert.InDelta(t, 1.12, sess.lastTP, 1e-9)

	resp, _ = postJSON(t, srv, "/api/orders/modify", map[string]any{"id": "t-9", "entry": 1.10})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.InDelta(t, 1.10, sess.lastEntry, 1e-9)

	resp, _ = postJSON(t, srv, "/api/orders/modify", map[string]any{"id": "t-9", "note": "breakout retest"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "breakout retest", sess.lastNote)
}

func TestServer_CORSPreflight(t *testing.T) {
	srv := newTestServer(t, &stubSession{})

	req, err := http.NewRequest(http.MethodOptions, srv.URL+"/api/state", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
}
