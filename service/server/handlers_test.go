package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stellar/go-stellar-sdk/keypair"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brojonat/lumenboard/service/config"
	"github.com/brojonat/lumenboard/service/events"
	"github.com/brojonat/lumenboard/service/horizon"
	"github.com/brojonat/lumenboard/service/payment"
	"github.com/brojonat/lumenboard/service/wallet"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func testConfig() *config.Config {
	return &config.Config{
		ExplorerBaseURL: "https://stellar.expert/explorer/testnet",
	}
}

// fakeSession implements WalletSession for handler tests.
type fakeSession struct {
	state      wallet.State
	connectErr error
	signErr    error
}

func (f *fakeSession) State() wallet.State { return f.state }

func (f *fakeSession) CheckStatus(ctx context.Context) (wallet.State, error) {
	return f.state, nil
}

func (f *fakeSession) Connect(ctx context.Context) (wallet.State, error) {
	if f.connectErr != nil {
		return f.state, f.connectErr
	}
	f.state.Connected = true
	return f.state, nil
}

func (f *fakeSession) Disconnect() wallet.State {
	f.state = wallet.State{Installed: f.state.Installed}
	return f.state
}

func (f *fakeSession) Sign(ctx context.Context, envelopeXDR, networkPassphrase string) (string, error) {
	if f.signErr != nil {
		return "", f.signErr
	}
	return envelopeXDR, nil
}

// fakeLedger implements Ledger for handler tests.
type fakeLedger struct {
	balances   map[string]string
	balanceErr error
	fundErr    error
	fundCalls  []string
}

func (f *fakeLedger) NativeBalance(ctx context.Context, address string) (string, error) {
	if f.balanceErr != nil {
		return "", f.balanceErr
	}
	balance, ok := f.balances[address]
	if !ok {
		return "", horizon.ErrAccountNotFound
	}
	return balance, nil
}

func (f *fakeLedger) Fund(ctx context.Context, address string) error {
	f.fundCalls = append(f.fundCalls, address)
	return f.fundErr
}

// fakeSender implements PaymentSender for handler tests.
type fakeSender struct {
	result *payment.Result
	err    error
	gotReq payment.Request
}

func (f *fakeSender) Send(ctx context.Context, req payment.Request, signer payment.Signer) (*payment.Result, error) {
	f.gotReq = req
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	return body
}

func TestHandleWalletStatus(t *testing.T) {
	addr := keypair.MustRandom().Address()
	session := &fakeSession{state: wallet.State{
		Installed: true,
		Connected: true,
		Address:   addr,
		Network:   "TESTNET",
	}}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/wallet/status", nil)
	rec := httptest.NewRecorder()
	handleWalletStatus(session, testLogger()).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	state := body["wallet"].(map[string]interface{})
	assert.Equal(t, true, state["installed"])
	assert.Equal(t, true, state["connected"])
	assert.Equal(t, addr, state["address"])
}

func TestHandleWalletConnect(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		session := &fakeSession{state: wallet.State{Installed: true, Address: keypair.MustRandom().Address()}}

		req := httptest.NewRequest(http.MethodPost, "/api/v1/wallet/connect", nil)
		rec := httptest.NewRecorder()
		handleWalletConnect(session, testLogger()).ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		body := decodeBody(t, rec)
		state := body["wallet"].(map[string]interface{})
		assert.Equal(t, true, state["connected"])
	})

	t.Run("not installed", func(t *testing.T) {
		session := &fakeSession{connectErr: wallet.ErrNotInstalled}

		req := httptest.NewRequest(http.MethodPost, "/api/v1/wallet/connect", nil)
		rec := httptest.NewRecorder()
		handleWalletConnect(session, testLogger()).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})

	t.Run("denied", func(t *testing.T) {
		session := &fakeSession{connectErr: &wallet.ConnectionDeniedError{Reason: "user declined"}}

		req := httptest.NewRequest(http.MethodPost, "/api/v1/wallet/connect", nil)
		rec := httptest.NewRecorder()
		handleWalletConnect(session, testLogger()).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusForbidden, rec.Code)
	})
}

func TestHandleWalletDisconnect(t *testing.T) {
	session := &fakeSession{state: wallet.State{
		Installed: true,
		Connected: true,
		Address:   keypair.MustRandom().Address(),
	}}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/wallet/disconnect", nil)
	rec := httptest.NewRecorder()
	handleWalletDisconnect(session, testLogger()).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	state := body["wallet"].(map[string]interface{})
	assert.Equal(t, false, state["connected"])
	assert.Equal(t, true, state["installed"])
}

func TestHandleGetBalance(t *testing.T) {
	addr := keypair.MustRandom().Address()

	t.Run("success publishes event and caches", func(t *testing.T) {
		ledger := &fakeLedger{balances: map[string]string{addr: "42.5000000"}}
		pub := events.NewMockPublisher()
		cache := newBalanceCache()

		req := httptest.NewRequest(http.MethodGet, "/api/v1/balance/"+addr, nil)
		req.SetPathValue("address", addr)
		rec := httptest.NewRecorder()
		handleGetBalance(ledger, pub, cache, nil, testLogger()).ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		body := decodeBody(t, rec)
		assert.Equal(t, "42.5000000", body["balance"])
		assert.Equal(t, "XLM", body["asset"])
		assert.Equal(t, true, body["funded"])

		published := pub.Balances()
		require.Len(t, published, 1)
		assert.Equal(t, addr, published[0].Address)
		assert.Equal(t, "42.5000000", published[0].Balance)

		snap, ok := cache.load(addr)
		require.True(t, ok)
		assert.Equal(t, "42.5000000", snap.Balance)
	})

	t.Run("account not found", func(t *testing.T) {
		ledger := &fakeLedger{balances: map[string]string{}}

		req := httptest.NewRequest(http.MethodGet, "/api/v1/balance/"+addr, nil)
		req.SetPathValue("address", addr)
		rec := httptest.NewRecorder()
		handleGetBalance(ledger, nil, newBalanceCache(), nil, testLogger()).ServeHTTP(rec, req)

		require.Equal(t, http.StatusNotFound, rec.Code)
		body := decodeBody(t, rec)
		assert.Equal(t, false, body["funded"])
	})

	t.Run("fetch failure clears cached snapshot", func(t *testing.T) {
		ledger := &fakeLedger{balances: map[string]string{addr: "42.5000000"}}
		cache := newBalanceCache()

		req := httptest.NewRequest(http.MethodGet, "/api/v1/balance/"+addr, nil)
		req.SetPathValue("address", addr)
		rec := httptest.NewRecorder()
		handleGetBalance(ledger, nil, cache, nil, testLogger()).ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)
		_, ok := cache.load(addr)
		require.True(t, ok)

		ledger.balanceErr = errors.New("horizon 503")
		rec = httptest.NewRecorder()
		req = httptest.NewRequest(http.MethodGet, "/api/v1/balance/"+addr, nil)
		req.SetPathValue("address", addr)
		handleGetBalance(ledger, nil, cache, nil, testLogger()).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusBadGateway, rec.Code)
		_, ok = cache.load(addr)
		assert.False(t, ok, "stale snapshot must not survive a failed refresh")
	})

	t.Run("account removal clears cached snapshot", func(t *testing.T) {
		ledger := &fakeLedger{balances: map[string]string{addr: "42.5000000"}}
		cache := newBalanceCache()

		req := httptest.NewRequest(http.MethodGet, "/api/v1/balance/"+addr, nil)
		req.SetPathValue("address", addr)
		rec := httptest.NewRecorder()
		handleGetBalance(ledger, nil, cache, nil, testLogger()).ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)

		delete(ledger.balances, addr)
		rec = httptest.NewRecorder()
		req = httptest.NewRequest(http.MethodGet, "/api/v1/balance/"+addr, nil)
		req.SetPathValue("address", addr)
		handleGetBalance(ledger, nil, cache, nil, testLogger()).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusNotFound, rec.Code)
		_, ok := cache.load(addr)
		assert.False(t, ok)
	})

	t.Run("invalid address", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/balance/bogus", nil)
		req.SetPathValue("address", "bogus")
		rec := httptest.NewRecorder()
		handleGetBalance(&fakeLedger{}, nil, newBalanceCache(), nil, testLogger()).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestHandleFundAccount(t *testing.T) {
	addr := keypair.MustRandom().Address()

	t.Run("success", func(t *testing.T) {
		ledger := &fakeLedger{}

		payload, _ := json.Marshal(map[string]string{"address": addr})
		req := httptest.NewRequest(http.MethodPost, "/api/v1/fund", bytes.NewReader(payload))
		rec := httptest.NewRecorder()
		handleFundAccount(ledger, testLogger()).ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, []string{addr}, ledger.fundCalls)
		body := decodeBody(t, rec)
		assert.Equal(t, true, body["funded"])
	})

	t.Run("already funded", func(t *testing.T) {
		ledger := &fakeLedger{fundErr: horizon.ErrAlreadyFunded}

		payload, _ := json.Marshal(map[string]string{"address": addr})
		req := httptest.NewRequest(http.MethodPost, "/api/v1/fund", bytes.NewReader(payload))
		rec := httptest.NewRecorder()
		handleFundAccount(ledger, testLogger()).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusConflict, rec.Code)
	})

	t.Run("faucet failure", func(t *testing.T) {
		ledger := &fakeLedger{fundErr: &horizon.FaucetError{Detail: "rate limited"}}

		payload, _ := json.Marshal(map[string]string{"address": addr})
		req := httptest.NewRequest(http.MethodPost, "/api/v1/fund", bytes.NewReader(payload))
		rec := httptest.NewRecorder()
		handleFundAccount(ledger, testLogger()).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusBadGateway, rec.Code)
	})

	t.Run("invalid body", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/fund", bytes.NewReader([]byte("not json")))
		rec := httptest.NewRecorder()
		handleFundAccount(&fakeLedger{}, testLogger()).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestHandleSendPayment(t *testing.T) {
	from := keypair.MustRandom().Address()
	to := keypair.MustRandom().Address()
	connected := wallet.State{Installed: true, Connected: true, Address: from, Network: "TESTNET"}

	t.Run("success includes explorer link", func(t *testing.T) {
		session := &fakeSession{state: connected}
		sender := &fakeSender{result: &payment.Result{Hash: "deadbeef", Ledger: 123, CreatedAccount: true}}

		payload, _ := json.Marshal(map[string]string{"to": to, "amount": "5", "memo": "hi"})
		req := httptest.NewRequest(http.MethodPost, "/api/v1/payments", bytes.NewReader(payload))
		rec := httptest.NewRecorder()
		handleSendPayment(sender, session, testConfig(), testLogger()).ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		body := decodeBody(t, rec)
		assert.Equal(t, "deadbeef", body["hash"])
		assert.Equal(t, float64(123), body["ledger"])
		assert.Equal(t, true, body["created_account"])
		assert.Equal(t, "https://stellar.expert/explorer/testnet/tx/deadbeef", body["explorer_url"])

		// Source comes from the session, not the request body
		assert.Equal(t, from, sender.gotReq.From)
		assert.Equal(t, to, sender.gotReq.To)
	})

	t.Run("not connected", func(t *testing.T) {
		session := &fakeSession{state: wallet.State{Installed: true}}

		payload, _ := json.Marshal(map[string]string{"to": to, "amount": "5"})
		req := httptest.NewRequest(http.MethodPost, "/api/v1/payments", bytes.NewReader(payload))
		rec := httptest.NewRecorder()
		handleSendPayment(&fakeSender{}, session, testConfig(), testLogger()).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusPreconditionFailed, rec.Code)
	})

	t.Run("validation errors map to 400", func(t *testing.T) {
		for _, sendErr := range []error{
			payment.ErrInvalidDestination,
			payment.ErrInvalidAmount,
			payment.ErrBelowMinimumReserve,
		} {
			session := &fakeSession{state: connected}
			sender := &fakeSender{err: sendErr}

			payload, _ := json.Marshal(map[string]string{"to": to, "amount": "5"})
			req := httptest.NewRequest(http.MethodPost, "/api/v1/payments", bytes.NewReader(payload))
			rec := httptest.NewRecorder()
			handleSendPayment(sender, session, testConfig(), testLogger()).ServeHTTP(rec, req)

			assert.Equal(t, http.StatusBadRequest, rec.Code, "error %v", sendErr)
		}
	})

	t.Run("ledger rejection surfaces code", func(t *testing.T) {
		session := &fakeSession{state: connected}
		sender := &fakeSender{err: &payment.RejectedError{
			Code:    "op_underfunded",
			Message: "Insufficient balance.",
		}}

		payload, _ := json.Marshal(map[string]string{"to": to, "amount": "5"})
		req := httptest.NewRequest(http.MethodPost, "/api/v1/payments", bytes.NewReader(payload))
		rec := httptest.NewRecorder()
		handleSendPayment(sender, session, testConfig(), testLogger()).ServeHTTP(rec, req)

		require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
		body := decodeBody(t, rec)
		assert.Equal(t, "op_underfunded", body["code"])
		assert.Equal(t, "Insufficient balance.", body["error"])
	})

	t.Run("signing rejection maps to 403", func(t *testing.T) {
		session := &fakeSession{state: connected}
		sender := &fakeSender{err: &wallet.SigningError{Reason: "user declined"}}

		payload, _ := json.Marshal(map[string]string{"to": to, "amount": "5"})
		req := httptest.NewRequest(http.MethodPost, "/api/v1/payments", bytes.NewReader(payload))
		rec := httptest.NewRecorder()
		handleSendPayment(sender, session, testConfig(), testLogger()).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusForbidden, rec.Code)
	})
}

func TestValidateAddress(t *testing.T) {
	valid := keypair.MustRandom().Address()
	assert.NoError(t, validateAddress(valid))

	for _, addr := range []string{
		"",
		"short",
		" " + valid,
		valid[:len(valid)-1] + "!",
		"S" + valid[1:], // seed prefix, not an account
	} {
		assert.Error(t, validateAddress(addr), "address %q", addr)
	}
}

func TestCORSMiddleware(t *testing.T) {
	handler := corsMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/wallet/status", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}
