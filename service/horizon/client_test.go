package horizon

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stellar/go-stellar-sdk/clients/horizonclient"
	hProtocol "github.com/stellar/go-stellar-sdk/protocols/horizon"
	"github.com/stellar/go-stellar-sdk/protocols/horizon/base"
	"github.com/stellar/go-stellar-sdk/support/render/problem"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeAPI implements the API interface for tests.
type fakeAPI struct {
	accounts     map[string]hProtocol.Account
	accountErr   error
	submitResult hProtocol.Transaction
	submitErr    error

	accountCalls []string
	submitCalls  []string
}

func (f *fakeAPI) AccountDetail(request horizonclient.AccountRequest) (hProtocol.Account, error) {
	f.accountCalls = append(f.accountCalls, request.AccountID)
	if f.accountErr != nil {
		return hProtocol.Account{}, f.accountErr
	}
	acct, ok := f.accounts[request.AccountID]
	if !ok {
		return hProtocol.Account{}, notFoundError()
	}
	return acct, nil
}

func (f *fakeAPI) SubmitTransactionXDR(transactionXdr string) (hProtocol.Transaction, error) {
	f.submitCalls = append(f.submitCalls, transactionXdr)
	if f.submitErr != nil {
		return hProtocol.Transaction{}, f.submitErr
	}
	return f.submitResult, nil
}

func notFoundError() error {
	return &horizonclient.Error{
		Problem: problem.P{
			Status: http.StatusNotFound,
			Title:  "Resource Missing",
		},
	}
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

const testAddr = "GDQP2KPQGKIHYJGXNUIYOMHARUARCA7DJT5FO2FFOOKY3B2WSQHG4W37"

func nativeAccount(address, balance string) hProtocol.Account {
	return hProtocol.Account{
		AccountID: address,
		Sequence:  12345,
		Balances: []hProtocol.Balance{
			{Balance: balance, Asset: base.Asset{Type: "native"}},
		},
	}
}

func TestLoadAccount(t *testing.T) {
	api := &fakeAPI{accounts: map[string]hProtocol.Account{
		testAddr: nativeAccount(testAddr, "100.5"),
	}}
	c := NewClient(api, "", "testnet", nil, testLogger())

	acct, err := c.LoadAccount(context.Background(), testAddr)
	require.NoError(t, err)
	assert.Equal(t, testAddr, acct.Address)
	assert.Equal(t, int64(12345), acct.Sequence)
	require.Len(t, acct.Balances, 1)
	assert.Equal(t, "native", acct.Balances[0].AssetType)
}

func TestLoadAccount_NotFound(t *testing.T) {
	api := &fakeAPI{accounts: map[string]hProtocol.Account{}}
	c := NewClient(api, "", "testnet", nil, testLogger())

	_, err := c.LoadAccount(context.Background(), testAddr)
	assert.ErrorIs(t, err, ErrAccountNotFound)
}

func TestLoadAccount_NetworkError(t *testing.T) {
	api := &fakeAPI{accountErr: errors.New("connection reset")}
	c := NewClient(api, "", "testnet", nil, testLogger())

	_, err := c.LoadAccount(context.Background(), testAddr)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrAccountNotFound)
	assert.Contains(t, err.Error(), "connection reset")
}

func TestNativeBalance(t *testing.T) {
	tests := []struct {
		name    string
		account hProtocol.Account
		want    string
	}{
		{
			name:    "formats to seven fractional digits",
			account: nativeAccount(testAddr, "100.5"),
			want:    "100.5000000",
		},
		{
			name: "no native balance line",
			account: hProtocol.Account{
				AccountID: testAddr,
				Balances: []hProtocol.Balance{
					{Balance: "3.14", Asset: base.Asset{Type: "credit_alphanum4", Code: "USDC"}},
				},
			},
			want: "0.0000000",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := &fakeAPI{accounts: map[string]hProtocol.Account{testAddr: tt.account}}
			c := NewClient(api, "", "testnet", nil, testLogger())

			got, err := c.NativeBalance(context.Background(), testAddr)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNativeBalance_NotFoundPropagates(t *testing.T) {
	api := &fakeAPI{accounts: map[string]hProtocol.Account{}}
	c := NewClient(api, "", "testnet", nil, testLogger())

	_, err := c.NativeBalance(context.Background(), testAddr)
	assert.ErrorIs(t, err, ErrAccountNotFound)
}

func TestSubmit(t *testing.T) {
	api := &fakeAPI{
		submitResult: hProtocol.Transaction{Hash: "abc123", Ledger: 4242},
	}
	c := NewClient(api, "", "testnet", nil, testLogger())

	result, err := c.Submit(context.Background(), "AAAA...")
	require.NoError(t, err)
	assert.Equal(t, "abc123", result.Hash)
	assert.Equal(t, int32(4242), result.Ledger)
	assert.Equal(t, []string{"AAAA..."}, api.submitCalls)
}

func TestSubmit_LedgerRejection(t *testing.T) {
	api := &fakeAPI{
		submitErr: &horizonclient.Error{
			Problem: problem.P{
				Status: http.StatusBadRequest,
				Title:  "Transaction Failed",
				Extras: map[string]interface{}{
					"result_codes": map[string]interface{}{
						"transaction": "tx_failed",
						"operations":  []interface{}{"op_underfunded"},
					},
				},
			},
		},
	}
	c := NewClient(api, "", "testnet", nil, testLogger())

	_, err := c.Submit(context.Background(), "AAAA...")
	var subErr *SubmissionError
	require.ErrorAs(t, err, &subErr)
	assert.Equal(t, "tx_failed", subErr.TransactionCode)
	assert.Equal(t, []string{"op_underfunded"}, subErr.OperationCodes)
	assert.Equal(t, "op_underfunded", subErr.Code())
}

func TestSubmit_NetworkError(t *testing.T) {
	api := &fakeAPI{submitErr: errors.New("dial tcp: i/o timeout")}
	c := NewClient(api, "", "testnet", nil, testLogger())

	_, err := c.Submit(context.Background(), "AAAA...")
	require.Error(t, err)
	var subErr *SubmissionError
	assert.False(t, errors.As(err, &subErr))
}

func TestFund(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		wantErr    error
		wantFaucet bool
	}{
		{
			name:   "success",
			status: http.StatusOK,
			body:   `{"hash":"abc"}`,
		},
		{
			name:    "already funded",
			status:  http.StatusBadRequest,
			body:    `{"detail":"createAccountAlreadyExist (AAAAAAAAAGT...)"}`,
			wantErr: ErrAlreadyFunded,
		},
		{
			name:       "other faucet failure",
			status:     http.StatusInternalServerError,
			body:       `{"detail":"tx submission failed"}`,
			wantFaucet: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotAddr string
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				gotAddr = r.URL.Query().Get("addr")
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			c := NewClient(&fakeAPI{}, srv.URL, "testnet", nil, testLogger())
			err := c.Fund(context.Background(), testAddr)

			assert.Equal(t, testAddr, gotAddr)
			switch {
			case tt.wantErr != nil:
				assert.ErrorIs(t, err, tt.wantErr)
			case tt.wantFaucet:
				var ferr *FaucetError
				require.ErrorAs(t, err, &ferr)
				assert.Equal(t, "tx submission failed", ferr.Detail)
			default:
				require.NoError(t, err)
			}
		})
	}
}
