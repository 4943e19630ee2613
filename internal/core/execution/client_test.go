package execution

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/floorlens/floorlens/internal/core"
)

func TestSubmit(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/transfers", r.URL.Path)
		require.Equal(t, "secret", r.Header.Get("X-API-Key"))

		var req core.TransferRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, "0xseller", req.Destination)
		require.InDelta(t, 0.3, req.Amount, 1e-9)
		require.Equal(t, "l2", req.Reference)

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"tx_hash":"0xdeadbeef","status":"confirmed"}`))
	}))
	defer server.Close()

	client := &Client{BaseURL: server.URL, APIKey: "secret"}
	receipt, err := client.Submit(context.Background(), core.TransferRequest{
		Destination: "0xseller",
		Amount:      0.3,
		Unit:        core.UnitETH,
		Reference:   "l2",
	})
	require.NoError(t, err)
	require.Equal(t, "0xdeadbeef", receipt.TxHash)
	require.Equal(t, core.TransferConfirmed, receipt.Status)
}

func TestSubmitRejected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusPaymentRequired)
		_, _ = w.Write([]byte("insufficient funds"))
	}))
	defer server.Close()

	client := &Client{BaseURL: server.URL}
	_, err := client.Submit(context.Background(), core.TransferRequest{Destination: "0xseller", Amount: 1})

	var apiErr *core.APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, http.StatusPaymentRequired, apiErr.StatusCode)
	require.Equal(t, "insufficient funds", apiErr.Message)
}

func TestSubmitMissingTxHash(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"confirmed"}`))
	}))
	defer server.Close()

	client := &Client{BaseURL: server.URL}
	_, err := client.Submit(context.Background(), core.TransferRequest{Destination: "0xseller", Amount: 1})
	require.Error(t, err)
}

func TestSubmitValidation(t *testing.T) {
	client := &Client{BaseURL: "http://localhost:1"}

	_, err := client.Submit(context.Background(), core.TransferRequest{Amount: 1})
	require.Error(t, err)

	_, err = client.Submit(context.Background(), core.TransferRequest{Destination: "0xseller"})
	require.Error(t, err)

	unset := &Client{}
	_, err = unset.Submit(context.Background(), core.TransferRequest{Destination: "0xseller", Amount: 1})
	require.ErrorContains(t, err, "base url")
}
