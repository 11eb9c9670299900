package loyaltyapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := New(Config{BaseURL: srv.URL + "/WebPuntos/API1"}, nil)
	require.NoError(t, err)
	return c
}

func TestListClients(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/WebPuntos/API1/clientes", r.URL.Path)
		_, _ = io.WriteString(w, `{"error":false,"message":"","data":[
			{"id":7,"nombre":"Ana","telefono":"+34 600 111 222","puntos":"12.5","negocio":"Cafe"}]}`)
	})

	clients, err := c.ListClients(context.Background())
	require.NoError(t, err)
	require.Len(t, clients, 1)
	assert.Equal(t, "7", clients[0].ID)
	assert.Equal(t, "Ana", clients[0].Name)
	assert.Equal(t, "12.5", clients[0].Points.String())
}

func TestStatement_PassesQuery(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "42", r.URL.Query().Get("id"))
		_, _ = io.WriteString(w, `{"error":false,"data":{"movimientos":[]}}`)
	})

	raw, err := c.Statement(context.Background(), "42")
	require.NoError(t, err)
	assert.JSONEq(t, `{"movimientos":[]}`, string(raw))
}

func TestEmbeddedErrorFlag_SurfacesMessage(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		_, _ = io.WriteString(w, `{"error":true,"message":"El cliente no existe"}`)
	})

	_, err := c.RegisterPurchase(context.Background(), json.RawMessage(`{"cliente":1}`))
	var ue *UpstreamError
	require.True(t, errors.As(err, &ue))
	assert.Equal(t, http.StatusOK, ue.Status)
	assert.Equal(t, "El cliente no existe", ue.Message)
	assert.False(t, Retryable(err))
}

func TestHTTPStatusWithoutMessage(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `not json`)
	})

	_, err := c.SaveCampaign(context.Background(), json.RawMessage(`{}`))
	var ue *UpstreamError
	require.True(t, errors.As(err, &ue))
	assert.Equal(t, "Bad Request", ue.Message)
}

func TestGet_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			_, _ = io.WriteString(w, `{"error":true,"message":"gateway"}`)
			return
		}
		_, _ = io.WriteString(w, `{"error":false,"data":[{"id":"c1","nombre":"Promo","meta":10,"activa":true}]}`)
	})

	campaigns, err := c.ListCampaigns(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 2, calls.Load())
	require.Len(t, campaigns, 1)
	assert.Equal(t, "c1", campaigns[0].ID)
	assert.True(t, campaigns[0].Active)
}

func TestNew_RequiresBaseURL(t *testing.T) {
	_, err := New(Config{}, nil)
	assert.Error(t, err)
}
