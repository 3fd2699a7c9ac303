package kithttp

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetUnwrapsResultEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "42", r.URL.Query().Get("id"))
		assert.Equal(t, "token", r.Header.Get("Authorization"))
		writeJSON(w, http.StatusOK, Ok(map[string]string{"name": "alice"}))
	}))
	defer srv.Close()

	res := Get(srv.URL, map[string]string{"id": "42"},
		map[string]string{"Authorization": "token"}, time.Second)

	require.True(t, res.Success)
	assert.Equal(t, map[string]interface{}{"name": "alice"}, res.Data)
}

func TestGetUnwrapsFailedEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, FailCode("no such user", 1001))
	}))
	defer srv.Close()

	res := Get(srv.URL, nil, nil, time.Second)
	assert.False(t, res.Success)
	assert.Equal(t, "no such user", res.Msg)
	assert.Equal(t, 1001, res.Code)
}

func TestInvokeKeepsPlainJSONBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]interface{}{"items": []interface{}{"a", "b"}})
	}))
	defer srv.Close()

	cr := &ClientRequest{URL: srv.URL, Method: http.MethodGet, Timeout: time.Second}
	res := cr.Invoke()

	require.True(t, res.Success)
	body, ok := res.Data.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, []interface{}{"a", "b"}, body["items"])
}

func TestInvokeTextBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte("pong"))
	}))
	defer srv.Close()

	res := (&ClientRequest{URL: srv.URL, Method: http.MethodGet, Timeout: time.Second}).Invoke()
	require.True(t, res.Success)
	assert.Equal(t, "pong", res.Data)
}

func TestPostSendsJSONBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "alice", body["name"])
		writeJSON(w, http.StatusOK, Ok("created"))
	}))
	defer srv.Close()

	res := Post(srv.URL, map[string]interface{}{"name": "alice"}, nil, time.Second)
	require.True(t, res.Success)
	assert.Equal(t, "created", res.Data)
}

func TestInvokeHTTPErrorUsesStatusAsCode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()

	res := (&ClientRequest{URL: srv.URL, Method: http.MethodGet, Timeout: time.Second}).Invoke()
	assert.False(t, res.Success)
	assert.Equal(t, http.StatusNotFound, res.Code)
}

func TestInvokeConnectionError(t *testing.T) {
	res := (&ClientRequest{URL: "http://127.0.0.1:1", Method: http.MethodGet, Timeout: time.Second}).Invoke()
	assert.False(t, res.Success)
	assert.Equal(t, -2, res.Code)
}

func TestInvokeClientError(t *testing.T) {
	res := (&ClientRequest{URL: "foo://127.0.0.1/x", Method: http.MethodGet, Timeout: time.Second}).Invoke()
	assert.False(t, res.Success)
	assert.Equal(t, -3, res.Code, "a request that never reached the network is a client error, not a connection error")
}

func TestInvokeTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(500 * time.Millisecond)
	}))
	defer srv.Close()

	res := (&ClientRequest{URL: srv.URL, Method: http.MethodGet, Timeout: 100 * time.Millisecond}).Invoke()
	assert.False(t, res.Success)
	assert.Equal(t, -1, res.Code)
}

func TestFetchPicksMethodFromData(t *testing.T) {
	var method string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method = r.Method
		writeJSON(w, http.StatusOK, Ok(nil))
	}))
	defer srv.Close()

	Fetch(srv.URL, nil, nil, time.Second)
	assert.Equal(t, http.MethodGet, method)

	Fetch(srv.URL, map[string]interface{}{"k": "v"}, nil, time.Second)
	assert.Equal(t, http.MethodPost, method)
}
