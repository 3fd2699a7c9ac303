package kithttp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// ClientRequest is a single-shot HTTP request with uniform Result-shaped
// outcomes: transport failures, timeouts and HTTP error statuses all come
// back as failed Results rather than errors.
type ClientRequest struct {
	URL     string
	Method  string
	Data    map[string]interface{}
	Params  map[string]string
	Headers map[string]string
	Timeout time.Duration

	// Client overrides the HTTP client, mainly for tests and proxies.
	Client *http.Client
}

// Invoke sends the request. Failure codes: -1 timeout, -2 connection error,
// -3 other client-side request failures (bad scheme, protocol errors), -4
// anything else; HTTP statuses >= 400 use the status as the code.
func (cr *ClientRequest) Invoke() *Result {
	timeout := cr.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	u := strings.TrimSuffix(cr.URL, "/")
	if len(cr.Params) > 0 {
		values := url.Values{}
		for key, value := range cr.Params {
			values.Set(key, value)
		}
		u += "?" + values.Encode()
	}

	var body io.Reader
	if cr.Method != http.MethodGet && cr.Data != nil {
		raw, err := json.Marshal(cr.Data)
		if err != nil {
			return FailCode(fmt.Sprintf("request encoding failed: %v", err), -4)
		}
		body = bytes.NewReader(raw)
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, cr.Method, u, body)
	if err != nil {
		return FailCode(fmt.Sprintf("invalid request: %v", err), -4)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for key, value := range cr.Headers {
		req.Header.Set(key, value)
	}

	client := cr.Client
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := client.Do(req)
	if err != nil {
		switch {
		case errors.Is(err, context.DeadlineExceeded):
			return FailCode(fmt.Sprintf("request timed out after %s", timeout), -1)
		case isConnError(err):
			return FailCode(fmt.Sprintf("connection error: %v", err), -2)
		case isClientError(err):
			return FailCode(fmt.Sprintf("client error: %v", err), -3)
		default:
			return FailCode(fmt.Sprintf("request failed: %v", err), -4)
		}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 200))
		return FailCode(fmt.Sprintf("HTTP error %d: %s", resp.StatusCode, raw), resp.StatusCode)
	}

	ct := resp.Header.Get("Content-Type")
	switch {
	case strings.Contains(ct, "application/json"):
		var data interface{}
		if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
			return FailCode(fmt.Sprintf("invalid JSON response: %v", err), -4)
		}
		return Ok(data)
	case strings.Contains(ct, "text/"):
		raw, err := io.ReadAll(resp.Body)
		if err != nil {
			return FailCode(fmt.Sprintf("read failed: %v", err), -4)
		}
		return Ok(string(raw))
	default:
		raw, err := io.ReadAll(resp.Body)
		if err != nil {
			return FailCode(fmt.Sprintf("read failed: %v", err), -4)
		}
		return Ok(raw)
	}
}

func isConnError(err error) bool {
	var opErr *net.OpError
	return errors.As(err, &opErr)
}

// isClientError catches request failures that never reached the network, like
// an unsupported scheme or a protocol violation. Checked after isConnError,
// since dial failures also surface wrapped in a *url.Error.
func isClientError(err error) bool {
	var urlErr *url.Error
	return errors.As(err, &urlErr)
}

// unwrapResult lifts a Result envelope out of a JSON response body, so a call
// to another kitHttp service yields that service's Result directly.
func unwrapResult(r *Result) *Result {
	if !r.Success || r.Data == nil {
		return r
	}
	body, ok := r.Data.(map[string]interface{})
	if !ok {
		return r
	}
	success, ok := body["success"].(bool)
	if !ok {
		return r
	}

	out := &Result{Success: success, Data: body["data"]}
	if msg, ok := body["msg"].(string); ok {
		out.Msg = msg
	}
	if code, ok := body["code"].(float64); ok {
		out.Code = int(code)
	} else if !success {
		out.Code = -1
	}
	return out
}

// Get sends a GET request and unwraps a Result-shaped JSON body.
func Get(url string, params map[string]string, headers map[string]string, timeout time.Duration) *Result {
	cr := &ClientRequest{URL: url, Method: http.MethodGet, Params: params, Headers: headers, Timeout: timeout}
	return unwrapResult(cr.Invoke())
}

// Post sends a POST request with a JSON body and unwraps a Result-shaped
// JSON response.
func Post(url string, data map[string]interface{}, headers map[string]string, timeout time.Duration) *Result {
	cr := &ClientRequest{URL: url, Method: http.MethodPost, Data: data, Headers: headers, Timeout: timeout}
	return unwrapResult(cr.Invoke())
}

// Put sends a PUT request with a JSON body.
func Put(url string, data map[string]interface{}, headers map[string]string, timeout time.Duration) *Result {
	cr := &ClientRequest{URL: url, Method: http.MethodPut, Data: data, Headers: headers, Timeout: timeout}
	return unwrapResult(cr.Invoke())
}

// Delete sends a DELETE request.
func Delete(url string, headers map[string]string, timeout time.Duration) *Result {
	cr := &ClientRequest{URL: url, Method: http.MethodDelete, Headers: headers, Timeout: timeout}
	return unwrapResult(cr.Invoke())
}

// Fetch sends a GET, or a POST when data is non-nil.
func Fetch(url string, data map[string]interface{}, params map[string]string, timeout time.Duration) *Result {
	method := http.MethodGet
	if data != nil {
		method = http.MethodPost
	}
	cr := &ClientRequest{URL: url, Method: method, Data: data, Params: params, Timeout: timeout}
	return unwrapResult(cr.Invoke())
}
