// Package testutil provides shared helpers for handler-level HTTP tests.
package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// NewRequest builds a bodyless request for driving a handler directly.
func NewRequest(t *testing.T, method, path string) *http.Request {
	t.Helper()
	return httptest.NewRequest(method, path, nil)
}

// DoRequest runs req through handler and captures the response.
func DoRequest(handler http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	return rr
}

// UnmarshalErrorResponse decodes the flat error envelope the respond helpers
// write.
func UnmarshalErrorResponse(t *testing.T, rr *httptest.ResponseRecorder) map[string]string {
	t.Helper()
	out := map[string]string{}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out), "decode error response")
	return out
}

// AssertStatus checks the recorded status code.
func AssertStatus(t *testing.T, rr *httptest.ResponseRecorder, want int) {
	t.Helper()
	assert.Equal(t, want, rr.Code, "unexpected status code")
}

// AssertStatusAndError checks the status code and the error code in the body.
func AssertStatusAndError(t *testing.T, rr *httptest.ResponseRecorder, wantStatus int, wantCode string) {
	t.Helper()
	AssertStatus(t, rr, wantStatus)
	assert.Equal(t, wantCode, UnmarshalErrorResponse(t, rr)["error"], "unexpected error code")
}
