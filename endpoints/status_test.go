package endpoints

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatusEndpoint(t *testing.T) {
	testCases := []struct {
		description  string
		response     string
		expectedCode int
		expectedBody string
	}{
		{description: "Empty response", response: "", expectedCode: http.StatusNoContent, expectedBody: ""},
		{description: "Configured response", response: "ready", expectedCode: http.StatusOK, expectedBody: "ready"},
	}

	for _, test := range testCases {
		handler := NewStatusEndpoint(test.response)
		w := httptest.NewRecorder()

		handler(w, httptest.NewRequest(http.MethodGet, "/status", nil), nil)

		assert.Equal(t, test.expectedCode, w.Code, test.description)
		assert.Equal(t, test.expectedBody, w.Body.String(), test.description)
	}
}

func TestVersionEndpoint(t *testing.T) {
	testCases := []struct {
		description string
		version     string
		revision    string
		expected    string
	}{
		{description: "Empty", version: "", revision: "", expected: `{"version":"not-set","revision":"not-set"}`},
		{description: "Populated", version: "1.4.0", revision: "abc123", expected: `{"version":"1.4.0","revision":"abc123"}`},
	}

	for _, test := range testCases {
		handler := NewVersionEndpoint(test.version, test.revision)
		w := httptest.NewRecorder()

		handler(w, httptest.NewRequest(http.MethodGet, "/version", nil))

		assert.Equal(t, http.StatusOK, w.Code, test.description)
		assert.JSONEq(t, test.expected, w.Body.String(), test.description)
	}
}
