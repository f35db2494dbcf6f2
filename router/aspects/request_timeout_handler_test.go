package aspects

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/julienschmidt/httprouter"
	"github.com/stretchr/testify/assert"

	"github.com/rivalapexmediation/auction-server/config"
)

const (
	reqTimeInQueueHeaderName = "X-Ngx-Request-Time"
	reqTimeoutHeaderName     = "X-Ngx-Request-Timeout"
)

func TestQueuedRequestTimeout(t *testing.T) {
	testCases := []struct {
		description    string
		timeInQueue    string
		timeout        string
		expectedStatus int
		handlerCalled  bool
	}{
		{description: "No headers", expectedStatus: http.StatusOK, handlerCalled: true},
		{description: "Only one header", timeInQueue: "0.5", expectedStatus: http.StatusOK, handlerCalled: true},
		{description: "Within budget", timeInQueue: "0.001", timeout: "0.25", expectedStatus: http.StatusOK, handlerCalled: true},
		{description: "Budget spent", timeInQueue: "0.3", timeout: "0.25", expectedStatus: http.StatusRequestTimeout},
		{description: "Exactly at budget", timeInQueue: "0.25", timeout: "0.25", expectedStatus: http.StatusRequestTimeout},
		{description: "Malformed time", timeInQueue: "soon", timeout: "0.25", expectedStatus: http.StatusBadRequest},
		{description: "Malformed timeout", timeInQueue: "0.1", timeout: "never", expectedStatus: http.StatusBadRequest},
	}

	headers := config.RequestTimeoutHeaders{
		RequestTimeInQueue:    reqTimeInQueueHeaderName,
		RequestTimeoutInQueue: reqTimeoutHeaderName,
	}

	for _, test := range testCases {
		called := false
		handler := QueuedRequestTimeout(func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
			called = true
			w.WriteHeader(http.StatusOK)
		}, headers)

		req := httptest.NewRequest(http.MethodPost, "/v1/auction", nil)
		if test.timeInQueue != "" {
			req.Header.Set(reqTimeInQueueHeaderName, test.timeInQueue)
		}
		if test.timeout != "" {
			req.Header.Set(reqTimeoutHeaderName, test.timeout)
		}
		w := httptest.NewRecorder()

		handler(w, req, nil)

		assert.Equal(t, test.expectedStatus, w.Code, test.description)
		assert.Equal(t, test.handlerCalled, called, test.description)
	}
}
