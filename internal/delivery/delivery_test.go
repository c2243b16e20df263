package delivery

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEndpoint_URL(t *testing.T) {
	tests := []struct {
		name string
		ep   Endpoint
		want string
	}{
		{"with port", Endpoint{Host: "collector", Port: 8080, Route: PushRoute("w-1")}, "http://collector:8080/api/workers/w-1/push"},
		{"no port", Endpoint{Host: "collector", Route: "/x"}, "http://collector/x"},
		{"tls", Endpoint{Host: "collector", Port: 443, Route: "/x", TLS: true}, "https://collector:443/x"},
		{"trims and slashes", Endpoint{Host: "  collector ", Route: " api/x "}, "http://collector/api/x"},
		{"ipv6 with port", Endpoint{Host: "::1", Port: 8080, Route: "/x"}, "http://[::1]:8080/x"},
		{"bracketed ipv6 with port", Endpoint{Host: "[fd00::2]", Port: 443, Route: "/x", TLS: true}, "https://[fd00::2]:443/x"},
		{"ipv6 no port", Endpoint{Host: "::1", Route: "/x"}, "http://[::1]/x"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.ep.URL())
			assert.Equal(t, tt.want, tt.ep.String())
		})
	}
}

func TestPushRoute_Escapes(t *testing.T) {
	assert.Equal(t, "/api/workers/a%2Fb/push", PushRoute("a/b"))
}

func TestClient_Deliver(t *testing.T) {
	var gotBody, gotType, gotCycle, gotMethod string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		gotMethod = r.Method
		gotType = r.Header.Get("Content-Type")
		gotCycle = r.Header.Get("X-Cycle-Id")
		_, _ = w.Write([]byte("stored"))
	}))
	defer srv.Close()

	c := NewClient("dmon-worker/test")
	h := http.Header{}
	h.Set("X-Cycle-Id", "abc")
	resp, err := c.Deliver(context.Background(), srv.URL+"/push", []byte(`{"payload":"00","iv":"AA=="}`), h)
	require.NoError(t, err)

	assert.Equal(t, "stored", resp)
	assert.Equal(t, http.MethodPost, gotMethod)
	assert.Equal(t, "application/json", gotType)
	assert.Equal(t, "abc", gotCycle)
	assert.Equal(t, `{"payload":"00","iv":"AA=="}`, gotBody)
}

func TestClient_DeliverNonSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte("unknown worker"))
	}))
	defer srv.Close()

	_, err := NewClient("").Deliver(context.Background(), srv.URL, nil, nil)
	var de *DeliveryError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, http.StatusForbidden, de.StatusCode)
	assert.Equal(t, "unknown worker", de.Body)
	assert.Contains(t, err.Error(), "status 403")
}

func TestClient_DeliverTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := srv.URL
	srv.Close()

	_, err := NewClient("").Deliver(context.Background(), url, nil, nil)
	var de *DeliveryError
	require.ErrorAs(t, err, &de)
	assert.Zero(t, de.StatusCode)
	assert.Equal(t, url, de.URL)
}
