package evaluation

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestReachabilityCheck(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte("<html></html>"))
	}))
	defer server.Close()

	check := NewReachabilityCheck(server.Client())

	outcome := check.Run(context.Background(), server.URL+"/")
	require.Equal(t, 1.0, outcome.Score)
	require.Equal(t, CheckReachability, outcome.Name)

	outcome = check.Run(context.Background(), server.URL+"/missing")
	require.Equal(t, 0.0, outcome.Score)
	require.Contains(t, outcome.Reason, "404")
}

func TestReachabilityCheckTransportFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := server.URL
	server.Close()

	outcome := NewReachabilityCheck(&http.Client{}).Run(context.Background(), url)
	require.Equal(t, 0.0, outcome.Score)
	require.NotEmpty(t, outcome.Logs)
}

func TestReachabilityCheckReportsStatusAfterRetriesOnServerError(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	outcome := NewReachabilityCheck(NewPagesClient(5*time.Second)).Run(context.Background(), server.URL+"/")
	require.Equal(t, 0.0, outcome.Score)
	require.Equal(t, "Pages not accessible (HTTP 500)", outcome.Reason)
	require.EqualValues(t, 2, hits.Load())
}
