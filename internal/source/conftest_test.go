package source

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

// serve starts a server returning body with status for every request and records the user agent.
func serve(t *testing.T, status int, contentType, body string) (*httptest.Server, *string) {
	t.Helper()
	var ua string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ua = r.Header.Get("User-Agent")
		w.Header().Set("Content-Type", contentType)
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv, &ua
}

func testFetcher() *Fetcher {
	return NewFetcher(nil, "", 2*time.Second)
}
