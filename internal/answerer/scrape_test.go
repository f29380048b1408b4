package answerer

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/giantswarm/qa-environment/internal/schema"
)

const resultsPage = `<html>
<head><title>Results</title><script>var river = "ignored";</script></head>
<body>
  <h1>Search results</h1>
  <p>The Nile is the longest river in Africa.</p>
  <ul><li>Rivers flow into seas.</li><li>The Nile river delta is in Egypt.</li></ul>
  <noscript>river river river</noscript>
</body>
</html>`

func newScrapeServer(t *testing.T) (*httptest.Server, func() string) {
	t.Helper()
	var lastQuery atomic.Value
	lastQuery.Store("")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/search":
			lastQuery.Store(r.URL.Query().Get("q"))
			w.Header().Set("Content-Type", "text/html")
			fmt.Fprint(w, resultsPage)
		case "/missing":
			http.NotFound(w, r)
		default:
			w.WriteHeader(http.StatusOK)
		}
	}))
	t.Cleanup(srv.Close)
	return srv, func() string { return lastQuery.Load().(string) }
}

func TestScrapeAnswer(t *testing.T) {
	srv, lastQuery := newScrapeServer(t)

	s, err := NewScrape(ScrapeConfig{URLTemplate: srv.URL + "/search?q={query}", RequestsPerSecond: 100, MaxResults: 2})
	require.NoError(t, err)

	resp, err := s.Answer(context.Background(), &schema.Query{Question: "Which river is longest in Africa?"})
	require.NoError(t, err)

	assert.Equal(t, "Which river is longest in Africa?", lastQuery())
	require.Len(t, resp.Answers, 2)
	assert.Equal(t, "The Nile is the longest river in Africa.", resp.Answers[0].Text)
	assert.Equal(t, 1.0, resp.Answers[0].Scores["overlap"])
	assert.Equal(t, "The Nile river delta is in Egypt.", resp.Answers[1].Text)

	u, ok := resp.Answers[0].Extension("url")
	require.True(t, ok)
	assert.Contains(t, u, srv.URL+"/search?q=")

	assert.Equal(t, "Results", resp.Observations["page"].Text)
	assert.Equal(t, 4.0, resp.Observations["page"].Scores["blocks"])
}

func TestScrapeNon2xxIsPerQueryError(t *testing.T) {
	srv, _ := newScrapeServer(t)

	s, err := NewScrape(ScrapeConfig{URLTemplate: srv.URL + "/missing?q={query}", RequestsPerSecond: 100})
	require.NoError(t, err)

	_, err = s.Answer(context.Background(), &schema.Query{Question: "q"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 404")
	assert.NotErrorIs(t, err, ErrUnavailable)
}

func closedAddr(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())
	return addr
}

func TestScrapeUnreachableHostIsUnavailable(t *testing.T) {
	addr := closedAddr(t)

	s, err := NewScrape(ScrapeConfig{URLTemplate: "http://" + addr + "/search?q={query}", RequestsPerSecond: 100})
	require.NoError(t, err)

	_, err = s.Answer(context.Background(), &schema.Query{Question: "q"})
	assert.ErrorIs(t, err, ErrUnavailable)

	assert.ErrorIs(t, s.Check(context.Background()), ErrUnavailable)
}

func TestScrapeCheck(t *testing.T) {
	srv, _ := newScrapeServer(t)

	s, err := NewScrape(ScrapeConfig{URLTemplate: srv.URL + "/search?q={query}"})
	require.NoError(t, err)
	assert.NoError(t, s.Check(context.Background()))
}

func TestScrapeRespectsCancelledContext(t *testing.T) {
	srv, _ := newScrapeServer(t)

	s, err := NewScrape(ScrapeConfig{URLTemplate: srv.URL + "/search?q={query}"})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = s.Answer(ctx, &schema.Query{Question: "q"})
	assert.Error(t, err)
}
