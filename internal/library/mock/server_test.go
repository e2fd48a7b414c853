package mock

import (
	"bufio"
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

func newTestServer(t *testing.T, opts ...Option) (*Server, *httptest.Server) {
	t.Helper()
	s := NewServer(opts...)
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return s, ts
}

func call(t *testing.T, ts *httptest.Server, method, path, body string) (int, []byte) {
	t.Helper()
	req, err := http.NewRequest(method, ts.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := ts.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var buf bytes.Buffer
	_, err = buf.ReadFrom(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, buf.Bytes()
}

func TestServer_AuthorsAndBooks(t *testing.T) {
	s, ts := newTestServer(t)

	status, body := call(t, ts, http.MethodPost, "/v1/library/author", `{"name":"SeedAuthor0"}`)
	require.Equal(t, http.StatusOK, status)
	authorID := gjson.GetBytes(body, "id").String()
	require.NotEmpty(t, authorID)

	status, body = call(t, ts, http.MethodGet, "/v1/library/author/"+authorID, "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "SeedAuthor0", gjson.GetBytes(body, "name").String())

	status, body = call(t, ts, http.MethodPost, "/v1/library/book", `{"name":"SeedBook0","author_id":["`+authorID+`"]}`)
	require.Equal(t, http.StatusOK, status)
	bookID := gjson.GetBytes(body, "book.id").String()
	require.NotEmpty(t, bookID)
	assert.Equal(t, authorID, gjson.GetBytes(body, "book.authorId.0").String())

	status, body = call(t, ts, http.MethodGet, "/v1/library/book/"+bookID, "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "SeedBook0", gjson.GetBytes(body, "book.name").String())

	second := gjson.GetBytes(mustCall(t, ts, http.MethodPost, "/v1/library/author", `{"name":"Other"}`), "id").String()
	status, _ = call(t, ts, http.MethodPut, "/v1/library/book", `{"id":"`+bookID+`","name":"Renamed","author_id":["`+second+`"]}`)
	require.Equal(t, http.StatusOK, status)

	status, body = call(t, ts, http.MethodGet, "/v1/library/book/"+bookID, "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "Renamed", gjson.GetBytes(body, "book.name").String())

	assert.Empty(t, streamed(t, ts, authorID), "book moved to the second author")
	assert.Equal(t, []string{bookID}, streamed(t, ts, second))

	status, _ = call(t, ts, http.MethodPut, "/v1/library/author", `{"id":"`+authorID+`","name":"Renamed Author"}`)
	assert.Equal(t, http.StatusOK, status)

	assert.Equal(t, 2, s.Authors())
	assert.Equal(t, 1, s.Books())

	hits := s.Hits()
	assert.Equal(t, int64(2), hits[RouteRegisterAuthor])
	assert.Equal(t, int64(2), hits[RouteGetBookInfo])
	assert.Equal(t, int64(1), hits[RouteUpdateBook])
	assert.Equal(t, int64(2), hits[RouteGetAuthorBooks])
}

func mustCall(t *testing.T, ts *httptest.Server, method, path, body string) []byte {
	t.Helper()
	status, resp := call(t, ts, method, path, body)
	require.Equal(t, http.StatusOK, status, string(resp))
	return resp
}

func streamed(t *testing.T, ts *httptest.Server, authorID string) []string {
	t.Helper()
	status, body := call(t, ts, http.MethodGet, "/v1/library/author_books/"+authorID, "")
	require.Equal(t, http.StatusOK, status)

	var ids []string
	scanner := bufio.NewScanner(bytes.NewReader(body))
	for scanner.Scan() {
		var line struct {
			Result Book `json:"result"`
		}
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &line))
		ids = append(ids, line.Result.ID)
	}
	return ids
}

func TestServer_Errors(t *testing.T) {
	_, ts := newTestServer(t)
	missing := uuid.NewString()

	tests := []struct {
		name     string
		method   string
		path     string
		body     string
		wantCode int
	}{
		{"empty author name", http.MethodPost, "/v1/library/author", `{"name":""}`, http.StatusBadRequest},
		{"malformed body", http.MethodPost, "/v1/library/author", `{"name":`, http.StatusBadRequest},
		{"author id not a uuid", http.MethodGet, "/v1/library/author/42", "", http.StatusBadRequest},
		{"unknown author", http.MethodGet, "/v1/library/author/" + missing, "", http.StatusNotFound},
		{"book for unknown author", http.MethodPost, "/v1/library/book", `{"name":"B","author_id":["` + missing + `"]}`, http.StatusNotFound},
		{"update unknown book", http.MethodPut, "/v1/library/book", `{"id":"` + missing + `","name":"B","author_id":[]}`, http.StatusNotFound},
		{"unknown book", http.MethodGet, "/v1/library/book/" + missing, "", http.StatusNotFound},
		{"books of unknown author", http.MethodGet, "/v1/library/author_books/" + missing, "", http.StatusNotFound},
		{"wrong method", http.MethodDelete, "/v1/library/book", "", http.StatusMethodNotAllowed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := call(t, ts, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.wantCode, status)
			if status != http.StatusMethodNotAllowed {
				assert.NotEmpty(t, gjson.GetBytes(body, "message").String())
			}
		})
	}
}

func TestServer_Latency(t *testing.T) {
	_, ts := newTestServer(t, WithLatency(30*time.Millisecond))

	start := time.Now()
	status, _ := call(t, ts, http.MethodPost, "/v1/library/author", `{"name":"Slow"}`)
	assert.Equal(t, http.StatusOK, status)
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
}

func TestServer_FailureRate(t *testing.T) {
	s, ts := newTestServer(t, WithFailureRate(1))

	status, body := call(t, ts, http.MethodPost, "/v1/library/author", `{"name":"Doomed"}`)
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Equal(t, int64(13), gjson.GetBytes(body, "code").Int())
	assert.Zero(t, s.Authors())
	assert.Equal(t, int64(1), s.Hits()[RouteRegisterAuthor])
}

func TestServer_ConcurrentWrites(t *testing.T) {
	s, ts := newTestServer(t)
	authorID := gjson.GetBytes(mustCall(t, ts, http.MethodPost, "/v1/library/author", `{"name":"A"}`), "id").String()

	const n = 50
	done := make(chan int, n)
	for i := 0; i < n; i++ {
		go func() {
			req, _ := http.NewRequest(http.MethodPost, ts.URL+"/v1/library/book",
				strings.NewReader(`{"name":"B","author_id":["`+authorID+`"]}`))
			resp, err := ts.Client().Do(req)
			if err != nil {
				done <- 0
				return
			}
			resp.Body.Close()
			done <- resp.StatusCode
		}()
	}
	for i := 0; i < n; i++ {
		assert.Equal(t, http.StatusOK, <-done)
	}

	assert.Equal(t, n, s.Books())
	assert.Len(t, streamed(t, ts, authorID), n)
}
