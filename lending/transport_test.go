package lending

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-kit/kit/ratelimit"
	"github.com/go-kit/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/booklending/booksvc/book"
	"github.com/booklending/booksvc/inmem"
)

func newTestServer(t *testing.T, seed ...book.Book) *httptest.Server {
	t.Helper()
	s := NewService(inmem.NewBookRepository(seed...))
	srv := httptest.NewServer(MakeHTTPHandler(MakeServerEndpoints(s), log.NewNopLogger()))
	t.Cleanup(srv.Close)
	return srv
}

func do(t *testing.T, srv *httptest.Server, method, path, body string) (int, string) {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, srv.URL+path, r)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(b)
}

func TestHTTPScenarios(t *testing.T) {
	srv := newTestServer(t)

	type step struct {
		method, path, body string
		wantCode           int
		wantBody           string
	}
	for _, st := range []step{
		// Empty registry, first book gets id 1.
		{"POST", "/books", `{"title":"Dune","author":"Frank Herbert"}`, 201,
			`{"id":1,"title":"Dune","author":"Frank Herbert","available":true,"borrower":null}`},
		{"GET", "/books/1", "", 200,
			`{"id":1,"title":"Dune","author":"Frank Herbert","available":true,"borrower":null}`},
		{"POST", "/books", `{"title":"Babel","author":"R. F. Kuang"}`, 201,
			`{"id":2,"title":"Babel","author":"R. F. Kuang","available":true,"borrower":null}`},

		// Borrow, then borrow again.
		{"POST", "/books/1/borrow", `{"borrower":"Alice"}`, 200,
			`{"id":1,"title":"Dune","author":"Frank Herbert","available":false,"borrower":"Alice"}`},
		{"POST", "/books/1/borrow", `{"borrower":"Bob"}`, 400,
			`{"error":"Book is already borrowed"}`},
		{"GET", "/books/1", "", 200,
			`{"id":1,"title":"Dune","author":"Frank Herbert","available":false,"borrower":"Alice"}`},

		// Return, then return again.
		{"POST", "/books/1/return", "", 200,
			`{"id":1,"title":"Dune","author":"Frank Herbert","available":true,"borrower":null}`},
		{"POST", "/books/1/return", "", 400,
			`{"error":"Book is not currently borrowed"}`},

		// Updates ignore empty strings.
		{"PUT", "/books/1", `{"title":""}`, 200,
			`{"id":1,"title":"Dune","author":"Frank Herbert","available":true,"borrower":null}`},
		{"PUT", "/books/1", `{"author":"New Author"}`, 200,
			`{"id":1,"title":"Dune","author":"New Author","available":true,"borrower":null}`},

		// Deleting 1 and adding again yields max+1 = 3.
		{"DELETE", "/books/1", "", 200, `{"message":"Book deleted"}`},
		{"GET", "/books/1", "", 404, `{"error":"Book not found"}`},
		{"POST", "/books", `{"title":"X","author":"Y"}`, 201,
			`{"id":3,"title":"X","author":"Y","available":true,"borrower":null}`},
		{"GET", "/books", "", 200,
			`[{"id":2,"title":"Babel","author":"R. F. Kuang","available":true,"borrower":null},` +
				`{"id":3,"title":"X","author":"Y","available":true,"borrower":null}]`},

		{"GET", "/books/999", "", 404, `{"error":"Book not found"}`},
	} {
		code, body := do(t, srv, st.method, st.path, st.body)
		if !assert.Equal(t, st.wantCode, code, "%s %s", st.method, st.path) {
			continue
		}
		assert.JSONEq(t, st.wantBody, body, "%s %s", st.method, st.path)
	}
}

func TestHTTPErrors(t *testing.T) {
	seed := []book.Book{
		{ID: 1, Title: "Available", Author: "a", Available: true},
		{ID: 2, Title: "Lent", Author: "b", Available: false, Borrower: "Alice"},
	}

	for _, tc := range []struct {
		name               string
		method, path, body string
		wantCode           int
		wantError          string
	}{
		{"add without body", "POST", "/books", "", 400, "title and author are required"},
		{"add without author", "POST", "/books", `{"title":"Dune"}`, 400, "title and author are required"},
		{"add with empty title", "POST", "/books", `{"title":"","author":"x"}`, 400, "title and author are required"},
		{"add with null title", "POST", "/books", `{"title":null,"author":"x"}`, 400, "title and author are required"},
		{"add with bad json", "POST", "/books", `{"title":`, 400, "malformed JSON body"},
		{"update unknown", "PUT", "/books/9", `{"title":"x"}`, 404, "Book not found"},
		{"delete unknown", "DELETE", "/books/9", "", 404, "Book not found"},
		{"borrow unknown", "POST", "/books/9/borrow", `{"borrower":"Bob"}`, 404, "Book not found"},
		{"borrow lent book without borrower", "POST", "/books/2/borrow", "", 400, "Book is already borrowed"},
		{"update unknown with bad json", "PUT", "/books/9", `{"title":`, 404, "Book not found"},
		{"update with bad json", "PUT", "/books/1", `{"title":`, 400, "malformed JSON body"},
		{"borrow unknown with bad json", "POST", "/books/9/borrow", `{"borrower":`, 404, "Book not found"},
		{"borrow lent book with bad json", "POST", "/books/2/borrow", `{"borrower":`, 400, "Book is already borrowed"},
		{"borrow with bad json", "POST", "/books/1/borrow", `{"borrower":`, 400, "malformed JSON body"},
		{"borrow without borrower", "POST", "/books/1/borrow", "", 400, "borrower field is required"},
		{"borrow with empty borrower", "POST", "/books/1/borrow", `{"borrower":""}`, 400, "borrower field is required"},
		{"return unknown", "POST", "/books/9/return", "", 404, "Book not found"},
		{"return available", "POST", "/books/1/return", "", 400, "Book is not currently borrowed"},
		{"non-integer id", "GET", "/books/abc", "", 404, "Not Found"},
		{"negative id", "GET", "/books/-1", "", 404, "Not Found"},
		{"id overflowing int", "GET", "/books/99999999999999999999999", "", 404, "Book not found"},
		{"unknown path", "GET", "/authors", "", 404, "Not Found"},
		{"wrong method", "PATCH", "/books/1", "", 405, "Method Not Allowed"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			srv := newTestServer(t, seed...)

			code, body := do(t, srv, tc.method, tc.path, tc.body)

			assert.Equal(t, tc.wantCode, code)
			assert.JSONEq(t, `{"error":`+quote(tc.wantError)+`}`, body)

			_, list := do(t, srv, "GET", "/books", "")
			assert.JSONEq(t, `[`+
				`{"id":1,"title":"Available","author":"a","available":true,"borrower":null},`+
				`{"id":2,"title":"Lent","author":"b","available":false,"borrower":"Alice"}]`, list,
				"failed requests leave the registry unchanged")
		})
	}
}

func quote(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

func TestHTTPIndex(t *testing.T) {
	srv := newTestServer(t)

	code, body := do(t, srv, "GET", "/", "")

	assert.Equal(t, http.StatusOK, code)
	var resp indexResponse
	require.NoError(t, json.Unmarshal([]byte(body), &resp))
	assert.Equal(t, "Welcome to the Book Library Borrowing API", resp.Message)
	assert.Len(t, resp.Endpoints, 7)
	assert.Contains(t, resp.Endpoints, "POST   /books/<id>/borrow")
}

func TestHTTPEmptyList(t *testing.T) {
	srv := newTestServer(t)

	code, body := do(t, srv, "GET", "/books", "")

	assert.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `[]`, body)
}

func TestHTTPRequestID(t *testing.T) {
	srv := newTestServer(t)

	req, err := http.NewRequest("GET", srv.URL+"/books/1", nil)
	require.NoError(t, err)
	req.Header.Set(RequestIDHeader, "abc-123")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "abc-123", resp.Header.Get(RequestIDHeader))

	resp, err = http.Get(srv.URL + "/books")
	require.NoError(t, err)
	resp.Body.Close()
	assert.NotEmpty(t, resp.Header.Get(RequestIDHeader))
	assert.Equal(t, "application/json; charset=utf-8", resp.Header.Get("Content-Type"))
}

func TestHTTPRateLimit(t *testing.T) {
	s := NewService(inmem.NewBookRepository())
	e := MakeServerEndpoints(s).Wrap(ratelimit.NewErroringLimiter(rate.NewLimiter(rate.Every(time.Hour), 1)))
	srv := httptest.NewServer(MakeHTTPHandler(e, log.NewNopLogger()))
	defer srv.Close()

	code, _ := do(t, srv, "GET", "/books", "")
	assert.Equal(t, http.StatusOK, code)

	code, body := do(t, srv, "GET", "/books", "")
	assert.Equal(t, http.StatusTooManyRequests, code)
	assert.JSONEq(t, `{"error":"rate limit exceeded"}`, body)
}
