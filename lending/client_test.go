package lending

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/go-kit/kit/ratelimit"
	"github.com/go-kit/log"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/booklending/booksvc/book"
	"github.com/booklending/booksvc/inmem"
)

func TestClientRoundTrip(t *testing.T) {
	var (
		ctx = context.Background()
		srv = newTestServer(t)
	)
	c, err := NewHTTPClient(srv.URL, 100)
	require.NoError(t, err)

	books, err := c.ListBooks(ctx)
	require.NoError(t, err)
	assert.Empty(t, books)

	created, err := c.AddBook(ctx, "Dune", "Frank Herbert")
	require.NoError(t, err)
	assert.Equal(t, Book{ID: 1, Title: "Dune", Author: "Frank Herbert", Available: true}, created)

	got, err := c.GetBook(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created, got)

	borrowed, err := c.BorrowBook(ctx, created.ID, "Alice")
	require.NoError(t, err)
	require.NotNil(t, borrowed.Borrower)
	assert.Equal(t, "Alice", *borrowed.Borrower)

	updated, err := c.UpdateBook(ctx, created.ID, Changes{Title: strptr("Dune Messiah")})
	require.NoError(t, err)
	assert.Equal(t, "Dune Messiah", updated.Title)
	assert.Equal(t, "Frank Herbert", updated.Author)

	returned, err := c.ReturnBook(ctx, created.ID)
	require.NoError(t, err)
	assert.True(t, returned.Available)
	assert.Nil(t, returned.Borrower)

	require.NoError(t, c.DeleteBook(ctx, created.ID))

	books, err = c.ListBooks(ctx)
	require.NoError(t, err)
	assert.Empty(t, books)
}

func TestClientBusinessErrors(t *testing.T) {
	var (
		ctx = context.Background()
		srv = newTestServer(t,
			book.Book{ID: 1, Title: "a", Author: "b", Available: true},
			book.Book{ID: 2, Title: "c", Author: "d", Borrower: "Alice"},
		)
	)
	c, err := NewHTTPClient(srv.URL, 100)
	require.NoError(t, err)

	_, err = c.GetBook(ctx, 9)
	assert.Equal(t, book.ErrUnknown, err)

	_, err = c.AddBook(ctx, "", "x")
	assert.Equal(t, ErrTitleAndAuthorRequired, err)

	_, err = c.BorrowBook(ctx, 2, "Bob")
	assert.Equal(t, book.ErrAlreadyBorrowed, err)

	_, err = c.BorrowBook(ctx, 1, "")
	assert.Equal(t, book.ErrBorrowerRequired, err)

	_, err = c.ReturnBook(ctx, 1)
	assert.Equal(t, book.ErrNotBorrowed, err)

	assert.Equal(t, book.ErrUnknown, c.DeleteBook(ctx, 9))

	_, err = c.UpdateBook(ctx, 9, Changes{})
	assert.Equal(t, book.ErrUnknown, err)
}

func TestClientBusinessErrorsDoNotTripBreaker(t *testing.T) {
	var (
		ctx = context.Background()
		srv = newTestServer(t)
	)
	c, err := NewHTTPClient(srv.URL, 100)
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		_, err = c.GetBook(ctx, 9)
		require.Equal(t, book.ErrUnknown, err)
	}
}

func TestClientCircuitBreaker(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&hits, 1)
		writeError(w, http.StatusInternalServerError, "boom")
	}))
	defer srv.Close()

	c, err := NewHTTPClient(srv.URL, 100)
	require.NoError(t, err)

	for i := 0; i < 6; i++ {
		_, err = c.GetBook(context.Background(), 1)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "boom")
	}
	_, err = c.GetBook(context.Background(), 1)
	assert.Equal(t, gobreaker.ErrOpenState, err)
	assert.Equal(t, int32(6), atomic.LoadInt32(&hits))
}

func TestClientRateLimit(t *testing.T) {
	srv := newTestServer(t)
	c, err := NewHTTPClient(srv.URL, 1)
	require.NoError(t, err)

	_, err = c.ListBooks(context.Background())
	require.NoError(t, err)
	_, err = c.ListBooks(context.Background())
	assert.Equal(t, ratelimit.ErrLimited, err)
}

func TestClientWithoutRateLimit(t *testing.T) {
	srv := newTestServer(t)

	for _, qps := range []int{0, -1} {
		c, err := NewHTTPClient(srv.URL, qps)
		require.NoError(t, err)
		for i := 0; i < 5; i++ {
			_, err = c.ListBooks(context.Background())
			require.NoError(t, err, "qps=%d call %d", qps, i)
		}
	}
}

func TestClientForwardsRequestID(t *testing.T) {
	var (
		seen atomic.Value
		s    = NewService(inmem.NewBookRepository())
		h    = MakeHTTPHandler(MakeServerEndpoints(s), log.NewNopLogger())
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen.Store(r.Header.Get(RequestIDHeader))
		h.ServeHTTP(w, r)
	}))
	defer srv.Close()

	c, err := NewHTTPClient(srv.URL, 100)
	require.NoError(t, err)

	_, err = c.ListBooks(ContextWithRequestID(context.Background(), "req-42"))
	require.NoError(t, err)
	assert.Equal(t, "req-42", seen.Load())
}

func TestMakeClientEndpointsInstance(t *testing.T) {
	for _, instance := range []string{"localhost:5000", "http://localhost:5000/", "https://books.example.com/api"} {
		_, err := MakeClientEndpoints(instance)
		assert.NoError(t, err, instance)
	}
	_, err := MakeClientEndpoints("http://[::1")
	assert.Error(t, err)
}
