package lending

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strconv"

	"github.com/go-kit/kit/endpoint"
	"github.com/go-kit/kit/ratelimit"
	"github.com/go-kit/kit/transport"
	kithttp "github.com/go-kit/kit/transport/http"
	"github.com/go-kit/log"
	"github.com/gorilla/mux"
	jsoniter "github.com/json-iterator/go"
	"github.com/pborman/uuid"
	"github.com/pkg/errors"

	"github.com/booklending/booksvc/book"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

var (
	// ErrMalformedRequest is returned when a request body is not valid JSON
	// for the route it was sent to.
	ErrMalformedRequest = errors.New("malformed JSON body")

	errBadRoute = errors.New("bad route")
)

// RequestIDHeader carries the per-request correlation id.
const RequestIDHeader = "X-Request-Id"

// MakeHTTPHandler mounts all of the service endpoints into an http.Handler.
func MakeHTTPHandler(e Endpoints, logger log.Logger) http.Handler {
	opts := []kithttp.ServerOption{
		kithttp.ServerErrorHandler(transport.NewLogErrorHandler(logger)),
		kithttp.ServerErrorEncoder(encodeError),
		kithttp.ServerBefore(requestIDToContext),
		kithttp.ServerAfter(requestIDToHTTPResponse),
	}

	r := mux.NewRouter()
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "Not Found")
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "Method Not Allowed")
	})

	// GET    /                      service description
	// GET    /books                 list all books
	// GET    /books/:id             retrieve a single book
	// POST   /books                 add a new book
	// PUT    /books/:id             update title and/or author
	// DELETE /books/:id             delete a book
	// POST   /books/:id/borrow      lend a book out
	// POST   /books/:id/return      take a book back

	r.Methods("GET").Path("/").Handler(kithttp.NewServer(
		makeIndexEndpoint(),
		decodeIndexRequest,
		encodeResponse,
		opts...,
	))
	r.Methods("GET").Path("/books").Handler(kithttp.NewServer(
		e.ListBooksEndpoint,
		decodeListBooksRequest,
		encodeResponse,
		opts...,
	))
	r.Methods("POST").Path("/books").Handler(kithttp.NewServer(
		e.AddBookEndpoint,
		decodeAddBookRequest,
		encodeResponse,
		opts...,
	))
	r.Methods("GET").Path("/books/{id:[0-9]+}").Handler(kithttp.NewServer(
		e.GetBookEndpoint,
		decodeGetBookRequest,
		encodeResponse,
		opts...,
	))
	r.Methods("PUT").Path("/books/{id:[0-9]+}").Handler(kithttp.NewServer(
		e.UpdateBookEndpoint,
		decodeUpdateBookRequest,
		encodeResponse,
		opts...,
	))
	r.Methods("DELETE").Path("/books/{id:[0-9]+}").Handler(kithttp.NewServer(
		e.DeleteBookEndpoint,
		decodeDeleteBookRequest,
		encodeResponse,
		opts...,
	))
	r.Methods("POST").Path("/books/{id:[0-9]+}/borrow").Handler(kithttp.NewServer(
		e.BorrowBookEndpoint,
		decodeBorrowBookRequest,
		encodeResponse,
		opts...,
	))
	r.Methods("POST").Path("/books/{id:[0-9]+}/return").Handler(kithttp.NewServer(
		e.ReturnBookEndpoint,
		decodeReturnBookRequest,
		encodeResponse,
		opts...,
	))
	return r
}

type indexRequest struct{}

type indexResponse struct {
	Message   string   `json:"message"`
	Endpoints []string `json:"endpoints"`
}

func makeIndexEndpoint() endpoint.Endpoint {
	return func(context.Context, interface{}) (interface{}, error) {
		return indexResponse{
			Message: "Welcome to the Book Library Borrowing API",
			Endpoints: []string{
				"GET    /books",
				"GET    /books/<id>",
				"POST   /books",
				"PUT    /books/<id>",
				"DELETE /books/<id>",
				"POST   /books/<id>/borrow",
				"POST   /books/<id>/return",
			},
		}, nil
	}
}

func decodeIndexRequest(_ context.Context, _ *http.Request) (interface{}, error) {
	return indexRequest{}, nil
}

func decodeListBooksRequest(_ context.Context, _ *http.Request) (interface{}, error) {
	return listBooksRequest{}, nil
}

func decodeGetBookRequest(_ context.Context, r *http.Request) (interface{}, error) {
	id, err := bookID(r)
	if err != nil {
		return nil, err
	}
	return getBookRequest{ID: id}, nil
}

func decodeAddBookRequest(_ context.Context, r *http.Request) (interface{}, error) {
	var req addBookRequest
	if err := decodeBody(r, &req); err != nil {
		return nil, err
	}
	return req, nil
}

func decodeUpdateBookRequest(_ context.Context, r *http.Request) (interface{}, error) {
	id, err := bookID(r)
	if err != nil {
		return nil, err
	}
	var req updateBookRequest
	if err := decodeBody(r, &req); err != nil {
		if err != ErrMalformedRequest {
			return nil, err
		}
		req = updateBookRequest{bodyErr: err}
	}
	req.ID = id
	return req, nil
}

func decodeDeleteBookRequest(_ context.Context, r *http.Request) (interface{}, error) {
	id, err := bookID(r)
	if err != nil {
		return nil, err
	}
	return deleteBookRequest{ID: id}, nil
}

// decodeBorrowBookRequest keeps a malformed body on the request instead of
// failing, so an unknown or lent-out book is reported first.
func decodeBorrowBookRequest(_ context.Context, r *http.Request) (interface{}, error) {
	id, err := bookID(r)
	if err != nil {
		return nil, err
	}
	var req borrowBookRequest
	if err := decodeBody(r, &req); err != nil {
		if err != ErrMalformedRequest {
			return nil, err
		}
		req = borrowBookRequest{bodyErr: err}
	}
	req.ID = id
	return req, nil
}

func decodeReturnBookRequest(_ context.Context, r *http.Request) (interface{}, error) {
	id, err := bookID(r)
	if err != nil {
		return nil, err
	}
	return returnBookRequest{ID: id}, nil
}

// bookID extracts the {id} path variable. The router only lets digits
// through; an id too large for an int cannot name a stored book.
func bookID(r *http.Request) (book.ID, error) {
	vars := mux.Vars(r)
	s, ok := vars["id"]
	if !ok {
		return 0, errBadRoute
	}
	id, err := strconv.Atoi(s)
	if err != nil {
		return 0, book.ErrUnknown
	}
	return book.ID(id), nil
}

// decodeBody treats an empty body as an empty JSON object.
func decodeBody(r *http.Request, v interface{}) error {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return errors.Wrap(err, "reading request body")
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, v); err != nil {
		return ErrMalformedRequest
	}
	return nil
}

// errorer is implemented by all concrete response types that may contain
// errors. It allows us to change the HTTP response code without needing to
// trigger an endpoint (transport-level) error.
type errorer interface {
	error() error
}

// encodeResponse is the common method to encode all response types to the
// client. Responses may pick a status other than 200 by implementing
// kithttp.StatusCoder.
func encodeResponse(ctx context.Context, w http.ResponseWriter, response interface{}) error {
	if e, ok := response.(errorer); ok && e.error() != nil {
		// Not a Go kit transport error, but a business-logic error.
		// Provide those as HTTP errors.
		encodeError(ctx, e.error(), w)
		return nil
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	code := http.StatusOK
	if sc, ok := response.(kithttp.StatusCoder); ok {
		code = sc.StatusCode()
	}
	w.WriteHeader(code)
	return json.NewEncoder(w).Encode(response)
}

// encode errors from business-logic
func encodeError(ctx context.Context, err error, w http.ResponseWriter) {
	if err == nil {
		panic("encodeError with nil error")
	}
	requestIDToHTTPResponse(ctx, w)
	code, msg := codeFrom(err)
	writeError(w, code, msg)
}

type errorBody struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(errorBody{Error: msg})
}

// wireErrors pins each known error to its status code and the exact message
// clients see. The client side uses the same table in reverse.
var wireErrors = []struct {
	err  error
	code int
	msg  string
}{
	{book.ErrUnknown, http.StatusNotFound, "Book not found"},
	{ErrTitleAndAuthorRequired, http.StatusBadRequest, "title and author are required"},
	{book.ErrAlreadyBorrowed, http.StatusBadRequest, "Book is already borrowed"},
	{book.ErrBorrowerRequired, http.StatusBadRequest, "borrower field is required"},
	{book.ErrNotBorrowed, http.StatusBadRequest, "Book is not currently borrowed"},
	{ErrMalformedRequest, http.StatusBadRequest, "malformed JSON body"},
	{ratelimit.ErrLimited, http.StatusTooManyRequests, "rate limit exceeded"},
}

func codeFrom(err error) (int, string) {
	for _, we := range wireErrors {
		if errors.Is(err, we.err) {
			return we.code, we.msg
		}
	}
	return http.StatusInternalServerError, err.Error()
}

type contextKey int

const requestIDKey contextKey = iota

// RequestIDFromContext returns the correlation id attached by the HTTP
// transport, or the empty string.
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// ContextWithRequestID attaches a correlation id that the HTTP client will
// forward to the server.
func ContextWithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

func requestIDToContext(ctx context.Context, r *http.Request) context.Context {
	id := r.Header.Get(RequestIDHeader)
	if id == "" {
		id = uuid.New()
	}
	return ContextWithRequestID(ctx, id)
}

func requestIDToHTTPResponse(ctx context.Context, w http.ResponseWriter) context.Context {
	if id := RequestIDFromContext(ctx); id != "" {
		w.Header().Set(RequestIDHeader, id)
	}
	return ctx
}
