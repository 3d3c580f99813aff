package lending

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-kit/kit/circuitbreaker"
	"github.com/go-kit/kit/endpoint"
	"github.com/go-kit/kit/ratelimit"
	kithttp "github.com/go-kit/kit/transport/http"
	"github.com/pkg/errors"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/booklending/booksvc/book"
)

// MakeClientEndpoints returns an Endpoints struct where each endpoint invokes
// the corresponding method on the remote instance, via a transport/http.Client.
// Useful in a lending service client.
func MakeClientEndpoints(instance string) (Endpoints, error) {
	if !strings.HasPrefix(instance, "http") {
		instance = "http://" + instance
	}
	tgt, err := url.Parse(instance)
	if err != nil {
		return Endpoints{}, errors.Wrapf(err, "parsing instance %q", instance)
	}
	tgt.Path = strings.TrimSuffix(tgt.Path, "/")

	options := []kithttp.ClientOption{
		kithttp.ClientBefore(requestIDToHTTPRequest),
	}

	return Endpoints{
		ListBooksEndpoint:  kithttp.NewClient("GET", tgt, encodeListBooksRequest, decodeListBooksResponse, options...).Endpoint(),
		GetBookEndpoint:    kithttp.NewClient("GET", tgt, encodeGetBookRequest, decodeBookResponse, options...).Endpoint(),
		AddBookEndpoint:    kithttp.NewClient("POST", tgt, encodeAddBookRequest, decodeAddBookResponse, options...).Endpoint(),
		UpdateBookEndpoint: kithttp.NewClient("PUT", tgt, encodeUpdateBookRequest, decodeBookResponse, options...).Endpoint(),
		DeleteBookEndpoint: kithttp.NewClient("DELETE", tgt, encodeDeleteBookRequest, decodeDeleteBookResponse, options...).Endpoint(),
		BorrowBookEndpoint: kithttp.NewClient("POST", tgt, encodeBorrowBookRequest, decodeBookResponse, options...).Endpoint(),
		ReturnBookEndpoint: kithttp.NewClient("POST", tgt, encodeReturnBookRequest, decodeBookResponse, options...).Endpoint(),
	}, nil
}

// NewHTTPClient returns a Service backed by an HTTP server living at the
// remote instance. Each endpoint is guarded by its own circuit breaker and
// shares a client-side rate limit of qps requests per second. A qps of zero
// or less disables the limit.
func NewHTTPClient(instance string, qps int) (Service, error) {
	e, err := MakeClientEndpoints(instance)
	if err != nil {
		return nil, err
	}
	limit := rate.Limit(qps)
	if qps <= 0 {
		limit = rate.Inf
	}
	limiter := ratelimit.NewErroringLimiter(rate.NewLimiter(limit, qps))
	return Endpoints{
		ListBooksEndpoint:  guard("ListBooks", limiter, e.ListBooksEndpoint),
		GetBookEndpoint:    guard("GetBook", limiter, e.GetBookEndpoint),
		AddBookEndpoint:    guard("AddBook", limiter, e.AddBookEndpoint),
		UpdateBookEndpoint: guard("UpdateBook", limiter, e.UpdateBookEndpoint),
		DeleteBookEndpoint: guard("DeleteBook", limiter, e.DeleteBookEndpoint),
		BorrowBookEndpoint: guard("BorrowBook", limiter, e.BorrowBookEndpoint),
		ReturnBookEndpoint: guard("ReturnBook", limiter, e.ReturnBookEndpoint),
	}, nil
}

func guard(name string, limiter endpoint.Middleware, e endpoint.Endpoint) endpoint.Endpoint {
	e = circuitbreaker.Gobreaker(gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    name,
		Timeout: 30 * time.Second,
	}))(e)
	return limiter(e)
}

func encodeListBooksRequest(_ context.Context, req *http.Request, _ interface{}) error {
	req.URL.Path += "/books"
	return nil
}

func encodeGetBookRequest(_ context.Context, req *http.Request, request interface{}) error {
	r := request.(getBookRequest)
	req.URL.Path += bookPath(r.ID)
	return nil
}

func encodeAddBookRequest(_ context.Context, req *http.Request, request interface{}) error {
	req.URL.Path += "/books"
	return encodeRequestBody(req, request.(addBookRequest))
}

func encodeUpdateBookRequest(_ context.Context, req *http.Request, request interface{}) error {
	r := request.(updateBookRequest)
	req.URL.Path += bookPath(r.ID)
	return encodeRequestBody(req, r)
}

func encodeDeleteBookRequest(_ context.Context, req *http.Request, request interface{}) error {
	r := request.(deleteBookRequest)
	req.URL.Path += bookPath(r.ID)
	return nil
}

func encodeBorrowBookRequest(_ context.Context, req *http.Request, request interface{}) error {
	r := request.(borrowBookRequest)
	req.URL.Path += bookPath(r.ID) + "/borrow"
	return encodeRequestBody(req, r)
}

func encodeReturnBookRequest(_ context.Context, req *http.Request, request interface{}) error {
	r := request.(returnBookRequest)
	req.URL.Path += bookPath(r.ID) + "/return"
	return nil
}

func bookPath(id book.ID) string {
	return "/books/" + strconv.Itoa(int(id))
}

func encodeRequestBody(req *http.Request, v interface{}) error {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(v); err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	req.ContentLength = int64(buf.Len())
	req.Body = io.NopCloser(&buf)
	return nil
}

func decodeListBooksResponse(_ context.Context, resp *http.Response) (interface{}, error) {
	if resp.StatusCode != http.StatusOK {
		return nil, errorFromResponse(resp)
	}
	var response listBooksResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, errors.Wrap(err, "decoding book list")
	}
	return response, nil
}

func decodeBookResponse(_ context.Context, resp *http.Response) (interface{}, error) {
	if resp.StatusCode != http.StatusOK {
		err := errorFromResponse(resp)
		if isTransportError(err) {
			return nil, err
		}
		return bookResponse{Err: err}, nil
	}
	var response bookResponse
	if err := json.NewDecoder(resp.Body).Decode(&response.Book); err != nil {
		return nil, errors.Wrap(err, "decoding book")
	}
	return response, nil
}

func decodeAddBookResponse(_ context.Context, resp *http.Response) (interface{}, error) {
	if resp.StatusCode != http.StatusCreated {
		err := errorFromResponse(resp)
		if isTransportError(err) {
			return nil, err
		}
		return addBookResponse{Err: err}, nil
	}
	var response addBookResponse
	if err := json.NewDecoder(resp.Body).Decode(&response.Book); err != nil {
		return nil, errors.Wrap(err, "decoding book")
	}
	return response, nil
}

func decodeDeleteBookResponse(_ context.Context, resp *http.Response) (interface{}, error) {
	if resp.StatusCode != http.StatusOK {
		err := errorFromResponse(resp)
		if isTransportError(err) {
			return nil, err
		}
		return deleteBookResponse{Err: err}, nil
	}
	var response deleteBookResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, errors.Wrap(err, "decoding delete confirmation")
	}
	return response, nil
}

// errorFromResponse turns an error body back into the error the server
// raised, so callers can compare against the package's sentinel errors.
func errorFromResponse(resp *http.Response) error {
	var body errorBody
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil || body.Error == "" {
		return errors.Errorf("unexpected status %d", resp.StatusCode)
	}
	for _, we := range wireErrors {
		if we.code == resp.StatusCode && we.msg == body.Error {
			return we.err
		}
	}
	return errors.Errorf("%s (status %d)", body.Error, resp.StatusCode)
}

// isTransportError reports whether err should count against the circuit
// breaker. Business errors stay in the response; everything else is a
// failure of the call itself.
func isTransportError(err error) bool {
	switch err {
	case book.ErrUnknown, book.ErrAlreadyBorrowed, book.ErrNotBorrowed,
		book.ErrBorrowerRequired, ErrTitleAndAuthorRequired:
		return false
	}
	return true
}

func requestIDToHTTPRequest(ctx context.Context, r *http.Request) context.Context {
	if id := RequestIDFromContext(ctx); id != "" {
		r.Header.Set(RequestIDHeader, id)
	}
	return ctx
}
