package lending

import (
	"context"
	"net/http"

	"github.com/go-kit/kit/endpoint"

	"github.com/booklending/booksvc/book"
)

// Endpoints collects all of the endpoints that compose a lending service. It's
// meant to be used as a helper struct, to collect all of the endpoints into a
// single parameter.
//
// On the server side it is built by MakeServerEndpoints; on the client side
// by MakeClientEndpoints, after which it can be used as a Service.
type Endpoints struct {
	ListBooksEndpoint  endpoint.Endpoint
	GetBookEndpoint    endpoint.Endpoint
	AddBookEndpoint    endpoint.Endpoint
	UpdateBookEndpoint endpoint.Endpoint
	DeleteBookEndpoint endpoint.Endpoint
	BorrowBookEndpoint endpoint.Endpoint
	ReturnBookEndpoint endpoint.Endpoint
}

// MakeServerEndpoints returns an Endpoints struct where each endpoint invokes
// the corresponding method on the provided service.
func MakeServerEndpoints(s Service) Endpoints {
	return Endpoints{
		ListBooksEndpoint:  makeListBooksEndpoint(s),
		GetBookEndpoint:    makeGetBookEndpoint(s),
		AddBookEndpoint:    makeAddBookEndpoint(s),
		UpdateBookEndpoint: makeUpdateBookEndpoint(s),
		DeleteBookEndpoint: makeDeleteBookEndpoint(s),
		BorrowBookEndpoint: makeBorrowBookEndpoint(s),
		ReturnBookEndpoint: makeReturnBookEndpoint(s),
	}
}

// Wrap applies mw to every endpoint.
func (e Endpoints) Wrap(mw endpoint.Middleware) Endpoints {
	return Endpoints{
		ListBooksEndpoint:  mw(e.ListBooksEndpoint),
		GetBookEndpoint:    mw(e.GetBookEndpoint),
		AddBookEndpoint:    mw(e.AddBookEndpoint),
		UpdateBookEndpoint: mw(e.UpdateBookEndpoint),
		DeleteBookEndpoint: mw(e.DeleteBookEndpoint),
		BorrowBookEndpoint: mw(e.BorrowBookEndpoint),
		ReturnBookEndpoint: mw(e.ReturnBookEndpoint),
	}
}

// ListBooks implements Service. Primarily useful in a client.
func (e Endpoints) ListBooks(ctx context.Context) ([]Book, error) {
	response, err := e.ListBooksEndpoint(ctx, listBooksRequest{})
	if err != nil {
		return nil, err
	}
	return response.(listBooksResponse), nil
}

// GetBook implements Service. Primarily useful in a client.
func (e Endpoints) GetBook(ctx context.Context, id book.ID) (Book, error) {
	response, err := e.GetBookEndpoint(ctx, getBookRequest{ID: id})
	if err != nil {
		return Book{}, err
	}
	resp := response.(bookResponse)
	return resp.Book, resp.Err
}

// AddBook implements Service. Primarily useful in a client.
func (e Endpoints) AddBook(ctx context.Context, title, author string) (Book, error) {
	response, err := e.AddBookEndpoint(ctx, addBookRequest{Title: &title, Author: &author})
	if err != nil {
		return Book{}, err
	}
	resp := response.(addBookResponse)
	return resp.Book, resp.Err
}

// UpdateBook implements Service. Primarily useful in a client.
func (e Endpoints) UpdateBook(ctx context.Context, id book.ID, c Changes) (Book, error) {
	response, err := e.UpdateBookEndpoint(ctx, updateBookRequest{ID: id, Title: c.Title, Author: c.Author})
	if err != nil {
		return Book{}, err
	}
	resp := response.(bookResponse)
	return resp.Book, resp.Err
}

// DeleteBook implements Service. Primarily useful in a client.
func (e Endpoints) DeleteBook(ctx context.Context, id book.ID) error {
	response, err := e.DeleteBookEndpoint(ctx, deleteBookRequest{ID: id})
	if err != nil {
		return err
	}
	return response.(deleteBookResponse).Err
}

// BorrowBook implements Service. Primarily useful in a client.
func (e Endpoints) BorrowBook(ctx context.Context, id book.ID, borrower string) (Book, error) {
	response, err := e.BorrowBookEndpoint(ctx, borrowBookRequest{ID: id, Borrower: borrower})
	if err != nil {
		return Book{}, err
	}
	resp := response.(bookResponse)
	return resp.Book, resp.Err
}

// ReturnBook implements Service. Primarily useful in a client.
func (e Endpoints) ReturnBook(ctx context.Context, id book.ID) (Book, error) {
	response, err := e.ReturnBookEndpoint(ctx, returnBookRequest{ID: id})
	if err != nil {
		return Book{}, err
	}
	resp := response.(bookResponse)
	return resp.Book, resp.Err
}

// Regarding errors returned from service methods: they travel inside the
// response object, not as endpoint errors. Endpoint errors are treated as
// transport failures (they count against circuit breakers and rate limits),
// and a missing book is not one of those. The errorer interface in
// transport.go picks them back out when encoding the HTTP response.

type listBooksRequest struct{}

type listBooksResponse []Book

func makeListBooksEndpoint(s Service) endpoint.Endpoint {
	return func(ctx context.Context, request interface{}) (interface{}, error) {
		_ = request.(listBooksRequest)
		books, err := s.ListBooks(ctx)
		if err != nil {
			return nil, err
		}
		return listBooksResponse(books), nil
	}
}

type getBookRequest struct {
	ID book.ID
}

type bookResponse struct {
	Book
	Err error `json:"-"`
}

func (r bookResponse) error() error { return r.Err }

func makeGetBookEndpoint(s Service) endpoint.Endpoint {
	return func(ctx context.Context, request interface{}) (interface{}, error) {
		req := request.(getBookRequest)
		b, err := s.GetBook(ctx, req.ID)
		return bookResponse{Book: b, Err: err}, nil
	}
}

type addBookRequest struct {
	Title  *string `json:"title,omitempty"`
	Author *string `json:"author,omitempty"`
}

type addBookResponse struct {
	Book
	Err error `json:"-"`
}

func (r addBookResponse) error() error { return r.Err }

func (r addBookResponse) StatusCode() int { return http.StatusCreated }

func makeAddBookEndpoint(s Service) endpoint.Endpoint {
	return func(ctx context.Context, request interface{}) (interface{}, error) {
		req := request.(addBookRequest)
		b, err := s.AddBook(ctx, deref(req.Title), deref(req.Author))
		return addBookResponse{Book: b, Err: err}, nil
	}
}

type updateBookRequest struct {
	ID     book.ID `json:"-"`
	Title  *string `json:"title,omitempty"`
	Author *string `json:"author,omitempty"`

	bodyErr error
}

func makeUpdateBookEndpoint(s Service) endpoint.Endpoint {
	return func(ctx context.Context, request interface{}) (interface{}, error) {
		req := request.(updateBookRequest)
		if req.bodyErr != nil {
			// An unknown book outranks a bad body.
			if _, err := s.GetBook(ctx, req.ID); err != nil {
				return bookResponse{Err: err}, nil
			}
			return bookResponse{Err: req.bodyErr}, nil
		}
		b, err := s.UpdateBook(ctx, req.ID, Changes{Title: req.Title, Author: req.Author})
		return bookResponse{Book: b, Err: err}, nil
	}
}

type deleteBookRequest struct {
	ID book.ID
}

type deleteBookResponse struct {
	Message string `json:"message,omitempty"`
	Err     error  `json:"-"`
}

func (r deleteBookResponse) error() error { return r.Err }

func makeDeleteBookEndpoint(s Service) endpoint.Endpoint {
	return func(ctx context.Context, request interface{}) (interface{}, error) {
		req := request.(deleteBookRequest)
		if err := s.DeleteBook(ctx, req.ID); err != nil {
			return deleteBookResponse{Err: err}, nil
		}
		return deleteBookResponse{Message: "Book deleted"}, nil
	}
}

type borrowBookRequest struct {
	ID       book.ID `json:"-"`
	Borrower string  `json:"borrower,omitempty"`

	bodyErr error
}

func makeBorrowBookEndpoint(s Service) endpoint.Endpoint {
	return func(ctx context.Context, request interface{}) (interface{}, error) {
		req := request.(borrowBookRequest)
		if req.bodyErr != nil {
			// Same order as BorrowBook: unknown, then lent out, then the body.
			b, err := s.GetBook(ctx, req.ID)
			if err == nil {
				err = req.bodyErr
				if !b.Available {
					err = book.ErrAlreadyBorrowed
				}
			}
			return bookResponse{Err: err}, nil
		}
		b, err := s.BorrowBook(ctx, req.ID, req.Borrower)
		return bookResponse{Book: b, Err: err}, nil
	}
}

type returnBookRequest struct {
	ID book.ID
}

func makeReturnBookEndpoint(s Service) endpoint.Endpoint {
	return func(ctx context.Context, request interface{}) (interface{}, error) {
		req := request.(returnBookRequest)
		b, err := s.ReturnBook(ctx, req.ID)
		return bookResponse{Book: b, Err: err}, nil
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
