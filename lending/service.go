// Package lending provides the use-cases of cataloguing books and lending
// them out. Used by clients facing library staff.
package lending

import (
	"context"
	"errors"

	"github.com/booklending/booksvc/book"
)

// ErrTitleAndAuthorRequired is returned when a new book lacks a title or an
// author.
var ErrTitleAndAuthorRequired = errors.New("title and author are required")

// Service is the interface that provides lending methods.
type Service interface {
	// ListBooks returns every book in the catalogue.
	ListBooks(ctx context.Context) ([]Book, error)

	// GetBook returns a read model of a single book.
	GetBook(ctx context.Context, id book.ID) (Book, error)

	// AddBook registers a new, available book in the catalogue.
	AddBook(ctx context.Context, title, author string) (Book, error)

	// UpdateBook changes the title and/or author of a book.
	UpdateBook(ctx context.Context, id book.ID, c Changes) (Book, error)

	// DeleteBook removes a book from the catalogue for good.
	DeleteBook(ctx context.Context, id book.ID) error

	// BorrowBook lends an available book to borrower.
	BorrowBook(ctx context.Context, id book.ID, borrower string) (Book, error)

	// ReturnBook takes a lent book back.
	ReturnBook(ctx context.Context, id book.ID) (Book, error)
}

// Changes holds the optional fields of an update. A nil field is left
// untouched.
type Changes struct {
	Title  *string
	Author *string
}

// Book is a read model for lending views.
type Book struct {
	ID        book.ID `json:"id"`
	Title     string  `json:"title"`
	Author    string  `json:"author"`
	Available bool    `json:"available"`
	Borrower  *string `json:"borrower"`
}

type service struct {
	books book.Repository
}

// NewService creates a lending service backed by the given repository.
func NewService(br book.Repository) Service {
	return &service{books: br}
}

func (s *service) ListBooks(_ context.Context) ([]Book, error) {
	all := s.books.FindAll()
	result := make([]Book, 0, len(all))
	for _, b := range all {
		result = append(result, assemble(b))
	}
	return result, nil
}

func (s *service) GetBook(_ context.Context, id book.ID) (Book, error) {
	b, err := s.books.Find(id)
	if err != nil {
		return Book{}, err
	}
	return assemble(b), nil
}

// AddBook only checks that title and author are present; whitespace is kept
// as given.
func (s *service) AddBook(_ context.Context, title, author string) (Book, error) {
	if title == "" || author == "" {
		return Book{}, ErrTitleAndAuthorRequired
	}
	b, err := s.books.Add(book.New(title, author))
	if err != nil {
		return Book{}, err
	}
	return assemble(b), nil
}

func (s *service) UpdateBook(_ context.Context, id book.ID, c Changes) (Book, error) {
	// An empty string counts as "not provided", so a field can never be
	// cleared through an update.
	title, author := nonEmpty(c.Title), nonEmpty(c.Author)
	b, err := s.books.Update(id, func(b *book.Book) error {
		if title != nil {
			b.Title = *title
		}
		if author != nil {
			b.Author = *author
		}
		return nil
	})
	if err != nil {
		return Book{}, err
	}
	return assemble(b), nil
}

func (s *service) DeleteBook(_ context.Context, id book.ID) error {
	return s.books.Remove(id)
}

func (s *service) BorrowBook(_ context.Context, id book.ID, borrower string) (Book, error) {
	b, err := s.books.Update(id, func(b *book.Book) error {
		return b.Borrow(borrower)
	})
	if err != nil {
		return Book{}, err
	}
	return assemble(b), nil
}

func (s *service) ReturnBook(_ context.Context, id book.ID) (Book, error) {
	b, err := s.books.Update(id, func(b *book.Book) error {
		return b.Return()
	})
	if err != nil {
		return Book{}, err
	}
	return assemble(b), nil
}

func nonEmpty(s *string) *string {
	if s == nil || *s == "" {
		return nil
	}
	return s
}

func assemble(b book.Book) Book {
	result := Book{
		ID:        b.ID,
		Title:     b.Title,
		Author:    b.Author,
		Available: b.Available,
	}
	if b.Borrowed() {
		borrower := b.Borrower
		result.Borrower = &borrower
	}
	return result
}
