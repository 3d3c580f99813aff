// Package book contains the lending domain model: a book record and the
// two-state lending cycle it moves through.
package book

import "errors"

// ID uniquely identifies a book within a repository.
type ID int

// Book is the central class in the domain model. A book is either available
// or lent to exactly one borrower; Borrower is empty whenever Available is
// true.
type Book struct {
	ID        ID
	Title     string
	Author    string
	Available bool
	Borrower  string
}

// New creates an available book. The ID is assigned by the repository.
func New(title, author string) Book {
	return Book{
		Title:     title,
		Author:    author,
		Available: true,
	}
}

// Borrowed reports whether the book is currently lent out.
func (b *Book) Borrowed() bool {
	return !b.Available
}

// Borrow lends the book to borrower. A book that is already lent out is
// rejected before the borrower is looked at.
func (b *Book) Borrow(borrower string) error {
	if !b.Available {
		return ErrAlreadyBorrowed
	}
	if borrower == "" {
		return ErrBorrowerRequired
	}
	b.Available = false
	b.Borrower = borrower
	return nil
}

// Return takes the book back from its borrower.
func (b *Book) Return() error {
	if b.Available {
		return ErrNotBorrowed
	}
	b.Available = true
	b.Borrower = ""
	return nil
}

// Repository provides access to a book store. Implementations hand out
// copies; the only way to change a stored book is through Update.
type Repository interface {
	// Add stores b under a freshly assigned ID and returns the stored copy.
	Add(b Book) (Book, error)
	Find(id ID) (Book, error)
	// FindAll returns every stored book in insertion order.
	FindAll() []Book
	// Update applies fn to the book with the given ID and commits the
	// result only if fn returns nil.
	Update(id ID, fn func(*Book) error) (Book, error)
	Remove(id ID) error
}

var (
	// ErrUnknown is used when a book could not be found.
	ErrUnknown = errors.New("unknown book")

	// ErrAlreadyBorrowed is returned when lending a book that is lent out.
	ErrAlreadyBorrowed = errors.New("book is already borrowed")

	// ErrNotBorrowed is returned when returning a book that is not lent out.
	ErrNotBorrowed = errors.New("book is not currently borrowed")

	// ErrBorrowerRequired is returned when a borrow names no borrower.
	ErrBorrowerRequired = errors.New("borrower field is required")
)
