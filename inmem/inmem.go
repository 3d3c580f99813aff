// Package inmem provides an in-memory implementation of the book repository.
package inmem

import (
	"sync"

	"github.com/booklending/booksvc/book"
)

// bookRepository keeps books in insertion order behind a single lock. Every
// method is a complete read-modify-write unit, so concurrent callers can
// neither observe a half-applied borrow nor be handed the same new ID.
type bookRepository struct {
	mtx   sync.Mutex
	books []book.Book
}

func (r *bookRepository) Add(b book.Book) (book.Book, error) {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	b.ID = r.nextID()
	r.books = append(r.books, b)
	return b, nil
}

// nextID is one past the largest ID currently stored. IDs freed at the top
// end by a deletion are handed out again; gaps further down are not.
func (r *bookRepository) nextID() book.ID {
	var top book.ID
	for _, b := range r.books {
		if b.ID > top {
			top = b.ID
		}
	}
	return top + 1
}

func (r *bookRepository) Find(id book.ID) (book.Book, error) {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	i := r.index(id)
	if i < 0 {
		return book.Book{}, book.ErrUnknown
	}
	return r.books[i], nil
}

func (r *bookRepository) FindAll() []book.Book {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	b := make([]book.Book, len(r.books))
	copy(b, r.books)
	return b
}

func (r *bookRepository) Update(id book.ID, fn func(*book.Book) error) (book.Book, error) {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	i := r.index(id)
	if i < 0 {
		return book.Book{}, book.ErrUnknown
	}
	b := r.books[i]
	if err := fn(&b); err != nil {
		return r.books[i], err
	}
	b.ID = id
	r.books[i] = b
	return b, nil
}

func (r *bookRepository) Remove(id book.ID) error {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	i := r.index(id)
	if i < 0 {
		return book.ErrUnknown
	}
	r.books = append(r.books[:i], r.books[i+1:]...)
	return nil
}

func (r *bookRepository) index(id book.ID) int {
	for i, b := range r.books {
		if b.ID == id {
			return i
		}
	}
	return -1
}

// NewBookRepository returns a new instance of an in-memory book repository
// holding the given books. Seed books keep their IDs; a seed repeating an
// earlier ID is dropped. A seed with a borrower is lent out and one without
// is available, whatever its Available field says.
func NewBookRepository(seed ...book.Book) book.Repository {
	r := &bookRepository{books: make([]book.Book, 0, len(seed))}
	for _, b := range seed {
		if r.index(b.ID) >= 0 {
			continue
		}
		b.Available = b.Borrower == ""
		r.books = append(r.books, b)
	}
	return r
}
