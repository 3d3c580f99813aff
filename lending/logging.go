package lending

import (
	"context"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"github.com/booklending/booksvc/book"
)

type loggingService struct {
	logger log.Logger
	Service
}

// NewLoggingService returns a new instance of a logging Service.
func NewLoggingService(logger log.Logger, s Service) Service {
	return &loggingService{logger, s}
}

func (s *loggingService) log(ctx context.Context, err error, keyvals ...interface{}) {
	l := log.With(s.logger, "request_id", RequestIDFromContext(ctx))
	level.Info(l).Log(append(keyvals, "err", err)...)
}

func (s *loggingService) ListBooks(ctx context.Context) (books []Book, err error) {
	defer func(begin time.Time) {
		s.log(ctx, err,
			"method", "list",
			"count", len(books),
			"took", time.Since(begin),
		)
	}(time.Now())
	return s.Service.ListBooks(ctx)
}

func (s *loggingService) GetBook(ctx context.Context, id book.ID) (b Book, err error) {
	defer func(begin time.Time) {
		s.log(ctx, err,
			"method", "get",
			"id", id,
			"took", time.Since(begin),
		)
	}(time.Now())
	return s.Service.GetBook(ctx, id)
}

func (s *loggingService) AddBook(ctx context.Context, title, author string) (b Book, err error) {
	defer func(begin time.Time) {
		s.log(ctx, err,
			"method", "add",
			"id", b.ID,
			"title", title,
			"author", author,
			"took", time.Since(begin),
		)
	}(time.Now())
	return s.Service.AddBook(ctx, title, author)
}

func (s *loggingService) UpdateBook(ctx context.Context, id book.ID, c Changes) (b Book, err error) {
	defer func(begin time.Time) {
		s.log(ctx, err,
			"method", "update",
			"id", id,
			"title", deref(c.Title),
			"author", deref(c.Author),
			"took", time.Since(begin),
		)
	}(time.Now())
	return s.Service.UpdateBook(ctx, id, c)
}

func (s *loggingService) DeleteBook(ctx context.Context, id book.ID) (err error) {
	defer func(begin time.Time) {
		s.log(ctx, err,
			"method", "delete",
			"id", id,
			"took", time.Since(begin),
		)
	}(time.Now())
	return s.Service.DeleteBook(ctx, id)
}

func (s *loggingService) BorrowBook(ctx context.Context, id book.ID, borrower string) (b Book, err error) {
	defer func(begin time.Time) {
		s.log(ctx, err,
			"method", "borrow",
			"id", id,
			"borrower", borrower,
			"took", time.Since(begin),
		)
	}(time.Now())
	return s.Service.BorrowBook(ctx, id, borrower)
}

func (s *loggingService) ReturnBook(ctx context.Context, id book.ID) (b Book, err error) {
	defer func(begin time.Time) {
		s.log(ctx, err,
			"method", "return",
			"id", id,
			"took", time.Since(begin),
		)
	}(time.Now())
	return s.Service.ReturnBook(ctx, id)
}
