package lending

import (
	"context"
	"fmt"
	"time"

	"github.com/go-kit/kit/metrics"

	"github.com/booklending/booksvc/book"
)

type instrumentingService struct {
	requestCount   metrics.Counter
	requestLatency metrics.Histogram
	Service
}

// NewInstrumentingService returns an instance of an instrumenting Service.
// Both metrics are labelled with "method" and "error".
func NewInstrumentingService(requestCount metrics.Counter, requestLatency metrics.Histogram, s Service) Service {
	return &instrumentingService{
		requestCount:   requestCount,
		requestLatency: requestLatency,
		Service:        s,
	}
}

func (s *instrumentingService) observe(method string, begin time.Time, err error) {
	lvs := []string{"method", method, "error", fmt.Sprint(err != nil)}
	s.requestCount.With(lvs...).Add(1)
	s.requestLatency.With(lvs...).Observe(time.Since(begin).Seconds())
}

func (s *instrumentingService) ListBooks(ctx context.Context) (_ []Book, err error) {
	defer func(begin time.Time) { s.observe("list", begin, err) }(time.Now())
	return s.Service.ListBooks(ctx)
}

func (s *instrumentingService) GetBook(ctx context.Context, id book.ID) (_ Book, err error) {
	defer func(begin time.Time) { s.observe("get", begin, err) }(time.Now())
	return s.Service.GetBook(ctx, id)
}

func (s *instrumentingService) AddBook(ctx context.Context, title, author string) (_ Book, err error) {
	defer func(begin time.Time) { s.observe("add", begin, err) }(time.Now())
	return s.Service.AddBook(ctx, title, author)
}

func (s *instrumentingService) UpdateBook(ctx context.Context, id book.ID, c Changes) (_ Book, err error) {
	defer func(begin time.Time) { s.observe("update", begin, err) }(time.Now())
	return s.Service.UpdateBook(ctx, id, c)
}

func (s *instrumentingService) DeleteBook(ctx context.Context, id book.ID) (err error) {
	defer func(begin time.Time) { s.observe("delete", begin, err) }(time.Now())
	return s.Service.DeleteBook(ctx, id)
}

func (s *instrumentingService) BorrowBook(ctx context.Context, id book.ID, borrower string) (_ Book, err error) {
	defer func(begin time.Time) { s.observe("borrow", begin, err) }(time.Now())
	return s.Service.BorrowBook(ctx, id, borrower)
}

func (s *instrumentingService) ReturnBook(ctx context.Context, id book.ID) (_ Book, err error) {
	defer func(begin time.Time) { s.observe("return", begin, err) }(time.Now())
	return s.Service.ReturnBook(ctx, id)
}
