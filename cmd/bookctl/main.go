package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"text/tabwriter"

	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"

	"github.com/booklending/booksvc/book"
	"github.com/booklending/booksvc/lending"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

func main() {
	fs := flag.NewFlagSet("bookctl", flag.ExitOnError)
	var (
		addr   = fs.String("addr", "localhost:5000", "Address of the lending service")
		qps    = fs.Int("qps", 10, "client-side rate limit, 0 for none")
		asJSON = fs.Bool("json", false, "print books as JSON")
	)
	fs.Usage = usage(fs)
	fs.Parse(os.Args[1:])

	svc, err := lending.NewHTTPClient(*addr, *qps)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	if err := run(context.Background(), svc, fs.Args(), os.Stdout, *asJSON); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, svc lending.Service, args []string, w io.Writer, asJSON bool) error {
	if len(args) < 1 {
		return errors.New("missing command")
	}
	cmd, args := args[0], args[1:]

	var (
		books []lending.Book
		b     lending.Book
		err   error
	)
	switch cmd {
	case "list":
		books, err = svc.ListBooks(ctx)
		if err != nil {
			return err
		}
		return printBooks(w, asJSON, books)

	case "get", "delete", "return":
		id, err := idArg(args, 1)
		if err != nil {
			return err
		}
		switch cmd {
		case "get":
			b, err = svc.GetBook(ctx, id)
		case "return":
			b, err = svc.ReturnBook(ctx, id)
		case "delete":
			if err := svc.DeleteBook(ctx, id); err != nil {
				return err
			}
			fmt.Fprintln(w, "Book deleted")
			return nil
		}
		if err != nil {
			return err
		}
		return printBook(w, asJSON, b)

	case "add":
		if len(args) != 2 {
			return errors.New("usage: add TITLE AUTHOR")
		}
		b, err = svc.AddBook(ctx, args[0], args[1])
		if err != nil {
			return err
		}
		return printBook(w, asJSON, b)

	case "update":
		id, err := idArg(args, 1)
		if err != nil {
			return err
		}
		ufs := flag.NewFlagSet("update", flag.ContinueOnError)
		ufs.SetOutput(io.Discard)
		title := ufs.String("title", "", "new title")
		author := ufs.String("author", "", "new author")
		if err := ufs.Parse(args[1:]); err != nil {
			return errors.Wrap(err, "update")
		}
		b, err = svc.UpdateBook(ctx, id, lending.Changes{Title: title, Author: author})
		if err != nil {
			return err
		}
		return printBook(w, asJSON, b)

	case "borrow":
		id, err := idArg(args, 2)
		if err != nil {
			return err
		}
		b, err = svc.BorrowBook(ctx, id, args[1])
		if err != nil {
			return err
		}
		return printBook(w, asJSON, b)

	default:
		return errors.Errorf("unknown command %q", cmd)
	}
}

// idArg parses the leading book id and checks that at least n positional
// arguments were given.
func idArg(args []string, n int) (book.ID, error) {
	if len(args) < n {
		return 0, errors.Errorf("expected %d argument(s), got %d", n, len(args))
	}
	id, err := strconv.Atoi(args[0])
	if err != nil {
		return 0, errors.Wrapf(err, "invalid book id %q", args[0])
	}
	return book.ID(id), nil
}

func printBook(w io.Writer, asJSON bool, b lending.Book) error {
	if asJSON {
		return encodeJSON(w, b)
	}
	return printTable(w, []lending.Book{b})
}

func printBooks(w io.Writer, asJSON bool, books []lending.Book) error {
	if asJSON {
		return encodeJSON(w, books)
	}
	return printTable(w, books)
}

func encodeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printTable(w io.Writer, books []lending.Book) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTITLE\tAUTHOR\tBORROWER")
	for _, b := range books {
		borrower := "-"
		if b.Borrower != nil {
			borrower = *b.Borrower
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", b.ID, b.Title, b.Author, borrower)
	}
	return tw.Flush()
}

func usage(fs *flag.FlagSet) func() {
	return func() {
		fmt.Fprintf(os.Stderr, "USAGE\n")
		fmt.Fprintf(os.Stderr, "  bookctl [flags] list\n")
		fmt.Fprintf(os.Stderr, "  bookctl [flags] get ID\n")
		fmt.Fprintf(os.Stderr, "  bookctl [flags] add TITLE AUTHOR\n")
		fmt.Fprintf(os.Stderr, "  bookctl [flags] update ID [-title T] [-author A]\n")
		fmt.Fprintf(os.Stderr, "  bookctl [flags] delete ID\n")
		fmt.Fprintf(os.Stderr, "  bookctl [flags] borrow ID BORROWER\n")
		fmt.Fprintf(os.Stderr, "  bookctl [flags] return ID\n")
		fmt.Fprintf(os.Stderr, "\n")
		fmt.Fprintf(os.Stderr, "FLAGS\n")
		fs.VisitAll(func(f *flag.Flag) {
			fmt.Fprintf(os.Stderr, "  -%s %s\t%s\n", f.Name, f.DefValue, f.Usage)
		})
		fmt.Fprintf(os.Stderr, "\n")
	}
}
