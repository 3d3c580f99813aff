package main

import (
	"context"
	"flag"
	"fmt"
	stdlog "log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-kit/kit/endpoint"
	kitprometheus "github.com/go-kit/kit/metrics/prometheus"
	"github.com/go-kit/kit/ratelimit"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/oklog/run"
	"github.com/pkg/errors"
	stdprometheus "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"github.com/booklending/booksvc/book"
	"github.com/booklending/booksvc/inmem"
	"github.com/booklending/booksvc/lending"
)

func main() {
	fs := flag.NewFlagSet("booksvc", flag.ExitOnError)
	var (
		httpAddr  = fs.String("http.addr", ":5000", "Address for HTTP (JSON) server")
		debugAddr = fs.String("debug.addr", ":8080", "Address for HTTP debug/instrumentation server")
		logLevel  = fs.String("log.level", "info", "debug, info, warn, error")
		logFormat = fs.String("log.format", "logfmt", "logfmt or json")
		seed      = fs.Bool("seed", true, "start with the sample books")
		rateLimit = fs.Float64("rate.limit", 0, "max requests per second across all routes, 0 for unlimited")
		rateBurst = fs.Int("rate.burst", 10, "burst size when -rate.limit is set")
	)
	fs.Usage = usageFor(fs, "booksvc [flags]")
	fs.Parse(os.Args[1:])

	var logger log.Logger
	{
		logger = newLogger(*logFormat)
		logger = level.NewFilter(logger, levelOption(*logLevel))
		logger = log.With(logger, "ts", log.DefaultTimestampUTC, "caller", log.DefaultCaller)
		stdlog.SetFlags(0)                             // flags are handled by Go kit's logger
		stdlog.SetOutput(log.NewStdlibAdapter(logger)) // redirect anything using stdlib log to us
	}

	var books book.Repository
	if *seed {
		books = inmem.NewBookRepository(sampleBooks()...)
	} else {
		books = inmem.NewBookRepository()
	}

	fieldKeys := []string{"method", "error"}

	var s lending.Service
	{
		s = lending.NewService(books)
		s = lending.NewLoggingService(log.With(logger, "component", "lending"), s)
		s = lending.NewInstrumentingService(
			kitprometheus.NewCounterFrom(stdprometheus.CounterOpts{
				Namespace: "api",
				Subsystem: "lending_service",
				Name:      "request_count",
				Help:      "Number of requests received.",
			}, fieldKeys),
			kitprometheus.NewHistogramFrom(stdprometheus.HistogramOpts{
				Namespace: "api",
				Subsystem: "lending_service",
				Name:      "request_latency_seconds",
				Help:      "Total duration of requests in seconds.",
				Buckets:   stdprometheus.DefBuckets,
			}, fieldKeys),
			s,
		)
	}

	endpoints := lending.MakeServerEndpoints(s)
	if *rateLimit > 0 {
		endpoints = endpoints.Wrap(limiter(*rateLimit, *rateBurst))
	}

	var httpLogger = log.With(logger, "transport", "HTTP")
	var h http.Handler = lending.MakeHTTPHandler(endpoints, level.Error(httpLogger))

	var g run.Group
	{
		// The debug listener mounts the Prometheus handler.
		debugListener, err := net.Listen("tcp", *debugAddr)
		if err != nil {
			level.Error(logger).Log("transport", "debug/HTTP", "during", "Listen", "err", err)
			os.Exit(1)
		}
		m := http.NewServeMux()
		m.Handle("/metrics", promhttp.Handler())
		srv := &http.Server{Handler: m}
		g.Add(func() error {
			level.Info(logger).Log("transport", "debug/HTTP", "addr", *debugAddr)
			return srv.Serve(debugListener)
		}, func(error) {
			shutdown(srv)
		})
	}
	{
		httpListener, err := net.Listen("tcp", *httpAddr)
		if err != nil {
			level.Error(logger).Log("transport", "HTTP", "during", "Listen", "err", err)
			os.Exit(1)
		}
		srv := &http.Server{Handler: h}
		g.Add(func() error {
			level.Info(logger).Log("transport", "HTTP", "addr", *httpAddr, "books", len(books.FindAll()))
			return srv.Serve(httpListener)
		}, func(error) {
			shutdown(srv)
		})
	}
	{
		// This function just sits and waits for ctrl-C.
		cancelInterrupt := make(chan struct{})
		g.Add(func() error {
			c := make(chan os.Signal, 1)
			signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
			select {
			case sig := <-c:
				return errors.Errorf("received signal %s", sig)
			case <-cancelInterrupt:
				return nil
			}
		}, func(error) {
			close(cancelInterrupt)
		})
	}
	level.Info(logger).Log("exit", g.Run())
}

func sampleBooks() []book.Book {
	return []book.Book{
		{ID: 1, Title: "The Picture of Dorian Gray", Author: "Oscar Wilde", Available: true},
		{ID: 2, Title: "Babel", Author: "R. F. Kuang", Available: true},
	}
}

func limiter(perSecond float64, burst int) endpoint.Middleware {
	return ratelimit.NewErroringLimiter(rate.NewLimiter(rate.Limit(perSecond), burst))
}

func shutdown(srv *http.Server) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	srv.Shutdown(ctx)
}

func newLogger(format string) log.Logger {
	w := log.NewSyncWriter(os.Stderr)
	if format == "json" {
		return log.NewJSONLogger(w)
	}
	return log.NewLogfmtLogger(w)
}

func levelOption(l string) level.Option {
	switch l {
	case "debug":
		return level.AllowDebug()
	case "warn":
		return level.AllowWarn()
	case "error":
		return level.AllowError()
	default:
		return level.AllowInfo()
	}
}

func usageFor(fs *flag.FlagSet, short string) func() {
	return func() {
		fmt.Fprintf(os.Stderr, "USAGE\n")
		fmt.Fprintf(os.Stderr, "  %s\n", short)
		fmt.Fprintf(os.Stderr, "\n")
		fmt.Fprintf(os.Stderr, "FLAGS\n")
		fs.VisitAll(func(f *flag.Flag) {
			fmt.Fprintf(os.Stderr, "  -%s %s\t%s\n", f.Name, f.DefValue, f.Usage)
		})
		fmt.Fprintf(os.Stderr, "\n")
	}
}
