package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"strings"
	"syscall"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/jrsteele09/go-superset-kernel/internal/config"
	"github.com/jrsteele09/go-superset-kernel/internal/logging"
	"github.com/jrsteele09/go-superset-kernel/upstream"
	"github.com/rs/zerolog"
)

func main() {
	logger := logging.New("DEV", "info")
	if err := run(); err != nil {
		logger.Fatal().Err(err).Msg("fake platform stopped")
	}
	logger.Info().Msg("fake platform stopped")
}

func run() (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintf(os.Stderr, "Recovered from panic: %v\n", r)
			debug.PrintStack()
			returnError = errors.New("panic recovered")
		}
	}()

	c := config.New()
	logger := logging.New(c.GetEnv(), c.GetLogLevel())
	displayAppname(c.GetAppName() + " Fake")

	platform, err := upstream.New(
		upstream.WithLogger(logger),
		upstream.WithSecret(c.GetUpstreamSecret()),
		upstream.WithShape(parseShape(c.GetUpstreamShape())),
		upstream.WithRolesInMe(c.GetUpstreamRolesInMe()),
		upstream.WithRequireCSRF(c.GetRequireCSRF()),
	)
	if err != nil {
		return fmt.Errorf("upstream.New: %w", err)
	}
	for _, route := range c.GetUpstreamDisabledRoutes() {
		method, pattern, ok := strings.Cut(route, " ")
		if !ok {
			logger.Warn().Str("route", route).Msg("ignoring malformed disabled route")
			continue
		}
		platform.Disable(strings.ToUpper(method), strings.TrimSpace(pattern))
		logger.Info().Str("route", route).Msg("route disabled")
	}

	server := &http.Server{Addr: c.GetListenAddr(), Handler: platform, ReadHeaderTimeout: 10 * time.Second}
	errCh := make(chan error, 1)
	go func() {
		errCh <- listenAndServe(server, logger)
	}()

	select {
	case err := <-errCh:
		return err
	case <-waitForStopSignal():
	}
	return shutdown(server)
}

func parseShape(s string) upstream.Shape {
	switch strings.ToLower(s) {
	case "single_key":
		return upstream.ShapeSingleKey
	case "typed":
		return upstream.ShapeTyped
	default:
		return upstream.ShapeStrings
	}
}

func listenAndServe(server *http.Server, logger zerolog.Logger) error {
	logger.Info().Str("addr", server.Addr).Msg("fake platform listening")
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server.ListenAndServe %w", err)
	}
	return nil
}

func waitForStopSignal() <-chan os.Signal {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	return stop
}

func shutdown(server *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server.Shutdown: %w", err)
	}
	return nil
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
