package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
	"github.com/openmined/savesync/internal/utils"
)

type logCloser struct {
	file *os.File
	prev *slog.Logger
}

func (c *logCloser) Close() error {
	slog.SetDefault(c.prev)
	return c.file.Close()
}

// setupLogging sends logs to the console and appends them to logFile.
// Closing the result restores the previous default logger.
func setupLogging(console io.Writer, logFile string, debug bool) (io.Closer, error) {
	if err := utils.EnsureParent(logFile); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}

	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}

	noColor := true
	if f, ok := console.(*os.File); ok {
		noColor = !isatty.IsTerminal(f.Fd())
	}

	consoleHandler := tint.NewHandler(console, &tint.Options{
		Level:      level,
		TimeFormat: "15:04:05.000",
		NoColor:    noColor,
	})
	fileHandler := slog.NewTextHandler(utils.NewLogInterceptor(file), &slog.HandlerOptions{
		Level: slog.LevelDebug,
		// time is added by the interceptor
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey && len(groups) == 0 {
				return slog.Attr{}
			}
			return a
		},
	})

	prev := slog.Default()
	slog.SetDefault(slog.New(utils.NewMultiLogHandler(consoleHandler, fileHandler)))
	return &logCloser{file: file, prev: prev}, nil
}

// logError logs err followed by each wrapped cause.
func logError(msg string, err error) {
	slog.Error(msg, "error", err)
	for i, cause := range causes(err) {
		slog.Debug("caused by", "depth", i+1, "error", cause)
	}
}

func causes(err error) []error {
	var out []error
	queue := []error{err}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]

		var next []error
		switch e := cur.(type) {
		case interface{ Unwrap() []error }:
			next = e.Unwrap()
		case interface{ Unwrap() error }:
			if inner := e.Unwrap(); inner != nil {
				next = []error{inner}
			}
		}
		for _, n := range next {
			if n != nil {
				out = append(out, n)
				queue = append(queue, n)
			}
		}
	}
	return out
}
