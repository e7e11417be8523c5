package jsonl

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"os"

	"github.com/tjfontaine/ocpp-sniffer/internal/core/domain"
	"github.com/tjfontaine/ocpp-sniffer/internal/core/ports"
)

// Reader replays a log file. Each call to Records re-reads the file from
// the start. A scan running while the capture side appends may or may not
// see the newest lines; a trailing line that is still being written is
// skipped as malformed.
type Reader struct {
	Path   string
	Logger *slog.Logger
}

var _ ports.EventSource = Reader{}

// Records checks that the log can be opened and returns a lazy sequence of
// its records. Blank, non-JSON and non-record lines are skipped.
func (r Reader) Records(ctx context.Context) (iter.Seq[domain.EventRecord], error) {
	f, err := os.Open(r.Path)
	if err != nil {
		return nil, fmt.Errorf("open log %s: %w", r.Path, err)
	}
	f.Close()

	return func(yield func(domain.EventRecord) bool) {
		f, err := os.Open(r.Path)
		if err != nil {
			r.logger().Warn("log disappeared before scan",
				slog.String("path", r.Path),
				slog.String("error", err.Error()))
			return
		}
		defer f.Close()
		for rec := range Scan(ctx, f, r.skipped) {
			if !yield(rec) {
				return
			}
		}
	}, nil
}

func (r Reader) logger() *slog.Logger {
	if r.Logger != nil {
		return r.Logger
	}
	return slog.Default()
}

func (r Reader) skipped(lineNo int, err error) {
	r.logger().Debug("skipping log line",
		slog.String("path", r.Path),
		slog.Int("line", lineNo),
		slog.String("error", err.Error()))
}

// Scan yields the records of a line-delimited stream. onSkip, when set, is
// told about every non-blank line that could not be parsed. Scanning stops
// at EOF, on a read error or when ctx is done.
func Scan(ctx context.Context, src io.Reader, onSkip func(lineNo int, err error)) iter.Seq[domain.EventRecord] {
	return func(yield func(domain.EventRecord) bool) {
		br := bufio.NewReader(src)
		for lineNo := 1; ; lineNo++ {
			if ctx.Err() != nil {
				return
			}
			line, err := br.ReadBytes('\n')
			if rec, ok := parse(line, lineNo, onSkip); ok {
				if !yield(rec) {
					return
				}
			}
			if err != nil {
				if !errors.Is(err, io.EOF) && onSkip != nil {
					onSkip(lineNo, err)
				}
				return
			}
		}
	}
}

func parse(line []byte, lineNo int, onSkip func(int, error)) (domain.EventRecord, bool) {
	line = bytes.TrimSpace(line)
	if len(line) == 0 {
		return domain.EventRecord{}, false
	}
	rec, err := domain.ParseLine(line)
	if err != nil {
		if onSkip != nil {
			onSkip(lineNo, err)
		}
		return domain.EventRecord{}, false
	}
	return rec, true
}
