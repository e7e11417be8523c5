package jsonl

import (
	"bufio"
	"context"
	"fmt"
	"iter"
	"log/slog"
	"os"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/tjfontaine/ocpp-sniffer/internal/core/domain"
)

// pollInterval re-checks the file on filesystems where change notifications
// are not delivered.
const pollInterval = time.Second

// Follow yields every record already in the log and then keeps yielding
// records as they are appended, until ctx is done. A trailing line without
// its newline is held back until the rest of it arrives. Like Records, each
// range opens the file and its watcher afresh and releases both on return.
func (r Reader) Follow(ctx context.Context) (iter.Seq[domain.EventRecord], error) {
	f, err := os.Open(r.Path)
	if err != nil {
		return nil, fmt.Errorf("open log %s: %w", r.Path, err)
	}
	f.Close()

	return func(yield func(domain.EventRecord) bool) {
		f, err := os.Open(r.Path)
		if err != nil {
			r.logger().Warn("log disappeared before follow",
				slog.String("path", r.Path),
				slog.String("error", err.Error()))
			return
		}
		defer f.Close()

		watcher, err := fsnotify.NewWatcher()
		if err != nil {
			r.logger().Warn("log watch unavailable, polling", slog.String("error", err.Error()))
		} else {
			defer watcher.Close()
			if err := watcher.Add(r.Path); err != nil {
				r.logger().Warn("log watch unavailable, polling",
					slog.String("path", r.Path),
					slog.String("error", err.Error()))
			}
		}
		var events <-chan fsnotify.Event
		var errs <-chan error
		if watcher != nil {
			events, errs = watcher.Events, watcher.Errors
		}

		ticker := time.NewTicker(pollInterval)
		defer ticker.Stop()

		br := bufio.NewReader(f)
		var pending []byte
		lineNo := 0

		for {
			for {
				chunk, err := br.ReadBytes('\n')
				pending = append(pending, chunk...)
				if err != nil {
					break
				}
				lineNo++
				rec, ok := parse(pending, lineNo, r.skipped)
				pending = pending[:0]
				if ok && !yield(rec) {
					return
				}
			}

			select {
			case <-ctx.Done():
				return
			case _, ok := <-events:
				if !ok {
					return
				}
			case err, ok := <-errs:
				if !ok {
					return
				}
				r.logger().Error("log watch error", slog.String("error", err.Error()))
			case <-ticker.C:
			}
		}
	}, nil
}
