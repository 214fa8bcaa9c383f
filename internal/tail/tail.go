// Package tail follows a combat log file as it grows and feeds complete
// lines to a parser (component C).
package tail

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/raidforge/combatlog/internal/corerr"
)

// LineFunc receives each complete line read from the file, without the
// trailing newline.
type LineFunc func(line string, lineNo uint64)

// ReadFileStreaming performs a full streaming read of path from the start,
// invoking fn for every complete line. It returns the byte offset just past
// the last complete line consumed, and the number of lines delivered.
//
// A trailing partial line (no terminating '\n' yet) is never delivered; the
// returned offset points before it so a Follower started at that offset picks it up
// once it is completed.
func ReadFileStreaming(ctx context.Context, path string, fn LineFunc) (endOffset int64, count int, err error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: opening %s: %v", corerr.ErrTailIO, path, err)
	}
	defer f.Close()

	r := bufio.NewReader(f)
	var offset int64
	var lineNo uint64

	for {
		select {
		case <-ctx.Done():
			return offset, count, ctx.Err()
		default:
		}

		line, err := r.ReadString('\n')
		if err != nil {
			if err == io.EOF {
				// Partial trailing line: do not advance offset past it.
				return offset, count, nil
			}
			return offset, count, fmt.Errorf("%w: reading %s: %v", corerr.ErrTailIO, path, err)
		}

		offset += int64(len(line))
		lineNo++
		fn(trimNewline(line), lineNo)
		count++
	}
}

func trimNewline(s string) string {
	s = bytesTrim(s, '\n')
	s = bytesTrim(s, '\r')
	return s
}

func bytesTrim(s string, b byte) string {
	if n := len(s); n > 0 && s[n-1] == b {
		return s[:n-1]
	}
	return s
}

// Follower watches a file for growth and re-invokes the parser for each new
// complete line, following the teacher's goroutine + context.Context
// cancellation idiom used for the game server's accept loop.
type Follower struct {
	path     string
	poll     time.Duration
	offset   int64
	lineNo   uint64
	logger   *slog.Logger
}

// NewFollower creates a Follower starting at startOffset (0 to tail from the
// beginning of the file; the caller typically passes the offset returned by
// a prior ReadFileStreaming call to avoid reprocessing history).
func NewFollower(path string, startOffset int64, logger *slog.Logger) *Follower {
	if logger == nil {
		logger = slog.Default()
	}
	return &Follower{path: path, poll: 250 * time.Millisecond, offset: startOffset, logger: logger}
}

// Run blocks, delivering new lines to fn until ctx is cancelled. Cancellation
// is cooperative and idempotent: Run returns nil on context cancellation
// rather than propagating ctx.Err() as a failure, since stopping a tail is a
// normal lifecycle operation, not an error.
func (f *Follower) Run(ctx context.Context, fn LineFunc) error {
	ticker := time.NewTicker(f.poll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := f.pump(ctx, fn); err != nil {
				f.logger.Warn("tail pump failed", "path", f.path, "error", err)
			}
		}
	}
}

func (f *Follower) pump(ctx context.Context, fn LineFunc) error {
	file, err := os.Open(f.path)
	if err != nil {
		return fmt.Errorf("%w: opening %s: %v", corerr.ErrTailIO, f.path, err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return fmt.Errorf("%w: stat %s: %v", corerr.ErrTailIO, f.path, err)
	}
	if info.Size() < f.offset {
		// File truncated/rotated underneath us: restart from the top.
		f.offset = 0
		f.lineNo = 0
	}
	if info.Size() == f.offset {
		return nil // no growth
	}

	if _, err := file.Seek(f.offset, io.SeekStart); err != nil {
		return fmt.Errorf("%w: seeking %s: %v", corerr.ErrTailIO, f.path, err)
	}

	r := bufio.NewReader(file)
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		line, err := r.ReadString('\n')
		if err != nil {
			if err == io.EOF {
				return nil // partial trailing line; retry next tick
			}
			return fmt.Errorf("%w: reading %s: %v", corerr.ErrTailIO, f.path, err)
		}
		f.offset += int64(len(line))
		f.lineNo++
		fn(trimNewline(line), f.lineNo)
	}
}

// Offset returns the current consumed byte offset.
func (f *Follower) Offset() int64 { return f.offset }
