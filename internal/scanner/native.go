package scanner

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/colthorp/convocache/internal/core"
)

const (
	ctxCheckEvery  = 4096 // lines between cancellation checks
	readBufferSize = 64 * 1024
)

// NativeScanner extracts entry dates in-process instead of shelling out.
//
// Each line's date is the first M/D/YYYY date after its first '['; lines
// without one are ignored.
type NativeScanner struct {
	Timeout time.Duration
}

// NewNativeScanner returns a scanner bounded by timeout per file (0 disables the bound).
func NewNativeScanner(timeout time.Duration) *NativeScanner {
	return &NativeScanner{Timeout: timeout}
}

// Scan reads path from offset to EOF.
func (s *NativeScanner) Scan(ctx context.Context, path string, offset int64) (Result, error) {
	if s.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.Timeout)
		defer cancel()
	}

	f, err := os.Open(path)
	if err != nil {
		return None, &core.AdapterError{Step: "scan", Target: path, ExitCode: -1, Err: err}
	}
	defer f.Close()

	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		return None, &core.AdapterError{Step: "scan", Target: path, ExitCode: -1, Err: err}
	}

	res, err := ScanReader(ctx, f)
	if err != nil {
		aerr := &core.AdapterError{Step: "scan", Target: path, ExitCode: -1, Err: err}
		if errors.Is(err, context.DeadlineExceeded) {
			aerr.TimedOut = true
		}
		return None, aerr
	}
	return res, nil
}

// ScanReader returns the min/max entry date of every line in r.
// Lines have no length limit; only the first buffer of a long line is
// searched for its date.
func ScanReader(ctx context.Context, r io.Reader) (Result, error) {
	br := bufio.NewReaderSize(r, readBufferSize)

	var lo, hi string
	lines := 0
	for {
		line, err := br.ReadSlice('\n')
		if len(line) > 0 {
			lines++
			if lines%ctxCheckEvery == 0 {
				if cerr := ctx.Err(); cerr != nil {
					return None, cerr
				}
			}
			if date, ok := ExtractDate(line); ok {
				// YYYY-MM-DD compares chronologically as a string.
				if lo == "" || date < lo {
					lo = date
				}
				if hi == "" || date > hi {
					hi = date
				}
			}
		}

		// Skip the rest of an overlong line.
		for errors.Is(err, bufio.ErrBufferFull) {
			_, err = br.ReadSlice('\n')
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return None, fmt.Errorf("read log: %w", err)
		}
	}
	if err := ctx.Err(); err != nil {
		return None, err
	}

	if lo == "" {
		return None, nil
	}

	start, err := core.ParseDate(lo)
	if err != nil {
		return None, err
	}
	end, err := core.ParseDate(hi)
	if err != nil {
		return None, err
	}
	return Result{Found: true, Range: core.DateRange{Start: start, End: end}}, nil
}

// ExtractDate finds the first M/D/YYYY date following a '[' in line and
// returns it as YYYY-MM-DD. Month and day may be one or two digits. The result
// is validated as a real calendar date.
func ExtractDate(line []byte) (string, bool) {
	lb := bytes.IndexByte(line, '[')
	if lb < 0 {
		return "", false
	}
	s1 := bytes.IndexByte(line[lb:], '/')
	if s1 < 0 {
		return "", false
	}
	s1 += lb
	s2 := bytes.IndexByte(line[s1+1:], '/')
	if s2 < 0 {
		return "", false
	}
	s2 += s1 + 1

	// The month is the one or two digits directly before the first slash.
	mStart := s1 - 1
	if mStart <= lb {
		return "", false
	}
	if mStart-1 > lb && isDigit(line[mStart-1]) {
		mStart--
	}
	month := line[mStart:s1]
	dayPart := line[s1+1 : s2]
	if len(dayPart) < 1 || len(dayPart) > 2 {
		return "", false
	}
	if len(line) < s2+5 {
		return "", false
	}
	year := line[s2+1 : s2+5]

	for _, part := range [][]byte{month, dayPart, year} {
		for _, c := range part {
			if !isDigit(c) {
				return "", false
			}
		}
	}

	buf := make([]byte, 0, 10)
	buf = append(buf, year...)
	buf = append(buf, '-')
	buf = appendPadded(buf, month)
	buf = append(buf, '-')
	buf = appendPadded(buf, dayPart)

	if _, err := time.Parse(core.DateFmt, string(buf)); err != nil {
		return "", false
	}
	return string(buf), true
}

func isDigit(c byte) bool { return '0' <= c && c <= '9' }

func appendPadded(buf, digits []byte) []byte {
	if len(digits) == 1 {
		buf = append(buf, '0')
	}
	return append(buf, digits...)
}
