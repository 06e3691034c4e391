package reader

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/vardex/vardex/lib/varapi"
	"github.com/vardex/vardex/lib/varerror"
)

func bedError(line int, message string, cause error) error {
	opts := []varerror.ErrorOption{
		varerror.WithKind(varerror.KindBadInput),
		varerror.WithMessage(fmt.Sprintf("line %d: %s", line, message)),
	}
	if cause != nil {
		opts = append(opts, varerror.WithCause(cause))
	}
	return varerror.New(opts...)
}

// ParseBed reads a BED track: whitespace-delimited lines of
// chrom, start, end and optionally a name, with blank lines, comments,
// and track/browser headers skipped. Coordinates are kept as written.
func ParseBed(r io.Reader) ([]varapi.BedInterval, error) {
	var rv []varapi.BedInterval

	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if strings.HasPrefix(line, "track") || strings.HasPrefix(line, "browser") {
			continue
		}

		parts := strings.Fields(line)
		if len(parts) < 3 {
			return nil, bedError(lineNo, "interval needs chrom, start, and end", nil)
		}

		start, err := strconv.ParseInt(parts[1], 10, 64)
		if err != nil {
			return nil, bedError(lineNo, "bad start position", err)
		}
		end, err := strconv.ParseInt(parts[2], 10, 64)
		if err != nil {
			return nil, bedError(lineNo, "bad end position", err)
		}
		if end < start {
			return nil, bedError(lineNo, "interval ends before it starts", nil)
		}

		interval := varapi.BedInterval{
			Chrom: parts[0],
			Start: start,
			End:   end,
		}
		if len(parts) > 3 {
			interval.Name = parts[3]
		}
		rv = append(rv, interval)
	}
	if err := scanner.Err(); err != nil {
		return nil, bedError(lineNo+1, "unable to read track", err)
	}

	return rv, nil
}
