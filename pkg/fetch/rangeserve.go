package fetch

import (
	"strconv"
	"strings"
)

// ByteRange is an inclusive [Start, End] slice of a known-size file.
type ByteRange struct {
	Start, End int64
}

// Length returns the number of bytes the range covers.
func (r ByteRange) Length() int64 { return r.End - r.Start + 1 }

// ParseRange implements the Range Server (§4.3): it parses header
// against size and returns a single satisfiable range, or ok=false for
// any other outcome (absent header, multipart ranges, unsatisfiable
// bounds) — callers must then fall back to a full 200 response.
func ParseRange(header string, size int64) (rng ByteRange, ok bool) {
	const prefix = "bytes="
	if header == "" || !strings.HasPrefix(header, prefix) || size <= 0 {
		return ByteRange{}, false
	}
	spec := strings.TrimPrefix(header, prefix)
	if strings.Contains(spec, ",") {
		// Multipart ranges are not required by §4.3.
		return ByteRange{}, false
	}

	dash := strings.IndexByte(spec, '-')
	if dash < 0 {
		return ByteRange{}, false
	}
	startStr, endStr := strings.TrimSpace(spec[:dash]), strings.TrimSpace(spec[dash+1:])

	var start, end int64
	var err error
	switch {
	case startStr == "" && endStr != "":
		// Suffix range: last N bytes.
		n, perr := strconv.ParseInt(endStr, 10, 64)
		if perr != nil || n <= 0 {
			return ByteRange{}, false
		}
		if n > size {
			n = size
		}
		start, end = size-n, size-1
	case startStr != "":
		start, err = strconv.ParseInt(startStr, 10, 64)
		if err != nil {
			return ByteRange{}, false
		}
		if endStr == "" {
			end = size - 1
		} else {
			end, err = strconv.ParseInt(endStr, 10, 64)
			if err != nil {
				return ByteRange{}, false
			}
		}
	default:
		return ByteRange{}, false
	}

	if start < 0 || end < start || end >= size {
		return ByteRange{}, false
	}
	return ByteRange{Start: start, End: end}, true
}
