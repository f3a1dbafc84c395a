package fetch

import (
	"bytes"
	"io"
)

func newByteReader(b []byte) *bytes.Reader {
	return bytes.NewReader(b)
}

func readAll(r io.Reader) ([]byte, error) {
	if r == nil {
		return nil, nil
	}
	return io.ReadAll(r)
}
