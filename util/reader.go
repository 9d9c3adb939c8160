package util

import (
	"bytes"
	"io"
)

const DefaultReadChunkSize = 16 * 1024

// ReadAll drains reader chunkSize bytes at a time and returns once the reader
// reports io.EOF, no matter how many pieces the transport split the body into.
func ReadAll(reader io.Reader, chunkSize int64) ([]byte, error) {
	if chunkSize <= 0 {
		chunkSize = DefaultReadChunkSize
	}
	buf := bytes.NewBuffer(make([]byte, 0, chunkSize))
	for {
		_, err := io.CopyN(buf, reader, chunkSize)
		if err != nil {
			if err == io.EOF {
				return buf.Bytes(), nil
			}
			return nil, err
		}
	}
}
