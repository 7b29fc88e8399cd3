package stream

import (
	"bufio"
	"bytes"
	"errors"
	"io"

	"github.com/tidwall/gjson"
)

// Frame is one parsed upstream event.
type Frame struct {
	Type string
	Data gjson.Result
}

// Reader reads "data: " frames from an upstream event stream. Lines have no
// length limit.
type Reader struct {
	br  *bufio.Reader
	err error
}

// NewReader creates a frame reader.
func NewReader(r io.Reader) *Reader {
	return &Reader{br: bufio.NewReaderSize(r, 64*1024)}
}

var dataPrefix = []byte("data: ")

// Next returns the next frame. It returns io.EOF at the end of the body or
// on the [DONE] sentinel. Lines that are not data lines or do not hold a
// JSON object are skipped.
func (r *Reader) Next() (Frame, error) {
	for r.err == nil {
		line, err := r.br.ReadBytes('\n')
		if err != nil {
			r.err = err
		}
		if !bytes.HasPrefix(line, dataPrefix) {
			continue
		}
		data := bytes.TrimSpace(line[len(dataPrefix):])
		if len(data) == 0 {
			continue
		}
		if string(data) == "[DONE]" {
			r.err = io.EOF
			return Frame{}, io.EOF
		}
		if !gjson.ValidBytes(data) {
			continue
		}
		parsed := gjson.ParseBytes(data)
		if !parsed.IsObject() {
			continue
		}
		return Frame{Type: parsed.Get("type").String(), Data: parsed}, nil
	}
	if errors.Is(r.err, io.EOF) {
		return Frame{}, io.EOF
	}
	return Frame{}, r.err
}
