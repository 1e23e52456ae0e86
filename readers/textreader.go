package readers

import (
	"bytes"
	"errors"
	"unicode/utf8"
)

var errNotUTF8 = errors.New("file is not valid UTF-8 text")

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

type TextReader struct{}

func (r *TextReader) CanRead(path string) bool {
	return hasExt(path, ".md", ".markdown", ".txt")
}

func (r *TextReader) ReadText(path string, raw []byte) (string, error) {
	raw = bytes.TrimPrefix(raw, utf8BOM)
	if !utf8.Valid(raw) {
		return "", errNotUTF8
	}

	return string(raw), nil
}
