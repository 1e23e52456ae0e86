package readers

import (
	"bytes"
	"fmt"

	"code.sajari.com/docconv/v2"
)

// UniversalReader extracts text from office and PDF documents. PDF support
// needs poppler's pdftotext on PATH.
type UniversalReader struct{}

func (r *UniversalReader) CanRead(path string) bool {
	return hasExt(path, ".docx", ".odt", ".pdf", ".xml", ".rtf")
}

func (r *UniversalReader) ReadText(path string, raw []byte) (string, error) {
	res, err := docconv.Convert(bytes.NewReader(raw), docconv.MimeTypeByExtension(path), false)
	if err != nil {
		return "", fmt.Errorf("failed to read document: %w", err)
	}

	return res.Body, nil
}
