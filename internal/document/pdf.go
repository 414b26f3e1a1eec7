package document

import (
	"strings"

	"github.com/gen2brain/go-fitz"
)

// PDFPlaceholder stands in for PDFs without an extractable text layer.
const PDFPlaceholder = "[PDF content could not be extracted as text. The document may be scanned or image-based.]"

// decodePDF returns the text layer of every page. Scanned or unreadable
// documents degrade to PDFPlaceholder instead of failing the upload.
func decodePDF(data []byte) string {
	doc, err := fitz.NewFromMemory(data)
	if err != nil {
		return PDFPlaceholder
	}
	defer doc.Close()

	var sb strings.Builder
	for page := 0; page < doc.NumPage(); page++ {
		text, err := doc.Text(page)
		if err != nil {
			continue
		}
		sb.WriteString(text)
		sb.WriteByte('\n')
	}

	out := strings.TrimSpace(sb.String())
	if out == "" {
		return PDFPlaceholder
	}
	return out
}
