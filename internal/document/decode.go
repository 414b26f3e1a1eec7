// Package document turns uploaded datasheet bytes into plain text.
package document

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/spherical-ai/bess-advisor/internal/domain"
)

// ErrUnsupportedFormat is returned for extensions the decoder cannot read.
var ErrUnsupportedFormat = errors.New("unsupported file format")

// Supported extensions.
const (
	ExtPDF  = ".pdf"
	ExtDOCX = ".docx"
	ExtTXT  = ".txt"
	ExtMD   = ".md"
	ExtCSV  = ".csv"
)

// Decode converts data into text according to the filename's extension.
func Decode(filename string, data []byte) (string, error) {
	ext := strings.ToLower(filepath.Ext(filename))

	switch ext {
	case ExtTXT, ExtMD, ExtCSV:
		if !utf8.Valid(data) {
			return strings.ToValidUTF8(string(data), " "), nil
		}
		return string(data), nil
	case ExtDOCX:
		text, err := decodeDOCX(data)
		if err != nil {
			return "", domain.ExtractionError("read docx", err)
		}
		return text, nil
	case ExtPDF:
		return decodePDF(data), nil
	default:
		return "", domain.ExtractionError(fmt.Sprintf("cannot decode %q", ext), ErrUnsupportedFormat)
	}
}

// Supported reports whether filename has an extension Decode understands.
func Supported(filename string) bool {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ExtPDF, ExtDOCX, ExtTXT, ExtMD, ExtCSV:
		return true
	}
	return false
}

// decodeDOCX walks word/document.xml collecting text runs. Paragraphs and
// explicit breaks become newlines so line-oriented patterns still work.
func decodeDOCX(data []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("open archive: %w", err)
	}

	var body *zip.File
	for _, f := range zr.File {
		if f.Name == "word/document.xml" {
			body = f
			break
		}
	}
	if body == nil {
		return "", errors.New("word/document.xml not found")
	}

	rc, err := body.Open()
	if err != nil {
		return "", fmt.Errorf("open document.xml: %w", err)
	}
	defer rc.Close()

	var (
		sb     strings.Builder
		inText bool
	)
	dec := xml.NewDecoder(rc)
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("parse document.xml: %w", err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "t":
				inText = true
			case "tab":
				sb.WriteByte('\t')
			case "br", "cr":
				sb.WriteByte('\n')
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				sb.WriteByte('\n')
			case "tc":
				sb.WriteByte('\t')
			}
		case xml.CharData:
			if inText {
				sb.Write(t)
			}
		}
	}

	return strings.TrimSpace(sb.String()), nil
}
