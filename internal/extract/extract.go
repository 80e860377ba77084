// Package extract turns uploaded documents into plain text and splits the
// text into bounded, overlapping chunks for embedding.
package extract

import (
	"archive/zip"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/ledongthuc/pdf"
)

// ErrUnsupportedType is returned for file types outside the allow-list.
var ErrUnsupportedType = errors.New("unsupported file type")

// ErrExtractionFailed wraps failures from the underlying parsers.
var ErrExtractionFailed = errors.New("extraction failed")

// Supported reports whether the given file type is on the allow-list.
func Supported(fileType string) bool {
	switch strings.ToLower(fileType) {
	case "pdf", "docx", "txt":
		return true
	}
	return false
}

// Text extracts plain text from the file at path according to its declared
// type. PDF pages and DOCX paragraphs are joined with newlines; txt files
// are read as UTF-8.
func Text(path, fileType string) (string, error) {
	switch strings.ToLower(fileType) {
	case "pdf":
		return pdfText(path)
	case "docx":
		return docxText(path)
	case "txt":
		return txtText(path)
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedType, fileType)
	}
}

func pdfText(path string) (string, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("%w: opening pdf: %v", ErrExtractionFailed, err)
	}
	defer f.Close()

	var sb strings.Builder
	for i := 1; i <= r.NumPage(); i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return "", fmt.Errorf("%w: reading pdf page %d: %v", ErrExtractionFailed, i, err)
		}
		sb.WriteString(text)
		sb.WriteString("\n")
	}
	return sb.String(), nil
}

// docxText reads word/document.xml from the docx archive and joins the text
// runs of each paragraph with newlines.
func docxText(path string) (string, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return "", fmt.Errorf("%w: opening docx: %v", ErrExtractionFailed, err)
	}
	defer zr.Close()

	var doc *zip.File
	for _, f := range zr.File {
		if f.Name == "word/document.xml" {
			doc = f
			break
		}
	}
	if doc == nil {
		return "", fmt.Errorf("%w: docx has no word/document.xml", ErrExtractionFailed)
	}

	rc, err := doc.Open()
	if err != nil {
		return "", fmt.Errorf("%w: reading docx: %v", ErrExtractionFailed, err)
	}
	defer rc.Close()

	var sb strings.Builder
	var para strings.Builder
	dec := xml.NewDecoder(rc)
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("%w: parsing docx: %v", ErrExtractionFailed, err)
		}
		switch el := tok.(type) {
		case xml.StartElement:
			if el.Name.Local == "t" {
				var text string
				if err := dec.DecodeElement(&text, &el); err != nil {
					return "", fmt.Errorf("%w: parsing docx text run: %v", ErrExtractionFailed, err)
				}
				para.WriteString(text)
			}
		case xml.EndElement:
			if el.Name.Local == "p" {
				sb.WriteString(para.String())
				sb.WriteString("\n")
				para.Reset()
			}
		}
	}
	return sb.String(), nil
}

func txtText(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("%w: reading txt: %v", ErrExtractionFailed, err)
	}
	return string(data), nil
}
