package extract

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// Converter turns word-processor documents into PDF bytes.
type Converter interface {
	ToPDF(ctx context.Context, content []byte, mimeType string) ([]byte, error)
}

// SofficeConverter shells out to LibreOffice for the conversion.
type SofficeConverter struct {
	bin string
}

// NewSofficeConverter builds a converter using the given binary, defaulting
// to "soffice" on PATH.
func NewSofficeConverter(bin string) *SofficeConverter {
	if strings.TrimSpace(bin) == "" {
		bin = "soffice"
	}
	return &SofficeConverter{bin: bin}
}

func (c *SofficeConverter) ToPDF(ctx context.Context, content []byte, mimeType string) ([]byte, error) {
	dir, err := os.MkdirTemp("", "mnemora-convert-*")
	if err != nil {
		return nil, fmt.Errorf("create temp dir: %w", err)
	}
	defer os.RemoveAll(dir)
	input := filepath.Join(dir, "input"+inputExtension(mimeType))
	if err := os.WriteFile(input, content, 0o600); err != nil {
		return nil, fmt.Errorf("write temp input: %w", err)
	}
	cmd := exec.CommandContext(ctx, c.bin, "--headless", "--convert-to", "pdf", "--outdir", dir, input)
	if out, err := cmd.CombinedOutput(); err != nil {
		return nil, fmt.Errorf("soffice convert: %w: %s", err, strings.TrimSpace(string(out)))
	}
	pdf, err := os.ReadFile(filepath.Join(dir, "input.pdf"))
	if err != nil {
		return nil, fmt.Errorf("read converted pdf: %w", err)
	}
	return pdf, nil
}

func inputExtension(mimeType string) string {
	switch {
	case strings.Contains(mimeType, "wordprocessingml"):
		return ".docx"
	case strings.Contains(mimeType, "msword"):
		return ".doc"
	case strings.Contains(mimeType, "opendocument"):
		return ".odt"
	case strings.Contains(mimeType, "rtf"):
		return ".rtf"
	default:
		return ".bin"
	}
}

// documentBodyText extracts plain paragraph text directly from the document,
// the degraded path when PDF conversion is unavailable. Only the docx
// container is readable without the converter.
func documentBodyText(content []byte, mimeType string) (string, error) {
	if !strings.Contains(mimeType, "wordprocessingml") {
		return "", fmt.Errorf("no direct text extraction for %q", mimeType)
	}
	reader, err := zip.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", fmt.Errorf("open docx container: %w", err)
	}
	for _, file := range reader.File {
		if file.Name != "word/document.xml" {
			continue
		}
		rc, err := file.Open()
		if err != nil {
			return "", fmt.Errorf("open document body: %w", err)
		}
		defer rc.Close()
		return docxParagraphs(rc)
	}
	return "", errors.New("docx container has no document body")
}

func docxParagraphs(r io.Reader) (string, error) {
	decoder := xml.NewDecoder(r)
	var out strings.Builder
	var para strings.Builder
	for {
		token, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("decode document body: %w", err)
		}
		switch t := token.(type) {
		case xml.CharData:
			para.Write(t)
		case xml.EndElement:
			if t.Name.Local == "p" && para.Len() > 0 {
				if out.Len() > 0 {
					out.WriteString("\n\n")
				}
				out.WriteString(strings.TrimSpace(para.String()))
				para.Reset()
			}
		}
	}
	if para.Len() > 0 {
		if out.Len() > 0 {
			out.WriteString("\n\n")
		}
		out.WriteString(strings.TrimSpace(para.String()))
	}
	return out.String(), nil
}
