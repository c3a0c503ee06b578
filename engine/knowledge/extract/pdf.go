package extract

import (
	"bytes"
	"context"
	"fmt"
	"image/png"

	"github.com/gen2brain/go-fitz"
)

// Page is one rasterized document page.
type Page struct {
	Number int
	PNG    []byte
	Width  int
	Height int
}

// Rasterizer renders document bytes into page images.
type Rasterizer interface {
	Rasterize(ctx context.Context, content []byte) ([]Page, error)
}

// MuPDFRasterizer renders PDF pages through mupdf.
type MuPDFRasterizer struct{}

// NewMuPDFRasterizer builds the default rasterizer.
func NewMuPDFRasterizer() *MuPDFRasterizer {
	return &MuPDFRasterizer{}
}

func (*MuPDFRasterizer) Rasterize(ctx context.Context, content []byte) ([]Page, error) {
	doc, err := fitz.NewFromMemory(content)
	if err != nil {
		return nil, fmt.Errorf("open document: %w", err)
	}
	defer doc.Close()
	pages := make([]Page, 0, doc.NumPage())
	for n := 0; n < doc.NumPage(); n++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		img, err := doc.Image(n)
		if err != nil {
			return nil, fmt.Errorf("render page %d: %w", n+1, err)
		}
		var buf bytes.Buffer
		if err := png.Encode(&buf, img); err != nil {
			return nil, fmt.Errorf("encode page %d: %w", n+1, err)
		}
		pages = append(pages, Page{
			Number: n + 1,
			PNG:    buf.Bytes(),
			Width:  img.Bounds().Dx(),
			Height: img.Bounds().Dy(),
		})
	}
	return pages, nil
}
