package extract

import (
	"archive/zip"
	"bytes"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildDocx(t *testing.T, paragraphs []string) []byte {
	t.Helper()
	var body strings.Builder
	for _, p := range paragraphs {
		fmt.Fprintf(&body, `<w:p><w:r><w:t>%s</w:t></w:r></w:p>`, p)
	}
	document := `<?xml version="1.0"?>` +
		`<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">` +
		`<w:body>` + body.String() + `</w:body></w:document>`

	var buf bytes.Buffer
	writer := zip.NewWriter(&buf)
	entry, err := writer.Create("word/document.xml")
	require.NoError(t, err)
	_, err = entry.Write([]byte(document))
	require.NoError(t, err)
	require.NoError(t, writer.Close())
	return buf.Bytes()
}

func TestDocumentBodyText(t *testing.T) {
	const docxMime = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"

	t.Run("ShouldJoinParagraphsWithBlankLines", func(t *testing.T) {
		docx := buildDocx(t, []string{"Alpha.", "Bravo."})
		text, err := documentBodyText(docx, docxMime)
		require.NoError(t, err)
		assert.Equal(t, "Alpha.\n\nBravo.", text)
	})

	t.Run("ShouldRejectNonDocxTypes", func(t *testing.T) {
		_, err := documentBodyText([]byte("anything"), "application/msword")
		require.Error(t, err)
	})

	t.Run("ShouldRejectContainerWithoutBody", func(t *testing.T) {
		var buf bytes.Buffer
		writer := zip.NewWriter(&buf)
		entry, err := writer.Create("other.xml")
		require.NoError(t, err)
		_, err = entry.Write([]byte("<x/>"))
		require.NoError(t, err)
		require.NoError(t, writer.Close())

		_, err = documentBodyText(buf.Bytes(), docxMime)
		require.Error(t, err)
	})
}
