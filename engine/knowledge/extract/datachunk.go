package extract

import (
	"github.com/mnemora/mnemora/engine/knowledge"
)

// Item is one content element inside a DataChunk: text or an encoded image,
// never both.
type Item struct {
	Text  string
	Image []byte
	// ImageType is the mime type of Image when set, e.g. "image/png".
	ImageType string
}

// HasImage reports whether the item carries image bytes.
func (i *Item) HasImage() bool {
	return len(i.Image) > 0
}

// DataChunk is the transient pre-persistence unit the extractor produces and
// the embedder consumes immediately. It is never stored.
type DataChunk struct {
	Items    []Item
	Metadata map[string]any
	MimeType string
	Modality knowledge.Modality
}

// HasText reports whether any item carries text.
func (d *DataChunk) HasText() bool {
	for i := range d.Items {
		if d.Items[i].Text != "" {
			return true
		}
	}
	return false
}

// HasImage reports whether any item carries image bytes.
func (d *DataChunk) HasImage() bool {
	for i := range d.Items {
		if d.Items[i].HasImage() {
			return true
		}
	}
	return false
}

func textChunk(text string, modality knowledge.Modality, mimeType string, meta map[string]any) DataChunk {
	return DataChunk{
		Items:    []Item{{Text: text}},
		Metadata: meta,
		MimeType: mimeType,
		Modality: modality,
	}
}
