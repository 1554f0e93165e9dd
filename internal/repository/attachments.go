package repository

import (
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/starford/craftmd/internal/models"
)

// Attachment maps a file or image block to its deduplicated output name.
type Attachment struct {
	BlockID      string
	Filename     string
	SourceURL    string
	ExpectedSize int64
}

// Attachment returns the registry entry of a file or image block.
func (r *Repository) Attachment(blockID string) (Attachment, bool) {
	a, ok := r.attachments[blockID]
	return a, ok
}

// Attachments returns every registry entry ordered by block id.
func (r *Repository) Attachments() []Attachment {
	out := make([]Attachment, 0, len(r.attachments))
	for _, a := range r.attachments {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].BlockID < out[j].BlockID })
	return out
}

// buildAttachments visits file and image blocks in block id order so that
// collision suffixes are reproducible between runs.
func buildAttachments(blocks map[string]*models.Block) map[string]Attachment {
	ids := make([]string, 0, len(blocks))
	for id, b := range blocks {
		if b.Type == models.TypeFile || b.Type == models.TypeImage {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)

	taken := make(map[string]struct{}, len(ids))
	out := make(map[string]Attachment, len(ids))
	for _, id := range ids {
		b := blocks[id]
		original := path.Base(strings.ReplaceAll(b.Props.FileName, "\\", "/"))
		if original == "." || original == "/" {
			original = id
		}
		ext := path.Ext(original)
		base := strings.TrimSuffix(original, ext)
		// tiff files come without an extension and are converted to png
		if ext == "" {
			ext = ".png"
		}

		if _, dup := taken[base]; dup {
			suffix := 1
			for {
				if _, dup := taken[fmt.Sprintf("%s-%d", base, suffix)]; !dup {
					break
				}
				suffix++
			}
			base = fmt.Sprintf("%s-%d", base, suffix)
		}
		taken[base] = struct{}{}

		out[id] = Attachment{
			BlockID:      id,
			Filename:     base + ext,
			SourceURL:    b.Props.RawURL,
			ExpectedSize: int64(b.Props.RawDataSize),
		}
	}
	return out
}
