package repository

import (
	"path"
	"regexp"
	"strings"
	"time"

	"github.com/starford/craftmd/internal/models"
)

// InboxDir holds documents that no folder lists.
const InboxDir = "Inbox"

// DailyDir holds documents whose name is a date.
const DailyDir = "0 - Daily"

// reservedFolders get an ordinal prefix so they sort in a fixed order.
var reservedFolders = map[string]string{
	"Daily":     DailyDir,
	"Projects":  "1 - Projects",
	"Areas":     "2 - Areas",
	"Resources": "3 - Resources",
	"Archive":   "4 - Archive",
}

var (
	whitespaceRe = regexp.MustCompile(`\s+`)
	dailyNameRe  = regexp.MustCompile(`^(\d{4}\.\d{2}\.\d{2})\.md$`)
)

// Sanitize makes s usable as a single path component.
func Sanitize(s string) string {
	s = strings.ReplaceAll(s, ":", " - ")
	s = strings.ReplaceAll(s, "/", "-")
	s = whitespaceRe.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// FolderPath returns the slash-separated output directory of f, walking the
// parent chain up to the root.
func (r *Repository) FolderPath(f *Folder) string {
	components := []string{Sanitize(f.Name)}
	for p := f.ParentID; p != ""; {
		parent := r.folders[p]
		components = append([]string{Sanitize(parent.Name)}, components...)
		p = parent.ParentID
	}
	if mapped, ok := reservedFolders[components[0]]; ok {
		components[0] = mapped
	}
	return path.Join(components...)
}

// DocumentPath returns the slash-separated output path of d relative to the
// vault root.
func (r *Repository) DocumentPath(d *Document) string {
	return r.paths[d.ID]
}

// DocumentName returns the file name of d without the .md extension, the
// form used in [[wikilinks]].
func (r *Repository) DocumentName(d *Document) string {
	return strings.TrimSuffix(path.Base(r.paths[d.ID]), ".md")
}

func (r *Repository) computeDocumentPath(d *Document) string {
	filename := Sanitize(r.blocks[d.RootBlockID].Content) + ".md"

	if m := dailyNameRe.FindStringSubmatch(filename); m != nil {
		if date, err := time.Parse("2006.01.02", m[1]); err == nil {
			return DailyPath(date)
		}
	}

	if f, _ := r.DocumentFolder(d); f != nil {
		return path.Join(r.FolderPath(f), filename)
	}
	return path.Join(InboxDir, filename)
}

// DailyPath returns the output path of the daily note for date.
func DailyPath(date time.Time) string {
	return path.Join(DailyDir, date.Format("2006"), DailyName(date)+".md")
}

// DailyName returns the wikilink name of the daily note for date.
func DailyName(date time.Time) string {
	return date.Format("2006-01-02 Mon")
}

// LinkName returns the wikilink name of the document that b belongs to.
func (r *Repository) LinkName(b *models.Block) string {
	return strings.TrimSuffix(path.Base(r.paths[b.DocumentID]), ".md")
}

// BlockPath returns the output path of the document that b belongs to.
func (r *Repository) BlockPath(b *models.Block) string {
	return r.paths[b.DocumentID]
}
