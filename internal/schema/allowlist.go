package schema

import (
	"encoding/json"
	"sort"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/starford/craftmd/internal/models"
)

func keySet(keys ...string) mapset.Set[string] {
	return mapset.NewThreadUnsafeSet(keys...)
}

// ignoredRawProperties are accepted on every block type and never modeled.
var ignoredRawProperties = keySet(
	"coverAspectRatio",
	"coverImageBackgroundColor",
	"coverImageEnabled",
	"coverImageValueKey",
	"coverImageWidth",
	"coverUnsplashAttribution",
	"hasBeenPagifiedBefore",
)

var attachmentProperties = []string{
	"aspectRatio",
	"altText",
	"fileName",
	"fileExtension",
	"isPreviewImageUploaded",
	"mimeType",
	"previewImageWidth",
	"primaryColor",
	"rawDataSize",
	// rawUrl is the attachment itself, url a rendered preview of it
	"rawUrl",
	"uploaded",
	"url",
}

var rawProperties = map[models.SemanticType]mapset.Set[string]{
	models.TypeText: keySet(
		"rawUrl", "dailyNoteDate", "isTodoChecked", "toDoCheckedDate",
		// rich links that were demoted to text keep their link data
		"url", "description", "iconUrl", "title",
	),
	models.TypeHeading: keySet("isTodoChecked", "toDoCheckedDate"),
	models.TypePage: keySet(
		"coverImageEnabled", "dailyNoteDate",
		"coverAspectRatio", "coverImageBackgroundColor", "coverImageValueKey",
		"coverImageWidth", "coverUnsplashAttribution",
		"isTodoChecked", "toDoCheckedDate",
	),
	models.TypeList: keySet(
		"dailyNoteDate", "isTodoChecked", "toDoCheckedDate",
		"rawUrl", "url", "description", "iconUrl", "title", "originalUrl",
	),
	models.TypeURL:       keySet("description", "title", "url", "iconUrl", "originalUrl"),
	models.TypeCode:      keySet("language", "isTodoChecked", "toDoCheckedDate"),
	models.TypeFile:      keySet(attachmentProperties...),
	models.TypeImage:     keySet(append([]string{"previewImageHasTransparency"}, attachmentProperties...)...),
	models.TypeSeparator: keySet(),
	models.TypeTable:     keySet(),
}

// commonStyleKeys are accepted in the style record of every block type.
var commonStyleKeys = keySet(
	"_runAttributes",
	"decorations",
	"decorationStyles",
	"indentationLevel",
	"listStyle",
	"textStyle",
	"color",
)

var styleProperties = map[models.SemanticType]mapset.Set[string]{
	models.TypePage:      keySet("decorationStyles"),
	models.TypeText:      keySet("userDefinedListNumber", "decorationStyles", "alignmentStyle", "layoutStyle", "fontStyle"),
	models.TypeHeading:   keySet(),
	models.TypeCode:      keySet("layoutStyle", "fontStyle"),
	models.TypeFile:      keySet("imageFillStyle", "layoutStyle"),
	models.TypeImage:     keySet("imageFillStyle", "imageSizeStyle"),
	models.TypeList:      keySet("userDefinedListNumber", "layoutStyle", "alignmentStyle", "fontStyle"),
	models.TypeURL:       keySet("layoutStyle"),
	models.TypeSeparator: keySet("lineStyle"),
	models.TypeTable:     keySet(),
}

var (
	offSchemaKeys   = keySet("resourceId", "parentBlock")
	decorationKeys  = keySet("focus", "block")
	runAttributeKey = keySet("isBold", "isCode", "isItalic", "isStrikethrough", "linkURL", "range", "highlightColor")
)

// modeledProperties are the raw property keys decoded into models.Properties.
var modeledProperties = keySet(
	"url", "rawUrl", "originalUrl", "title", "description", "language",
	"fileName", "fileExtension", "mimeType", "rawDataSize", "isTodoChecked", "dailyNoteDate",
)

var listStyles = []any{
	models.ListNone, models.ListBullet, models.ListNumbered, models.ListToggle, models.ListTodo,
}

// unexpected returns the sorted keys of obj that allowed does not contain.
func unexpected(obj map[string]json.RawMessage, allowed mapset.Set[string]) []string {
	var out []string
	for k := range obj {
		if !allowed.Contains(k) {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}

// emptyValue reports whether a raw JSON value counts as empty: null, "",
// "{}", {} or [].
func emptyValue(raw json.RawMessage) bool {
	switch string(raw) {
	case "", "null", `""`, `"{}"`, "{}", "[]":
		return true
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err == nil {
		return len(obj) == 0
	}
	return false
}
