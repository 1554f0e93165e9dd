package schema

import (
	"encoding/json"

	mapset "github.com/deckarep/golang-set/v2"
)

// RecordKind names a top-level record collection of the export.
type RecordKind string

const (
	KindFolder   RecordKind = "folder"
	KindDocument RecordKind = "document"
	KindBlock    RecordKind = "block"
)

type recordKeys struct {
	known   mapset.Set[string]
	ignored mapset.Set[string]
	empty   mapset.Set[string]
}

var recordSchemas = map[RecordKind]recordKeys{
	KindFolder: {
		known:   keySet("id", "name", "parentFolderId", "properties", "documents"),
		ignored: keySet("created", "updated"),
		empty:   keySet("offSchemaProperties"),
	},
	KindDocument: {
		known:   keySet("id", "rootBlockId", "created", "modified"),
		ignored: keySet("stamp", "syncEnabled", "isFetched"),
		empty:   keySet("offSchemaProperties"),
	},
	KindBlock: {
		known: keySet("id", "documentId", "content", "type", "style", "blocks",
			"decorations", "offSchemaProperties", "rawProperties"),
		// pageStyleData holds page width and spacing, pluginData is unused
		ignored: keySet("lastSyncedBlockIds", "createdByUserId", "modifiedByUserId",
			"created", "updated", "stamp", "pluginData", "pageStyleData",
			"isFetched", "lastSyncedProperties"),
		empty: keySet(),
	},
}

// CheckRecord verifies the top-level keys of a raw record and that keys
// which must be empty are.
func CheckRecord(kind RecordKind, id string, obj map[string]json.RawMessage) error {
	rs, ok := recordSchemas[kind]
	if !ok {
		return &ViolationError{Record: string(kind), ID: id, Detail: "unknown record kind"}
	}
	allowed := rs.known.Union(rs.ignored).Union(rs.empty)
	if keys := unexpected(obj, allowed); len(keys) > 0 {
		return &ViolationError{Record: string(kind), ID: id, Keys: keys}
	}
	for _, key := range rs.empty.ToSlice() {
		if raw, ok := obj[key]; ok && !emptyValue(raw) {
			return &ViolationError{Record: string(kind), ID: id, Location: key, Detail: "expected empty value, got " + string(raw)}
		}
	}
	return nil
}
