package schema

import (
	"encoding/json"
	"fmt"

	mapset "github.com/deckarep/golang-set/v2"
	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/craftmd/internal/models"
)

// NewBlock validates a raw block record and returns the typed block. It
// never panics or exits: the caller decides whether a failure is fatal.
// Failures unwrap to ErrSchemaViolation or ErrUnknownBlockType.
func NewBlock(rec models.BlockRecord) (*models.Block, error) {
	violation := func(t models.SemanticType, location string, keys []string, detail string) error {
		return &ViolationError{Record: "block", ID: rec.ID, Type: t, Location: location, Keys: keys, Detail: detail}
	}

	styleObj, err := rec.Style.Object()
	if err != nil {
		return nil, violation("", "style", nil, err.Error())
	}
	var style models.Style
	if err := rec.Style.Decode(&style); err != nil {
		return nil, violation("", "style", nil, err.Error())
	}
	if raw, ok := styleObj["textStyle"]; ok && string(raw) == `""` {
		return nil, violation("", "style.textStyle", nil, "empty text style")
	}

	if err := validateStyleValues(&style); err != nil {
		return nil, violation("", "style", nil, err.Error())
	}

	semantic, err := Classify(rec.Type, style.TextStyle, style.ListStyle)
	if err != nil {
		return nil, fmt.Errorf("block %s: %w", rec.ID, err)
	}

	rawObj, err := rec.RawProperties.Object()
	if err != nil {
		return nil, violation(semantic, "rawProperties", nil, err.Error())
	}
	if keys := unexpected(rawObj, rawProperties[semantic].Union(ignoredRawProperties)); len(keys) > 0 {
		return nil, violation(semantic, "rawProperties", keys, "")
	}

	offObj, err := rec.OffSchemaProperties.Object()
	if err != nil {
		return nil, violation(semantic, "offSchemaProperties", nil, err.Error())
	}
	if keys := unexpected(offObj, offSchemaKeys); len(keys) > 0 {
		return nil, violation(semantic, "offSchemaProperties", keys, "")
	}

	if keys := unexpected(styleObj, styleProperties[semantic].Union(commonStyleKeys)); len(keys) > 0 {
		return nil, violation(semantic, "style", keys, "")
	}
	if raw, ok := styleObj["decorationStyles"]; ok && !emptyValue(raw) {
		return nil, violation(semantic, "style.decorationStyles", nil, fmt.Sprintf("expected empty value, got %s", raw))
	}
	if kerr := checkNested(styleObj, "decorations", decorationKeys); kerr != nil {
		return nil, violation(semantic, "style."+kerr.location, kerr.keys, kerr.detail)
	}
	if kerr := checkRuns(styleObj); kerr != nil {
		return nil, violation(semantic, kerr.location, kerr.keys, kerr.detail)
	}

	props, err := decodeProperties(rec.RawProperties, rawObj)
	if err != nil {
		return nil, violation(semantic, "rawProperties", nil, err.Error())
	}
	if semantic == models.TypeURL && props.URL == "" {
		return nil, violation(semantic, "rawProperties.url", nil, "url block without url")
	}

	return &models.Block{
		ID:         rec.ID,
		DocumentID: rec.DocumentID,
		RawType:    rec.Type,
		Type:       semantic,
		Content:    rec.Content,
		Children:   rec.Blocks,
		Style:      style,
		Props:      props,
	}, nil
}

func validateStyleValues(style *models.Style) error {
	return validation.ValidateStruct(style,
		validation.Field(&style.ListStyle, validation.In(listStyles...)),
		validation.Field(&style.IndentationLevel, validation.Min(0)),
	)
}

type keysError struct {
	location string
	keys     []string
	detail   string
}

func checkNested(obj map[string]json.RawMessage, key string, allowed mapset.Set[string]) *keysError {
	raw, ok := obj[key]
	if !ok || emptyValue(raw) {
		return nil
	}
	var inner map[string]json.RawMessage
	if err := json.Unmarshal(raw, &inner); err != nil {
		return &keysError{location: key, detail: err.Error()}
	}
	if keys := unexpected(inner, allowed); len(keys) > 0 {
		return &keysError{location: key, keys: keys}
	}
	return nil
}

func checkRuns(obj map[string]json.RawMessage) *keysError {
	raw, ok := obj["_runAttributes"]
	if !ok || emptyValue(raw) {
		return nil
	}
	var runs []map[string]json.RawMessage
	if err := json.Unmarshal(raw, &runs); err != nil {
		return &keysError{location: "style._runAttributes", detail: err.Error()}
	}
	for i, run := range runs {
		if keys := unexpected(run, runAttributeKey); len(keys) > 0 {
			return &keysError{location: fmt.Sprintf("style._runAttributes[%d]", i), keys: keys}
		}
		if r, ok := run["range"]; ok {
			var pair []int
			if err := json.Unmarshal(r, &pair); err != nil || len(pair) != 2 {
				return &keysError{location: fmt.Sprintf("style._runAttributes[%d].range", i), detail: "expected [start, length]"}
			}
		}
	}
	return nil
}

func decodeProperties(raw models.EmbeddedJSON, obj map[string]json.RawMessage) (models.Properties, error) {
	var props models.Properties
	if err := raw.Decode(&props); err != nil {
		return props, err
	}
	for k, v := range obj {
		if modeledProperties.Contains(k) || ignoredRawProperties.Contains(k) {
			continue
		}
		if props.Extra == nil {
			props.Extra = make(map[string]json.RawMessage)
		}
		props.Extra[k] = v
	}
	return props, nil
}
