package document

import (
	"encoding/json"
	"sort"
	"strconv"

	"github.com/nikhilbhutani/docextract/internal/models"
)

// EncodeFields converts extraction output into its stored form.
func EncodeFields(fields map[string]models.FieldValue) (models.FieldData, error) {
	data := make(models.FieldData, len(fields))
	for name, fv := range fields {
		raw, err := json.Marshal(fv)
		if err != nil {
			return nil, err
		}
		data[name] = raw
	}
	return data, nil
}

// decodeFieldValue reads a stored field, tolerating rows written with the
// source_sentence key or with non-string values.
func decodeFieldValue(raw json.RawMessage) (models.FieldValue, bool) {
	var obj map[string]any
	if err := json.Unmarshal(raw, &obj); err != nil || obj == nil {
		return models.FieldValue{}, false
	}
	fv := models.FieldValue{
		Value:          asString(obj["value"]),
		SourceText:     asString(obj["sourceText"]),
		SourceSentence: asString(obj["sourceSentence"]),
	}
	if fv.SourceSentence == "" {
		fv.SourceSentence = asString(obj["source_sentence"])
	}
	return fv, true
}

func asString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		return ""
	}
}

func sortedKeys(data models.FieldData) []string {
	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
