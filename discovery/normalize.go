package discovery

import (
	"encoding/json"
	"sort"
	"strings"

	"github.com/jrsteele09/go-superset-kernel/internal/errors"
	"github.com/jrsteele09/go-superset-kernel/internal/utils"
	"github.com/mitchellh/mapstructure"
	pkgerrors "github.com/pkg/errors"
)

// Entry types.
const (
	TypeTable  = "table"
	TypeView   = "view"
	TypeSchema = "schema"
)

// Table is a normalized discovery entry, a schema or a table.
type Table struct {
	Name     string  `json:"name"`
	Type     string  `json:"type"`
	Schema   string  `json:"schema,omitempty"`
	RowCount *int64  `json:"row_count,omitempty"`
	Comment  *string `json:"comment,omitempty"`
}

// payloadKeys are the envelope keys that may hold the list, in lookup order.
var payloadKeys = []string{"result", "options", "tables", "schemas", "data"}

// rawEntry is one object-shaped item. Keys are lower-cased before decoding.
type rawEntry struct {
	Name         string         `mapstructure:"name"`
	Value        string         `mapstructure:"value"`
	Label        string         `mapstructure:"label"`
	TableName    string         `mapstructure:"table_name"`
	SchemaName   string         `mapstructure:"schema_name"`
	Database     string         `mapstructure:"database"`
	Type         string         `mapstructure:"type"`
	TableType    string         `mapstructure:"table_type"`
	Schema       string         `mapstructure:"schema"`
	TableSchema  string         `mapstructure:"table_schema"`
	TableRows    *int64         `mapstructure:"table_rows"`
	RowCount     *int64         `mapstructure:"row_count"`
	TableComment *string        `mapstructure:"table_comment"`
	Comment      *string        `mapstructure:"comment"`
	Rest         map[string]any `mapstructure:",remain"`
}

// extractItems finds the list inside a decoded body.
func extractItems(body []byte) ([]any, error) {
	var payload any
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, pkgerrors.Wrap(errors.Join(errors.ErrInvalidResponse, err), "[extractItems]")
	}
	items, ok := findList(payload, 2)
	if !ok {
		return nil, pkgerrors.Wrap(errors.ErrInvalidResponse, "[extractItems] no list in payload")
	}
	return items, nil
}

func findList(v any, depth int) ([]any, bool) {
	switch t := v.(type) {
	case []any:
		return t, true
	case map[string]any:
		if depth == 0 {
			return nil, false
		}
		for _, key := range payloadKeys {
			if inner, ok := t[key]; ok {
				if items, ok := findList(inner, depth-1); ok {
					return items, true
				}
			}
		}
	}
	return nil, false
}

// normalize converts bare strings, single-key objects and typed metadata
// objects into entries. defaultType applies when an item carries no type and
// schema fills in the schema of tables that do not name one.
func normalize(items []any, defaultType, schema string) ([]Table, error) {
	out := make([]Table, 0, len(items))
	for _, item := range items {
		entry, err := normalizeItem(item, defaultType, schema)
		if err != nil {
			return nil, err
		}
		if entry.Name == "" {
			continue
		}
		out = append(out, entry)
	}
	if len(out) == 0 && len(items) > 0 {
		return nil, pkgerrors.Wrap(errors.ErrInvalidResponse, "[normalize] no named entries")
	}
	return out, nil
}

func normalizeItem(item any, defaultType, schema string) (Table, error) {
	if s, ok := item.(string); ok {
		return Table{Name: s, Type: defaultType, Schema: schema}, nil
	}
	m, ok := item.(map[string]any)
	if !ok {
		return Table{}, pkgerrors.Wrapf(errors.ErrInvalidResponse, "[normalizeItem] unexpected item %T", item)
	}

	var raw rawEntry
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           &raw,
	})
	if err != nil {
		return Table{}, pkgerrors.Wrap(err, "[normalizeItem] decoder")
	}
	if err := decoder.Decode(utils.LowerKeys(m)); err != nil {
		return Table{}, pkgerrors.Wrap(errors.Join(errors.ErrInvalidResponse, err), "[normalizeItem]")
	}

	entry := Table{
		Name:     firstNonEmpty(raw.Name, raw.Value, raw.TableName, raw.SchemaName, raw.Database, raw.Label, singleValue(raw.Rest)),
		Type:     normalizeType(firstNonEmpty(raw.TableType, raw.Type), defaultType),
		Schema:   firstNonEmpty(raw.TableSchema, raw.Schema, schema),
		RowCount: raw.TableRows,
		Comment:  raw.TableComment,
	}
	if entry.RowCount == nil {
		entry.RowCount = raw.RowCount
	}
	if entry.Comment == nil {
		entry.Comment = raw.Comment
	}
	if defaultType == TypeSchema {
		entry.Type = TypeSchema
		entry.Schema = ""
	}
	return entry, nil
}

// singleValue reads the name out of single-key rows such as
// {"Tables_in_sales": "orders"}.
func singleValue(rest map[string]any) string {
	keys := make([]string, 0, len(rest))
	for k := range rest {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if strings.HasPrefix(k, "tables_in_") {
			if s, ok := rest[k].(string); ok {
				return s
			}
		}
	}
	if len(rest) == 1 {
		if s, ok := utils.ToString(rest[keys[0]]); ok {
			return s
		}
	}
	return ""
}

func normalizeType(raw, fallback string) string {
	t := strings.ToLower(strings.TrimSpace(raw))
	switch {
	case t == "":
		return fallback
	case t == "table", t == "base table", t == "local temporary", t == "system table":
		return TypeTable
	case strings.Contains(t, "view"):
		return TypeView
	default:
		return t
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
