package upstream

import (
	"sort"
	"strings"
)

// Backend names as reported in the database payload.
const (
	BackendPostgres = "postgresql"
	BackendMySQL    = "mysql"
	BackendSQLite   = "sqlite"
)

type Table struct {
	Name    string
	Type    string // "table" or "view"
	Rows    int64
	Comment string
}

type Database struct {
	ID      int
	Name    string
	Backend string
	Schemas map[string][]Table
}

type Column struct {
	Name string `json:"column_name"`
	Type string `json:"type"`
}

type Dataset struct {
	ID         int      `json:"id"`
	TableName  string   `json:"table_name"`
	Schema     string   `json:"schema"`
	DatabaseID int      `json:"-"`
	Columns    []Column `json:"-"`
}

type Chart struct {
	ID        int    `json:"id"`
	SliceName string `json:"slice_name"`
	VizType   string `json:"viz_type"`
	OwnerID   int    `json:"owner_id"`
}

func (d *Database) SchemaNames() []string {
	names := make([]string, 0, len(d.Schemas))
	for name := range d.Schemas {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (d *Database) Tables(schema string) ([]Table, bool) {
	tables, ok := d.Schemas[schema]
	if !ok && d.Backend == BackendSQLite && schema == "" {
		tables, ok = d.Schemas["main"]
	}
	return tables, ok
}

// defaultDatabases seeds one database per supported backend.
func defaultDatabases() map[int]*Database {
	return map[int]*Database{
		1: {
			ID: 1, Name: "examples", Backend: BackendPostgres,
			Schemas: map[string][]Table{
				"public": {
					{Name: "birth_names", Type: "table", Rows: 75691, Comment: "US baby names"},
					{Name: "flights", Type: "table", Rows: 1000},
					{Name: "names_by_state", Type: "view"},
				},
				"analytics": {
					{Name: "daily_active_users", Type: "table", Rows: 365},
				},
			},
		},
		2: {
			ID: 2, Name: "sales", Backend: BackendMySQL,
			Schemas: map[string][]Table{
				"sales": {
					{Name: "orders", Type: "table", Rows: 5000},
					{Name: "customers", Type: "table", Rows: 800},
				},
				"staging": {},
			},
		},
		3: {
			ID: 3, Name: "local", Backend: BackendSQLite,
			Schemas: map[string][]Table{
				"main": {
					{Name: "events", Type: "table"},
				},
			},
		},
	}
}

func defaultDatasets() map[int]*Dataset {
	return map[int]*Dataset{
		1: {ID: 1, TableName: "birth_names", Schema: "public", DatabaseID: 1, Columns: []Column{
			{Name: "ds", Type: "TIMESTAMP"}, {Name: "name", Type: "VARCHAR(255)"}, {Name: "num", Type: "BIGINT"},
		}},
		2: {ID: 2, TableName: "orders", Schema: "sales", DatabaseID: 2, Columns: []Column{
			{Name: "order_id", Type: "INT"}, {Name: "total", Type: "DECIMAL(10,2)"},
		}},
	}
}

// statementKind classifies an introspection statement well enough to answer it.
type statementKind int

const (
	stmtUnknown statementKind = iota
	stmtSchemas
	stmtTables
)

func classifyStatement(sql string) (statementKind, string) {
	s := strings.ToLower(strings.Join(strings.Fields(sql), " "))
	switch {
	case strings.HasPrefix(s, "show databases"), strings.HasPrefix(s, "show schemas"),
		strings.Contains(s, "information_schema.schemata"), strings.Contains(s, "pragma database_list"):
		return stmtSchemas, ""
	case strings.HasPrefix(s, "show tables"):
		return stmtTables, quotedAfter(s, " from ")
	case strings.Contains(s, "information_schema.tables"):
		return stmtTables, quotedAfter(s, "table_schema = ")
	case strings.Contains(s, "sqlite_master"):
		return stmtTables, "main"
	default:
		return stmtUnknown, ""
	}
}

// quotedAfter returns the identifier following marker, stripped of quotes.
func quotedAfter(s, marker string) string {
	idx := strings.Index(s, marker)
	if idx < 0 {
		return ""
	}
	rest := strings.TrimSpace(s[idx+len(marker):])
	rest = strings.TrimLeft(rest, "'`\"")
	end := strings.IndexAny(rest, "'`\" ;")
	if end >= 0 {
		rest = rest[:end]
	}
	return rest
}
