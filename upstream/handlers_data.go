package upstream

import (
	"encoding/json"
	"net/http"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
)

var risonSchema = regexp.MustCompile(`schema_name:'?([^,')]+)'?`)

func (s *Server) databaseFromPath(w http.ResponseWriter, r *http.Request) (*Database, bool) {
	id, err := strconv.Atoi(chi.URLParam(r, "pk"))
	if err != nil {
		writeError(w, http.StatusNotFound, "Not found")
		return nil, false
	}
	s.lock.Lock()
	db, ok := s.databases[id]
	s.lock.Unlock()
	if !ok {
		writeError(w, http.StatusNotFound, "Not found")
		return nil, false
	}
	return db, true
}

func databaseJSON(db *Database) map[string]any {
	return map[string]any{
		"id":               db.ID,
		"database_name":    db.Name,
		"backend":          db.Backend,
		"expose_in_sqllab": true,
	}
}

func (s *Server) DatabasesHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		s.lock.Lock()
		ids := make([]int, 0, len(s.databases))
		for id := range s.databases {
			ids = append(ids, id)
		}
		sort.Ints(ids)
		result := make([]map[string]any, len(ids))
		for i, id := range ids {
			result[i] = databaseJSON(s.databases[id])
		}
		s.lock.Unlock()
		writeJSON(w, http.StatusOK, map[string]any{"count": len(result), "result": result})
	}
}

func (s *Server) DatabaseHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		db, ok := s.databaseFromPath(w, r)
		if !ok {
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"id": db.ID, "result": databaseJSON(db)})
	}
}

// schemaItems encodes schema names in the configured shape.
func (s *Server) schemaItems(names []string) []any {
	items := make([]any, len(names))
	for i, n := range names {
		switch s.shape {
		case ShapeSingleKey:
			items[i] = map[string]string{"schema_name": n}
		case ShapeTyped:
			items[i] = map[string]string{"name": n, "type": "schema"}
		default:
			items[i] = n
		}
	}
	return items
}

// tableItems encodes tables in the configured shape.
func (s *Server) tableItems(schema string, tables []Table) []any {
	items := make([]any, len(tables))
	for i, t := range tables {
		switch s.shape {
		case ShapeSingleKey:
			items[i] = map[string]string{"Tables_in_" + schema: t.Name}
		case ShapeTyped:
			items[i] = map[string]any{"value": t.Name, "type": t.Type, "extra": nil}
		default:
			items[i] = t.Name
		}
	}
	return items
}

func (s *Server) SchemasHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		db, ok := s.databaseFromPath(w, r)
		if !ok {
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"result": s.schemaItems(db.SchemaNames())})
	}
}

func (s *Server) SchemaNamesHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		db, ok := s.databaseFromPath(w, r)
		if !ok {
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"result": db.SchemaNames()})
	}
}

func (s *Server) LegacySchemasHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		db, ok := s.databaseFromPath(w, r)
		if !ok {
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"schemas": db.SchemaNames()})
	}
}

func schemaParam(r *http.Request) string {
	if m := risonSchema.FindStringSubmatch(r.URL.Query().Get("q")); m != nil {
		return m[1]
	}
	if v := r.URL.Query().Get("schema"); v != "" {
		return v
	}
	return r.URL.Query().Get("schema_name")
}

func (s *Server) TablesHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		db, ok := s.databaseFromPath(w, r)
		if !ok {
			return
		}
		schema := schemaParam(r)
		tables, found := db.Tables(schema)
		if !found {
			writeError(w, http.StatusNotFound, "Schema not found")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"count": len(tables), "result": s.tableItems(schema, tables)})
	}
}

func (s *Server) TableMetadataHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		db, ok := s.databaseFromPath(w, r)
		if !ok {
			return
		}
		schema := schemaParam(r)
		tables, found := db.Tables(schema)
		if !found {
			writeError(w, http.StatusNotFound, "Schema not found")
			return
		}
		result := make([]map[string]any, len(tables))
		for i, t := range tables {
			tableType := "BASE TABLE"
			if t.Type == "view" {
				tableType = "VIEW"
			}
			row := map[string]any{
				"table_name":   t.Name,
				"table_type":   tableType,
				"table_schema": schema,
				"table_rows":   t.Rows,
			}
			if t.Comment != "" {
				row["table_comment"] = t.Comment
			}
			result[i] = row
		}
		writeJSON(w, http.StatusOK, map[string]any{"result": result})
	}
}

func (s *Server) TableNamesHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		db, ok := s.databaseFromPath(w, r)
		if !ok {
			return
		}
		tables, found := db.Tables(schemaParam(r))
		if !found {
			writeError(w, http.StatusNotFound, "Schema not found")
			return
		}
		names := make([]string, len(tables))
		for i, t := range tables {
			names[i] = t.Name
		}
		writeJSON(w, http.StatusOK, map[string]any{"result": names})
	}
}

func (s *Server) LegacyTablesHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		db, ok := s.databaseFromPath(w, r)
		if !ok {
			return
		}
		tables, found := db.Tables(chi.URLParam(r, "schema"))
		if !found {
			writeError(w, http.StatusNotFound, "Schema not found")
			return
		}
		options := make([]map[string]string, len(tables))
		for i, t := range tables {
			options[i] = map[string]string{"value": t.Name, "label": t.Name, "type": t.Type}
		}
		writeJSON(w, http.StatusOK, map[string]any{"tableLength": len(options), "options": options})
	}
}

type executeRequest struct {
	SQL        string `json:"sql"`
	DatabaseID int    `json:"database_id"`
	Schema     string `json:"schema"`
}

// ExecuteHandler answers introspection statements with rows shaped the way
// each backend returns them.
func (s *Server) ExecuteHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req executeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid payload")
			return
		}
		s.lock.Lock()
		db, ok := s.databases[req.DatabaseID]
		s.lock.Unlock()
		if !ok {
			writeError(w, http.StatusNotFound, "Database not found")
			return
		}

		kind, schema := classifyStatement(req.SQL)
		if schema == "" {
			schema = req.Schema
		}
		var rows []map[string]any
		switch kind {
		case stmtSchemas:
			rows = schemaRows(db)
		case stmtTables:
			tables, found := db.Tables(schema)
			if !found {
				writeError(w, http.StatusBadRequest, "Unknown schema "+schema)
				return
			}
			rows = tableRows(db, schema, tables)
		default:
			writeError(w, http.StatusBadRequest, "Only introspection statements are supported")
			return
		}

		columns := []map[string]string{}
		if len(rows) > 0 {
			keys := make([]string, 0, len(rows[0]))
			for k := range rows[0] {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				columns = append(columns, map[string]string{"name": k})
			}
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"status":  "success",
			"query":   map[string]any{"state": "success", "rows": len(rows)},
			"columns": columns,
			"data":    rows,
		})
	}
}

func schemaRows(db *Database) []map[string]any {
	names := db.SchemaNames()
	rows := make([]map[string]any, len(names))
	for i, n := range names {
		switch db.Backend {
		case BackendMySQL:
			rows[i] = map[string]any{"Database": n}
		case BackendSQLite:
			rows[i] = map[string]any{"seq": i, "name": n, "file": ""}
		default:
			rows[i] = map[string]any{"schema_name": n}
		}
	}
	return rows
}

func tableRows(db *Database, schema string, tables []Table) []map[string]any {
	rows := make([]map[string]any, len(tables))
	for i, t := range tables {
		switch db.Backend {
		case BackendMySQL:
			rows[i] = map[string]any{"Tables_in_" + schema: t.Name}
		case BackendSQLite:
			rows[i] = map[string]any{"name": t.Name, "type": t.Type}
		default:
			tableType := "BASE TABLE"
			if t.Type == "view" {
				tableType = "VIEW"
			}
			rows[i] = map[string]any{"table_name": t.Name, "table_type": tableType, "table_schema": schema}
		}
	}
	return rows
}

func (s *Server) DatasetsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		s.lock.Lock()
		ids := make([]int, 0, len(s.datasets))
		for id := range s.datasets {
			ids = append(ids, id)
		}
		sort.Ints(ids)
		result := make([]map[string]any, len(ids))
		for i, id := range ids {
			ds := s.datasets[id]
			result[i] = map[string]any{
				"id":         ds.ID,
				"table_name": ds.TableName,
				"schema":     ds.Schema,
				"database":   map[string]any{"id": ds.DatabaseID, "database_name": s.databases[ds.DatabaseID].Name},
			}
		}
		s.lock.Unlock()
		writeJSON(w, http.StatusOK, map[string]any{"count": len(result), "result": result})
	}
}

func (s *Server) DatasetHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, _ := strconv.Atoi(chi.URLParam(r, "pk"))
		s.lock.Lock()
		ds, ok := s.datasets[id]
		s.lock.Unlock()
		if !ok {
			writeError(w, http.StatusNotFound, "Not found")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"id": ds.ID, "result": map[string]any{
			"id":         ds.ID,
			"table_name": ds.TableName,
			"schema":     ds.Schema,
			"columns":    ds.Columns,
		}})
	}
}

func (s *Server) ChartsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		s.lock.Lock()
		ids := make([]int, 0, len(s.charts))
		for id := range s.charts {
			ids = append(ids, id)
		}
		sort.Ints(ids)
		result := make([]*Chart, len(ids))
		for i, id := range ids {
			c := *s.charts[id]
			result[i] = &c
		}
		s.lock.Unlock()
		writeJSON(w, http.StatusOK, map[string]any{"count": len(result), "result": result})
	}
}

func (s *Server) CreateChartHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var c Chart
		if err := json.NewDecoder(r.Body).Decode(&c); err != nil || strings.TrimSpace(c.SliceName) == "" {
			writeError(w, http.StatusBadRequest, "slice_name is required")
			return
		}
		c.OwnerID = principalFrom(r.Context()).user.ID
		s.lock.Lock()
		c.ID = s.nextChartID
		s.nextChartID++
		s.charts[c.ID] = &c
		s.lock.Unlock()
		writeJSON(w, http.StatusCreated, map[string]any{"id": c.ID, "result": c})
	}
}

func (s *Server) UpdateChartHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, _ := strconv.Atoi(chi.URLParam(r, "pk"))
		var patch Chart
		if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
			writeError(w, http.StatusBadRequest, "invalid payload")
			return
		}
		s.lock.Lock()
		defer s.lock.Unlock()
		c, ok := s.charts[id]
		if !ok {
			writeError(w, http.StatusNotFound, "Not found")
			return
		}
		if patch.SliceName != "" {
			c.SliceName = patch.SliceName
		}
		if patch.VizType != "" {
			c.VizType = patch.VizType
		}
		writeJSON(w, http.StatusOK, map[string]any{"id": c.ID, "result": c})
	}
}

func (s *Server) DeleteChartHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, _ := strconv.Atoi(chi.URLParam(r, "pk"))
		s.lock.Lock()
		_, ok := s.charts[id]
		delete(s.charts, id)
		s.lock.Unlock()
		if !ok {
			writeError(w, http.StatusNotFound, "Not found")
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"message": "OK"})
	}
}

// ChartCount reports how many charts exist, for mutation tests.
func (s *Server) ChartCount() int {
	s.lock.Lock()
	defer s.lock.Unlock()
	return len(s.charts)
}

func (s *Server) DashboardsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"count": 0, "result": []any{}})
	}
}
