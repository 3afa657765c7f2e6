package discovery

import (
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/jrsteele09/go-superset-kernel/catalog"
)

// SQLPrefix marks candidates that run introspection statements instead of
// calling a listing endpoint.
const SQLPrefix = "sql:"

// REST candidates in probe order. {id} and {schema} are expanded per call so a
// resolution holds for every schema of a database.
var (
	SchemaEndpoints = []string{
		"/api/v1/database/{id}/schemas/",
		"/api/v1/database/{id}/schema/",
		"/api/v1/database/{id}/schema_names/",
	}
	LegacySchemaEndpoints = []string{
		"/superset/schemas/{id}/",
	}

	TableEndpoints = []string{
		"/api/v1/database/{id}/tables/?q={rison}",
		"/api/v1/database/{id}/table_metadata/?schema={query}",
		"/api/v1/database/{id}/table_names/?schema={query}",
	}
	LegacyTableEndpoints = []string{
		"/superset/tables/{id}/{path}/",
	}

	QueryEndpoints = []string{
		SQLPrefix + "/api/v1/sqllab/execute/",
		SQLPrefix + "/superset/sql_json/",
	}
)

func expand(template string, databaseID int, schema string) string {
	return strings.NewReplacer(
		"{id}", strconv.Itoa(databaseID),
		"{rison}", url.QueryEscape("(schema_name:"+risonString(schema)+")"),
		"{query}", url.QueryEscape(schema),
		"{path}", url.PathEscape(schema),
	).Replace(template)
}

var risonBare = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_.\-]*$`)

// risonString encodes s as a rison string, quoting it when needed.
func risonString(s string) string {
	if risonBare.MatchString(s) {
		return s
	}
	r := strings.NewReplacer("!", "!!", "'", "!'")
	return "'" + r.Replace(s) + "'"
}

func quoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

func quoteMySQLIdent(s string) string {
	return "`" + strings.ReplaceAll(s, "`", "``") + "`"
}

// schemaStatement lists schemas in the dialect's own way.
func schemaStatement(dialect string) string {
	switch dialect {
	case catalog.BackendMySQL:
		return "SHOW DATABASES"
	case catalog.BackendSQLite:
		return "PRAGMA database_list"
	default:
		return "SELECT schema_name FROM information_schema.schemata ORDER BY schema_name"
	}
}

// tableStatement lists the tables and views of schema.
func tableStatement(dialect, schema string) string {
	switch dialect {
	case catalog.BackendMySQL:
		return "SHOW TABLES FROM " + quoteMySQLIdent(schema)
	case catalog.BackendSQLite:
		return "SELECT name, type FROM sqlite_master WHERE type IN ('table', 'view') ORDER BY name"
	default:
		return fmt.Sprintf(
			"SELECT table_name, table_type, table_schema FROM information_schema.tables WHERE table_schema = %s ORDER BY table_name",
			quoteLiteral(schema),
		)
	}
}
