package upstream

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// Route patterns served by the fake platform.
const (
	RouteHealth        = "/health"
	RouteLogin         = "/api/v1/security/login"
	RouteRefresh       = "/api/v1/security/refresh"
	RouteCSRF          = "/api/v1/security/csrf_token/"
	RouteLogout        = "/api/v1/security/logout"
	RouteMe            = "/api/v1/me/"
	RouteMeRoles       = "/api/v1/me/roles/"
	RouteRoles         = "/api/v1/security/roles/"
	RoutePermissions   = "/api/v1/security/permissions/"
	RouteUsers         = "/api/v1/security/users/"
	RouteDatabases     = "/api/v1/database/"
	RouteDatabase      = "/api/v1/database/{pk}"
	RouteSchemas       = "/api/v1/database/{pk}/schemas/"
	RouteSchemaNames   = "/api/v1/database/{pk}/schema_names/"
	RouteTables        = "/api/v1/database/{pk}/tables/"
	RouteTableMetadata = "/api/v1/database/{pk}/table_metadata/"
	RouteTableNames    = "/api/v1/database/{pk}/table_names/"
	RouteLegacySchemas = "/superset/schemas/{pk}/"
	RouteLegacyTables  = "/superset/tables/{pk}/{schema}/"
	RouteSQLLabExecute = "/api/v1/sqllab/execute/"
	RouteLegacySQLJSON = "/superset/sql_json/"
	RouteDatasets      = "/api/v1/dataset/"
	RouteDataset       = "/api/v1/dataset/{pk}"
	RouteCharts        = "/api/v1/chart/"
	RouteChart         = "/api/v1/chart/{pk}"
	RouteDashboards    = "/api/v1/dashboard/"
)

func (s *Server) initRoutes() {
	r := chi.NewRouter()
	r.Use(s.RecoverMiddleware)
	r.Use(s.LoggingMiddleware)
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "Not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "Method Not Allowed")
	})
	s.router = r

	s.handle(http.MethodGet, RouteHealth, s.HealthHandler())

	// Security
	s.handle(http.MethodPost, RouteLogin, s.LoginHandler())
	s.handle(http.MethodPost, RouteRefresh, s.RefreshHandler())
	s.handle(http.MethodGet, RouteCSRF, s.RequireAccess(s.CSRFHandler()))
	s.handle(http.MethodPost, RouteLogout, s.RequireAccess(s.LogoutHandler()))
	s.handle(http.MethodGet, RouteMe, s.RequireAccess(s.MeHandler()))
	s.handle(http.MethodGet, RouteMeRoles, s.RequireAccess(s.MeRolesHandler()))
	s.handle(http.MethodGet, RouteRoles, s.RequireAccess(s.RequireRole(s.RolesHandler(), "Admin")))
	s.handle(http.MethodGet, RoutePermissions, s.RequireAccess(s.RequireRole(s.PermissionsHandler(), "Admin")))
	s.handle(http.MethodGet, RouteUsers, s.RequireAccess(s.RequireRole(s.UsersHandler(), "Admin")))

	// Databases and discovery
	s.handle(http.MethodGet, RouteDatabases, s.RequireAccess(s.DatabasesHandler()))
	s.handle(http.MethodGet, RouteDatabase, s.RequireAccess(s.DatabaseHandler()))
	s.handle(http.MethodGet, RouteSchemas, s.RequireAccess(s.SchemasHandler()))
	s.handle(http.MethodGet, RouteSchemaNames, s.RequireAccess(s.SchemaNamesHandler()))
	s.handle(http.MethodGet, RouteTables, s.RequireAccess(s.TablesHandler()))
	s.handle(http.MethodGet, RouteTableMetadata, s.RequireAccess(s.TableMetadataHandler()))
	s.handle(http.MethodGet, RouteTableNames, s.RequireAccess(s.TableNamesHandler()))
	s.handle(http.MethodGet, RouteLegacySchemas, s.RequireAccess(s.LegacySchemasHandler()))
	s.handle(http.MethodGet, RouteLegacyTables, s.RequireAccess(s.LegacyTablesHandler()))
	s.handle(http.MethodPost, RouteSQLLabExecute, s.RequireAccess(s.ExecuteHandler()))
	s.handle(http.MethodPost, RouteLegacySQLJSON, s.RequireAccess(s.ExecuteHandler()))

	// Datasets, charts, dashboards
	s.handle(http.MethodGet, RouteDatasets, s.RequireAccess(s.DatasetsHandler()))
	s.handle(http.MethodGet, RouteDataset, s.RequireAccess(s.DatasetHandler()))
	s.handle(http.MethodGet, RouteCharts, s.RequireAccess(s.ChartsHandler()))
	s.handle(http.MethodPost, RouteCharts, s.RequireAccess(s.RequireCSRF(s.CreateChartHandler())))
	s.handle(http.MethodPut, RouteChart, s.RequireAccess(s.RequireCSRF(s.UpdateChartHandler())))
	s.handle(http.MethodDelete, RouteChart, s.RequireAccess(s.RequireCSRF(s.DeleteChartHandler())))
	s.handle(http.MethodGet, RouteDashboards, s.RequireAccess(s.DashboardsHandler()))

	s.logRoutes()
}

func (s *Server) logRoutes() {
	for _, route := range s.routes {
		s.logger.Debug().Str("route", route).Msg("registered")
	}
}
