package report

import (
	"log/slog"
	"net/http"
	"strings"
)

const sessionCookie = "petty_cash_session"

// Server handles HTTP requests for the report form and the records dashboard
type Server struct {
	service *Service
	auth    *Authenticator
	mux     *http.ServeMux
}

// NewServer creates a new Server with default mux
func NewServer(service *Service, auth *Authenticator) *Server {
	return NewServerWithMux(service, auth, http.NewServeMux())
}

// NewServerWithMux creates a new Server with a custom mux for testing
func NewServerWithMux(service *Service, auth *Authenticator, mux *http.ServeMux) *Server {
	s := &Server{
		service: service,
		auth:    auth,
		mux:     mux,
	}
	s.registerRoutes()
	return s
}

// sessionToken reads the token from the session cookie or a Bearer header
func sessionToken(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
	}
	if c, err := r.Cookie(sessionCookie); err == nil {
		return c.Value
	}
	return ""
}

// requireAdmin middleware
func (s *Server) requireAdmin(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		username, err := s.auth.Verify(sessionToken(r))
		if err != nil {
			setCORSHeaders(w)
			w.Header().Set("WWW-Authenticate", `Bearer realm="Prestação de Contas"`)
			writeError(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		slog.Debug("Admin request", "user", username, "method", r.Method, "path", r.URL.Path)
		next(w, r)
	}
}

// corsMiddleware adds CORS headers to responses
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		setCORSHeaders(w)

		// Handle preflight OPTIONS requests
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// setCORSHeaders sets CORS headers on a response
func setCORSHeaders(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
	w.Header().Set("Access-Control-Max-Age", "3600")
}

// registerRoutes registers all routes on the server's mux
func (s *Server) registerRoutes() {
	s.mux.Handle("GET /static/", http.StripPrefix("/static/", http.FileServerFS(staticFS())))

	// Validation and arithmetic, no session needed
	s.mux.HandleFunc("POST /api/pix/validate", s.handleValidatePix)
	s.mux.HandleFunc("POST /api/ledger/totals", s.handleTotals)
	s.mux.HandleFunc("POST /api/ledger/validate", s.handleValidateReport)

	// Report form
	s.mux.HandleFunc("GET /api/stores", s.handleListStores)
	s.mux.HandleFunc("GET /api/stores/{id}/report", s.handleStoreReport)
	s.mux.HandleFunc("POST /api/reports", s.handleSubmitReport)
	s.mux.HandleFunc("POST /api/reports/export", s.handleExportReport)
	s.mux.HandleFunc("POST /api/scan", s.handleScanProof)

	// Session
	s.mux.HandleFunc("POST /api/login", s.handleLogin)
	s.mux.HandleFunc("POST /api/logout", s.handleLogout)

	// Dashboard
	s.mux.HandleFunc("GET /api/records/export.xlsx", s.requireAdmin(s.handleRecordsSpreadsheet))
	s.mux.HandleFunc("GET /api/records/{id}/archive", s.requireAdmin(s.handleRecordArchive))
	s.mux.HandleFunc("GET /api/records/{id}/files/{path...}", s.requireAdmin(s.handleRecordFile))
	s.mux.HandleFunc("GET /api/records/{id}", s.requireAdmin(s.handleGetRecord))
	s.mux.HandleFunc("DELETE /api/records/{id}", s.requireAdmin(s.handleDeleteRecord))
	s.mux.HandleFunc("GET /api/records", s.requireAdmin(s.handleListRecords))
	s.mux.HandleFunc("POST /api/records/cleanup", s.requireAdmin(s.handleCleanup))
	s.mux.HandleFunc("PUT /api/stores", s.requireAdmin(s.handleSaveStore))
	s.mux.HandleFunc("DELETE /api/stores/{id}", s.requireAdmin(s.handleDeleteStore))

	// Pages
	s.mux.HandleFunc("GET /dashboard", s.handlePage(dashboardHTML))
	s.mux.HandleFunc("GET /{$}", s.handlePage(indexHTML))
}

// Handler returns the server's routes wrapped with CORS handling
func (s *Server) Handler() http.Handler {
	return corsMiddleware(s.mux)
}

// ServeHTTP implements http.Handler for testing
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.Handler().ServeHTTP(w, r)
}
