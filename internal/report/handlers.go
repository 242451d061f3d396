package report

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/zombor/petty-cash/internal/ledger"
	"github.com/zombor/petty-cash/internal/pix"
)

// maxFormSize bounds multipart uploads; phone photos of receipts are large
const maxFormSize = int64(50 << 20)

// maxJSONSize bounds the JSON bodies of the non-upload endpoints
const maxJSONSize = int64(1 << 20)

const uploadFieldPrefix = "item-"

// writeJSON writes v as a JSON response with the given status
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Error encoding response", "error", err)
	}
}

// writeError writes an error response with CORS headers set
func writeError(w http.ResponseWriter, message string, code int) {
	setCORSHeaders(w)
	writeJSON(w, code, map[string]string{"error": message})
}

// decodeJSON reads a bounded JSON body into v, writing the error response
// and returning false when it cannot
func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONSize)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, "Request body is too large", http.StatusRequestEntityTooLarge)
			return false
		}
		writeError(w, "Invalid request body", http.StatusBadRequest)
		return false
	}
	return true
}

// writeServiceError maps service errors to status codes
func writeServiceError(w http.ResponseWriter, err error) {
	var verr *ledger.ValidationError
	switch {
	case errors.As(err, &verr):
		setCORSHeaders(w)
		writeJSON(w, http.StatusUnprocessableEntity, map[string]interface{}{
			"error":    verr.Error(),
			"problems": verr.Problems,
		})
	case errors.Is(err, ErrNotFound):
		writeError(w, "Not found", http.StatusNotFound)
	case errors.Is(err, ErrUnknownItem), errors.Is(err, ErrInvalidStore):
		writeError(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, ErrScannerDisabled):
		writeError(w, err.Error(), http.StatusServiceUnavailable)
	default:
		slog.Error("Request failed", "error", err)
		writeError(w, "Internal server error", http.StatusInternalServerError)
	}
}

// handlePage serves an embedded HTML page
func (s *Server) handlePage(page []byte) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write(page)
	}
}

// handleValidatePix classifies a payout key
func (s *Server) handleValidatePix(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Key string `json:"key"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	c := pix.Classify(req.Key)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"kind":      c.Kind,
		"label":     c.Kind.Label(),
		"valid":     c.Valid(),
		"reason":    c.Reason,
		"formatted": pix.Format(req.Key),
	})
}

// handleTotals computes consumed and balance for a fund and its items
func (s *Server) handleTotals(w http.ResponseWriter, r *http.Request) {
	var req struct {
		DisbursedFund ledger.Money      `json:"disbursed_fund"`
		Items         []ledger.LineItem `json:"items"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	totals := ledger.ComputeTotals(req.DisbursedFund, req.Items)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"consumed":      totals.Consumed,
		"balance":       totals.Balance,
		"usage_percent": ledger.UsagePercent(req.DisbursedFund, totals.Consumed),
		"next_item_id":  ledger.NextLineItemID(req.Items),
	})
}

// handleValidateReport reports every completeness problem of a report
func (s *Server) handleValidateReport(w http.ResponseWriter, r *http.Request) {
	var report ledger.Draft
	if !decodeJSON(w, r, &report) {
		return
	}

	result := report.Validate()
	problems := result.Problems
	if problems == nil {
		problems = []ledger.Problem{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"ok":       result.OK(),
		"problems": problems,
		"totals":   report.Totals(),
	})
}

// handleListStores returns the stores reference table
func (s *Server) handleListStores(w http.ResponseWriter, r *http.Request) {
	stores, err := s.service.ListStores()
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stores)
}

// handleStoreReport returns a fresh report pre-filled from a store
func (s *Server) handleStoreReport(w http.ResponseWriter, r *http.Request) {
	report, err := s.service.StoreReport(r.PathValue("id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// contentTypeFor determines an upload's content type, falling back to its extension
func contentTypeFor(header *multipart.FileHeader) string {
	contentType := strings.ToLower(strings.TrimSpace(header.Header.Get("Content-Type")))
	if contentType != "" && contentType != "application/octet-stream" {
		return contentType
	}
	switch strings.ToLower(filepath.Ext(header.Filename)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".gif":
		return "image/gif"
	case ".pdf":
		return "application/pdf"
	case ".heic":
		return "image/heic"
	case ".heif":
		return "image/heif"
	}
	return "application/octet-stream"
}

func readUpload(header *multipart.FileHeader) ([]byte, error) {
	f, err := header.Open()
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", header.Filename, err)
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", header.Filename, err)
	}
	return data, nil
}

// parseReportForm reads the "report" JSON field and the proof files, which
// are sent under "item-{id}" field names
func parseReportForm(w http.ResponseWriter, r *http.Request) (ledger.Draft, []Upload, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, maxFormSize)
	if err := r.ParseMultipartForm(maxFormSize); err != nil {
		slog.Error("Error parsing multipart form", "error", err)
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, "Files are too large. Maximum total size is 50MB.", http.StatusRequestEntityTooLarge)
		} else {
			writeError(w, "Error parsing form", http.StatusBadRequest)
		}
		return ledger.Draft{}, nil, false
	}

	var report ledger.Draft
	if err := json.Unmarshal([]byte(r.FormValue("report")), &report); err != nil {
		writeError(w, "Invalid report JSON", http.StatusBadRequest)
		return ledger.Draft{}, nil, false
	}

	var uploads []Upload
	for field, headers := range r.MultipartForm.File {
		if !strings.HasPrefix(field, uploadFieldPrefix) {
			continue
		}
		itemID, err := strconv.Atoi(strings.TrimPrefix(field, uploadFieldPrefix))
		if err != nil {
			writeError(w, fmt.Sprintf("Invalid file field %q", field), http.StatusBadRequest)
			return ledger.Draft{}, nil, false
		}
		for _, header := range headers {
			data, err := readUpload(header)
			if err != nil {
				slog.Error("Error reading file data", "error", err, "filename", header.Filename)
				writeError(w, "Error reading file. Please try again.", http.StatusInternalServerError)
				return ledger.Draft{}, nil, false
			}
			uploads = append(uploads, Upload{
				ItemID:      itemID,
				Name:        header.Filename,
				ContentType: contentTypeFor(header),
				Data:        data,
			})
		}
	}
	return report, uploads, true
}

// handleSubmitReport validates and stores a report with its proofs
func (s *Server) handleSubmitReport(w http.ResponseWriter, r *http.Request) {
	report, uploads, ok := parseReportForm(w, r)
	if !ok {
		return
	}

	record, err := s.service.Submit(r.Context(), report, uploads)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, record)
}

// handleExportReport streams the ZIP of a report without storing it
func (s *Server) handleExportReport(w http.ResponseWriter, r *http.Request) {
	report, uploads, ok := parseReportForm(w, r)
	if !ok {
		return
	}

	data, filename, err := s.service.Export(r.Context(), report, uploads)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeAttachment(w, "application/zip", filename, data)
}

// handleScanProof suggests line item fields from an uploaded proof
func (s *Server) handleScanProof(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxFormSize)
	if err := r.ParseMultipartForm(maxFormSize); err != nil {
		writeError(w, "Error parsing form", http.StatusBadRequest)
		return
	}
	headers := r.MultipartForm.File["file"]
	if len(headers) == 0 {
		writeError(w, "No file was selected. Please choose a file to upload.", http.StatusBadRequest)
		return
	}
	header := headers[0]
	data, err := readUpload(header)
	if err != nil {
		writeError(w, "Error reading file. Please try again.", http.StatusInternalServerError)
		return
	}

	proof, err := s.service.ScanProof(r.Context(), data, contentTypeFor(header))
	if err != nil {
		if errors.Is(err, ErrScannerDisabled) {
			writeServiceError(w, err)
			return
		}
		writeError(w, err.Error(), http.StatusBadGateway)
		return
	}
	writeJSON(w, http.StatusOK, proof)
}

// handleLogin exchanges admin credentials for a session
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	token, expires, err := s.auth.Login(req.Username, req.Password)
	if errors.Is(err, ErrInvalidCredentials) {
		slog.Warn("Failed login", "username", req.Username)
		writeError(w, "Invalid username or password", http.StatusUnauthorized)
		return
	}
	if err != nil {
		writeServiceError(w, err)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    token,
		Path:     "/",
		Expires:  expires,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   r.TLS != nil,
	})
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"token":      token,
		"expires_at": expires.UTC().Format(time.RFC3339),
	})
}

// handleLogout clears the session cookie
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	w.WriteHeader(http.StatusNoContent)
}

// filterFromQuery reads store, holder, start and end query parameters
func filterFromQuery(r *http.Request) (Filter, error) {
	q := r.URL.Query()
	f := Filter{
		Store:  strings.TrimSpace(q.Get("store")),
		Holder: strings.TrimSpace(q.Get("holder")),
	}
	for _, p := range []struct {
		name string
		dst  *ledger.Date
	}{{"start", &f.Start}, {"end", &f.End}} {
		v := strings.TrimSpace(q.Get(p.name))
		if v == "" {
			continue
		}
		d, err := ledger.ParseDate(v)
		if err != nil {
			return Filter{}, fmt.Errorf("invalid %s date: %w", p.name, err)
		}
		*p.dst = d
	}
	return f, nil
}

// handleListRecords returns the filtered records, newest first
func (s *Server) handleListRecords(w http.ResponseWriter, r *http.Request) {
	filter, err := filterFromQuery(r)
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	records, err := s.service.ListRecords(filter)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, records)
}

// handleRecordsSpreadsheet downloads the filtered records as XLSX
func (s *Server) handleRecordsSpreadsheet(w http.ResponseWriter, r *http.Request) {
	filter, err := filterFromQuery(r)
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	data, err := s.service.RecordsSpreadsheet(filter)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	filename := fmt.Sprintf("PRESTACOES_%s.xlsx", s.service.Today())
	writeAttachment(w, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", filename, data)
}

// handleGetRecord returns a single record
func (s *Server) handleGetRecord(w http.ResponseWriter, r *http.Request) {
	record, err := s.service.GetRecord(r.PathValue("id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

// handleDeleteRecord deletes a record and its files
func (s *Server) handleDeleteRecord(w http.ResponseWriter, r *http.Request) {
	if err := s.service.DeleteRecord(r.PathValue("id")); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleRecordArchive downloads a record's PDF and proofs as a ZIP
func (s *Server) handleRecordArchive(w http.ResponseWriter, r *http.Request) {
	data, filename, err := s.service.RecordArchive(r.PathValue("id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeAttachment(w, "application/zip", filename, data)
}

// handleRecordFile streams one stored file of a record
func (s *Server) handleRecordFile(w http.ResponseWriter, r *http.Request) {
	data, contentType, err := s.service.RecordFile(r.PathValue("id"), r.PathValue("path"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.Write(data)
}

// handleCleanup deletes records older than the days query parameter
func (s *Server) handleCleanup(w http.ResponseWriter, r *http.Request) {
	days := 30
	if v := r.URL.Query().Get("days"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, "days must be a non-negative integer", http.StatusBadRequest)
			return
		}
		days = n
	}

	removed, err := s.service.CleanupOlderThan(days)
	if err != nil {
		slog.Error("Error cleaning up records", "days", days, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]interface{}{
			"error":   "Some records could not be deleted",
			"removed": removed,
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"removed": removed})
}

// handleSaveStore creates or replaces a store
func (s *Server) handleSaveStore(w http.ResponseWriter, r *http.Request) {
	var store Store
	if !decodeJSON(w, r, &store) {
		return
	}
	saved, err := s.service.SaveStore(&store)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, saved)
}

// handleDeleteStore removes a store
func (s *Server) handleDeleteStore(w http.ResponseWriter, r *http.Request) {
	if err := s.service.DeleteStore(r.PathValue("id")); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeAttachment(w http.ResponseWriter, contentType, filename string, data []byte) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Write(data)
}
