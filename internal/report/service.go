package report

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/zombor/petty-cash/internal/export"
	"github.com/zombor/petty-cash/internal/ledger"
	"github.com/zombor/petty-cash/internal/scanning"
)

// DefaultRetentionDays is how long submitted records are kept
const DefaultRetentionDays = 120

var (
	// ErrScannerDisabled is returned by ScanProof when no scanner is configured
	ErrScannerDisabled = errors.New("proof scanning is not configured")

	// ErrUnknownItem is returned when an upload names a line item the report does not have
	ErrUnknownItem = errors.New("attachment for unknown line item")
)

// IDGenerator generates unique IDs for records and stores
type IDGenerator interface {
	Generate() string
}

// TimeSource provides the current time
type TimeSource interface {
	Now() time.Time
}

// uuidGenerator generates time-ordered UUIDv7 IDs
type uuidGenerator struct{}

func (g *uuidGenerator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}

// defaultTimeSource provides the current time
type defaultTimeSource struct{}

func (t *defaultTimeSource) Now() time.Time {
	return time.Now()
}

// Upload is a proof file sent with a report, keyed to its line item
type Upload struct {
	ItemID      int
	Name        string
	ContentType string
	Data        []byte
}

// Service handles report submission, export and the records dashboard
type Service struct {
	db            DB
	scanner       scanning.Scanner
	storage       Storage
	idGenerator   IDGenerator
	timeSource    TimeSource
	convert       export.Converter
	retentionDays int
}

// NewService creates a new Service with default ID generator and time source.
// scanner may be nil, which disables ScanProof.
func NewService(db DB, scanner scanning.Scanner, storage Storage) *Service {
	return NewServiceWithDeps(db, scanner, storage, &uuidGenerator{}, &defaultTimeSource{})
}

// NewServiceWithDeps creates a new Service with custom dependencies for testing
func NewServiceWithDeps(db DB, scanner scanning.Scanner, storage Storage, idGen IDGenerator, timeSrc TimeSource) *Service {
	return &Service{
		db:            db,
		scanner:       scanner,
		storage:       storage,
		idGenerator:   idGen,
		timeSource:    timeSrc,
		convert:       scanning.ToPNG,
		retentionDays: DefaultRetentionDays,
	}
}

// SetRetentionDays changes how many days records are kept before a
// submission purges them. Zero or less disables the purge.
func (s *Service) SetRetentionDays(days int) {
	s.retentionDays = days
}

// Today returns the current calendar date
func (s *Service) Today() ledger.Date {
	return ledger.DateOf(s.timeSource.Now())
}

// prepare attaches the uploads to their items and validates the report.
// Attachments sent in the report body are ignored; only uploaded files count.
// Proofs are returned in item order, then upload order.
func (s *Service) prepare(r ledger.Draft, uploads []Upload) (ledger.Draft, []export.Proof, error) {
	r.Items = append([]ledger.LineItem(nil), r.Items...)
	r.AssignMissingIDs()

	byItem := make(map[int][]Upload, len(uploads))
	for _, u := range uploads {
		if _, ok := r.Item(u.ItemID); !ok {
			return ledger.Draft{}, nil, fmt.Errorf("%w: %d", ErrUnknownItem, u.ItemID)
		}
		byItem[u.ItemID] = append(byItem[u.ItemID], u)
	}

	proofs := make([]export.Proof, 0, len(uploads))
	for i := range r.Items {
		item := &r.Items[i]
		item.Attachments = make([]ledger.Attachment, 0, len(byItem[item.ID]))
		for _, u := range byItem[item.ID] {
			name := sanitizeFilename(u.Name)
			item.Attachments = append(item.Attachments, ledger.Attachment{
				Name:        name,
				ContentType: u.ContentType,
				Size:        int64(len(u.Data)),
			})
			proofs = append(proofs, export.Proof{
				ItemID:      item.ID,
				Name:        name,
				ContentType: u.ContentType,
				Data:        u.Data,
			})
		}
	}

	if err := r.Validate().Err(); err != nil {
		return ledger.Draft{}, nil, err
	}
	return r, proofs, nil
}

func (s *Service) renderPDF(snapshot export.Snapshot, proofs []export.Proof) ([]byte, error) {
	var buf bytes.Buffer
	if err := export.PDF(&buf, snapshot, proofs, s.convert); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Export validates the report and bundles its PDF and proofs into a ZIP
// without storing anything. It returns the archive and its download name.
func (s *Service) Export(ctx context.Context, r ledger.Draft, uploads []Upload) ([]byte, string, error) {
	prepared, proofs, err := s.prepare(r, uploads)
	if err != nil {
		return nil, "", err
	}
	if err := ctx.Err(); err != nil {
		return nil, "", err
	}

	snapshot := export.Snapshot{
		Header: prepared.Header,
		Items:  prepared.Items,
		Totals: prepared.Totals(),
	}
	pdf, err := s.renderPDF(snapshot, proofs)
	if err != nil {
		return nil, "", fmt.Errorf("rendering report: %w", err)
	}

	entries := []export.ZipEntry{{Name: "relatorio.pdf", Data: pdf}}
	k := 0
	for i, item := range prepared.Items {
		for fi, att := range item.Attachments {
			entries = append(entries, export.ZipEntry{
				Name: fmt.Sprintf("comprovantes/item_%d_%d_%s", i+1, fi, att.Name),
				Data: proofs[k].Data,
			})
			k++
		}
	}

	var buf bytes.Buffer
	if err := export.Zip(&buf, entries); err != nil {
		return nil, "", fmt.Errorf("bundling report: %w", err)
	}

	filename := fmt.Sprintf("PRESTACAO_%s_%s.zip", fileLabel(prepared.Header.Store), prepared.Header.ReportDate)
	return buf.Bytes(), filename, nil
}

// Submit validates the report, stores its PDF and proofs and saves the record.
// Old records are purged first. If anything fails, files written so far are removed.
func (s *Service) Submit(ctx context.Context, r ledger.Draft, uploads []Upload) (*Record, error) {
	prepared, proofs, err := s.prepare(r, uploads)
	if err != nil {
		return nil, err
	}

	if s.retentionDays > 0 {
		removed, err := s.CleanupOlderThan(s.retentionDays)
		if err != nil {
			slog.Warn("Failed to purge old records", "days", s.retentionDays, "error", err)
		} else if removed > 0 {
			slog.Info("Purged old records", "count", removed, "days", s.retentionDays)
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	now := s.timeSource.Now()
	ts := now.UnixMilli()
	record := &Record{
		ID:        s.idGenerator.Generate(),
		Header:    prepared.Header,
		Items:     prepared.Items,
		Totals:    prepared.Totals(),
		CreatedAt: now,
	}

	pdf, err := s.renderPDF(record.Snapshot(), proofs)
	if err != nil {
		return nil, fmt.Errorf("rendering report: %w", err)
	}

	var written []string
	rollback := func() {
		for _, path := range written {
			if err := s.storage.Delete(path); err != nil {
				slog.Warn("Failed to delete file", "path", path, "error", err)
			}
		}
	}

	pdfPath, err := s.storage.Save(
		fmt.Sprintf("relatorios/PRESTACAO_%s_%s_%d.pdf", fileLabel(record.Header.Store), record.Header.ReportDate, ts),
		pdf,
	)
	if err != nil {
		return nil, fmt.Errorf("saving report PDF: %w", err)
	}
	written = append(written, pdfPath)
	record.PDFPath = pdfPath

	used := make(map[string]bool)
	k := 0
	for i := range record.Items {
		item := &record.Items[i]
		for j := range item.Attachments {
			att := &item.Attachments[j]
			path := fmt.Sprintf("anexos/%d_%d_%s", ts, item.ID, att.Name)
			if used[path] {
				path = fmt.Sprintf("anexos/%d_%d_%d_%s", ts, item.ID, j, att.Name)
			}
			used[path] = true

			saved, err := s.storage.Save(path, proofs[k].Data)
			if err != nil {
				rollback()
				return nil, fmt.Errorf("saving attachment %s: %w", att.Name, err)
			}
			written = append(written, saved)
			att.Path = saved
			k++
		}
	}

	if err := s.db.SaveRecord(record); err != nil {
		rollback()
		return nil, fmt.Errorf("saving record to database: %w", err)
	}

	slog.Info("Report submitted", "id", record.ID, "store", record.Header.Store, "items", len(record.Items))
	return record, nil
}

// GetRecord retrieves a record by ID
func (s *Service) GetRecord(id string) (*Record, error) {
	record, err := s.db.GetRecord(id)
	if err != nil {
		return nil, fmt.Errorf("getting record: %w", err)
	}
	return record, nil
}

// ListRecords returns the records matching the filter, newest first
func (s *Service) ListRecords(filter Filter) ([]*Record, error) {
	all, err := s.db.ListRecords()
	if err != nil {
		return nil, fmt.Errorf("listing records: %w", err)
	}

	records := make([]*Record, 0, len(all))
	for _, r := range all {
		if filter.Match(r) {
			records = append(records, r)
		}
	}
	sort.SliceStable(records, func(i, j int) bool {
		if !records[i].CreatedAt.Equal(records[j].CreatedAt) {
			return records[i].CreatedAt.After(records[j].CreatedAt)
		}
		return records[i].ID > records[j].ID
	})
	return records, nil
}

// recordPaths lists the stored files of a record
func recordPaths(r *Record) []string {
	var paths []string
	if r.PDFPath != "" {
		paths = append(paths, r.PDFPath)
	}
	for _, item := range r.Items {
		for _, att := range item.Attachments {
			if att.Path != "" {
				paths = append(paths, att.Path)
			}
		}
	}
	return paths
}

func (s *Service) deleteRecord(r *Record) error {
	for _, path := range recordPaths(r) {
		if err := s.storage.Delete(path); err != nil {
			slog.Warn("Failed to delete file", "record", r.ID, "path", path, "error", err)
		}
	}
	if err := s.db.DeleteRecord(r.ID); err != nil {
		return fmt.Errorf("deleting record from database: %w", err)
	}
	return nil
}

// DeleteRecord removes a record and its files
func (s *Service) DeleteRecord(id string) error {
	record, err := s.db.GetRecord(id)
	if err != nil {
		return fmt.Errorf("getting record for deletion: %w", err)
	}
	return s.deleteRecord(record)
}

// CleanupOlderThan deletes records whose report date is more than days
// before today, with their files. Records without a report date are aged by
// their creation time. It returns how many records were deleted.
func (s *Service) CleanupOlderThan(days int) (int, error) {
	if days < 0 {
		return 0, fmt.Errorf("retention must not be negative: %d", days)
	}
	records, err := s.db.ListRecords()
	if err != nil {
		return 0, fmt.Errorf("listing records: %w", err)
	}

	cutoff := s.Today().AddDays(-days)
	var (
		removed int
		errs    []error
	)
	for _, r := range records {
		date := r.Header.ReportDate
		if date.IsZero() {
			date = ledger.DateOf(r.CreatedAt)
		}
		if !date.Before(cutoff) {
			continue
		}
		if err := s.deleteRecord(r); err != nil {
			errs = append(errs, fmt.Errorf("record %s: %w", r.ID, err))
			continue
		}
		removed++
	}
	return removed, errors.Join(errs...)
}

// RecordArchive bundles a stored record's PDF and proofs into a ZIP and
// returns it with its download name. Proofs that cannot be read are skipped.
func (s *Service) RecordArchive(id string) ([]byte, string, error) {
	record, err := s.db.GetRecord(id)
	if err != nil {
		return nil, "", fmt.Errorf("getting record: %w", err)
	}
	label := fileLabel(record.Header.Store)

	pdf, err := s.storage.Get(record.PDFPath)
	if err != nil {
		return nil, "", fmt.Errorf("getting report PDF: %w", err)
	}
	entries := []export.ZipEntry{{Name: fmt.Sprintf("RELATORIO_%s_%s.pdf", label, record.ID), Data: pdf}}

	used := make(map[string]bool)
	for _, item := range record.Items {
		for j, att := range item.Attachments {
			if att.Path == "" {
				continue
			}
			data, err := s.storage.Get(att.Path)
			if err != nil {
				slog.Warn("Skipping unreadable attachment", "record", record.ID, "path", att.Path, "error", err)
				continue
			}
			name := fmt.Sprintf("comprovantes/item_%d_%s", item.ID, att.Name)
			if used[name] {
				name = fmt.Sprintf("comprovantes/item_%d_%d_%s", item.ID, j, att.Name)
			}
			used[name] = true
			entries = append(entries, export.ZipEntry{Name: name, Data: data})
		}
	}

	var buf bytes.Buffer
	if err := export.Zip(&buf, entries); err != nil {
		return nil, "", fmt.Errorf("bundling record: %w", err)
	}
	return buf.Bytes(), fmt.Sprintf("ARQUIVOS_%s_%s.zip", label, record.ID), nil
}

// RecordFile returns one stored file of a record, either its PDF or one of
// its proofs, with the file's content type
func (s *Service) RecordFile(id, path string) ([]byte, string, error) {
	record, err := s.db.GetRecord(id)
	if err != nil {
		return nil, "", fmt.Errorf("getting record: %w", err)
	}

	if !recordHasPath(record, path) {
		return nil, "", fmt.Errorf("file %q of record %s: %w", path, id, ErrNotFound)
	}

	contentType := "application/octet-stream"
	if path == record.PDFPath {
		contentType = "application/pdf"
	}
	for _, item := range record.Items {
		for _, att := range item.Attachments {
			if att.Path == path && att.ContentType != "" {
				contentType = att.ContentType
			}
		}
	}

	data, err := s.storage.Get(path)
	if err != nil {
		return nil, "", fmt.Errorf("getting record file: %w", err)
	}
	return data, contentType, nil
}

func recordHasPath(r *Record, path string) bool {
	for _, p := range recordPaths(r) {
		if p == path {
			return true
		}
	}
	return false
}

// RecordsSpreadsheet renders the matching records as an XLSX workbook
func (s *Service) RecordsSpreadsheet(filter Filter) ([]byte, error) {
	records, err := s.ListRecords(filter)
	if err != nil {
		return nil, err
	}
	snapshots := make([]export.Snapshot, len(records))
	for i, r := range records {
		snapshots[i] = r.Snapshot()
	}

	var buf bytes.Buffer
	if err := export.Spreadsheet(&buf, snapshots); err != nil {
		return nil, fmt.Errorf("rendering spreadsheet: %w", err)
	}
	return buf.Bytes(), nil
}

// ScanProof suggests line item fields read from a proof
func (s *Service) ScanProof(ctx context.Context, data []byte, contentType string) (*scanning.ProofData, error) {
	if s.scanner == nil {
		return nil, ErrScannerDisabled
	}
	proof, err := s.scanner.ScanProof(ctx, data, contentType)
	if err != nil {
		slog.Error("Failed to scan proof",
			"content_type", contentType,
			"file_size", len(data),
			"error", err,
		)
		return nil, fmt.Errorf("scanning proof: %w", err)
	}
	return proof, nil
}

// ListStores returns all stores sorted by name
func (s *Service) ListStores() ([]*Store, error) {
	stores, err := s.db.ListStores()
	if err != nil {
		return nil, fmt.Errorf("listing stores: %w", err)
	}
	sort.SliceStable(stores, func(i, j int) bool {
		return strings.ToLower(stores[i].Name) < strings.ToLower(stores[j].Name)
	})
	return stores, nil
}

// GetStore retrieves a store by ID
func (s *Service) GetStore(id string) (*Store, error) {
	store, err := s.db.GetStore(id)
	if err != nil {
		return nil, fmt.Errorf("getting store: %w", err)
	}
	return store, nil
}

// SaveStore creates or replaces a store. A store without an ID gets a new one.
func (s *Service) SaveStore(store *Store) (*Store, error) {
	clean := *store
	clean.Name = strings.TrimSpace(clean.Name)
	clean.Manager = strings.TrimSpace(clean.Manager)
	clean.TaxID = strings.TrimSpace(clean.TaxID)
	clean.PixKey = strings.TrimSpace(clean.PixKey)
	clean.Department = strings.TrimSpace(clean.Department)
	if clean.Department == "" {
		clean.Department = ledger.DefaultDepartment
	}
	if err := clean.Validate(); err != nil {
		return nil, err
	}
	if clean.ID == "" {
		clean.ID = s.idGenerator.Generate()
	}
	if err := s.db.SaveStore(&clean); err != nil {
		return nil, fmt.Errorf("saving store: %w", err)
	}
	return &clean, nil
}

// DeleteStore removes a store
func (s *Service) DeleteStore(id string) error {
	if err := s.db.DeleteStore(id); err != nil {
		return fmt.Errorf("deleting store: %w", err)
	}
	return nil
}

// ImportStores upserts stores by name, keeping the ID of a store that
// already exists under the same name. It returns how many were saved.
func (s *Service) ImportStores(stores []Store) (int, error) {
	existing, err := s.db.ListStores()
	if err != nil {
		return 0, fmt.Errorf("listing stores: %w", err)
	}
	byName := make(map[string]string, len(existing))
	for _, st := range existing {
		byName[strings.ToLower(strings.TrimSpace(st.Name))] = st.ID
	}

	saved := 0
	for _, st := range stores {
		if st.ID == "" {
			st.ID = byName[strings.ToLower(strings.TrimSpace(st.Name))]
		}
		if _, err := s.SaveStore(&st); err != nil {
			return saved, fmt.Errorf("importing store %q: %w", st.Name, err)
		}
		saved++
	}
	return saved, nil
}

// StoreReport returns an empty report dated today and pre-filled from a store
func (s *Service) StoreReport(id string) (*ledger.Draft, error) {
	store, err := s.GetStore(id)
	if err != nil {
		return nil, err
	}
	r := &ledger.Draft{Items: []ledger.LineItem{}}
	r.Header.ReportDate = s.Today()
	r.ApplyStore(store.Defaults())
	return r, nil
}
