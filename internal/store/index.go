package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"eclicrawler/internal/logging"
	"eclicrawler/internal/types"
)

// IndexStore is the SQLite search index. Field text is mirrored into an
// FTS5 table so full-text queries rank with bm25; the documents table holds
// the authoritative row per document ID.
type IndexStore struct {
	db   *sql.DB
	path string
}

// NewIndexStore opens (creating if needed) the index database.
func NewIndexStore(path string) (*IndexStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create index directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open index database: %w", err)
	}
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA busy_timeout = 5000",
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	s := &IndexStore{db: db, path: path}
	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}
	logging.Store("Index store ready at %s", path)
	return s, nil
}

func (s *IndexStore) initialize() error {
	schema := []string{
		`CREATE TABLE IF NOT EXISTS documents (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			document_id TEXT NOT NULL UNIQUE,
			court TEXT NOT NULL DEFAULT '',
			ecli_identifier TEXT NOT NULL DEFAULT '',
			source_url TEXT NOT NULL DEFAULT '',
			title TEXT NOT NULL DEFAULT '',
			subject TEXT NOT NULL DEFAULT '',
			summary TEXT NOT NULL DEFAULT '',
			case_number TEXT NOT NULL DEFAULT '',
			document_type TEXT NOT NULL DEFAULT '',
			norms TEXT NOT NULL DEFAULT '',
			leitsatz TEXT NOT NULL DEFAULT '',
			tenor TEXT NOT NULL DEFAULT '',
			gruende TEXT NOT NULL DEFAULT '',
			full_text TEXT NOT NULL DEFAULT '',
			file_path TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL DEFAULT 'PENDING',
			decision_date TEXT NOT NULL DEFAULT '',
			crawled_at TEXT NOT NULL DEFAULT '',
			indexed_at TEXT NOT NULL DEFAULT '',
			year INTEGER NOT NULL DEFAULT 0,
			month INTEGER NOT NULL DEFAULT 0,
			raw_xml TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE INDEX IF NOT EXISTS idx_documents_court ON documents(court)`,
		`CREATE INDEX IF NOT EXISTS idx_documents_status ON documents(status)`,
		`CREATE INDEX IF NOT EXISTS idx_documents_ecli ON documents(ecli_identifier)`,
		`CREATE INDEX IF NOT EXISTS idx_documents_source_url ON documents(source_url)`,
		`CREATE INDEX IF NOT EXISTS idx_documents_decision_date ON documents(decision_date)`,
		`CREATE INDEX IF NOT EXISTS idx_documents_crawled_at ON documents(crawled_at)`,
		`CREATE VIRTUAL TABLE IF NOT EXISTS documents_fts USING fts5(
			title, summary, full_text, case_number, ecli_identifier,
			leitsatz, tenor, gruende,
			tokenize = 'unicode61 remove_diacritics 2'
		)`,
	}
	for _, stmt := range schema {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to initialize index schema: %w", err)
		}
	}
	return nil
}

const timeLayout = time.RFC3339Nano

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

// Upsert inserts or replaces the row for the document and refreshes its
// full-text mirror.
func (s *IndexStore) Upsert(ctx context.Context, doc *types.LegalDocument) error {
	return s.upsert(ctx, doc, nil)
}

func (s *IndexStore) upsert(ctx context.Context, doc *types.LegalDocument, rawXML *string) error {
	if doc.DocumentID == "" {
		return fmt.Errorf("document ID must not be empty")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	rawUpdate := ""
	args := []any{
		doc.DocumentID, doc.Court, doc.Ecli, doc.SourceURL, doc.Title,
		doc.Subject, doc.Summary, doc.CaseNumber, doc.DocumentType, doc.Norms,
		doc.Leitsatz, doc.Tenor, doc.Gruende, doc.FullText, doc.FilePath,
		string(doc.Status), formatTime(doc.DecisionDate), formatTime(doc.CrawledAt),
		formatTime(time.Now()), doc.DecisionDate.Year(), int(doc.DecisionDate.Month()),
	}
	if rawXML != nil {
		rawUpdate = ", raw_xml = excluded.raw_xml"
		args = append(args, *rawXML)
	} else {
		args = append(args, "")
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO documents (
			document_id, court, ecli_identifier, source_url, title,
			subject, summary, case_number, document_type, norms,
			leitsatz, tenor, gruende, full_text, file_path,
			status, decision_date, crawled_at, indexed_at, year, month, raw_xml
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(document_id) DO UPDATE SET
			court = excluded.court,
			ecli_identifier = excluded.ecli_identifier,
			source_url = excluded.source_url,
			title = excluded.title,
			subject = excluded.subject,
			summary = excluded.summary,
			case_number = excluded.case_number,
			document_type = excluded.document_type,
			norms = excluded.norms,
			leitsatz = excluded.leitsatz,
			tenor = excluded.tenor,
			gruende = excluded.gruende,
			full_text = excluded.full_text,
			file_path = excluded.file_path,
			status = excluded.status,
			decision_date = excluded.decision_date,
			crawled_at = excluded.crawled_at,
			indexed_at = excluded.indexed_at,
			year = excluded.year,
			month = excluded.month`+rawUpdate,
		args...)
	if err != nil {
		return fmt.Errorf("failed to upsert document %s: %w", doc.DocumentID, err)
	}

	var rowid int64
	if err := tx.QueryRowContext(ctx,
		"SELECT id FROM documents WHERE document_id = ?", doc.DocumentID).Scan(&rowid); err != nil {
		return fmt.Errorf("failed to resolve rowid for %s: %w", doc.DocumentID, err)
	}

	if _, err := tx.ExecContext(ctx,
		"DELETE FROM documents_fts WHERE rowid = ?", rowid); err != nil {
		return fmt.Errorf("failed to clear full-text row for %s: %w", doc.DocumentID, err)
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO documents_fts (rowid, title, summary, full_text, case_number,
			ecli_identifier, leitsatz, tenor, gruende)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rowid, doc.Title, doc.Summary, doc.FullText, doc.CaseNumber,
		doc.Ecli, doc.Leitsatz, doc.Tenor, doc.Gruende); err != nil {
		return fmt.Errorf("failed to write full-text row for %s: %w", doc.DocumentID, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit upsert for %s: %w", doc.DocumentID, err)
	}
	logging.StoreDebug("indexed document %s (court=%s status=%s)", doc.DocumentID, doc.Court, doc.Status)
	return nil
}

// StoreContent indexes the document together with its raw XML and returns
// an index reference instead of a file path.
func (s *IndexStore) StoreContent(ctx context.Context, doc *types.LegalDocument, xmlContent string) (string, error) {
	if err := s.upsert(ctx, doc, &xmlContent); err != nil {
		return "", err
	}
	return "index:" + doc.DocumentID, nil
}

const documentColumns = `document_id, court, ecli_identifier, source_url, title,
	subject, summary, case_number, document_type, norms,
	leitsatz, tenor, gruende, full_text, file_path,
	status, decision_date, crawled_at`

func scanDocument(row interface{ Scan(...any) error }) (*types.LegalDocument, error) {
	var doc types.LegalDocument
	var status, decisionDate, crawledAt string
	err := row.Scan(
		&doc.DocumentID, &doc.Court, &doc.Ecli, &doc.SourceURL, &doc.Title,
		&doc.Subject, &doc.Summary, &doc.CaseNumber, &doc.DocumentType, &doc.Norms,
		&doc.Leitsatz, &doc.Tenor, &doc.Gruende, &doc.FullText, &doc.FilePath,
		&status, &decisionDate, &crawledAt)
	if err != nil {
		return nil, err
	}
	doc.Status = types.DocumentStatus(status)
	doc.DecisionDate = parseTime(decisionDate)
	doc.CrawledAt = parseTime(crawledAt)
	return &doc, nil
}

func (s *IndexStore) queryDocuments(ctx context.Context, query string, args ...any) ([]*types.LegalDocument, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("index query failed: %w", err)
	}
	defer rows.Close()

	var docs []*types.LegalDocument
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan document row: %w", err)
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

func (s *IndexStore) queryOne(ctx context.Context, query string, args ...any) (*types.LegalDocument, error) {
	doc, err := scanDocument(s.db.QueryRowContext(ctx, query, args...))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("index query failed: %w", err)
	}
	return doc, nil
}

// FindByDocumentID returns the document or nil when absent.
func (s *IndexStore) FindByDocumentID(ctx context.Context, documentID string) (*types.LegalDocument, error) {
	return s.queryOne(ctx,
		"SELECT "+documentColumns+" FROM documents WHERE document_id = ?", documentID)
}

// RawXML returns the stored XML body for a document, or "" when absent.
func (s *IndexStore) RawXML(ctx context.Context, documentID string) (string, error) {
	var raw string
	err := s.db.QueryRowContext(ctx,
		"SELECT raw_xml FROM documents WHERE document_id = ?", documentID).Scan(&raw)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read raw XML for %s: %w", documentID, err)
	}
	return raw, nil
}

// ExistsBySourceURL reports whether any document carries the URL.
func (s *IndexStore) ExistsBySourceURL(ctx context.Context, sourceURL string) (bool, error) {
	var n int64
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM documents WHERE source_url = ?", sourceURL).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("index query failed: %w", err)
	}
	return n > 0, nil
}

// FindByCourt returns a page of the court's documents, newest decision first.
func (s *IndexStore) FindByCourt(ctx context.Context, court string, limit, offset int) ([]*types.LegalDocument, error) {
	if limit <= 0 {
		limit = -1
	}
	if offset < 0 {
		offset = 0
	}
	return s.queryDocuments(ctx,
		"SELECT "+documentColumns+` FROM documents
		 WHERE court = ? COLLATE NOCASE
		 ORDER BY decision_date DESC LIMIT ? OFFSET ?`,
		court, limit, offset)
}

// FindByStatus returns all documents in the given status.
func (s *IndexStore) FindByStatus(ctx context.Context, status types.DocumentStatus) ([]*types.LegalDocument, error) {
	return s.queryDocuments(ctx,
		"SELECT "+documentColumns+" FROM documents WHERE status = ? ORDER BY crawled_at DESC",
		string(status))
}

// FindByDateRange returns documents decided in [from, to], newest first.
func (s *IndexStore) FindByDateRange(ctx context.Context, from, to time.Time) ([]*types.LegalDocument, error) {
	return s.queryDocuments(ctx,
		"SELECT "+documentColumns+` FROM documents
		 WHERE decision_date >= ? AND decision_date <= ?
		 ORDER BY decision_date DESC`,
		formatTime(from), formatTime(to))
}

// FindByEcli returns the document with the identifier, or nil.
func (s *IndexStore) FindByEcli(ctx context.Context, ecli string) (*types.LegalDocument, error) {
	return s.queryOne(ctx,
		"SELECT "+documentColumns+" FROM documents WHERE ecli_identifier = ? COLLATE NOCASE", ecli)
}

// FindByCrawledAfter returns documents crawled after the given time.
func (s *IndexStore) FindByCrawledAfter(ctx context.Context, after time.Time) ([]*types.LegalDocument, error) {
	return s.queryDocuments(ctx,
		"SELECT "+documentColumns+" FROM documents WHERE crawled_at > ? ORDER BY crawled_at DESC",
		formatTime(after))
}

// FindRecent returns documents decided since the given time.
func (s *IndexStore) FindRecent(ctx context.Context, since time.Time) ([]*types.LegalDocument, error) {
	return s.queryDocuments(ctx,
		"SELECT "+documentColumns+" FROM documents WHERE decision_date >= ? ORDER BY decision_date DESC",
		formatTime(since))
}

// SearchTitle returns documents whose title contains the term.
func (s *IndexStore) SearchTitle(ctx context.Context, term string) ([]*types.LegalDocument, error) {
	return s.queryDocuments(ctx,
		"SELECT "+documentColumns+` FROM documents
		 WHERE title LIKE '%' || ? || '%' COLLATE NOCASE
		 ORDER BY decision_date DESC`,
		term)
}

// SearchText runs an FTS5 query ranked by bm25 with per-field weights:
// case number and ECLI strongest, then title, summary, body text.
func (s *IndexStore) SearchText(ctx context.Context, term string, maxResults int) ([]*types.LegalDocument, error) {
	if maxResults <= 0 {
		maxResults = 50
	}
	match := ftsQuery(term)
	if match == "" {
		return nil, nil
	}
	return s.queryDocuments(ctx, `
		SELECT d.document_id, d.court, d.ecli_identifier, d.source_url, d.title,
		       d.subject, d.summary, d.case_number, d.document_type, d.norms,
		       d.leitsatz, d.tenor, d.gruende, d.full_text, d.file_path,
		       d.status, d.decision_date, d.crawled_at
		FROM documents_fts f
		JOIN documents d ON d.id = f.rowid
		WHERE documents_fts MATCH ?
		ORDER BY bm25(documents_fts, 3.0, 2.0, 1.0, 4.0, 4.0, 1.0, 1.0, 1.0)
		LIMIT ?`,
		match, maxResults)
}

// ftsQuery turns a free-form term into an FTS5 AND query of quoted tokens,
// so user input cannot inject FTS syntax.
func ftsQuery(term string) string {
	fields := strings.Fields(term)
	if len(fields) == 0 {
		return ""
	}
	quoted := make([]string, 0, len(fields))
	for _, f := range fields {
		quoted = append(quoted, `"`+strings.ReplaceAll(f, `"`, `""`)+`"`)
	}
	return strings.Join(quoted, " ")
}

// FindFailedForRetry returns FAILED documents last crawled before olderThan.
func (s *IndexStore) FindFailedForRetry(ctx context.Context, olderThan time.Time) ([]*types.LegalDocument, error) {
	return s.queryDocuments(ctx,
		"SELECT "+documentColumns+` FROM documents
		 WHERE status = ? AND crawled_at < ?
		 ORDER BY crawled_at ASC`,
		string(types.StatusFailed), formatTime(olderThan))
}

func (s *IndexStore) countGrouped(ctx context.Context, column string) (map[string]int64, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+column+", COUNT(*) FROM documents GROUP BY "+column)
	if err != nil {
		return nil, fmt.Errorf("index count failed: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var key string
		var n int64
		if err := rows.Scan(&key, &n); err != nil {
			return nil, err
		}
		counts[key] = n
	}
	return counts, rows.Err()
}

// CountByCourt returns document counts grouped by court.
func (s *IndexStore) CountByCourt(ctx context.Context) (map[string]int64, error) {
	return s.countGrouped(ctx, "court")
}

// CountByStatus returns document counts grouped by status.
func (s *IndexStore) CountByStatus(ctx context.Context) (map[string]int64, error) {
	return s.countGrouped(ctx, "status")
}

// Count returns the total number of documents.
func (s *IndexStore) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM documents").Scan(&n); err != nil {
		return 0, fmt.Errorf("index count failed: %w", err)
	}
	return n, nil
}

// Delete removes the document row and its full-text mirror.
func (s *IndexStore) Delete(ctx context.Context, documentID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var rowid int64
	err = tx.QueryRowContext(ctx,
		"SELECT id FROM documents WHERE document_id = ?", documentID).Scan(&rowid)
	if err == sql.ErrNoRows {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to resolve rowid for %s: %w", documentID, err)
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM documents_fts WHERE rowid = ?", rowid); err != nil {
		return fmt.Errorf("failed to delete full-text row for %s: %w", documentID, err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM documents WHERE id = ?", rowid); err != nil {
		return fmt.Errorf("failed to delete document %s: %w", documentID, err)
	}
	return tx.Commit()
}

// DeleteAll removes every document row.
func (s *IndexStore) DeleteAll(ctx context.Context) error {
	for _, stmt := range []string{"DELETE FROM documents_fts", "DELETE FROM documents"} {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to clear index: %w", err)
		}
	}
	return nil
}

// Close closes the database.
func (s *IndexStore) Close() error {
	return s.db.Close()
}
