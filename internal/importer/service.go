package importer

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"taxfolio/internal/core"
	"taxfolio/internal/log"
	"taxfolio/internal/rules"
	"taxfolio/internal/storage"
)

// Store is the slice of the repository the importer needs.
type Store interface {
	InsertTransactions(ctx context.Context, txns []core.Transaction) (storage.ImportResult, error)
	ListTransactions(ctx context.Context, f storage.TransactionFilter) ([]core.Transaction, error)
	GetTransaction(ctx context.Context, id int64) (core.Transaction, error)
}

// Result is what an import reports back to the upload page.
type Result struct {
	SourceFile     string
	Parsed         int
	Inserted       int
	Duplicates     int
	Categorized    int
	RowErrors      []string
	NearDuplicates []NearDuplicate
}

type Service struct {
	store  Store
	engine *rules.Engine
	logger *log.Logger
}

func NewService(store Store, engine *rules.Engine, logger *log.Logger) *Service {
	return &Service{store: store, engine: engine, logger: logger.WithComponent(log.ComponentImporter)}
}

// ImportCSV parses and stores a CSV statement upload.
func (s *Service) ImportCSV(ctx context.Context, r io.Reader, sourceFile string) (Result, error) {
	rows, err := ParseCSV(r, sourceFile)
	if err != nil {
		return Result{}, err
	}
	return s.persist(ctx, rows, sourceFile)
}

// ImportPDF extracts and stores transactions from a PDF statement already
// saved to disk.
func (s *Service) ImportPDF(ctx context.Context, path, sourceFile string) (Result, error) {
	rows, err := ParsePDF(path, sourceFile)
	if err != nil {
		return Result{}, err
	}
	return s.persist(ctx, rows, sourceFile)
}

// ImportFile dispatches on file extension.
func (s *Service) ImportFile(ctx context.Context, path string, r io.Reader) (Result, error) {
	name := filepath.Base(path)
	switch strings.ToLower(filepath.Ext(name)) {
	case ".csv":
		return s.ImportCSV(ctx, r, name)
	case ".pdf":
		return s.ImportPDF(ctx, path, name)
	default:
		return Result{}, fmt.Errorf("unsupported statement format %q: use CSV or PDF", filepath.Ext(name))
	}
}

// persist stores parsed rows, flags near-duplicates against what was
// already on file, and pre-categorizes the new rows with the rules engine.
func (s *Service) persist(ctx context.Context, rows []ParsedRow, sourceFile string) (Result, error) {
	res := Result{SourceFile: sourceFile}

	var txns []core.Transaction
	years := make(map[core.TaxYear]bool)
	for _, row := range rows {
		if row.Err != "" {
			res.RowErrors = append(res.RowErrors, fmt.Sprintf("line %d: %s", row.Line, row.Err))
			continue
		}
		txns = append(txns, row.Transaction)
		years[core.TaxYearOf(row.Transaction.Date)] = true
	}
	res.Parsed = len(txns)
	if len(txns) == 0 {
		return res, fmt.Errorf("no importable rows in %s", sourceFile)
	}

	// Near-duplicate detection runs against the rows that were on file
	// before this import.
	var existing []core.Transaction
	for year := range years {
		prior, err := s.store.ListTransactions(ctx, storage.TransactionFilter{Year: year})
		if err != nil {
			return res, fmt.Errorf("load existing transactions: %w", err)
		}
		existing = append(existing, prior...)
	}

	inserted, err := s.store.InsertTransactions(ctx, txns)
	if err != nil {
		return res, fmt.Errorf("store transactions: %w", err)
	}
	res.Inserted = inserted.Inserted
	res.Duplicates = inserted.Duplicates
	res.NearDuplicates = FindNearDuplicates(txns, existing)

	for _, id := range inserted.IDs {
		txn, err := s.store.GetTransaction(ctx, id)
		if err != nil {
			return res, fmt.Errorf("reload transaction %d: %w", id, err)
		}
		rule, ok, err := s.engine.Evaluate(ctx, txn)
		if err != nil {
			return res, err
		}
		if !ok {
			continue
		}
		if err := s.engine.ApplyTo(ctx, txn, rule); err != nil {
			return res, err
		}
		res.Categorized++
	}

	s.logger.InfoContext(ctx, "Statement imported",
		log.FieldSourceFile, sourceFile,
		log.FieldImported, res.Inserted,
		log.FieldDuplicates, res.Duplicates,
		"near_duplicates", len(res.NearDuplicates),
		"pre_categorized", res.Categorized)
	return res, nil
}
