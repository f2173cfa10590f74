// Package importer turns bank statement exports (CSV or PDF) into
// transactions. Every parsed row carries a content hash so re-importing an
// overlapping statement never duplicates records.
package importer

import (
	"bufio"
	"crypto/sha256"
	"encoding/csv"
	"encoding/hex"
	"fmt"
	"io"
	"strings"
	"time"

	"taxfolio/internal/core"
)

// ParsedRow is one statement line plus any parse problem. Rows with a
// non-empty Err are reported back to the user and skipped.
type ParsedRow struct {
	Transaction core.Transaction
	Line        int
	Err         string
}

// columns maps statement headers onto the fields we need. UK banks disagree
// on almost everything: some export one signed amount column, others split
// money in and money out.
type columns struct {
	date    int
	desc    int
	amount  int // -1 when the format splits in/out
	paidIn  int
	paidOut int
}

var dateLayouts = []string{
	"02/01/2006",
	"2006-01-02",
	"02-01-2006",
	"02 Jan 2006",
	"2 Jan 2006",
	"02 Jan 06",
}

// ParseCSV reads a statement export. The first row must be a header; columns
// are matched by name, so Monzo, Starling and the high-street banks' exports
// all work without per-bank configuration.
func ParseCSV(r io.Reader, sourceFile string) ([]ParsedRow, error) {
	csvr := csv.NewReader(bufio.NewReader(r))
	csvr.TrimLeadingSpace = true
	csvr.FieldsPerRecord = -1

	header, err := csvr.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("empty file")
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	cols, err := resolveColumns(header)
	if err != nil {
		return nil, err
	}

	var rows []ParsedRow
	line := 1
	for {
		line++
		rec, err := csvr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			rows = append(rows, ParsedRow{Line: line, Err: err.Error()})
			continue
		}
		rows = append(rows, parseRecord(rec, cols, line, sourceFile))
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("no statement rows found")
	}
	return rows, nil
}

func resolveColumns(header []string) (columns, error) {
	cols := columns{date: -1, desc: -1, amount: -1, paidIn: -1, paidOut: -1}
	for i, h := range header {
		switch normalizeHeader(h) {
		case "date", "transactiondate", "bookingdate":
			if cols.date == -1 {
				cols.date = i
			}
		case "description", "name", "narrative", "merchant", "transactiondescription", "reference", "counterparty":
			if cols.desc == -1 {
				cols.desc = i
			}
		case "amount", "amountgbp", "value":
			if cols.amount == -1 {
				cols.amount = i
			}
		case "paidin", "moneyin", "credit", "creditamount":
			cols.paidIn = i
		case "paidout", "moneyout", "debit", "debitamount":
			cols.paidOut = i
		}
	}
	if cols.date == -1 || cols.desc == -1 {
		return cols, fmt.Errorf("unrecognized statement format: no date/description columns in header %v", header)
	}
	if cols.amount == -1 && cols.paidIn == -1 && cols.paidOut == -1 {
		return cols, fmt.Errorf("unrecognized statement format: no amount columns in header %v", header)
	}
	return cols, nil
}

func normalizeHeader(h string) string {
	h = strings.ToLower(strings.TrimSpace(h))
	h = strings.ReplaceAll(h, " ", "")
	h = strings.ReplaceAll(h, "_", "")
	h = strings.ReplaceAll(h, "(", "")
	h = strings.ReplaceAll(h, ")", "")
	h = strings.ReplaceAll(h, "£", "")
	return h
}

func parseRecord(rec []string, cols columns, line int, sourceFile string) ParsedRow {
	get := func(i int) string {
		if i < 0 || i >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[i])
	}

	date, err := parseStatementDate(get(cols.date))
	if err != nil {
		return ParsedRow{Line: line, Err: fmt.Sprintf("bad date %q", get(cols.date))}
	}
	desc := get(cols.desc)
	if desc == "" {
		return ParsedRow{Line: line, Err: "empty description"}
	}

	var pence int64
	if cols.amount >= 0 && get(cols.amount) != "" {
		pence, err = core.ParseStatementAmount(get(cols.amount))
		if err != nil {
			return ParsedRow{Line: line, Err: fmt.Sprintf("bad amount %q", get(cols.amount))}
		}
	} else {
		// Split columns carry magnitudes: the column says which way the
		// money went, so a bank that writes "(12.00)" or "-12.00" under
		// Paid Out must not flip into money in.
		in, out := get(cols.paidIn), get(cols.paidOut)
		switch {
		case out != "":
			pence, err = core.ParseStatementAmount(out)
			pence = -abs64(pence)
		case in != "":
			pence, err = core.ParseStatementAmount(in)
			pence = abs64(pence)
		default:
			return ParsedRow{Line: line, Err: "no amount"}
		}
		if err != nil {
			return ParsedRow{Line: line, Err: "bad amount"}
		}
	}
	if pence == 0 {
		return ParsedRow{Line: line, Err: "zero amount"}
	}

	t := core.Transaction{
		Date:        date,
		Description: desc,
		Amount:      core.Money{Pence: pence},
		Merchant:    core.NormalizeMerchant(desc),
		Status:      core.StatusUnreviewed,
		SourceFile:  sourceFile,
	}
	t.SourceHash = SourceHash(t)
	return ParsedRow{Transaction: t, Line: line}
}

func abs64(n int64) int64 {
	if n < 0 {
		return -n
	}
	return n
}

func parseStatementDate(s string) (core.Date, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return core.Date{Time: t}, nil
		}
	}
	return core.Date{}, core.ErrInvalidDate
}

// SourceHash fingerprints a statement row. Date, amount and normalized
// description identify a row across re-imports even when the bank renames
// the export file.
func SourceHash(t core.Transaction) string {
	payload := fmt.Sprintf("%s|%d|%s", t.Date.ISO(), t.Amount.Pence, core.NormalizeMerchant(t.Description))
	sum := sha256.Sum256([]byte(payload))
	return hex.EncodeToString(sum[:])
}
