package importer

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/ledongthuc/pdf"

	"taxfolio/internal/core"
)

// statementLine matches "02/05/2024 TESCO STORES 3297 12.34" with an
// optional trailing balance column. Amounts may carry a sign, £ or
// thousands separators.
var statementLine = regexp.MustCompile(
	`^(\d{1,2}[/-]\d{1,2}[/-]\d{2,4}|\d{1,2} [A-Za-z]{3} \d{2,4})\s+(.+?)\s+(\(?-?£?[\d,]+\.\d{2}\)?)(?:\s+-?£?[\d,]+\.\d{2})?\s*$`)

// ParsePDF extracts transactions from a PDF statement. Bank layouts vary
// wildly, so extraction is line-oriented: any line shaped like
// date / description / amount becomes a row, everything else is ignored.
func ParsePDF(path, sourceFile string) ([]ParsedRow, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}
	defer f.Close()

	var lines []string
	for pageIndex := 1; pageIndex <= r.NumPage(); pageIndex++ {
		p := r.Page(pageIndex)
		if p.V.IsNull() {
			continue
		}
		text, err := p.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("extract text from page %d: %w", pageIndex, err)
		}
		lines = append(lines, strings.Split(text, "\n")...)
	}

	rows := ParseStatementLines(lines, sourceFile)
	if len(rows) == 0 {
		return nil, fmt.Errorf("no transactions recognized in PDF")
	}
	return rows, nil
}

// ParseStatementLines scans free text for transaction-shaped lines.
func ParseStatementLines(lines []string, sourceFile string) []ParsedRow {
	var rows []ParsedRow
	for i, line := range lines {
		m := statementLine.FindStringSubmatch(strings.TrimSpace(line))
		if m == nil {
			continue
		}
		date, err := parseStatementDate(m[1])
		if err != nil {
			continue
		}
		pence, err := core.ParseStatementAmount(m[3])
		if err != nil || pence == 0 {
			continue
		}
		desc := strings.TrimSpace(m[2])

		t := core.Transaction{
			Date:        date,
			Description: desc,
			Amount:      core.Money{Pence: pence},
			Merchant:    core.NormalizeMerchant(desc),
			Status:      core.StatusUnreviewed,
			SourceFile:  sourceFile,
		}
		t.SourceHash = SourceHash(t)
		rows = append(rows, ParsedRow{Transaction: t, Line: i + 1})
	}
	return rows
}
