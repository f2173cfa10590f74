package google

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"golang.org/x/oauth2"
	oauth2google "golang.org/x/oauth2/google"
	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"taxfolio/internal/config"
	"taxfolio/internal/core"
	ports "taxfolio/internal/sheets"
)

// Client mirrors records into a Google spreadsheet over the Sheets v4 API.
type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	sheetName     string
}

// Ensure interface conformance
var (
	_ ports.TransactionWriter = (*Client)(nil)
	_ ports.EntryWriter       = (*Client)(nil)
)

// NewFromConfig creates a Sheets client from the application config.
// Credentials come from an OAuth client plus a stored token, either
// inline JSON or file paths; run cmd/oauth-init once to obtain the token.
func NewFromConfig(ctx context.Context, cfg *config.Config) (*Client, error) {
	if cfg.GoogleSpreadsheetID == "" {
		return nil, errors.New("missing spreadsheet ID")
	}
	sheetName := cfg.GoogleSheetName
	if sheetName == "" {
		sheetName = "Transactions"
	}

	oauthCfg, err := LoadOAuthConfig(cfg)
	if err != nil {
		return nil, err
	}
	token, err := loadToken(cfg)
	if err != nil {
		return nil, err
	}

	svc, err := gsheet.NewService(ctx,
		goption.WithTokenSource(oauthCfg.TokenSource(ctx, token)),
		goption.WithScopes(gsheet.SpreadsheetsScope))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}

	return &Client{
		svc:           svc,
		spreadsheetID: cfg.GoogleSpreadsheetID,
		sheetName:     sheetName,
	}, nil
}

// LoadOAuthConfig parses the OAuth client from inline JSON or a file.
// Exported for cmd/oauth-init, which runs the authorization flow.
func LoadOAuthConfig(cfg *config.Config) (*oauth2.Config, error) {
	raw, err := readCredential(cfg.GoogleOAuthClientJSON, cfg.GoogleOAuthClientFile, "OAuth client")
	if err != nil {
		return nil, err
	}
	oauthCfg, err := oauth2google.ConfigFromJSON(raw, gsheet.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("parse OAuth client: %w", err)
	}
	return oauthCfg, nil
}

func loadToken(cfg *config.Config) (*oauth2.Token, error) {
	raw, err := readCredential(cfg.GoogleOAuthTokenJSON, cfg.GoogleOAuthTokenFile, "OAuth token")
	if err != nil {
		return nil, err
	}
	var token oauth2.Token
	if err := json.Unmarshal(raw, &token); err != nil {
		return nil, fmt.Errorf("parse OAuth token: %w", err)
	}
	return &token, nil
}

func readCredential(inline, file, what string) ([]byte, error) {
	switch {
	case strings.TrimSpace(inline) != "":
		return []byte(inline), nil
	case file != "":
		raw, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("read %s file: %w", what, err)
		}
		return raw, nil
	default:
		return nil, fmt.Errorf("missing %s credentials", what)
	}
}

// AppendTransaction writes one categorized transaction as a sheet row.
func (c *Client) AppendTransaction(ctx context.Context, txn core.Transaction) (string, error) {
	row := []any{
		txn.Date.ISO(),
		txn.Description,
		txn.Amount.Pounds(),
		string(txn.Category),
		txn.Business,
		string(txn.Status),
	}
	return c.appendRow(ctx, row)
}

// AppendIncome writes one income record as a sheet row.
func (c *Client) AppendIncome(ctx context.Context, inc core.Income) (string, error) {
	row := []any{
		inc.Date.ISO(),
		inc.Source,
		inc.Amount.Pounds(),
		"income",
		true,
		inc.Reference,
	}
	return c.appendRow(ctx, row)
}

// AppendExpense writes one manual expense record as a sheet row.
func (c *Client) AppendExpense(ctx context.Context, exp core.ExpenseEntry) (string, error) {
	row := []any{
		exp.Date.ISO(),
		exp.Description,
		exp.Amount.Pounds(),
		string(exp.Category),
		true,
		"manual",
	}
	return c.appendRow(ctx, row)
}

func (c *Client) appendRow(ctx context.Context, row []any) (string, error) {
	if c.svc == nil {
		return "", errors.New("sheets service not initialized")
	}

	rng := fmt.Sprintf("%s!A:F", c.sheetName)
	vr := &gsheet.ValueRange{Values: [][]any{row}}

	resp, err := c.svc.Spreadsheets.Values.Append(c.spreadsheetID, rng, vr).
		ValueInputOption("USER_ENTERED").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("append to sheet %s: %w", c.sheetName, err)
	}

	if resp.Updates != nil && resp.Updates.UpdatedRange != "" {
		return resp.Updates.UpdatedRange, nil
	}
	return rng, nil
}
