// Package google mirrors transactions into a Google Sheets spreadsheet, one
// row per transaction keyed by the ID in column A.
package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"poupa/internal/core"
	"poupa/internal/ports"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"
)

const (
	defaultCacheValidDuration = 2 * time.Minute
	valueInputOption          = "USER_ENTERED"
)

// Header is the first row written to an empty sheet.
var Header = []any{"ID", "Data", "Nome", "Tipo", "Categoria", "Forma de pagamento", "Valor", "Usuário"}

type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	sheetName     string

	// Column A snapshot; index i is sheet row i+1.
	mu                 sync.Mutex
	cachedIDs          []string
	cacheExpiresAt     time.Time
	cacheValidDuration time.Duration
}

var _ ports.Exporter = (*Client)(nil)

// Options configures New. One of CredentialsJSON or CredentialsFile is
// required unless ClientOptions already carries authentication.
type Options struct {
	SpreadsheetID   string
	SheetName       string
	CredentialsJSON string
	CredentialsFile string
	ClientOptions   []goption.ClientOption
}

func New(ctx context.Context, opts Options) (*Client, error) {
	spreadsheetID := strings.TrimSpace(opts.SpreadsheetID)
	if spreadsheetID == "" {
		return nil, errors.New("missing spreadsheet ID")
	}
	sheetName := strings.TrimSpace(opts.SheetName)
	if sheetName == "" {
		sheetName = "Transactions"
	}

	svc, err := newSheetsService(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}

	return &Client{
		svc:                svc,
		spreadsheetID:      spreadsheetID,
		sheetName:          sheetName,
		cacheValidDuration: defaultCacheValidDuration,
	}, nil
}

// newSheetsService builds the Sheets service from service account credentials.
func newSheetsService(ctx context.Context, opts Options) (*gsheet.Service, error) {
	clientOpts := append([]goption.ClientOption(nil), opts.ClientOptions...)

	credentialsJSON := []byte(strings.TrimSpace(opts.CredentialsJSON))
	switch {
	case len(credentialsJSON) > 0:
		slog.InfoContext(ctx, "Using inline service account credentials")
	case strings.TrimSpace(opts.CredentialsFile) != "":
		var err error
		credentialsJSON, err = os.ReadFile(opts.CredentialsFile)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		slog.InfoContext(ctx, "Read service account credentials", "path", opts.CredentialsFile)
	case len(clientOpts) == 0:
		return nil, errors.New("missing service account credentials")
	}

	if len(credentialsJSON) > 0 {
		clientOpts = append(clientOpts,
			goption.WithCredentialsJSON(credentialsJSON),
			goption.WithScopes(gsheet.SpreadsheetsScope))
	}

	service, err := gsheet.NewService(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return service, nil
}

// Export writes tx to its row, appending a new row the first time.
func (c *Client) Export(ctx context.Context, tx core.Transaction) error {
	if c.svc == nil {
		return errors.New("sheets service not initialized")
	}

	ids, err := c.rowIDs(ctx)
	if err != nil {
		return err
	}

	row := transactionRow(tx)
	if idx := indexOf(ids, tx.ID); idx >= 0 {
		rng := fmt.Sprintf("%s!A%d:H%d", c.sheetName, idx+1, idx+1)
		_, err := c.svc.Spreadsheets.Values.Update(c.spreadsheetID, rng, &gsheet.ValueRange{Values: [][]any{row}}).
			ValueInputOption(valueInputOption).Context(ctx).Do()
		if err != nil {
			c.InvalidateRowCache()
			return fmt.Errorf("update %s: %w", rng, err)
		}
		return nil
	}

	values := [][]any{row}
	if len(ids) == 0 {
		values = [][]any{Header, row}
	}
	rng := fmt.Sprintf("%s!A:H", c.sheetName)
	_, err = c.svc.Spreadsheets.Values.Append(c.spreadsheetID, rng, &gsheet.ValueRange{Values: values}).
		ValueInputOption(valueInputOption).InsertDataOption("INSERT_ROWS").Context(ctx).Do()
	if err != nil {
		c.InvalidateRowCache()
		return fmt.Errorf("append to %s: %w", c.sheetName, err)
	}

	c.mu.Lock()
	if time.Now().Before(c.cacheExpiresAt) {
		if len(c.cachedIDs) == 0 {
			c.cachedIDs = append(c.cachedIDs, "ID")
		}
		c.cachedIDs = append(c.cachedIDs, tx.ID)
	}
	c.mu.Unlock()
	return nil
}

// Remove clears the row holding id. A missing row is not an error.
func (c *Client) Remove(ctx context.Context, id string) error {
	if c.svc == nil {
		return errors.New("sheets service not initialized")
	}

	ids, err := c.rowIDs(ctx)
	if err != nil {
		return err
	}
	idx := indexOf(ids, id)
	if idx < 0 {
		slog.DebugContext(ctx, "Transaction row not found in sheet", "transaction_id", id)
		return nil
	}

	rng := fmt.Sprintf("%s!A%d:H%d", c.sheetName, idx+1, idx+1)
	if _, err := c.svc.Spreadsheets.Values.Clear(c.spreadsheetID, rng, &gsheet.ClearValuesRequest{}).Context(ctx).Do(); err != nil {
		c.InvalidateRowCache()
		return fmt.Errorf("clear %s: %w", rng, err)
	}

	c.mu.Lock()
	if idx < len(c.cachedIDs) {
		c.cachedIDs[idx] = ""
	}
	c.mu.Unlock()
	return nil
}

// rowIDs returns column A, reading the sheet when the snapshot has expired.
func (c *Client) rowIDs(ctx context.Context) ([]string, error) {
	c.mu.Lock()
	if time.Now().Before(c.cacheExpiresAt) {
		ids := append([]string(nil), c.cachedIDs...)
		c.mu.Unlock()
		return ids, nil
	}
	c.mu.Unlock()

	rng := fmt.Sprintf("%s!A:A", c.sheetName)
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", rng, err)
	}

	ids := make([]string, len(resp.Values))
	for i, row := range resp.Values {
		if len(row) > 0 {
			ids[i] = strings.TrimSpace(fmt.Sprint(row[0]))
		}
	}

	c.mu.Lock()
	c.cachedIDs = ids
	c.cacheExpiresAt = time.Now().Add(c.cacheValidDuration)
	c.mu.Unlock()

	return append([]string(nil), ids...), nil
}

// InvalidateRowCache forces the next call to re-read column A.
func (c *Client) InvalidateRowCache() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cachedIDs = nil
	c.cacheExpiresAt = time.Time{}
}

func transactionRow(tx core.Transaction) []any {
	return []any{
		tx.ID,
		tx.Date.Format(time.DateOnly),
		tx.Name,
		tx.Type.Label(),
		tx.Category.Label(),
		tx.PaymentMethod.Label(),
		tx.Amount.StringFixed(2),
		tx.UserID,
	}
}

func indexOf(ids []string, id string) int {
	if id == "" {
		return -1
	}
	for i, v := range ids {
		if v == id {
			return i
		}
	}
	return -1
}
