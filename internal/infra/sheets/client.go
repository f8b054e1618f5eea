// Package sheets stores the ledger and the account registry in two
// worksheets of one Google spreadsheet.
package sheets

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/dvloznov/finance-manager/internal/domain"
	"github.com/dvloznov/finance-manager/internal/logger"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	sheetsapi "google.golang.org/api/sheets/v4"
)

const (
	defaultMaxRetries = 3
	defaultBackoff    = 500 * time.Millisecond
)

// Config holds the spreadsheet location and credentials.
type Config struct {
	SpreadsheetID   string
	CredentialsJSON string        // service account key JSON
	CredentialsFile string        // path to a service account key file
	Endpoint        string        // custom API endpoint (emulator), disables auth
	MaxRetries      int           // attempts after the first for transient failures
	Backoff         time.Duration // linear backoff unit between attempts
}

// Client wraps the Sheets API service with retries and error mapping.
type Client struct {
	service       *sheetsapi.Service
	spreadsheetID string
	maxRetries    int
	backoff       time.Duration

	mu       sync.Mutex
	sheetIDs map[string]int64
}

// NewClient creates a Sheets client for the configured spreadsheet.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.SpreadsheetID == "" {
		return nil, fmt.Errorf("NewClient: spreadsheet id is required")
	}

	var opts []option.ClientOption
	switch {
	case cfg.Endpoint != "":
		opts = append(opts,
			option.WithEndpoint(cfg.Endpoint),
			option.WithHTTPClient(&http.Client{}),
			option.WithoutAuthentication(),
		)
	default:
		credJSON := []byte(cfg.CredentialsJSON)
		if len(credJSON) == 0 && cfg.CredentialsFile != "" {
			b, err := os.ReadFile(cfg.CredentialsFile)
			if err != nil {
				return nil, fmt.Errorf("NewClient: reading credentials file: %w", err)
			}
			credJSON = b
		}
		if len(credJSON) > 0 {
			creds, err := google.CredentialsFromJSON(ctx, credJSON, sheetsapi.SpreadsheetsScope)
			if err != nil {
				return nil, fmt.Errorf("NewClient: parsing credentials: %w", err)
			}
			opts = append(opts, option.WithCredentials(creds))
		}
		// Without explicit credentials the client falls back to
		// application default credentials.
	}

	service, err := sheetsapi.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("NewClient: creating sheets service: %w", err)
	}

	return newClient(service, cfg), nil
}

func newClient(service *sheetsapi.Service, cfg Config) *Client {
	// zero selects the default, negative disables retries
	maxRetries := cfg.MaxRetries
	switch {
	case maxRetries == 0:
		maxRetries = defaultMaxRetries
	case maxRetries < 0:
		maxRetries = 0
	}
	backoff := cfg.Backoff
	if backoff <= 0 {
		backoff = defaultBackoff
	}
	return &Client{
		service:       service,
		spreadsheetID: cfg.SpreadsheetID,
		maxRetries:    maxRetries,
		backoff:       backoff,
		sheetIDs:      make(map[string]int64),
	}
}

// getValues reads every populated cell of sheet.
func (c *Client) getValues(ctx context.Context, sheet string) ([][]interface{}, error) {
	var resp *sheetsapi.ValueRange
	err := c.retry(ctx, "get "+sheet, func() error {
		var err error
		resp, err = c.service.Spreadsheets.Values.Get(c.spreadsheetID, a1(sheet, "")).
			ValueRenderOption("UNFORMATTED_VALUE").
			Context(ctx).
			Do()
		return err
	})
	if err != nil {
		return nil, err
	}
	return resp.Values, nil
}

// appendRows appends rows after the last populated row of sheet. It makes a
// single attempt: an append whose response was lost may still have landed,
// so callers decide whether a retry is safe.
func (c *Client) appendRows(ctx context.Context, sheet string, rows [][]interface{}) error {
	op := "append " + sheet
	_, err := c.service.Spreadsheets.Values.Append(c.spreadsheetID, a1(sheet, "A1"),
		&sheetsapi.ValueRange{Values: rows}).
		ValueInputOption("RAW").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).
		Do()
	return classify(op, err)
}

// updateRange overwrites rows starting at the top-left cell.
func (c *Client) updateRange(ctx context.Context, sheet, cell string, rows [][]interface{}) error {
	return c.retry(ctx, "update "+sheet+"!"+cell, func() error {
		_, err := c.service.Spreadsheets.Values.Update(c.spreadsheetID, a1(sheet, cell),
			&sheetsapi.ValueRange{Values: rows}).
			ValueInputOption("RAW").
			Context(ctx).
			Do()
		return err
	})
}

// deleteRow removes one row (1-based) and shifts the rows below it up.
func (c *Client) deleteRow(ctx context.Context, sheet string, row int) error {
	sheetID, err := c.sheetID(ctx, sheet)
	if err != nil {
		return err
	}
	req := &sheetsapi.BatchUpdateSpreadsheetRequest{
		Requests: []*sheetsapi.Request{{
			DeleteDimension: &sheetsapi.DeleteDimensionRequest{
				Range: &sheetsapi.DimensionRange{
					SheetId:    sheetID,
					Dimension:  "ROWS",
					StartIndex: int64(row - 1),
					EndIndex:   int64(row),
				},
			},
		}},
	}
	return c.retry(ctx, fmt.Sprintf("delete %s row %d", sheet, row), func() error {
		_, err := c.service.Spreadsheets.BatchUpdate(c.spreadsheetID, req).Context(ctx).Do()
		return err
	})
}

// sheetID resolves the numeric id of a worksheet title, which row deletion
// requires. Ids are cached for the life of the client.
func (c *Client) sheetID(ctx context.Context, title string) (int64, error) {
	c.mu.Lock()
	id, ok := c.sheetIDs[title]
	c.mu.Unlock()
	if ok {
		return id, nil
	}

	var resp *sheetsapi.Spreadsheet
	err := c.retry(ctx, "get spreadsheet", func() error {
		var err error
		resp, err = c.service.Spreadsheets.Get(c.spreadsheetID).
			Fields("sheets.properties").
			Context(ctx).
			Do()
		return err
	})
	if err != nil {
		return 0, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, s := range resp.Sheets {
		if s.Properties != nil {
			c.sheetIDs[s.Properties.Title] = s.Properties.SheetId
		}
	}
	id, ok = c.sheetIDs[title]
	if !ok {
		return 0, fmt.Errorf("sheetID: worksheet %q not found in spreadsheet", title)
	}
	return id, nil
}

// retry runs fn, retrying transient failures with linear backoff. The
// returned error is classified into the domain taxonomy.
func (c *Client) retry(ctx context.Context, op string, fn func() error) error {
	for attempt := 0; ; attempt++ {
		err := classify(op, fn())
		if err == nil || !c.retryable(err, attempt) {
			return err
		}
		if werr := c.wait(ctx, op, attempt, err); werr != nil {
			return werr
		}
	}
}

func (c *Client) retryable(err error, attempt int) bool {
	return errors.Is(err, domain.ErrUpstreamUnavailable) && attempt < c.maxRetries
}

// wait sleeps for the backoff of the given attempt or until ctx is done.
func (c *Client) wait(ctx context.Context, op string, attempt int, cause error) error {
	d := time.Duration(attempt+1) * c.backoff
	log := logger.FromContext(ctx)
	log.Warn().
		Err(cause).
		Str("op", op).
		Int("attempt", attempt+1).
		Dur("wait", d).
		Msg("Sheets call failed, retrying")

	select {
	case <-ctx.Done():
		return domain.Unavailable(op, ctx.Err())
	case <-time.After(d):
		return nil
	}
}

// classify maps API and transport errors onto domain errors. Rate limits,
// server errors, timeouts and network failures are upstream-unavailable.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		if apiErr.Code == http.StatusTooManyRequests || apiErr.Code >= 500 {
			return domain.Unavailable(op, err)
		}
		if apiErr.Code == http.StatusNotFound {
			return domain.NotFoundf("%s: %v", op, err)
		}
		return fmt.Errorf("%s: %w", op, err)
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return domain.Unavailable(op, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return domain.Unavailable(op, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

// a1 builds an A1 range, quoting the sheet title.
func a1(sheet, cell string) string {
	title := "'" + strings.ReplaceAll(sheet, "'", "''") + "'"
	if cell == "" {
		return title
	}
	return title + "!" + cell
}
