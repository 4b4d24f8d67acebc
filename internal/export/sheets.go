// Package export pushes monthly aggregate snapshots to Google Sheets. The
// worker calls it after a rebuild; the sheet is a write-only mirror, never
// read back into the engine.
package export

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"time"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"conti/internal/core"
	"conti/internal/log"
)

// AggregateExporter mirrors rebuilt aggregates to an external sink.
type AggregateExporter interface {
	ExportAggregate(ctx context.Context, agg core.MonthlyAggregate) error
}

type SheetsConfig struct {
	SpreadsheetID      string
	SheetName          string
	ServiceAccountJSON string
	ServiceAccountFile string
}

// SheetsClient appends one row per rebuilt (user, year, month) aggregate to
// a spreadsheet, expanding each category line into its own row beneath it.
type SheetsClient struct {
	svc           *gsheet.Service
	spreadsheetID string
	sheetName     string
	logger        *log.Logger
}

var _ AggregateExporter = (*SheetsClient)(nil)

// NewSheetsClient builds a Sheets client from service account credentials,
// inline JSON taking precedence over a file path.
func NewSheetsClient(ctx context.Context, cfg SheetsConfig, logger *log.Logger) (*SheetsClient, error) {
	if cfg.SpreadsheetID == "" {
		return nil, errors.New("missing spreadsheet id")
	}
	sheetName := cfg.SheetName
	if sheetName == "" {
		sheetName = "Aggregates"
	}

	var credentialsJSON []byte
	switch {
	case cfg.ServiceAccountJSON != "":
		credentialsJSON = []byte(cfg.ServiceAccountJSON)
	case cfg.ServiceAccountFile != "":
		var err error
		credentialsJSON, err = os.ReadFile(cfg.ServiceAccountFile)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
	default:
		return nil, errors.New("missing service account credentials")
	}

	svc, err := gsheet.NewService(ctx,
		goption.WithCredentialsJSON(credentialsJSON),
		goption.WithScopes(gsheet.SpreadsheetsScope))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}

	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	return &SheetsClient{
		svc:           svc,
		spreadsheetID: cfg.SpreadsheetID,
		sheetName:     sheetName,
		logger:        logger.WithComponent(log.ComponentExport),
	}, nil
}

// ExportAggregate appends the aggregate as rows:
// user, year, month, selector, budgeted, spent, computed_at.
// The first row carries the totals under the "overall" selector.
func (c *SheetsClient) ExportAggregate(ctx context.Context, agg core.MonthlyAggregate) error {
	if c.svc == nil {
		return errors.New("sheets service not initialized")
	}

	computed := agg.ComputedAt.UTC().Format(time.RFC3339)
	values := [][]any{{
		agg.UserID, agg.Year, agg.Month, "total",
		agg.TotalBudgeted.String(), agg.TotalSpent.String(), computed,
	}}

	lines := make([]core.CategoryAggregate, len(agg.PerCategory))
	copy(lines, agg.PerCategory)
	sort.Slice(lines, func(i, j int) bool { return selector(lines[i]) < selector(lines[j]) })
	for _, line := range lines {
		values = append(values, []any{
			agg.UserID, agg.Year, agg.Month, selector(line),
			line.Budgeted.String(), line.Spent.String(), computed,
		})
	}

	rng := fmt.Sprintf("%s!A:G", c.sheetName)
	vr := &gsheet.ValueRange{Values: values}
	_, err := c.svc.Spreadsheets.Values.Append(c.spreadsheetID, rng, vr).
		ValueInputOption("USER_ENTERED").InsertDataOption("INSERT_ROWS").
		Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("append to sheet %s: %w", c.sheetName, err)
	}

	c.logger.InfoContext(ctx, "exported aggregate",
		log.FieldUserID, agg.UserID,
		log.FieldYear, agg.Year,
		log.FieldMonth, agg.Month,
		"rows", len(values))
	return nil
}

func selector(line core.CategoryAggregate) string {
	if line.Overall {
		return "overall"
	}
	return "category/" + line.CategoryID
}
