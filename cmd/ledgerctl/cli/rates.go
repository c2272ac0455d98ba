package cli

import (
	"bufio"
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/fx"
)

// RatesImportMode enumerates supported execution strategies.
type RatesImportMode string

const (
	// RatesImportModeDry parses and validates rows without storing them.
	RatesImportModeDry RatesImportMode = "dry"
	// RatesImportModeApply stores rates after confirmation.
	RatesImportModeApply RatesImportMode = "apply"
)

// RateWriter stores a daily rate for the tenant in context.
type RateWriter interface {
	PutRate(ctx context.Context, rate fx.Rate) (fx.Rate, error)
}

// RatesCLI imports exchange rates from CSV.
type RatesCLI struct {
	writer RateWriter
}

// NewRatesCLI constructs the helper.
func NewRatesCLI(writer RateWriter) (*RatesCLI, error) {
	if writer == nil {
		return nil, errors.New("rates cli: writer is required")
	}
	return &RatesCLI{writer: writer}, nil
}

// RatesImportOptions configures the import command.
type RatesImportOptions struct {
	Mode         RatesImportMode
	Source       string
	SourceReader io.Reader
	JSONOutput   bool
	Stdout       io.Writer
	Stderr       io.Writer
	Stdin        io.Reader
	Confirm      func(io.Reader, io.Writer) (bool, error)
}

// RateRow is one parsed CSV row.
type RateRow struct {
	From string `json:"from"`
	To   string `json:"to"`
	Date string `json:"date"`
	Rate string `json:"rate"`
}

// RatesImportSummary captures the structured reporting outcome.
type RatesImportSummary struct {
	Mode    RatesImportMode `json:"mode"`
	Rows    []RateRow       `json:"rows"`
	Applied int             `json:"applied"`
}

// ImportCommand executes the import workflow and returns the process exit code.
func (c *RatesCLI) ImportCommand(ctx context.Context, opts RatesImportOptions) int {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	if opts.Stdin == nil {
		opts.Stdin = os.Stdin
	}
	if opts.Mode == "" {
		opts.Mode = RatesImportModeDry
	}
	mode := RatesImportMode(strings.ToLower(string(opts.Mode)))
	switch mode {
	case RatesImportModeDry, RatesImportModeApply:
	default:
		fmt.Fprintf(opts.Stderr, "rates import: invalid mode %q (expected dry or apply)\n", opts.Mode)
		return 1
	}

	rates, err := loadRates(opts)
	if err != nil {
		fmt.Fprintf(opts.Stderr, "rates import: %v\n", err)
		return 1
	}
	summary := RatesImportSummary{Mode: mode, Rows: make([]RateRow, len(rates))}
	for i, rate := range rates {
		summary.Rows[i] = RateRow{From: rate.From, To: rate.To, Date: rate.Date.Format(time.DateOnly), Rate: rate.Rate.String()}
	}
	if mode == RatesImportModeDry || len(rates) == 0 {
		return c.finish(opts, summary)
	}

	confirm := opts.Confirm
	if confirm == nil {
		confirm = defaultConfirm
	}
	ok, err := confirm(opts.Stdin, opts.Stdout)
	if err != nil {
		fmt.Fprintf(opts.Stderr, "rates import: confirmation failed: %v\n", err)
		return 1
	}
	if !ok {
		fmt.Fprintln(opts.Stderr, "rates import: cancelled by user")
		return 1
	}
	for _, rate := range rates {
		if _, err := c.writer.PutRate(ctx, rate); err != nil {
			fmt.Fprintf(opts.Stderr, "rates import: %s%s on %s: %v\n", rate.From, rate.To, rate.Date.Format(time.DateOnly), err)
			return 1
		}
		summary.Applied++
	}
	return c.finish(opts, summary)
}

func (c *RatesCLI) finish(opts RatesImportOptions, summary RatesImportSummary) int {
	if opts.JSONOutput {
		if err := json.NewEncoder(opts.Stdout).Encode(summary); err != nil {
			fmt.Fprintf(opts.Stderr, "rates import: %v\n", err)
			return 1
		}
		return 0
	}
	fmt.Fprintf(opts.Stdout, "Rates import (%s): %d row(s)\n", summary.Mode, len(summary.Rows))
	for _, row := range summary.Rows {
		fmt.Fprintf(opts.Stdout, " - %s %s/%s %s\n", row.Date, row.From, row.To, row.Rate)
	}
	if summary.Mode == RatesImportModeApply {
		fmt.Fprintf(opts.Stdout, "Applied %d rate(s).\n", summary.Applied)
	}
	return 0
}

// loadRates reads a CSV with from, to, date and rate columns. Blank lines and
// lines starting with # are skipped.
func loadRates(opts RatesImportOptions) ([]fx.Rate, error) {
	var data []byte
	var err error
	switch {
	case opts.SourceReader != nil:
		data, err = io.ReadAll(opts.SourceReader)
	case opts.Source == "-":
		data, err = io.ReadAll(opts.Stdin)
	case strings.TrimSpace(opts.Source) == "":
		return nil, errors.New("--source is required")
	default:
		data, err = os.ReadFile(opts.Source)
	}
	if err != nil {
		return nil, err
	}
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, nil
	}
	reader := csv.NewReader(bytes.NewReader(data))
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1
	header, err := nextNonEmptyRecord(reader)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, err
	}
	indexes := map[string]int{"from": -1, "to": -1, "date": -1, "rate": -1}
	for i, col := range header {
		key := strings.ToLower(strings.TrimSpace(col))
		if _, ok := indexes[key]; ok {
			indexes[key] = i
		}
	}
	for col, idx := range indexes {
		if idx < 0 {
			return nil, fmt.Errorf("missing required column %q (need from, to, date, rate)", col)
		}
	}

	var rates []fx.Rate
	line := 1
	for {
		record, err := nextNonEmptyRecord(reader)
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, err
		}
		line++
		for _, idx := range indexes {
			if idx >= len(record) {
				return nil, fmt.Errorf("row %d: invalid record length", line)
			}
		}
		from, err := fx.ValidateCurrency(record[indexes["from"]])
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", line, err)
		}
		to, err := fx.ValidateCurrency(record[indexes["to"]])
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", line, err)
		}
		date, err := time.Parse(time.DateOnly, strings.TrimSpace(record[indexes["date"]]))
		if err != nil {
			return nil, fmt.Errorf("row %d: invalid date %q (expected YYYY-MM-DD)", line, record[indexes["date"]])
		}
		rate, err := decimal.NewFromString(strings.TrimSpace(record[indexes["rate"]]))
		if err != nil || !rate.IsPositive() {
			return nil, fmt.Errorf("row %d: rate must be a positive decimal", line)
		}
		rates = append(rates, fx.Rate{From: from, To: to, Date: date, Rate: rate})
	}
	sort.SliceStable(rates, func(i, j int) bool { return rates[i].Date.Before(rates[j].Date) })
	return rates, nil
}

func nextNonEmptyRecord(r *csv.Reader) ([]string, error) {
	for {
		record, err := r.Read()
		if err != nil {
			return nil, err
		}
		skip := true
		for _, field := range record {
			trimmed := strings.TrimSpace(field)
			if trimmed == "" || strings.HasPrefix(trimmed, "#") {
				continue
			}
			skip = false
		}
		if skip {
			continue
		}
		return record, nil
	}
}

func defaultConfirm(in io.Reader, out io.Writer) (bool, error) {
	fmt.Fprint(out, "Apply rates? [y/N]: ")
	answer, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return false, err
	}
	answer = strings.ToLower(strings.TrimSpace(answer))
	return answer == "y" || answer == "yes", nil
}
