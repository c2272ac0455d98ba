package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/odyssey-erp/odyssey-ledger/internal/ledger"
)

// ExitViolations is returned when the audit finds problems.
const ExitViolations = 10

// Auditor runs the ledger audit for the tenant in context.
type Auditor interface {
	VerifyIntegrity(ctx context.Context) (ledger.IntegrityReport, error)
}

// VerifyOptions configures the verify command.
type VerifyOptions struct {
	JSONOutput bool
	Stdout     io.Writer
	Stderr     io.Writer
}

// VerifyCommand audits the ledger and returns the process exit code.
func VerifyCommand(ctx context.Context, auditor Auditor, opts VerifyOptions) int {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	report, err := auditor.VerifyIntegrity(ctx)
	if err != nil {
		fmt.Fprintf(opts.Stderr, "verify: %v\n", err)
		return 1
	}
	if opts.JSONOutput {
		if err := json.NewEncoder(opts.Stdout).Encode(report); err != nil {
			fmt.Fprintf(opts.Stderr, "verify: %v\n", err)
			return 1
		}
	} else {
		renderReport(opts.Stdout, report)
	}
	if !report.OK() {
		return ExitViolations
	}
	return 0
}

func renderReport(out io.Writer, report ledger.IntegrityReport) {
	fmt.Fprintf(out, "Checked %d transaction(s), %d row(s), %d account(s)\n", report.Transactions, report.Rows, report.Accounts)
	if report.OK() {
		fmt.Fprintln(out, "Ledger is consistent.")
		return
	}
	for _, anomaly := range report.Anomalies {
		fmt.Fprintf(out, " - transaction %s: %s\n", anomaly.TransactionID, anomaly.Reason)
	}
	for _, drift := range report.Drift {
		fmt.Fprintf(out, " - account %d %s: stored %s, rows sum to %s\n", drift.AccountID, drift.Currency, drift.Stored, drift.Expected)
	}
}
