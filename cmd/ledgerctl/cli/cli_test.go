package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-ledger/internal/engine"
	"github.com/odyssey-erp/odyssey-ledger/internal/ledger"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
	"github.com/odyssey-erp/odyssey-ledger/internal/store/memory"
	"github.com/odyssey-erp/odyssey-ledger/jobs"
)

func tenantCtx() context.Context {
	return shared.ContextWithActor(context.Background(), shared.Actor{TenantID: 1, BaseCurrency: "LKR"})
}

const ratesCSV = `# daily close
from,to,date,rate
usd,lkr,2024-01-03,301.5

USD,LKR,2024-01-02,300
`

func TestImportCommandDryRunDoesNotWrite(t *testing.T) {
	eng := engine.New(memory.New(), engine.Config{BaseCurrency: "LKR"}, nil, nil)
	cli, err := NewRatesCLI(eng)
	require.NoError(t, err)

	stdout := new(bytes.Buffer)
	code := cli.ImportCommand(tenantCtx(), RatesImportOptions{
		SourceReader: strings.NewReader(ratesCSV),
		JSONOutput:   true,
		Stdout:       stdout,
		Stderr:       io.Discard,
	})
	require.Equal(t, 0, code)

	var summary RatesImportSummary
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &summary))
	require.Equal(t, RatesImportModeDry, summary.Mode)
	require.Equal(t, []RateRow{
		{From: "USD", To: "LKR", Date: "2024-01-02", Rate: "300"},
		{From: "USD", To: "LKR", Date: "2024-01-03", Rate: "301.5"},
	}, summary.Rows)

	_, err = eng.GetRate(tenantCtx(), "USD", "LKR", time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC))
	require.ErrorIs(t, err, shared.ErrRateNotFound)
}

func TestImportCommandApplyStoresRates(t *testing.T) {
	eng := engine.New(memory.New(), engine.Config{BaseCurrency: "LKR"}, nil, nil)
	cli, err := NewRatesCLI(eng)
	require.NoError(t, err)

	stdout := new(bytes.Buffer)
	code := cli.ImportCommand(tenantCtx(), RatesImportOptions{
		Mode:         RatesImportModeApply,
		SourceReader: strings.NewReader(ratesCSV),
		Stdout:       stdout,
		Stderr:       io.Discard,
		Confirm:      func(io.Reader, io.Writer) (bool, error) { return true, nil },
	})
	require.Equal(t, 0, code)
	require.Contains(t, stdout.String(), "Applied 2 rate(s).")

	rate, err := eng.GetRate(tenantCtx(), "USD", "LKR", time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.True(t, rate.Equal(decimal.RequireFromString("301.5")))
}

func TestImportCommandRejectsBadInput(t *testing.T) {
	eng := engine.New(memory.New(), engine.Config{BaseCurrency: "LKR"}, nil, nil)
	cli, err := NewRatesCLI(eng)
	require.NoError(t, err)

	cases := map[string]string{
		"missing column": "from,to,rate\nUSD,LKR,300\n",
		"bad currency":   "from,to,date,rate\nXXZ,LKR,2024-01-02,300\n",
		"bad rate":       "from,to,date,rate\nUSD,LKR,2024-01-02,-1\n",
		"bad date":       "from,to,date,rate\nUSD,LKR,02/01/2024,300\n",
	}
	for name, source := range cases {
		stderr := new(bytes.Buffer)
		code := cli.ImportCommand(tenantCtx(), RatesImportOptions{
			SourceReader: strings.NewReader(source),
			Stdout:       io.Discard,
			Stderr:       stderr,
		})
		require.Equal(t, 1, code, name)
		require.Contains(t, stderr.String(), "rates import:", name)
	}

	code := cli.ImportCommand(tenantCtx(), RatesImportOptions{
		Mode: "merge", SourceReader: strings.NewReader(ratesCSV), Stdout: io.Discard, Stderr: io.Discard,
	})
	require.Equal(t, 1, code)
}

func TestImportCommandCancelled(t *testing.T) {
	eng := engine.New(memory.New(), engine.Config{BaseCurrency: "LKR"}, nil, nil)
	cli, err := NewRatesCLI(eng)
	require.NoError(t, err)
	code := cli.ImportCommand(tenantCtx(), RatesImportOptions{
		Mode:         RatesImportModeApply,
		SourceReader: strings.NewReader(ratesCSV),
		Stdin:        strings.NewReader("n\n"),
		Stdout:       io.Discard,
		Stderr:       io.Discard,
	})
	require.Equal(t, 1, code)
}

type stubAuditor struct {
	report ledger.IntegrityReport
}

func (s stubAuditor) VerifyIntegrity(context.Context) (ledger.IntegrityReport, error) {
	return s.report, nil
}

func TestVerifyCommandExitCodes(t *testing.T) {
	stdout := new(bytes.Buffer)
	require.Equal(t, 0, VerifyCommand(context.Background(), stubAuditor{report: ledger.IntegrityReport{Transactions: 2}}, VerifyOptions{Stdout: stdout}))
	require.Contains(t, stdout.String(), "Ledger is consistent.")

	stdout.Reset()
	drift := ledger.IntegrityReport{Drift: []ledger.AccountDrift{{
		AccountID: 4, Currency: "LKR", Stored: decimal.NewFromInt(10), Expected: decimal.NewFromInt(8),
	}}}
	require.Equal(t, ExitViolations, VerifyCommand(context.Background(), stubAuditor{report: drift}, VerifyOptions{Stdout: stdout}))
	require.Contains(t, stdout.String(), "account 4 LKR: stored 10, rows sum to 8")
}

func TestVerifyCommandAgainstEngine(t *testing.T) {
	eng := engine.New(memory.New(), engine.Config{BaseCurrency: "LKR"}, nil, nil)
	ctx := tenantCtx()
	cash, err := eng.OpenAccount(ctx, ledger.Account{Code: "1000", Name: "Cash", Type: ledger.AccountTypeAsset})
	require.NoError(t, err)
	equity, err := eng.OpenAccount(ctx, ledger.Account{Code: "3000", Name: "Capital", Type: ledger.AccountTypeEquity})
	require.NoError(t, err)
	_, err = eng.CreateJournalEntry(ctx, "", ledger.JournalInput{Lines: []ledger.Line{
		ledger.Debit(cash.ID, decimal.NewFromInt(100)),
		ledger.Credit(equity.ID, decimal.NewFromInt(100)),
	}})
	require.NoError(t, err)

	stdout := new(bytes.Buffer)
	require.Equal(t, 0, VerifyCommand(ctx, eng, VerifyOptions{JSONOutput: true, Stdout: stdout}))
	require.Contains(t, stdout.String(), `"Transactions":1`)
}

func TestJobsCLITriggerEnqueues(t *testing.T) {
	mr := miniredis.RunT(t)
	jobsCLI, err := NewJobsCLI(mr.Addr())
	require.NoError(t, err)
	t.Cleanup(func() { _ = jobsCLI.Close() })

	info, err := jobsCLI.Trigger(context.Background(), jobs.TaskLedgerIntegrity, []int64{1})
	require.NoError(t, err)
	require.Equal(t, jobs.QueueDefault, info.Queue)

	_, err = jobsCLI.Trigger(context.Background(), "mail:send", nil)
	require.ErrorContains(t, err, "unsupported job")
}
