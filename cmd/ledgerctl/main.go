package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/odyssey-erp/odyssey-ledger/cmd/ledgerctl/cli"
	"github.com/odyssey-erp/odyssey-ledger/internal/app"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

const usage = `usage: ledgerctl <command> [flags]

commands:
  migrate                          apply the embedded Postgres schema
  rates import -source FILE        import daily exchange rates from CSV
  verify                           audit ledger rows against stored balances
  jobs trigger -job NAME           enqueue ledger:integrity or ledger:followup
  jobs stats                       print default queue depth
`

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	os.Exit(run(ctx, os.Args[1:], os.Stdout, os.Stderr))
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprint(stderr, usage)
		return 2
	}
	_ = godotenv.Load()
	cfg, err := app.LoadConfig()
	if err != nil {
		fmt.Fprintf(stderr, "load config: %v\n", err)
		return 1
	}
	logger := app.NewLogger(cfg)

	switch args[0] {
	case "migrate":
		cfg.PGAutoMigrate = true
		cfg.Store = app.StorePostgres
		rt, err := app.Bootstrap(ctx, cfg, logger)
		if err != nil {
			fmt.Fprintf(stderr, "migrate: %v\n", err)
			return 1
		}
		rt.Close()
		fmt.Fprintln(stdout, "schema up to date")
		return 0
	case "rates":
		if len(args) < 2 || args[1] != "import" {
			fmt.Fprint(stderr, usage)
			return 2
		}
		return ratesImport(ctx, cfg, logger, args[2:], stdout, stderr)
	case "verify":
		return verify(ctx, cfg, logger, args[1:], stdout, stderr)
	case "jobs":
		return jobsCommand(ctx, cfg, args[1:], stdout, stderr)
	default:
		fmt.Fprint(stderr, usage)
		return 2
	}
}

func tenantFlags(fs *flag.FlagSet, cfg *app.Config) (*int64, *string) {
	tenant := fs.Int64("tenant", firstTenant(cfg), "tenant id")
	base := fs.String("base", cfg.BaseCurrency, "tenant base currency")
	return tenant, base
}

func firstTenant(cfg *app.Config) int64 {
	if len(cfg.Tenants) > 0 {
		return cfg.Tenants[0]
	}
	return 1
}

func actorContext(ctx context.Context, tenantID int64, base string) context.Context {
	return shared.ContextWithActor(ctx, shared.Actor{TenantID: tenantID, BaseCurrency: base})
}

func ratesImport(ctx context.Context, cfg *app.Config, logger *slog.Logger, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("rates import", flag.ContinueOnError)
	fs.SetOutput(stderr)
	tenant, base := tenantFlags(fs, cfg)
	source := fs.String("source", "", "CSV file with from,to,date,rate columns (- for stdin)")
	mode := fs.String("mode", string(cli.RatesImportModeDry), "dry or apply")
	asJSON := fs.Bool("json", false, "print a JSON summary")
	yes := fs.Bool("yes", false, "skip the confirmation prompt")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	rt, err := app.Bootstrap(ctx, cfg, logger)
	if err != nil {
		fmt.Fprintf(stderr, "rates import: %v\n", err)
		return 1
	}
	defer rt.Close()
	ratesCLI, err := cli.NewRatesCLI(rt.Engine)
	if err != nil {
		fmt.Fprintf(stderr, "rates import: %v\n", err)
		return 1
	}
	opts := cli.RatesImportOptions{
		Mode:       cli.RatesImportMode(*mode),
		Source:     *source,
		JSONOutput: *asJSON,
		Stdout:     stdout,
		Stderr:     stderr,
	}
	if *yes {
		opts.Confirm = func(io.Reader, io.Writer) (bool, error) { return true, nil }
	}
	return ratesCLI.ImportCommand(actorContext(ctx, *tenant, *base), opts)
}

func verify(ctx context.Context, cfg *app.Config, logger *slog.Logger, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("verify", flag.ContinueOnError)
	fs.SetOutput(stderr)
	tenant, base := tenantFlags(fs, cfg)
	asJSON := fs.Bool("json", false, "print the report as JSON")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	rt, err := app.Bootstrap(ctx, cfg, logger)
	if err != nil {
		fmt.Fprintf(stderr, "verify: %v\n", err)
		return 1
	}
	defer rt.Close()
	return cli.VerifyCommand(actorContext(ctx, *tenant, *base), rt.Engine, cli.VerifyOptions{
		JSONOutput: *asJSON,
		Stdout:     stdout,
		Stderr:     stderr,
	})
}

func jobsCommand(ctx context.Context, cfg *app.Config, args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprint(stderr, usage)
		return 2
	}
	jobsCLI, err := cli.NewJobsCLI(cfg.RedisAddr)
	if err != nil {
		fmt.Fprintf(stderr, "jobs: %v\n", err)
		return 1
	}
	defer jobsCLI.Close()

	switch args[0] {
	case "trigger":
		fs := flag.NewFlagSet("jobs trigger", flag.ContinueOnError)
		fs.SetOutput(stderr)
		name := fs.String("job", "", "task type to enqueue")
		tenants := fs.String("tenants", "", "comma separated tenant ids (default: all configured)")
		if err := fs.Parse(args[1:]); err != nil {
			return 2
		}
		ids, err := parseTenants(*tenants)
		if err != nil {
			fmt.Fprintf(stderr, "jobs trigger: %v\n", err)
			return 2
		}
		info, err := jobsCLI.Trigger(ctx, *name, ids)
		if err != nil {
			fmt.Fprintf(stderr, "jobs trigger: %v\n", err)
			return 1
		}
		fmt.Fprintf(stdout, "enqueued %s as %s on %s\n", *name, info.ID, info.Queue)
		return 0
	case "stats":
		stats, err := jobsCLI.InspectQueue(ctx)
		if err != nil {
			fmt.Fprintf(stderr, "jobs stats: %v\n", err)
			return 1
		}
		fmt.Fprintf(stdout, "queue=%s pending=%d active=%d scheduled=%d retry=%d\n",
			stats.Queue, stats.Pending, stats.Active, stats.Scheduled, stats.Retry)
		return 0
	default:
		fmt.Fprint(stderr, usage)
		return 2
	}
}

func parseTenants(raw string) ([]int64, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	var ids []int64
	for _, part := range strings.Split(raw, ",") {
		id, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64)
		if err != nil || id <= 0 {
			return nil, fmt.Errorf("invalid tenant id %q", part)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
