package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"

	internal "github.com/edcwsx23QAZ/Lavsit-Textile-sub000/internal"
	"github.com/edcwsx23QAZ/Lavsit-Textile-sub000/internal/config"
	"github.com/edcwsx23QAZ/Lavsit-Textile-sub000/internal/export"
	"github.com/edcwsx23QAZ/Lavsit-Textile-sub000/internal/logging"
	"github.com/edcwsx23QAZ/Lavsit-Textile-sub000/internal/mailbox"
	gmailconnector "github.com/edcwsx23QAZ/Lavsit-Textile-sub000/internal/mailbox/gmail"
	imapconnector "github.com/edcwsx23QAZ/Lavsit-Textile-sub000/internal/mailbox/imap"
	"github.com/edcwsx23QAZ/Lavsit-Textile-sub000/internal/manual"
	"github.com/edcwsx23QAZ/Lavsit-Textile-sub000/internal/runner"
	"github.com/edcwsx23QAZ/Lavsit-Textile-sub000/internal/sources"
	"github.com/edcwsx23QAZ/Lavsit-Textile-sub000/internal/storage"
)

func main() {
	cfg, err := config.Load()
	must(err)
	logging.Setup(cfg.LogLevel, cfg.LogFormat)
	log := slog.Default()

	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	db, err := storage.Open(cfg.DBPath)
	must(err)
	defer db.Close()

	cmd := os.Args[1]
	switch cmd {
	case "run":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		supplierID := fs.Int64("supplier", 0, "supplier id")
		_ = fs.Parse(os.Args[2:])
		if *supplierID == 0 {
			must(fmt.Errorf("--supplier is required"))
		}
		result := runner.New(db, cfg).RunSupplier(context.Background(), *supplierID)
		printResult(result)
		if !result.Success {
			os.Exit(1)
		}
	case "run-all":
		results := runner.New(db, cfg).RunAll(context.Background())
		failed := 0
		for _, result := range results {
			printResult(result)
			if !result.Success {
				failed++
			}
		}
		path, err := export.NewExporter(db, cfg.OutputDir).RunResultsCSV(results)
		must(err)
		fmt.Printf("run-all done suppliers=%d failed=%d report=%s\n", len(results), failed, path)
	case "suppliers:list":
		suppliers, err := db.ListSuppliers()
		must(err)
		for _, s := range suppliers {
			last := "-"
			if s.LastUpdatedAt != nil {
				last = *s.LastUpdatedAt
			}
			fmt.Printf("%d\t%s\t%s\t%s\tfabrics=%d\tupdated=%s\n",
				s.ID, s.Name, s.Kind, s.Status, s.FabricCount, last)
			if s.LastError != nil {
				fmt.Printf("\tlast error: %s\n", *s.LastError)
			}
		}
	case "supplier:add":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		name := fs.String("name", "", "supplier name")
		kind := fs.String("kind", "", "sheet_url|sheet_url_dated|web_page|web_page_link|email")
		params := fs.String("params", "{}", "source params as JSON")
		_ = fs.Parse(os.Args[2:])
		if strings.TrimSpace(*name) == "" || strings.TrimSpace(*kind) == "" {
			must(fmt.Errorf("--name and --kind are required"))
		}
		var parsed internal.SourceParams
		must(json.Unmarshal([]byte(*params), &parsed))
		id, err := db.CreateSupplier(*name, internal.SupplierKind(*kind), parsed)
		must(err)
		fmt.Printf("supplier created id=%d name=%s kind=%s\n", id, *name, *kind)
	case "rules:show":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		supplierID := fs.Int64("supplier", 0, "supplier id")
		_ = fs.Parse(os.Args[2:])
		if *supplierID == 0 {
			must(fmt.Errorf("--supplier is required"))
		}
		blob, err := db.LoadRules(*supplierID)
		must(err)
		if blob == nil {
			fmt.Println("no rules stored; next run will infer them")
			return
		}
		fmt.Println(string(blob))
	case "rules:reset":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		supplierID := fs.Int64("supplier", 0, "supplier id")
		_ = fs.Parse(os.Args[2:])
		if *supplierID == 0 {
			must(fmt.Errorf("--supplier is required"))
		}
		must(db.DeleteRules(*supplierID))
		fmt.Printf("rules cleared for supplier %d; next run re-infers\n", *supplierID)
	case "mail:select":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		supplierID := fs.Int64("supplier", 0, "supplier id")
		_ = fs.Parse(os.Args[2:])
		if *supplierID == 0 {
			must(fmt.Errorf("--supplier is required"))
		}
		profile, err := db.GetSupplier(*supplierID)
		must(err)
		if profile == nil {
			must(fmt.Errorf("supplier %d not found", *supplierID))
		}
		if profile.Kind != internal.KindEmail || profile.Params.Mail == nil {
			must(fmt.Errorf("supplier %d is not an email source", *supplierID))
		}
		conn, err := makeConnector(cfg, profile.Params.Mail.Provider)
		must(err)
		selector := mailbox.NewSelector(db, conn, cfg.ScratchDir, cfg.MailDayWindow, log)
		validator := &sources.AttachmentAdapter{SheetName: profile.Params.SheetName}
		staged, err := selector.SelectFreshest(context.Background(), *profile, validator)
		must(err)
		if staged == nil {
			fmt.Println("no valid attachment found")
			return
		}
		fmt.Printf("selected %s received=%s staged=%s\n", staged.Filename, staged.ReceivedAt, staged.Path)
	case "manual:import":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		supplierID := fs.Int64("supplier", 0, "supplier id")
		file := fs.String("file", "", "xlsx or csv file")
		lock := fs.String("lock", "stock", "stock|price")
		_ = fs.Parse(os.Args[2:])
		if *supplierID == 0 || strings.TrimSpace(*file) == "" {
			must(fmt.Errorf("--supplier and --file are required"))
		}
		lockType := internal.LockType(*lock)
		if lockType != internal.LockStock && lockType != internal.LockPrice {
			must(fmt.Errorf("unknown lock type: %s", *lock))
		}
		count, err := manual.NewImporter(db, log).Import(*file, *supplierID, lockType)
		must(err)
		fmt.Printf("manual import done rows=%d lock=%s\n", count, *lock)
	case "lock:set":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		supplierID := fs.Int64("supplier", 0, "supplier id")
		lock := fs.String("type", "", "stock|price")
		active := fs.Bool("active", true, "activate or release")
		_ = fs.Parse(os.Args[2:])
		lockType := internal.LockType(*lock)
		if *supplierID == 0 || (lockType != internal.LockStock && lockType != internal.LockPrice) {
			must(fmt.Errorf("--supplier and --type=stock|price are required"))
		}
		must(db.SetLock(*supplierID, lockType, *active))
		fmt.Printf("lock %s active=%v for supplier %d\n", *lock, *active, *supplierID)
	case "exclude:set":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		supplierID := fs.Int64("supplier", 0, "supplier id")
		collection := fs.String("collection", "", "collection name")
		color := fs.String("color", "", "color number")
		clear := fs.Bool("clear", false, "clear the marker instead")
		_ = fs.Parse(os.Args[2:])
		if *supplierID == 0 || strings.TrimSpace(*collection) == "" {
			must(fmt.Errorf("--supplier and --collection are required"))
		}
		if strings.TrimSpace(*color) == "" {
			must(db.ExcludeCollection(*supplierID, *collection))
			fmt.Printf("collection %q excluded for supplier %d\n", *collection, *supplierID)
			return
		}
		must(db.SetExclusion(*supplierID, *collection, *color, !*clear))
		fmt.Printf("exclusion=%v for %q / %q\n", !*clear, *collection, *color)
	case "export:csv":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		supplierID := fs.Int64("supplier", 0, "supplier id")
		_ = fs.Parse(os.Args[2:])
		if *supplierID == 0 {
			must(fmt.Errorf("--supplier is required"))
		}
		path, err := export.NewExporter(db, cfg.OutputDir).CatalogCSV(*supplierID)
		must(err)
		fmt.Printf("exported to %s\n", path)
	case "export:xlsx":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		supplierID := fs.Int64("supplier", 0, "supplier id")
		_ = fs.Parse(os.Args[2:])
		if *supplierID == 0 {
			must(fmt.Errorf("--supplier is required"))
		}
		path, err := export.NewExporter(db, cfg.OutputDir).CatalogXLSX(*supplierID)
		must(err)
		fmt.Printf("exported to %s\n", path)
	default:
		usage()
		os.Exit(1)
	}
}

func makeConnector(cfg config.Config, provider string) (mailbox.Connector, error) {
	switch strings.ToLower(strings.TrimSpace(provider)) {
	case "gmail":
		return gmailconnector.NewConnector(cfg)
	case "imap", "":
		return imapconnector.NewConnector(cfg)
	default:
		return nil, fmt.Errorf("unsupported provider: %s", provider)
	}
}

func printResult(r internal.RunResult) {
	if r.Success {
		fmt.Printf("supplier %d (%s): created=%d updated=%d skipped_excluded=%d skipped_unchanged=%d failed=%d\n",
			r.SupplierID, r.SupplierName, r.Created, r.Updated, r.SkippedExcluded, r.SkippedUnchanged, r.Failed)
		return
	}
	fmt.Printf("supplier %d (%s): FAILED: %s\n", r.SupplierID, r.SupplierName, r.ErrorMessage)
}

func usage() {
	fmt.Println("usage: lavsit <command>")
	fmt.Println("commands:")
	fmt.Println("  run --supplier=1")
	fmt.Println("  run-all")
	fmt.Println("  suppliers:list")
	fmt.Println("  supplier:add --name=... --kind=sheet_url|sheet_url_dated|web_page|web_page_link|email [--params='{...}']")
	fmt.Println("  rules:show --supplier=1")
	fmt.Println("  rules:reset --supplier=1")
	fmt.Println("  mail:select --supplier=1")
	fmt.Println("  manual:import --supplier=1 --file=./stock.xlsx --lock=stock|price")
	fmt.Println("  lock:set --supplier=1 --type=stock|price [--active=false]")
	fmt.Println("  exclude:set --supplier=1 --collection=... [--color=...] [--clear]")
	fmt.Println("  export:csv --supplier=1")
	fmt.Println("  export:xlsx --supplier=1")
}

func must(err error) {
	if err == nil {
		return
	}
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}
