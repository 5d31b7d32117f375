// mail-poller runs the email-delivered suppliers on a fixed interval until
// interrupted.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/edcwsx23QAZ/Lavsit-Textile-sub000/internal/config"
	"github.com/edcwsx23QAZ/Lavsit-Textile-sub000/internal/logging"
	"github.com/edcwsx23QAZ/Lavsit-Textile-sub000/internal/runner"
	"github.com/edcwsx23QAZ/Lavsit-Textile-sub000/internal/storage"
)

func main() {
	cfg, err := config.Load()
	must(err)
	logging.Setup(cfg.LogLevel, cfg.LogFormat)

	db, err := storage.Open(cfg.DBPath)
	must(err)
	defer db.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	interval := time.Duration(cfg.PollIntervalSec) * time.Second
	r := runner.New(db, cfg)
	slog.Info("mail poller started", "interval", interval.String())

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		results := r.RunAllEmail(ctx)
		for _, result := range results {
			if result.Success {
				slog.Info("poll run ok", "supplier_id", result.SupplierID,
					"created", result.Created, "updated", result.Updated)
			} else {
				slog.Error("poll run failed", "supplier_id", result.SupplierID, "error", result.ErrorMessage)
			}
		}

		select {
		case <-ctx.Done():
			slog.Info("mail poller stopped")
			return
		case <-ticker.C:
		}
	}
}

func must(err error) {
	if err == nil {
		return
	}
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}
