// Package runner drives one supplier's full ingestion run and the
// fan-out over all suppliers. It owns the outer error boundary that moves a
// supplier between the active and error states.
package runner

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	internal "github.com/edcwsx23QAZ/Lavsit-Textile-sub000/internal"
	"github.com/edcwsx23QAZ/Lavsit-Textile-sub000/internal/config"
	"github.com/edcwsx23QAZ/Lavsit-Textile-sub000/internal/drift"
	"github.com/edcwsx23QAZ/Lavsit-Textile-sub000/internal/logging"
	"github.com/edcwsx23QAZ/Lavsit-Textile-sub000/internal/mailbox"
	gmailconnector "github.com/edcwsx23QAZ/Lavsit-Textile-sub000/internal/mailbox/gmail"
	imapconnector "github.com/edcwsx23QAZ/Lavsit-Textile-sub000/internal/mailbox/imap"
	"github.com/edcwsx23QAZ/Lavsit-Textile-sub000/internal/reconcile"
	"github.com/edcwsx23QAZ/Lavsit-Textile-sub000/internal/rules"
	"github.com/edcwsx23QAZ/Lavsit-Textile-sub000/internal/sources"
	"github.com/edcwsx23QAZ/Lavsit-Textile-sub000/internal/storage"
)

type Runner struct {
	db      *storage.DB
	cfg     config.Config
	engine  *reconcile.Engine
	fetcher *sources.Fetcher
}

func New(db *storage.DB, cfg config.Config) *Runner {
	return &Runner{
		db:      db,
		cfg:     cfg,
		engine:  reconcile.NewEngine(db, cfg.ReconcileBatch, slog.Default()),
		fetcher: sources.NewFetcher(time.Duration(cfg.HTTPTimeoutMs)*time.Millisecond, cfg.HTTPMaxRetries, cfg.FetchRateRPS),
	}
}

// RunSupplier executes fetch → normalize → reconcile for one supplier.
// Any fatal failure lands in the result and flips the supplier to error;
// a completed reconciliation, even with zero records, means active.
func (r *Runner) RunSupplier(ctx context.Context, supplierID int64) internal.RunResult {
	result := internal.RunResult{SupplierID: supplierID}

	profile, err := r.db.GetSupplier(supplierID)
	if err == nil && profile == nil {
		err = fmt.Errorf("supplier %d not found", supplierID)
	}
	if err != nil {
		result.ErrorMessage = err.Error()
		return result
	}
	result.SupplierName = profile.Name

	counts, runErr := r.runPipeline(ctx, *profile)
	result.Created = counts.Created
	result.Updated = counts.Updated
	result.SkippedExcluded = counts.SkippedExcluded
	result.SkippedUnchanged = counts.SkippedUnchanged
	result.Failed = counts.Failed

	if runErr != nil {
		result.ErrorMessage = runErr.Error()
		_ = r.db.SetSupplierStatus(supplierID, internal.StatusError, internal.StringPtr(runErr.Error()))
		return result
	}

	result.Success = true
	_ = r.db.SetSupplierStatus(supplierID, internal.StatusActive, nil)
	_ = r.db.RefreshSupplierAggregates(supplierID)
	return result
}

// RunAll launches one independent run per supplier and waits for all to
// settle. One supplier's failure never cancels or taints another's.
func (r *Runner) RunAll(ctx context.Context) []internal.RunResult {
	return r.runMany(ctx, nil)
}

// RunAllEmail restricts the fan-out to email-delivered suppliers; the poll
// daemon uses it.
func (r *Runner) RunAllEmail(ctx context.Context) []internal.RunResult {
	keep := internal.KindEmail
	return r.runMany(ctx, &keep)
}

func (r *Runner) runMany(ctx context.Context, kind *internal.SupplierKind) []internal.RunResult {
	suppliers, err := r.db.ListSuppliers()
	if err != nil {
		slog.Error("list suppliers failed", "error", err)
		return nil
	}

	var ids []int64
	for _, s := range suppliers {
		if kind != nil && s.Kind != *kind {
			continue
		}
		ids = append(ids, s.ID)
	}

	results := make([]internal.RunResult, len(ids))
	done := make(chan int, len(ids))
	for i, id := range ids {
		go func(i int, id int64) {
			results[i] = r.RunSupplier(ctx, id)
			done <- i
		}(i, id)
	}
	for range ids {
		<-done
	}
	return results
}

func (r *Runner) runPipeline(ctx context.Context, profile internal.SupplierProfile) (reconcile.Counts, error) {
	log := logging.ForSupplier(profile.ID, profile.Name)

	deps := sources.Deps{Fetcher: r.fetcher}
	var staged *internal.StagedAttachment
	if profile.Kind == internal.KindEmail {
		var err error
		staged, err = r.selectAttachment(ctx, profile, log)
		if err != nil {
			return reconcile.Counts{}, err
		}
		deps.StagedFile = staged.Path
	}

	adapter, err := sources.ForProfile(profile, deps)
	if err != nil {
		return reconcile.Counts{}, err
	}

	rr, err := r.loadOrInferRules(ctx, profile, adapter, log)
	if err != nil {
		return reconcile.Counts{}, err
	}

	parsed, err := adapter.Parse(ctx, rr)
	if err != nil {
		return reconcile.Counts{}, err
	}
	logging.Stage(log, "parse").Info("source parsed",
		"rows", parsed.RowsRead, "records", len(parsed.Records), "rows_skipped", parsed.RowsSkipped)

	r.checkDrift(profile.ID, parsed.Fingerprint, log)

	counts, err := r.engine.Reconcile(ctx, profile.ID, parsed.Records)
	if err != nil {
		return counts, err
	}
	logging.Stage(log, "reconcile").Info("catalog reconciled",
		"created", counts.Created, "updated", counts.Updated,
		"skipped_excluded", counts.SkippedExcluded,
		"skipped_unchanged", counts.SkippedUnchanged, "failed", counts.Failed)

	if staged != nil {
		_ = r.db.MarkAttachmentProcessed(staged.ID)
	}
	return counts, nil
}

// loadOrInferRules returns the stored rules, falling back to a one-time
// inference over sample rows. Inference persists its proposal so later runs
// skip it; it never re-runs once rules exist.
func (r *Runner) loadOrInferRules(ctx context.Context, profile internal.SupplierProfile, adapter sources.Adapter, log *slog.Logger) (rules.Rules, error) {
	blob, err := r.db.LoadRules(profile.ID)
	if err != nil {
		return rules.Rules{}, err
	}
	if blob != nil {
		return rules.Decode(blob)
	}

	analysis, err := adapter.Analyze(ctx)
	if err != nil {
		return rules.Rules{}, fmt.Errorf("rule inference: %w", err)
	}
	if len(analysis.SampleRows) == 0 {
		return rules.Rules{}, fmt.Errorf("supplier %d: %w", profile.ID, sources.ErrRulesMissing)
	}
	inferred := rules.Infer(analysis.SampleRows, rules.DefaultsFor(profile.Kind))

	encoded, err := inferred.Encode()
	if err != nil {
		return rules.Rules{}, err
	}
	if err := r.db.SaveRules(profile.ID, encoded); err != nil {
		return rules.Rules{}, err
	}
	logging.Stage(log, "infer").Info("parsing rules inferred",
		"header_row", inferred.HeaderRow, "skip_rows", len(inferred.SkipRows))
	return inferred, nil
}

// checkDrift compares and stores the layout fingerprint. A mismatch is only
// logged; it never blocks the run.
func (r *Runner) checkDrift(supplierID int64, fp internal.Fingerprint, log *slog.Logger) {
	prev, err := r.db.LoadFingerprint(supplierID)
	if err == nil && prev != nil && !drift.Equal(*prev, fp) {
		logging.Stage(log, "drift").Warn("source layout changed",
			"rows", fmt.Sprintf("%d->%d", prev.RowCount, fp.RowCount),
			"columns", fmt.Sprintf("%d->%d", prev.ColumnCount, fp.ColumnCount))
	}
	if err := r.db.SaveFingerprint(supplierID, fp); err != nil {
		log.Warn("save fingerprint failed", "error", err)
	}
}

func (r *Runner) selectAttachment(ctx context.Context, profile internal.SupplierProfile, log *slog.Logger) (*internal.StagedAttachment, error) {
	if profile.Params.Mail == nil {
		return nil, fmt.Errorf("supplier %d: email kind without mail filter", profile.ID)
	}

	connector, err := r.makeConnector(profile.Params.Mail.Provider)
	if err != nil {
		return nil, err
	}

	selector := mailbox.NewSelector(r.db, connector, r.cfg.ScratchDir, r.cfg.MailDayWindow, log)
	validator := &sources.AttachmentAdapter{SheetName: profile.Params.SheetName}
	staged, err := selector.SelectFreshest(ctx, profile, validator)
	if err != nil {
		return nil, err
	}
	if staged != nil {
		return staged, nil
	}

	// Nothing new in the window: fall back to a previously selected but
	// still unprocessed attachment before giving up.
	pending, err := r.db.LatestUnprocessedAttachment(profile.ID)
	if err != nil {
		return nil, err
	}
	if pending == nil {
		return nil, &sources.SourceUnavailableError{
			Source: "mailbox " + profile.Params.Mail.Mailbox,
			Err:    fmt.Errorf("no valid attachment in %d-day window", r.cfg.MailDayWindow),
		}
	}
	return pending, nil
}

func (r *Runner) makeConnector(provider string) (mailbox.Connector, error) {
	switch strings.ToLower(strings.TrimSpace(provider)) {
	case "gmail":
		return gmailconnector.NewConnector(r.cfg)
	case "imap", "":
		return imapconnector.NewConnector(r.cfg)
	default:
		return nil, fmt.Errorf("unsupported mail provider: %s", provider)
	}
}
