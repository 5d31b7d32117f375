package mailbox

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	internal "github.com/edcwsx23QAZ/Lavsit-Textile-sub000/internal"
	"github.com/edcwsx23QAZ/Lavsit-Textile-sub000/internal/sources"
	"github.com/edcwsx23QAZ/Lavsit-Textile-sub000/internal/storage"
)

// Selector chooses, among candidate messages, the single freshest attachment
// that passes content validation. Vendors resend stale files; only the
// newest verifiably-valid one may reach reconciliation.
type Selector struct {
	db         *storage.DB
	connector  Connector
	scratchDir string
	dayWindow  int
	log        *slog.Logger
}

func NewSelector(db *storage.DB, connector Connector, scratchDir string, dayWindow int, log *slog.Logger) *Selector {
	if dayWindow <= 0 {
		dayWindow = 7
	}
	return &Selector{db: db, connector: connector, scratchDir: scratchDir, dayWindow: dayWindow, log: log}
}

type candidate struct {
	message  Message
	filename string
	path     string
	hash     string
}

// SelectFreshest scans candidate messages in order. Per message, attachments
// are staged and validated until the first valid one; across messages the
// maximal message date wins, ties broken by encounter order. Only the winner
// is recorded as a tracked processing unit (processed=false); every other
// staged file is removed. Returns nil when no candidate validates.
func (s *Selector) SelectFreshest(ctx context.Context, profile internal.SupplierProfile, validator sources.FileValidator) (*internal.StagedAttachment, error) {
	filter := profile.Params.Mail
	if filter == nil {
		return nil, fmt.Errorf("supplier %d has no mail filter", profile.ID)
	}

	window := filter.DayWindow
	if window <= 0 {
		window = s.dayWindow
	}
	criteria := SearchCriteria{
		Mailbox:         filter.Mailbox,
		Since:           time.Now().AddDate(0, 0, -window),
		UnseenOnly:      filter.UnseenOnly,
		From:            filter.From,
		SubjectContains: filter.SubjectContains,
		Max:             50,
	}

	messages, err := s.connector.Fetch(ctx, criteria)
	if err != nil {
		return nil, &sources.SourceUnavailableError{Source: "mailbox " + filter.Mailbox, Err: err}
	}

	if err := os.MkdirAll(s.scratchDir, 0o755); err != nil {
		return nil, err
	}

	var candidates []candidate
	for _, msg := range messages {
		if !msg.MatchesFilters(criteria) {
			continue
		}
		for _, att := range msg.Attachments {
			if !sources.LooksLikeSpreadsheet(att.Filename, att.ContentType) {
				continue
			}

			hashBytes := sha256.Sum256(att.Content)
			hash := hex.EncodeToString(hashBytes[:])
			path := filepath.Join(s.scratchDir, hash+"_"+sanitizeFilename(att.Filename))
			if err := os.WriteFile(path, att.Content, 0o644); err != nil {
				s.log.Warn("stage attachment failed", "filename", att.Filename, "error", err)
				continue
			}

			if !validator.ValidateFile(path) {
				s.log.Debug("attachment failed validation", "filename", att.Filename, "message_id", msg.MessageID)
				_ = os.Remove(path)
				continue
			}

			candidates = append(candidates, candidate{message: msg, filename: att.Filename, path: path, hash: hash})
			// First valid attachment per message wins.
			break
		}
	}

	if len(candidates) == 0 {
		return nil, nil
	}

	best := 0
	for i := 1; i < len(candidates); i++ {
		if candidates[i].message.Date.After(candidates[best].message.Date) {
			best = i
		}
	}
	for i, c := range candidates {
		if i != best {
			_ = os.Remove(c.path)
		}
	}

	winner := candidates[best]
	staged := internal.StagedAttachment{
		SupplierID: profile.ID,
		MessageID:  winner.message.MessageID,
		Subject:    winner.message.Subject,
		ReceivedAt: winner.message.Date.UTC().Format(time.RFC3339),
		Filename:   winner.filename,
		Hash:       winner.hash,
		Path:       winner.path,
	}
	id, err := s.db.InsertAttachment(staged)
	if err != nil {
		return nil, err
	}
	staged.ID = id

	s.log.Info("attachment selected",
		"filename", staged.Filename, "message_id", staged.MessageID,
		"received_at", staged.ReceivedAt, "candidates", len(candidates))
	return &staged, nil
}

func sanitizeFilename(input string) string {
	repl := strings.NewReplacer("<", "_", ">", "_", ":", "_", "/", "_", "\\", "_", "|", "_", "?", "_", "*", "_", " ", "_")
	out := repl.Replace(input)
	if len(out) > 120 {
		out = out[:120]
	}
	return out
}
