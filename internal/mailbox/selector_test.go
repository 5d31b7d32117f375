package mailbox

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	internal "github.com/edcwsx23QAZ/Lavsit-Textile-sub000/internal"
	"github.com/edcwsx23QAZ/Lavsit-Textile-sub000/internal/sources"
	"github.com/edcwsx23QAZ/Lavsit-Textile-sub000/internal/storage"
)

type fakeConnector struct {
	messages []Message
}

func (f *fakeConnector) Fetch(ctx context.Context, criteria SearchCriteria) ([]Message, error) {
	return f.messages, nil
}

func selectorFixture(t *testing.T, messages []Message) (*Selector, *storage.DB, internal.SupplierProfile, string) {
	t.Helper()
	dir := t.TempDir()
	db, err := storage.Open(filepath.Join(dir, "catalog.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })

	profile := internal.SupplierProfile{
		Kind: internal.KindEmail,
		Params: internal.SourceParams{Mail: &internal.MailFilter{
			Provider: "imap", Mailbox: "INBOX",
		}},
	}
	id, err := db.CreateSupplier("почтовый поставщик", internal.KindEmail, profile.Params)
	if err != nil {
		t.Fatal(err)
	}
	profile.ID = id

	scratch := filepath.Join(dir, "staged")
	selector := NewSelector(db, &fakeConnector{messages: messages}, scratch, 7, slog.Default())
	return selector, db, profile, scratch
}

func csvAttachment(filename, body string) Attachment {
	return Attachment{Filename: filename, ContentType: "text/csv", Content: []byte(body)}
}

func TestSelectFreshestPicksNewestValid(t *testing.T) {
	now := time.Now().UTC()
	messages := []Message{
		{
			MessageID: "<old@vendor>", Subject: "Остатки",
			Date:        now.Add(-48 * time.Hour),
			Attachments: []Attachment{csvAttachment("old.csv", "collection;color\nMira;014\n")},
		},
		{
			MessageID: "<new@vendor>", Subject: "Остатки",
			Date:        now.Add(-1 * time.Hour),
			Attachments: []Attachment{csvAttachment("new.csv", "collection;color\nVerona;22\n")},
		},
	}
	selector, db, profile, scratch := selectorFixture(t, messages)

	staged, err := selector.SelectFreshest(context.Background(), profile, &sources.AttachmentAdapter{})
	if err != nil {
		t.Fatal(err)
	}
	if staged == nil || staged.MessageID != "<new@vendor>" || staged.Filename != "new.csv" {
		t.Fatalf("staged: %+v", staged)
	}
	if staged.Processed {
		t.Fatal("winner must await processing")
	}
	if _, err := os.Stat(staged.Path); err != nil {
		t.Fatalf("winner file must exist: %v", err)
	}

	// Only the winner survives in the scratch dir.
	entries, err := os.ReadDir(scratch)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("scratch entries: %d", len(entries))
	}

	pending, err := db.LatestUnprocessedAttachment(profile.ID)
	if err != nil || pending == nil || pending.ID != staged.ID {
		t.Fatalf("pending: %+v %v", pending, err)
	}
}

func TestSelectFreshestSkipsInvalidAttachments(t *testing.T) {
	now := time.Now().UTC()
	messages := []Message{
		{
			// Newest message, but its attachment does not decode.
			MessageID: "<broken@vendor>", Date: now,
			Attachments: []Attachment{csvAttachment("broken.csv", "")},
		},
		{
			MessageID: "<good@vendor>", Date: now.Add(-24 * time.Hour),
			Attachments: []Attachment{csvAttachment("good.csv", "collection;color\nMira;014\n")},
		},
	}
	selector, _, profile, _ := selectorFixture(t, messages)

	staged, err := selector.SelectFreshest(context.Background(), profile, &sources.AttachmentAdapter{})
	if err != nil {
		t.Fatal(err)
	}
	if staged == nil || staged.MessageID != "<good@vendor>" {
		t.Fatalf("validation must eliminate the newer candidate: %+v", staged)
	}
}

func TestSelectFreshestFirstValidPerMessage(t *testing.T) {
	messages := []Message{{
		MessageID: "<multi@vendor>", Date: time.Now().UTC(),
		Attachments: []Attachment{
			{Filename: "logo.png", ContentType: "image/png", Content: []byte("png")},
			csvAttachment("first.csv", "collection;color\nMira;014\n"),
			csvAttachment("second.csv", "collection;color\nVerona;22\n"),
		},
	}}
	selector, _, profile, _ := selectorFixture(t, messages)

	staged, err := selector.SelectFreshest(context.Background(), profile, &sources.AttachmentAdapter{})
	if err != nil {
		t.Fatal(err)
	}
	if staged == nil || staged.Filename != "first.csv" {
		t.Fatalf("first valid spreadsheet per message wins: %+v", staged)
	}
}

func TestSelectFreshestNoCandidates(t *testing.T) {
	selector, db, profile, _ := selectorFixture(t, nil)

	staged, err := selector.SelectFreshest(context.Background(), profile, &sources.AttachmentAdapter{})
	if err != nil {
		t.Fatal(err)
	}
	if staged != nil {
		t.Fatalf("no messages must yield nil, got %+v", staged)
	}
	if pending, _ := db.LatestUnprocessedAttachment(profile.ID); pending != nil {
		t.Fatal("nothing must be recorded")
	}
}

func TestMessageMatchesFilters(t *testing.T) {
	msg := Message{From: "Склад <sklad@vendor.ru>", Subject: "Остатки тканей за неделю"}

	if !msg.MatchesFilters(SearchCriteria{From: "sklad@vendor.ru"}) {
		t.Fatal("from substring must match")
	}
	if !msg.MatchesFilters(SearchCriteria{SubjectContains: "остатки"}) {
		t.Fatal("subject match is case-insensitive")
	}
	if msg.MatchesFilters(SearchCriteria{From: "other@vendor.ru"}) {
		t.Fatal("foreign sender must not match")
	}
}
