// Package mailbox fetches candidate supplier messages and selects the single
// freshest validated attachment that may reach the parsing pipeline.
package mailbox

import (
	"bytes"
	"context"
	"strings"
	"time"

	"github.com/jhillyerd/enmime"
)

// SearchCriteria narrows the candidate messages for one email supplier.
type SearchCriteria struct {
	Mailbox         string
	Since           time.Time
	UnseenOnly      bool
	From            string
	SubjectContains string
	Max             int
}

type Attachment struct {
	Filename    string
	ContentType string
	Content     []byte
}

type Message struct {
	MessageID   string
	Subject     string
	From        string
	Date        time.Time
	Attachments []Attachment
}

// Connector is one mail delivery provider (IMAP, Gmail API).
type Connector interface {
	Fetch(ctx context.Context, criteria SearchCriteria) ([]Message, error)
}

// FromRaw decodes a raw RFC822 message into the provider-neutral shape.
// Metadata absent from the MIME envelope falls back to the passed values.
func FromRaw(raw []byte, messageID string, date time.Time) (Message, error) {
	env, err := enmime.ReadEnvelope(bytes.NewReader(raw))
	if err != nil {
		return Message{}, err
	}

	msg := Message{
		MessageID: messageID,
		Subject:   env.GetHeader("Subject"),
		From:      env.GetHeader("From"),
		Date:      date,
	}
	if id := env.GetHeader("Message-ID"); id != "" {
		msg.MessageID = id
	}
	if dateHeader := env.GetHeader("Date"); dateHeader != "" {
		if parsed, err := parseMailDate(dateHeader); err == nil {
			msg.Date = parsed
		}
	}

	for _, att := range env.Attachments {
		filename := strings.TrimSpace(att.FileName)
		if filename == "" {
			filename = "attachment"
		}
		msg.Attachments = append(msg.Attachments, Attachment{
			Filename:    filename,
			ContentType: att.ContentType,
			Content:     att.Content,
		})
	}
	return msg, nil
}

// MatchesFilters applies the from/subject criteria providers cannot push
// down to the server.
func (m Message) MatchesFilters(criteria SearchCriteria) bool {
	if criteria.From != "" && !strings.Contains(strings.ToLower(m.From), strings.ToLower(criteria.From)) {
		return false
	}
	if criteria.SubjectContains != "" && !strings.Contains(strings.ToLower(m.Subject), strings.ToLower(criteria.SubjectContains)) {
		return false
	}
	return true
}

func parseMailDate(value string) (time.Time, error) {
	layouts := []string{time.RFC1123Z, time.RFC1123, time.RFC822Z, time.RFC822, time.RFC850, time.ANSIC}
	var lastErr error
	for _, layout := range layouts {
		parsed, err := time.Parse(layout, value)
		if err == nil {
			return parsed.UTC(), nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}
