package imap

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/textproto"
	"time"

	"github.com/emersion/go-imap"
	imapclient "github.com/emersion/go-imap/client"

	"github.com/edcwsx23QAZ/Lavsit-Textile-sub000/internal/config"
	"github.com/edcwsx23QAZ/Lavsit-Textile-sub000/internal/mailbox"
)

type Connector struct {
	host     string
	port     int
	secure   bool
	user     string
	password string
	markSeen bool
}

func NewConnector(cfg config.Config) (*Connector, error) {
	if err := cfg.Require("IMAP_HOST", cfg.IMAPHost); err != nil {
		return nil, err
	}
	if err := cfg.Require("IMAP_USER", cfg.IMAPUser); err != nil {
		return nil, err
	}
	if err := cfg.Require("IMAP_PASSWORD", cfg.IMAPPassword); err != nil {
		return nil, err
	}

	return &Connector{
		host:     cfg.IMAPHost,
		port:     cfg.IMAPPort,
		secure:   cfg.IMAPSecure,
		user:     cfg.IMAPUser,
		password: cfg.IMAPPassword,
		markSeen: cfg.IMAPMarkSeen,
	}, nil
}

// Fetch searches the mailbox with the server-side criteria (since, unseen,
// from, subject) and decodes each hit into the provider-neutral message.
// Cancellation relies on the IMAP client's own timeouts.
func (c *Connector) Fetch(ctx context.Context, criteria mailbox.SearchCriteria) ([]mailbox.Message, error) {
	addr := fmt.Sprintf("%s:%d", c.host, c.port)
	var client *imapclient.Client
	var err error
	if c.secure {
		client, err = imapclient.DialTLS(addr, &tls.Config{ServerName: c.host})
	} else {
		client, err = imapclient.Dial(addr)
	}
	if err != nil {
		return nil, err
	}
	defer client.Logout()

	if err := client.Login(c.user, c.password); err != nil {
		return nil, err
	}

	label := criteria.Mailbox
	if label == "" {
		label = "INBOX"
	}
	if _, err := client.Select(label, false); err != nil {
		return nil, err
	}

	search := imap.NewSearchCriteria()
	if !criteria.Since.IsZero() {
		search.Since = criteria.Since
	}
	if criteria.UnseenOnly {
		search.WithoutFlags = []string{imap.SeenFlag}
	}
	header := textproto.MIMEHeader{}
	if criteria.From != "" {
		header.Set("From", criteria.From)
	}
	if criteria.SubjectContains != "" {
		header.Set("Subject", criteria.SubjectContains)
	}
	if len(header) > 0 {
		search.Header = header
	}

	ids, err := client.Search(search)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}
	if criteria.Max > 0 && len(ids) > criteria.Max {
		ids = ids[len(ids)-criteria.Max:]
	}

	seqset := new(imap.SeqSet)
	seqset.AddNum(ids...)

	section := &imap.BodySectionName{}
	items := []imap.FetchItem{imap.FetchEnvelope, imap.FetchInternalDate, imap.FetchUid, section.FetchItem()}
	messages := make(chan *imap.Message, len(ids))
	fetchDone := make(chan error, 1)
	go func() { fetchDone <- client.Fetch(seqset, items, messages) }()

	out := make([]mailbox.Message, 0, len(ids))
	for msg := range messages {
		if msg == nil {
			continue
		}
		body := msg.GetBody(section)
		if body == nil {
			continue
		}
		raw, err := io.ReadAll(body)
		if err != nil {
			return nil, err
		}

		fallbackID := fmt.Sprintf("imap-%d", msg.Uid)
		if msg.Envelope != nil && msg.Envelope.MessageId != "" {
			fallbackID = msg.Envelope.MessageId
		}
		received := time.Now().UTC()
		if !msg.InternalDate.IsZero() {
			received = msg.InternalDate.UTC()
		}

		decoded, err := mailbox.FromRaw(raw, fallbackID, received)
		if err != nil {
			continue
		}
		out = append(out, decoded)

		if c.markSeen {
			single := new(imap.SeqSet)
			single.AddNum(msg.SeqNum)
			item := imap.FormatFlagsOp(imap.AddFlags, true)
			flags := []interface{}{imap.SeenFlag}
			if err := client.Store(single, item, flags, nil); err != nil {
				return nil, err
			}
		}
	}

	if err := <-fetchDone; err != nil {
		return nil, err
	}
	return out, nil
}
