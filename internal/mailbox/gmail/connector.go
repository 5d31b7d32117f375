package gmail

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"github.com/edcwsx23QAZ/Lavsit-Textile-sub000/internal/config"
	"github.com/edcwsx23QAZ/Lavsit-Textile-sub000/internal/mailbox"
)

type Connector struct {
	service *gmail.Service
}

func NewConnector(cfg config.Config) (*Connector, error) {
	if err := cfg.Require("GMAIL_CLIENT_ID", cfg.GmailClientID); err != nil {
		return nil, err
	}
	if err := cfg.Require("GMAIL_CLIENT_SECRET", cfg.GmailClientSecret); err != nil {
		return nil, err
	}
	if err := cfg.Require("GMAIL_REFRESH_TOKEN", cfg.GmailRefreshToken); err != nil {
		return nil, err
	}

	oauthCfg := &oauth2.Config{
		ClientID:     cfg.GmailClientID,
		ClientSecret: cfg.GmailClientSecret,
		Endpoint:     google.Endpoint,
		RedirectURL:  cfg.GmailRedirectURI,
		Scopes:       []string{gmail.GmailReadonlyScope},
	}

	tokenSource := oauthCfg.TokenSource(context.Background(), &oauth2.Token{RefreshToken: cfg.GmailRefreshToken})
	svc, err := gmail.NewService(context.Background(), option.WithTokenSource(tokenSource))
	if err != nil {
		return nil, err
	}

	return &Connector{service: svc}, nil
}

// Fetch pushes the search criteria down as a Gmail query and decodes each
// raw hit.
func (c *Connector) Fetch(ctx context.Context, criteria mailbox.SearchCriteria) ([]mailbox.Message, error) {
	max := int64(criteria.Max)
	if max <= 0 {
		max = 50
	}

	listCall := c.service.Users.Messages.List("me").Q(buildQuery(criteria)).MaxResults(max)
	if criteria.Mailbox != "" {
		listCall = listCall.LabelIds(criteria.Mailbox)
	}
	listResp, err := listCall.Context(ctx).Do()
	if err != nil {
		return nil, err
	}

	out := make([]mailbox.Message, 0, len(listResp.Messages))
	for _, msgRef := range listResp.Messages {
		if msgRef.Id == "" {
			continue
		}

		rawResp, err := c.service.Users.Messages.Get("me", msgRef.Id).Format("raw").Context(ctx).Do()
		if err != nil {
			return nil, err
		}
		if rawResp.Raw == "" {
			continue
		}

		rawBytes, err := decodeBase64URL(rawResp.Raw)
		if err != nil {
			return nil, err
		}

		received := time.Now().UTC()
		if rawResp.InternalDate > 0 {
			received = time.UnixMilli(rawResp.InternalDate).UTC()
		}

		decoded, err := mailbox.FromRaw(rawBytes, msgRef.Id, received)
		if err != nil {
			continue
		}
		out = append(out, decoded)
	}

	return out, nil
}

func buildQuery(criteria mailbox.SearchCriteria) string {
	parts := []string{"has:attachment"}
	if criteria.From != "" {
		parts = append(parts, "from:"+criteria.From)
	}
	if criteria.SubjectContains != "" {
		parts = append(parts, fmt.Sprintf("subject:%q", criteria.SubjectContains))
	}
	if criteria.UnseenOnly {
		parts = append(parts, "is:unread")
	}
	if !criteria.Since.IsZero() {
		parts = append(parts, "after:"+criteria.Since.Format("2006/01/02"))
	}
	return strings.Join(parts, " ")
}

func decodeBase64URL(input string) ([]byte, error) {
	decoded, err := base64.RawURLEncoding.DecodeString(input)
	if err == nil {
		return decoded, nil
	}
	decoded, err = base64.URLEncoding.DecodeString(input)
	if err == nil {
		return decoded, nil
	}
	return nil, fmt.Errorf("decode gmail raw payload: %w", err)
}
