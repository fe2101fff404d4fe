// Package gmail implements the MessageSource over the Gmail API.
package gmail

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"github.com/rushikc/pennywise-sync/pkg/api"
)

// DefaultPageSize matches the provider's observed default listing size.
const DefaultPageSize = 100

// Config holds configuration for the Gmail source.
type Config struct {
	// User is the mailbox to read. Defaults to the authenticated user.
	User string
	// PageSize bounds the id listing. Defaults to DefaultPageSize.
	PageSize int64
	// Query optionally restricts the listing, e.g. "from:alerts@hdfcbank.net".
	Query string
}

// Source reads raw notification messages from Gmail.
type Source struct {
	client   *gmail.Service
	user     string
	pageSize int64
	query    string
	logger   *slog.Logger
}

// New creates a Gmail message source.
func New(httpClient *http.Client, cfg Config, logger *slog.Logger) (*Source, error) {
	if logger == nil {
		logger = slog.Default()
	}

	client, err := gmail.NewService(context.Background(), option.WithHTTPClient(httpClient))
	if err != nil {
		return nil, fmt.Errorf("creating gmail service: %w", err)
	}

	user := cfg.User
	if user == "" {
		user = "me"
	}
	pageSize := cfg.PageSize
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}

	return &Source{
		client:   client,
		user:     user,
		pageSize: pageSize,
		query:    cfg.Query,
		logger:   logger,
	}, nil
}

// ListMessageIDs returns message ids most-recent-first, bounded to one page.
func (s *Source) ListMessageIDs(ctx context.Context) ([]string, error) {
	call := s.client.Users.Messages.List(s.user).MaxResults(s.pageSize).Context(ctx)
	if s.query != "" {
		call = call.Q(s.query)
	}

	resp, err := call.Do()
	if err != nil {
		return nil, fmt.Errorf("listing messages: %w", err)
	}

	ids := make([]string, 0, len(resp.Messages))
	for _, msg := range resp.Messages {
		ids = append(ids, msg.Id)
	}

	s.logger.Debug("listed messages", "user", s.user, "count", len(ids))
	return ids, nil
}

// GetMessage fetches one message and maps it to the pipeline's RawMessage.
func (s *Source) GetMessage(ctx context.Context, id string) (*api.RawMessage, error) {
	msg, err := s.client.Users.Messages.Get(s.user, id).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("getting message %s: %w", id, err)
	}

	raw := &api.RawMessage{
		ID:           msg.Id,
		Snippet:      msg.Snippet,
		Headers:      make(map[string]string),
		InternalDate: msg.InternalDate,
	}

	if msg.Payload != nil {
		raw.Payload = convertPart(msg.Payload)
		for _, header := range msg.Payload.Headers {
			// First occurrence wins; Gmail lists canonical headers once.
			if _, exists := raw.Headers[header.Name]; !exists {
				raw.Headers[header.Name] = header.Value
			}
		}
	}

	return raw, nil
}

func convertPart(part *gmail.MessagePart) *api.MessagePart {
	if part == nil {
		return nil
	}

	converted := &api.MessagePart{MimeType: part.MimeType}
	if part.Body != nil && part.Body.Data != "" {
		converted.Body = part.Body.Data
	}
	for _, child := range part.Parts {
		converted.Parts = append(converted.Parts, convertPart(child))
	}
	return converted
}
