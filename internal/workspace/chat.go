package workspace

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/oracle/internal/backend"
	"github.com/MikeSquared-Agency/oracle/internal/hermes"
)

type ChatState string

const (
	StateIdle    ChatState = "idle"
	StateSending ChatState = "sending"
)

const errorReplyPrefix = "Sorry, I encountered an error while processing your request"

// Chat holds the message log of the active session and runs the query
// cycle. At most one query is in flight.
type Chat struct {
	client  *backend.Client
	sources *Sources
	options *Options
	notify  notifier
	logger  *slog.Logger
	clock   func() time.Time

	mu        sync.Mutex
	sessionID backend.ID
	messages  []backend.Message
	state     ChatState
	gen       uint64
	seq       uint64
}

func newChat(client *backend.Client, sources *Sources, options *Options, n notifier, logger *slog.Logger) *Chat {
	return &Chat{
		client:  client,
		sources: sources,
		options: options,
		notify:  n,
		logger:  logger,
		clock:   time.Now,
		state:   StateIdle,
	}
}

// Submit sends text as a query in the active session. The user message is
// appended before dispatch; afterwards either an assistant reply or an
// error message is appended. On failure both the appended error message
// and the cause are returned.
func (c *Chat) Submit(ctx context.Context, text string) (*backend.Message, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, invalid("query", "must not be empty")
	}
	if c.client.Token() == "" {
		return nil, ErrNotAuthenticated
	}

	settings := c.options.Settings()
	req := backend.QueryRequest{
		Query:        text,
		ResponseType: settings.ResponseType,
		Temperature:  settings.Temperature,
		Model:        c.options.Model(),
	}
	if ids := c.sources.SelectedIDs(); len(ids) > 0 {
		req.SourceIDs = ids
	}

	c.mu.Lock()
	if c.state == StateSending {
		c.mu.Unlock()
		return nil, ErrBusy
	}
	c.state = StateSending
	gen := c.gen
	req.SessionID = c.sessionID
	c.messages = append(c.messages, backend.Message{
		ID:        c.nextLocalID(),
		Type:      backend.MessageUser,
		Content:   text,
		Timestamp: c.clock(),
	})
	c.mu.Unlock()

	requestID := uuid.NewString()
	c.logger.Debug("query dispatched", "request_id", requestID, "session_id", req.SessionID, "sources", len(req.SourceIDs))
	resp, err := c.client.Query(ctx, req)

	c.mu.Lock()
	var reply backend.Message
	if err != nil {
		reply = backend.Message{
			ID:        c.nextLocalID(),
			Type:      backend.MessageError,
			Content:   fmt.Sprintf("%s: %s", errorReplyPrefix, backend.Detail(err)),
			Timestamp: c.clock(),
		}
	} else {
		pt := resp.ProcessingTime
		reply = backend.Message{
			ID:             c.nextLocalID(),
			Type:           backend.MessageAssistant,
			Content:        resp.Response,
			Sources:        resp.Sources,
			ProcessingTime: &pt,
			Timestamp:      c.clock(),
		}
	}
	stale := gen != c.gen
	if !stale {
		c.messages = append(c.messages, reply)
	}
	c.state = StateIdle
	c.mu.Unlock()

	ev := hermes.QueryEvent{
		RequestID:    requestID,
		SessionID:    string(req.SessionID),
		Model:        req.Model,
		ResponseType: string(req.ResponseType),
		SourceCount:  len(req.SourceIDs),
		Timestamp:    c.clock().UTC(),
	}
	if err != nil {
		ev.Error = backend.Detail(err)
		c.logger.Warn("query failed", "request_id", requestID, "error", err)
		c.notify.emit(hermes.SubjectQueryFailed, ev)
	} else {
		ev.CitationCount = len(resp.Sources)
		ev.ProcessingTime = resp.ProcessingTime
		c.logger.Info("query answered", "request_id", requestID, "citations", len(resp.Sources), "processing_time", resp.ProcessingTime)
		c.notify.emit(hermes.SubjectQueryCompleted, ev)
	}
	if stale {
		c.logger.Debug("session changed while query was in flight, reply not applied", "request_id", requestID)
	}

	return &reply, err
}

// LoadHistory makes sessionID the log's session and replaces the log with
// the stored messages. A load superseded by a later one is discarded.
func (c *Chat) LoadHistory(ctx context.Context, sessionID backend.ID) error {
	c.mu.Lock()
	c.gen++
	gen := c.gen
	if c.sessionID != sessionID {
		c.messages = nil
	}
	c.sessionID = sessionID
	c.mu.Unlock()

	messages, err := c.client.SessionMessages(ctx, sessionID)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen {
		return nil
	}
	c.messages = messages
	return nil
}

func (c *Chat) Messages() []backend.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]backend.Message(nil), c.messages...)
}

func (c *Chat) State() ChatState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Chat) SessionID() backend.ID {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

// nextLocalID numbers messages created on this side. Caller holds c.mu.
func (c *Chat) nextLocalID() backend.ID {
	c.seq++
	return backend.ID(fmt.Sprintf("local-%d", c.seq))
}

func (c *Chat) reset() {
	c.mu.Lock()
	c.gen++
	c.sessionID = ""
	c.messages = nil
	c.mu.Unlock()
}
