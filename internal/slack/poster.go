package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/MikeSquared-Agency/oracle/internal/backend"
)

const (
	defaultPostMessageURL = "https://slack.com/api/chat.postMessage"

	// maxCitations is how many sources a shared answer lists.
	maxCitations = 3
)

// Poster shares answers to a Slack channel through chat.postMessage.
type Poster struct {
	token   string
	channel string
	client  *http.Client
	logger  *slog.Logger
	apiURL  string
}

func NewPoster(token, channel string, logger *slog.Logger) *Poster {
	return &Poster{
		token:   token,
		channel: channel,
		client:  &http.Client{Timeout: 10 * time.Second},
		apiURL:  defaultPostMessageURL,
		logger:  logger,
	}
}

// PostAnswer posts an assistant reply to the channel. Returns the message
// timestamp so follow-up answers can be threaded under it.
func (p *Poster) PostAnswer(ctx context.Context, reply backend.Message) (string, error) {
	if reply.Type != backend.MessageAssistant {
		return "", fmt.Errorf("share message: only answers can be shared, got %s", reply.Type)
	}
	ts, err := p.post(ctx, map[string]any{
		"channel":      p.channel,
		"text":         FormatAnswer(reply),
		"unfurl_links": false,
		"unfurl_media": false,
	})
	if err != nil {
		return "", err
	}
	p.logger.Info("shared answer to slack", "ts", ts, "citations", len(reply.Sources))
	return ts, nil
}

// PostThread posts a threaded reply to a message.
func (p *Poster) PostThread(ctx context.Context, threadTS, text string) error {
	_, err := p.post(ctx, map[string]any{
		"channel":      p.channel,
		"thread_ts":    threadTS,
		"text":         text,
		"unfurl_links": false,
	})
	return err
}

func (p *Poster) post(ctx context.Context, payload map[string]any) (string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal slack payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.apiURL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	req.Header.Set("Authorization", "Bearer "+p.token)

	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("slack post: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	var slackResp struct {
		OK    bool   `json:"ok"`
		TS    string `json:"ts"`
		Error string `json:"error,omitempty"`
	}
	if err := json.Unmarshal(respBody, &slackResp); err != nil {
		return "", fmt.Errorf("parse slack response: %w", err)
	}
	if !slackResp.OK {
		return "", fmt.Errorf("slack error: %s", slackResp.Error)
	}
	return slackResp.TS, nil
}

// FormatAnswer renders a reply in Slack mrkdwn: the answer, up to three
// linked sources with their match confidence, and the processing time.
func FormatAnswer(reply backend.Message) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "💡 *Answer:*\n%s", reply.Content)

	if len(reply.Sources) > 0 {
		sb.WriteString("\n\n📚 *Sources:*")
		for i, src := range reply.Sources {
			if i == maxCitations {
				break
			}
			fmt.Fprintf(&sb, "\n%d. <%s|%s> (%s) - %.0f%% match", i+1, src.URL, src.Title, src.SourceType, src.Confidence*100)
		}
	}

	if reply.ProcessingTime != nil && *reply.ProcessingTime > 0 {
		fmt.Fprintf(&sb, "\n\n⏱️ _Processed in %.2fs_", *reply.ProcessingTime)
	}

	return sb.String()
}
