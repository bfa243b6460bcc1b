// Package slack posts feedback notifications to a Slack incoming webhook.
package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/valentinpelus/attackref/pkg/types"
)

// maxCommentLength keeps the comment well inside Slack's 3000 character section limit
const maxCommentLength = 2900

// Notifier sends feedback events to Slack
type Notifier struct {
	webhookURL string
	client     *http.Client
}

// NewNotifier creates a notifier; an empty webhook URL yields a notifier that does nothing
func NewNotifier(webhookURL string) *Notifier {
	return &Notifier{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: 10 * time.Second},
	}
}

// IsConfigured checks if Slack notifications are configured
func (n *Notifier) IsConfigured() bool {
	return n != nil && n.webhookURL != ""
}

// NotifyFeedback posts a summary of a thumbs_down record; other feedback types are ignored
func (n *Notifier) NotifyFeedback(ctx context.Context, record types.FeedbackRecord) error {
	if !n.IsConfigured() || record.FeedbackType != types.FeedbackThumbsDown {
		return nil
	}
	return n.post(ctx, buildFeedbackMessage(record))
}

func buildFeedbackMessage(record types.FeedbackRecord) Message {
	fields := []TextObject{
		mrkdwn(fmt.Sprintf("*Technique:*\n%s", orDash(record.Technique))),
		mrkdwn(fmt.Sprintf("*STRIDE:*\n%s", orDash(record.STRIDE))),
		mrkdwn(fmt.Sprintf("*CIA:*\n%s", orDash(record.CIA))),
		mrkdwn(fmt.Sprintf("*SID:*\n%s", orDash(record.SID))),
	}

	blocks := []Block{
		{
			Type: "section",
			Text: &TextObject{Type: "mrkdwn", Text: "*:thumbsdown: Classification disputed*"},
		},
		{
			Type:   "section",
			Fields: fields,
		},
	}

	if comment := strings.TrimSpace(record.Comment); comment != "" {
		blocks = append(blocks, Block{
			Type: "section",
			Text: &TextObject{Type: "mrkdwn", Text: "> " + strings.ReplaceAll(truncate(comment, maxCommentLength), "\n", "\n> ")},
		})
	}

	blocks = append(blocks, Block{
		Type:     "context",
		Elements: []TextObject{mrkdwn(fmt.Sprintf("`%s` at %s", record.ID, record.Timestamp()))},
	})

	return Message{
		Text:   fmt.Sprintf("Thumbs down on %s", record.Technique),
		Blocks: blocks,
	}
}

func (n *Notifier) post(ctx context.Context, message Message) error {
	jsonData, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("failed to marshal Slack message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.webhookURL, bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send to Slack: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("Slack API returned status %d: %s", resp.StatusCode, string(body))
	}
	return nil
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}

// truncate cuts s to at most max runes, marking the cut
func truncate(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return string(runes[:max-3]) + "..."
}
