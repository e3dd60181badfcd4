// Package telegram implements the transport boundary against the Telegram
// Bot API. It long-polls getUpdates and maps forum topics to the bridge's
// topic ids.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"tanuki/pkg/transport"
)

const defaultAPIBase = "https://api.telegram.org"

// pollTimeout is the getUpdates long-poll window in seconds.
const pollTimeout = 30

// Client talks to one bot token scoped to one group chat. Messages from any
// other chat are ignored.
type Client struct {
	base   string
	token  string
	chatID int64
	http   *http.Client
	logger *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithAPIBase overrides the Bot API base URL.
func WithAPIBase(base string) Option {
	return func(c *Client) { c.base = strings.TrimRight(base, "/") }
}

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// New creates a Client for the given bot token and group chat.
func New(token string, chatID int64, logger *slog.Logger, opts ...Option) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Client{
		base:   defaultAPIBase,
		token:  token,
		chatID: chatID,
		// Long polls hold the connection open for pollTimeout; leave headroom.
		http:   &http.Client{Timeout: (pollTimeout + 15) * time.Second},
		logger: logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// APIError is a non-ok response from the Bot API.
type APIError struct {
	Method      string
	Code        int
	Description string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("telegram %s: %d %s", e.Method, e.Code, e.Description)
}

// apiResponse is the Bot API envelope.
type apiResponse struct {
	OK          bool            `json:"ok"`
	Result      json.RawMessage `json:"result"`
	ErrorCode   int             `json:"error_code"`
	Description string          `json:"description"`
}

// message is the subset of the Bot API Message object the bridge reads.
type message struct {
	MessageID       int64    `json:"message_id"`
	MessageThreadID int64    `json:"message_thread_id"`
	Text            string   `json:"text"`
	Chat            chat     `json:"chat"`
	ReplyToMessage  *message `json:"reply_to_message"`
}

type chat struct {
	ID int64 `json:"id"`
}

type apiUpdate struct {
	UpdateID int64    `json:"update_id"`
	Message  *message `json:"message"`
}

// call posts one Bot API method and decodes the envelope into result.
func (c *Client) call(ctx context.Context, method string, params any, result any) error {
	body, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("telegram %s: encode params: %w", method, err)
	}
	url := fmt.Sprintf("%s/bot%s/%s", c.base, c.token, method)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("telegram %s: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("telegram %s: %w", method, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return fmt.Errorf("telegram %s: read response: %w", method, err)
	}
	var env apiResponse
	if err := json.Unmarshal(data, &env); err != nil {
		return fmt.Errorf("telegram %s: decode response: %w", method, err)
	}
	if !env.OK {
		return &APIError{Method: method, Code: env.ErrorCode, Description: env.Description}
	}
	if result != nil {
		if err := json.Unmarshal(env.Result, result); err != nil {
			return fmt.Errorf("telegram %s: decode result: %w", method, err)
		}
	}
	return nil
}

// Updates long-polls getUpdates and converts messages from the configured
// chat into transport updates. The returned channel closes when ctx is
// cancelled. Poll failures back off and retry rather than closing the
// stream.
func (c *Client) Updates(ctx context.Context) <-chan transport.Update {
	out := make(chan transport.Update)
	go func() {
		defer close(out)
		var offset int64
		for {
			if ctx.Err() != nil {
				return
			}
			updates, err := c.getUpdates(ctx, offset)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				c.logger.Warn("telegram: poll failed", "error", err)
				select {
				case <-time.After(3 * time.Second):
				case <-ctx.Done():
					return
				}
				continue
			}
			for _, u := range updates {
				if u.UpdateID >= offset {
					offset = u.UpdateID + 1
				}
				m := u.Message
				if m == nil || m.Chat.ID != c.chatID || m.Text == "" {
					continue
				}
				tu := transport.Update{
					TopicID:   m.MessageThreadID,
					MessageID: m.MessageID,
					Text:      m.Text,
				}
				if r := m.ReplyToMessage; r != nil {
					tu.ReplyToID = r.MessageID
					tu.ReplyToText = r.Text
				}
				select {
				case out <- tu:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out
}

func (c *Client) getUpdates(ctx context.Context, offset int64) ([]apiUpdate, error) {
	params := map[string]any{
		"timeout":         pollTimeout,
		"allowed_updates": []string{"message"},
	}
	if offset != 0 {
		params["offset"] = offset
	}
	var updates []apiUpdate
	if err := c.call(ctx, "getUpdates", params, &updates); err != nil {
		return nil, err
	}
	return updates, nil
}

// Post sends a new message to the given topic. Topic 0 posts to the group's
// general timeline.
func (c *Client) Post(ctx context.Context, topicID int64, text string) (transport.MessageRef, error) {
	params := map[string]any{
		"chat_id": c.chatID,
		"text":    text,
	}
	if topicID != 0 {
		params["message_thread_id"] = topicID
	}
	var m message
	if err := c.call(ctx, "sendMessage", params, &m); err != nil {
		return transport.MessageRef{}, err
	}
	return transport.MessageRef{ChatID: c.chatID, MessageID: m.MessageID}, nil
}

// Edit replaces a message's text. A deleted or otherwise unreachable target
// maps to transport.ErrGone; an edit to identical text is treated as
// success because the rendered state already matches.
func (c *Client) Edit(ctx context.Context, ref transport.MessageRef, text string) error {
	params := map[string]any{
		"chat_id":    ref.ChatID,
		"message_id": ref.MessageID,
		"text":       text,
	}
	err := c.call(ctx, "editMessageText", params, nil)
	if err == nil {
		return nil
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		desc := strings.ToLower(apiErr.Description)
		if strings.Contains(desc, "message to edit not found") ||
			strings.Contains(desc, "message can't be edited") {
			return transport.ErrGone
		}
		if strings.Contains(desc, "message is not modified") {
			return nil
		}
	}
	return err
}
