package chat

import (
	"bufio"
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

	"github.com/severalx/site/internal/metrics"
)

// Assistant defaults sent with every ask.
const (
	RootParentMessageID = "00000000-0000-0000-0000-000000000000"
	DefaultModel        = "gpt-4o-mini"
	DefaultEndpoint     = "openAI"
)

// ErrLoginRequired means the chat platform answered with its login page.
var ErrLoginRequired = errors.New("chat login required")

// UpstreamError is a non-2xx assistant response.
type UpstreamError struct {
	Status int
	Detail string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("chat assistant returned HTTP %d", e.Status)
}

// AskRequest is one user message to the assistant.
type AskRequest struct {
	Message         string `json:"message"`
	ConversationID  string `json:"conversationId,omitempty"`
	ParentMessageID string `json:"parentMessageId,omitempty"`
}

// AskResult is the assistant reply in the site's shape.
type AskResult struct {
	Message         string `json:"message"`
	ConversationID  string `json:"conversationId,omitempty"`
	MessageID       string `json:"messageId,omitempty"`
	ParentMessageID string `json:"parentMessageId,omitempty"`
}

// Delta is one server-sent event from a streamed answer. Text carries the
// full answer so far.
type Delta struct {
	Text           string `json:"text,omitempty"`
	ConversationID string `json:"conversationId,omitempty"`
	MessageID      string `json:"messageId,omitempty"`
	Final          bool   `json:"final,omitempty"`
}

type askPayload struct {
	Text            string  `json:"text"`
	ConversationID  *string `json:"conversationId"`
	ParentMessageID string  `json:"parentMessageId"`
	Model           string  `json:"model"`
	Endpoint        string  `json:"endpoint"`
}

// AskEndpoint resolves the assistant URL: an explicit URL containing /api/ is
// used as is, otherwise /api/ask is appended.
func (c *Client) AskEndpoint() string {
	target := c.askURL
	if target == "" {
		target = c.baseURL
	}
	if target == "" {
		return ""
	}
	if strings.Contains(target, "/api/") {
		return target
	}
	return target + "/api/ask"
}

// Ask sends a message and collects the whole answer.
func (c *Client) Ask(ctx context.Context, in AskRequest, cookie string) (*AskResult, error) {
	return c.AskStream(ctx, in, cookie, nil)
}

// AskStream sends a message and calls onDelta for every streamed event before
// returning the collected answer. onDelta may be nil.
func (c *Client) AskStream(ctx context.Context, in AskRequest, cookie string, onDelta func(Delta) error) (*AskResult, error) {
	endpoint := c.AskEndpoint()
	if endpoint == "" {
		return nil, ErrNotConfigured
	}

	payload := askPayload{
		Text:            in.Message,
		ParentMessageID: in.ParentMessageID,
		Model:           DefaultModel,
		Endpoint:        DefaultEndpoint,
	}
	if in.ConversationID != "" {
		payload.ConversationID = &in.ConversationID
	}
	if payload.ParentMessageID == "" {
		payload.ParentMessageID = RootParentMessageID
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode ask payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json, text/event-stream")
	switch {
	case c.apiKey != "":
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	case cookie != "":
		req.Header.Set("Cookie", cookie)
	default:
		slog.Warn("Chat assistant call without credentials")
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.metrics.ObserveUpstream("assistant", metrics.OutcomeError, time.Since(start))
		return nil, fmt.Errorf("chat assistant: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	contentType := resp.Header.Get("Content-Type")
	if strings.Contains(contentType, "text/html") {
		c.metrics.ObserveUpstream("assistant", metrics.OutcomeRejected, time.Since(start))
		return nil, ErrLoginRequired
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.metrics.ObserveUpstream("assistant", metrics.OutcomeRejected, time.Since(start))
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 200))
		return nil, &UpstreamError{Status: resp.StatusCode, Detail: string(snippet)}
	}

	var result *AskResult
	if strings.Contains(contentType, "text/event-stream") {
		result, err = readStream(resp.Body, in, onDelta)
	} else {
		result, err = readJSON(resp.Body, in)
	}
	outcome := metrics.OutcomeOK
	if err != nil {
		outcome = metrics.OutcomeError
	}
	c.metrics.ObserveUpstream("assistant", outcome, time.Since(start))
	return result, err
}

// readStream consumes "data: " lines until a final event or EOF.
func readStream(r io.Reader, in AskRequest, onDelta func(Delta) error) (*AskResult, error) {
	result := &AskResult{ConversationID: in.ConversationID, ParentMessageID: in.ParentMessageID}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxBodyBytes)
	for scanner.Scan() {
		line, ok := strings.CutPrefix(scanner.Text(), "data: ")
		if !ok {
			continue
		}
		var d Delta
		if err := json.Unmarshal([]byte(line), &d); err != nil {
			continue
		}
		if d.Text != "" {
			result.Message = d.Text
		}
		if d.ConversationID != "" {
			result.ConversationID = d.ConversationID
		}
		if d.MessageID != "" {
			result.MessageID = d.MessageID
		}
		if onDelta != nil {
			if err := onDelta(d); err != nil {
				return nil, err
			}
		}
		if d.Final {
			break
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read assistant stream: %w", err)
	}

	if result.Message == "" {
		result.Message = "Response received"
	}
	return result, nil
}

func readJSON(r io.Reader, in AskRequest) (*AskResult, error) {
	var data struct {
		Text            string `json:"text"`
		Message         string `json:"message"`
		Response        string `json:"response"`
		ConversationID  string `json:"conversationId"`
		MessageID       string `json:"messageId"`
		ID              string `json:"id"`
		ParentMessageID string `json:"parentMessageId"`
	}
	if err := json.NewDecoder(io.LimitReader(r, maxBodyBytes)).Decode(&data); err != nil {
		return nil, fmt.Errorf("decode assistant response: %w", err)
	}

	return &AskResult{
		Message:         firstNonEmpty(data.Text, data.Message, data.Response, "Received your message"),
		ConversationID:  firstNonEmpty(data.ConversationID, in.ConversationID),
		MessageID:       firstNonEmpty(data.MessageID, data.ID),
		ParentMessageID: firstNonEmpty(data.ParentMessageID, in.ParentMessageID),
	}, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
