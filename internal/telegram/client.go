// Package telegram mirrors workflow output to a Telegram forum group,
// delivers final artifacts by private message and reads inbound tasks from
// the group's general topic.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const defaultAPIBaseURL = "https://api.telegram.org"

// ErrNoToken is returned when the client is built without a bot token.
var ErrNoToken = errors.New("telegram: bot token required")

// APIError is a Bot API response with ok=false.
type APIError struct {
	Method      string
	Code        int
	Description string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("telegram %s: %d %s", e.Method, e.Code, e.Description)
}

// User is the subset of the Bot API User object we read.
type User struct {
	ID        int64  `json:"id"`
	IsBot     bool   `json:"is_bot"`
	FirstName string `json:"first_name"`
	Username  string `json:"username,omitempty"`
}

// Chat is the subset of the Bot API Chat object we read.
type Chat struct {
	ID   int64  `json:"id"`
	Type string `json:"type,omitempty"`
}

// Message is the subset of the Bot API Message object we read.
type Message struct {
	MessageID       int64  `json:"message_id"`
	From            *User  `json:"from,omitempty"`
	Chat            Chat   `json:"chat"`
	MessageThreadID int    `json:"message_thread_id,omitempty"`
	Text            string `json:"text,omitempty"`
}

// Update is one entry returned by getUpdates.
type Update struct {
	UpdateID int64    `json:"update_id"`
	Message  *Message `json:"message,omitempty"`
}

// SendRequest is the sendMessage payload.
type SendRequest struct {
	ChatID          string `json:"chat_id"`
	MessageThreadID int    `json:"message_thread_id,omitempty"`
	Text            string `json:"text"`
	ParseMode       string `json:"parse_mode,omitempty"`
}

type apiResponse struct {
	OK          bool            `json:"ok"`
	Result      json.RawMessage `json:"result"`
	Description string          `json:"description"`
	ErrorCode   int             `json:"error_code"`
}

// Client is a minimal Bot API client.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewClient creates a client. timeout bounds every request and must exceed
// the long-poll timeout passed to GetUpdates.
func NewClient(baseURL, token string, timeout time.Duration) (*Client, error) {
	if token == "" {
		return nil, ErrNoToken
	}
	baseURL = strings.TrimRight(baseURL, "/")
	if baseURL == "" {
		baseURL = defaultAPIBaseURL
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:    baseURL,
		token:      token,
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

// GetMe returns the bot's own user.
func (c *Client) GetMe(ctx context.Context) (*User, error) {
	var u User
	if err := c.call(ctx, http.MethodGet, "getMe", nil, nil, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

// GetUpdates long-polls for updates with update_id >= offset.
func (c *Client) GetUpdates(ctx context.Context, offset int64, timeout time.Duration) ([]Update, error) {
	q := url.Values{}
	q.Set("offset", strconv.FormatInt(offset, 10))
	q.Set("timeout", strconv.Itoa(int(timeout/time.Second)))
	var updates []Update
	if err := c.call(ctx, http.MethodGet, "getUpdates", q, nil, &updates); err != nil {
		return nil, err
	}
	return updates, nil
}

// SendMessage posts req and returns the sent message.
func (c *Client) SendMessage(ctx context.Context, req SendRequest) (*Message, error) {
	var m Message
	if err := c.call(ctx, http.MethodPost, "sendMessage", nil, req, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

func (c *Client) call(ctx context.Context, method, name string, query url.Values, body, out any) error {
	endpoint := c.baseURL + "/bot" + c.token + "/" + name
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("telegram %s: failed to marshal request: %w", name, err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("telegram %s: failed to create request", name)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// url.Error embeds the request URL, which carries the token.
		var uerr *url.Error
		if errors.As(err, &uerr) {
			err = uerr.Err
		}
		return fmt.Errorf("telegram %s: request failed: %w", name, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("telegram %s: failed to read response: %w", name, err)
	}

	var parsed apiResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return fmt.Errorf("telegram %s: failed to parse response (status %d): %w", name, resp.StatusCode, err)
	}
	if !parsed.OK {
		code := parsed.ErrorCode
		if code == 0 {
			code = resp.StatusCode
		}
		return &APIError{Method: name, Code: code, Description: parsed.Description}
	}
	if out != nil && len(parsed.Result) > 0 {
		if err := json.Unmarshal(parsed.Result, out); err != nil {
			return fmt.Errorf("telegram %s: failed to parse result: %w", name, err)
		}
	}
	return nil
}

// NormalizeChatID adds the supergroup -100 prefix to a bare numeric id.
// Ids that are already negative or are @channel names are returned as is.
func NormalizeChatID(id string) string {
	id = strings.TrimSpace(id)
	if id == "" || strings.HasPrefix(id, "-") || strings.HasPrefix(id, "@") {
		return id
	}
	return "-100" + id
}
