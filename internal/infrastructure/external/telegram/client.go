// Package telegram implements a small Telegram Bot API client: sending and editing
// messages, inline keyboards, callback answers and long polling.
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
	"net/url"
	"strings"
	"sync"
	"time"
	"unicode/utf16"

	"github.com/avast/retry-go/v4"
)

// ══════════════════════════════════════════════════════════════════════════════
// CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// MaxMessageLength is the Bot API limit for a message text, in characters.
const MaxMessageLength = 4096

// ClientConfig contains configuration for the Telegram client.
type ClientConfig struct {
	// Token is the Telegram Bot API token
	Token string

	// BaseURL is the Telegram Bot API base URL (default: https://api.telegram.org)
	BaseURL string

	// Timeout is the HTTP request timeout
	Timeout time.Duration

	// PollingTimeout is the long polling timeout in seconds
	PollingTimeout int

	// RetryAttempts is the number of retries after the first failed attempt
	RetryAttempts uint

	// RetryDelay is the initial delay between retries
	RetryDelay time.Duration

	// Logger for structured logging
	Logger *slog.Logger

	// Debug enables debug logging
	Debug bool
}

// DefaultClientConfig returns sensible defaults.
func DefaultClientConfig(token string) ClientConfig {
	return ClientConfig{
		Token:          token,
		BaseURL:        "https://api.telegram.org",
		Timeout:        60 * time.Second, // Must be > polling timeout (30s) + network latency
		PollingTimeout: 30,
		RetryAttempts:  3,
		RetryDelay:     1 * time.Second,
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// TELEGRAM API TYPES
// ══════════════════════════════════════════════════════════════════════════════

// Update represents a Telegram update.
type Update struct {
	UpdateID      int64          `json:"update_id"`
	Message       *Message       `json:"message,omitempty"`
	CallbackQuery *CallbackQuery `json:"callback_query,omitempty"`
}

// Message represents a Telegram message.
type Message struct {
	MessageID int64           `json:"message_id"`
	From      *User           `json:"from,omitempty"`
	Chat      *Chat           `json:"chat"`
	Date      int64           `json:"date"`
	Text      string          `json:"text,omitempty"`
	Entities  []MessageEntity `json:"entities,omitempty"`
}

// User represents a Telegram user.
type User struct {
	ID           int64  `json:"id"`
	IsBot        bool   `json:"is_bot"`
	FirstName    string `json:"first_name"`
	LastName     string `json:"last_name,omitempty"`
	Username     string `json:"username,omitempty"`
	LanguageCode string `json:"language_code,omitempty"`
}

// Chat represents a Telegram chat.
type Chat struct {
	ID   int64  `json:"id"`
	Type string `json:"type"`
}

// MessageEntity represents a message entity (command, mention, etc.).
type MessageEntity struct {
	Type   string `json:"type"`
	Offset int    `json:"offset"`
	Length int    `json:"length"`
}

// CallbackQuery represents a callback query from an inline keyboard.
type CallbackQuery struct {
	ID      string   `json:"id"`
	From    *User    `json:"from"`
	Message *Message `json:"message,omitempty"`
	Data    string   `json:"data,omitempty"`
}

// InlineKeyboardMarkup represents an inline keyboard.
type InlineKeyboardMarkup struct {
	InlineKeyboard [][]InlineKeyboardButton `json:"inline_keyboard"`
}

// InlineKeyboardButton represents a button in an inline keyboard.
type InlineKeyboardButton struct {
	Text         string `json:"text"`
	CallbackData string `json:"callback_data,omitempty"`
	URL          string `json:"url,omitempty"`
}

// APIResponse represents a Telegram API response.
type APIResponse struct {
	OK          bool                `json:"ok"`
	Result      json.RawMessage     `json:"result,omitempty"`
	Description string              `json:"description,omitempty"`
	ErrorCode   int                 `json:"error_code,omitempty"`
	Parameters  *ResponseParameters `json:"parameters,omitempty"`
}

// ResponseParameters contains additional error parameters.
type ResponseParameters struct {
	RetryAfter int `json:"retry_after,omitempty"`
}

// ══════════════════════════════════════════════════════════════════════════════
// CLIENT
// ══════════════════════════════════════════════════════════════════════════════

// Client is the Telegram Bot API client.
type Client struct {
	config     ClientConfig
	httpClient *http.Client
	logger     *slog.Logger

	updateOffset int64
	updateMu     sync.Mutex
}

// NewClient creates a new Telegram client.
func NewClient(config ClientConfig) *Client {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.BaseURL == "" {
		config.BaseURL = "https://api.telegram.org"
	}
	if config.PollingTimeout <= 0 {
		config.PollingTimeout = 30
	}

	return &Client{
		config: config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		logger: config.Logger,
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// REQUESTS
// Bot API methods take JSON objects; omitted fields fall back to Telegram defaults.
// ══════════════════════════════════════════════════════════════════════════════

// allowedUpdates limits deliveries to what the bot handles.
var allowedUpdates = []string{"message", "callback_query"}

// SendMessageParams contains parameters for sending a message.
type SendMessageParams struct {
	ChatID              int64                 `json:"chat_id"`
	Text                string                `json:"text"`
	ParseMode           string                `json:"parse_mode,omitempty"` // "HTML", "MarkdownV2"; empty for plain text
	DisableNotification bool                  `json:"disable_notification,omitempty"`
	DisableWebPreview   bool                  `json:"disable_web_page_preview,omitempty"`
	ReplyMarkup         *InlineKeyboardMarkup `json:"reply_markup,omitempty"`
}

type editMessageTextRequest struct {
	ChatID      int64                 `json:"chat_id"`
	MessageID   int64                 `json:"message_id"`
	Text        string                `json:"text"`
	ParseMode   string                `json:"parse_mode,omitempty"`
	ReplyMarkup *InlineKeyboardMarkup `json:"reply_markup,omitempty"`
}

type answerCallbackQueryRequest struct {
	CallbackQueryID string `json:"callback_query_id"`
	Text            string `json:"text,omitempty"`
	ShowAlert       bool   `json:"show_alert,omitempty"`
}

type setWebhookRequest struct {
	URL            string   `json:"url"`
	SecretToken    string   `json:"secret_token,omitempty"`
	AllowedUpdates []string `json:"allowed_updates"`
}

type getUpdatesRequest struct {
	Offset         int64    `json:"offset,omitempty"`
	Limit          int      `json:"limit,omitempty"`
	Timeout        int      `json:"timeout"`
	AllowedUpdates []string `json:"allowed_updates"`
}

// ══════════════════════════════════════════════════════════════════════════════
// METHODS
// ══════════════════════════════════════════════════════════════════════════════

// SendMessage sends a text message.
func (c *Client) SendMessage(ctx context.Context, params SendMessageParams) (*Message, error) {
	var message Message
	if err := c.callAPI(ctx, "sendMessage", params, &message); err != nil {
		return nil, fmt.Errorf("send message: %w", err)
	}
	return &message, nil
}

// SendText sends plain text without markup or keyboard.
func (c *Client) SendText(ctx context.Context, chatID int64, text string) (*Message, error) {
	return c.SendMessage(ctx, SendMessageParams{ChatID: chatID, Text: text})
}

// EditMessageText replaces the text and keyboard of a message the bot sent.
func (c *Client) EditMessageText(ctx context.Context, chatID int64, messageID int64, text string, parseMode string, keyboard *InlineKeyboardMarkup) (*Message, error) {
	req := editMessageTextRequest{
		ChatID:      chatID,
		MessageID:   messageID,
		Text:        text,
		ParseMode:   parseMode,
		ReplyMarkup: keyboard,
	}

	var message Message
	if err := c.callAPI(ctx, "editMessageText", req, &message); err != nil {
		return nil, fmt.Errorf("edit message text: %w", err)
	}
	return &message, nil
}

// AnswerCallbackQuery stops the button spinner; a non-empty text is shown as a
// toast, or as an alert when showAlert is set.
func (c *Client) AnswerCallbackQuery(ctx context.Context, callbackQueryID string, text string, showAlert bool) error {
	req := answerCallbackQueryRequest{CallbackQueryID: callbackQueryID, Text: text}
	if text != "" {
		req.ShowAlert = showAlert
	}

	var ok bool
	if err := c.callAPI(ctx, "answerCallbackQuery", req, &ok); err != nil {
		return fmt.Errorf("answer callback query: %w", err)
	}
	return nil
}

// GetMe returns the bot account; used to verify the token on start.
func (c *Client) GetMe(ctx context.Context) (*User, error) {
	var user User
	if err := c.callAPI(ctx, "getMe", nil, &user); err != nil {
		return nil, fmt.Errorf("get me: %w", err)
	}
	return &user, nil
}

// SetWebhook points Telegram at url. Telegram echoes secret in the
// X-Telegram-Bot-Api-Secret-Token header of every delivery.
func (c *Client) SetWebhook(ctx context.Context, url, secret string) error {
	req := setWebhookRequest{URL: url, SecretToken: secret, AllowedUpdates: allowedUpdates}

	var ok bool
	if err := c.callAPI(ctx, "setWebhook", req, &ok); err != nil {
		return fmt.Errorf("set webhook: %w", err)
	}
	return nil
}

// DeleteWebhook switches the bot back to getUpdates.
func (c *Client) DeleteWebhook(ctx context.Context) error {
	var ok bool
	if err := c.callAPI(ctx, "deleteWebhook", nil, &ok); err != nil {
		return fmt.Errorf("delete webhook: %w", err)
	}
	return nil
}

// GetUpdates long-polls for updates. It is not retried: the polling loop
// backs off on its own.
func (c *Client) GetUpdates(ctx context.Context, offset int64, limit int, timeout int) ([]Update, error) {
	req := getUpdatesRequest{
		Offset:         offset,
		Limit:          limit,
		Timeout:        timeout,
		AllowedUpdates: allowedUpdates,
	}

	var updates []Update
	if err := c.do(ctx, "getUpdates", req, &updates); err != nil {
		return nil, fmt.Errorf("get updates: %w", err)
	}
	return updates, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// TRANSPORT
// ══════════════════════════════════════════════════════════════════════════════

// callAPI calls method, retrying server errors, network errors and flood
// control. A 429 waits for the retry_after Telegram asks for.
func (c *Client) callAPI(ctx context.Context, method string, req, result any) error {
	return retry.Do(
		func() error {
			err := c.do(ctx, method, req, result)
			if err != nil && !isRetryableError(err) {
				return retry.Unrecoverable(err)
			}
			return err
		},
		retry.Context(ctx),
		retry.Attempts(c.config.RetryAttempts+1),
		retry.Delay(c.config.RetryDelay),
		retry.LastErrorOnly(true),
		retry.DelayType(func(n uint, err error, config *retry.Config) time.Duration {
			var apiErr *APIError
			if errors.As(err, &apiErr) && apiErr.RetryAfter > 0 {
				return time.Duration(apiErr.RetryAfter) * time.Second
			}
			return retry.BackOffDelay(n, err, config)
		}),
		retry.OnRetry(func(n uint, err error) {
			c.logger.Warn("telegram api call failed, retrying",
				"method", method,
				"attempt", n+1,
				"error", err,
			)
		}),
	)
}

// do performs a single call and decodes the result envelope.
func (c *Client) do(ctx context.Context, method string, req, result any) error {
	endpoint := c.config.BaseURL + "/bot" + c.config.Token + "/" + method

	var body io.Reader
	if req != nil {
		payload, err := json.Marshal(req)
		if err != nil {
			return fmt.Errorf("marshal %s request: %w", method, err)
		}
		body = bytes.NewReader(payload)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		// The error text would contain the token.
		return fmt.Errorf("create %s request", method)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	if c.config.Debug {
		c.logger.Debug("telegram api call", "method", method)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return &transportError{method: method, err: unwrapURLError(err)}
	}
	defer resp.Body.Close()

	var envelope APIResponse
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return fmt.Errorf("decode %s response (status %d): %w", method, resp.StatusCode, err)
	}

	if !envelope.OK {
		apiErr := &APIError{Code: envelope.ErrorCode, Description: envelope.Description}
		if envelope.Parameters != nil {
			apiErr.RetryAfter = envelope.Parameters.RetryAfter
		}
		return apiErr
	}

	if result != nil && len(envelope.Result) > 0 {
		if err := json.Unmarshal(envelope.Result, result); err != nil {
			return fmt.Errorf("decode %s result: %w", method, err)
		}
	}
	return nil
}

// unwrapURLError drops the *url.Error wrapper, whose message carries the
// request URL and therefore the bot token.
func unwrapURLError(err error) error {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return urlErr.Err
	}
	return err
}

// ══════════════════════════════════════════════════════════════════════════════
// ERRORS
// ══════════════════════════════════════════════════════════════════════════════

// APIError is an error answer of the Bot API.
type APIError struct {
	Code        int
	Description string
	RetryAfter  int
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return fmt.Sprintf("telegram api error %d: %s", e.Code, e.Description)
}

// transportError is a failure below the Bot API: DNS, TCP, TLS or a timeout.
type transportError struct {
	method string
	err    error
}

func (e *transportError) Error() string {
	return fmt.Sprintf("telegram %s: %v", e.method, e.err)
}

func (e *transportError) Unwrap() error {
	return e.err
}

func isRetryableError(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code == http.StatusTooManyRequests || apiErr.Code >= 500
	}

	var tErr *transportError
	return errors.As(err, &tErr)
}

// IsChatUnreachable reports whether the chat can no longer receive messages:
// the user blocked the bot, deleted the account or the chat does not exist.
func IsChatUnreachable(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	switch apiErr.Code {
	case http.StatusForbidden:
		return true
	case http.StatusBadRequest:
		d := strings.ToLower(apiErr.Description)
		return strings.Contains(d, "chat not found") ||
			strings.Contains(d, "chat_not_found") ||
			strings.Contains(d, "user is deactivated")
	default:
		return false
	}
}

// IsMessageNotModified reports whether an edit was rejected because nothing changed.
func IsMessageNotModified(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && strings.Contains(apiErr.Description, "message is not modified")
}

// ══════════════════════════════════════════════════════════════════════════════
// LONG POLLING RUNNER
// ══════════════════════════════════════════════════════════════════════════════

// UpdateHandler receives one update. Its error is logged; the update is
// acknowledged either way.
type UpdateHandler func(ctx context.Context, update *Update) error

const (
	pollBatch      = 100
	pollBackoffMin = time.Second
	pollBackoffMax = 30 * time.Second
)

// StartPolling polls for updates until ctx is cancelled. Failed polls back off
// exponentially; the offset only moves forward, so an update is delivered once.
func (c *Client) StartPolling(ctx context.Context, fn UpdateHandler) error {
	c.logger.Info("starting telegram long polling", "timeout_s", c.config.PollingTimeout)

	backoff := pollBackoffMin
	for ctx.Err() == nil {
		updates, err := c.GetUpdates(ctx, c.offset(), pollBatch, c.config.PollingTimeout)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			c.logger.Error("failed to get updates", "error", err, "retry_in", backoff)
			select {
			case <-ctx.Done():
			case <-time.After(backoff):
			}
			backoff = min(backoff*2, pollBackoffMax)
			continue
		}
		backoff = pollBackoffMin

		for i := range updates {
			update := &updates[i]
			c.advance(update.UpdateID)

			if err := fn(ctx, update); err != nil {
				c.logger.Error("failed to handle update",
					"update_id", update.UpdateID,
					"error", err,
				)
			}
		}
	}

	c.logger.Info("stopping telegram long polling")
	return nil
}

func (c *Client) offset() int64 {
	c.updateMu.Lock()
	defer c.updateMu.Unlock()
	return c.updateOffset
}

func (c *Client) advance(updateID int64) {
	c.updateMu.Lock()
	defer c.updateMu.Unlock()
	if updateID >= c.updateOffset {
		c.updateOffset = updateID + 1
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// UTILITY METHODS
// ══════════════════════════════════════════════════════════════════════════════

// ExtractCommand extracts the command from a message (without the /).
func ExtractCommand(msg *Message) string {
	if msg == nil || msg.Text == "" {
		return ""
	}

	for _, entity := range msg.Entities {
		if entity.Type == "bot_command" && entity.Offset == 0 && entity.Length <= len(msg.Text) {
			cmd := msg.Text[1:entity.Length]
			// Remove bot username if present (@botname)
			if at := strings.IndexByte(cmd, '@'); at >= 0 {
				return cmd[:at]
			}
			return cmd
		}
	}

	return ""
}

// SplitMessage cuts text into chunks of at most limit UTF-16 code units, the unit
// Telegram measures message length in, preferring line boundaries. A single line
// longer than limit is cut inside the line, never inside a surrogate pair. Chunks
// that hold only line breaks are dropped.
func SplitMessage(text string, limit int) []string {
	if limit <= 0 {
		limit = MaxMessageLength
	}

	var (
		chunks []string
		cur    strings.Builder
		curLen int
	)
	flush := func() {
		if curLen > 0 {
			chunks = append(chunks, cur.String())
			cur.Reset()
			curLen = 0
		}
	}

	for _, line := range strings.SplitAfter(text, "\n") {
		n := utf16Len(line)
		if curLen+n > limit {
			flush()
		}
		for n > limit {
			head, rest := cutUTF16(line, limit)
			chunks = append(chunks, head)
			line = rest
			n = utf16Len(line)
		}
		cur.WriteString(line)
		curLen += n
	}
	flush()

	out := chunks[:0]
	for _, ch := range chunks {
		if ch = strings.TrimRight(ch, "\n"); ch != "" {
			out = append(out, ch)
		}
	}
	return out
}

// utf16Len counts s in UTF-16 code units.
func utf16Len(s string) int {
	n := 0
	for _, r := range s {
		n += runeUnits(r)
	}
	return n
}

// cutUTF16 splits s after at most limit code units; the first rune is always kept.
func cutUTF16(s string, limit int) (head, rest string) {
	units := 0
	for i, r := range s {
		w := runeUnits(r)
		if units+w > limit && i > 0 {
			return s[:i], s[i:]
		}
		units += w
	}
	return s, ""
}

func runeUnits(r rune) int {
	if w := utf16.RuneLen(r); w > 0 {
		return w
	}
	return 1
}
