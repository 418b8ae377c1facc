// Package botapi is a small client for the Telegram Bot HTTP API, covering
// what the relay driver and upload notifications need: sending documents,
// photos and messages, resolving file ids and downloading files.
//
// Calls that change remote state are retried a bounded number of times with
// linear backoff. Timeouts are never retried.
//
// Usage:
//
//	c := botapi.New(token, botapi.WithLogger(log))
//	msg, err := c.SendDocument(ctx, chatID, botapi.Upload{Name: "a.png", Data: data})
//	if err != nil { ... }
//	f, err := c.GetFile(ctx, msg.Document.FileID)
package botapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/koustreak/imgbed/internal/errs"
	"github.com/koustreak/imgbed/internal/logger"
	"github.com/koustreak/imgbed/internal/retry"
)

// DefaultAPIBase is the public Bot API root.
const DefaultAPIBase = "https://api.telegram.org"

const (
	defaultAttemptTimeout = 20 * time.Second
	maxAPIResponseBytes   = 1 << 20
)

// Client talks to one bot. It is safe for concurrent use.
type Client struct {
	token          string
	apiBase        string
	http           *http.Client
	log            *logger.Logger
	attemptTimeout time.Duration
	retry          retry.Policy
}

// Option configures a Client.
type Option func(*Client)

// WithAPIBase points the client at a self-hosted Bot API server.
func WithAPIBase(base string) Option {
	return func(c *Client) {
		if base != "" {
			c.apiBase = strings.TrimRight(base, "/")
		}
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// WithLogger sets the logger.
func WithLogger(l *logger.Logger) Option {
	return func(c *Client) { c.log = logger.OrNop(l) }
}

// WithRetry overrides the retry budget and the linear backoff step.
func WithRetry(maxRetries int, step time.Duration) Option {
	return func(c *Client) {
		if maxRetries >= 0 {
			c.retry.MaxRetries = uint64(maxRetries)
		}
		c.retry.Step = step
	}
}

// WithAttemptTimeout bounds each individual HTTP attempt.
func WithAttemptTimeout(d time.Duration) Option {
	return func(c *Client) { c.attemptTimeout = d }
}

// New returns a Client for token.
func New(token string, opts ...Option) *Client {
	c := &Client{
		token:          token,
		apiBase:        DefaultAPIBase,
		http:           &http.Client{},
		log:            logger.Nop(),
		attemptTimeout: defaultAttemptTimeout,
		retry:          retry.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.log = c.log.Component("botapi")
	return c
}

// --- wire types ---

type User struct {
	ID        int64  `json:"id"`
	IsBot     bool   `json:"is_bot"`
	FirstName string `json:"first_name"`
	Username  string `json:"username"`
}

type Document struct {
	FileID       string `json:"file_id"`
	FileUniqueID string `json:"file_unique_id"`
	FileName     string `json:"file_name"`
	MimeType     string `json:"mime_type"`
	FileSize     int64  `json:"file_size"`
}

type PhotoSize struct {
	FileID   string `json:"file_id"`
	Width    int    `json:"width"`
	Height   int    `json:"height"`
	FileSize int64  `json:"file_size"`
}

type Message struct {
	MessageID int64       `json:"message_id"`
	Document  *Document   `json:"document,omitempty"`
	Photo     []PhotoSize `json:"photo,omitempty"`
	Text      string      `json:"text,omitempty"`
}

type File struct {
	FileID       string `json:"file_id"`
	FileUniqueID string `json:"file_unique_id"`
	FileSize     int64  `json:"file_size"`
	FilePath     string `json:"file_path"`
}

// envelope is the common response shape of every Bot API method.
type envelope struct {
	OK          bool            `json:"ok"`
	Result      json.RawMessage `json:"result"`
	Description string          `json:"description"`
	ErrorCode   int             `json:"error_code"`
}

// APIError is a response with ok=false.
type APIError struct {
	Method      string
	StatusCode  int
	Description string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("bot api %s: %d %s", e.Method, e.StatusCode, e.Description)
}

// --- methods ---

// GetMe checks the token. It is not retried; callers probe with a short
// deadline.
func (c *Client) GetMe(ctx context.Context) (*User, error) {
	var u User
	err := c.once(ctx, "getMe", func(ctx context.Context) (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, c.methodURL("getMe"), nil)
	}, &u)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// SendDocument uploads doc to chatID as a document (no recompression).
func (c *Client) SendDocument(ctx context.Context, chatID string, doc Upload) (*Message, error) {
	var msg Message
	err := c.do(ctx, "sendDocument", func(ctx context.Context) (*http.Request, error) {
		return c.multipartRequest(ctx, "sendDocument", map[string]string{"chat_id": chatID}, "document", &doc)
	}, &msg)
	if err != nil {
		return nil, err
	}
	if msg.Document == nil || msg.Document.FileID == "" {
		return nil, errs.New(errs.ErrKindBackendRequestFailed, "sendDocument response carries no file id")
	}
	return &msg, nil
}

// SendPhoto posts photo with an optional caption.
func (c *Client) SendPhoto(ctx context.Context, chatID string, photo Upload, caption, parseMode string) (*Message, error) {
	fields := map[string]string{"chat_id": chatID}
	if caption != "" {
		fields["caption"] = caption
	}
	if parseMode != "" {
		fields["parse_mode"] = parseMode
	}
	var msg Message
	err := c.do(ctx, "sendPhoto", func(ctx context.Context) (*http.Request, error) {
		return c.multipartRequest(ctx, "sendPhoto", fields, "photo", &photo)
	}, &msg)
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

// SendMessage posts a text message.
func (c *Client) SendMessage(ctx context.Context, chatID, text, parseMode string) (*Message, error) {
	form := url.Values{"chat_id": {chatID}, "text": {text}}
	if parseMode != "" {
		form.Set("parse_mode", parseMode)
	}
	var msg Message
	err := c.do(ctx, "sendMessage", func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.methodURL("sendMessage"), strings.NewReader(form.Encode()))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		return req, nil
	}, &msg)
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

// GetFile resolves fileID to a transient download path.
func (c *Client) GetFile(ctx context.Context, fileID string) (*File, error) {
	u := c.methodURL("getFile") + "?" + url.Values{"file_id": {fileID}}.Encode()
	var f File
	err := c.do(ctx, "getFile", func(ctx context.Context) (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	}, &f)
	if err != nil {
		return nil, err
	}
	if f.FilePath == "" {
		return nil, errs.New(errs.ErrKindNotFound, "file has no download path")
	}
	return &f, nil
}

// Download fetches the bytes at a path returned by GetFile. contentType
// falls back to image/jpeg when the server sends none.
func (c *Client) Download(ctx context.Context, filePath string) (data []byte, contentType string, err error) {
	u := c.apiBase + "/file/bot" + c.token + "/" + strings.TrimLeft(filePath, "/")

	err = c.withRetry(ctx, "download", func() error {
		attemptCtx, cancel := c.attemptContext(ctx)
		defer cancel()

		req, err := http.NewRequestWithContext(attemptCtx, http.MethodGet, u, nil)
		if err != nil {
			return retry.Permanent(errs.Wrap(errs.ErrKindInvalidInput, "build download request", err))
		}
		resp, err := c.http.Do(req)
		if err != nil {
			return c.transportError("download", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxAPIResponseBytes))
			return statusError("download", resp.StatusCode, resp.Status)
		}
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return c.transportError("download", err)
		}
		data = body
		contentType = resp.Header.Get("Content-Type")
		return nil
	})
	if err != nil {
		return nil, "", err
	}
	if contentType == "" {
		contentType = "image/jpeg"
	}
	return data, contentType, nil
}

// --- plumbing ---

type requestFunc func(ctx context.Context) (*http.Request, error)

func (c *Client) methodURL(method string) string {
	return c.apiBase + "/bot" + c.token + "/" + method
}

func (c *Client) attemptContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.attemptTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.attemptTimeout)
}

// do runs method with retries and decodes the result into out.
func (c *Client) do(ctx context.Context, method string, build requestFunc, out any) error {
	return c.withRetry(ctx, method, func() error {
		return c.attempt(ctx, method, build, out)
	})
}

// once runs method a single time.
func (c *Client) once(ctx context.Context, method string, build requestFunc, out any) error {
	return retry.Do(ctx, retry.Policy{}, func() error {
		return c.attempt(ctx, method, build, out)
	}, nil)
}

func (c *Client) withRetry(ctx context.Context, method string, op func() error) error {
	return retry.Do(ctx, c.retry, op, func(err error, wait time.Duration) {
		c.log.WarnWith("bot api call failed, retrying", err, map[string]interface{}{
			"method": method,
			"wait":   wait.String(),
		})
	})
}

// attempt performs one HTTP round trip. Errors that must not be retried are
// wrapped with retry.Permanent.
func (c *Client) attempt(ctx context.Context, method string, build requestFunc, out any) error {
	attemptCtx, cancel := c.attemptContext(ctx)
	defer cancel()

	req, err := build(attemptCtx)
	if err != nil {
		return retry.Permanent(errs.Wrap(errs.ErrKindInvalidInput, "build "+method+" request", err))
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return c.transportError(method, err)
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxAPIResponseBytes)).Decode(&env); err != nil {
		if resp.StatusCode != http.StatusOK {
			return statusError(method, resp.StatusCode, resp.Status)
		}
		return errs.Wrap(errs.ErrKindBackendRequestFailed, method+": malformed response", err)
	}

	if !env.OK || resp.StatusCode != http.StatusOK {
		code := env.ErrorCode
		if code == 0 {
			code = resp.StatusCode
		}
		return apiError(method, code, env.Description)
	}

	if out != nil && len(env.Result) > 0 {
		if err := json.Unmarshal(env.Result, out); err != nil {
			return retry.Permanent(errs.Wrap(errs.ErrKindBackendRequestFailed, method+": unexpected result shape", err))
		}
	}
	return nil
}

// transportError classifies a failed round trip. The request URL embeds the
// bot token, so it is stripped from the error first.
func (c *Client) transportError(method string, err error) error {
	var uerr *url.Error
	if errors.As(err, &uerr) {
		err = &url.Error{Op: uerr.Op, URL: c.redact(uerr.URL), Err: uerr.Err}
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return retry.Permanent(errs.Wrap(errs.ErrKindTimeout, method+" timed out", err))
	}
	return errs.Wrap(errs.ErrKindBackendRequestFailed, method+" request failed", err)
}

func (c *Client) redact(s string) string {
	if c.token == "" {
		return s
	}
	return strings.ReplaceAll(s, c.token, "<token>")
}

func apiError(method string, code int, description string) error {
	cause := &APIError{Method: method, StatusCode: code, Description: description}
	msg := method + " rejected"
	if description != "" {
		msg = method + ": " + description
	}
	switch {
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return retry.Permanent(errs.Wrap(errs.ErrKindBackendUnavailable, msg, cause))
	case code == http.StatusNotFound:
		return retry.Permanent(errs.Wrap(errs.ErrKindNotFound, msg, cause))
	case code == http.StatusTooManyRequests || code >= 500:
		return errs.Wrap(errs.ErrKindBackendRequestFailed, msg, cause)
	default:
		return retry.Permanent(errs.Wrap(errs.ErrKindBackendRequestFailed, msg, cause))
	}
}

func statusError(method string, code int, status string) error {
	return apiError(method, code, status)
}
