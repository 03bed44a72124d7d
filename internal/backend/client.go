package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/septivank/water-meter-agent/internal/apperror"
)

// TokenSource supplies the bearer token for authenticated calls
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

type authMode int

const (
	authNone authMode = iota
	authOptional
	authRequired
)

// envelope is the common response wrapper {success, message, data}
type envelope struct {
	Success *bool           `json:"success"`
	Message string          `json:"message"`
	Error   string          `json:"error"`
	Data    json.RawMessage `json:"data"`
}

func (e envelope) text() string {
	if e.Message != "" {
		return e.Message
	}
	return e.Error
}

// HTTPError is the cause attached to taxonomy errors built from a backend response
type HTTPError struct {
	StatusCode int
	Message    string
}

func (e *HTTPError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("backend responded %d", e.StatusCode)
	}
	return fmt.Sprintf("backend responded %d: %s", e.StatusCode, e.Message)
}

// StatusCode returns the HTTP status behind err, or 0 when err did not come from a response
func StatusCode(err error) int {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode
	}
	return 0
}

// Client is the utility backend REST client
type Client struct {
	httpClient *resty.Client
	tokens     TokenSource
	logger     *zap.Logger
}

// NewClient creates a backend client. No retries are configured: every retry is user-initiated.
func NewClient(baseURL string, timeout time.Duration, logger *zap.Logger) *Client {
	client := resty.New().
		SetBaseURL(baseURL).
		SetHeader("Accept", "application/json")
	if timeout > 0 {
		client.SetTimeout(timeout)
	}

	return &Client{
		httpClient: client,
		logger:     logger,
	}
}

// SetTokenSource wires the token provider used for authenticated calls
func (c *Client) SetTokenSource(tokens TokenSource) {
	c.tokens = tokens
}

type requestIDKey struct{}

// WithRequestID tags outgoing calls made with ctx with an X-Request-ID header
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, requestID)
}

func requestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// do executes a request and returns the raw data member of the envelope
func (c *Client) do(ctx context.Context, method, path string, mode authMode, prepare func(*resty.Request) error) (json.RawMessage, error) {
	req := c.httpClient.R().SetContext(ctx)

	if err := c.authorize(ctx, req, mode); err != nil {
		return nil, err
	}
	if id := requestIDFrom(ctx); id != "" {
		req.SetHeader("X-Request-ID", id)
	}
	if prepare != nil {
		if err := prepare(req); err != nil {
			return nil, err
		}
	}

	started := time.Now()
	resp, err := req.Execute(method, path)
	if err != nil {
		c.logger.Error("backend call failed",
			zap.String("method", method),
			zap.String("path", path),
			zap.Error(err),
		)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, apperror.Network("the request was cancelled", ctxErr)
		}
		return nil, apperror.Network("could not reach the server, please check the connection", err)
	}

	c.logger.Debug("backend call",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status_code", resp.StatusCode()),
		zap.Duration("duration", time.Since(started)),
	)

	return c.decodeEnvelope(method, path, resp.StatusCode(), resp.Body())
}

func (c *Client) authorize(ctx context.Context, req *resty.Request, mode authMode) error {
	if mode == authNone {
		return nil
	}
	if c.tokens == nil {
		if mode == authRequired {
			return apperror.Auth("you are not logged in", nil)
		}
		return nil
	}

	token, err := c.tokens.Token(ctx)
	if err != nil {
		if mode == authOptional && errors.Is(err, apperror.ErrAuth) {
			return nil
		}
		return err
	}
	req.SetAuthToken(token)
	return nil
}

func (c *Client) decodeEnvelope(method, path string, status int, body []byte) (json.RawMessage, error) {
	body = bytes.TrimSpace(body)

	var env envelope
	wrapped := len(body) > 0 && body[0] == '{' && json.Unmarshal(body, &env) == nil

	if status >= http.StatusBadRequest {
		msg := ""
		if wrapped {
			msg = env.text()
		}
		c.logger.Warn("backend returned error status",
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("status_code", status),
			zap.String("message", msg),
		)
		return nil, statusError(status, msg)
	}

	if !wrapped {
		// bare payload without envelope
		return json.RawMessage(body), nil
	}
	if env.Success != nil && !*env.Success {
		msg := env.text()
		if msg == "" {
			msg = "the server did not accept the request"
		}
		return nil, &apperror.Error{
			Kind:    apperror.KindValidation,
			Message: msg,
			Err:     &HTTPError{StatusCode: status, Message: msg},
		}
	}
	if env.Data == nil && env.Success == nil {
		return json.RawMessage(body), nil
	}
	return env.Data, nil
}

func statusError(status int, msg string) error {
	cause := &HTTPError{StatusCode: status, Message: msg}
	switch {
	case status == http.StatusBadRequest || status == http.StatusUnprocessableEntity:
		return &apperror.Error{Kind: apperror.KindValidation, Message: orDefault(msg, "the server rejected the submitted data"), Err: cause}
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return &apperror.Error{Kind: apperror.KindAuth, Message: orDefault(msg, "your session has expired, please log in again"), Err: cause}
	case status == http.StatusNotFound:
		return &apperror.Error{Kind: apperror.KindNotFound, Message: orDefault(msg, "the requested record was not found"), Err: cause}
	case status == http.StatusConflict:
		return &apperror.Error{Kind: apperror.KindConflict, Message: orDefault(msg, "the record was changed by someone else"), Err: cause}
	default:
		return &apperror.Error{Kind: apperror.KindNetwork, Message: "the server could not process the request, please try again", Err: cause}
	}
}

func orDefault(msg, fallback string) string {
	if msg != "" {
		return msg
	}
	return fallback
}

// decodeList decodes either a JSON array or an object wrapping it under "data".
// Any other shape is an error so that an unreadable history is never taken for an empty one.
func decodeList[T any](raw json.RawMessage) ([]T, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}
	return decodeItems[T](raw)
}

func decodeItems[T any](raw json.RawMessage) ([]T, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) > 0 && raw[0] == '{' {
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(raw, &fields); err != nil {
			return nil, err
		}
		data, ok := fields["data"]
		if !ok {
			return nil, errors.New("object has no data list")
		}
		return decodeItems[T](data)
	}
	if len(raw) == 0 || raw[0] != '[' {
		return nil, fmt.Errorf("expected a list, got %.32q", raw)
	}

	var items []T
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, err
	}
	return items, nil
}

// decodeOneOrMany accepts an array, an object wrapping it under "data", or a single object
func decodeOneOrMany[T any](raw json.RawMessage) ([]T, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '{' {
		return decodeList[T](raw)
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, err
	}
	if data, ok := fields["data"]; ok {
		return decodeOneOrMany[T](data)
	}

	item, err := decodeObject[T](raw)
	if err != nil {
		return nil, err
	}
	return []T{*item}, nil
}

func decodeObject[T any](raw json.RawMessage) (*T, error) {
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

func malformed(what string, err error) error {
	return apperror.Network("the server sent an unexpected response", fmt.Errorf("decode %s: %w", what, err))
}
