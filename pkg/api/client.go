package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"sync"
	"time"

	errs "feedrelay/pkg/errors"
	"feedrelay/pkg/logger"
	"feedrelay/pkg/models"
)

// Client talks to the feedrelay backend
type Client struct {
	httpClient *http.Client
	mu         sync.RWMutex
	baseURL    string
	userAgent  string
	logger     logger.Logger
}

// Options configures a Client
type Options struct {
	BaseURL   string
	Timeout   time.Duration
	UserAgent string
	HTTPClient *http.Client
	Logger     logger.Logger
}

// NewClient creates a backend client
func NewClient(opts Options) *Client {
	hc := opts.HTTPClient
	if hc == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		hc = &http.Client{Timeout: timeout}
	}
	ua := opts.UserAgent
	if ua == "" {
		ua = "feedrelay/1.0"
	}

	return &Client{
		httpClient: hc,
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		userAgent:  ua,
		logger:     logger.OrDefault(opts.Logger).WithField("component", "api"),
	}
}

// SetBaseURL points the client at another backend
func (c *Client) SetBaseURL(u string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.baseURL = strings.TrimRight(u, "/")
}

// Me returns the user owning token. 401 and 403 come back as auth errors
// carrying the status code; other failures are network or server errors.
func (c *Client) Me(ctx context.Context, token string) (*models.User, error) {
	req, err := c.newRequest(ctx, http.MethodGet, PathIdentityMe, token, nil, "")
	if err != nil {
		return nil, err
	}

	var user models.User
	if err := c.doJSON(req, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// QueueItem posts one item for processing. It makes exactly one attempt.
func (c *Client) QueueItem(ctx context.Context, token string, body QueueRequest) (*QueueResponse, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, errs.Wrap(errs.ErrorTypeParsing, err, "encode queue request")
	}
	req, err := c.newRequest(ctx, http.MethodPost, PathQueueItem, token, bytes.NewReader(payload), "application/json")
	if err != nil {
		return nil, err
	}

	var out QueueResponse
	if err := c.doJSON(req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Deliver satisfies delivery.Transport
func (c *Client) Deliver(ctx context.Context, token, userID string, item models.CollectedItem) (string, error) {
	resp, err := c.QueueItem(ctx, token, QueueRequest{
		UserID:    userID,
		Content:   item.Content,
		ItemID:    item.ID,
		SourceURL: item.SourceURL,
	})
	if err != nil {
		return "", err
	}
	if resp.ID != "" {
		return resp.ID, nil
	}
	return resp.Status, nil
}

// UploadMemo sends an audio file as multipart form data
func (c *Client) UploadMemo(ctx context.Context, token, filename string, audio io.Reader) (*MemoResponse, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	part, err := mw.CreateFormFile("audio", filename)
	if err != nil {
		return nil, errs.Wrap(errs.ErrorTypeUnknown, err, "create form file")
	}
	if _, err := io.Copy(part, audio); err != nil {
		return nil, errs.Wrap(errs.ErrorTypeUnknown, err, "read memo audio")
	}
	if err := mw.Close(); err != nil {
		return nil, errs.Wrap(errs.ErrorTypeUnknown, err, "finish multipart body")
	}

	req, err := c.newRequest(ctx, http.MethodPost, PathMemos, token, &buf, mw.FormDataContentType())
	if err != nil {
		return nil, err
	}

	var out MemoResponse
	if err := c.doJSON(req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) newRequest(ctx context.Context, method, path, token string, body io.Reader, contentType string) (*http.Request, error) {
	c.mu.RLock()
	base := c.baseURL
	c.mu.RUnlock()

	req, err := http.NewRequestWithContext(ctx, method, base+path, body)
	if err != nil {
		return nil, errs.Wrap(errs.ErrorTypeUnknown, err, "failed to create request")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	return req, nil
}

// doJSON performs req, checks the status and decodes a JSON body into target
func (c *Client) doJSON(req *http.Request, target interface{}) error {
	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.WithError(err).DebugWithFields("HTTP request failed", map[string]interface{}{
			"method": req.Method,
			"url":    req.URL.Path,
		})
		if req.Context().Err() != nil {
			return errs.Wrap(errs.ErrorTypeCancelled, err, "request cancelled")
		}
		return errs.Wrap(errs.ErrorTypeNetwork, err, fmt.Sprintf("network error: %v", err))
	}
	defer resp.Body.Close()

	logger.LogRequest(c.logger, req.Method, req.URL.Path, resp.StatusCode, time.Since(start))

	if err := checkResponseStatus(resp); err != nil {
		return err
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return errs.Wrap(errs.ErrorTypeNetwork, err, "failed to read response body")
	}
	if len(bytes.TrimSpace(body)) == 0 || target == nil {
		return nil
	}
	if err := json.Unmarshal(body, target); err != nil {
		return errs.Wrap(errs.ErrorTypeParsing, err, "failed to decode response")
	}
	return nil
}

// checkResponseStatus maps non-2xx responses onto the error taxonomy
func checkResponseStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	msg := strings.TrimSpace(string(snippet))
	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return errs.WithCode(errs.ErrorTypeAuth, resp.StatusCode, msg)
	case resp.StatusCode == http.StatusTooManyRequests:
		return errs.WithCode(errs.ErrorTypeRateLimit, resp.StatusCode, msg)
	case resp.StatusCode >= 500:
		return errs.WithCode(errs.ErrorTypeServerError, resp.StatusCode, msg)
	default:
		return errs.WithCode(errs.ErrorTypeTransport, resp.StatusCode, msg)
	}
}
