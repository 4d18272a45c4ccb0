package practicum

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

	logx "homeworkbot/pkg/logx"
)

// DefaultEndpoint is the production homework_statuses endpoint.
const DefaultEndpoint = "https://practicum.yandex.ru/api/user_api/homework_statuses/"

// maxBodyBytes caps how much of a response body is read.
const maxBodyBytes = 4 << 20

// ClientConfig configures the API client.
type ClientConfig struct {
	Endpoint string
	Token    string
	// Timeout bounds a single request. 0 means no client-side timeout.
	Timeout time.Duration
}

// Client fetches homework statuses for a single user.
type Client struct {
	cfg  ClientConfig
	http *http.Client
	log  logx.Logger
}

func NewClient(cfg ClientConfig, log logx.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.Endpoint) == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	if _, err := url.ParseRequestURI(cfg.Endpoint); err != nil {
		return nil, fmt.Errorf("practicum endpoint: %w", err)
	}
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("practicum token is empty")
	}
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
		log:  log,
	}, nil
}

// FetchHomeworkStatuses requests every status change since the from cursor
// (Unix seconds) and returns the decoded JSON value. Numbers are kept as
// json.Number so integer timestamps survive intact.
//
// Transport and format failures are logged here and returned as transient
// *FetchError values. An unexpected status is returned without logging;
// the caller owns reporting it.
func (c *Client) FetchHomeworkStatuses(ctx context.Context, from int64) (any, error) {
	u, err := url.Parse(c.cfg.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("practicum endpoint: %w", err)
	}
	q := u.Query()
	q.Set("from_date", strconv.FormatInt(from, 10))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "OAuth "+c.cfg.Token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		c.log.Error("api request failed", logx.Int64("from_date", from), logx.Err(err))
		return nil, &FetchError{Kind: ErrTransport, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		c.log.Error("api response read failed", logx.Int("status", resp.StatusCode), logx.Err(err))
		return nil, &FetchError{Kind: ErrTransport, StatusCode: resp.StatusCode, Err: err}
	}
	c.log.Info("api response received", logx.Int("status", resp.StatusCode), logx.Int("bytes", len(body)))

	if resp.StatusCode != http.StatusOK {
		return nil, &FetchError{Kind: ErrUnexpectedStatus, StatusCode: resp.StatusCode}
	}

	v, err := decodeJSON(body)
	if err != nil {
		c.log.Error("api response is not json", logx.Err(err))
		return nil, &FetchError{Kind: ErrFormat, StatusCode: resp.StatusCode, Err: err}
	}
	return v, nil
}

func decodeJSON(body []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	// reject trailing tokens (e.g. concatenated JSON)
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		if err == nil {
			return nil, errors.New("trailing data after json value")
		}
		return nil, err
	}
	return v, nil
}
