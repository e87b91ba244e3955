package http

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/ValentinKolb/dJournal/lib/journal"
)

// Client talks to the control surface of one or more primaries, picking an
// endpoint round-robin for every request
type Client struct {
	serverURLs []*url.URL
	client     *http.Client
	counter    uint32
	retryCount int
}

// NewClient creates a client for the given base URLs (e.g. http://localhost:8080)
func NewClient(endpoints []string, timeout time.Duration, retryCount int) (*Client, error) {
	if len(endpoints) == 0 {
		return nil, fmt.Errorf("no endpoints provided")
	}

	// Parse each server URL
	parsedURLs := make([]*url.URL, len(endpoints))
	for i, server := range endpoints {
		parsedURL, err := url.Parse(strings.TrimSuffix(server, "/"))
		if err != nil {
			return nil, err
		}
		parsedURLs[i] = parsedURL
	}

	if retryCount < 1 {
		retryCount = 1
	}

	return &Client{
		serverURLs: parsedURLs,
		client: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		retryCount: retryCount,
	}, nil
}

// Exec sends a command script for database db and returns the number of entries
// the primary appended
func (c *Client) Exec(ctx context.Context, db journal.DbIndex, script string) (int, error) {
	body, err := c.do(ctx, http.MethodPost, strconv.FormatUint(uint64(db), 10), []byte(script))
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(body)))
}

// Get returns the value of key in database db
func (c *Client) Get(ctx context.Context, db journal.DbIndex, key string) ([]byte, bool, error) {
	path := strconv.FormatUint(uint64(db), 10) + "/" + url.PathEscape(key)
	body, err := c.do(ctx, http.MethodGet, path, nil)
	if err == errNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return body, true, nil
}

// Close releases idle connections
func (c *Client) Close() error {
	c.client.CloseIdleConnections()
	return nil
}

var errNotFound = errors.New("not found")

func (c *Client) do(ctx context.Context, method, path string, payload []byte) ([]byte, error) {
	// Select the next server via round-robin
	idx := atomic.AddUint32(&c.counter, 1) % uint32(len(c.serverURLs))
	requestURL := c.serverURLs[idx].String() + "/" + path

	var (
		resp *http.Response
		err  error
	)
	for i := 0; i < c.retryCount; i++ {
		var req *http.Request
		req, err = http.NewRequestWithContext(ctx, method, requestURL, bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		resp, err = c.client.Do(req)
		if err == nil {
			break
		}
		Logger.Debugf("Request attempt %d/%d failed: %v", i+1, c.retryCount, err)
	}
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			Logger.Errorf("Failed to close response body: %v", err)
		}
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	switch resp.StatusCode {
	case http.StatusOK:
		return body, nil
	case http.StatusNotFound:
		if method == http.MethodGet {
			return nil, errNotFound
		}
	}
	return nil, fmt.Errorf("http error: %s: %s", resp.Status, strings.TrimSpace(string(body)))
}
