package sunoapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/igolaizola/songclip/pkg/generation"
	"github.com/igolaizola/songclip/pkg/ratelimit"
	"github.com/igolaizola/songclip/pkg/tracker"
)

// Client is an adapter for the sunoapi.org music generation service.
type Client struct {
	client    *http.Client
	debug     bool
	ratelimit ratelimit.Lock
	apiKey    string
	base      string
	recorder  tracker.Recorder
}

type Config struct {
	APIKey   string
	BaseURL  string
	Wait     time.Duration
	Debug    bool
	Client   *http.Client
	Recorder tracker.Recorder
}

func New(cfg *Config) *Client {
	wait := cfg.Wait
	if wait == 0 {
		wait = 1 * time.Second
	}
	client := cfg.Client
	if client == nil {
		client = &http.Client{
			Timeout: 2 * time.Minute,
		}
	}
	base := cfg.BaseURL
	if base == "" {
		base = "https://api.sunoapi.org"
	}
	recorder := cfg.Recorder
	if recorder == nil {
		recorder = tracker.NopRecorder{}
	}
	return &Client{
		client:    client,
		ratelimit: ratelimit.New(wait),
		debug:     cfg.Debug,
		apiKey:    cfg.APIKey,
		base:      strings.TrimSuffix(base, "/"),
		recorder:  recorder,
	}
}

func (c *Client) log(format string, args ...interface{}) {
	if c.debug {
		format += "\n"
		log.Printf(format, args...)
	}
}

func (c *Client) record(ctx context.Context, endpoint string, cost float64, sessionID string, err error) {
	u := &tracker.Usage{
		Service:   "sunoapi",
		Endpoint:  endpoint,
		Cost:      cost,
		SessionID: sessionID,
		Success:   err == nil,
	}
	if err != nil {
		u.Cost = 0
		u.Error = err.Error()
	}
	c.recorder.Record(ctx, u)
}

var backoff = []time.Duration{
	30 * time.Second,
	1 * time.Minute,
	2 * time.Minute,
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	maxAttempts := 3
	attempts := 0
	var err error
	for {
		if err != nil {
			c.log("sunoapi: retrying... %v", err)
		}
		err = c.doAttempt(ctx, method, path, in, out)
		if err == nil {
			return nil
		}
		attempts++
		if attempts >= maxAttempts {
			return err
		}
		// Retry timeouts right away.
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			continue
		}
		var svcErr *generation.ServiceError
		if !errors.As(err, &svcErr) {
			return err
		}
		switch svcErr.StatusCode {
		case http.StatusBadGateway, http.StatusGatewayTimeout, http.StatusTooManyRequests, 520:
		default:
			return err
		}
		idx := attempts - 1
		if idx >= len(backoff) {
			idx = len(backoff) - 1
		}
		wait := backoff[idx]
		c.log("sunoapi: server seems to be down, waiting %s before retrying", wait)
		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
}

func (c *Client) doAttempt(ctx context.Context, method, path string, in, out any) error {
	var reqBody io.Reader
	if in != nil {
		body, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("sunoapi: couldn't marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(body)
	}
	u := fmt.Sprintf("%s/%s", c.base, strings.TrimPrefix(path, "/"))
	req, err := http.NewRequestWithContext(ctx, method, u, reqBody)
	if err != nil {
		return fmt.Errorf("sunoapi: couldn't create request: %w", err)
	}
	req.Header.Set("authorization", fmt.Sprintf("Bearer %s", c.apiKey))
	req.Header.Set("content-type", "application/json")

	unlock := c.ratelimit.Lock(ctx)
	defer unlock()

	c.log("sunoapi: do %s %s", method, path)
	resp, err := c.client.Do(req)
	if err != nil {
		return &generation.NetworkError{Service: "sunoapi", Err: err}
	}
	defer resp.Body.Close()
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return &generation.NetworkError{Service: "sunoapi", Err: err}
	}
	c.log("sunoapi: response %s %s %d %s", method, path, resp.StatusCode, string(respBody))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := string(respBody)
		if len(msg) > 100 {
			msg = msg[:100] + "..."
		}
		return &generation.ServiceError{
			Service:    "sunoapi",
			StatusCode: resp.StatusCode,
			Message:    msg,
		}
	}
	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("sunoapi: couldn't unmarshal response body (%T): %w", out, err)
		}
	}
	return nil
}
