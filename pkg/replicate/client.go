package replicate

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
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/igolaizola/songclip/pkg/generation"
	"github.com/igolaizola/songclip/pkg/ratelimit"
	"github.com/igolaizola/songclip/pkg/tracker"
)

// Client is the shared transport for the replicate.com prediction API. The
// image and video adapters embed it and bind it to a model.
type Client struct {
	client    *http.Client
	debug     bool
	ratelimit ratelimit.Lock
	token     string
	base      string
	recorder  tracker.Recorder
}

type Config struct {
	Token    string
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
		base = "https://api.replicate.com"
	}
	recorder := cfg.Recorder
	if recorder == nil {
		recorder = tracker.NopRecorder{}
	}
	return &Client{
		client:    client,
		ratelimit: ratelimit.New(wait),
		debug:     cfg.Debug,
		token:     cfg.Token,
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

func (c *Client) record(ctx context.Context, endpoint string, cost float64, err error) {
	u := &tracker.Usage{
		Service:  "replicate",
		Endpoint: endpoint,
		Cost:     cost,
		Success:  err == nil,
	}
	if err != nil {
		u.Cost = 0
		u.Error = err.Error()
	}
	c.recorder.Record(ctx, u)
}

// prediction is the wire shape shared by submit and poll responses.
type prediction struct {
	ID     string          `json:"id"`
	Status string          `json:"status"`
	Output json.RawMessage `json:"output"`
	Error  string          `json:"error"`
}

// outputURLs normalizes the model output, which is either a single URL
// string or a list of URL strings depending on the model.
func (p *prediction) outputURLs() []string {
	if len(p.Output) == 0 {
		return nil
	}
	var single string
	if err := json.Unmarshal(p.Output, &single); err == nil {
		if single == "" {
			return nil
		}
		return []string{single}
	}
	var many []string
	if err := json.Unmarshal(p.Output, &many); err == nil {
		return many
	}
	return nil
}

var backoff = []time.Duration{
	30 * time.Second,
	1 * time.Minute,
	2 * time.Minute,
}

func (c *Client) do(ctx context.Context, method, path string, wantStatus int, in, out any) error {
	maxAttempts := 3
	attempts := 0
	var err error
	for {
		if err != nil {
			c.log("replicate: retrying... %v", err)
		}
		err = c.doAttempt(ctx, method, path, wantStatus, in, out)
		if err == nil {
			return nil
		}
		attempts++
		if attempts >= maxAttempts {
			return err
		}
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
		c.log("replicate: server seems to be down, waiting %s before retrying", wait)
		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
}

func (c *Client) doAttempt(ctx context.Context, method, path string, wantStatus int, in, out any) error {
	var reqBody io.Reader
	if in != nil {
		body, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("replicate: couldn't marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(body)
	}
	u := fmt.Sprintf("%s/%s", c.base, strings.TrimPrefix(path, "/"))
	req, err := http.NewRequestWithContext(ctx, method, u, reqBody)
	if err != nil {
		return fmt.Errorf("replicate: couldn't create request: %w", err)
	}
	req.Header.Set("authorization", fmt.Sprintf("Bearer %s", c.token))
	req.Header.Set("content-type", "application/json")

	unlock := c.ratelimit.Lock(ctx)
	defer unlock()

	c.log("replicate: do %s %s", method, path)
	resp, err := c.client.Do(req)
	if err != nil {
		return &generation.NetworkError{Service: "replicate", Err: err}
	}
	defer resp.Body.Close()
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return &generation.NetworkError{Service: "replicate", Err: err}
	}
	c.log("replicate: response %s %s %d %s", method, path, resp.StatusCode, string(respBody))
	if resp.StatusCode != wantStatus {
		msg := string(respBody)
		if len(msg) > 100 {
			msg = msg[:100] + "..."
		}
		return &generation.ServiceError{
			Service:    "replicate",
			StatusCode: resp.StatusCode,
			Message:    msg,
		}
	}
	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("replicate: couldn't unmarshal response body (%T): %w", out, err)
		}
	}
	return nil
}

// download fetches a prediction output URL to a local path, returning false
// on any failure.
func (c *Client) download(ctx context.Context, url, path string) bool {
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		c.log("replicate: couldn't create download request: %v", err)
		return false
	}
	resp, err := c.client.Do(req)
	if err != nil {
		c.log("replicate: download failed: %v", err)
		return false
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		c.log("replicate: download failed with status %d", resp.StatusCode)
		return false
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		c.log("replicate: couldn't create directory for %s: %v", path, err)
		return false
	}
	f, err := os.Create(path)
	if err != nil {
		c.log("replicate: couldn't create file %s: %v", path, err)
		return false
	}
	defer f.Close()
	if _, err := io.Copy(f, resp.Body); err != nil {
		c.log("replicate: couldn't write file %s: %v", path, err)
		_ = os.Remove(path)
		return false
	}
	return true
}
