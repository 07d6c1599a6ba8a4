// Package preflight checks that the relay service is reachable and answering
// before a load run is started.
package preflight

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/torosent/relayload/internal/config"
)

const (
	healthPath       = "/health"
	maxBodyBytes     = 64 * 1024
	maxDetailRunes   = 60
	healthyStatusKey = "status"
)

// Result is the outcome of one preflight probe.
type Result struct {
	Name    string
	URL     string
	Status  int
	Elapsed time.Duration
	Detail  string
	Err     error
}

// OK reports whether the probe passed.
func (r Result) OK() bool {
	return r.Err == nil
}

// Checker probes a relay deployment at a base address.
type Checker struct {
	client *http.Client
	base   string
	body   string
}

// New returns a Checker for baseAddr (host:port or base URL). A nil client
// uses a client with a 10 second timeout.
func New(baseAddr string, client *http.Client) *Checker {
	base := strings.TrimRight(strings.TrimSpace(baseAddr), "/")
	if base != "" && !strings.Contains(base, "://") {
		base = "http://" + base
	}
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &Checker{client: client, base: base, body: config.DefaultBody}
}

// Run probes the health route, then both relay routes. Every probe runs even
// when an earlier one fails.
func (c *Checker) Run(ctx context.Context) []Result {
	return []Result{
		c.Health(ctx),
		c.Relay(ctx, config.EndpointSync),
		c.Relay(ctx, config.EndpointAsync),
	}
}

// Health expects a 200 from /health whose body reports "healthy", either as
// a JSON status field or as plain text.
func (c *Checker) Health(ctx context.Context) Result {
	res := Result{Name: "health", URL: c.base + healthPath}

	status, body, elapsed, err := c.send(ctx, http.MethodGet, res.URL, "")
	res.Status, res.Elapsed = status, elapsed
	if err != nil {
		res.Err = err
		return res
	}
	if status != http.StatusOK {
		res.Err = fmt.Errorf("unexpected status %d", status)
		return res
	}

	if gjson.ValidBytes(body) {
		state := gjson.GetBytes(body, healthyStatusKey)
		if state.Exists() {
			res.Detail = state.String()
			if state.String() != "healthy" {
				res.Err = fmt.Errorf("service reports status %q", state.String())
			}
			return res
		}
	}
	text := strings.TrimSpace(string(body))
	res.Detail = truncate(text)
	if !strings.Contains(strings.ToLower(text), "healthy") {
		res.Err = fmt.Errorf("health response does not mention healthy")
	}
	return res
}

// Relay sends one form POST to the relay route of endpoint and reads the JSON
// envelope: success must be true, response_text is reported as detail.
func (c *Checker) Relay(ctx context.Context, endpoint config.EndpointType) Result {
	res := Result{Name: string(endpoint), URL: c.base + endpoint.Path()}
	if endpoint.Path() == "" {
		res.Err = fmt.Errorf("unknown endpoint type %q", endpoint)
		return res
	}

	status, body, elapsed, err := c.send(ctx, http.MethodPost, res.URL, c.body)
	res.Status, res.Elapsed = status, elapsed
	if err != nil {
		res.Err = err
		return res
	}
	if !gjson.ValidBytes(body) {
		res.Err = fmt.Errorf("status %d with non-JSON body", status)
		res.Detail = truncate(strings.TrimSpace(string(body)))
		return res
	}

	envelope := gjson.ParseBytes(body)
	if !envelope.Get("success").Bool() {
		msg := envelope.Get("error").String()
		if msg == "" {
			msg = "success is not true"
		}
		res.Err = fmt.Errorf("relay failed (status %d): %s", status, msg)
		return res
	}
	if status != http.StatusOK {
		res.Err = fmt.Errorf("unexpected status %d", status)
	}
	if upstream := envelope.Get("status_code"); upstream.Exists() && upstream.Int() != http.StatusOK {
		res.Err = fmt.Errorf("upstream answered %d", upstream.Int())
	}
	res.Detail = truncate(strings.TrimSpace(envelope.Get("response_text").String()))
	return res
}

func (c *Checker) send(ctx context.Context, method, target, body string) (int, []byte, time.Duration, error) {
	if _, err := url.ParseRequestURI(target); err != nil {
		return 0, nil, 0, fmt.Errorf("invalid target %q: %w", target, err)
	}

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return 0, nil, 0, err
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		return 0, nil, time.Since(start), err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	elapsed := time.Since(start)
	if err != nil {
		return resp.StatusCode, nil, elapsed, fmt.Errorf("read body: %w", err)
	}
	return resp.StatusCode, data, elapsed, nil
}

// Print writes one line per result and reports whether all passed.
func Print(w io.Writer, results []Result) bool {
	passed := true
	for _, r := range results {
		mark := "OK  "
		if !r.OK() {
			mark = "FAIL"
			passed = false
		}
		line := fmt.Sprintf("[%s] %-7s %s", mark, r.Name, r.URL)
		if r.Status > 0 {
			line += fmt.Sprintf(" -> %d in %.2fs", r.Status, r.Elapsed.Seconds())
		}
		switch {
		case r.Err != nil:
			line += fmt.Sprintf(" (%v)", r.Err)
		case r.Detail != "":
			line += fmt.Sprintf(" %q", r.Detail)
		}
		fmt.Fprintln(w, line)
	}
	return passed
}

func truncate(s string) string {
	runes := []rune(s)
	if len(runes) <= maxDetailRunes {
		return s
	}
	return string(runes[:maxDetailRunes]) + "..."
}
