// Package helpdesk is a small client for the Freshdesk REST API v2:
// ticket creation plus the account and ticket-field reads used for
// diagnostics.
package helpdesk

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/yourorg/bulk-tickets/internal/metrics"
)

const (
	writeTimeout = 30 * time.Second
	readTimeout  = 15 * time.Second

	// maxBody caps how much of a non-2xx response is kept for error reports.
	// Successful responses are read whole.
	maxBody = 64 << 10

	// authPassword is the fixed password paired with the API key.
	authPassword = "X"
)

// Ticket field constants sent with every ticket.
const (
	StatusOpen   = 2
	PriorityLow  = 1
	SourcePortal = 2
	DefaultType  = "Other Issue"
)

// Config holds what a Client needs. BaseURL and APIKey are required.
type Config struct {
	BaseURL    string
	APIKey     string
	TicketType string
	// HTTPClient defaults to a client without its own timeout; per-call
	// deadlines come from the request context.
	HTTPClient *http.Client
	Logger     *zap.Logger
}

// Client talks to one helpdesk account. It holds no mutable state and is
// safe for concurrent use.
type Client struct {
	baseURL    string
	apiKey     string
	ticketType string
	http       *http.Client
	logger     *zap.Logger
}

// NewClient applies defaults to cfg.
func NewClient(cfg Config) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		ticketType: cfg.TicketType,
		http:       cfg.HTTPClient,
		logger:     cfg.Logger,
	}
	if c.ticketType == "" {
		c.ticketType = DefaultType
	}
	if c.http == nil {
		c.http = &http.Client{}
	}
	if c.logger == nil {
		c.logger = zap.NewNop()
	}
	return c
}

// NewTicket is the body of POST /tickets.
type NewTicket struct {
	Email        string         `json:"email"`
	Subject      string         `json:"subject"`
	Description  string         `json:"description"`
	Status       int            `json:"status"`
	Priority     int            `json:"priority"`
	Source       int            `json:"source"`
	Type         string         `json:"type"`
	CustomFields map[string]any `json:"custom_fields"`
	CCEmails     []string       `json:"cc_emails"`
}

// CreateTicket opens one ticket for email and returns its id. The call is
// not idempotent and is never retried here.
func (c *Client) CreateTicket(ctx context.Context, email, subject, description string, customFields map[string]any) (int64, error) {
	if customFields == nil {
		customFields = map[string]any{}
	}
	payload := NewTicket{
		Email:        email,
		Subject:      subject,
		Description:  description,
		Status:       StatusOpen,
		Priority:     PriorityLow,
		Source:       SourcePortal,
		Type:         c.ticketType,
		CustomFields: customFields,
		CCEmails:     []string{},
	}

	status, header, body, err := c.do(ctx, "create_ticket", http.MethodPost, "tickets", payload, writeTimeout)
	if err != nil {
		return 0, err
	}
	if err := classify(status, header, body); err != nil {
		c.logger.Warn("ticket create failed",
			zap.Int("status", status),
			zap.String("body", string(body)),
			zap.String("url", c.baseURL+"/tickets"),
		)
		return 0, err
	}

	// The ticket exists once the remote answers 2xx, so an unreadable
	// body is logged and reported as success without an id.
	var created struct {
		ID int64 `json:"id"`
	}
	if err := json.Unmarshal(body, &created); err != nil {
		c.logger.Warn("ticket created but response unreadable",
			zap.Int("status", status),
			zap.Int("body_bytes", len(body)),
			zap.Error(err),
		)
		return 0, nil
	}
	return created.ID, nil
}

// Account is the subset of GET /account this service reads.
type Account struct {
	Name string `json:"account_name"`
	// LegacyName covers portals that report the name under "name".
	LegacyName string `json:"name"`
}

func (a Account) displayName() string {
	if a.Name != "" {
		return a.Name
	}
	if a.LegacyName != "" {
		return a.LegacyName
	}
	return "Unknown"
}

// Account fetches account info. Any non-2xx response is an error.
func (c *Client) Account(ctx context.Context) (*Account, error) {
	status, header, body, err := c.do(ctx, "account", http.MethodGet, "account", nil, readTimeout)
	if err != nil {
		return nil, err
	}
	if err := classify(status, header, body); err != nil {
		return nil, err
	}
	var acct Account
	if err := json.Unmarshal(body, &acct); err != nil {
		return nil, &DecodeError{Op: "account", StatusCode: status, Body: string(body), Err: err}
	}
	return &acct, nil
}

// TicketField is the simplified form of an entry of GET /ticket_fields.
type TicketField struct {
	Name              string `json:"name"`
	Label             string `json:"label"`
	Choices           any    `json:"choices"`
	RequiredForAgents bool   `json:"required_for_agents"`
	Type              string `json:"type"`
}

// TicketFields lists the account's ticket fields.
func (c *Client) TicketFields(ctx context.Context) ([]TicketField, error) {
	status, header, body, err := c.do(ctx, "ticket_fields", http.MethodGet, "ticket_fields", nil, readTimeout)
	if err != nil {
		return nil, err
	}
	if err := classify(status, header, body); err != nil {
		return nil, err
	}
	var fields []TicketField
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, &DecodeError{Op: "ticket_fields", StatusCode: status, Body: truncate(string(body), maxBody), Err: err}
	}
	return fields, nil
}

func (c *Client) do(ctx context.Context, op, method, path string, payload any, timeout time.Duration) (int, http.Header, []byte, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var reqBody io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return 0, nil, nil, fmt.Errorf("encode %s request: %w", op, err)
		}
		reqBody = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+"/"+strings.TrimLeft(path, "/"), reqBody)
	if err != nil {
		return 0, nil, nil, fmt.Errorf("build %s request: %w", op, err)
	}
	req.SetBasicAuth(c.apiKey, authPassword)
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		metrics.ObserveRemote(op, 0, time.Since(start))
		return 0, nil, nil, &TransportError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	var body []byte
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		body, err = io.ReadAll(resp.Body)
	} else {
		body, err = io.ReadAll(io.LimitReader(resp.Body, maxBody))
	}
	metrics.ObserveRemote(op, resp.StatusCode, time.Since(start))
	if err != nil {
		return 0, nil, nil, &TransportError{Op: op, Err: err}
	}
	return resp.StatusCode, resp.Header, body, nil
}

func classify(status int, header http.Header, body []byte) error {
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == http.StatusTooManyRequests:
		return &RateLimitedError{RetryAfter: retryAfter(header)}
	default:
		return &RemoteError{StatusCode: status, Body: string(body)}
	}
}

func retryAfter(header http.Header) time.Duration {
	if s := header.Get("Retry-After"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			return time.Duration(n) * time.Second
		}
	}
	return 0
}

// AuthCheck is the diagnostic returned by VerifyAuth.
type AuthCheck struct {
	OK          bool   `json:"ok"`
	StatusCode  int    `json:"status_code,omitempty"`
	Message     string `json:"message,omitempty"`
	AccountName string `json:"account_name,omitempty"`
	Error       string `json:"error,omitempty"`
	RawResponse string `json:"raw_response,omitempty"`
}

const unauthorizedHint = "API key does not belong to this helpdesk portal. Verify: (1) the API key is from the correct account, " +
	"(2) the configured domain matches the portal, (3) the key belongs to an Agent/Admin role (not a Requester)."

// VerifyAuth checks the API key against GET /account. It never returns an
// error; failures are described in the result.
func (c *Client) VerifyAuth(ctx context.Context) AuthCheck {
	acct, err := c.Account(ctx)
	if err == nil {
		name := acct.displayName()
		return AuthCheck{
			OK:          true,
			StatusCode:  http.StatusOK,
			Message:     "Authentication successful. Connected to: " + name,
			AccountName: name,
		}
	}

	var (
		remote  *RemoteError
		garbled *DecodeError
	)
	switch {
	case errors.As(err, &garbled):
		// Authenticated, but the account body is not what we expected.
		return AuthCheck{OK: true, StatusCode: garbled.StatusCode, RawResponse: truncate(garbled.Body, 500)}
	case errors.As(err, &remote) && remote.StatusCode == http.StatusUnauthorized:
		return AuthCheck{StatusCode: remote.StatusCode, Error: unauthorizedHint, RawResponse: truncate(remote.Body, 500)}
	case errors.As(err, &remote):
		return AuthCheck{StatusCode: remote.StatusCode, RawResponse: truncate(remote.Body, 500)}
	case IsRateLimited(err):
		return AuthCheck{StatusCode: http.StatusTooManyRequests, Error: err.Error()}
	default:
		return AuthCheck{Error: err.Error()}
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
