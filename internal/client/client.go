// Package client talks to a remote authority over its JSON API. It satisfies
// reconcile.Collaborator, so an engine can reconcile against a server as
// easily as against an in-process store.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/vpaa/eventcore/internal/api"
	"github.com/vpaa/eventcore/internal/model"
)

// DefaultTimeout bounds a single request when the caller's context has no
// deadline of its own.
const DefaultTimeout = 15 * time.Second

// Client is a remote authority.
type Client struct {
	base   string
	http   *http.Client
	logger *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = hc
	}
}

// WithLogger sets the client's logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		c.logger = l
	}
}

// New returns a client for the authority rooted at baseURL, e.g.
// "http://localhost:8080". The /api prefix is added by the client.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		base:   strings.TrimRight(baseURL, "/") + "/api",
		http:   &http.Client{Timeout: DefaultTimeout},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// do sends one request and decodes a 2xx body into out. It returns the
// response status so callers can tell 200 from 201.
func (c *Client) do(ctx context.Context, method, path string, body, out any) (int, error) {
	var r io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return 0, fmt.Errorf("encode request: %w", err)
		}
		r = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, r)
	if err != nil {
		return 0, model.WrapError(model.ErrCodeInvalidRequest, "build request", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Debug("authority unreachable", "method", method, "path", path, "error", err)
		return 0, model.WrapError(model.ErrCodeNetworkFailure, method+" "+path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return resp.StatusCode, decodeError(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return resp.StatusCode, nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return resp.StatusCode, model.WrapError(model.ErrCodeNetworkFailure, "decode response", err)
	}
	return resp.StatusCode, nil
}

// decodeError turns an error response into a model error. 5xx answers and
// bodies that cannot be read count as network failures.
func decodeError(resp *http.Response) error {
	var body api.ErrorBody
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil || body.Code == "" {
		return model.NewError(model.ErrCodeNetworkFailure, fmt.Sprintf("authority answered %d", resp.StatusCode))
	}
	if resp.StatusCode >= http.StatusInternalServerError {
		return model.NewError(model.ErrCodeNetworkFailure, body.Error)
	}
	code := model.ErrorCode(body.Code)
	if !knownCode(code) {
		code = model.ErrCodeInvalidRequest
	}
	return model.NewError(code, body.Error)
}

func knownCode(code model.ErrorCode) bool {
	switch code {
	case model.ErrCodeMalformedToken, model.ErrCodeParticipantNotFound, model.ErrCodeNotFound,
		model.ErrCodeInvalidTransition, model.ErrCodeInvalidRequest, model.ErrCodeNetworkFailure:
		return true
	}
	return false
}

func esc(s string) string {
	return url.PathEscape(s)
}

// ListEvents fetches every event with its participants.
func (c *Client) ListEvents(ctx context.Context) ([]model.Event, error) {
	var events []model.Event
	if _, err := c.do(ctx, http.MethodGet, "/events", nil, &events); err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	return events, nil
}

// CreateEvent creates an event, or returns the existing one with the same id.
func (c *Client) CreateEvent(ctx context.Context, e model.Event) (model.Event, error) {
	var out model.Event
	if _, err := c.do(ctx, http.MethodPost, "/events", api.EventBodyFrom(e), &out); err != nil {
		return model.Event{}, fmt.Errorf("create event: %w", err)
	}
	return out, nil
}

// GetEvent fetches one event.
func (c *Client) GetEvent(ctx context.Context, id string) (model.Event, error) {
	var out model.Event
	if _, err := c.do(ctx, http.MethodGet, "/events/"+esc(id), nil, &out); err != nil {
		return model.Event{}, fmt.Errorf("get event: %w", err)
	}
	return out, nil
}

// DeleteEvent removes an event and everything under it.
func (c *Client) DeleteEvent(ctx context.Context, id string) error {
	if _, err := c.do(ctx, http.MethodDelete, "/events/"+esc(id), nil, nil); err != nil {
		return fmt.Errorf("delete event: %w", err)
	}
	return nil
}

// Join registers an identity. A 200 answer means the identity was already
// registered and carries the existing record.
func (c *Client) Join(ctx context.Context, eventID string, req model.JoinRequest) (model.JoinResult, error) {
	var p model.Participant
	status, err := c.do(ctx, http.MethodPost, "/events/"+esc(eventID)+"/join", api.JoinBodyFrom(req), &p)
	if err != nil {
		return model.JoinResult{}, fmt.Errorf("join: %w", err)
	}
	return model.JoinResult{Participant: p, Duplicate: status == http.StatusOK}, nil
}

// ImportRoster joins many identities at once.
func (c *Client) ImportRoster(ctx context.Context, eventID string, rows []model.JoinRequest) (model.RosterResult, error) {
	body := api.RosterBody{Rows: make([]api.JoinBody, len(rows))}
	for i, r := range rows {
		body.Rows[i] = api.JoinBodyFrom(r)
	}
	var out model.RosterResult
	if _, err := c.do(ctx, http.MethodPost, "/events/"+esc(eventID)+"/roster", body, &out); err != nil {
		return model.RosterResult{}, fmt.Errorf("import roster: %w", err)
	}
	return out, nil
}

// GetParticipant fetches one participant.
func (c *Client) GetParticipant(ctx context.Context, id string) (model.Participant, error) {
	var out model.Participant
	if _, err := c.do(ctx, http.MethodGet, "/participants/"+esc(id), nil, &out); err != nil {
		return model.Participant{}, fmt.Errorf("get participant: %w", err)
	}
	return out, nil
}

// MarkAttendance checks a participant in by id.
func (c *Client) MarkAttendance(ctx context.Context, participantID string) (model.CheckInResult, error) {
	var out model.CheckInResult
	if _, err := c.do(ctx, http.MethodPost, "/participants/"+esc(participantID)+"/mark_attendance", nil, &out); err != nil {
		return model.CheckInResult{}, fmt.Errorf("mark attendance: %w", err)
	}
	return out, nil
}

// ScanQR checks a participant in from a scanned token.
func (c *Client) ScanQR(ctx context.Context, token, eventID string) (model.CheckInResult, error) {
	var out model.CheckInResult
	body := api.ScanBody{QRData: token, EventID: eventID}
	if _, err := c.do(ctx, http.MethodPost, "/scan/qr", body, &out); err != nil {
		return model.CheckInResult{}, fmt.Errorf("scan: %w", err)
	}
	return out, nil
}

// SubmitEvaluation records an evaluation payload.
func (c *Client) SubmitEvaluation(ctx context.Context, participantID string, data model.EvaluationData) (model.Participant, error) {
	var out model.Participant
	body := api.EvaluationBody{EvaluationData: data}
	if _, err := c.do(ctx, http.MethodPost, "/participants/"+esc(participantID)+"/submit_evaluation", body, &out); err != nil {
		return model.Participant{}, fmt.Errorf("submit evaluation: %w", err)
	}
	return out, nil
}

// IssueCertificate asks the authority to mint or return a certificate.
func (c *Client) IssueCertificate(ctx context.Context, participantID string) (model.IssueResult, error) {
	var out model.IssueResult
	if _, err := c.do(ctx, http.MethodPost, "/participants/"+esc(participantID)+"/issue_certificate", nil, &out); err != nil {
		return model.IssueResult{}, fmt.Errorf("issue certificate: %w", err)
	}
	return out, nil
}

// CheckOut records a participant leaving.
func (c *Client) CheckOut(ctx context.Context, participantID string) (model.Participant, error) {
	var out model.Participant
	if _, err := c.do(ctx, http.MethodPost, "/participants/"+esc(participantID)+"/check_out", nil, &out); err != nil {
		return model.Participant{}, fmt.Errorf("check out: %w", err)
	}
	return out, nil
}

// CreateAccount registers an account and its check-in token.
func (c *Client) CreateAccount(ctx context.Context, acct model.Account) (model.Account, error) {
	var out model.Account
	body := api.AccountBody{ID: acct.ID, Name: acct.Name, Email: acct.Email}
	if _, err := c.do(ctx, http.MethodPost, "/accounts", body, &out); err != nil {
		return model.Account{}, fmt.Errorf("create account: %w", err)
	}
	return out, nil
}

// GetAccount fetches one account.
func (c *Client) GetAccount(ctx context.Context, id string) (model.Account, error) {
	var out model.Account
	if _, err := c.do(ctx, http.MethodGet, "/accounts/"+esc(id), nil, &out); err != nil {
		return model.Account{}, fmt.Errorf("get account: %w", err)
	}
	return out, nil
}

// VerifyCertificate looks a certificate up by verification code.
func (c *Client) VerifyCertificate(ctx context.Context, code string) (model.Verification, error) {
	var out model.Verification
	if _, err := c.do(ctx, http.MethodGet, "/certificates/verify/"+esc(code), nil, &out); err != nil {
		return model.Verification{}, fmt.Errorf("verify certificate: %w", err)
	}
	return out, nil
}

// MarkCertificateEmailed flags a certificate as delivered.
func (c *Client) MarkCertificateEmailed(ctx context.Context, number string) (model.Certificate, error) {
	var out model.Certificate
	if _, err := c.do(ctx, http.MethodPost, "/certificates/"+esc(number)+"/mark_emailed", nil, &out); err != nil {
		return model.Certificate{}, fmt.Errorf("mark emailed: %w", err)
	}
	return out, nil
}

// EventReport fetches attendance figures for an event.
func (c *Client) EventReport(ctx context.Context, eventID string) (model.EventReport, error) {
	var out model.EventReport
	if _, err := c.do(ctx, http.MethodGet, "/reports/"+esc(eventID), nil, &out); err != nil {
		return model.EventReport{}, fmt.Errorf("event report: %w", err)
	}
	return out, nil
}

var _ api.Authority = (*Client)(nil)
