// Package bulk drives one spreadsheet through rendering and ticket
// creation, one row at a time.
package bulk

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/yourorg/bulk-tickets/internal/fields"
	"github.com/yourorg/bulk-tickets/internal/helpdesk"
	"github.com/yourorg/bulk-tickets/internal/metrics"
	"github.com/yourorg/bulk-tickets/internal/render"
	"github.com/yourorg/bulk-tickets/internal/sheet"
	"github.com/yourorg/bulk-tickets/internal/throttle"
	"github.com/yourorg/bulk-tickets/internal/types"
)

var (
	// ErrInvalidAPIKey rejects every batch while the helpdesk
	// credentials are missing or fail validation.
	ErrInvalidAPIKey = errors.New("helpdesk API key is missing or invalid")
	// ErrColumnNotFound is matched by *ColumnNotFoundError.
	ErrColumnNotFound = errors.New("email column not found")
)

// ColumnNotFoundError names the missing email column and every column the
// file does have.
type ColumnNotFoundError struct {
	Column    string
	Available []string
}

func (e *ColumnNotFoundError) Error() string {
	return fmt.Sprintf("Email column '%s' not found. Available columns: %s", e.Column, strings.Join(e.Available, ", "))
}

func (e *ColumnNotFoundError) Is(target error) bool { return target == ErrColumnNotFound }

// Submitter creates one remote ticket per call.
type Submitter interface {
	CreateTicket(ctx context.Context, email, subject, description string, customFields map[string]any) (int64, error)
}

// Limiter blocks until the next remote call is allowed.
type Limiter interface {
	Wait(ctx context.Context) error
}

// Config wires a Service. A nil Limiter sends without pacing.
type Config struct {
	Submitter Submitter
	Limiter   Limiter
	Logger    *zap.Logger
	// CredentialsErr is the result of validating the helpdesk
	// configuration at startup; non-nil rejects every batch.
	CredentialsErr     error
	IgnoreColumns      []string
	DefaultDisposition string
}

// Service runs batches. It keeps no per-batch state, so concurrent Run
// calls are independent apart from the shared Limiter.
type Service struct {
	submitter          Submitter
	limiter            Limiter
	logger             *zap.Logger
	credentialsErr     error
	ignore             []string
	defaultDisposition string
}

func New(cfg Config) *Service {
	s := &Service{
		submitter:          cfg.Submitter,
		limiter:            cfg.Limiter,
		logger:             cfg.Logger,
		credentialsErr:     cfg.CredentialsErr,
		ignore:             cfg.IgnoreColumns,
		defaultDisposition: cfg.DefaultDisposition,
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.ignore == nil {
		s.ignore = fields.DefaultIgnore
	}
	if s.limiter == nil {
		s.limiter = throttle.NewGate(0, nil)
	}
	return s
}

// Run checks the batch-wide preconditions, then processes rows in order.
// A precondition failure returns an error and no report. Row failures are
// recorded in the report; a rate-limit response, or ctx ending, stops the
// batch early with Aborted set.
func (s *Service) Run(ctx context.Context, req types.BatchRequest) (*types.BatchReport, error) {
	batchID := uuid.NewString()
	log := s.logger.With(zap.String("batch_id", batchID), zap.String("file", req.Filename))

	subject, body, tbl, emailColumn, err := s.prepare(req)
	if err != nil {
		metrics.Batches.WithLabelValues("rejected").Inc()
		log.Info("batch rejected", zap.Error(err))
		return nil, err
	}

	disposition := req.Disposition
	if strings.TrimSpace(disposition) == "" {
		disposition = s.defaultDisposition
	}
	resolver := fields.NewResolver(fields.Options{
		EmailColumn:     emailColumn,
		Ignore:          s.ignore,
		ExtraFieldsJSON: req.ExtraFieldsJSON,
		Disposition:     disposition,
	}, log)

	report := &types.BatchReport{
		BatchID: batchID,
		Total:   len(tbl.Rows),
		Results: make([]types.RowResult, 0, len(tbl.Rows)),
	}
	log.Info("batch started",
		zap.Int("rows", report.Total),
		zap.String("email_column", emailColumn),
		zap.Strings("subject_placeholders", subject.Keys()),
		zap.Strings("body_placeholders", body.Keys()),
	)

	for _, row := range tbl.Rows {
		res, send := s.prepareRow(row, resolver, subject, body)
		if send != nil {
			if err := s.limiter.Wait(ctx); err != nil {
				log.Warn("batch interrupted", zap.Int("row", row.Index), zap.Error(err))
				report.Aborted = true
				break
			}
			res = s.submit(ctx, res, send)
		}
		report.Results = append(report.Results, res)
		metrics.RowResults.WithLabelValues(string(res.Status)).Inc()

		if res.RateLimited {
			log.Warn("rate limited, stopping batch", zap.Int("row", row.Index), zap.Int("remaining", report.Total-len(report.Results)))
			report.Aborted = true
			break
		}
	}

	outcome := "completed"
	if report.Aborted {
		outcome = "aborted"
	}
	metrics.Batches.WithLabelValues(outcome).Inc()
	sent, skipped, failed := report.Counts()
	log.Info("batch finished",
		zap.Int("total", report.Total),
		zap.Int("sent", sent),
		zap.Int("skipped", skipped),
		zap.Int("errors", failed),
		zap.Bool("aborted", report.Aborted),
	)
	return report, nil
}

func (s *Service) prepare(req types.BatchRequest) (subject, body *render.Template, tbl *sheet.Table, emailColumn string, err error) {
	if s.credentialsErr != nil {
		return nil, nil, nil, "", fmt.Errorf("%w: %v", ErrInvalidAPIKey, s.credentialsErr)
	}
	if _, err := sheet.FormatFor(req.Filename); err != nil {
		return nil, nil, nil, "", err
	}
	tbl, err = sheet.Load(req.File, req.Filename)
	if err != nil {
		return nil, nil, nil, "", err
	}

	emailColumn = req.EmailColumn
	if strings.TrimSpace(emailColumn) == "" {
		emailColumn = fields.DefaultEmailColumn
	}
	if !tbl.HasColumn(emailColumn) {
		return nil, nil, nil, "", &ColumnNotFoundError{Column: emailColumn, Available: tbl.Header}
	}

	if subject, err = render.Parse(req.SubjectTemplate); err != nil {
		return nil, nil, nil, "", fmt.Errorf("subject template: %w", err)
	}
	if body, err = render.Parse(req.BodyTemplate); err != nil {
		return nil, nil, nil, "", fmt.Errorf("body template: %w", err)
	}
	return subject, body, tbl, emailColumn, nil
}

// outgoing is a rendered ticket waiting for its turn at the limiter.
type outgoing struct {
	email, subject, body string
	customFields         map[string]any
}

// prepareRow resolves and renders a row. A nil outgoing means the result
// is final and nothing is sent.
func (s *Service) prepareRow(row sheet.Row, resolver *fields.Resolver, subject, body *render.Template) (types.RowResult, *outgoing) {
	res := types.RowResult{Row: row.Index}

	email, err := resolver.Email(row.Values)
	if err != nil {
		res.Status = types.StatusSkipped
		res.Reason = err.Error()
		return res, nil
	}
	res.Email = email

	custom := resolver.CustomFields(row.Values)

	subj, err := subject.Execute(row.Values)
	if err != nil {
		res.Status = types.StatusError
		res.Error = err.Error()
		return res, nil
	}
	text, err := body.Execute(row.Values)
	if err != nil {
		res.Status = types.StatusError
		res.Error = err.Error()
		return res, nil
	}
	return res, &outgoing{email: email, subject: subj, body: text, customFields: custom}
}

func (s *Service) submit(ctx context.Context, res types.RowResult, o *outgoing) types.RowResult {
	id, err := s.submitter.CreateTicket(ctx, o.email, o.subject, o.body, o.customFields)
	if err != nil {
		res.Status = types.StatusError
		res.Error = err.Error()
		res.RateLimited = helpdesk.IsRateLimited(err)
		return res
	}
	res.Status = types.StatusSent
	if id != 0 {
		res.TicketID = &id
	}
	return res
}
