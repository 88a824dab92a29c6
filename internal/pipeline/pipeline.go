package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/ragimov700/yookassa-to-npd/internal/ingest"
	"github.com/ragimov700/yookassa-to-npd/internal/ledger"
	"github.com/ragimov700/yookassa-to-npd/internal/npd"
)

// DefaultServiceName is used when the export's description column is empty.
const DefaultServiceName = "Пополнение баланса в сервисе"

const maxAttempts = 3

// ErrAuthorization marks a 401/403 from the API. It is scoped to the record
// that hit it: the run moves on and later records are still attempted with
// the same token. Kept that way on purpose; do not widen without deciding
// what a half-processed file should look like afterwards.
var ErrAuthorization = errors.New("authorization rejected (401/403)")

// Outcome classifies what happened to one record.
type Outcome string

const (
	OutcomeAlreadyProcessed Outcome = "already_processed"
	OutcomeNotEligible      Outcome = "not_eligible"
	OutcomeSucceeded        Outcome = "succeeded"
	OutcomeTerminal         Outcome = "terminal_failure"
	OutcomeExhausted        Outcome = "retries_exhausted"
	OutcomeError            Outcome = "record_error"
)

// Result is the typed per-record outcome.
type Result struct {
	Index      int
	PaymentID  string
	Outcome    Outcome
	Attempts   int
	LastStatus int
	Err        error
}

// Summary aggregates one run.
type Summary struct {
	RunID     string
	Total     int
	Submitted int
	Results   []Result
}

// Submitter is the slice of the registration client the pipeline needs.
type Submitter interface {
	SubmitIncome(ctx context.Context, p npd.Payload) (npd.Response, error)
}

// Options controls how payloads are named.
type Options struct {
	// ServiceName is the fixed service line name.
	ServiceName string
	// ServiceNameFromCSV uses each record's description instead, falling
	// back to DefaultServiceName when the description is blank.
	ServiceNameFromCSV bool
	PaymentType        string
}

// Pipeline submits records strictly sequentially, in file order. The target
// API belongs to a single account and is rate-limit sensitive, so there is
// no concurrency and no locking around the ledger.
type Pipeline struct {
	Client Submitter
	Ledger ledger.Store
	Audit  ledger.AuditAppender
	Log    *log.Logger

	// Sleep and Now default to the real clock; tests inject fakes.
	Sleep func(time.Duration)
	Now   func() time.Time

	// Progress is called exactly once per record with (1-based index, total).
	Progress func(done, total int)
}

// Run processes every record and returns the aggregated summary. Only an
// unreadable file aborts a run (upstream, in the reader); here every failure
// is contained to its record.
func (p *Pipeline) Run(ctx context.Context, records []ingest.Record, opts Options) Summary {
	logger := p.Log
	if logger == nil {
		logger = log.Default()
	}
	sum := Summary{RunID: uuid.NewString(), Total: len(records)}
	logger.Info("run started", "run_id", sum.RunID, "records", sum.Total)

	for i, rec := range records {
		res := p.process(ctx, logger, i+1, rec, opts)
		sum.Results = append(sum.Results, res)
		if res.Outcome == OutcomeSucceeded {
			sum.Submitted++
		}
		if p.Progress != nil {
			p.Progress(i+1, sum.Total)
		}
	}

	logger.Info("run finished", "run_id", sum.RunID, "submitted", sum.Submitted)
	return sum
}

func (p *Pipeline) process(ctx context.Context, logger *log.Logger, idx int, rec ingest.Record, opts Options) Result {
	res := Result{Index: idx, PaymentID: rec.PaymentID}

	if p.Ledger.Contains(rec.PaymentID) {
		logger.Info("skip (already processed)", "payment_id", rec.PaymentID)
		res.Outcome = OutcomeAlreadyProcessed
		return res
	}
	if !rec.IsPaid() {
		logger.Info("skip (not paid)", "payment_id", rec.PaymentID, "status", rec.Status)
		res.Outcome = OutcomeNotEligible
		return res
	}

	amount, err := rec.Amount()
	if err != nil {
		logger.Error("record error", "payment_id", rec.PaymentID, "err", err)
		res.Outcome, res.Err = OutcomeError, err
		return res
	}
	opTime, err := rec.OperationTime()
	if err != nil {
		logger.Error("record error", "payment_id", rec.PaymentID, "err", err)
		res.Outcome, res.Err = OutcomeError, err
		return res
	}

	name := opts.ServiceName
	if opts.ServiceNameFromCSV {
		name = rec.Description
		if name == "" {
			name = DefaultServiceName
		}
	}

	// Built once; retries reuse it unmodified, requestTime included.
	payload := npd.BuildPayload(opTime, name, amount, opts.PaymentType, p.now()())

	res = p.submitWithRetry(ctx, logger, res, payload)

	switch res.Outcome {
	case OutcomeSucceeded:
		if err := p.Ledger.Append(rec.PaymentID); err != nil {
			// The income is registered but the next run will retry it.
			logger.Error("registered but ledger append failed", "payment_id", rec.PaymentID, "err", err)
			res.Outcome = OutcomeError
			res.Err = fmt.Errorf("ledger append: %w", err)
			return res
		}
		logger.Info("registered", "payment_id", rec.PaymentID, "amount", amount.String(), "service", name)
	case OutcomeTerminal:
		logger.Error("rejected", "payment_id", rec.PaymentID, "status", res.LastStatus)
	case OutcomeExhausted:
		logger.Error("gave up after retries", "payment_id", rec.PaymentID, "attempts", res.Attempts)
	case OutcomeError:
		logger.Warn("record failed", "payment_id", rec.PaymentID, "err", res.Err)
	}
	return res
}

// submitWithRetry runs the per-record attempt loop: up to 3 attempts, linear
// backoff of 2×attempt seconds before a retry, never after the final one.
func (p *Pipeline) submitWithRetry(ctx context.Context, logger *log.Logger, res Result, payload npd.Payload) Result {
	res.Outcome = OutcomeExhausted
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		res.Attempts = attempt

		resp, err := p.Client.SubmitIncome(ctx, payload)
		if err != nil {
			// No HTTP response, so nothing to audit; treat as transient.
			logger.Warn("transport failure", "payment_id", res.PaymentID, "attempt", attempt, "err", err)
			res.Err = err
			if attempt < maxAttempts {
				p.sleep()(backoff(attempt))
			}
			continue
		}

		ok := resp.StatusCode == 200 || resp.StatusCode == 201
		if err := p.Audit.Append(ledger.AuditEvent{
			Index:     res.Index,
			PaymentID: res.PaymentID,
			OK:        ok,
			Status:    resp.StatusCode,
			Attempt:   attempt,
			Response:  resp.Body,
		}); err != nil {
			logger.Warn("audit append failed", "payment_id", res.PaymentID, "err", err)
		}
		res.LastStatus = resp.StatusCode
		res.Err = nil

		switch {
		case ok:
			res.Outcome = OutcomeSucceeded
			return res
		case resp.StatusCode == 401 || resp.StatusCode == 403:
			res.Outcome, res.Err = OutcomeError, ErrAuthorization
			return res
		case isTransient(resp.StatusCode):
			logger.Warn("transient status", "payment_id", res.PaymentID, "status", resp.StatusCode, "attempt", attempt)
			if attempt < maxAttempts {
				p.sleep()(backoff(attempt))
			}
		default:
			res.Outcome = OutcomeTerminal
			return res
		}
	}
	return res
}

func isTransient(status int) bool {
	switch status {
	case 429, 500, 502, 503, 504:
		return true
	}
	return false
}

func backoff(attempt int) time.Duration {
	return time.Duration(2*attempt) * time.Second
}

func (p *Pipeline) sleep() func(time.Duration) {
	if p.Sleep != nil {
		return p.Sleep
	}
	return time.Sleep
}

func (p *Pipeline) now() func() time.Time {
	if p.Now != nil {
		return p.Now
	}
	return time.Now
}
