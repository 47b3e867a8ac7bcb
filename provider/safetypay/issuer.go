package safetypay

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mstgnz/paysettle/infra/logger"
	"github.com/mstgnz/paysettle/provider"
	"github.com/shopspring/decimal"
)

// ErrTerminalIssuance matches every TerminalIssuanceError
var ErrTerminalIssuance = errors.New("safetypay: redirect token issuance failed")

// TerminalIssuanceError is returned once every attempt to obtain a token failed
type TerminalIssuanceError struct {
	CorrelationID string
	Attempts      int
	Err           error
}

func (e *TerminalIssuanceError) Error() string {
	return fmt.Sprintf("safetypay: no redirect token for %s after %d attempts: %v", e.CorrelationID, e.Attempts, e.Err)
}

func (e *TerminalIssuanceError) Unwrap() error { return e.Err }

func (e *TerminalIssuanceError) Is(target error) bool { return target == ErrTerminalIssuance }

// IssueRequest identifies the order a redirect token is issued for
type IssueRequest struct {
	CustomerID    int64
	CorrelationID string
	Amount        decimal.Decimal
}

// IssuedToken is a redirect token the shopper can be sent to
type IssuedToken struct {
	ClientRedirectURL      string
	ResponseDateTime       string
	OperationCodeConfirmed bool
	Attempts               int
}

// Issuer obtains redirect tokens with a bounded number of attempts
type Issuer struct {
	gateway Gateway
	store   provider.NotificationStore
	cfg     Config
	sleep   func(ctx context.Context, d time.Duration) error
}

// NewIssuer creates a token issuer
func NewIssuer(gateway Gateway, store provider.NotificationStore, cfg Config) *Issuer {
	return &Issuer{
		gateway: gateway,
		store:   store,
		cfg:     cfg.withDefaults(),
		sleep:   sleepContext,
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// backoffDelay returns the wait before the attempt following attempt n (1-based)
func backoffDelay(n int, base, max time.Duration) time.Duration {
	if n < 1 {
		n = 1
	}
	if n > 30 {
		return max
	}
	d := base * time.Duration(1<<(n-1))
	if d > max || d <= 0 {
		return max
	}
	return d
}

func (i *Issuer) callTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, i.cfg.RequestTimeout)
}

// RequestToken asks the gateway for a redirect token, retrying up to MaxAttempts times,
// then probes the redirect url. It does not touch the store.
func (i *Issuer) RequestToken(ctx context.Context, req IssueRequest) (*IssuedToken, error) {
	logCtx := logger.LogContext{Provider: SystemName, CorrelationID: req.CorrelationID}

	var lastErr error
	for attempt := 1; attempt <= i.cfg.MaxAttempts; attempt++ {
		if attempt > 1 {
			if err := i.sleep(ctx, backoffDelay(attempt-1, i.cfg.BackoffBase, i.cfg.BackoffMax)); err != nil {
				return nil, &TerminalIssuanceError{CorrelationID: req.CorrelationID, Attempts: attempt - 1, Err: err}
			}
		}

		callCtx, cancel := i.callTimeout(ctx)
		raw, err := i.gateway.RequestExpressToken(callCtx, req.CustomerID, req.CorrelationID, req.Amount)
		cancel()
		if err != nil {
			lastErr = err
			logger.Warn(fmt.Sprintf("Express token attempt %d/%d failed", attempt, i.cfg.MaxAttempts), withError(logCtx, err))
			continue
		}

		token, err := DecodeExpressTokenResponse(raw, i.cfg.SignatureKey)
		if err != nil {
			lastErr = err
			logger.Error("Undecodable express token response", err, withField(logCtx, "response", raw))
			continue
		}

		issued := &IssuedToken{
			ClientRedirectURL: token.ClientRedirectURL,
			ResponseDateTime:  token.ResponseDateTime,
			Attempts:          attempt,
		}
		issued.OperationCodeConfirmed = i.Confirm(ctx, token.ClientRedirectURL)
		return issued, nil
	}

	if lastErr == nil {
		lastErr = errors.New("no attempt made")
	}
	return nil, &TerminalIssuanceError{CorrelationID: req.CorrelationID, Attempts: i.cfg.MaxAttempts, Err: lastErr}
}

// Confirm loads the redirect page and reports whether the gateway acknowledged the redirect
func (i *Issuer) Confirm(ctx context.Context, redirectURL string) bool {
	callCtx, cancel := i.callTimeout(ctx)
	defer cancel()

	raw, err := i.gateway.ConfirmRedirect(callCtx, redirectURL)
	if err != nil {
		logger.Warn("Redirect confirmation failed", withError(logger.LogContext{Provider: SystemName}, err))
		return false
	}
	return len(urlDecode(raw)) > fakeResultLength
}

// Issue makes sure a pending record exists for the correlation id, obtains a token and
// stores the redirect url and confirmation flag on the record
func (i *Issuer) Issue(ctx context.Context, req IssueRequest) (*IssuedToken, error) {
	if _, ok := TryParseCorrelationID(req.CorrelationID); !ok {
		return nil, fmt.Errorf("safetypay: invalid correlation id %q", req.CorrelationID)
	}

	record, err := i.store.GetByCorrelationID(ctx, req.CorrelationID)
	if err != nil {
		return nil, fmt.Errorf("safetypay: load pending notification: %w", err)
	}
	if record == nil {
		record = &provider.PendingNotification{
			APIKey:        i.cfg.APIKey,
			CorrelationID: req.CorrelationID,
		}
		if err := i.store.Insert(ctx, record); err != nil {
			return nil, fmt.Errorf("safetypay: insert pending notification: %w", err)
		}
	}

	token, err := i.RequestToken(ctx, req)
	if err != nil {
		return nil, err
	}

	record.ClientRedirectURL = token.ClientRedirectURL
	record.OperationCodeConfirmed = token.OperationCodeConfirmed
	if err := i.store.Update(ctx, record); err != nil {
		return nil, fmt.Errorf("safetypay: update pending notification: %w", err)
	}

	return token, nil
}

// RequestOperationCode asks the gateway which operation code the shopper pays with
func (i *Issuer) RequestOperationCode(ctx context.Context, correlationID string) (string, error) {
	callCtx, cancel := i.callTimeout(ctx)
	defer cancel()

	raw, err := i.gateway.RequestOperationActivity(callCtx, correlationID)
	if err != nil {
		return "", err
	}

	activity, err := DecodeOperationActivity(raw, i.cfg.SignatureKey)
	if err != nil {
		return "", err
	}

	code, ok := activity.ReferenceFor(correlationID)
	if !ok {
		return "", fmt.Errorf("safetypay: no operation listed for %s", correlationID)
	}
	return code, nil
}

func withError(ctx logger.LogContext, err error) logger.LogContext {
	return withField(ctx, "error", err.Error())
}

func withField(ctx logger.LogContext, key string, value any) logger.LogContext {
	fields := make(map[string]any, len(ctx.Fields)+1)
	for k, v := range ctx.Fields {
		fields[k] = v
	}
	fields[key] = value
	ctx.Fields = fields
	return ctx
}
