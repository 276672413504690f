package store

import (
	"context"
	"errors"
	"net"
	"os"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	sqlite3 "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

// isTransient classifies an error as worth retrying. Timeouts, connection
// problems and lock contention qualify; anything else (malformed query,
// constraint violation, missing function) propagates immediately.
func isTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code == sqlite3.ErrBusy || sqliteErr.Code == sqlite3.ErrLocked
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, hint := range []string{"timeout", "timed out", "connection", "busy", "temporarily unavailable"} {
		if strings.Contains(msg, hint) {
			return true
		}
	}
	return false
}

// isMissingFunction reports whether err means the native distance primitive
// is absent from the SQLite build. The substring check is the last resort the
// driver leaves us: SQLite reports unknown functions as a generic prepare
// error, so there is no dedicated code to match on.
func isMissingFunction(err error) bool {
	if err == nil {
		return false
	}
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) && sqliteErr.Code != sqlite3.ErrError {
		return false
	}
	return strings.Contains(strings.ToLower(err.Error()), "no such function")
}

// withRetry runs fn under the store's operation timeout, retrying transient
// failures with exponential backoff until the retry budget is spent.
func withRetry(ctx context.Context, log *zap.Logger, cfg Config, op string, fn func(ctx context.Context) error) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 50 * time.Millisecond
	bo.MaxInterval = 2 * time.Second
	bo.MaxElapsedTime = cfg.RetryBudget

	attempt := 0
	return backoff.Retry(func() error {
		attempt++
		opCtx := ctx
		var cancel context.CancelFunc
		if cfg.OpTimeout > 0 {
			opCtx, cancel = context.WithTimeout(ctx, cfg.OpTimeout)
			defer cancel()
		}
		err := fn(opCtx)
		if err == nil {
			return nil
		}
		if !isTransient(err) {
			return backoff.Permanent(err)
		}
		log.Warn("transient storage error, retrying",
			zap.String("op", op),
			zap.Int("attempt", attempt),
			zap.Error(err))
		return err
	}, backoff.WithContext(bo, ctx))
}
