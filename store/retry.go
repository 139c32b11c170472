package store

import (
	"context"
	"strings"
	"time"

	"github.com/jackc/pgconn"
	"go.uber.org/zap"
)

// isConnectionError reports whether err is a transient connectivity failure,
// adapted verbatim in spirit from internal/data/retry.go's isConnectionError.
func isConnectionError(err error) bool {
	if err == nil {
		return false
	}
	if pgErr, ok := err.(*pgconn.PgError); ok {
		sqlState := pgErr.Code
		return strings.HasPrefix(sqlState, "08") ||
			sqlState == "57P01" ||
			sqlState == "57P02" ||
			sqlState == "57P03"
	}
	errStr := strings.ToLower(err.Error())
	for _, keyword := range []string{
		"connection refused", "connection reset", "connection closed",
		"unexpected eof", "broken pipe", "no such host",
		"network is unreachable", "timeout", "connection lost",
		"server closed the connection",
	} {
		if strings.Contains(errStr, keyword) {
			return true
		}
	}
	return false
}

// ExecWithRetry executes a SQL statement with exponential backoff, trying
// transient connection errors up to maxConnectionAttempts times and any other
// error (e.g. undefined column) up to maxAttempts times.
func (c *Conn) ExecWithRetry(ctx context.Context, query string, args ...interface{}) (pgconn.CommandTag, error) {
	const maxAttempts = 3
	const maxConnectionAttempts = 6
	backoff := 250 * time.Millisecond

	var tag pgconn.CommandTag
	var err error

	for attempt := 1; attempt <= maxConnectionAttempts; attempt++ {
		tag, err = c.DB.Exec(ctx, query, args...)
		if err == nil {
			return tag, nil
		}
		if ctx.Err() != nil {
			return tag, ctx.Err()
		}

		isConnErr := isConnectionError(err)
		limit := maxAttempts
		if isConnErr {
			limit = maxConnectionAttempts
		}
		if attempt >= limit {
			break
		}

		c.Logger.Warn("store exec failed, retrying", zap.Int("attempt", attempt), zap.Int("limit", limit), zap.Error(err))
		time.Sleep(backoff)
		backoff *= 2
		if backoff > 10*time.Second {
			backoff = 10 * time.Second
		}
	}
	return tag, err
}
