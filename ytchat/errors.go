package ytchat

import (
	"errors"
	"strings"
)

// Sentinel errors for the non-retryable poll failure categories. Everything
// else is treated as transient and retried with backoff.
var (
	// ErrNoLiveContent means the channel has no live video right now.
	ErrNoLiveContent = errors.New("no live content found")
	// ErrParserIncompatible means the upstream payload schema changed in a
	// way the resolver cannot interpret. Retrying will not help; the
	// resolver needs an update.
	ErrParserIncompatible = errors.New("resolver cannot parse upstream payload")
	// ErrMissingCursor means the continuation cursor was lost or never
	// issued. Fatal for the polling session.
	ErrMissingCursor = errors.New("continuation cursor missing")
)

// ErrorClass buckets poll failures for retry decisions and metrics labels.
type ErrorClass int

const (
	// ClassRetryable covers timeouts, non-2xx responses and malformed JSON.
	ClassRetryable ErrorClass = iota
	// ClassNoLive means there is nothing to poll.
	ClassNoLive
	// ClassIncompatible means the upstream contract changed.
	ClassIncompatible
	// ClassMissingCursor means the session lost its continuation state.
	ClassMissingCursor
)

func (ec ErrorClass) String() string {
	switch ec {
	case ClassRetryable:
		return "transient"
	case ClassNoLive:
		return "no_live"
	case ClassIncompatible:
		return "incompatible"
	case ClassMissingCursor:
		return "missing_cursor"
	default:
		return "unknown"
	}
}

// Retryable reports whether polling should continue after this class.
func (ec ErrorClass) Retryable() bool {
	return ec == ClassRetryable
}

// Classify maps an error to its class. Sentinels win; in-band resolver error
// strings that were not mapped to a sentinel are pattern-matched; anything
// unrecognized is treated as transient so a flaky proxy does not permanently
// kill the session.
func Classify(err error) ErrorClass {
	if err == nil {
		return ClassRetryable
	}
	switch {
	case errors.Is(err, ErrNoLiveContent):
		return ClassNoLive
	case errors.Is(err, ErrParserIncompatible):
		return ClassIncompatible
	case errors.Is(err, ErrMissingCursor):
		return ClassMissingCursor
	}

	lower := strings.ToLower(err.Error())

	if strings.Contains(lower, "no live") ||
		strings.Contains(lower, "not live") ||
		strings.Contains(lower, "not currently live") ||
		strings.Contains(lower, "offline") {
		return ClassNoLive
	}
	if strings.Contains(lower, "parse") ||
		strings.Contains(lower, "parser") ||
		strings.Contains(lower, "unsupported") ||
		strings.Contains(lower, "schema") ||
		strings.Contains(lower, "unable to extract") {
		return ClassIncompatible
	}
	if strings.Contains(lower, "continuation") && (strings.Contains(lower, "missing") || strings.Contains(lower, "expired") || strings.Contains(lower, "invalid")) {
		return ClassMissingCursor
	}
	return ClassRetryable
}
