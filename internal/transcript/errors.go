package transcript

import "fmt"

// Kind classifies a caption fetch failure so the retry policy is a total
// function over a finite set of tags.
type Kind int

const (
	// KindTransient covers network failures and timeouts; eligible for retry.
	KindTransient Kind = iota
	// KindRateLimit means the provider throttled us; eligible for retry.
	KindRateLimit
	// KindPermanent covers failures that will not heal on retry.
	KindPermanent
	// KindNoCaptions means the video has no caption track at all.
	KindNoCaptions
)

func (k Kind) String() string {
	switch k {
	case KindTransient:
		return "transient"
	case KindRateLimit:
		return "rate_limit"
	case KindPermanent:
		return "permanent"
	case KindNoCaptions:
		return "no_captions"
	default:
		return "unknown"
	}
}

// FetchError is the only error type the caption provider returns.
type FetchError struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *FetchError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("transcript fetch (%s): %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("transcript fetch (%s): %s", e.Kind, e.Msg)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// Retryable reports whether the failure kind is worth another attempt.
func (e *FetchError) Retryable() bool {
	return e.Kind == KindTransient || e.Kind == KindRateLimit
}
