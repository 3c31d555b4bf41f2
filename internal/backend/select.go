package backend

import (
	"github.com/itoreflect/reflector/internal/logging"
)

// Constructor builds a Backend for the given Config. Each backend
// package exposes one of these via its New function; Select never
// imports the concrete packages itself to keep this file free of
// platform build tags — callers pass their own constructor table.
type Constructor func(Config) Backend

// Candidate pairs a backend's name with its constructor, in the
// precedence order Select should try.
type Candidate struct {
	Name        Name
	Constructor Constructor
}

// Select tries each candidate's Init in order and returns the first one
// that succeeds, along with the name it picked. Backends that fail to
// initialize are cleaned up and logged before moving to the next
// candidate. It returns an error only if every candidate fails.
func Select(cfg Config, candidates []Candidate, logger *logging.Logger) (Backend, Name, error) {
	var lastErr error
	for _, c := range candidates {
		b := c.Constructor(cfg)
		if err := b.Init(); err != nil {
			if logger != nil {
				logger.Warn("backend unavailable, falling back", "backend", string(c.Name), "err", err.Error())
			}
			_ = b.Cleanup()
			lastErr = err
			continue
		}
		if logger != nil {
			logger.Info("backend selected", "backend", string(c.Name))
		}
		return b, c.Name, nil
	}
	return nil, "", NewSelectError(lastErr)
}

// NewSelectError wraps the last candidate's error as the reason every
// backend failed to initialize.
func NewSelectError(lastErr error) error {
	if lastErr == nil {
		return errNoCandidates
	}
	return &selectError{lastErr}
}

var errNoCandidates = &selectError{nil}

type selectError struct{ inner error }

func (e *selectError) Error() string {
	if e.inner == nil {
		return "backend: no candidates supplied"
	}
	return "backend: all backends failed to initialize: " + e.inner.Error()
}

func (e *selectError) Unwrap() error { return e.inner }
