package ingest

import "fmt"

// FailurePolicy decides what a batch does when one path cannot be ingested.
type FailurePolicy string

const (
	// PolicySkip records the failure and moves on to the next path.
	PolicySkip FailurePolicy = "skip"
	// PolicyFailFast stops the batch at the first failed path.
	PolicyFailFast FailurePolicy = "fail_fast"
)

// ParsePolicy converts a config string into a FailurePolicy. The empty string
// means PolicySkip.
func ParsePolicy(s string) (FailurePolicy, error) {
	switch FailurePolicy(s) {
	case "", PolicySkip:
		return PolicySkip, nil
	case PolicyFailFast:
		return PolicyFailFast, nil
	}
	return "", fmt.Errorf("unknown failure policy %q (want %q or %q)", s, PolicySkip, PolicyFailFast)
}
