// Package ids validates and derives the identifiers defined in spec.md §3:
// user_id, run_id, candidate_id, and experiment_id.
package ids

import (
	"fmt"
	"regexp"

	"github.com/buffquant/simrun/internal/apierr"
)

var (
	reUserID      = regexp.MustCompile(`^[A-Za-z0-9._-]{1,64}$`)
	reRunID       = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]{2,63}$`)
	reCandidateID = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]{2,31}$`)
)

// ValidateUserID enforces spec.md §3: 1-64 chars matching [A-Za-z0-9._-],
// rejecting "." and ".." and any path separator.
func ValidateUserID(id string) error {
	if id == "." || id == ".." {
		return apierr.UserInvalid(fmt.Sprintf("user_id %q is not allowed", id))
	}
	if containsSeparator(id) {
		return apierr.UserInvalid("user_id must not contain path separators")
	}
	if !reUserID.MatchString(id) {
		return apierr.UserInvalid("user_id must be 1-64 chars matching [A-Za-z0-9._-]")
	}
	return nil
}

// ValidateRunID enforces ^[a-z0-9][a-z0-9_-]{2,63}$.
func ValidateRunID(id string) error {
	if containsSeparator(id) {
		return apierr.RunIDInvalid("run_id must not contain path separators")
	}
	if !reRunID.MatchString(id) {
		return apierr.RunIDInvalid("run_id must match ^[a-z0-9][a-z0-9_-]{2,63}$")
	}
	return nil
}

// ValidateCandidateID enforces ^[a-z0-9][a-z0-9_-]{2,31}$.
func ValidateCandidateID(id string) error {
	if containsSeparator(id) {
		return apierr.ExperimentConfigInvalid("candidate_id must not contain path separators")
	}
	if !reCandidateID.MatchString(id) {
		return apierr.ExperimentConfigInvalid("candidate_id must match ^[a-z0-9][a-z0-9_-]{2,31}$")
	}
	return nil
}

// DeriveRunID derives the default run_id from an inputs_hash (spec.md §3:
// run_{inputs_hash[:12]}).
func DeriveRunID(inputsHash string) string {
	return "run_" + safePrefix(inputsHash, 12)
}

// DeriveCandidateID derives the default candidate_id for a zero-based index
// (spec.md §3: cand_{index+1:03d}).
func DeriveCandidateID(index int) string {
	return fmt.Sprintf("cand_%03d", index+1)
}

// DeriveExperimentID derives the experiment_id from an experiment_digest
// (spec.md §3: exp_{experiment_digest[:12]}).
func DeriveExperimentID(digest string) string {
	return "exp_" + safePrefix(digest, 12)
}

func safePrefix(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// containsSeparator rejects path separators and their percent-encoded forms,
// matching spec.md §4.B's traversal guard ('.', '..' are checked by the
// charset/regex for each ID kind since none of them permits '.' elsewhere).
func containsSeparator(s string) bool {
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '/', '\\':
			return true
		}
	}
	return hasPercentEncodedSeparator(s)
}

func hasPercentEncodedSeparator(s string) bool {
	lower := toLowerASCII(s)
	for i := 0; i+3 <= len(lower); i++ {
		if lower[i] == '%' {
			switch lower[i : i+3] {
			case "%2e", "%2f", "%5c":
				return true
			}
		}
	}
	return false
}

func toLowerASCII(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}
