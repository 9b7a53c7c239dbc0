package collector

import "fmt"

// ErrSeedMismatch means the fetched repository's full_name does not
// match the job's (owner, name). Accepting it anyway risks upserting
// under the wrong identity and corrupting a previously-ingested
// repositories row — the job is poisoned rather than retried.
type ErrSeedMismatch struct {
	Expected string
	Actual   string
}

func (e *ErrSeedMismatch) Error() string {
	return fmt.Sprintf("seed mismatch: expected %q but fetched %q", e.Expected, e.Actual)
}
