package jobs

import "errors"

// ErrVersionConflict indicates a compare-and-set update lost the race: the
// job row was modified since it was read. Callers should re-read the job and
// decide whether their update still applies.
var ErrVersionConflict = errors.New("job version conflict")
