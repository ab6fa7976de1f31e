package penalty

import (
	"errors"
	"fmt"
	"time"
)

var ErrSuspended = errors.New("writing suspended")

// SuspendedError rejects a write while a suspension window is open. Until is
// shown to the client as a countdown.
type SuspendedError struct {
	Until time.Time
}

func (e *SuspendedError) Error() string {
	return fmt.Sprintf("writing suspended until %s", e.Until.Format(time.RFC3339))
}

func (e *SuspendedError) Is(target error) bool { return target == ErrSuspended }

func (e *SuspendedError) SuspendedUntil() time.Time { return e.Until }
