package common

import (
	"time"

	"github.com/google/uuid"
)

// IDGenerator generates unique IDs
type IDGenerator interface {
	Generate() string
}

// TimeSource provides the current time
type TimeSource interface {
	Now() time.Time
}

// UUIDGenerator generates random (v4) UUID strings
type UUIDGenerator struct{}

func (UUIDGenerator) Generate() string {
	return uuid.NewString()
}

// SystemTime provides the wall clock
type SystemTime struct{}

func (SystemTime) Now() time.Time {
	return time.Now()
}

// FixedTime always reports the same instant. The pipeline freezes one per run
// so every document in a claim shares the same defaults.
type FixedTime struct {
	At time.Time
}

func (f FixedTime) Now() time.Time {
	return f.At
}
