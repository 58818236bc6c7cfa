package clock

import (
	"time"

	"go.uber.org/fx"
)

// Clock abstracts wall time so effective-window checks and the publisher
// loop can be driven deterministically in tests.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

func NewSystem() Clock { return systemClock{} }

var Module = fx.Module("clock",
	fx.Provide(NewSystem),
)
