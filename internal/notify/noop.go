package notify

import "context"

// Noop discards all notifications. Used in tests and when no channel is
// wanted at all.
type Noop struct{}

// Notify does nothing.
func (Noop) Notify(context.Context, string, string) {}
