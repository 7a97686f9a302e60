package optimize

import (
	"context"
	"log/slog"
)

// LevelTrace is below debug; every applied rewrite is logged at it.
const LevelTrace slog.Level = slog.LevelDebug - 4

func (o *Optimizer) trace(msg string, args ...any) {
	o.log.Log(context.Background(), LevelTrace, msg, args...)
}
