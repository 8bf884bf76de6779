package relay

import (
	"context"
	"iter"

	"github.com/haivivi/fieldstream/pkg/fieldx"
	"github.com/haivivi/fieldstream/pkg/upstream"
)

// Pump drives one generation: every delta goes through ext and the resulting
// events are passed to emit in order.
//
// A *upstream.SignaledError aborts the extractor, emits its single Error
// event and returns nil. Any other upstream error is returned as is with no
// event emitted, so the caller decides how to report it. When the deltas end
// normally the extractor is finalized, which emits the trailing fields and
// Complete. An emit error stops the loop, which in turn cancels the upstream
// request.
func Pump(ctx context.Context, deltas iter.Seq2[string, error], ext *fieldx.Extractor, emit func(fieldx.Event) error) error {
	for delta, err := range deltas {
		if err != nil {
			if se, ok := upstream.AsSignaledError(err); ok {
				return emitAll(ext.Abort(se.Message), emit)
			}
			return err
		}
		if err := emitAll(ext.ProcessChunk(delta), emit); err != nil {
			return err
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return emitAll(ext.Finalize(), emit)
}

func emitAll(events []fieldx.Event, emit func(fieldx.Event) error) error {
	for _, evt := range events {
		if err := emit(evt); err != nil {
			return err
		}
	}
	return nil
}
