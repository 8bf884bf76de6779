package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/haivivi/fieldstream/pkg/fieldx"
	"github.com/haivivi/fieldstream/pkg/ndjson"
	"github.com/haivivi/fieldstream/pkg/upstream"
)

// DefaultMaxInstructionBytes bounds the request body when
// Handler.MaxInstructionBytes is zero.
const DefaultMaxInstructionBytes = 1 << 20

// TransportErrorPrefix starts the message of an error line written when the
// upstream connection fails after streaming has begun.
const TransportErrorPrefix = "transport: "

// Authenticator validates the bearer credential of a request.
type Authenticator interface {
	Authenticate(ctx context.Context, credential string) error
}

// AuthenticatorFunc adapts a function to Authenticator.
type AuthenticatorFunc func(ctx context.Context, credential string) error

func (f AuthenticatorFunc) Authenticate(ctx context.Context, credential string) error {
	return f(ctx, credential)
}

// StaticTokens accepts exactly the listed credentials.
func StaticTokens(tokens ...string) Authenticator {
	set := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		set[t] = struct{}{}
	}
	return AuthenticatorFunc(func(_ context.Context, credential string) error {
		if _, ok := set[credential]; !ok {
			return ErrUnauthorized
		}
		return nil
	})
}

// Handler relays one generation per POST request as a field stream.
//
// The request body is the opaque instruction payload forwarded to Source. The
// response is application/x-ndjson, one event per line. If the upstream
// cannot be reached before the first event, the handler answers 502 with a
// JSON error instead.
type Handler struct {
	// Source produces the upstream text deltas.
	Source upstream.Source

	// Authenticator checks the bearer credential. Nil accepts every request.
	Authenticator Authenticator

	// MaxInstructionBytes limits the request body.
	MaxInstructionBytes int64

	// Repair enables best-effort repair of a truncated final object.
	Repair bool

	// OnComplete is called after a Complete event was written, with the
	// fields in first-emission order. It runs after the response finished
	// and is not cancelled when the client goes away.
	OnComplete func(ctx context.Context, id string, fields []fieldx.Member) error
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	id := uuid.NewString()
	w.Header().Set("X-Request-Id", id)
	log := slog.With("request_id", id)

	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeError(w, id, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	ctx := r.Context()
	if h.Authenticator != nil {
		if err := h.Authenticator.Authenticate(ctx, bearer(r)); err != nil {
			log.Info("relay/handler: rejected credential", "err", err)
			writeError(w, id, http.StatusUnauthorized, "invalid credential")
			return
		}
	}

	limit := h.MaxInstructionBytes
	if limit <= 0 {
		limit = DefaultMaxInstructionBytes
	}
	instruction, err := io.ReadAll(http.MaxBytesReader(w, r.Body, limit))
	if err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			writeError(w, id, http.StatusRequestEntityTooLarge, "instruction too large")
			return
		}
		writeError(w, id, http.StatusBadRequest, "read instruction: "+err.Error())
		return
	}
	if len(bytes.TrimSpace(instruction)) == 0 {
		writeError(w, id, http.StatusBadRequest, "empty instruction")
		return
	}

	var opts []fieldx.Option
	if h.Repair {
		opts = append(opts, fieldx.WithRepair())
	}
	ext := fieldx.NewExtractor(opts...)

	var (
		enc       *ndjson.Encoder
		writeErr  error
		completed bool
		start     = time.Now()
	)
	emit := func(evt fieldx.Event) error {
		if enc == nil {
			w.Header().Set("Content-Type", ndjson.MediaType)
			w.Header().Set("Cache-Control", "no-cache")
			w.Header().Set("X-Content-Type-Options", "nosniff")
			w.WriteHeader(http.StatusOK)
			enc = ndjson.NewEncoder(w)
		}
		if err := enc.Encode(evt); err != nil {
			writeErr = err
			return err
		}
		if evt.Type == fieldx.EventComplete {
			completed = true
		}
		return nil
	}

	err = Pump(ctx, h.Source.Stream(ctx, instruction), ext, emit)
	switch {
	case writeErr != nil:
		log.Warn("relay/handler: client write failed", "err", writeErr)
		return
	case err != nil && ctx.Err() != nil:
		log.Info("relay/handler: client went away", "err", err)
		return
	case err != nil && enc == nil:
		log.Error("relay/handler: upstream failed", "err", err)
		status, msg := http.StatusBadGateway, err.Error()
		if ue, ok := upstream.AsError(err); ok {
			msg = ue.Message
		}
		writeError(w, id, status, msg)
		return
	case err != nil:
		log.Error("relay/handler: upstream failed mid-stream", "err", err, "lines", enc.Lines())
		if eerr := enc.Encode(fieldx.ErrorEvent(TransportErrorPrefix + err.Error())); eerr != nil {
			log.Warn("relay/handler: write error line", "err", eerr)
		}
		return
	}

	fields := members(ext)
	log.Info("relay/handler: generation finished",
		"completed", completed,
		"fields", len(fields),
		"lines", enc.Lines(),
		"duration", time.Since(start))

	if completed && h.OnComplete != nil {
		if err := h.OnComplete(context.WithoutCancel(ctx), id, fields); err != nil {
			log.Error("relay/handler: on complete", "err", err)
		}
	}
}

func members(ext *fieldx.Extractor) []fieldx.Member {
	snap := ext.Snapshot()
	names := ext.Fields()
	out := make([]fieldx.Member, 0, len(names))
	for _, name := range names {
		out = append(out, fieldx.Member{Key: name, Value: snap[name]})
	}
	return out
}

func bearer(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if token, ok := strings.CutPrefix(auth, "Bearer "); ok {
		return strings.TrimSpace(token)
	}
	return ""
}

func writeError(w http.ResponseWriter, id string, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(&Error{Message: msg, RequestID: id})
}
