package audit

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/healthcard/healthcard/internal/platform/auth"
)

// Recorder persists audit entries for state-changing operations. Record never
// returns an error: audit logging is best-effort and must not become a point
// of failure for the business operation that triggered it. Persistence
// failures are logged and swallowed, with no retry.
type Recorder struct {
	entries EntryRepository
	logger  zerolog.Logger
}

func NewRecorder(entries EntryRepository, logger zerolog.Logger) *Recorder {
	return &Recorder{entries: entries, logger: logger}
}

// Record writes one audit entry for the given change. Callers are expected
// to skip the call entirely for no-op updates; Record does not deduplicate.
func (r *Recorder) Record(ctx context.Context, ch Change) {
	if ch.Action == "" || ch.ResourceType == "" {
		r.logger.Error().
			Str("action", ch.Action).
			Str("resource_type", ch.ResourceType).
			Msg("audit entry skipped: incomplete change")
		return
	}

	e := &Entry{
		ID:           uuid.New(),
		UserID:       ch.Actor.ID,
		UserName:     ch.Actor.Name,
		UserRole:     ch.Actor.Role,
		Action:       ch.Action,
		ResourceType: ch.ResourceType,
		ResourceID:   ch.ResourceID,
		PatientID:    ch.PatientID,
		OldValues:    ch.OldValues,
		NewValues:    ch.NewValues,
		Description:  ch.Description,
		IPAddress:    ch.IPAddress,
		CreatedAt:    time.Now().UTC(),
	}

	if err := r.entries.Create(ctx, e); err != nil {
		r.logger.Error().Err(err).
			Str("action", ch.Action).
			Str("resource_type", ch.ResourceType).
			Str("resource_id", ch.ResourceID).
			Msg("failed to record audit entry")
		return
	}

	r.logger.Info().
		Str("type", "phi_audit").
		Str("user_id", ch.Actor.ID.String()).
		Str("user_role", ch.Actor.Role).
		Str("action", ch.Action).
		Str("resource_type", ch.ResourceType).
		Str("resource_id", ch.ResourceID).
		Msg("phi_access")
}

// ActorFromContext builds the acting user from JWT claims stowed in the
// request context. A zero Actor is returned for unauthenticated requests.
func ActorFromContext(ctx context.Context) Actor {
	id, _ := uuid.Parse(auth.UserIDFromContext(ctx))
	return Actor{
		ID:   id,
		Name: auth.UserNameFromContext(ctx),
		Role: auth.RoleFromContext(ctx),
	}
}

// RequestAddr extracts the originating network address from proxy-aware
// headers, preferring X-Forwarded-For, then X-Real-IP, then the direct
// connection address. Returns nil when nothing usable is present.
func RequestAddr(req *http.Request) *string {
	if req == nil {
		return nil
	}
	if fwd := req.Header.Get("X-Forwarded-For"); fwd != "" {
		addr := strings.TrimSpace(strings.SplitN(fwd, ",", 2)[0])
		if addr != "" {
			return &addr
		}
	}
	if real := req.Header.Get("X-Real-IP"); real != "" {
		return &real
	}
	if req.RemoteAddr != "" {
		addr := req.RemoteAddr
		if i := strings.LastIndex(addr, ":"); i > 0 && !strings.HasSuffix(addr, "]") {
			addr = addr[:i]
		}
		addr = strings.Trim(addr, "[]")
		if addr != "" {
			return &addr
		}
	}
	return nil
}
