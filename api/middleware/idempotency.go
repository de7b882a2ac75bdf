package middleware

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"

	"github.com/qrseal/qrseal-backend/api/responses"
	pkgerrors "github.com/qrseal/qrseal-backend/pkg/errors"
	"github.com/qrseal/qrseal-backend/pkg/logger"
	pkgredis "github.com/qrseal/qrseal-backend/pkg/redis"
)

// IdempotencyHeader carries the client supplied replay key.
const IdempotencyHeader = "Idempotency-Key"

const (
	replayWindowShort = 24 * time.Hour
	replayWindowLong  = 7 * 24 * time.Hour
)

// replayPolicy binds a route template to how long its responses are remembered.
// Templates use chi placeholders ("{companyId}") which match any single segment.
type replayPolicy struct {
	method    string
	template  string
	window    time.Duration
	mandatory bool
}

var replayPolicies = []replayPolicy{
	{method: http.MethodPost, template: "/api/v1/orders", window: replayWindowShort},
	{method: http.MethodPost, template: "/api/v1/payments/initiate", window: replayWindowLong},
	{method: http.MethodPost, template: "/api/admin/v1/companies/{companyId}/credits", window: replayWindowLong, mandatory: true},
}

type storedReply struct {
	Status      int    `json:"status"`
	ContentType string `json:"content_type,omitempty"`
	Body        []byte `json:"body"`
	Fingerprint string `json:"fingerprint"`
}

// Idempotency replays the first successful response for a repeated
// Idempotency-Key on the mutating routes listed in replayPolicies.
func Idempotency(store pkgredis.IdempotencyStore, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			policy, ok := policyFor(r.Method, routePattern(r))
			if !ok || store == nil {
				next.ServeHTTP(w, r)
				return
			}

			clientKey := strings.TrimSpace(r.Header.Get(IdempotencyHeader))
			if clientKey == "" {
				if policy.mandatory {
					responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, IdempotencyHeader+" header required"))
					return
				}
				next.ServeHTTP(w, r)
				return
			}

			body, err := io.ReadAll(r.Body)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request body"))
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			fingerprint := fingerprintOf(body)
			key := store.IdempotencyKey(replayScope(r), clientKey)

			prior, err := loadReply(r, store, key)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
			if prior != nil {
				if prior.Fingerprint != fingerprint {
					responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeIdempotency, "idempotency key reused with a different request body"))
					return
				}
				prior.writeTo(w)
				return
			}

			tee := &teeWriter{ResponseWriter: w}
			next.ServeHTTP(tee, r)

			reply := storedReply{
				Status:      tee.statusCode(),
				ContentType: tee.Header().Get("Content-Type"),
				Body:        tee.buf.Bytes(),
				Fingerprint: fingerprint,
			}
			// server failures stay retryable
			if reply.Status >= http.StatusInternalServerError {
				return
			}
			encoded, err := json.Marshal(reply)
			if err == nil {
				_, err = store.SetNX(r.Context(), key, string(encoded), policy.window)
			}
			if err != nil && logg != nil {
				logg.Error(logg.WithField(r.Context(), "route", policy.template), "store idempotent reply", err)
			}
		})
	}
}

func loadReply(r *http.Request, store pkgredis.IdempotencyStore, key string) (*storedReply, error) {
	raw, err := store.Get(r.Context(), key)
	switch {
	case errors.Is(err, redis.Nil):
		return nil, nil
	case err != nil:
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup idempotency key")
	case raw == "":
		return nil, nil
	}
	var reply storedReply
	if err := json.Unmarshal([]byte(raw), &reply); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode idempotent reply")
	}
	return &reply, nil
}

func (s *storedReply) writeTo(w http.ResponseWriter) {
	if s.ContentType != "" {
		w.Header().Set("Content-Type", s.ContentType)
	}
	w.Header().Set("Idempotent-Replayed", "true")
	w.WriteHeader(s.Status)
	_, _ = w.Write(s.Body)
}

// replayScope keeps keys from colliding across users, tenants and endpoints.
func replayScope(r *http.Request) string {
	return strings.Join([]string{
		UserIDFromContext(r.Context()),
		CompanyIDFromContext(r.Context()),
		r.Method,
		r.URL.Path,
	}, "|")
}

func fingerprintOf(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}

// routePattern prefers the matched chi template. Mid-routing the template still
// ends in a wildcard, so the concrete path is used instead.
func routePattern(r *http.Request) string {
	if rc := chi.RouteContext(r.Context()); rc != nil {
		if p := rc.RoutePattern(); p != "" && !strings.Contains(p, "*") {
			return strings.TrimSuffix(p, "/")
		}
	}
	if p := strings.TrimSuffix(r.URL.Path, "/"); p != "" {
		return p
	}
	return "/"
}

func policyFor(method, route string) (replayPolicy, bool) {
	for _, p := range replayPolicies {
		if p.method == method && templateMatches(p.template, route) {
			return p, true
		}
	}
	return replayPolicy{}, false
}

func templateMatches(template, route string) bool {
	want := strings.Split(strings.Trim(template, "/"), "/")
	got := strings.Split(strings.Trim(route, "/"), "/")
	if len(want) != len(got) {
		return false
	}
	for i, seg := range want {
		if strings.HasPrefix(seg, "{") && strings.HasSuffix(seg, "}") {
			if got[i] == "" {
				return false
			}
			continue
		}
		if seg != got[i] {
			return false
		}
	}
	return true
}

type teeWriter struct {
	http.ResponseWriter
	buf    bytes.Buffer
	status int
}

func (t *teeWriter) WriteHeader(code int) {
	if t.status == 0 {
		t.status = code
	}
	t.ResponseWriter.WriteHeader(code)
}

func (t *teeWriter) Write(b []byte) (int, error) {
	if t.status == 0 {
		t.status = http.StatusOK
	}
	t.buf.Write(b)
	return t.ResponseWriter.Write(b)
}

func (t *teeWriter) statusCode() int {
	if t.status == 0 {
		return http.StatusOK
	}
	return t.status
}
