// Package controllers holds the handlers that sit outside any resource
// package: probes, pings and the public scan endpoint.
package controllers

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/qrseal/qrseal-backend/api/middleware"
	"github.com/qrseal/qrseal-backend/api/responses"
	"github.com/qrseal/qrseal-backend/pkg/config"
	pkgerrors "github.com/qrseal/qrseal-backend/pkg/errors"
	"github.com/qrseal/qrseal-backend/pkg/logger"
)

const readinessTimeout = 2 * time.Second

const envHeader = "X-QRSeal-Env"

// Pinger is any dependency that can report reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Ping echoes scope plus whatever caller identity the auth middleware left on
// the request; public routes carry none.
func Ping(scope string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		out := map[string]string{"scope": scope, "status": "ok"}
		ctx := r.Context()
		for key, value := range map[string]string{
			"user_id":    middleware.UserIDFromContext(ctx),
			"role":       middleware.RoleFromContext(ctx),
			"company_id": middleware.CompanyIDFromContext(ctx),
		} {
			if value != "" {
				out[key] = value
			}
		}
		responses.WriteSuccess(w, out)
	}
}

func HealthLive(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(envHeader, cfg.App.Env)
		responses.WriteSuccess(w, map[string]string{"status": "live"})
	}
}

// HealthReady pings the dependencies in name order and answers 503 on the
// first one that is down.
func HealthReady(cfg *config.Config, logg *logger.Logger, deps map[string]Pinger) http.HandlerFunc {
	names := make([]string, 0, len(deps))
	for name, dep := range deps {
		if dep != nil {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(envHeader, cfg.App.Env)
		ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
		defer cancel()

		checks := make(map[string]string, len(names))
		for _, name := range names {
			if err := deps[name].Ping(ctx); err != nil {
				responses.WriteError(r.Context(), logg, w,
					pkgerrors.Wrap(pkgerrors.CodeDependency, err, name+" unavailable").
						WithDetails(map[string]any{"dependency": name}))
				return
			}
			checks[name] = "ok"
		}
		responses.WriteSuccess(w, map[string]any{"status": "ready", "checks": checks})
	}
}
