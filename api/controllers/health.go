package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/ticketloom/ticketloom-backend/api/responses"
	"github.com/ticketloom/ticketloom-backend/pkg/config"
	pkgerrors "github.com/ticketloom/ticketloom-backend/pkg/errors"
	"github.com/ticketloom/ticketloom-backend/pkg/logger"
)

const readyCheckTimeout = 2 * time.Second

type pinger interface {
	Ping(ctx context.Context) error
}

func HealthLive(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Ticketloom-Env", cfg.App.Env)
		responses.WriteSuccess(w, map[string]string{"status": "live"})
	}
}

// HealthReady reports ready only when every wired dependency answers a ping.
func HealthReady(cfg *config.Config, logg *logger.Logger, dbP, redisP pinger) http.HandlerFunc {
	type check struct {
		name string
		dep  pinger
	}
	checks := []check{{"database", dbP}, {"redis", redisP}}

	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Ticketloom-Env", cfg.App.Env)

		ctx, cancel := context.WithTimeout(r.Context(), readyCheckTimeout)
		defer cancel()

		status := map[string]string{}
		for _, c := range checks {
			if c.dep == nil {
				continue
			}
			if err := c.dep.Ping(ctx); err != nil {
				status[c.name] = "down"
				responses.WriteError(r.Context(), logg, w,
					pkgerrors.Wrap(pkgerrors.CodeDependency, err, c.name+" unavailable").WithDetails(status))
				return
			}
			status[c.name] = "up"
		}

		responses.WriteSuccess(w, map[string]any{"status": "ready", "checks": status})
	}
}
