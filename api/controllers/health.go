package controllers

import (
	"net/http"

	"github.com/harvestly/cart-engine/api/responses"
	"github.com/harvestly/cart-engine/pkg/config"
	pkgerrors "github.com/harvestly/cart-engine/pkg/errors"
	"github.com/harvestly/cart-engine/pkg/keyval"
	"github.com/harvestly/cart-engine/pkg/logger"
)

func HealthLive(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-CartEngine-Env", cfg.App.Env)
		responses.WriteSuccess(w, map[string]string{"status": "live"})
	}
}

// HealthReady verifies the local persistence layer answers. The remote order
// service is deliberately not probed: the engine is designed to keep working
// while it is down.
func HealthReady(cfg *config.Config, logg *logger.Logger, kv keyval.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-CartEngine-Env", cfg.App.Env)
		if kv != nil {
			if _, err := kv.Has(r.Context(), "cart"); err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeStorage, err, "local storage not ready"))
				return
			}
		}
		responses.WriteSuccess(w, map[string]string{"status": "ready"})
	}
}
