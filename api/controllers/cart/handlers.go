// Package cart exposes the engine's UI-facing contract over local HTTP.
// Mutations respond 200 with the settled read model whether or not the
// backend confirmed them; failure is carried on the snapshot, not the
// status code, so the UI renders it the same way an embedded caller would.
package cart

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/harvestly/cart-engine/api/responses"
	"github.com/harvestly/cart-engine/api/validators"
	"github.com/harvestly/cart-engine/internal/boundary"
	cartstore "github.com/harvestly/cart-engine/internal/cart"
	pkgerrors "github.com/harvestly/cart-engine/pkg/errors"
	"github.com/harvestly/cart-engine/pkg/logger"
)

// CartFetch renders the read model through the fault boundary so a panicking
// render path degrades to a recoverable error instead of killing the daemon.
func CartFetch(store *cartstore.Store, region *boundary.Boundary, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var snap cartstore.Snapshot
		err := region.Render(r.Context(), func() error {
			snap = store.State()
			return nil
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, snap)
	}
}

func CartAddItem(store *cartstore.Store, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload AddItemRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		ctx := r.Context()
		if logg != nil {
			ctx = logg.WithProductID(ctx, payload.ProductID)
		}
		applied := store.AddItem(ctx, payload.item(), payload.Quantity)
		responses.WriteSuccess(w, newMutationView(applied, store.State()))
	}
}

func CartUpdateQuantity(store *cartstore.Store, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		productID := chi.URLParam(r, "productId")
		if productID == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "product id is required"))
			return
		}

		var payload UpdateQuantityRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		ctx := r.Context()
		if logg != nil {
			ctx = logg.WithProductID(ctx, productID)
		}
		applied := store.UpdateQuantity(ctx, productID, payload.Quantity)
		responses.WriteSuccess(w, newMutationView(applied, store.State()))
	}
}

func CartRemoveItem(store *cartstore.Store, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		productID := chi.URLParam(r, "productId")
		if productID == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "product id is required"))
			return
		}

		ctx := r.Context()
		if logg != nil {
			ctx = logg.WithProductID(ctx, productID)
		}
		applied := store.RemoveItem(ctx, productID)
		responses.WriteSuccess(w, newMutationView(applied, store.State()))
	}
}

func CartClear(store *cartstore.Store, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		applied := store.Clear(r.Context())
		responses.WriteSuccess(w, newMutationView(applied, store.State()))
	}
}

func CartDismissError(store *cartstore.Store, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		store.ClearError()
		responses.WriteSuccess(w, store.State())
	}
}

func CartBackupStatus(store *cartstore.Store, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		responses.WriteSuccess(w, BackupView{HasBackup: store.HasBackup(r.Context())})
	}
}

func CartRecover(store *cartstore.Store, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		recovered := store.RecoverCart(r.Context())
		responses.WriteSuccess(w, RecoveryView{Recovered: recovered, Cart: store.State()})
	}
}

// RenderStatus exposes the fault boundary for the fallback UI.
func RenderStatus(region *boundary.Boundary) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		responses.WriteSuccess(w, newRenderStatusView(region))
	}
}

func RenderRetry(region *boundary.Boundary, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !region.Retry(r.Context()) {
			responses.WriteError(r.Context(), logg, w,
				pkgerrors.New(pkgerrors.CodeRenderFault, "retry unavailable, recovery required"))
			return
		}
		responses.WriteSuccess(w, newRenderStatusView(region))
	}
}

func RenderReset(region *boundary.Boundary, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := region.Reset(r.Context()); err != nil {
			responses.WriteError(r.Context(), logg, w,
				pkgerrors.Wrap(pkgerrors.CodeStorage, err, "resetting preserved state failed"))
			return
		}
		responses.WriteSuccess(w, newRenderStatusView(region))
	}
}
