package controllers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/qrseal/qrseal-backend/api/responses"
	productsvc "github.com/qrseal/qrseal-backend/internal/products"
	pkgerrors "github.com/qrseal/qrseal-backend/pkg/errors"
	"github.com/qrseal/qrseal-backend/pkg/logger"
)

// PublicVerify answers a consumer scan of /verify/{qrCode}. A code the
// platform never minted comes back as valid=false with 200.
func PublicVerify(verifier productsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if verifier == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeDependency, "verification unavailable"))
			return
		}
		verdict, err := verifier.Verify(ctx, chi.URLParam(r, "qrCode"))
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, verdict)
	}
}
