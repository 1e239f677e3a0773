package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/tomo-delivery/dispatchd/core/dispatch"
	"github.com/tomo-delivery/dispatchd/core/logger"
	"github.com/tomo-delivery/dispatchd/core/model"
)

// Dispatcher is the subset of the orchestrator driven over HTTP.
type Dispatcher interface {
	Dispatch(ctx context.Context, orderID string) error
	AcceptOffer(ctx context.Context, orderID, riderID string) error
	DeclineOffer(ctx context.Context, orderID, riderID string) error
	ManualAssign(ctx context.Context, orderID, riderID string) error
	CancelOrder(ctx context.Context, orderID string) error
}

// LocationReporter ingests rider position reports.
type LocationReporter interface {
	Report(ctx context.Context, riderID string, lat, lng float64) (bool, error)
}

// NewRouter builds the public API. Requests must include an
// Authorization header with "Bearer <token>" when token is non-empty.
func NewRouter(d Dispatcher, loc LocationReporter, token string, log logger.Logger) http.Handler {
	h := &handler{dispatcher: d, locations: loc, log: log}
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Route("/api", func(r chi.Router) {
		if token != "" {
			r.Use(bearerAuth(token))
		}
		r.Route("/orders/{orderID}", func(r chi.Router) {
			r.Post("/dispatch", h.dispatch)
			r.Post("/accept", h.accept)
			r.Post("/decline", h.decline)
			r.Post("/assign", h.assign)
			r.Post("/cancel", h.cancel)
		})
		r.Post("/riders/{riderID}/location", h.location)
	})
	return r
}

func bearerAuth(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Authorization") != "Bearer "+token {
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

type handler struct {
	dispatcher Dispatcher
	locations  LocationReporter
	log        logger.Logger
}

type riderRequest struct {
	RiderID string `json:"rider_id"`
}

type locationRequest struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

func (h *handler) dispatch(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderID")
	if err := h.dispatcher.Dispatch(r.Context(), orderID); err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"order_id": orderID, "state": "dispatching"})
}

func (h *handler) accept(w http.ResponseWriter, r *http.Request) {
	h.offerAction(w, r, h.dispatcher.AcceptOffer)
}

func (h *handler) decline(w http.ResponseWriter, r *http.Request) {
	h.offerAction(w, r, h.dispatcher.DeclineOffer)
}

func (h *handler) assign(w http.ResponseWriter, r *http.Request) {
	h.offerAction(w, r, h.dispatcher.ManualAssign)
}

func (h *handler) offerAction(w http.ResponseWriter, r *http.Request, fn func(context.Context, string, string) error) {
	orderID := chi.URLParam(r, "orderID")
	var req riderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.RiderID == "" {
		writeError(w, http.StatusBadRequest, "rider_id is required")
		return
	}
	if err := fn(r.Context(), orderID, req.RiderID); err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"order_id": orderID, "rider_id": req.RiderID})
}

func (h *handler) cancel(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderID")
	if err := h.dispatcher.CancelOrder(r.Context(), orderID); err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"order_id": orderID, "status": string(model.StatusCancelled)})
}

func (h *handler) location(w http.ResponseWriter, r *http.Request) {
	riderID := chi.URLParam(r, "riderID")
	var req locationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	accepted, err := h.locations.Report(r.Context(), riderID, req.Lat, req.Lng)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"rider_id": riderID, "accepted": accepted})
}

// fail maps dispatch errors onto HTTP status codes.
func (h *handler) fail(w http.ResponseWriter, err error) {
	var ite *model.InvalidTransitionError
	switch {
	case errors.Is(err, dispatch.ErrOrderNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, dispatch.ErrNoActiveOffer):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, dispatch.ErrOfferNotForRider):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, dispatch.ErrOfferExpired):
		writeError(w, http.StatusGone, err.Error())
	case errors.Is(err, dispatch.ErrRiderUnavailable):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, dispatch.ErrOrderNotReady),
		errors.Is(err, dispatch.ErrDispatchInFlight),
		errors.Is(err, dispatch.ErrDispatchDisabled),
		errors.As(err, &ite):
		writeError(w, http.StatusConflict, err.Error())
	default:
		h.log.Errorf("request failed: %v", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
