package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/ariefcatur/go-realtime-drops/internal/drops"
	kafkax "github.com/ariefcatur/go-realtime-drops/internal/kafka"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

const (
	HeaderUserID     = "X-User-Id"
	HeaderUserHandle = "X-User-Handle"
)

// Publisher is the async side of kafka.Producer.
type Publisher interface {
	Publish(key, value []byte, headers ...kafkago.Header)
}

// ReservationWriter records created reservations for audit.
type ReservationWriter interface {
	Insert(ctx context.Context, userID string, r drops.Reservation) error
}

type DropsHandler struct {
	Sessions       *Sessions
	Reservations   ReservationWriter
	ReservationPub Publisher
	InterestPub    Publisher
	Service        string
	Log            *zap.Logger
}

type selectDropReq struct {
	DropID string `json:"drop_id"`
}

type variantReq struct {
	VariantID string `json:"variant_id"`
}

type quantityReq struct {
	Quantity int `json:"quantity"`
}

type incrementReq struct {
	Delta int `json:"delta"`
}

type shippingReq struct {
	ShippingOptionID string `json:"shipping_option_id"`
}

type originReq struct {
	OriginOptionID string `json:"origin_option_id"`
}

type prefetchReq struct {
	IDs []string `json:"ids"`
}

type openDropResp struct {
	DropID string `json:"drop_id"`
}

func (h *DropsHandler) Register(r *chi.Mux) {
	r.Get("/session/open", h.getOpenDrop)
	r.Post("/session/open", h.selectDrop)
	r.Delete("/session/open", h.closeDrop)

	r.Get("/reservations", h.reservationHistory)
	r.Get("/reservations/last", h.lastReservation)
	r.Delete("/reservations/last", h.clearLastReservation)

	r.Post("/drops/prefetch", h.prefetch)
	r.Delete("/cache/drops", h.invalidateAll)
	r.Delete("/cache/drops/{id}", h.invalidate)

	r.Route("/drops/{id}", func(r chi.Router) {
		r.Get("/selection", h.selection)
		r.Put("/variant", h.setVariant)
		r.Put("/quantity", h.setQuantity)
		r.Post("/quantity/increment", h.incrementQuantity)
		r.Put("/shipping", h.setShipping)
		r.Put("/origin", h.setOrigin)
		r.Post("/reservations", h.startReservation)
		r.Get("/interest", h.interest)
		r.Post("/interest", h.toggleInterest)
		r.Get("/progress", h.progress)
		r.Post("/checkout", h.checkout)
		r.Get("/load-state", h.loadState)
	})
}

func userFrom(r *http.Request) drops.User {
	u := drops.User{ID: r.Header.Get(HeaderUserID), Handle: r.Header.Get(HeaderUserHandle)}
	if u.ID == "" {
		u.ID = "anonymous"
	}
	return u
}

func (h *DropsHandler) logger() *zap.Logger {
	if h.Log == nil {
		return zap.NewNop()
	}
	return h.Log
}

// engine resolves the caller's engine or writes a 500.
func (h *DropsHandler) engine(w http.ResponseWriter, r *http.Request) (*drops.Engine, bool) {
	e, err := h.Sessions.Engine(r.Context(), userFrom(r))
	if err != nil {
		h.logger().Error("session", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "session unavailable")
		return nil, false
	}
	return e, true
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return false
	}
	return true
}

func (h *DropsHandler) fail(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, drops.ErrDropNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, drops.ErrNoCart):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		h.logger().Error("request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

// command runs a selection operation and persists the session if it changed
// anything.
func (h *DropsHandler) command(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, e *drops.Engine, dropID string) (drops.ResolvedSelection, error)) {
	e, ok := h.engine(w, r)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	rev := e.Revision()
	sel, err := fn(ctx, e, chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, err)
		return
	}
	h.Sessions.SaveIfChanged(ctx, e, rev)
	writeJSON(w, http.StatusOK, sel)
}

func (h *DropsHandler) getOpenDrop(w http.ResponseWriter, r *http.Request) {
	e, ok := h.engine(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, openDropResp{DropID: e.OpenDrop()})
}

func (h *DropsHandler) selectDrop(w http.ResponseWriter, r *http.Request) {
	var req selectDropReq
	if !decode(w, r, &req) {
		return
	}
	if req.DropID == "" {
		writeError(w, http.StatusBadRequest, "missing drop_id")
		return
	}
	e, ok := h.engine(w, r)
	if !ok {
		return
	}
	rev := e.Revision()
	if err := e.SelectDrop(r.Context(), req.DropID); err != nil {
		h.fail(w, err)
		return
	}
	h.Sessions.SaveIfChanged(r.Context(), e, rev)
	writeJSON(w, http.StatusOK, openDropResp{DropID: e.OpenDrop()})
}

func (h *DropsHandler) closeDrop(w http.ResponseWriter, r *http.Request) {
	e, ok := h.engine(w, r)
	if !ok {
		return
	}
	rev := e.Revision()
	e.CloseDrop()
	h.Sessions.SaveIfChanged(r.Context(), e, rev)
	w.WriteHeader(http.StatusNoContent)
}

func (h *DropsHandler) selection(w http.ResponseWriter, r *http.Request) {
	h.command(w, r, func(ctx context.Context, e *drops.Engine, id string) (drops.ResolvedSelection, error) {
		return e.Selection(ctx, id)
	})
}

func (h *DropsHandler) setVariant(w http.ResponseWriter, r *http.Request) {
	var req variantReq
	if !decode(w, r, &req) {
		return
	}
	h.command(w, r, func(ctx context.Context, e *drops.Engine, id string) (drops.ResolvedSelection, error) {
		return e.SetVariant(ctx, id, req.VariantID)
	})
}

func (h *DropsHandler) setQuantity(w http.ResponseWriter, r *http.Request) {
	var req quantityReq
	if !decode(w, r, &req) {
		return
	}
	h.command(w, r, func(ctx context.Context, e *drops.Engine, id string) (drops.ResolvedSelection, error) {
		return e.SetQuantity(ctx, id, req.Quantity)
	})
}

func (h *DropsHandler) incrementQuantity(w http.ResponseWriter, r *http.Request) {
	var req incrementReq
	if !decode(w, r, &req) {
		return
	}
	h.command(w, r, func(ctx context.Context, e *drops.Engine, id string) (drops.ResolvedSelection, error) {
		return e.IncrementQuantity(ctx, id, req.Delta)
	})
}

func (h *DropsHandler) setShipping(w http.ResponseWriter, r *http.Request) {
	var req shippingReq
	if !decode(w, r, &req) {
		return
	}
	h.command(w, r, func(ctx context.Context, e *drops.Engine, id string) (drops.ResolvedSelection, error) {
		return e.SetShipping(ctx, id, req.ShippingOptionID)
	})
}

func (h *DropsHandler) setOrigin(w http.ResponseWriter, r *http.Request) {
	var req originReq
	if !decode(w, r, &req) {
		return
	}
	h.command(w, r, func(ctx context.Context, e *drops.Engine, id string) (drops.ResolvedSelection, error) {
		return e.SetOrigin(ctx, id, req.OriginOptionID)
	})
}

func (h *DropsHandler) checkout(w http.ResponseWriter, r *http.Request) {
	h.command(w, r, func(ctx context.Context, e *drops.Engine, id string) (drops.ResolvedSelection, error) {
		return e.Checkout(ctx, id)
	})
}

func (h *DropsHandler) startReservation(w http.ResponseWriter, r *http.Request) {
	e, ok := h.engine(w, r)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	res, err := e.StartReservation(ctx, chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, err)
		return
	}
	userID := e.User().ID

	if h.Reservations != nil {
		if err := h.Reservations.Insert(ctx, userID, res); err != nil {
			h.logger().Error("reservation audit", zap.String("reservation_id", res.ID), zap.Error(err))
		}
	}
	h.publish(h.ReservationPub, r, drops.EventReservationStarted, res.DropID,
		drops.ReservationStartedPayload{UserID: userID, Reservation: res})
	h.Sessions.Save(ctx, e)

	writeJSON(w, http.StatusCreated, res)
}

func (h *DropsHandler) reservationHistory(w http.ResponseWriter, r *http.Request) {
	e, ok := h.engine(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, e.ReservationHistory())
}

func (h *DropsHandler) lastReservation(w http.ResponseWriter, r *http.Request) {
	e, ok := h.engine(w, r)
	if !ok {
		return
	}
	res, found := e.LastReservation()
	if !found {
		writeError(w, http.StatusNotFound, "no reservation")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *DropsHandler) clearLastReservation(w http.ResponseWriter, r *http.Request) {
	e, ok := h.engine(w, r)
	if !ok {
		return
	}
	rev := e.Revision()
	e.ClearLastReservation()
	h.Sessions.SaveIfChanged(r.Context(), e, rev)
	w.WriteHeader(http.StatusNoContent)
}

func (h *DropsHandler) interest(w http.ResponseWriter, r *http.Request) {
	e, ok := h.engine(w, r)
	if !ok {
		return
	}
	in, err := e.Interest(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, in)
}

func (h *DropsHandler) toggleInterest(w http.ResponseWriter, r *http.Request) {
	e, ok := h.engine(w, r)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	in, err := e.ToggleInterest(ctx, chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, err)
		return
	}
	h.publish(h.InterestPub, r, drops.EventInterestToggled, in.DropID, drops.InterestToggledPayload{
		DropID:     in.DropID,
		UserID:     e.User().ID,
		Interested: in.Interested,
		Count:      in.Count,
	})
	h.Sessions.Save(ctx, e)
	writeJSON(w, http.StatusOK, in)
}

func (h *DropsHandler) progress(w http.ResponseWriter, r *http.Request) {
	e, ok := h.engine(w, r)
	if !ok {
		return
	}
	ps, err := e.Progress(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ps)
}

func (h *DropsHandler) prefetch(w http.ResponseWriter, r *http.Request) {
	var req prefetchReq
	if !decode(w, r, &req) {
		return
	}
	e, ok := h.engine(w, r)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	e.PrefetchDropData(ctx, req.IDs)
	states := make([]drops.LoadState, 0, len(req.IDs))
	for _, id := range req.IDs {
		states = append(states, e.LoadState(id))
	}
	writeJSON(w, http.StatusOK, states)
}

func (h *DropsHandler) loadState(w http.ResponseWriter, r *http.Request) {
	e, ok := h.engine(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, e.LoadState(chi.URLParam(r, "id")))
}

func (h *DropsHandler) invalidate(w http.ResponseWriter, r *http.Request) {
	e, ok := h.engine(w, r)
	if !ok {
		return
	}
	e.InvalidateCache(chi.URLParam(r, "id"))
	w.WriteHeader(http.StatusNoContent)
}

func (h *DropsHandler) invalidateAll(w http.ResponseWriter, r *http.Request) {
	e, ok := h.engine(w, r)
	if !ok {
		return
	}
	e.InvalidateCache("")
	w.WriteHeader(http.StatusNoContent)
}

func (h *DropsHandler) publish(p Publisher, r *http.Request, eventType, dropID string, payload any) {
	if p == nil {
		return
	}
	env, err := drops.NewEnvelope(eventType, h.Service, middleware.GetReqID(r.Context()), dropID, payload)
	if err != nil {
		h.logger().Error("build event", zap.String("event_type", eventType), zap.Error(err))
		return
	}
	p.Publish(drops.PartitionKey(dropID), kafkax.MustMarshal(env), kafkax.EventHeaders(eventType, env.EventVersion)...)
}
