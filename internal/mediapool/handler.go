package mediapool

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"time"

	"media-pool/internal/platform/metrics"

	"github.com/go-chi/chi/v5"
)

// layoutWaitTimeout bounds how long ?wait=true blocks on a readiness or a
// blessing.
const layoutWaitTimeout = 10 * time.Second

// Handler exposes the pool control plane over HTTP using go-chi.
type Handler struct {
	svc      *Service
	log      *slog.Logger
	metrics  *metrics.Metrics
	counters EventCounters
}

// HandlerOption configures a Handler.
type HandlerOption func(*Handler)

// WithEventCounters serves the recorded event counters under the stats
// routes. Without it those routes answer 404.
func WithEventCounters(c EventCounters) HandlerOption {
	return func(h *Handler) { h.counters = c }
}

// NewHandler returns a Handler that uses the given Service, Logger, and optional Metrics.
// Metrics may be nil to disable gauge refresh on scrape (e.g. in tests).
func NewHandler(svc *Service, log *slog.Logger, m *metrics.Metrics, opts ...HandlerOption) *Handler {
	h := &Handler{svc: svc, log: log, metrics: m}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Routes registers the control plane routes on r.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/stats", h.GetStats)
	r.Post("/containers", h.CreateContainer)
	r.Route("/containers/{container_id}", func(r chi.Router) {
		r.Delete("/", h.DeleteContainer)
		r.Get("/pool", h.GetPool)
		r.Get("/stats", h.GetContainerStats)
		r.Post("/bless", h.Bless)
		r.Post("/visible", h.SetVisible)
		r.Post("/players", h.RegisterPlayer)
		r.Route("/players/{player_id}", func(r chi.Router) {
			r.Get("/", h.GetPlayer)
			r.Delete("/", h.DestroyPlayer)
			r.Put("/distance", h.SetDistance)
			r.Post("/layout", h.Layout)
			r.Post("/suspend", h.Suspend)
			r.Post("/play", h.Play)
			r.Post("/pause", h.playerAction(h.svc.Pause))
			r.Post("/mute", h.playerAction(h.svc.Mute))
			r.Post("/unmute", h.playerAction(h.svc.Unmute))
			r.Post("/canplay", h.playerAction(h.svc.SignalCanPlay))
			r.Post("/error", h.SignalError)
		})
	})
}

// RefreshGauges updates the container and slot gauges. It is meant to run
// before every metrics scrape.
func (h *Handler) RefreshGauges() {
	if h.metrics == nil {
		return
	}
	ids := h.svc.Containers()
	h.metrics.SetContainers(len(ids))

	allocated := make(map[MediaType]int)
	free := make(map[MediaType]int)
	for _, id := range ids {
		st, err := h.svc.PoolStats(id)
		if err != nil {
			continue
		}
		for t, ts := range st.Types {
			allocated[t] += len(ts.Allocated)
			free[t] += ts.Free
		}
	}
	for _, t := range MediaTypes {
		h.metrics.SetSlots(t.String(), allocated[t], free[t])
	}
}

type createContainerResponse struct {
	ContainerID ContainerID `json:"container_id"`
}

type allocatedJSON struct {
	ConsumerID string   `json:"consumer_id"`
	Distance   *float64 `json:"distance"`
	SlotID     string   `json:"slot_id"`
}

type typeStatsJSON struct {
	Capacity  int             `json:"capacity"`
	Free      int             `json:"free"`
	Allocated []allocatedJSON `json:"allocated"`
}

type poolJSON struct {
	ContainerID ContainerID              `json:"container_id"`
	Blessed     bool                     `json:"blessed"`
	Closed      bool                     `json:"closed"`
	Types       map[string]typeStatsJSON `json:"types"`
}

type statsJSON struct {
	ContainerID ContainerID      `json:"container_id,omitempty"`
	Events      map[string]int64 `json:"events"`
}

type playerRequest struct {
	ID         PlayerID          `json:"id"`
	Type       string            `json:"type"`
	Distance   *float64          `json:"distance"`
	Sources    []Source          `json:"sources"`
	Attributes map[string]string `json:"attributes"`
}

type distanceRequest struct {
	Distance *float64 `json:"distance"`
}

type playerJSON struct {
	ID          PlayerID    `json:"id"`
	ContainerID ContainerID `json:"container_id"`
	Type        string      `json:"type"`
	State       string      `json:"state"`
	Distance    *float64    `json:"distance"`
	SlotID      string      `json:"slot_id,omitempty"`
	Fallback    bool        `json:"fallback"`
	Placeholder bool        `json:"placeholder"`
	ResumeTime  float64     `json:"resume_time"`
}

type layoutJSON struct {
	Granted bool   `json:"granted"`
	SlotID  string `json:"slot_id,omitempty"`
	Ready   bool   `json:"ready"`
	Stale   bool   `json:"stale"`
	Error   string `json:"error,omitempty"`
}

type errorRequest struct {
	Message string `json:"message"`
}

// CreateContainer handles POST /containers.
func (h *Handler) CreateContainer(w http.ResponseWriter, r *http.Request) {
	id := h.svc.CreateContainer()
	h.writeJSON(w, http.StatusCreated, createContainerResponse{ContainerID: id})
}

// DeleteContainer handles DELETE /containers/{container_id}.
func (h *Handler) DeleteContainer(w http.ResponseWriter, r *http.Request) {
	id := containerParam(r)
	if err := h.svc.DeleteContainer(id); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetPool handles GET /containers/{container_id}/pool.
func (h *Handler) GetPool(w http.ResponseWriter, r *http.Request) {
	st, err := h.svc.PoolStats(containerParam(r))
	if err != nil {
		h.writeError(w, err)
		return
	}

	out := poolJSON{
		ContainerID: st.Container,
		Blessed:     st.Blessed,
		Closed:      st.Closed,
		Types:       make(map[string]typeStatsJSON, len(st.Types)),
	}
	for t, ts := range st.Types {
		tj := typeStatsJSON{Capacity: ts.Capacity, Free: ts.Free, Allocated: []allocatedJSON{}}
		for _, a := range ts.Allocated {
			tj.Allocated = append(tj.Allocated, allocatedJSON{
				ConsumerID: a.ConsumerID,
				Distance:   DistanceOrNil(a.Distance),
				SlotID:     a.SlotID,
			})
		}
		out.Types[t.String()] = tj
	}
	h.writeJSON(w, http.StatusOK, out)
}

// GetStats handles GET /stats.
func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	if h.counters == nil {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	c, err := h.counters.TotalCounts(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, statsJSON{Events: countersView(c)})
}

// GetContainerStats handles GET /containers/{container_id}/stats. Only live
// containers have counters.
func (h *Handler) GetContainerStats(w http.ResponseWriter, r *http.Request) {
	id := containerParam(r)
	if h.counters == nil {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	if _, err := h.svc.PoolStats(id); err != nil {
		h.writeError(w, err)
		return
	}
	c, err := h.counters.ContainerCounts(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, statsJSON{ContainerID: id, Events: countersView(c)})
}

// Bless handles POST /containers/{container_id}/bless. The request is the
// user gesture; with ?wait=true the response waits for the blessing.
func (h *Handler) Bless(w http.ResponseWriter, r *http.Request) {
	id := containerParam(r)
	ctx := WithUserGesture(context.WithoutCancel(r.Context()))

	f, err := h.svc.Bless(ctx, id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if !wantWait(r) {
		w.WriteHeader(http.StatusAccepted)
		return
	}

	waitCtx, cancel := context.WithTimeout(r.Context(), layoutWaitTimeout)
	defer cancel()
	if err := f.Await(waitCtx); err != nil {
		h.log.Warn("bless wait failed", slog.String("container", string(id)), slog.String("error", err.Error()))
		w.WriteHeader(http.StatusGatewayTimeout)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]bool{"blessed": true})
}

// SetVisible handles POST /containers/{container_id}/visible.
func (h *Handler) SetVisible(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.SetVisible(containerParam(r)); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RegisterPlayer handles POST /containers/{container_id}/players.
// Body: { "id": "p1", "type": "video", "distance": 0, "sources": [...] }.
// A null or missing distance means the player is detached.
func (h *Handler) RegisterPlayer(w http.ResponseWriter, r *http.Request) {
	id := containerParam(r)

	var req playerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.log.Debug("invalid player body", slog.String("error", err.Error()))
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	t, err := ParseMediaType(req.Type)
	if err != nil || req.ID == "" {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	p, err := h.svc.RegisterPlayer(id, PlayerSpec{
		ID:         req.ID,
		Type:       t,
		Distance:   distanceValue(req.Distance),
		Sources:    req.Sources,
		Attributes: req.Attributes,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.log.Debug("player registered",
		slog.String("container", string(id)),
		slog.String("player", string(req.ID)),
		slog.String("type", t.String()))
	h.writeJSON(w, http.StatusCreated, playerView(p))
}

// GetPlayer handles GET /containers/{container_id}/players/{player_id}.
func (h *Handler) GetPlayer(w http.ResponseWriter, r *http.Request) {
	p, err := h.svc.GetPlayer(containerParam(r), playerParam(r))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, playerView(p))
}

// DestroyPlayer handles DELETE /containers/{container_id}/players/{player_id}.
func (h *Handler) DestroyPlayer(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.DestroyPlayer(containerParam(r), playerParam(r)); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SetDistance handles PUT /containers/{container_id}/players/{player_id}/distance.
func (h *Handler) SetDistance(w http.ResponseWriter, r *http.Request) {
	var req distanceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	if err := h.svc.SetDistance(containerParam(r), playerParam(r), distanceValue(req.Distance)); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Layout handles POST /containers/{container_id}/players/{player_id}/layout.
// With ?wait=true the response waits for the readiness to complete.
func (h *Handler) Layout(w http.ResponseWriter, r *http.Request) {
	id, pid := containerParam(r), playerParam(r)

	ready, err := h.svc.Layout(id, pid)
	if err != nil {
		h.writeError(w, err)
		return
	}

	out := layoutJSON{Granted: ready.Granted(), SlotID: ready.SlotID()}
	if wantWait(r) {
		waitCtx, cancel := context.WithTimeout(r.Context(), layoutWaitTimeout)
		defer cancel()
		if err := ready.Await(waitCtx); err != nil {
			out.Error = err.Error()
			if errors.Is(err, context.DeadlineExceeded) {
				h.writeJSON(w, http.StatusGatewayTimeout, out)
				return
			}
			h.log.Info("player failed to load",
				slog.String("container", string(id)),
				slog.String("player", string(pid)),
				slog.String("error", err.Error()))
			h.writeJSON(w, http.StatusUnprocessableEntity, out)
			return
		}
	}
	out.Ready = ready.IsComplete()
	out.Stale = ready.Stale()
	h.writeJSON(w, http.StatusOK, out)
}

// Suspend handles POST /containers/{container_id}/players/{player_id}/suspend.
func (h *Handler) Suspend(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Suspend(containerParam(r), playerParam(r)); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Play handles POST /containers/{container_id}/players/{player_id}/play.
// ?gesture=true marks the call as issued from a user-input handler.
func (h *Handler) Play(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if g, _ := strconv.ParseBool(r.URL.Query().Get("gesture")); g {
		ctx = WithUserGesture(ctx)
	}
	if err := h.svc.Play(ctx, containerParam(r), playerParam(r)); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SignalError handles POST /containers/{container_id}/players/{player_id}/error.
func (h *Handler) SignalError(w http.ResponseWriter, r *http.Request) {
	var req errorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Message == "" {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	if err := h.svc.SignalError(containerParam(r), playerParam(r), errors.New(req.Message)); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) playerAction(fn func(ContainerID, PlayerID) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := fn(containerParam(r), playerParam(r)); err != nil {
			h.writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrContainerNotFound), errors.Is(err, ErrPlayerNotFound):
		w.WriteHeader(http.StatusNotFound)
	case errors.Is(err, ErrPlayerExists),
		errors.Is(err, ErrInvalidState),
		errors.Is(err, ErrNotBuilt),
		errors.Is(err, ErrDestroyed),
		errors.Is(err, ErrPoolClosed):
		h.writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
	default:
		h.log.Error("request failed", slog.String("error", err.Error()))
		w.WriteHeader(http.StatusInternalServerError)
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.log.Debug("encode response", slog.String("error", err.Error()))
	}
}

func playerView(p *Player) playerJSON {
	b := p.Binding
	out := playerJSON{
		ID:          p.ID,
		ContainerID: p.Container,
		Type:        b.Type().String(),
		State:       b.State().String(),
		Distance:    DistanceOrNil(p.Distance()),
		Fallback:    b.Fallback(),
		Placeholder: b.ShowingPlaceholder(),
		ResumeTime:  b.ResumeTime(),
	}
	if slot := b.Resource(); slot != nil {
		out.SlotID = slot.ID()
	}
	return out
}

func countersView(c Counters) map[string]int64 {
	out := make(map[string]int64, len(c))
	for k, v := range c {
		out[string(k)] = v
	}
	return out
}

func containerParam(r *http.Request) ContainerID {
	return ContainerID(chi.URLParam(r, "container_id"))
}

func playerParam(r *http.Request) PlayerID {
	return PlayerID(chi.URLParam(r, "player_id"))
}

func wantWait(r *http.Request) bool {
	v, _ := strconv.ParseBool(r.URL.Query().Get("wait"))
	return v
}

func distanceValue(d *float64) float64 {
	if d == nil {
		return math.Inf(1)
	}
	return *d
}
