package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/quantrel/lixifeed/internal/advisor"
	"github.com/quantrel/lixifeed/internal/market"
	"github.com/quantrel/lixifeed/internal/source"
	"github.com/quantrel/lixifeed/internal/store"
	"github.com/quantrel/lixifeed/pkg/logger"
)

// defaultWindowLimit caps history responses when no limit is given.
const defaultWindowLimit = 20

// FeedHandler handles feed API endpoints: controller status, window
// history and the advisor trigger.
type FeedHandler struct {
	controller  *source.Controller
	advisor     *advisor.Client
	windowStore *store.WindowStore // nil when persistence is disabled
	logger      *logger.Logger
}

// NewFeedHandler creates a new feed handler.
func NewFeedHandler(controller *source.Controller, advisorClient *advisor.Client, windowStore *store.WindowStore, log *logger.Logger) *FeedHandler {
	return &FeedHandler{
		controller:  controller,
		advisor:     advisorClient,
		windowStore: windowStore,
		logger:      log,
	}
}

// GetStatus returns the controller snapshot
// GET /api/status
func (h *FeedHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.controller.Status())
}

// WindowResponse is one completed window without its raw ticks.
type WindowResponse struct {
	ID          string               `json:"id"`
	Symbol      string               `json:"symbol"`
	TickCount   int                  `json:"tick_count"`
	MeanMid     float64              `json:"mean_mid"`
	Features    market.FeatureVector `json:"features"`
	Lixi        float64              `json:"lixi"`
	Label       market.Label         `json:"label"`
	Ratio       float64              `json:"ratio"`
	CompletedAt string               `json:"completed_at"`
}

func toWindowResponse(win *market.TickWindow) WindowResponse {
	return WindowResponse{
		ID:          win.ID,
		Symbol:      win.Symbol,
		TickCount:   len(win.Ticks),
		MeanMid:     win.MeanMid,
		Features:    win.Features,
		Lixi:        win.Lixi,
		Label:       win.Label,
		Ratio:       win.Ratio,
		CompletedAt: win.Timestamp.UTC().Format("2006-01-02T15:04:05.000Z07:00"),
	}
}

// GetWindows returns recent completed windows from the in-memory history
// GET /api/windows?limit=20
func (h *FeedHandler) GetWindows(w http.ResponseWriter, r *http.Request) {
	limit := parseLimit(r, defaultWindowLimit)

	windows := h.controller.History().Recent(limit)
	result := make([]WindowResponse, len(windows))
	for i, win := range windows {
		result[i] = toWindowResponse(win)
	}

	respondJSON(w, http.StatusOK, result)
}

// GetLatestWindow returns the most recent completed window
// GET /api/windows/latest
func (h *FeedHandler) GetLatestWindow(w http.ResponseWriter, r *http.Request) {
	latest := h.controller.History().Latest()
	if latest == nil {
		respondError(w, http.StatusNotFound, "No completed window yet")
		return
	}

	respondJSON(w, http.StatusOK, toWindowResponse(latest))
}

// GetPersistedWindows returns persisted windows for a symbol
// GET /api/windows/history?symbol=SPY&limit=20
func (h *FeedHandler) GetPersistedWindows(w http.ResponseWriter, r *http.Request) {
	if h.windowStore == nil {
		respondError(w, http.StatusServiceUnavailable, "Window persistence is disabled")
		return
	}

	symbol := r.URL.Query().Get("symbol")
	if symbol == "" {
		symbol = h.controller.Symbol()
	}
	if symbol == "" {
		respondError(w, http.StatusBadRequest, "symbol is required")
		return
	}

	windows, err := h.windowStore.RecentBySymbol(r.Context(), symbol, parseLimit(r, defaultWindowLimit))
	if err != nil {
		h.logger.WithError(err).Error("Failed to query persisted windows")
		respondError(w, http.StatusInternalServerError, "Failed to retrieve windows")
		return
	}

	respondJSON(w, http.StatusOK, windows)
}

// AdviseResponse carries the collaborator's recommendation.
type AdviseResponse struct {
	Symbol         string `json:"symbol"`
	Windows        int    `json:"windows"`
	Recommendation string `json:"recommendation"`
}

// Advise sends the recent window digests to the analysis collaborator
// POST /api/advise
func (h *FeedHandler) Advise(w http.ResponseWriter, r *http.Request) {
	if h.advisor == nil || !h.advisor.Enabled() {
		respondError(w, http.StatusServiceUnavailable, "Advisor is not configured")
		return
	}

	windows := h.controller.History().Recent(h.advisor.WindowCount())
	if len(windows) == 0 {
		respondError(w, http.StatusNotFound, "No completed window yet")
		return
	}

	symbol := h.controller.Symbol()
	recommendation, err := h.advisor.Advise(r.Context(), symbol, windows)
	if err != nil {
		h.logger.WithError(err).Error("Advisor request failed")
		respondError(w, http.StatusBadGateway, "Advisor request failed")
		return
	}

	respondJSON(w, http.StatusOK, AdviseResponse{
		Symbol:         symbol,
		Windows:        len(windows),
		Recommendation: recommendation,
	})
}

// SwitchInstrumentRequest retargets the feed at another instrument.
type SwitchInstrumentRequest struct {
	Symbol string `json:"symbol"`
	Source string `json:"source"` // LIVE, POLLING or SYNTHETIC; default SYNTHETIC
}

// SwitchInstrument switches the tracked instrument and restarts the feed
// POST /api/instrument
func (h *FeedHandler) SwitchInstrument(w http.ResponseWriter, r *http.Request) {
	var req SwitchInstrumentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	req.Symbol = strings.ToUpper(strings.TrimSpace(req.Symbol))
	if req.Symbol == "" {
		respondError(w, http.StatusBadRequest, "symbol is required")
		return
	}

	kind := source.KindSynthetic
	if req.Source != "" {
		switch source.Kind(strings.ToUpper(req.Source)) {
		case source.KindLive:
			kind = source.KindLive
		case source.KindPolling:
			kind = source.KindPolling
		case source.KindSynthetic:
			kind = source.KindSynthetic
		default:
			respondError(w, http.StatusBadRequest, "source must be LIVE, POLLING or SYNTHETIC")
			return
		}
	}

	h.controller.SwitchInstrument(req.Symbol)

	if err := h.controller.Start(r.Context(), req.Symbol, kind); err != nil {
		h.logger.WithError(err).WithFields(map[string]interface{}{
			"symbol": req.Symbol,
			"source": kind,
		}).Error("Failed to start feed after instrument switch")
		respondError(w, http.StatusBadGateway, "Failed to start feed: "+err.Error())
		return
	}

	respondJSON(w, http.StatusOK, h.controller.Status())
}

func parseLimit(r *http.Request, fallback int) int {
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if n, err := strconv.Atoi(limitStr); err == nil && n > 0 {
			return n
		}
	}
	return fallback
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{
		"error": message,
	})
}
