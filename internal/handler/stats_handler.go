// internal/handler/stats_handler.go
package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/unclebandit/venue-broadcast/internal/model"
	"github.com/unclebandit/venue-broadcast/internal/service"
)

type StatsAggregator interface {
	Aggregate(ctx context.Context, window model.StatsWindow) (*model.StatsSnapshot, error)
}

// StatsHandler serves delivery statistics
type StatsHandler struct {
	Service StatsAggregator
	Log     *logrus.Entry
}

type statsResponse struct {
	Window       model.StatsWindow `json:"window"`
	Total        int               `json:"total"`
	Sent         int               `json:"sent"`
	Delivered    int               `json:"delivered"`
	Bounced      int               `json:"bounced"`
	Failed       int               `json:"failed"`
	Pending      int               `json:"pending"`
	Today        int               `json:"today"`
	ThisWeek     int               `json:"thisWeek"`
	ThisMonth    int               `json:"thisMonth"`
	DeliveryRate float64           `json:"deliveryRate"`
	FailureRate  float64           `json:"failureRate"`
}

// GetStatsHandler returns the ledger snapshot for ?window=today|week|month|all
func (h *StatsHandler) GetStatsHandler(w http.ResponseWriter, r *http.Request) {
	window, ok := model.ParseStatsWindow(r.URL.Query().Get("window"))
	if !ok {
		http.Error(w, "invalid window, expected today, week, month or all", http.StatusBadRequest)
		return
	}

	snap, err := h.Service.Aggregate(r.Context(), window)
	if err != nil {
		if h.Log != nil {
			h.Log.WithError(err).Error("failed to aggregate delivery stats")
		}
		http.Error(w, "failed to fetch delivery stats", http.StatusInternalServerError)
		return
	}

	resp := statsResponse{
		Window:       snap.Window,
		Total:        snap.Total,
		Sent:         snap.Sent,
		Delivered:    snap.Delivered,
		Bounced:      snap.Bounced,
		Failed:       snap.Failed,
		Pending:      snap.Pending,
		Today:        snap.Today,
		ThisWeek:     snap.ThisWeek,
		ThisMonth:    snap.ThisMonth,
		DeliveryRate: service.Rate(snap.Delivered, snap.Sent),
		FailureRate:  service.Rate(snap.Failed+snap.Bounced, snap.Total),
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}
