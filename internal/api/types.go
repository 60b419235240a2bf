package api

import "portshare/internal/model"

// StatsResponse is returned by GET /api/stats and POST /api/reset.
type StatsResponse = model.Stats

// HistoryResponse is returned by GET /api/history, oldest source first.
type HistoryResponse = []model.CaptureEvent

// CaptureResponse acknowledges a submission on POST /capture.
type CaptureResponse struct {
	ID    string `json:"id"`
	Count uint64 `json:"count"`
}

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Error string `json:"error"`
}
