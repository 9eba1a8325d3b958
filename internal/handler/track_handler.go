package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"

	"github.com/hitoshi/wdblog/internal/middleware"
	"github.com/hitoshi/wdblog/internal/model"
	"github.com/hitoshi/wdblog/internal/tracking"
)

// maxTrackBodySize はPOST /api/track-dataで読み取る最大バイト数。
const maxTrackBodySize = 4096

// TrackRecorder はトラッキングハンドラーが必要とするサービスインターフェース。
type TrackRecorder interface {
	Record(ctx context.Context, data, remoteAddr string) (*model.TrackEvent, error)
}

// TrackHandler は解析ビーコンの受信エンドポイント。
type TrackHandler struct {
	recorder TrackRecorder
	logger   *slog.Logger
}

// NewTrackHandler はTrackHandlerを生成する。
func NewTrackHandler(recorder TrackRecorder, logger *slog.Logger) *TrackHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &TrackHandler{recorder: recorder, logger: logger}
}

// trackResponse はPOST /api/track-dataのレスポンス。
type trackResponse struct {
	ID string `json:"id"`
}

// Track は解析イベントを受け取って記録する。
// POST /api/track-data
func (h *TrackHandler) Track(w http.ResponseWriter, r *http.Request) {
	var payload tracking.Payload
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxTrackBodySize)).Decode(&payload); err != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError("invalid JSON body"))
		return
	}

	event, err := h.recorder.Record(r.Context(), payload.Data, remoteHost(r.RemoteAddr))
	if err != nil {
		if errors.Is(err, tracking.ErrEmptyData) || errors.Is(err, tracking.ErrDataTooLong) {
			middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError(err.Error()))
			return
		}
		h.logger.Error("解析イベントの記録に失敗しました", slog.String("error", err.Error()))
		middleware.WriteInternalServerError(w)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(trackResponse{ID: event.ID})
}

// remoteHost はRemoteAddrからポートを除いたホスト部分を返す。
func remoteHost(addr string) string {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return host
}
