package tracking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/wdblog/internal/metrics"
	"github.com/hitoshi/wdblog/internal/model"
	"github.com/hitoshi/wdblog/internal/repository"
)

// maxDataLength はイベントデータの最大長。
const maxDataLength = 1024

var (
	// ErrEmptyData はイベントデータが空であることを表す。
	ErrEmptyData = errors.New("track data is empty")
	// ErrDataTooLong はイベントデータが長すぎることを表す。
	ErrDataTooLong = errors.New("track data is too long")
)

// Service は受信した解析イベントを記録する。
// repoがnilの場合はログ出力のみ行う。
type Service struct {
	repo    repository.TrackEventRepository
	logger  *slog.Logger
	metrics metrics.MetricsCollector
	now     func() time.Time
}

// NewService はServiceを生成する。
func NewService(repo repository.TrackEventRepository, logger *slog.Logger, collector metrics.MetricsCollector) *Service {
	if collector == nil {
		collector = metrics.Discard
	}
	return &Service{
		repo:    repo,
		logger:  logger,
		metrics: collector,
		now:     time.Now,
	}
}

// Record はイベントにIDと受信時刻を割り当てて保存する。
func (s *Service) Record(ctx context.Context, data, remoteAddr string) (*model.TrackEvent, error) {
	if data == "" {
		return nil, ErrEmptyData
	}
	if len(data) > maxDataLength {
		return nil, ErrDataTooLong
	}

	event := &model.TrackEvent{
		ID:         uuid.New().String(),
		Data:       data,
		RemoteAddr: remoteAddr,
		CreatedAt:  s.now().UTC(),
	}

	if s.repo != nil {
		if err := s.repo.Create(ctx, event); err != nil {
			s.logger.Error("解析イベントの保存に失敗しました",
				slog.String("event_id", event.ID),
				slog.String("error", err.Error()),
			)
			return nil, fmt.Errorf("failed to record track event: %w", err)
		}
	}

	s.metrics.RecordTrackEvent()
	s.logger.Info("解析イベントを受信しました",
		slog.String("event_id", event.ID),
		slog.String("data", event.Data),
	)
	return event, nil
}
