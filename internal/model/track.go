package model

import "time"

// TrackEvent は /api/track-data に送られた解析イベントを表す。
type TrackEvent struct {
	ID         string
	Data       string
	RemoteAddr string
	CreatedAt  time.Time
}
