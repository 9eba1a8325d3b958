// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"

	"github.com/hitoshi/wdblog/internal/model"
)

// TrackEventRepository は解析イベントの永続化インターフェース。
type TrackEventRepository interface {
	// Create は解析イベントを1件保存する。
	Create(ctx context.Context, event *model.TrackEvent) error
}
