package store

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/hitoshi/wdblog/internal/model"
)

func TestFactory_New_BuildsIndependentContexts(t *testing.T) {
	var buf bytes.Buffer
	f := &Factory{Remote: &mockPostStore{}, Identity: &mockIdentity{}, Logger: newTestLogger(&buf)}

	rc1 := f.New(newRecordingKV(), nil)
	rc2 := f.New(newRecordingKV(), nil)

	if rc1.ID == "" || rc1.ID == rc2.ID {
		t.Errorf("RenderContext ID が一意でない: %q %q", rc1.ID, rc2.ID)
	}
	rc1.State.SetAll([]model.Post{{ID: "a1"}})
	if len(rc2.State.All()) != 0 {
		t.Error("レンダーコンテキスト間で状態が共有されている")
	}
}

func TestRenderContext_Bootstrap_LoadsOnce(t *testing.T) {
	remote := &mockPostStore{
		listFn: func(ctx context.Context) ([]model.Post, error) {
			return []model.Post{{ID: "a1", Fields: map[string]any{"title": "Hi"}}}, nil
		},
	}
	var buf bytes.Buffer
	f := &Factory{Remote: remote, Logger: newTestLogger(&buf)}
	rc := f.New(newRecordingKV(), nil)

	if err := rc.Bootstrap(context.Background()); err != nil {
		t.Fatalf("Bootstrap がエラーを返した: %v", err)
	}
	if err := rc.Bootstrap(context.Background()); err != nil {
		t.Fatalf("2回目の Bootstrap がエラーを返した: %v", err)
	}
	if remote.listCalls != 1 {
		t.Errorf("ListPosts 呼び出し回数 = %d, want 1", remote.listCalls)
	}
	if got := rc.State.All(); len(got) != 1 || got[0].ID != "a1" {
		t.Errorf("State = %+v", got)
	}
}

func TestRenderContext_Bootstrap_FailureIsPropagated(t *testing.T) {
	remote := &mockPostStore{
		listFn: func(ctx context.Context) ([]model.Post, error) {
			return nil, errors.New("firebase unavailable")
		},
	}
	var buf bytes.Buffer
	f := &Factory{Remote: remote, Logger: newTestLogger(&buf)}
	rc := f.New(newRecordingKV(), nil)

	err := rc.Bootstrap(context.Background())
	if !errors.Is(err, ErrBootstrap) {
		t.Fatalf("err = %v, want ErrBootstrap", err)
	}

	// 失敗後は再試行できる
	remote.listFn = nil
	if err := rc.Bootstrap(context.Background()); err != nil {
		t.Fatalf("再度の Bootstrap がエラーを返した: %v", err)
	}
	if remote.listCalls != 2 {
		t.Errorf("ListPosts 呼び出し回数 = %d, want 2", remote.listCalls)
	}
}
