// Package kvstore は認証トークンの永続化に使う文字列キーバリューストアを提供する。
// Cookie（サーバーから見える）とローカルストア（クライアントのみ）の両方を同じ形で扱う。
package kvstore

import "sync"

// Memory はプロセス内メモリのストア。静的生成やテストで使う。
type Memory struct {
	mu   sync.RWMutex
	data map[string]string
}

// NewMemory は空のMemoryを生成する。
func NewMemory() *Memory {
	return &Memory{data: make(map[string]string)}
}

// Get は値を返す。
func (m *Memory) Get(key string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	return v, ok
}

// Set は値を保存する。
func (m *Memory) Set(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

// Remove は値を削除する。存在しないキーでもエラーにしない。
func (m *Memory) Remove(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}
