// Package registration はメール認証付きサインアップのワークフローを提供する。
//
// 仮登録はメモリ上に保持し、認証コードの検証に成功した時点で初めて
// usersテーブルへ永続化する。仮登録エントリはTTL経過後にスイーパーが回収する。
package registration

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/books2digital/backend/internal/model"
)

// Store は仮登録エントリの保管インターフェース。
type Store interface {
	// Put はエントリを保存する。同一IDのエントリは上書きする。
	Put(entry *model.PendingRegistration)
	// Get は指定IDのエントリを取得する。見つからない場合はnilを返す。
	Get(registrationID string) *model.PendingRegistration
	// Delete は指定IDのエントリを削除する。
	Delete(registrationID string)
	// Sweep は発行からttlを超過したエントリを全て削除し、削除数を返す。
	Sweep(now time.Time, ttl time.Duration) int
}

// MemoryStore はメモリ上のStore実装。プロセス再起動で内容は失われる。
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]*model.PendingRegistration
}

// NewMemoryStore はMemoryStoreを生成する。
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]*model.PendingRegistration),
	}
}

// Put はエントリを保存する。
func (s *MemoryStore) Put(entry *model.PendingRegistration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := *entry
	s.entries[entry.RegistrationID] = &copied
}

// Get は指定IDのエントリを取得する。
// 呼び出し側の変更が内部状態に波及しないようコピーを返す。
// 変更を反映するには再度Putすること。
func (s *MemoryStore) Get(registrationID string) *model.PendingRegistration {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[registrationID]
	if !ok {
		return nil
	}

	copied := *entry
	return &copied
}

// Delete は指定IDのエントリを削除する。
func (s *MemoryStore) Delete(registrationID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.entries, registrationID)
}

// Sweep は発行からttlを超過したエントリを全て削除し、削除数を返す。
func (s *MemoryStore) Sweep(now time.Time, ttl time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, entry := range s.entries {
		if now.Sub(entry.CodeIssuedAt) > ttl {
			delete(s.entries, id)
			removed++
		}
	}
	return removed
}

// Len は保持中のエントリ数を返す。
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.entries)
}

var _ Store = (*MemoryStore)(nil)

// Sweeper は期限切れの仮登録エントリを定期的に回収する。
type Sweeper struct {
	store    Store
	ttl      time.Duration
	interval time.Duration
	logger   *slog.Logger
}

// NewSweeper はSweeperを生成する。
func NewSweeper(store Store, ttl, interval time.Duration, logger *slog.Logger) *Sweeper {
	return &Sweeper{
		store:    store,
		ttl:      ttl,
		interval: interval,
		logger:   logger,
	}
}

// Run はctxがキャンセルされるまで定期的にSweepを実行する。
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("registration sweeper started",
		slog.Duration("interval", s.interval),
		slog.Duration("ttl", s.ttl),
	)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("registration sweeper stopped")
			return
		case now := <-ticker.C:
			removed := s.store.Sweep(now, s.ttl)
			if removed > 0 {
				s.logger.Info("expired pending registrations removed",
					slog.Int("count", removed),
				)
			}
		}
	}
}
