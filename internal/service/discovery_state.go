package service

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
)

// 持久化的抓取进度
const (
	PropPagesExplored = "discovery:pages-explored"
	PropTotalPages    = "discovery:total-pages"
)

// PropertyStore 键值属性存储
type PropertyStore interface {
	Get(ctx context.Context, key string) (string, bool, error)
	UpsertMany(ctx context.Context, values map[string]string) error
}

// Progress 抓取进度快照
type Progress struct {
	PagesExplored int `json:"pages_explored"`
	TotalPages    int `json:"total_pages"`
}

// Exhausted 所有页面是否都已抓取完毕，TotalPages 为 0 表示总页数未知
func (p Progress) Exhausted() bool {
	return p.TotalPages > 0 && p.PagesExplored >= p.TotalPages
}

// NextPage 下一次要抓取的页码
func (p Progress) NextPage() int {
	return p.PagesExplored + 1
}

// DiscoveryState 抓取游标。所有修改先写库再更新内存，
// 写操作持有互斥锁，读操作直接读原子快照
type DiscoveryState struct {
	mu       sync.Mutex
	store    PropertyStore
	snapshot atomic.Pointer[Progress]
}

// LoadDiscoveryState 从属性表恢复进度，缺失或无法解析的值按 0 处理
func LoadDiscoveryState(ctx context.Context, store PropertyStore) (*DiscoveryState, error) {
	explored, err := loadInt(ctx, store, PropPagesExplored)
	if err != nil {
		return nil, err
	}
	total, err := loadInt(ctx, store, PropTotalPages)
	if err != nil {
		return nil, err
	}

	s := &DiscoveryState{store: store}
	s.snapshot.Store(&Progress{PagesExplored: explored, TotalPages: total})
	return s, nil
}

func loadInt(ctx context.Context, store PropertyStore, key string) (int, error) {
	raw, ok, err := store.Get(ctx, key)
	if err != nil {
		return 0, storeError("读取抓取进度失败", err)
	}
	if !ok {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, nil
	}
	return v, nil
}

// Snapshot 当前进度，无锁读取
func (s *DiscoveryState) Snapshot() Progress {
	return *s.snapshot.Load()
}

// Advance 把游标推进到 page，并以上游返回的 totalPages 覆盖总页数。
// totalPages 为 0 表示上游目录为空，游标保持不动，下次仍请求同一页
func (s *DiscoveryState) Advance(ctx context.Context, page, totalPages int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if totalPages <= 0 {
		return nil
	}
	next := Progress{PagesExplored: page, TotalPages: totalPages}
	if next.PagesExplored > next.TotalPages {
		next.PagesExplored = next.TotalPages
	}
	return s.save(ctx, next)
}

// Skip 跳过当前页，只有还有剩余页面时才生效，返回是否跳过
func (s *DiscoveryState) Skip(ctx context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur := s.Snapshot()
	if cur.TotalPages <= cur.PagesExplored {
		return false, nil
	}
	next := Progress{PagesExplored: cur.PagesExplored + 1, TotalPages: cur.TotalPages}
	if err := s.save(ctx, next); err != nil {
		return false, err
	}
	return true, nil
}

// save 调用方需持有 mu
func (s *DiscoveryState) save(ctx context.Context, next Progress) error {
	err := s.store.UpsertMany(ctx, map[string]string{
		PropPagesExplored: strconv.Itoa(next.PagesExplored),
		PropTotalPages:    strconv.Itoa(next.TotalPages),
	})
	if err != nil {
		return storeError(fmt.Sprintf("保存抓取进度失败 (page=%d)", next.PagesExplored), err)
	}
	s.snapshot.Store(&next)
	return nil
}
