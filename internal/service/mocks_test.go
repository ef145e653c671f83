package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/jmylchreest/pricewatch-api/internal/models"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// ========================================
// Mock UserRepository
// ========================================

type mockUserRepository struct {
	mu    sync.Mutex
	users map[string]*models.User
}

func newMockUserRepository() *mockUserRepository {
	return &mockUserRepository{users: make(map[string]*models.User)}
}

func (m *mockUserRepository) put(u *models.User) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[u.ID] = u
}

func (m *mockUserRepository) EnsureUser(ctx context.Context, id, email string) (*models.User, error) {
	m.mu.Lock()
	if _, ok := m.users[id]; !ok {
		m.users[id] = &models.User{ID: id, Email: email, CreatedAt: time.Now(), UpdatedAt: time.Now()}
	}
	m.mu.Unlock()
	return m.GetByID(ctx, id)
}

func (m *mockUserRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, nil
	}
	cp := *u
	return &cp, nil
}

func (m *mockUserRepository) ResetSearchQuota(ctx context.Context, id string, now time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok || !expiredAt(u.SearchLimitResetsAt, now) {
		return false, nil
	}
	u.SearchCount = 0
	u.SearchLimitResetsAt = nil
	return true, nil
}

func (m *mockUserRepository) IncrementSearchCount(ctx context.Context, id string, limit int, window time.Duration, now time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return false, nil
	}
	if expiredAt(u.SearchLimitResetsAt, now) {
		u.SearchCount = 0
		u.SearchLimitResetsAt = nil
	}
	if u.SearchCount >= limit {
		return false, nil
	}
	if u.SearchCount == 0 || u.SearchLimitResetsAt == nil {
		resetsAt := now.Add(window).Truncate(time.Second)
		u.SearchLimitResetsAt = &resetsAt
	}
	u.SearchCount++
	return true, nil
}

func (m *mockUserRepository) ReleaseSearch(ctx context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok || u.SearchCount == 0 {
		return false, nil
	}
	u.SearchCount--
	return true, nil
}

// expiredAt compares at the second precision the database stores.
func expiredAt(resetsAt *time.Time, now time.Time) bool {
	return resetsAt != nil && !resetsAt.After(now.Truncate(time.Second))
}

// ========================================
// Mock SearchRepository
// ========================================

type mockSearchRepository struct {
	mu        sync.Mutex
	searches  map[string]*models.Search
	createErr error
}

func newMockSearchRepository() *mockSearchRepository {
	return &mockSearchRepository{searches: make(map[string]*models.Search)}
}

func (m *mockSearchRepository) Create(ctx context.Context, s *models.Search) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	cp := *s
	m.searches[s.ID] = &cp
	return nil
}

func (m *mockSearchRepository) GetByID(ctx context.Context, id string) (*models.Search, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.searches[id]; ok {
		cp := *s
		return &cp, nil
	}
	return nil, nil
}

func (m *mockSearchRepository) FindRecent(ctx context.Context, userID, normalizedQuery string, since time.Time) (*models.Search, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var best *models.Search
	for _, s := range m.searches {
		if s.UserID != userID || s.NormalizedQuery != normalizedQuery || s.CreatedAt.Before(since) {
			continue
		}
		if best == nil || s.CreatedAt.After(best.CreatedAt) {
			best = s
		}
	}
	if best == nil {
		return nil, nil
	}
	cp := *best
	return &cp, nil
}

func (m *mockSearchRepository) ListByUser(ctx context.Context, userID string, limit int) ([]*models.Search, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Search
	for _, s := range m.searches {
		if s.UserID == userID {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *mockSearchRepository) SetArchiveKey(ctx context.Context, id, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.searches[id]; ok {
		s.ArchiveKey = key
	}
	return nil
}

func (m *mockSearchRepository) DeleteOlderThan(ctx context.Context, before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, s := range m.searches {
		if s.CreatedAt.Before(before) {
			delete(m.searches, id)
			n++
		}
	}
	return n, nil
}

func (m *mockSearchRepository) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.searches)
}

// ========================================
// Mock TrackedProductRepository / PriceHistoryRepository
// ========================================

type mockTrackedProductRepository struct {
	mu       sync.Mutex
	products map[string]*models.TrackedProduct
	history  *mockPriceHistoryRepository
}

func newMockTrackedProductRepository(history *mockPriceHistoryRepository) *mockTrackedProductRepository {
	return &mockTrackedProductRepository{products: make(map[string]*models.TrackedProduct), history: history}
}

func (m *mockTrackedProductRepository) Create(ctx context.Context, p *models.TrackedProduct) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *p
	m.products[p.ID] = &cp
	return nil
}

func (m *mockTrackedProductRepository) GetByID(ctx context.Context, id string) (*models.TrackedProduct, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.products[id]; ok {
		cp := *p
		return &cp, nil
	}
	return nil, nil
}

func (m *mockTrackedProductRepository) ListByUser(ctx context.Context, userID string) ([]*models.TrackedProduct, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.TrackedProduct
	for _, p := range m.products {
		if p.UserID == userID {
			cp := *p
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *mockTrackedProductRepository) Update(ctx context.Context, p *models.TrackedProduct) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.products[p.ID]; !ok {
		return errors.New("not found")
	}
	cp := *p
	m.products[p.ID] = &cp
	return nil
}

func (m *mockTrackedProductRepository) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	delete(m.products, id)
	m.mu.Unlock()
	if m.history != nil {
		m.history.deleteProduct(id)
	}
	return nil
}

func (m *mockTrackedProductRepository) ClaimNextDue(ctx context.Context, now, leaseUntil time.Time) (*models.TrackedProduct, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var due *models.TrackedProduct
	for _, p := range m.products {
		if p.NextCheckAt.After(now) {
			continue
		}
		if due == nil || p.NextCheckAt.Before(due.NextCheckAt) {
			due = p
		}
	}
	if due == nil {
		return nil, nil
	}
	due.NextCheckAt = leaseUntil
	cp := *due
	return &cp, nil
}

type mockPriceHistoryRepository struct {
	mu     sync.Mutex
	points []*models.PricePoint
}

func (m *mockPriceHistoryRepository) Create(ctx context.Context, p *models.PricePoint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *p
	m.points = append(m.points, &cp)
	return nil
}

func (m *mockPriceHistoryRepository) ListByProduct(ctx context.Context, id string, limit int) ([]*models.PricePoint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.PricePoint
	for _, p := range m.points {
		if p.TrackedProductID == id {
			out = append(out, p)
		}
	}
	if len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func (m *mockPriceHistoryRepository) deleteProduct(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.points[:0]
	for _, p := range m.points {
		if p.TrackedProductID != id {
			kept = append(kept, p)
		}
	}
	m.points = kept
}

// ========================================
// Upstream fakes
// ========================================

// scriptedCaller answers prompts in order; the last reply repeats.
type scriptedCaller struct {
	mu      sync.Mutex
	replies []callerReply
	calls   int
	prompts []string
}

type callerReply struct {
	text string
	err  error
}

func (c *scriptedCaller) Call(ctx context.Context, prompt string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.prompts = append(c.prompts, prompt)
	i := min(c.calls, len(c.replies)-1)
	c.calls++
	return c.replies[i].text, c.replies[i].err
}

func replyText(text string) callerReply { return callerReply{text: text} }
func replyErr(err error) callerReply    { return callerReply{err: err} }

// fakeIntel is a ProductIntelligence with fixed answers.
type fakeIntel struct {
	listings    []models.ProductListing
	analysisErr error
	// block, when set, holds product search until closed.
	block chan struct{}

	mu    sync.Mutex
	calls []string
}

func (f *fakeIntel) record(op string) {
	f.mu.Lock()
	f.calls = append(f.calls, op)
	f.mu.Unlock()
}

func (f *fakeIntel) SearchAcrossPlatforms(ctx context.Context, query string) []models.ProductListing {
	f.record("search")
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
		}
	}
	return f.listings
}

func (f *fakeIntel) AnalyzeMarket(ctx context.Context, listings []models.ProductListing) (*models.MarketAnalysis, error) {
	f.record("analyze")
	if f.analysisErr != nil {
		return nil, f.analysisErr
	}
	return fallbackAnalysis(listings), nil
}

func (f *fakeIntel) PredictPriceTrends(ctx context.Context, listings []models.ProductListing, history []models.PricePoint) *models.PricePrediction {
	f.record("predict")
	return fallbackPrediction(listings)
}

// fakeResolver resolves URLs present in its map.
type fakeResolver struct {
	mu       sync.Mutex
	listings map[string]*models.ProductListing
	calls    int
}

func (f *fakeResolver) FetchByURL(ctx context.Context, rawURL string) *models.ProductListing {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if l, ok := f.listings[rawURL]; ok {
		cp := *l
		return &cp
	}
	return nil
}

func testListings() []models.ProductListing {
	return []models.ProductListing{
		{Title: "Logitech M331", Price: 1299, Availability: models.InStock, Platform: models.PlatformAmazon, SourceURL: "https://www.amazon.in/dp/1"},
		{Title: "Logitech M331 Silent", Price: 1599, Availability: models.InStock, Platform: models.PlatformFlipkart, SourceURL: "https://www.flipkart.com/p/2"},
	}
}
