package tools

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ashureev/geek-intake/internal/domain"
	"github.com/ashureev/geek-intake/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeCatalog serves a fixed catalog and counts lookups. Methods that the
// tools never call are left to the embedded nil interface.
type fakeCatalog struct {
	store.CatalogStore

	listCalls atomic.Int32
	slugCalls atomic.Int32
	fail      error
	gate      chan struct{}
}

func (f *fakeCatalog) ListCategories(ctx context.Context) ([]domain.Category, error) {
	f.listCalls.Add(1)
	if f.gate != nil {
		<-f.gate
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if f.fail != nil {
		return nil, f.fail
	}
	return []domain.Category{
		{ID: "cat-1", Title: "Laptops", Slug: "laptops", SubCategories: []string{"sub-2", "sub-1"}},
		{ID: "cat-2", Title: "Cloud Service and Maintain", Slug: "cloud-service-and-maintain"},
	}, nil
}

func (f *fakeCatalog) GetCategoryBySlug(_ context.Context, slug string) (*domain.Category, error) {
	f.slugCalls.Add(1)
	if f.fail != nil {
		return nil, f.fail
	}
	if slug != "laptops" {
		return nil, domain.NewNotFoundError("category", slug)
	}
	return &domain.Category{ID: "cat-1", Title: "Laptops", Slug: "laptops", SubCategories: []string{"sub-2", "sub-1"}}, nil
}

func (f *fakeCatalog) ListSubcategoriesByIDs(_ context.Context, ids []string) ([]domain.Subcategory, error) {
	all := map[string]domain.Subcategory{
		"sub-1": {ID: "sub-1", Title: "Screen"},
		"sub-2": {ID: "sub-2", Title: "Battery"},
	}
	out := make([]domain.Subcategory, 0, len(ids))
	for _, id := range ids {
		if s, ok := all[id]; ok {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeCatalog) ListBrandsByCategory(_ context.Context, categoryID string) ([]domain.Brand, error) {
	if categoryID != "cat-1" {
		return nil, nil
	}
	return []domain.Brand{{ID: "b1", Name: "Dell"}, {ID: "b2", Name: "Lenovo"}}, nil
}

func toolByName(t *testing.T, c *Catalog, name string) interface {
	Execute(context.Context, json.RawMessage) (string, error)
} {
	t.Helper()
	for _, tl := range c.Tools() {
		if tl.Name() == name {
			return tl
		}
	}
	t.Fatalf("tool %q not registered", name)
	return nil
}

func TestToolsReturnJSONLists(t *testing.T) {
	c := NewCatalog(&fakeCatalog{}, 0, nil)
	ctx := context.Background()

	tests := []struct {
		tool string
		args string
		want string
	}{
		{tool: "get_categories", args: ``, want: `["Laptops","Cloud Service and Maintain"]`},
		{tool: "get_subcategories", args: `{"category_slug":"laptops"}`, want: `["Battery","Screen"]`},
		{tool: "get_subcategories", args: `{"category_slug":"  LAPTOPS "}`, want: `["Battery","Screen"]`},
		{tool: "get_subcategories", args: `{"category_slug":"phones"}`, want: `[]`},
		{tool: "get_brands", args: `{"category_slug":"laptops"}`, want: `["Dell","Lenovo"]`},
		{tool: "get_brands", args: `{"category_slug":"phones"}`, want: `[]`},
	}
	for _, tt := range tests {
		t.Run(tt.tool+" "+tt.args, func(t *testing.T) {
			got, err := toolByName(t, c, tt.tool).Execute(ctx, json.RawMessage(tt.args))
			require.NoError(t, err)
			assert.JSONEq(t, tt.want, got)
		})
	}
}

func TestToolsRejectEmptySlug(t *testing.T) {
	c := NewCatalog(&fakeCatalog{}, 0, nil)

	for _, name := range []string{"get_subcategories", "get_brands"} {
		_, err := toolByName(t, c, name).Execute(context.Background(), json.RawMessage(`{"category_slug":"  "}`))
		assert.True(t, domain.IsValidationError(err), "%s: %v", name, err)

		_, err = toolByName(t, c, name).Execute(context.Background(), json.RawMessage(`{not json`))
		assert.True(t, domain.IsValidationError(err), "%s: %v", name, err)
	}
}

func TestToolsSurfaceStorageFaults(t *testing.T) {
	fault := domain.StorageFault{Op: "list categories", Err: errors.New("disk I/O error")}
	c := NewCatalog(&fakeCatalog{fail: fault}, time.Minute, nil)

	_, err := c.Categories(context.Background())
	assert.True(t, domain.IsStorageFault(err))

	_, err = c.Subcategories(context.Background(), "laptops")
	assert.True(t, domain.IsStorageFault(err))
}

func TestCatalogCachesUntilTTL(t *testing.T) {
	f := &fakeCatalog{}
	c := NewCatalog(f, time.Minute, nil)
	now := time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC)
	c.cache.now = func() time.Time { return now }
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := c.Categories(ctx)
		require.NoError(t, err)
		_, err = c.Subcategories(ctx, "Laptops")
		require.NoError(t, err)
	}
	assert.Equal(t, int32(1), f.listCalls.Load())
	assert.Equal(t, int32(1), f.slugCalls.Load())

	now = now.Add(2 * time.Minute)
	_, err := c.Categories(ctx)
	require.NoError(t, err)
	assert.Equal(t, int32(2), f.listCalls.Load())

	c.Purge()
	_, err = c.Categories(ctx)
	require.NoError(t, err)
	assert.Equal(t, int32(3), f.listCalls.Load())
}

func TestCatalogWithoutTTLAlwaysLoads(t *testing.T) {
	f := &fakeCatalog{}
	c := NewCatalog(f, 0, nil)

	for i := 0; i < 3; i++ {
		_, err := c.Categories(context.Background())
		require.NoError(t, err)
	}
	assert.Equal(t, int32(3), f.listCalls.Load())
}

func TestCatalogCollapsesConcurrentMisses(t *testing.T) {
	f := &fakeCatalog{gate: make(chan struct{})}
	c := NewCatalog(f, time.Minute, nil)

	var wg sync.WaitGroup
	results := make([][]string, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], _ = c.Categories(context.Background())
		}(i)
	}

	// Let the first load start, then release it.
	require.Eventually(t, func() bool { return f.listCalls.Load() == 1 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(f.gate)
	wg.Wait()

	assert.Equal(t, int32(1), f.listCalls.Load())
	for _, r := range results {
		assert.Equal(t, []string{"Laptops", "Cloud Service and Maintain"}, r)
	}
}

func TestCatalogSweepsExpiredEntries(t *testing.T) {
	f := &fakeCatalog{}
	c := NewCatalog(f, time.Minute, nil)
	now := time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC)
	c.cache.now = func() time.Time { return now }
	ctx := context.Background()

	for _, slug := range []string{"drones", "toasters", "laptops"} {
		_, err := c.Brands(ctx, slug)
		require.NoError(t, err)
	}
	assert.Equal(t, 3, c.cache.size())

	now = now.Add(2 * time.Minute)
	_, err := c.Categories(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, c.cache.size())
}

func TestCatalogLoadSurvivesCancelledCaller(t *testing.T) {
	f := &fakeCatalog{gate: make(chan struct{})}
	c := NewCatalog(f, time.Minute, nil)

	first, cancel := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := c.Categories(first)
		firstErr <- err
	}()
	require.Eventually(t, func() bool { return f.listCalls.Load() == 1 }, time.Second, time.Millisecond)

	type result struct {
		titles []string
		err    error
	}
	second := make(chan result, 1)
	go func() {
		titles, err := c.Categories(context.Background())
		second <- result{titles, err}
	}()
	time.Sleep(20 * time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-firstErr, context.Canceled)

	close(f.gate)
	got := <-second
	require.NoError(t, got.err)
	assert.Equal(t, []string{"Laptops", "Cloud Service and Maintain"}, got.titles)
	assert.Equal(t, int32(1), f.listCalls.Load())
}
