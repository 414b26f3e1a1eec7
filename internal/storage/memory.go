package storage

import (
	"context"
	"math"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/spherical-ai/bess-advisor/internal/domain"
)

// MemoryCatalog is an in-process SpecificationStore. Rows keep insertion
// order.
type MemoryCatalog struct {
	mu   sync.RWMutex
	rows []domain.SpecificationRecord
}

var _ SpecificationStore = (*MemoryCatalog)(nil)

// NewMemoryCatalog creates a catalog seeded with records, in order.
func NewMemoryCatalog(records ...domain.SpecificationRecord) *MemoryCatalog {
	c := &MemoryCatalog{}
	for i := range records {
		_ = c.Create(context.Background(), &records[i])
	}
	return c
}

// Create appends rec, assigning an ID when it has none.
func (c *MemoryCatalog) Create(ctx context.Context, rec *domain.SpecificationRecord) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	rec.CreatedAt = now()
	rec.UpdatedAt = rec.CreatedAt
	c.rows = append(c.rows, clone(*rec))
	return nil
}

// Replace overwrites an existing row in place.
func (c *MemoryCatalog) Replace(ctx context.Context, rec *domain.SpecificationRecord) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	i := c.index(rec.ID)
	if i < 0 {
		return ErrNotFound
	}
	rec.CreatedAt = c.rows[i].CreatedAt
	rec.UpdatedAt = now()
	c.rows[i] = clone(*rec)
	return nil
}

// GetByID retrieves a row by ID.
func (c *MemoryCatalog) GetByID(ctx context.Context, id uuid.UUID) (*domain.SpecificationRecord, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	i := c.index(id)
	if i < 0 {
		return nil, ErrNotFound
	}
	rec := clone(c.rows[i])
	return &rec, nil
}

// List returns a page of rows in insertion order.
func (c *MemoryCatalog) List(ctx context.Context, limit, offset int) ([]domain.SpecificationRecord, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if limit <= 0 {
		limit = 100
	}
	if offset >= len(c.rows) {
		return nil, nil
	}
	end := min(offset+limit, len(c.rows))

	out := make([]domain.SpecificationRecord, 0, end-offset)
	for _, row := range c.rows[offset:end] {
		out = append(out, clone(row))
	}
	return out, nil
}

// ListProcessed returns every processed row in insertion order.
func (c *MemoryCatalog) ListProcessed(ctx context.Context) ([]domain.SpecificationRecord, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var out []domain.SpecificationRecord
	for _, row := range c.rows {
		if row.Processed {
			out = append(out, clone(row))
		}
	}
	return out, nil
}

// Delete removes a row. Deleting a missing row is not an error.
func (c *MemoryCatalog) Delete(ctx context.Context, id uuid.UUID) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if i := c.index(id); i >= 0 {
		c.rows = append(c.rows[:i], c.rows[i+1:]...)
	}
	return nil
}

// FindSimilar applies the same window, filters and ordering as the SQL
// repository.
func (c *MemoryCatalog) FindSimilar(ctx context.Context, q SimilarQuery) ([]domain.SpecificationRecord, error) {
	processed, _ := c.ListProcessed(ctx)

	type candidate struct {
		rec      domain.SpecificationRecord
		distance float64
	}
	var matches []candidate

	for _, rec := range processed {
		d := 0.0
		ok := true
		for _, w := range []struct{ target, value *float64 }{
			{q.PowerMW, rec.NominalPowerMW},
			{q.EnergyMWh, rec.NominalEnergyMWh},
		} {
			if w.target == nil || *w.target <= 0 {
				continue
			}
			if w.value == nil ||
				*w.value < *w.target*(1-SimilarWindow) || *w.value > *w.target*(1+SimilarWindow) {
				ok = false
				break
			}
			d += math.Abs(*w.value-*w.target) / *w.target
		}
		if !ok {
			continue
		}
		if chem := strings.ToLower(strings.TrimSpace(q.Chemistry)); chem != "" &&
			!strings.Contains(strings.ToLower(rec.Chemistry), chem) {
			continue
		}
		if app := strings.ToLower(strings.TrimSpace(q.Application)); app != "" &&
			!strings.Contains(strings.ToLower(strings.Join(rec.ApplicationTypes, ",")), app) {
			continue
		}
		matches = append(matches, candidate{rec: rec, distance: d})
	}

	sort.SliceStable(matches, func(i, j int) bool { return matches[i].distance < matches[j].distance })

	limit := q.Limit
	if limit <= 0 {
		limit = 10
	}
	out := make([]domain.SpecificationRecord, 0, min(limit, len(matches)))
	for i := 0; i < len(matches) && i < limit; i++ {
		out = append(out, matches[i].rec)
	}
	return out, nil
}

func (c *MemoryCatalog) index(id uuid.UUID) int {
	for i, row := range c.rows {
		if row.ID == id {
			return i
		}
	}
	return -1
}

func clone(rec domain.SpecificationRecord) domain.SpecificationRecord {
	rec.ApplicationTypes = append([]string(nil), rec.ApplicationTypes...)
	rec.ProcessingWarnings = append([]string(nil), rec.ProcessingWarnings...)
	return rec
}
