package ledgertest

import (
	"cmp"
	"context"
	"slices"
	"time"

	"github.com/odyssey-erp/bookledger/internal/ledger/periods"
	"github.com/odyssey-erp/bookledger/internal/ledger/shared"
)

// PeriodRepo implements periods.Repository.
type PeriodRepo struct{ s *Store }

var _ periods.Repository = (*PeriodRepo)(nil)

// Lock only honours injected failures; WithTx already serialises.
func (r *PeriodRepo) Lock(context.Context) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.s.fail("periods.lock")
}

func (r *PeriodRepo) FindActive(context.Context) (periods.Period, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, p := range r.s.st.periods {
		if p.Status == periods.StatusOpen {
			return p, nil
		}
	}
	return periods.Period{}, shared.ErrNoActivePeriod
}

// FindActiveForShare needs no lock; WithTx already serialises.
func (r *PeriodRepo) FindActiveForShare(ctx context.Context) (periods.Period, error) {
	return r.FindActive(ctx)
}

func (r *PeriodRepo) Get(_ context.Context, id int64) (periods.Period, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.st.periods[id]
	if !ok {
		return periods.Period{}, shared.ErrPeriodNotFound
	}
	return p, nil
}

func (r *PeriodRepo) GetForUpdate(ctx context.Context, id int64) (periods.Period, error) {
	return r.Get(ctx, id)
}

func (r *PeriodRepo) List(context.Context) ([]periods.Period, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]periods.Period, 0, len(r.s.st.periods))
	for _, p := range r.s.st.periods {
		out = append(out, p)
	}
	slices.SortFunc(out, func(a, b periods.Period) int { return b.StartDate.Compare(a.StartDate) })
	return out, nil
}

func (r *PeriodRepo) HasOverlap(_ context.Context, start, end time.Time, excludeID int64) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.overlaps(start, end, excludeID), nil
}

func (r *PeriodRepo) overlaps(start, end time.Time, excludeID int64) bool {
	for _, p := range r.s.st.periods {
		if p.ID != excludeID && p.Overlaps(start, end) {
			return true
		}
	}
	return false
}

func (r *PeriodRepo) openExists(excludeID int64) bool {
	for _, p := range r.s.st.periods {
		if p.ID != excludeID && p.Status == periods.StatusOpen {
			return true
		}
	}
	return false
}

func (r *PeriodRepo) Insert(_ context.Context, p periods.Period) (periods.Period, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fail("periods.insert"); err != nil {
		return periods.Period{}, err
	}
	if p.Status == periods.StatusOpen && r.openExists(0) {
		return periods.Period{}, shared.ErrConcurrentActivation
	}
	if r.overlaps(p.StartDate, p.EndDate, 0) {
		return periods.Period{}, shared.ErrPeriodOverlap
	}
	p.ID = r.s.id()
	now := r.s.now()
	p.CreatedAt, p.UpdatedAt = now, now
	r.s.st.periods[p.ID] = p
	return p, nil
}

func (r *PeriodRepo) CloseAllOpen(_ context.Context, at time.Time) ([]int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fail("periods.close_all"); err != nil {
		return nil, err
	}
	var ids []int64
	for id, p := range r.s.st.periods {
		if p.Status != periods.StatusOpen {
			continue
		}
		closedAt := at
		p.Status = periods.StatusClosed
		p.ClosedAt = &closedAt
		p.UpdatedAt = at
		r.s.st.periods[id] = p
		ids = append(ids, id)
	}
	slices.SortFunc(ids, cmp.Compare[int64])
	return ids, nil
}

func (r *PeriodRepo) SetStatus(_ context.Context, id int64, status periods.Status, closedAt *time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fail("periods.set_status"); err != nil {
		return err
	}
	p, ok := r.s.st.periods[id]
	if !ok {
		return shared.ErrPeriodNotFound
	}
	if status == periods.StatusOpen && r.openExists(id) {
		return shared.ErrConcurrentActivation
	}
	p.Status = status
	p.ClosedAt = closedAt
	p.UpdatedAt = r.s.now()
	r.s.st.periods[id] = p
	return nil
}

func (r *PeriodRepo) UpdateRange(_ context.Context, id int64, name string, start, end time.Time) (periods.Period, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.st.periods[id]
	if !ok {
		return periods.Period{}, shared.ErrPeriodNotFound
	}
	if r.overlaps(start, end, id) {
		return periods.Period{}, shared.ErrPeriodOverlap
	}
	p.Name, p.StartDate, p.EndDate = name, start, end
	p.UpdatedAt = r.s.now()
	r.s.st.periods[id] = p
	return p, nil
}
