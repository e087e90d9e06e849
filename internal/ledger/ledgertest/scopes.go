package ledgertest

import (
	"cmp"
	"context"
	"slices"
	"time"

	"github.com/odyssey-erp/bookledger/internal/ledger/scopes"
	"github.com/odyssey-erp/bookledger/internal/ledger/shared"
)

// ScopeRepo implements scopes.Repository.
type ScopeRepo struct{ s *Store }

var _ scopes.Repository = (*ScopeRepo)(nil)

func (r *ScopeRepo) ListForParty(_ context.Context, party shared.PartyRef, periodID int64) ([]scopes.Scope, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []scopes.Scope
	for _, sc := range r.s.st.scopes {
		if sc.Party == party && sc.PeriodID == periodID {
			out = append(out, sc)
		}
	}
	slices.SortFunc(out, func(a, b scopes.Scope) int { return cmp.Compare(a.ID, b.ID) })
	return out, nil
}

func (r *ScopeRepo) ListForPartyForShare(ctx context.Context, party shared.PartyRef, periodID int64) ([]scopes.Scope, error) {
	return r.ListForParty(ctx, party, periodID)
}

func (r *ScopeRepo) Insert(_ context.Context, sc scopes.Scope) (scopes.Scope, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fail("scopes.insert"); err != nil {
		return scopes.Scope{}, err
	}
	for _, existing := range r.s.st.scopes {
		if existing.Party == sc.Party && existing.PeriodID == sc.PeriodID && existing.Status == scopes.StatusOpen {
			return scopes.Scope{}, shared.Conflict("ledger: open scope already exists")
		}
	}
	sc.ID = r.s.id()
	sc.CreatedAt = r.s.now()
	r.s.st.scopes[sc.ID] = sc
	return sc, nil
}

func (r *ScopeRepo) SettleAll(_ context.Context, at time.Time) (int64, error) {
	return r.settle(func(scopes.Scope) bool { return true }, at)
}

func (r *ScopeRepo) SettleByPeriod(_ context.Context, periodID int64, at time.Time) (int64, error) {
	return r.settle(func(sc scopes.Scope) bool { return sc.PeriodID == periodID }, at)
}

func (r *ScopeRepo) settle(match func(scopes.Scope) bool, at time.Time) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fail("scopes.settle"); err != nil {
		return 0, err
	}
	var n int64
	for id, sc := range r.s.st.scopes {
		if sc.Status != scopes.StatusOpen || !match(sc) {
			continue
		}
		settledAt := at
		sc.Status = scopes.StatusSettled
		sc.SettledAt = &settledAt
		r.s.st.scopes[id] = sc
		n++
	}
	return n, nil
}

func (r *ScopeRepo) ReopenByPeriod(_ context.Context, periodID int64) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	newest := map[shared.PartyRef]int64{}
	for id, sc := range r.s.st.scopes {
		if sc.PeriodID == periodID && id > newest[sc.Party] {
			newest[sc.Party] = id
		}
	}
	var n int64
	for _, id := range newest {
		sc := r.s.st.scopes[id]
		if sc.Status != scopes.StatusSettled {
			continue
		}
		sc.Status = scopes.StatusOpen
		sc.SettledAt = nil
		r.s.st.scopes[id] = sc
		n++
	}
	return n, nil
}
