package ledgertest

import (
	"cmp"
	"context"
	"fmt"
	"slices"

	"github.com/odyssey-erp/bookledger/internal/ledger/payments"
	"github.com/odyssey-erp/bookledger/internal/ledger/shared"
)

// PaymentRepo implements payments.Repository.
type PaymentRepo struct{ s *Store }

var _ payments.Repository = (*PaymentRepo)(nil)

func (r *PaymentRepo) Insert(_ context.Context, p payments.Payment) (payments.Payment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fail("payments.insert"); err != nil {
		return payments.Payment{}, err
	}
	for _, existing := range r.s.st.payments {
		if existing.PeriodID == p.PeriodID && existing.Number == p.Number {
			return payments.Payment{}, fmt.Errorf("%w: %s", shared.ErrDuplicateDocumentNo, p.ReceiptNo)
		}
	}
	p.ID = r.s.id()
	p.CreatedAt = r.s.now()
	r.s.st.payments[p.ID] = p
	return p, nil
}

func (r *PaymentRepo) Get(_ context.Context, id int64) (payments.Payment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.st.payments[id]
	if !ok {
		return payments.Payment{}, shared.ErrPaymentNotFound
	}
	return p, nil
}

func (r *PaymentRepo) GetForUpdate(ctx context.Context, id int64) (payments.Payment, error) {
	return r.Get(ctx, id)
}

func (r *PaymentRepo) SetStatus(_ context.Context, id int64, status payments.Status) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.st.payments[id]
	if !ok {
		return shared.ErrPaymentNotFound
	}
	p.Status = status
	r.s.st.payments[id] = p
	return nil
}

func (r *PaymentRepo) ListByScopes(_ context.Context, scopeIDs []int64, status payments.Status) ([]payments.Payment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []payments.Payment
	for _, p := range r.s.st.payments {
		if slices.Contains(scopeIDs, p.ScopeID) && p.Status == status {
			out = append(out, p)
		}
	}
	slices.SortFunc(out, func(a, b payments.Payment) int {
		if c := a.Date.Compare(b.Date); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return out, nil
}
