package ledgertest

import (
	"context"
	"slices"
	"strings"

	"github.com/odyssey-erp/bookledger/internal/ledger/sequences"
	"github.com/odyssey-erp/bookledger/internal/ledger/shared"
)

// SequenceRepo implements sequences.Repository.
type SequenceRepo struct{ s *Store }

var _ sequences.Repository = (*SequenceRepo)(nil)

func (r *SequenceRepo) Next(_ context.Context, periodID int64, kind shared.DocumentKind) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fail("sequences.next"); err != nil {
		return 0, err
	}
	k := seqKey{periodID, kind}
	r.s.st.sequences[k]++
	return r.s.st.sequences[k], nil
}

func (r *SequenceRepo) Raise(_ context.Context, periodID int64, kind shared.DocumentKind, n int64) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	k := seqKey{periodID, kind}
	if n > r.s.st.sequences[k] {
		r.s.st.sequences[k] = n
	}
	return r.s.st.sequences[k], nil
}

func (r *SequenceRepo) Last(_ context.Context, periodID int64, kind shared.DocumentKind) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.s.st.sequences[seqKey{periodID, kind}], nil
}

func (r *SequenceRepo) List(_ context.Context, periodID int64) ([]sequences.Sequence, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []sequences.Sequence
	for k, v := range r.s.st.sequences {
		if k.periodID == periodID {
			out = append(out, sequences.Sequence{PeriodID: k.periodID, Kind: k.kind, LastNumber: v})
		}
	}
	slices.SortFunc(out, func(a, b sequences.Sequence) int { return strings.Compare(string(a.Kind), string(b.Kind)) })
	return out, nil
}

// SetLastNumber forces a counter, used to simulate drift.
func (r *SequenceRepo) SetLastNumber(periodID int64, kind shared.DocumentKind, n int64) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.st.sequences[seqKey{periodID, kind}] = n
}
