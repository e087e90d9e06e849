package ledgertest

import (
	"cmp"
	"context"
	"fmt"
	"slices"

	"github.com/odyssey-erp/bookledger/internal/ledger/documents"
	"github.com/odyssey-erp/bookledger/internal/ledger/shared"
)

// DocumentRepo implements documents.Repository.
type DocumentRepo struct{ s *Store }

var _ documents.Repository = (*DocumentRepo)(nil)

func (r *DocumentRepo) Insert(_ context.Context, doc documents.Document) (documents.Document, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fail("documents.insert"); err != nil {
		return documents.Document{}, err
	}
	for _, existing := range r.s.st.documents {
		if existing.PeriodID == doc.PeriodID && existing.Kind == doc.Kind && existing.Number == doc.Number {
			return documents.Document{}, fmt.Errorf("%w: %s", shared.ErrDuplicateDocumentNo, doc.DocumentNo)
		}
	}
	doc.ID = r.s.id()
	doc.CreatedAt = r.s.now()
	items := make([]documents.Item, len(doc.Items))
	for i, it := range doc.Items {
		it.ID = r.s.id()
		it.DocumentID = doc.ID
		items[i] = it
	}
	doc.Items = items
	r.s.st.documents[doc.ID] = doc
	doc.Items = slices.Clone(items)
	return doc, nil
}

func (r *DocumentRepo) Get(_ context.Context, id int64) (documents.Document, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	doc, ok := r.s.st.documents[id]
	if !ok {
		return documents.Document{}, shared.ErrDocumentNotFound
	}
	doc.Items = slices.Clone(doc.Items)
	return doc, nil
}

func (r *DocumentRepo) GetForUpdate(ctx context.Context, id int64) (documents.Document, error) {
	return r.Get(ctx, id)
}

func (r *DocumentRepo) SetStatus(_ context.Context, id int64, status documents.Status) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	doc, ok := r.s.st.documents[id]
	if !ok {
		return shared.ErrDocumentNotFound
	}
	doc.Status = status
	r.s.st.documents[id] = doc
	return nil
}

func (r *DocumentRepo) MarkConverted(_ context.Context, id, invoiceID int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fail("documents.mark_converted"); err != nil {
		return err
	}
	doc, ok := r.s.st.documents[id]
	if !ok {
		return shared.ErrDocumentNotFound
	}
	if doc.ConvertedToID != nil {
		return shared.ErrEstimationConverted
	}
	doc.ConvertedToID = &invoiceID
	r.s.st.documents[id] = doc
	return nil
}

func (r *DocumentRepo) Delete(_ context.Context, id int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.st.documents[id]; !ok {
		return shared.ErrDocumentNotFound
	}
	delete(r.s.st.documents, id)
	return nil
}

func (r *DocumentRepo) ListByScopes(_ context.Context, scopeIDs []int64, kinds []shared.DocumentKind, status documents.Status) ([]documents.Document, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []documents.Document
	for _, doc := range r.s.st.documents {
		if slices.Contains(scopeIDs, doc.ScopeID) && slices.Contains(kinds, doc.Kind) && doc.Status == status {
			doc.Items = nil
			out = append(out, doc)
		}
	}
	slices.SortFunc(out, func(a, b documents.Document) int {
		if c := a.Date.Compare(b.Date); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return out, nil
}

func (r *DocumentRepo) ListByPeriod(_ context.Context, periodID int64) ([]documents.Document, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []documents.Document
	for _, doc := range r.s.st.documents {
		if doc.PeriodID == periodID {
			doc.Items = slices.Clone(doc.Items)
			out = append(out, doc)
		}
	}
	slices.SortFunc(out, func(a, b documents.Document) int { return cmp.Compare(a.ID, b.ID) })
	return out, nil
}

// Put stores doc verbatim, bypassing every check. Used to plant corrupt rows.
func (r *DocumentRepo) Put(doc documents.Document) documents.Document {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if doc.ID == 0 {
		doc.ID = r.s.id()
	}
	r.s.st.documents[doc.ID] = doc
	return doc
}
