package documents

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/odyssey-erp/bookledger/internal/ledger/shared"
	"github.com/odyssey-erp/bookledger/internal/platform/db"
)

// Repository persists documents and their items.
type Repository interface {
	Insert(ctx context.Context, doc Document) (Document, error)
	Get(ctx context.Context, id int64) (Document, error)
	GetForUpdate(ctx context.Context, id int64) (Document, error)
	SetStatus(ctx context.Context, id int64, status Status) error
	MarkConverted(ctx context.Context, id, invoiceID int64) error
	Delete(ctx context.Context, id int64) error
	ListByScopes(ctx context.Context, scopeIDs []int64, kinds []shared.DocumentKind, status Status) ([]Document, error)
	ListByPeriod(ctx context.Context, periodID int64) ([]Document, error)
}

const constraintDocumentNumber = "documents_period_kind_number_key"

const documentColumns = `id, document_no, number, doc_date, kind, status, party_kind, party_id, scope_id, period_id,
	total_quantity, gross_amount, total_discount, net_amount, notes, billed_by_kind, billed_by_id,
	source_estimation_id, converted_to_id, created_at`

const itemColumns = `id, document_id, line_no, description, class_tag, company_tag, textbook_id, quantity,
	unit_price, discount_percent, gross_amount, discount_amount, net_amount`

// PGRepository is the PostgreSQL implementation of Repository.
type PGRepository struct {
	pool db.DBTX
}

// NewRepository constructs a PGRepository.
func NewRepository(pool db.DBTX) *PGRepository {
	return &PGRepository{pool: pool}
}

// Insert stores the header and every item. Callers run it inside a
// transaction so a failing item leaves no header behind.
func (r *PGRepository) Insert(ctx context.Context, doc Document) (Document, error) {
	conn := db.Conn(ctx, r.pool)
	var billedKind *shared.PartyKind
	var billedID *int64
	if doc.BilledBy != nil {
		billedKind = &doc.BilledBy.Kind
		billedID = &doc.BilledBy.ID
	}
	err := conn.QueryRow(ctx, `INSERT INTO documents (document_no, number, doc_date, kind, status, party_kind, party_id,
		scope_id, period_id, total_quantity, gross_amount, total_discount, net_amount, notes, billed_by_kind, billed_by_id,
		source_estimation_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, NOW(), NOW())
		RETURNING id, created_at`,
		doc.DocumentNo, doc.Number, doc.Date, doc.Kind, doc.Status, doc.Party.Kind, doc.Party.ID,
		doc.ScopeID, doc.PeriodID, doc.TotalQuantity, doc.GrossAmount, doc.TotalDiscount, doc.NetAmount,
		doc.Notes, billedKind, billedID, doc.SourceID,
	).Scan(&doc.ID, &doc.CreatedAt)
	if err != nil {
		if db.IsUniqueViolation(err, constraintDocumentNumber) {
			return Document{}, fmt.Errorf("%w: %s", shared.ErrDuplicateDocumentNo, doc.DocumentNo)
		}
		return Document{}, fmt.Errorf("insert document: %w", err)
	}

	for i := range doc.Items {
		item := &doc.Items[i]
		item.DocumentID = doc.ID
		err := conn.QueryRow(ctx, `INSERT INTO document_items (document_id, line_no, description, class_tag, company_tag,
			textbook_id, quantity, unit_price, discount_percent, gross_amount, discount_amount, net_amount)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
			RETURNING id`,
			item.DocumentID, item.LineNo, item.Description, item.ClassTag, item.CompanyTag, item.TextbookID,
			item.Quantity, item.UnitPrice, item.DiscountPercent, item.GrossAmount, item.DiscountAmount, item.NetAmount,
		).Scan(&item.ID)
		if err != nil {
			return Document{}, fmt.Errorf("insert document item %d: %w", item.LineNo, err)
		}
	}
	return doc, nil
}

// Get loads the header and its items.
func (r *PGRepository) Get(ctx context.Context, id int64) (Document, error) {
	doc, err := r.header(ctx, `SELECT `+documentColumns+` FROM documents WHERE id = $1`, id)
	if err != nil {
		return Document{}, err
	}
	doc.Items, err = r.items(ctx, []int64{id})
	if err != nil {
		return Document{}, err
	}
	return doc, nil
}

// GetForUpdate locks the header row and loads its items.
func (r *PGRepository) GetForUpdate(ctx context.Context, id int64) (Document, error) {
	doc, err := r.header(ctx, `SELECT `+documentColumns+` FROM documents WHERE id = $1 FOR UPDATE`, id)
	if err != nil {
		return Document{}, err
	}
	doc.Items, err = r.items(ctx, []int64{id})
	if err != nil {
		return Document{}, err
	}
	return doc, nil
}

func (r *PGRepository) SetStatus(ctx context.Context, id int64, status Status) error {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, `UPDATE documents SET status = $2, updated_at = NOW() WHERE id = $1`, id, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrDocumentNotFound
	}
	return nil
}

func (r *PGRepository) MarkConverted(ctx context.Context, id, invoiceID int64) error {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, `UPDATE documents SET converted_to_id = $2, updated_at = NOW() WHERE id = $1 AND converted_to_id IS NULL`, id, invoiceID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrEstimationConverted
	}
	return nil
}

// Delete removes a document; items go with it through ON DELETE CASCADE.
func (r *PGRepository) Delete(ctx context.Context, id int64) error {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, `DELETE FROM documents WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrDocumentNotFound
	}
	return nil
}

// ListByScopes returns headers only, ordered by date then id.
func (r *PGRepository) ListByScopes(ctx context.Context, scopeIDs []int64, kinds []shared.DocumentKind, status Status) ([]Document, error) {
	if len(scopeIDs) == 0 {
		return nil, nil
	}
	kindNames := make([]string, 0, len(kinds))
	for _, k := range kinds {
		kindNames = append(kindNames, string(k))
	}
	rows, err := db.Conn(ctx, r.pool).Query(ctx, `SELECT `+documentColumns+` FROM documents
		WHERE scope_id = ANY($1) AND kind = ANY($2) AND status = $3
		ORDER BY doc_date, created_at, id`, scopeIDs, kindNames, status)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (Document, error) {
		return scanDocument(row)
	})
}

// ListByPeriod returns every document of a period with its items.
func (r *PGRepository) ListByPeriod(ctx context.Context, periodID int64) ([]Document, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, `SELECT `+documentColumns+` FROM documents WHERE period_id = $1 ORDER BY id`, periodID)
	if err != nil {
		return nil, err
	}
	docs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Document, error) {
		return scanDocument(row)
	})
	if err != nil || len(docs) == 0 {
		return docs, err
	}
	ids := make([]int64, 0, len(docs))
	index := make(map[int64]int, len(docs))
	for i, d := range docs {
		ids = append(ids, d.ID)
		index[d.ID] = i
	}
	items, err := r.items(ctx, ids)
	if err != nil {
		return nil, err
	}
	for _, it := range items {
		i := index[it.DocumentID]
		docs[i].Items = append(docs[i].Items, it)
	}
	return docs, nil
}

func (r *PGRepository) header(ctx context.Context, query string, id int64) (Document, error) {
	doc, err := scanDocument(db.Conn(ctx, r.pool).QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Document{}, shared.ErrDocumentNotFound
	}
	return doc, err
}

func (r *PGRepository) items(ctx context.Context, documentIDs []int64) ([]Item, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, `SELECT `+itemColumns+` FROM document_items
		WHERE document_id = ANY($1) ORDER BY document_id, line_no`, documentIDs)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (Item, error) {
		var it Item
		err := row.Scan(&it.ID, &it.DocumentID, &it.LineNo, &it.Description, &it.ClassTag, &it.CompanyTag, &it.TextbookID,
			&it.Quantity, &it.UnitPrice, &it.DiscountPercent, &it.GrossAmount, &it.DiscountAmount, &it.NetAmount)
		return it, err
	})
}

func scanDocument(row pgx.Row) (Document, error) {
	var (
		doc        Document
		billedKind *string
		billedID   *int64
	)
	err := row.Scan(&doc.ID, &doc.DocumentNo, &doc.Number, &doc.Date, &doc.Kind, &doc.Status,
		&doc.Party.Kind, &doc.Party.ID, &doc.ScopeID, &doc.PeriodID,
		&doc.TotalQuantity, &doc.GrossAmount, &doc.TotalDiscount, &doc.NetAmount, &doc.Notes,
		&billedKind, &billedID, &doc.SourceID, &doc.ConvertedToID, &doc.CreatedAt)
	if err != nil {
		return Document{}, err
	}
	if billedKind != nil && billedID != nil {
		doc.BilledBy = &shared.PartyRef{Kind: shared.PartyKind(*billedKind), ID: *billedID}
	}
	return doc, nil
}
