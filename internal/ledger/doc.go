// Package ledger groups the accounting-period and document-ledger engine:
// periods, sequences, scopes, documents, payments and statements.
package ledger
