// Package billing contains the billing lifecycle engine: quotations,
// invoices, payment receipts and credit notes, together with the pure
// financial calculation and document numbering contracts they depend on.
//
// The invoice balance (paid/outstanding) is the single shared mutable
// resource. Every balance mutation, whether from a payment receipt or an
// applied credit note, goes through Invoice.ApplyLedgerEntry and is
// persisted with optimistic locking.
package billing
