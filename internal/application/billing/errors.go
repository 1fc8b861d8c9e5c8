package billing

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/tripdesk/backend/internal/domain/billing"
	"github.com/tripdesk/backend/internal/domain/shared"
)

func errorsAs(err error, target **shared.DomainError) bool {
	return errors.As(err, target)
}

// isConcurrencyConflict reports whether an error came from an optimistic
// lock miss on SaveWithLock
func isConcurrencyConflict(err error) bool {
	var domainErr *shared.DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Code == "CONCURRENCY_CONFLICT" || domainErr.Code == "OPTIMISTIC_LOCK_ERROR"
	}
	return errors.Is(err, shared.ErrConcurrencyConflict)
}

// isAlreadyProcessed reports whether an error is the ledger replay guard
// firing for a reference that already carries an active entry
func isAlreadyProcessed(err error) bool {
	var domainErr *shared.DomainError
	return errors.As(err, &domainErr) && domainErr.Code == "ALREADY_PROCESSED"
}

// reverseAppliedEntry backs a ledger entry out of the invoice after the
// follow-up document save failed. Without it the invoice balance would
// reflect a receipt or credit note that was never persisted.
func reverseAppliedEntry(ctx context.Context, repo billing.InvoiceRepository, invoiceID, referenceID uuid.UUID, reason string) error {
	for attempt := 0; ; attempt++ {
		invoice, err := repo.FindByID(ctx, invoiceID)
		if err != nil {
			return err
		}
		if invoice == nil {
			return shared.NewDomainError("NOT_FOUND", "Invoice not found")
		}

		expectedVersion := invoice.Version
		if _, err := invoice.ReverseLedgerEntry(referenceID, reason); err != nil {
			return err
		}

		err = repo.SaveWithLock(ctx, invoice, expectedVersion)
		if err == nil {
			return nil
		}
		if !isConcurrencyConflict(err) || attempt+1 >= maxPaymentRetries {
			return err
		}
	}
}
