package store

import (
	"fmt"
	"reflect"
	"time"

	"github.com/BTreeMap/LuckyPipe/internal/models"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

var entryValidator = newEntryValidator()

func newEntryValidator() *validator.Validate {
	v := validator.New()
	// Compare decimal amounts numerically in gte/lte tags.
	v.RegisterCustomTypeFunc(func(field reflect.Value) interface{} {
		if d, ok := field.Interface().(decimal.Decimal); ok {
			f, _ := d.Float64()
			return f
		}
		return nil
	}, decimal.Decimal{})
	return v
}

// prepareEntry validates an entry and fills the timestamps owned by the ledger.
// ApprovedAt is set exactly when the status is approved.
func prepareEntry(e models.LedgerEntry, now time.Time) (models.LedgerEntry, error) {
	if err := entryValidator.Struct(e); err != nil {
		return e, fmt.Errorf("%w: %v", ErrInvalidEntry, err)
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	if e.Status == models.EntryStatusApproved {
		approvedAt := now
		e.ApprovedAt = &approvedAt
	} else {
		e.ApprovedAt = nil
	}
	return e, nil
}
