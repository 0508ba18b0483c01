package pharmacy

import "context"

// UsageRecorder books administrative consumption of a single medicine: lock,
// check, decrement and append a usage record in one atomic unit.
type UsageRecorder struct {
	unit
}

func NewUsageRecorder(store Store, opts ...Option) *UsageRecorder {
	return &UsageRecorder{unit: newUnit(store, opts)}
}

// RecordUsage consumes quantity_used units of a medicine. Consuming exactly
// the remaining stock is allowed and leaves it at zero.
func (r *UsageRecorder) RecordUsage(ctx context.Context, in RecordUsageInput) (*MedicineUsage, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}

	var recorded *MedicineUsage
	err := r.run(ctx, "record usage", func(ctx context.Context, tx Tx) error {
		medicines, err := tx.LockAndFetch(ctx, []MedicineID{in.MedicineID})
		if err != nil {
			return err
		}
		m := medicines[in.MedicineID]
		if m.StockQuantity < in.QuantityUsed {
			return &InsufficientStockError{
				MedicineID: m.ID,
				Name:       m.Name,
				Available:  m.StockQuantity,
				Required:   in.QuantityUsed,
			}
		}

		now := r.clock()
		if err := tx.DecrementStock(ctx, in.MedicineID, in.QuantityUsed, now); err != nil {
			return err
		}
		u := &MedicineUsage{
			MedicineID:   in.MedicineID,
			MedicineName: m.Name,
			QuantityUsed: in.QuantityUsed,
			UsageDate:    now,
			Notes:        in.Notes,
			CreatedAt:    now,
		}
		if err := tx.InsertUsage(ctx, u); err != nil {
			return err
		}
		recorded = u
		return nil
	})
	if err != nil {
		return nil, err
	}
	return recorded, nil
}
