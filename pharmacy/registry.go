package pharmacy

import "context"

// Registry maintains the patient and medicine records the core reads.
// Registration and catalog edits go through the same atomic units as sales
// so that codes and stock stay consistent with concurrent transactions.
type Registry struct {
	unit
}

func NewRegistry(store Store, opts ...Option) *Registry {
	return &Registry{unit: newUnit(store, opts)}
}

// RegisterPatient stores a new patient under the next P000001-style code.
func (r *Registry) RegisterPatient(ctx context.Context, in NewPatientInput) (*Patient, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}

	var created *Patient
	err := r.run(ctx, "register patient", func(ctx context.Context, tx Tx) error {
		p := in.Patient(r.clock())
		code, err := tx.NextCode(ctx, SeriesPatient)
		if err != nil {
			return err
		}
		p.PatientCode = code
		if err := tx.InsertPatient(ctx, &p); err != nil {
			return err
		}
		created = &p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// UpdatePatient applies a patch to a registered patient. The patient code
// never changes.
func (r *Registry) UpdatePatient(ctx context.Context, id PatientID, patch PatientPatch) (*Patient, error) {
	if err := patch.Validate(); err != nil {
		return nil, err
	}

	var updated *Patient
	err := r.run(ctx, "update patient", func(ctx context.Context, tx Tx) error {
		p, err := tx.LockPatient(ctx, id)
		if err != nil {
			return err
		}
		if p == nil {
			return &PatientNotFoundError{ID: id}
		}
		if patch.Empty() {
			updated = p
			return nil
		}
		patch.Apply(p, r.clock())
		if err := tx.UpdatePatient(ctx, *p); err != nil {
			return err
		}
		updated = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// AddMedicine stores a new catalog entry.
func (r *Registry) AddMedicine(ctx context.Context, in NewMedicineInput) (*Medicine, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}

	var created *Medicine
	err := r.run(ctx, "add medicine", func(ctx context.Context, tx Tx) error {
		m := in.Medicine(r.clock())
		if err := tx.InsertMedicine(ctx, &m); err != nil {
			return err
		}
		created = &m
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// UpdateMedicine applies a patch under the medicine's row lock, so a direct
// stock edit cannot interleave with a sale's check and decrement.
func (r *Registry) UpdateMedicine(ctx context.Context, id MedicineID, patch MedicinePatch) (*Medicine, error) {
	if err := patch.Validate(); err != nil {
		return nil, err
	}

	var updated *Medicine
	err := r.run(ctx, "update medicine", func(ctx context.Context, tx Tx) error {
		medicines, err := tx.LockAndFetch(ctx, []MedicineID{id})
		if err != nil {
			return err
		}
		m := medicines[id]
		if patch.Empty() {
			updated = &m
			return nil
		}
		patch.Apply(&m, r.clock())
		if err := tx.UpdateMedicine(ctx, m); err != nil {
			return err
		}
		updated = &m
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// DeleteMedicine removes a medicine that no transaction item or usage record
// references.
func (r *Registry) DeleteMedicine(ctx context.Context, id MedicineID) error {
	return r.run(ctx, "delete medicine", func(ctx context.Context, tx Tx) error {
		if _, err := tx.LockAndFetch(ctx, []MedicineID{id}); err != nil {
			return err
		}
		return tx.DeleteMedicine(ctx, id)
	})
}
