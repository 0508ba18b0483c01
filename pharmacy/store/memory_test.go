package store_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/pharmacy-engine/pharmacy"
	"github.com/warp/pharmacy-engine/pharmacy/store"
)

var now = time.Date(2025, time.March, 10, 9, 30, 0, 0, time.UTC)

func seedMedicine(t *testing.T, m *store.Memory, name string, stock int64) pharmacy.MedicineID {
	t.Helper()
	med := pharmacy.Medicine{
		Name:          name,
		Category:      "General",
		Unit:          "tablet",
		Price:         pharmacy.MustMoney("1.00"),
		StockQuantity: stock,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	err := m.WithTx(context.Background(), func(tx pharmacy.Tx) error {
		return tx.InsertMedicine(context.Background(), &med)
	})
	require.NoError(t, err)
	return med.ID
}

func TestMemory_RollbackDiscardsStagedWrites(t *testing.T) {
	// GIVEN: A unit that decrements stock and issues a code, then fails
	// THEN: Neither the decrement nor the code survive

	m := store.NewMemory()
	ctx := context.Background()
	id := seedMedicine(t, m, "A", 10)
	boom := errors.New("boom")

	err := m.WithTx(ctx, func(tx pharmacy.Tx) error {
		if _, err := tx.LockAndFetch(ctx, []pharmacy.MedicineID{id}); err != nil {
			return err
		}
		if err := tx.DecrementStock(ctx, id, 4, now); err != nil {
			return err
		}
		if _, err := tx.NextCode(ctx, pharmacy.SeriesTransaction); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	med, err := m.GetMedicine(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, int64(10), med.StockQuantity)

	err = m.WithTx(ctx, func(tx pharmacy.Tx) error {
		code, err := tx.NextCode(ctx, pharmacy.SeriesTransaction)
		assert.Equal(t, "TXN000001", code)
		return err
	})
	require.NoError(t, err)
}

func TestMemory_StagedWritesInvisibleUntilCommit(t *testing.T) {
	m := store.NewMemory()
	ctx := context.Background()
	id := seedMedicine(t, m, "A", 10)

	err := m.WithTx(ctx, func(tx pharmacy.Tx) error {
		if _, err := tx.LockAndFetch(ctx, []pharmacy.MedicineID{id}); err != nil {
			return err
		}
		if err := tx.DecrementStock(ctx, id, 3, now); err != nil {
			return err
		}

		outside, err := m.GetMedicine(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, int64(10), outside.StockQuantity)

		inside, err := tx.LockAndFetch(ctx, []pharmacy.MedicineID{id})
		require.NoError(t, err)
		assert.Equal(t, int64(7), inside[id].StockQuantity)
		return nil
	})
	require.NoError(t, err)

	med, err := m.GetMedicine(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, int64(7), med.StockQuantity)
}

func TestMemory_MutationWithoutLockIsRejected(t *testing.T) {
	m := store.NewMemory()
	ctx := context.Background()
	id := seedMedicine(t, m, "A", 10)

	err := m.WithTx(ctx, func(tx pharmacy.Tx) error {
		return tx.DecrementStock(ctx, id, 1, now)
	})
	assert.ErrorIs(t, err, pharmacy.ErrNotLocked)

	err = m.WithTx(ctx, func(tx pharmacy.Tx) error {
		return tx.DeleteMedicine(ctx, id)
	})
	assert.ErrorIs(t, err, pharmacy.ErrNotLocked)
}

func TestMemory_LockWaitEndsWithDeadline(t *testing.T) {
	// GIVEN: One unit holding medicine A
	// WHEN: A second unit asks for A with a 30ms deadline
	// THEN: ConflictError, and the holder commits normally afterwards

	m := store.NewMemory()
	id := seedMedicine(t, m, "A", 10)

	locked := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- m.WithTx(context.Background(), func(tx pharmacy.Tx) error {
			if _, err := tx.LockAndFetch(context.Background(), []pharmacy.MedicineID{id}); err != nil {
				return err
			}
			close(locked)
			<-release
			return tx.DecrementStock(context.Background(), id, 1, now)
		})
	}()
	<-locked

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	err := m.WithTx(ctx, func(tx pharmacy.Tx) error {
		_, err := tx.LockAndFetch(ctx, []pharmacy.MedicineID{id})
		return err
	})

	var conflict *pharmacy.ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.True(t, pharmacy.IsRetryable(err))

	close(release)
	require.NoError(t, <-done)
	med, err := m.GetMedicine(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, int64(9), med.StockQuantity)
}

func TestMemory_LockWaitFallback(t *testing.T) {
	m := store.NewMemory()
	m.LockWait = 20 * time.Millisecond
	id := seedMedicine(t, m, "A", 10)

	locked := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- m.WithTx(context.Background(), func(tx pharmacy.Tx) error {
			_, err := tx.LockAndFetch(context.Background(), []pharmacy.MedicineID{id})
			close(locked)
			<-release
			return err
		})
	}()
	<-locked

	err := m.WithTx(context.Background(), func(tx pharmacy.Tx) error {
		_, err := tx.LockAndFetch(context.Background(), []pharmacy.MedicineID{id})
		return err
	})
	assert.ErrorIs(t, err, pharmacy.ErrConflict)

	close(release)
	require.NoError(t, <-done)
}

func TestMemory_DuplicateEmail(t *testing.T) {
	m := store.NewMemory()
	ctx := context.Background()
	email := "jane@example.com"

	insert := func() error {
		return m.WithTx(ctx, func(tx pharmacy.Tx) error {
			return tx.InsertPatient(ctx, &pharmacy.Patient{Name: "Jane", Gender: pharmacy.GenderFemale, Email: &email})
		})
	}

	require.NoError(t, insert())
	assert.ErrorIs(t, insert(), pharmacy.ErrDuplicateEmail)

	patients, err := m.ListPatients(ctx)
	require.NoError(t, err)
	assert.Len(t, patients, 1)
}

func TestMemory_DuplicateEmailAcrossConcurrentUnits(t *testing.T) {
	// GIVEN: Unit A has staged a patient with jane@example.com
	// WHEN: Unit B registers the same email and commits first
	// THEN: A's commit fails with ErrDuplicateEmail

	m := store.NewMemory()
	ctx := context.Background()
	email := "jane@example.com"

	staged := make(chan struct{})
	proceed := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- m.WithTx(ctx, func(tx pharmacy.Tx) error {
			if err := tx.InsertPatient(ctx, &pharmacy.Patient{Name: "A", Email: &email}); err != nil {
				return err
			}
			close(staged)
			<-proceed
			return nil
		})
	}()

	<-staged
	err := m.WithTx(ctx, func(tx pharmacy.Tx) error {
		return tx.InsertPatient(ctx, &pharmacy.Patient{Name: "B", Email: &email})
	})
	require.NoError(t, err)
	close(proceed)

	assert.ErrorIs(t, <-done, pharmacy.ErrDuplicateEmail)
	patients, err := m.ListPatients(ctx)
	require.NoError(t, err)
	require.Len(t, patients, 1)
	assert.Equal(t, "B", patients[0].Name)
}

func TestMemory_UpdatePatient(t *testing.T) {
	m := store.NewMemory()
	ctx := context.Background()
	p := pharmacy.Patient{Name: "Jane", PatientCode: "P000001", Gender: pharmacy.GenderFemale}
	require.NoError(t, m.WithTx(ctx, func(tx pharmacy.Tx) error {
		return tx.InsertPatient(ctx, &p)
	}))

	t.Run("requires the row lock", func(t *testing.T) {
		err := m.WithTx(ctx, func(tx pharmacy.Tx) error {
			return tx.UpdatePatient(ctx, p)
		})
		assert.ErrorIs(t, err, pharmacy.ErrNotLocked)
	})

	t.Run("staged until commit", func(t *testing.T) {
		err := m.WithTx(ctx, func(tx pharmacy.Tx) error {
			locked, err := tx.LockPatient(ctx, p.ID)
			if err != nil {
				return err
			}
			require.NotNil(t, locked)
			locked.Name = "Jane Q."
			if err := tx.UpdatePatient(ctx, *locked); err != nil {
				return err
			}

			outside, err := m.GetPatient(ctx, p.ID)
			require.NoError(t, err)
			assert.Equal(t, "Jane", outside.Name)

			inside, err := tx.LockPatient(ctx, p.ID)
			require.NoError(t, err)
			assert.Equal(t, "Jane Q.", inside.Name)
			return nil
		})
		require.NoError(t, err)

		stored, err := m.GetPatient(ctx, p.ID)
		require.NoError(t, err)
		assert.Equal(t, "Jane Q.", stored.Name)
		assert.Equal(t, "P000001", stored.PatientCode)
	})

	t.Run("missing patient is nil", func(t *testing.T) {
		err := m.WithTx(ctx, func(tx pharmacy.Tx) error {
			missing, err := tx.LockPatient(ctx, 404)
			assert.Nil(t, missing)
			return err
		})
		require.NoError(t, err)
	})
}

func TestMemory_DecrementRejectsNonPositiveAmount(t *testing.T) {
	// GIVEN: A locked medicine with stock 10
	// WHEN: Decrementing by 0 or a negative amount
	// THEN: ErrInvalidArgument and the stock never grows

	m := store.NewMemory()
	ctx := context.Background()
	id := seedMedicine(t, m, "A", 10)

	for _, amount := range []int64{0, -9223372036854775808} {
		err := m.WithTx(ctx, func(tx pharmacy.Tx) error {
			if _, err := tx.LockAndFetch(ctx, []pharmacy.MedicineID{id}); err != nil {
				return err
			}
			return tx.DecrementStock(ctx, id, amount, now)
		})
		assert.ErrorIs(t, err, pharmacy.ErrInvalidArgument, "amount %d", amount)
	}

	med, err := m.GetMedicine(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, int64(10), med.StockQuantity)
}

func TestMemory_MissingRowsAreNil(t *testing.T) {
	m := store.NewMemory()
	ctx := context.Background()

	med, err := m.GetMedicine(ctx, 1)
	require.NoError(t, err)
	assert.Nil(t, med)

	p, err := m.GetPatient(ctx, 1)
	require.NoError(t, err)
	assert.Nil(t, p)

	txn, err := m.GetTransaction(ctx, 1)
	require.NoError(t, err)
	assert.Nil(t, txn)
}
