package pharmacy_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/pharmacy-engine/pharmacy"
)

func TestUsage_RecordUsage_ConsumesExactRemainingStock(t *testing.T) {
	// GIVEN: Medicine C with stock 30
	// WHEN: Recording usage of 30
	// THEN: Stock becomes 0 and the record carries the medicine name

	env := newTestEnv(t)
	ctx := context.Background()
	c := env.addMedicine(t, "Cetirizine", "3.10", 30)

	u, err := env.usage.RecordUsage(ctx, pharmacy.RecordUsageInput{
		MedicineID:   c.ID,
		QuantityUsed: 30,
		Notes:        strPtr("ward round"),
	})
	require.NoError(t, err)

	assert.Equal(t, int64(0), env.stockOf(t, c.ID))
	assert.NotZero(t, u.ID)
	assert.Equal(t, "Cetirizine", u.MedicineName)
	assert.Equal(t, testNow, u.UsageDate)
	require.NotNil(t, u.Notes)
	assert.Equal(t, "ward round", *u.Notes)

	level, err := env.reports.MedicineStock(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, pharmacy.StockOut, level.Status)
}

func TestUsage_RecordUsage_InsufficientStock(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	c := env.addMedicine(t, "Cetirizine", "3.10", 3)

	_, err := env.usage.RecordUsage(ctx, pharmacy.RecordUsageInput{MedicineID: c.ID, QuantityUsed: 4})

	var stockErr *pharmacy.InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	assert.Equal(t, int64(3), stockErr.Available)
	assert.Equal(t, int64(4), stockErr.Required)
	assert.Equal(t, int64(3), env.stockOf(t, c.ID))

	usage, err := env.st.ListUsage(ctx)
	require.NoError(t, err)
	assert.Empty(t, usage)
}

func TestUsage_RecordUsage_Rejects(t *testing.T) {
	env := newTestEnv(t)
	c := env.addMedicine(t, "Cetirizine", "3.10", 3)

	t.Run("unknown medicine", func(t *testing.T) {
		_, err := env.usage.RecordUsage(context.Background(), pharmacy.RecordUsageInput{MedicineID: 77, QuantityUsed: 1})
		assert.ErrorIs(t, err, pharmacy.ErrMedicineNotFound)
	})

	t.Run("zero quantity", func(t *testing.T) {
		_, err := env.usage.RecordUsage(context.Background(), pharmacy.RecordUsageInput{MedicineID: c.ID, QuantityUsed: 0})
		var valErr *pharmacy.ValidationError
		require.ErrorAs(t, err, &valErr)
		assert.Equal(t, "quantity_used", valErr.Field)
		assert.Equal(t, "invalid argument: quantity_used must be greater than 0", err.Error())
	})

	assert.Equal(t, int64(3), env.stockOf(t, c.ID))
}

func TestUsage_ListUsage_NewestFirstWithNames(t *testing.T) {
	// GIVEN: Two usage records a day apart
	// THEN: The later one is listed first, both named

	now := testNow
	env := newTestEnv(t, pharmacy.WithClock(func() time.Time { return now }))
	ctx := context.Background()
	a := env.addMedicine(t, "Aspirin", "1.00", 10)
	b := env.addMedicine(t, "Bisoprolol", "1.00", 10)

	_, err := env.usage.RecordUsage(ctx, pharmacy.RecordUsageInput{MedicineID: a.ID, QuantityUsed: 1})
	require.NoError(t, err)
	now = now.Add(24 * time.Hour)
	_, err = env.usage.RecordUsage(ctx, pharmacy.RecordUsageInput{MedicineID: b.ID, QuantityUsed: 2})
	require.NoError(t, err)

	usage, err := env.st.ListUsage(ctx)
	require.NoError(t, err)
	require.Len(t, usage, 2)
	assert.Equal(t, "Bisoprolol", usage[0].MedicineName)
	assert.Equal(t, int64(2), usage[0].QuantityUsed)
	assert.Equal(t, "Aspirin", usage[1].MedicineName)
}
