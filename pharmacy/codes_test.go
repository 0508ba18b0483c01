package pharmacy_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/pharmacy-engine/pharmacy"
)

func TestFormatCode(t *testing.T) {
	assert.Equal(t, "TXN000001", pharmacy.SeriesTransaction.Code(1))
	assert.Equal(t, "P000042", pharmacy.SeriesPatient.Code(42))
	assert.Equal(t, "TXN999999", pharmacy.FormatCode("TXN", 999999))
	assert.Equal(t, "TXN1000000", pharmacy.FormatCode("TXN", 1000000))
}

func TestParseCode(t *testing.T) {
	n, err := pharmacy.ParseCode("TXN", "TXN000123")
	require.NoError(t, err)
	assert.Equal(t, int64(123), n)

	_, err = pharmacy.ParseCode("TXN", "P000001")
	assert.Error(t, err)

	_, err = pharmacy.ParseCode("P", "Pabc")
	assert.Error(t, err)
}
