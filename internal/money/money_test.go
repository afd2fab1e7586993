package money

import (
	"math"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/boostcampwm-2024/refactor-web03-CorinEE/internal/domain"
)

func TestCheck(t *testing.T) {
	r := Default()

	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"integer", "9500", false},
		{"eight digits", "0.00000001", false},
		{"fewer digits", "1.5", false},
		{"nine digits", "0.000000001", true},
		{"many digits", "3.1415926535", true},
		{"negative ok", "-2.00000001", false},
		{"trailing zeros beyond precision", "1.000000010", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := decimal.NewFromString(tt.input)
			require.NoError(t, err)

			err = r.Check(d)
			if tt.wantErr {
				assert.ErrorIs(t, err, domain.ErrInvalidValue)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestFromFloatRejectsNonFinite(t *testing.T) {
	r := Default()

	for _, f := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
		_, err := r.FromFloat(f)
		assert.ErrorIs(t, err, domain.ErrInvalidValue)
	}

	d, err := r.FromFloat(9500.5)
	require.NoError(t, err)
	assert.True(t, d.Equal(decimal.RequireFromString("9500.5")))
}

func TestParse(t *testing.T) {
	r := Default()

	_, err := r.Parse("not-a-number")
	assert.ErrorIs(t, err, domain.ErrInvalidValue)

	_, err = r.Parse("0.123456789")
	assert.ErrorIs(t, err, domain.ErrInvalidValue)

	d, err := r.Parse("0.12345678")
	require.NoError(t, err)
	assert.Equal(t, "0.12345678", d.String())
}

func TestTruncate(t *testing.T) {
	r := Default()

	// Derived products may exceed the precision; Truncate drops the excess
	// without rounding.
	d := decimal.RequireFromString("0.123456789999")
	assert.Equal(t, "0.12345678", r.Truncate(d).String())

	// Already-precise values pass through unchanged.
	assert.Equal(t, "9500", r.Truncate(decimal.RequireFromString("9500")).String())
}

func TestMeetsMinNotional(t *testing.T) {
	r := Default()
	min := decimal.RequireFromString("5000")

	assert.True(t, r.MeetsMinNotional(decimal.RequireFromString("9000"), decimal.RequireFromString("1"), min))
	assert.True(t, r.MeetsMinNotional(decimal.RequireFromString("10000"), decimal.RequireFromString("0.5"), min))
	assert.False(t, r.MeetsMinNotional(decimal.RequireFromString("100"), decimal.RequireFromString("1"), min))
	// Exactly the minimum qualifies.
	assert.True(t, r.MeetsMinNotional(decimal.RequireFromString("5000"), decimal.RequireFromString("1"), min))
}

func TestIsDust(t *testing.T) {
	r := Default()

	assert.True(t, r.IsDust(decimal.RequireFromString("0.000000009")))
	assert.True(t, r.IsDust(decimal.Zero))
	// Exactly epsilon is fillable.
	assert.False(t, r.IsDust(decimal.RequireFromString("0.00000001")))
	assert.False(t, r.IsDust(decimal.RequireFromString("1")))
}

func TestNewRulesDefaults(t *testing.T) {
	r := NewRules(0, decimal.Zero)
	assert.Equal(t, "0.00000001", r.Epsilon().String())
	assert.NoError(t, r.Check(decimal.RequireFromString("0.00000001")))
}

func TestCustomEpsilon(t *testing.T) {
	r := NewRules(8, decimal.RequireFromString("0.0001"))
	assert.True(t, r.IsDust(decimal.RequireFromString("0.00009999")))
	assert.False(t, r.IsDust(decimal.RequireFromString("0.0001")))
}
