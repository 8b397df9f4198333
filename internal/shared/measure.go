package shared

import "github.com/shopspring/decimal"

const (
	// WeightPlaces is the precision of quantities expressed in kilograms.
	WeightPlaces = 3
	// MoneyPlaces is the precision used when comparing euro amounts.
	MoneyPlaces = 2
)

// RoundKg rounds a weight to gram precision.
func RoundKg(v float64) float64 {
	return decimal.NewFromFloat(v).Round(WeightPlaces).InexactFloat64()
}

// RoundEuro rounds an amount to cents.
func RoundEuro(v float64) float64 {
	return decimal.NewFromFloat(v).Round(MoneyPlaces).InexactFloat64()
}

// Kg converts a float weight into a decimal at gram precision.
func Kg(v float64) decimal.Decimal {
	return decimal.NewFromFloat(v).Round(WeightPlaces)
}

// SameKg reports whether two weights are equal at gram precision.
func SameKg(a, b decimal.Decimal) bool {
	return a.Round(WeightPlaces).Equal(b.Round(WeightPlaces))
}

// SameEuro reports whether two amounts are equal at cent precision.
func SameEuro(a, b decimal.Decimal) bool {
	return a.Round(MoneyPlaces).Equal(b.Round(MoneyPlaces))
}
