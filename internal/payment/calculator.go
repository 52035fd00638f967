package payment

import (
	"github.com/shopspring/decimal"
)

// Conversion factor origins reported alongside every computed payment.
const (
	OriginOverride = "override"
	OriginSource   = "source"
	OriginDefault  = "default"
)

var one = decimal.NewFromInt(1)

// Inputs are the figures a record carries; Valid=false means the source did not supply it.
type Inputs struct {
	Work                 decimal.NullDecimal
	PracticeExpense      decimal.NullDecimal
	FacilityPE           decimal.NullDecimal
	NonFacilityPE        decimal.NullDecimal
	Malpractice          decimal.NullDecimal
	ConversionFactor     decimal.NullDecimal
	GeographicAdjustment decimal.NullDecimal
	National             bool
}

// Result holds the computed figures. Payments stay invalid whenever an RVU they need is missing.
type Result struct {
	PracticeExpense        decimal.NullDecimal
	TotalRVU               decimal.NullDecimal
	FacilityTotalRVU       decimal.NullDecimal
	NonFacilityTotalRVU    decimal.NullDecimal
	NationalPayment        decimal.NullDecimal
	FacilityPayment        decimal.NullDecimal
	NonFacilityPayment     decimal.NullDecimal
	Coinsurance            decimal.NullDecimal
	CoinsuranceRate        decimal.Decimal
	ConversionFactor       decimal.Decimal
	ConversionFactorOrigin string
	GeographicAdjustment   decimal.Decimal
	NationalAdjustment     bool
}

// Calculator applies the physician fee schedule formula
// payment = (work + pe + mp) x conversion factor x geographic adjustment.
type Calculator struct {
	override        decimal.NullDecimal
	defaultCF       decimal.Decimal
	coinsuranceRate decimal.Decimal
}

// NewCalculator fixes the conversion factor policy and coinsurance rate.
// A nil override lets source-supplied factors through.
func NewCalculator(override *float64, defaultCF, coinsuranceRate float64) *Calculator {
	c := &Calculator{
		defaultCF:       decimal.NewFromFloat(defaultCF),
		coinsuranceRate: decimal.NewFromFloat(coinsuranceRate),
	}
	if override != nil && *override > 0 {
		c.override = decimal.NewNullDecimal(decimal.NewFromFloat(*override))
	}
	return c
}

// ConversionFactor is the factor used when a record supplies none.
func (c *Calculator) ConversionFactor() decimal.Decimal {
	if c.override.Valid {
		return c.override.Decimal
	}
	return c.defaultCF
}

// HasOverride reports whether a configured factor replaces any source-supplied one.
func (c *Calculator) HasOverride() bool {
	return c.override.Valid
}

// CoinsuranceRate is the patient share of the national payment.
func (c *Calculator) CoinsuranceRate() decimal.Decimal {
	return c.coinsuranceRate
}

// Compute derives totals, payments and coinsurance. It never substitutes zero for a missing RVU.
func (c *Calculator) Compute(in Inputs) Result {
	res := Result{CoinsuranceRate: c.coinsuranceRate}
	res.ConversionFactor, res.ConversionFactorOrigin = c.resolveConversionFactor(in.ConversionFactor)
	res.GeographicAdjustment, res.NationalAdjustment = resolveAdjustment(in)

	res.PracticeExpense = firstValid(in.PracticeExpense, in.NonFacilityPE, in.FacilityPE)
	res.TotalRVU = sum(in.Work, res.PracticeExpense, in.Malpractice)
	res.FacilityTotalRVU = sum(in.Work, firstValid(in.FacilityPE, res.PracticeExpense), in.Malpractice)
	res.NonFacilityTotalRVU = sum(in.Work, firstValid(in.NonFacilityPE, res.PracticeExpense), in.Malpractice)

	factor := res.ConversionFactor.Mul(res.GeographicAdjustment)
	res.NationalPayment = c.pay(res.TotalRVU, factor)
	res.FacilityPayment = c.pay(res.FacilityTotalRVU, factor)
	res.NonFacilityPayment = c.pay(res.NonFacilityTotalRVU, factor)

	if res.NationalPayment.Valid {
		res.Coinsurance = decimal.NewNullDecimal(Round(res.NationalPayment.Decimal.Mul(c.coinsuranceRate)))
	}
	return res
}

func (c *Calculator) resolveConversionFactor(supplied decimal.NullDecimal) (decimal.Decimal, string) {
	switch {
	case c.override.Valid:
		return c.override.Decimal, OriginOverride
	case supplied.Valid && supplied.Decimal.IsPositive():
		return supplied.Decimal, OriginSource
	default:
		return c.defaultCF, OriginDefault
	}
}

// resolveAdjustment returns the factor and whether national rates (1.0) were used.
func resolveAdjustment(in Inputs) (decimal.Decimal, bool) {
	if in.National || !in.GeographicAdjustment.Valid || !in.GeographicAdjustment.Decimal.IsPositive() {
		return one, true
	}
	return in.GeographicAdjustment.Decimal, false
}

func (c *Calculator) pay(total decimal.NullDecimal, factor decimal.Decimal) decimal.NullDecimal {
	if !total.Valid {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(Round(total.Decimal.Mul(factor)))
}

// Round rounds money to cents, half away from zero.
func Round(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

func sum(parts ...decimal.NullDecimal) decimal.NullDecimal {
	total := decimal.Zero
	for _, p := range parts {
		if !p.Valid {
			return decimal.NullDecimal{}
		}
		total = total.Add(p.Decimal)
	}
	return decimal.NewNullDecimal(total)
}

func firstValid(values ...decimal.NullDecimal) decimal.NullDecimal {
	for _, v := range values {
		if v.Valid {
			return v
		}
	}
	return decimal.NullDecimal{}
}
