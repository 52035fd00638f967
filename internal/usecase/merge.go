package usecase

import (
	"sort"
	"strconv"

	"github.com/shopspring/decimal"

	"MedicareCoverageChecker/internal/domain"
	"MedicareCoverageChecker/internal/payment"
)

// practiceExpenseGroup fields are taken together from the first source that supplies any of them.
var practiceExpenseGroup = map[domain.Field]bool{
	domain.FieldPracticeExpenseRVU: true,
	domain.FieldFacilityPERVU:      true,
	domain.FieldNonFacilityPERVU:   true,
}

// accumulator folds source results in priority order. A field, once set, is never overwritten.
type accumulator struct {
	fields       domain.Fields
	origin       map[domain.Field]string
	peSource     string
	contributors []string
	attempted    []string
	failures     []domain.SourceFailure
	unreachable  int
}

func newAccumulator() *accumulator {
	return &accumulator{
		fields: domain.Fields{},
		origin: map[domain.Field]string{},
	}
}

func (a *accumulator) add(res domain.RawSourceResult) {
	a.attempted = append(a.attempted, res.Source)

	switch res.Status {
	case domain.SourceError:
		if res.Unreachable() {
			a.unreachable++
		}
		a.failures = append(a.failures, domain.SourceFailure{
			Source:   res.Source,
			Endpoint: res.Endpoint,
			Kind:     res.Kind,
			Error:    res.Detail,
		})
	case domain.SourceOK:
		keys := make([]string, 0, len(res.Fields))
		for field := range res.Fields {
			keys = append(keys, string(field))
		}
		sort.Strings(keys)

		contributed := false
		for _, key := range keys {
			field := domain.Field(key)
			if _, done := a.fields[field]; done {
				continue
			}
			if practiceExpenseGroup[field] {
				if a.peSource != "" && a.peSource != res.Source {
					continue
				}
				a.peSource = res.Source
			}
			a.fields[field] = res.Fields[field]
			a.origin[field] = res.Source
			contributed = true
		}
		if contributed {
			a.contributors = append(a.contributors, res.Source)
		}
	}
}

// allUnreachable is true only when every attempted source failed to answer at all.
func (a *accumulator) allUnreachable() bool {
	return len(a.attempted) > 0 && a.unreachable == len(a.attempted)
}

func (a *accumulator) hasDescription() bool {
	_, ok := a.fields[domain.FieldDescription]
	return ok
}

// requiredRVUs are reported in missing when absent; payments depend on all three.
var requiredRVUs = []domain.Field{
	domain.FieldWorkRVU,
	domain.FieldPracticeExpenseRVU,
	domain.FieldMalpracticeRVU,
}

func buildRecord(q domain.CodeQuery, acc *accumulator, calc *payment.Calculator, defaultYear int) domain.ReimbursementRecord {
	f := acc.fields
	res := calc.Compute(payment.Inputs{
		Work:                 nullDecimal(f, domain.FieldWorkRVU),
		PracticeExpense:      nullDecimal(f, domain.FieldPracticeExpenseRVU),
		FacilityPE:           nullDecimal(f, domain.FieldFacilityPERVU),
		NonFacilityPE:        nullDecimal(f, domain.FieldNonFacilityPERVU),
		Malpractice:          nullDecimal(f, domain.FieldMalpracticeRVU),
		ConversionFactor:     nullDecimal(f, domain.FieldConversionFactor),
		GeographicAdjustment: nullDecimal(f, domain.FieldGeographicAdjustment),
		National:             q.IsNational(),
	})

	record := domain.ReimbursementRecord{
		Code:                 q.Code,
		Description:          f[domain.FieldDescription],
		WorkRVU:              nullDecimal(f, domain.FieldWorkRVU),
		PracticeExpenseRVU:   res.PracticeExpense,
		FacilityPERVU:        nullDecimal(f, domain.FieldFacilityPERVU),
		NonFacilityPERVU:     nullDecimal(f, domain.FieldNonFacilityPERVU),
		MalpracticeRVU:       nullDecimal(f, domain.FieldMalpracticeRVU),
		TotalRVU:             res.TotalRVU,
		FacilityTotalRVU:     reportedOr(f, domain.FieldFacilityTotalRVU, res.FacilityTotalRVU),
		NonFacilityTotalRVU:  reportedOr(f, domain.FieldNonFacilityTotalRVU, res.NonFacilityTotalRVU),
		ConversionFactor:     res.ConversionFactor,
		ConversionOrigin:     res.ConversionFactorOrigin,
		GeographicAdjustment: res.GeographicAdjustment,
		NationalAdjustment:   res.NationalAdjustment,
		NationalPayment:      res.NationalPayment,
		FacilityPayment:      res.FacilityPayment,
		NonFacilityPayment:   res.NonFacilityPayment,
		PatientCoinsurance:   res.Coinsurance,
		CoinsuranceRate:      res.CoinsuranceRate,
		Locality:             q.Locality,
		Year:                 f[domain.FieldYear],
		StatusIndicator:      f[domain.FieldStatusIndicator],
		GlobalPeriod:         f[domain.FieldGlobalPeriod],
		DataSources:          append([]string(nil), acc.contributors...),
		FieldSources:         make(map[domain.Field]string, len(acc.origin)),
	}
	if record.Year == "" {
		record.Year = strconv.Itoa(defaultYear)
	}
	for field, src := range acc.origin {
		record.FieldSources[field] = src
	}

	for _, field := range requiredRVUs {
		if field == domain.FieldPracticeExpenseRVU {
			if !f.HasPracticeExpense() {
				record.Missing = append(record.Missing, string(field))
			}
			continue
		}
		if _, ok := f[field]; !ok {
			record.Missing = append(record.Missing, string(field))
		}
	}
	return record
}

func nullDecimal(f domain.Fields, field domain.Field) decimal.NullDecimal {
	d, ok := f.Decimal(field)
	if !ok {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(d)
}

func reportedOr(f domain.Fields, field domain.Field, computed decimal.NullDecimal) decimal.NullDecimal {
	if reported := nullDecimal(f, field); reported.Valid {
		return reported
	}
	return computed
}
