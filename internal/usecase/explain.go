package usecase

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"MedicareCoverageChecker/internal/payment"
)

// PaymentFormula is the physician fee schedule payment formula.
const PaymentFormula = "Payment = (Work RVU + Practice Expense RVU + Malpractice RVU) x Conversion Factor x Geographic Adjustment"

// ExplanationSection groups related points of the explanation.
type ExplanationSection struct {
	Title  string   `json:"title"`
	Points []string `json:"points"`
}

// PaymentExplanation is the structured answer of explain_medicare_payments.
type PaymentExplanation struct {
	Formula                string               `json:"formula"`
	ConversionFactor       string               `json:"conversion_factor"`
	ConversionFactorPolicy string               `json:"conversion_factor_policy"`
	CoinsuranceRate        string               `json:"coinsurance_rate"`
	Year                   int                  `json:"year"`
	Sections               []ExplanationSection `json:"sections"`
	Text                   string               `json:"text"`
}

// Explain documents how payments are computed with the configured constants. No network.
func Explain(calc *payment.Calculator, year int) PaymentExplanation {
	cf := "$" + calc.ConversionFactor().StringFixed(2)
	rate := calc.CoinsuranceRate().Shift(2).String() + "%"
	payerShare := decimal.NewFromInt(1).Sub(calc.CoinsuranceRate()).Shift(2).String() + "%"

	policy := fmt.Sprintf("%s is used unless a data source supplies its own conversion factor", cf)
	if calc.HasOverride() {
		policy = fmt.Sprintf("%s is configured as an override and applies to every lookup", cf)
	}

	sections := []ExplanationSection{
		{
			Title: "Relative Value Units (RVUs)",
			Points: []string{
				"Work RVU: physician time, skill, effort and judgment",
				"Practice Expense RVU: staff, equipment, supplies and office costs",
				"Malpractice RVU: professional liability insurance costs",
			},
		},
		{
			Title:  "Payment calculation",
			Points: []string{PaymentFormula, "Amounts are rounded to the cent, half up"},
		},
		{
			Title:  fmt.Sprintf("%d conversion factor", year),
			Points: []string{policy},
		},
		{
			Title: "Payment settings",
			Points: []string{
				"Facility payment: service performed in a hospital or facility, usually lower practice expense",
				"Non-facility payment: service performed in a physician office, usually higher practice expense",
				"When a source carries a single practice expense RVU both settings pay the same amount",
			},
		},
		{
			Title: "Patient responsibility",
			Points: []string{
				fmt.Sprintf("Medicare pays %s of the approved amount", payerShare),
				fmt.Sprintf("The patient pays %s coinsurance after the Part B deductible", rate),
			},
		},
		{
			Title: "Geographic adjustment",
			Points: []string{
				"Geographic Practice Cost Indices (GPCIs) adjust payments for local costs",
				"A locality factor is applied only when a data source supplies one; otherwise national rates (1.0) are used",
			},
		},
	}

	return PaymentExplanation{
		Formula:                PaymentFormula,
		ConversionFactor:       cf,
		ConversionFactorPolicy: policy,
		CoinsuranceRate:        rate,
		Year:                   year,
		Sections:               sections,
		Text:                   renderSections(sections),
	}
}

func renderSections(sections []ExplanationSection) string {
	if len(sections) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("Medicare Payment Calculation (CMS methodology)\n")
	for i, s := range sections {
		fmt.Fprintf(&b, "\n%d. %s\n", i+1, s.Title)
		for _, p := range s.Points {
			fmt.Fprintf(&b, "   - %s\n", p)
		}
	}
	return b.String()
}
