package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"MedicareCoverageChecker/internal/domain"
	"MedicareCoverageChecker/internal/ports"
)

// Response statuses. Every lookup answer carries exactly one of them.
const (
	StatusSuccess            = "success"
	StatusNotFound           = "not_found"
	StatusSourcesUnavailable = "sources_unavailable"
	StatusInvalidInput       = "invalid_input"
)

// LookupResponse is the structured answer of lookup_reimbursement.
type LookupResponse struct {
	Status             string              `json:"status"`
	Message            string              `json:"message"`
	Code               string              `json:"code,omitempty"`
	Description        string              `json:"description,omitempty"`
	PaymentInformation *PaymentInformation `json:"payment_information,omitempty"`
	RelativeValueUnits *RelativeValueUnits `json:"relative_value_units,omitempty"`
	AdditionalInfo     *AdditionalInfo     `json:"additional_info,omitempty"`
	MissingFields      []string            `json:"missing_fields,omitempty"`
	AttemptedSources   []string            `json:"attempted_sources,omitempty"`
	SourceErrors       []SourceError       `json:"source_errors,omitempty"`
}

// PaymentInformation holds dollar amounts; null means the figure could not be computed.
type PaymentInformation struct {
	NationalPaymentAmount *string `json:"national_payment_amount"`
	FacilityPayment       *string `json:"facility_payment"`
	NonFacilityPayment    *string `json:"non_facility_payment"`
	PatientCoinsurance    *string `json:"patient_coinsurance"`
	CoinsuranceRate       string  `json:"coinsurance_rate"`
}

// RelativeValueUnits lists the RVU components as numbers.
type RelativeValueUnits struct {
	WorkRVU             *float64 `json:"work_rvu"`
	PracticeExpenseRVU  *float64 `json:"practice_expense_rvu"`
	MalpracticeRVU      *float64 `json:"malpractice_rvu"`
	TotalRVU            *float64 `json:"total_rvu"`
	FacilityPERVU       *float64 `json:"facility_pe_rvu,omitempty"`
	NonFacilityPERVU    *float64 `json:"non_facility_pe_rvu,omitempty"`
	FacilityTotalRVU    *float64 `json:"facility_total_rvu,omitempty"`
	NonFacilityTotalRVU *float64 `json:"non_facility_total_rvu,omitempty"`
}

// AdditionalInfo carries context for the figures.
type AdditionalInfo struct {
	ConversionFactor         string            `json:"conversion_factor"`
	ConversionFactorSource   string            `json:"conversion_factor_source"`
	GeographicAdjustment     float64           `json:"geographic_adjustment"`
	GeographicAdjustmentNote string            `json:"geographic_adjustment_note"`
	GlobalPeriod             string            `json:"global_period,omitempty"`
	StatusIndicator          string            `json:"status_indicator,omitempty"`
	Locality                 string            `json:"locality"`
	Year                     string            `json:"year"`
	DataSource               string            `json:"data_source"`
	FieldSources             map[string]string `json:"field_sources"`
}

// SourceError reports one failed source.
type SourceError struct {
	Source   string `json:"source"`
	Endpoint string `json:"endpoint"`
	Kind     string `json:"kind"`
	Error    string `json:"error"`
}

// Respond runs a lookup and formats every caller-visible outcome, including invalid input.
// Only unexpected failures such as caller cancellation are returned as errors.
func Respond(ctx context.Context, lookuper ports.Lookuper, code, locality string) (LookupResponse, error) {
	outcome, err := lookuper.Lookup(ctx, code, locality)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidInput) {
			return InvalidInputResponse(code, err), nil
		}
		return LookupResponse{}, err
	}
	return FormatOutcome(outcome), nil
}

// InvalidInputResponse explains why a code was rejected.
func InvalidInputResponse(code string, err error) LookupResponse {
	return LookupResponse{
		Status:  StatusInvalidInput,
		Message: fmt.Sprintf("Please provide a valid HCPCS or CPT code: %v", err),
		Code:    strings.ToUpper(strings.TrimSpace(code)),
	}
}

// FormatOutcome shapes a lookup outcome into its structured response.
func FormatOutcome(outcome domain.LookupOutcome) LookupResponse {
	switch o := outcome.(type) {
	case domain.Success:
		return formatSuccess(o.Record)
	case domain.NotFound:
		return LookupResponse{
			Status: StatusNotFound,
			Message: fmt.Sprintf("Code %s was not found in any CMS source. It may not be on the Medicare "+
				"physician fee schedule or may not be payable under Part B.", o.Code),
			Code:             o.Code,
			AttemptedSources: o.Attempted,
			SourceErrors:     formatFailures(o.Failures),
		}
	case domain.SourcesUnavailable:
		return LookupResponse{
			Status:       StatusSourcesUnavailable,
			Message:      fmt.Sprintf("No CMS data source could be reached while looking up %s. Try again later.", o.Code),
			Code:         o.Code,
			SourceErrors: formatFailures(o.Failures),
		}
	default:
		return LookupResponse{Status: StatusSourcesUnavailable, Message: "lookup produced no outcome"}
	}
}

func formatSuccess(r domain.ReimbursementRecord) LookupResponse {
	message := fmt.Sprintf("Medicare reimbursement for %s from %s.", r.Code, strings.Join(r.DataSources, ", "))
	if len(r.Missing) > 0 {
		message += fmt.Sprintf(" Missing from every source: %s; payment figures that depend on them are null.",
			strings.Join(r.Missing, ", "))
	}

	fieldSources := make(map[string]string, len(r.FieldSources))
	for field, src := range r.FieldSources {
		fieldSources[string(field)] = src
	}

	return LookupResponse{
		Status:      StatusSuccess,
		Message:     message,
		Code:        r.Code,
		Description: r.Description,
		PaymentInformation: &PaymentInformation{
			NationalPaymentAmount: money(r.NationalPayment),
			FacilityPayment:       money(r.FacilityPayment),
			NonFacilityPayment:    money(r.NonFacilityPayment),
			PatientCoinsurance:    money(r.PatientCoinsurance),
			CoinsuranceRate:       r.CoinsuranceRate.Shift(2).String() + "%",
		},
		RelativeValueUnits: &RelativeValueUnits{
			WorkRVU:             number(r.WorkRVU),
			PracticeExpenseRVU:  number(r.PracticeExpenseRVU),
			MalpracticeRVU:      number(r.MalpracticeRVU),
			TotalRVU:            number(r.TotalRVU),
			FacilityPERVU:       number(r.FacilityPERVU),
			NonFacilityPERVU:    number(r.NonFacilityPERVU),
			FacilityTotalRVU:    number(r.FacilityTotalRVU),
			NonFacilityTotalRVU: number(r.NonFacilityTotalRVU),
		},
		AdditionalInfo: &AdditionalInfo{
			ConversionFactor:         "$" + r.ConversionFactor.StringFixed(2),
			ConversionFactorSource:   r.ConversionOrigin,
			GeographicAdjustment:     r.GeographicAdjustment.InexactFloat64(),
			GeographicAdjustmentNote: adjustmentNote(r),
			GlobalPeriod:             r.GlobalPeriod,
			StatusIndicator:          r.StatusIndicator,
			Locality:                 r.Locality,
			Year:                     r.Year,
			DataSource:               strings.Join(r.DataSources, ", "),
			FieldSources:             fieldSources,
		},
		MissingFields: r.Missing,
	}
}

func adjustmentNote(r domain.ReimbursementRecord) string {
	switch {
	case !r.NationalAdjustment:
		return fmt.Sprintf("locality factor for %s supplied by %s", r.Locality, r.FieldSources[domain.FieldGeographicAdjustment])
	case strings.EqualFold(r.Locality, domain.NationalLocality):
		return "national rates, no geographic adjustment"
	default:
		return fmt.Sprintf("no factor available for %s; national rates used", r.Locality)
	}
}

func formatFailures(failures []domain.SourceFailure) []SourceError {
	if len(failures) == 0 {
		return nil
	}
	out := make([]SourceError, 0, len(failures))
	for _, f := range failures {
		out = append(out, SourceError{
			Source:   f.Source,
			Endpoint: f.Endpoint,
			Kind:     string(f.Kind),
			Error:    f.Error,
		})
	}
	return out
}

func money(d decimal.NullDecimal) *string {
	if !d.Valid {
		return nil
	}
	s := "$" + d.Decimal.StringFixed(2)
	return &s
}

func number(d decimal.NullDecimal) *float64 {
	if !d.Valid {
		return nil
	}
	f := d.Decimal.InexactFloat64()
	return &f
}
