package validator

import (
	"strings"

	"github.com/shopspring/decimal"
)

// ValidationResult holds validation outcome
type ValidationResult struct {
	IsValid bool
	Reason  string
}

// Capture is the locally entered part of a reading
type Capture struct {
	IndexInput    string
	PhotoPath     string
	Inaccessible  bool
	PreviousIndex decimal.Decimal
}

// CaptureResult is the outcome of validating a capture.
// Index is the value to submit; it equals PreviousIndex for inaccessible meters.
type CaptureResult struct {
	ValidationResult
	Index         decimal.Decimal
	BelowPrevious bool
}

// Validator handles local validation of meter index captures
type Validator struct {
	maxIndex decimal.Decimal
}

// NewValidator creates a new validator with the specified upper bound for an index
func NewValidator(maxIndex float64) *Validator {
	return &Validator{
		maxIndex: decimal.NewFromFloat(maxIndex),
	}
}

// NormalizeIndex converts user input such as "95,5" into a number
func (v *Validator) NormalizeIndex(raw string) (decimal.Decimal, ValidationResult) {
	result := ValidationResult{IsValid: true}

	normalized := strings.TrimSpace(raw)
	normalized = strings.ReplaceAll(normalized, " ", "")
	normalized = strings.ReplaceAll(normalized, ",", ".")

	if normalized == "" {
		result.IsValid = false
		result.Reason = "meter index is required"
		return decimal.Zero, result
	}

	if strings.Count(normalized, ".") > 1 {
		result.IsValid = false
		result.Reason = "meter index is not a valid number"
		return decimal.Zero, result
	}

	value, err := decimal.NewFromString(normalized)
	if err != nil {
		result.IsValid = false
		result.Reason = "meter index is not a valid number"
		return decimal.Zero, result
	}

	if value.IsNegative() {
		result.IsValid = false
		result.Reason = "meter index must not be negative"
		return value, result
	}

	if v.maxIndex.IsPositive() && value.GreaterThan(v.maxIndex) {
		result.IsValid = false
		result.Reason = "meter index is too large"
		return value, result
	}

	return value, result
}

// ValidateCapture applies the field rules that gate a submission
func (v *Validator) ValidateCapture(c Capture) CaptureResult {
	if c.Inaccessible {
		return CaptureResult{
			ValidationResult: ValidationResult{IsValid: true},
			Index:            c.PreviousIndex,
		}
	}

	index, result := v.NormalizeIndex(c.IndexInput)
	if !result.IsValid {
		return CaptureResult{ValidationResult: result}
	}

	if strings.TrimSpace(c.PhotoPath) == "" {
		return CaptureResult{ValidationResult: ValidationResult{
			IsValid: false,
			Reason:  "a photo of the meter is required",
		}}
	}

	return CaptureResult{
		ValidationResult: result,
		Index:            index,
		BelowPrevious:    index.LessThan(c.PreviousIndex),
	}
}

// Consumption is current minus previous, clamped at zero; inaccessible readings consume nothing
func Consumption(current, previous decimal.Decimal, inaccessible bool) decimal.Decimal {
	if inaccessible {
		return decimal.Zero
	}
	diff := current.Sub(previous)
	if diff.IsNegative() {
		return decimal.Zero
	}
	return diff
}
