package handler

import "github.com/shopspring/decimal"

// formatMinor renders a minor-unit amount as a fixed two-decimal string,
// e.g. 125050 -> "1250.50".
func formatMinor(minor int64) string {
	return decimal.NewFromInt(minor).Div(decimal.NewFromInt(100)).StringFixed(2)
}

// formatMinorPtr renders an optional minor-unit amount
func formatMinorPtr(minor *int64) *string {
	if minor == nil {
		return nil
	}
	s := formatMinor(*minor)
	return &s
}
