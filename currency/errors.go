package currency

import "fmt"

// ConversionNotFoundError is returned when neither a direct, reciprocal nor intermediate rate exists.
type ConversionNotFoundError struct {
	FromCur, ToCur string
}

func (err ConversionNotFoundError) Error() string {
	return fmt.Sprintf("Currency conversion rate not found: '%s' => '%s'", err.FromCur, err.ToCur)
}
