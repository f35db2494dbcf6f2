package currency

import (
	"strings"

	"golang.org/x/text/currency"
)

// Conversions converts between ISO-4217 currencies.
type Conversions interface {
	GetRate(from string, to string) (float64, error)
}

// Rates is a static conversion table, typically loaded from configuration.
type Rates struct {
	conversions map[string]map[string]float64
}

// NewRates copies conversions with every currency code upper-cased.
func NewRates(conversions map[string]map[string]float64) *Rates {
	normalized := make(map[string]map[string]float64, len(conversions))
	for from, targets := range conversions {
		row := make(map[string]float64, len(targets))
		for to, rate := range targets {
			row[strings.ToUpper(to)] = rate
		}
		normalized[strings.ToUpper(from)] = row
	}
	return &Rates{conversions: normalized}
}

// Table returns a copy of the configured conversions.
func (r *Rates) Table() map[string]map[string]float64 {
	table := make(map[string]map[string]float64, len(r.conversions))
	for from, targets := range r.conversions {
		row := make(map[string]float64, len(targets))
		for to, rate := range targets {
			row[to] = rate
		}
		table[from] = row
	}
	return table
}

// GetRate returns the rate to multiply a `from` amount by to express it in `to`. Direct entries
// are preferred, then reciprocal entries, then a conversion through any shared base currency.
func (r *Rates) GetRate(from, to string) (float64, error) {
	fromUnit, toUnit, err := parsePair(from, to)
	if err != nil {
		return 0, err
	}
	f, t := fromUnit.String(), toUnit.String()
	if f == t {
		return 1, nil
	}

	if rate, ok := r.conversions[f][t]; ok && rate > 0 {
		return rate, nil
	}
	if rate, ok := r.conversions[t][f]; ok && rate > 0 {
		return 1 / rate, nil
	}
	for _, base := range r.conversions {
		toRate, hasTo := base[t]
		fromRate, hasFrom := base[f]
		if hasTo && hasFrom && fromRate > 0 {
			return toRate / fromRate, nil
		}
	}
	return 0, ConversionNotFoundError{FromCur: f, ToCur: t}
}

// ConstantRates only accepts identity conversions.
type ConstantRates struct{}

func NewConstantRates() *ConstantRates {
	return &ConstantRates{}
}

func (r *ConstantRates) GetRate(from string, to string) (float64, error) {
	fromUnit, toUnit, err := parsePair(from, to)
	if err != nil {
		return 0, err
	}
	if fromUnit.String() != toUnit.String() {
		return 0, ConversionNotFoundError{FromCur: fromUnit.String(), ToCur: toUnit.String()}
	}
	return 1, nil
}

func parsePair(from, to string) (currency.Unit, currency.Unit, error) {
	fromUnit, err := currency.ParseISO(from)
	if err != nil {
		return currency.Unit{}, currency.Unit{}, err
	}
	toUnit, err := currency.ParseISO(to)
	if err != nil {
		return currency.Unit{}, currency.Unit{}, err
	}
	return fromUnit, toUnit, nil
}
