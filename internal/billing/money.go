package billing

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Cents is a monetary amount in minor units. It serializes as a decimal
// string ("100.00") so consumers never see float rounding.
type Cents int64

// ParseCents parses amounts such as "1,234.50", "$12" or "7.5".
func ParseCents(s string) (Cents, bool) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "$")
	s = strings.ReplaceAll(s, ",", "")
	if s == "" || s == "." {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return Cents(math.Round(f * 100)), true
}

// Times multiplies an amount by a (possibly fractional) quantity
func (c Cents) Times(quantity float64) Cents {
	return Cents(math.Round(float64(c) * quantity))
}

func (c Cents) String() string {
	sign := ""
	v := int64(c)
	if v < 0 {
		sign = "-"
		v = -v
	}
	return fmt.Sprintf("%s%d.%02d", sign, v/100, v%100)
}

// Ptr returns a pointer to a copy of c
func (c Cents) Ptr() *Cents {
	return &c
}

func (c Cents) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.String())
}

func (c *Cents) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		var f float64
		if err := json.Unmarshal(data, &f); err != nil {
			return fmt.Errorf("amount must be a string or number: %w", err)
		}
		s = strconv.FormatFloat(f, 'f', -1, 64)
	}
	v, ok := ParseCents(s)
	if !ok {
		return fmt.Errorf("invalid amount %q", s)
	}
	*c = v
	return nil
}
