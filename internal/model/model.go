// Package model defines the wire and state types shared by the xenodash
// packages: stores, summary snapshots, time series and date ranges.
package model

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// DateLayout is the calendar-date format used in query strings and labels.
const DateLayout = "2006-01-02"

// Store is a registered storefront. Identity is ID.
type Store struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
	URL  string `json:"url,omitempty"`
}

// UnmarshalJSON accepts both "url" (store list) and "storeUrl" (tenant
// creation response) for the store URL.
func (s *Store) UnmarshalJSON(data []byte) error {
	var raw struct {
		ID       int    `json:"id"`
		Name     string `json:"name"`
		URL      string `json:"url"`
		StoreURL string `json:"storeUrl"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	s.ID = raw.ID
	s.Name = raw.Name
	s.URL = raw.URL
	if s.URL == "" {
		s.URL = raw.StoreURL
	}
	return nil
}

// User is the account behind the current session.
type User struct {
	Email string `json:"email"`
}

// Customer is one row of the top customers table.
type Customer struct {
	Name     string          `json:"name"`
	Email    string          `json:"email"`
	Spend    decimal.Decimal `json:"spend"`
	Initials string          `json:"initials"`
}

// Snapshot is the summary KPI block for one store. Snapshots are replaced
// wholesale on each fetch.
type Snapshot struct {
	TotalRevenue   decimal.Decimal `json:"totalRevenue"`
	TotalOrders    int             `json:"totalOrders"`
	TotalCustomers int             `json:"totalCustomers"`
	TopCustomers   []Customer      `json:"topCustomers"`
}

// Series is a date-indexed sequence of values. Labels[i] corresponds to Data[i].
type Series struct {
	Labels []string  `json:"labels"`
	Data   []float64 `json:"data"`
}

// Len returns the number of points.
func (s Series) Len() int {
	return len(s.Labels)
}

// Valid reports whether labels and data have the same length.
func (s Series) Valid() bool {
	return len(s.Labels) == len(s.Data)
}

// DateRange is an inclusive calendar range. From <= To is expected but not
// enforced; consumers must tolerate any ordering.
type DateRange struct {
	From time.Time
	To   time.Time
}

// ParseDateRange parses two YYYY-MM-DD strings.
func ParseDateRange(from, to string) (DateRange, error) {
	f, err := time.Parse(DateLayout, from)
	if err != nil {
		return DateRange{}, fmt.Errorf("invalid from date %q: %w", from, err)
	}
	t, err := time.Parse(DateLayout, to)
	if err != nil {
		return DateRange{}, fmt.Errorf("invalid to date %q: %w", to, err)
	}
	return DateRange{From: f, To: t}, nil
}

// MustDateRange is ParseDateRange for constants; it panics on bad input.
func MustDateRange(from, to string) DateRange {
	r, err := ParseDateRange(from, to)
	if err != nil {
		panic(err)
	}
	return r
}

// FromString returns From formatted as YYYY-MM-DD.
func (r DateRange) FromString() string { return r.From.Format(DateLayout) }

// ToString returns To formatted as YYYY-MM-DD.
func (r DateRange) ToString() string { return r.To.Format(DateLayout) }

// Equal reports whether both ranges cover the same days.
func (r DateRange) Equal(o DateRange) bool {
	return r.From.Equal(o.From) && r.To.Equal(o.To)
}

func (r DateRange) String() string {
	return r.FromString() + ".." + r.ToString()
}

// Days returns every calendar date from From to To inclusive, ascending.
// A reversed range yields no dates.
func (r DateRange) Days() []string {
	var days []string
	for d := r.From; !d.After(r.To); d = d.AddDate(0, 0, 1) {
		days = append(days, d.Format(DateLayout))
	}
	return days
}
