package stats

import (
	"math"
	"time"

	"github.com/shopspring/decimal"

	"github.com/roach88/xenodash/internal/model"
)

// PlaceholderSnapshot is the summary shown when the backend cannot be
// reached. Each call returns a fresh copy.
func PlaceholderSnapshot() model.Snapshot {
	return model.Snapshot{
		TotalRevenue:   decimal.RequireFromString("1721.89"),
		TotalOrders:    3,
		TotalCustomers: 4,
		TopCustomers: []model.Customer{
			{Name: "Russell Winfield", Email: "Russel.winfield@example.com", Spend: decimal.RequireFromString("885.95"), Initials: "RW"},
			{Name: "Demo Customer", Email: "demo123customer@gmail.com", Spend: decimal.RequireFromString("825.94"), Initials: "DC"},
			{Name: "Ayumu Hirano", Email: "ayumu.hirano@example.com", Spend: decimal.RequireFromString("10.00"), Initials: "AH"},
		},
	}
}

// PlaceholderRevenue generates the deterministic revenue series for a range.
//
// For the i-th date d in the range:
//
//	base(d) + sin(i*0.8)*300 + cos(dayOfMonth(d)*0.3)*150 + d[8]%200
//
// rounded half-up to cents, where base is 1200 on weekends, 1800 on Mondays
// and 1500 otherwise. d[8] is the tens digit of the day as an ASCII code.
// Weekdays are evaluated in UTC.
func PlaceholderRevenue(r model.DateRange) model.Series {
	return generate(r, func(i int, day time.Time, label string) float64 {
		base := 1500.0
		switch day.Weekday() {
		case time.Saturday, time.Sunday:
			base = 1200
		case time.Monday:
			base = 1800
		}
		variation := math.Sin(float64(i)*0.8)*300 +
			math.Cos(float64(day.Day())*0.3)*150 +
			float64(int(label[8])%200)
		return roundHalfUp((base+variation)*100) / 100
	})
}

// PlaceholderOrders generates the deterministic order-count series for a
// range.
//
// For the i-th date d in the range:
//
//	max(0, base(d) + floor(sin(i*1.2)*3 + cos(dayOfMonth(d)*0.4)*2 + d[8]%4))
//
// where base is 1 on weekends, 5 on Mondays and Fridays and 3 otherwise.
func PlaceholderOrders(r model.DateRange) model.Series {
	return generate(r, func(i int, day time.Time, label string) float64 {
		base := 3.0
		switch day.Weekday() {
		case time.Saturday, time.Sunday:
			base = 1
		case time.Monday, time.Friday:
			base = 5
		}
		variation := math.Floor(math.Sin(float64(i)*1.2)*3 +
			math.Cos(float64(day.Day())*0.4)*2 +
			float64(int(label[8])%4))
		return math.Max(0, base+variation)
	})
}

func generate(r model.DateRange, value func(i int, day time.Time, label string) float64) model.Series {
	labels := r.Days()
	data := make([]float64, len(labels))
	for i, label := range labels {
		day, _ := time.Parse(model.DateLayout, label)
		data[i] = value(i, day, label)
	}
	if labels == nil {
		labels = []string{}
	}
	return model.Series{Labels: labels, Data: data}
}

// roundHalfUp rounds to the nearest integer, ties toward +Inf.
func roundHalfUp(x float64) float64 {
	return math.Floor(x + 0.5)
}
