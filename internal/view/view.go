// Package view renders dashboard state for the terminal, as text or as a
// JSON-ready report. It is presentation only and never touches the network.
package view

import (
	"fmt"
	"io"
	"math"
	"strings"
	"unicode/utf8"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/roach88/xenodash/internal/dashboard"
	"github.com/roach88/xenodash/internal/model"
	"github.com/roach88/xenodash/internal/stats"
)

// Chart titles.
const (
	RevenueTitle = "Daily Revenue ($)"
	OrdersTitle  = "Daily Orders"
)

// Unit selects how series values are printed.
type Unit int

const (
	Dollars Unit = iota
	Count
)

var sparks = []rune("▁▂▃▄▅▆▇█")

func printer() *message.Printer {
	return message.NewPrinter(language.English)
}

// Money formats an amount as dollars with thousands grouping.
func Money(d decimal.Decimal) string {
	return "$" + printer().Sprintf("%.2f", d.InexactFloat64())
}

// Number formats a count with thousands grouping.
func Number(n int) string {
	return printer().Sprintf("%d", n)
}

func formatValue(v float64, u Unit) string {
	if u == Dollars {
		return printer().Sprintf("%.2f", v)
	}
	return printer().Sprintf("%.0f", v)
}

// Sparkline draws data as a single row of block characters scaled between
// the series minimum and maximum. A flat series sits at mid height.
func Sparkline(data []float64) string {
	if len(data) == 0 {
		return ""
	}
	lo, hi := data[0], data[0]
	for _, v := range data[1:] {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}

	top := len(sparks) - 1
	var b strings.Builder
	for _, v := range data {
		idx := top / 2
		if hi > lo {
			idx = int(math.Floor((v-lo)/(hi-lo)*float64(top) + 0.5))
		}
		b.WriteRune(sparks[idx])
	}
	return b.String()
}

// sourceTag marks placeholder data. Live data has no tag.
func sourceTag[T any](res *stats.Result[T]) string {
	if !res.Placeholder() {
		return ""
	}
	return "  [placeholder: " + res.Kind.String() + "]"
}

// WriteSummary writes the KPI cards and the top customers table.
func WriteSummary(w io.Writer, res *stats.Result[model.Snapshot]) {
	if res == nil {
		fmt.Fprintln(w, "Summary: loading")
		return
	}
	snap := res.Value
	fmt.Fprintf(w, "Summary%s\n", sourceTag(res))
	fmt.Fprintf(w, "  %-17s%s\n", "Total Revenue", Money(snap.TotalRevenue))
	fmt.Fprintf(w, "  %-17s%s\n", "Total Orders", Number(snap.TotalOrders))
	fmt.Fprintf(w, "  %-17s%s\n", "Total Customers", Number(snap.TotalCustomers))
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Top Customers")
	if len(snap.TopCustomers) == 0 {
		fmt.Fprintln(w, "  (none)")
		return
	}
	nameW, emailW := 0, 0
	for _, c := range snap.TopCustomers {
		nameW = max(nameW, utf8.RuneCountInString(c.Name))
		emailW = max(emailW, utf8.RuneCountInString(c.Email))
	}
	for _, c := range snap.TopCustomers {
		fmt.Fprintf(w, "  %-3s %s  %s  %s\n",
			c.Initials, pad(c.Name, nameW), pad(c.Email, emailW), Money(c.Spend))
	}
}

// WriteSeries writes one chart: title, range, sparkline and min/max/total.
func WriteSeries(w io.Writer, title string, r model.DateRange, res *stats.Result[model.Series], u Unit) {
	if res == nil {
		fmt.Fprintf(w, "%s  %s\n  loading\n", title, r)
		return
	}
	s := res.Value
	fmt.Fprintf(w, "%s  %s%s\n", title, r, sourceTag(res))
	if len(s.Data) == 0 {
		fmt.Fprintln(w, "  (no data)")
		return
	}
	lo, hi, total := s.Data[0], s.Data[0], 0.0
	for _, v := range s.Data {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
		total += v
	}
	fmt.Fprintf(w, "  %s\n", Sparkline(s.Data))
	fmt.Fprintf(w, "  %s .. %s  min %s  max %s  total %s\n",
		s.Labels[0], s.Labels[len(s.Labels)-1],
		formatValue(lo, u), formatValue(hi, u), formatValue(total, u))
}

// WriteStores lists stores, marking the current one with '*'.
func WriteStores(w io.Writer, stores []model.Store, current *model.Store) {
	if len(stores) == 0 {
		fmt.Fprintln(w, "No stores connected. Add one with: xenodash tenant add")
		return
	}
	for _, s := range stores {
		mark := " "
		if current != nil && current.ID == s.ID {
			mark = "*"
		}
		fmt.Fprintf(w, "%s %3d  %s", mark, s.ID, s.Name)
		if s.URL != "" {
			fmt.Fprintf(w, "  %s", s.URL)
		}
		fmt.Fprintln(w)
	}
}

// WriteDashboard writes the full dashboard.
func WriteDashboard(w io.Writer, st dashboard.State) {
	fmt.Fprintln(w, "Xeno Analytics Dashboard")
	fmt.Fprintf(w, "Signed in as %s <%s>\n", st.DisplayName, st.User.Email)
	fmt.Fprintln(w)

	if st.NoStores || st.Current == nil {
		WriteStores(w, st.Stores, st.Current)
		return
	}

	fmt.Fprintln(w, "Stores")
	WriteStores(w, st.Stores, st.Current)
	fmt.Fprintln(w)

	if st.SyncMessage != "" {
		fmt.Fprintf(w, "Sync: %s\n\n", st.SyncMessage)
	}

	WriteSummary(w, st.Summary)
	fmt.Fprintln(w)
	WriteSeries(w, RevenueTitle, st.RevenueRange, st.Revenue, Dollars)
	fmt.Fprintln(w)
	WriteSeries(w, OrdersTitle, st.OrdersRange, st.Orders, Count)
}

func pad(s string, width int) string {
	if n := utf8.RuneCountInString(s); n < width {
		return s + strings.Repeat(" ", width-n)
	}
	return s
}
