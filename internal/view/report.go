package view

import (
	"github.com/roach88/xenodash/internal/dashboard"
	"github.com/roach88/xenodash/internal/model"
	"github.com/roach88/xenodash/internal/stats"
)

// Report is the JSON shape of the dashboard.
type Report struct {
	User        UserView      `json:"user"`
	Stores      []model.Store `json:"stores"`
	Store       *model.Store  `json:"store,omitempty"`
	Summary     *SummaryView  `json:"summary,omitempty"`
	Revenue     *SeriesView   `json:"revenue,omitempty"`
	Orders      *SeriesView   `json:"orders,omitempty"`
	SyncMessage string        `json:"syncMessage,omitempty"`
}

// UserView identifies the signed-in account.
type UserView struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// SummaryView is a snapshot tagged with where it came from.
type SummaryView struct {
	model.Snapshot
	Source string `json:"source"`
	Error  string `json:"error,omitempty"`
}

// SeriesView is a chart series tagged with its range and source.
type SeriesView struct {
	From   string    `json:"from"`
	To     string    `json:"to"`
	Labels []string  `json:"labels"`
	Data   []float64 `json:"data"`
	Source string    `json:"source"`
	Error  string    `json:"error,omitempty"`
}

// NewReport maps dashboard state to its JSON shape.
func NewReport(st dashboard.State) Report {
	r := Report{
		User:        UserView{Name: st.DisplayName, Email: st.User.Email},
		Stores:      st.Stores,
		Store:       st.Current,
		Summary:     NewSummaryView(st.Summary),
		Revenue:     NewSeriesView(st.RevenueRange, st.Revenue),
		Orders:      NewSeriesView(st.OrdersRange, st.Orders),
		SyncMessage: st.SyncMessage,
	}
	if r.Stores == nil {
		r.Stores = []model.Store{}
	}
	return r
}

// NewSummaryView tags a summary result. A nil result yields nil.
func NewSummaryView(res *stats.Result[model.Snapshot]) *SummaryView {
	if res == nil {
		return nil
	}
	return &SummaryView{Snapshot: res.Value, Source: res.Kind.String(), Error: errString(res.Err)}
}

// NewSeriesView tags a series result. A nil result yields nil.
func NewSeriesView(r model.DateRange, res *stats.Result[model.Series]) *SeriesView {
	if res == nil {
		return nil
	}
	labels, data := res.Value.Labels, res.Value.Data
	if labels == nil {
		labels = []string{}
	}
	if data == nil {
		data = []float64{}
	}
	return &SeriesView{
		From:   r.FromString(),
		To:     r.ToString(),
		Labels: labels,
		Data:   data,
		Source: res.Kind.String(),
		Error:  errString(res.Err),
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
