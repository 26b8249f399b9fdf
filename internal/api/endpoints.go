package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/roach88/xenodash/internal/model"
)

// Credentials is the body of /signup and /login.
type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// TenantInput is the body of POST /tenants.
type TenantInput struct {
	Name     string `json:"name"`
	StoreURL string `json:"storeUrl"`
	APIToken string `json:"apiToken"`
}

// SeriesQuery is the query string of the series endpoints.
type SeriesQuery struct {
	StartDate string `url:"startDate"`
	EndDate   string `url:"endDate"`
}

// SeriesQueryFor builds the query for a date range.
func SeriesQueryFor(r model.DateRange) SeriesQuery {
	return SeriesQuery{StartDate: r.FromString(), EndDate: r.ToString()}
}

type loginResponse struct {
	Token string `json:"token"`
}

type syncResponse struct {
	Message string `json:"message"`
}

// StatsPath returns the summary endpoint path for a store.
func StatsPath(storeID int) string {
	return fmt.Sprintf("/stats/%d", storeID)
}

// Signup creates an account. No token is sent.
func (c *Client) Signup(ctx context.Context, creds Credentials) error {
	_, err := c.Do(ctx, Request{Method: http.MethodPost, Path: "/signup", Body: creds}, nil)
	return err
}

// Login exchanges credentials for a bearer token.
func (c *Client) Login(ctx context.Context, creds Credentials) (string, error) {
	var out loginResponse
	if _, err := c.Do(ctx, Request{Method: http.MethodPost, Path: "/login", Body: creds}, &out); err != nil {
		return "", err
	}
	if out.Token == "" {
		return "", &DecodeError{Method: http.MethodPost, Path: "/login", Status: http.StatusOK, Err: fmt.Errorf("response has no token")}
	}
	return out.Token, nil
}

// Me returns the account behind the token.
func (c *Client) Me(ctx context.Context, token string) (model.User, error) {
	var out model.User
	_, err := c.Do(ctx, Request{Path: "/me", Token: token}, &out)
	return out, err
}

// ListStores returns the stores connected to the account, in backend order.
func (c *Client) ListStores(ctx context.Context, token string) ([]model.Store, error) {
	var out []model.Store
	if _, err := c.Do(ctx, Request{Path: "/stores", Token: token}, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Summary returns the KPI snapshot of a store.
func (c *Client) Summary(ctx context.Context, storeID int, token string) (model.Snapshot, error) {
	var out model.Snapshot
	_, err := c.Do(ctx, Request{Path: StatsPath(storeID), Token: token}, &out)
	return out, err
}

// RevenueSeries returns daily revenue for a store and date range.
func (c *Client) RevenueSeries(ctx context.Context, storeID int, token string, r model.DateRange) (model.Series, error) {
	return c.series(ctx, StatsPath(storeID)+"/revenue", token, r)
}

// OrdersSeries returns daily order counts for a store and date range.
func (c *Client) OrdersSeries(ctx context.Context, storeID int, token string, r model.DateRange) (model.Series, error) {
	return c.series(ctx, StatsPath(storeID)+"/orders", token, r)
}

func (c *Client) series(ctx context.Context, path, token string, r model.DateRange) (model.Series, error) {
	var out model.Series
	if _, err := c.Do(ctx, Request{Path: path, Query: SeriesQueryFor(r), Token: token}, &out); err != nil {
		return model.Series{}, err
	}
	if !out.Valid() {
		return model.Series{}, &DecodeError{
			Method: http.MethodGet,
			Path:   path,
			Status: http.StatusOK,
			Err:    fmt.Errorf("labels/data length mismatch: %d != %d", len(out.Labels), len(out.Data)),
		}
	}
	return out, nil
}

// Sync asks the backend to pull fresh data for a store and returns its
// status message.
func (c *Client) Sync(ctx context.Context, storeID int, token string) (string, error) {
	var out syncResponse
	if _, err := c.Do(ctx, Request{Path: fmt.Sprintf("/sync/%d", storeID), Token: token}, &out); err != nil {
		return "", err
	}
	return out.Message, nil
}

// CreateTenant registers a store and returns it as created by the backend.
func (c *Client) CreateTenant(ctx context.Context, token string, in TenantInput) (model.Store, error) {
	var out model.Store
	_, err := c.Do(ctx, Request{Method: http.MethodPost, Path: "/tenants", Token: token, Body: in}, &out)
	return out, err
}
