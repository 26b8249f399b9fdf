package testutil

import (
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/roach88/xenodash/internal/model"
)

// Seeded fake backend fixtures.
const (
	DemoEmail    = "russell.winfield@example.com"
	DemoPassword = "secret123"
	DemoToken    = "abc123"
)

// RecordedRequest is one request seen by the fake backend.
type RecordedRequest struct {
	Method        string
	Path          string
	Query         string
	Authorization string
	RequestID     string
	Body          string
}

// failure is an injected response for one path.
type failure struct {
	status  int
	message string
	garbage bool
	drop    bool
}

// Backend is an in-process fake of the Xeno analytics backend built on gin.
//
// The zero configuration serves one user (DemoEmail/DemoPassword, token
// DemoToken) with two stores. Series endpoints return 100*(i+1) revenue and
// i+1 orders for the requested range, so tests can tell live data from the
// client's placeholder series.
//
// Thread-safety: all methods are safe for concurrent use.
type Backend struct {
	server *httptest.Server

	mu        sync.Mutex
	requests  []RecordedRequest
	users     map[string]string // email -> password
	tokens    map[string]string // token -> email
	stores    []model.Store
	summaries map[int]model.Snapshot
	syncMsgs  map[int]string
	failures  map[string]failure
	gates     map[string]*gate
	nextID    int
}

// NewBackend starts a fake backend that is closed when the test ends.
func NewBackend(t testing.TB) *Backend {
	t.Helper()
	gin.SetMode(gin.TestMode)

	b := &Backend{
		users:  map[string]string{DemoEmail: DemoPassword},
		tokens: map[string]string{DemoToken: DemoEmail},
		stores: []model.Store{
			{ID: 1, Name: "xeno2", URL: "https://xeno2.myshopify.com"},
			{ID: 2, Name: "Fashion Store", URL: "https://fashion-store.myshopify.com"},
		},
		summaries: map[int]model.Snapshot{
			1: {
				TotalRevenue:   decimal.RequireFromString("2500.50"),
				TotalOrders:    12,
				TotalCustomers: 7,
				TopCustomers: []model.Customer{
					{Name: "Ayumu Hirano", Email: "ayumu.hirano@example.com", Spend: decimal.RequireFromString("1200.00"), Initials: "AH"},
				},
			},
			2: {
				TotalRevenue:   decimal.RequireFromString("99.99"),
				TotalOrders:    1,
				TotalCustomers: 1,
				TopCustomers:   []model.Customer{},
			},
		},
		syncMsgs: map[int]string{},
		failures: map[string]failure{},
		gates:    map[string]*gate{},
		nextID:   3,
	}

	b.server = httptest.NewServer(b.router())
	t.Cleanup(func() {
		b.ReleaseAll()
		b.server.Close()
	})
	return b
}

// URL returns the backend origin.
func (b *Backend) URL() string {
	return b.server.URL
}

// Requests returns every request seen so far, in arrival order.
func (b *Backend) Requests() []RecordedRequest {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]RecordedRequest, len(b.requests))
	copy(out, b.requests)
	return out
}

// RequestsTo returns the requests whose path equals path.
func (b *Backend) RequestsTo(path string) []RecordedRequest {
	var out []RecordedRequest
	for _, r := range b.Requests() {
		if r.Path == path {
			out = append(out, r)
		}
	}
	return out
}

// FailWith makes path answer with status and {"error": message}.
// An empty message sends an empty JSON object.
func (b *Backend) FailWith(path string, status int, message string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures[path] = failure{status: status, message: message}
}

// Garbage makes path answer 200 with a body that is not JSON.
func (b *Backend) Garbage(path string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures[path] = failure{garbage: true}
}

// Drop makes path close the connection without a response.
func (b *Backend) Drop(path string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures[path] = failure{drop: true}
}

// Heal removes any injected failure for path.
func (b *Backend) Heal(path string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.failures, path)
}

// gate blocks requests until opened. Opening twice is a no-op.
type gate struct {
	ch   chan struct{}
	once sync.Once
}

func (g *gate) open() {
	g.once.Do(func() { close(g.ch) })
}

// Gate holds requests to path until the returned release func is called.
func (b *Backend) Gate(path string) (release func()) {
	g := &gate{ch: make(chan struct{})}
	b.mu.Lock()
	b.gates[path] = g
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		if b.gates[path] == g {
			delete(b.gates, path)
		}
		b.mu.Unlock()
		g.open()
	}
}

// ReleaseAll opens every gate.
func (b *Backend) ReleaseAll() {
	b.mu.Lock()
	gates := b.gates
	b.gates = map[string]*gate{}
	b.mu.Unlock()
	for _, g := range gates {
		g.open()
	}
}

// SetStores replaces the store list.
func (b *Backend) SetStores(stores []model.Store) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.stores = stores
}

// SetSummary replaces the summary for a store.
func (b *Backend) SetSummary(storeID int, snap model.Snapshot) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.summaries[storeID] = snap
}

// SetSyncMessage sets the message returned by /sync/{storeID}.
func (b *Backend) SetSyncMessage(storeID int, msg string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.syncMsgs[storeID] = msg
}

func (b *Backend) router() *gin.Engine {
	r := gin.New()
	r.Use(b.record, b.inject)

	r.POST("/signup", b.signup)
	r.POST("/login", b.login)

	authed := r.Group("/", b.auth)
	authed.GET("/me", b.me)
	authed.GET("/stores", b.listStores)
	authed.GET("/stats/:id", b.summary)
	authed.GET("/stats/:id/revenue", b.series(func(i int) float64 { return float64(100 * (i + 1)) }))
	authed.GET("/stats/:id/orders", b.series(func(i int) float64 { return float64(i + 1) }))
	authed.GET("/sync/:id", b.sync)
	authed.POST("/tenants", b.createTenant)
	return r
}

func (b *Backend) record(c *gin.Context) {
	var body []byte
	if c.Request.Body != nil {
		body, _ = io.ReadAll(c.Request.Body)
		c.Request.Body = io.NopCloser(strings.NewReader(string(body)))
	}
	b.mu.Lock()
	b.requests = append(b.requests, RecordedRequest{
		Method:        c.Request.Method,
		Path:          c.Request.URL.Path,
		Query:         c.Request.URL.RawQuery,
		Authorization: c.GetHeader("Authorization"),
		RequestID:     c.GetHeader("X-Request-ID"),
		Body:          string(body),
	})
	b.mu.Unlock()
	c.Next()
}

func (b *Backend) inject(c *gin.Context) {
	path := c.Request.URL.Path

	b.mu.Lock()
	g, gated := b.gates[path]
	f, failing := b.failures[path]
	b.mu.Unlock()

	if gated {
		select {
		case <-g.ch:
		case <-c.Request.Context().Done():
			c.Abort()
			return
		}
	}
	if !failing {
		c.Next()
		return
	}

	switch {
	case f.drop:
		if hj, ok := c.Writer.(http.Hijacker); ok {
			if conn, _, err := hj.Hijack(); err == nil {
				conn.Close()
			}
		}
		c.Abort()
	case f.garbage:
		c.Data(http.StatusOK, "text/html", []byte("<html>bad gateway</html>"))
		c.Abort()
	case f.message == "":
		c.AbortWithStatusJSON(f.status, gin.H{})
	default:
		c.AbortWithStatusJSON(f.status, gin.H{"error": f.message})
	}
}

func (b *Backend) auth(c *gin.Context) {
	header := c.GetHeader("Authorization")
	token := strings.TrimPrefix(header, "Bearer ")

	b.mu.Lock()
	email, ok := b.tokens[token]
	b.mu.Unlock()

	if header == token || !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}
	c.Set("email", email)
	c.Next()
}

func (b *Backend) signup(c *gin.Context) {
	var in struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := c.ShouldBindJSON(&in); err != nil || in.Email == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Email and password are required"})
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if _, exists := b.users[in.Email]; exists {
		c.JSON(http.StatusConflict, gin.H{"error": "User already exists"})
		return
	}
	b.users[in.Email] = in.Password
	c.JSON(http.StatusCreated, gin.H{"message": "User created"})
}

func (b *Backend) login(c *gin.Context) {
	var in struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if pw, ok := b.users[in.Email]; !ok || pw != in.Password {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
		return
	}
	token := DemoToken
	if in.Email != DemoEmail {
		token = "token-" + in.Email
	}
	b.tokens[token] = in.Email
	c.JSON(http.StatusOK, gin.H{"token": token})
}

func (b *Backend) me(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"email": c.GetString("email")})
}

func (b *Backend) listStores(c *gin.Context) {
	b.mu.Lock()
	defer b.mu.Unlock()
	stores := b.stores
	if stores == nil {
		stores = []model.Store{}
	}
	c.JSON(http.StatusOK, stores)
}

func (b *Backend) storeID(c *gin.Context) (int, bool) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid store id"})
		return 0, false
	}
	return id, true
}

func (b *Backend) summary(c *gin.Context) {
	id, ok := b.storeID(c)
	if !ok {
		return
	}
	b.mu.Lock()
	snap, found := b.summaries[id]
	b.mu.Unlock()
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "Store not found"})
		return
	}
	c.JSON(http.StatusOK, snap)
}

func (b *Backend) series(value func(i int) float64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := b.storeID(c); !ok {
			return
		}
		r, err := model.ParseDateRange(c.Query("startDate"), c.Query("endDate"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("Invalid date range: %v", err)})
			return
		}
		labels := r.Days()
		data := make([]float64, len(labels))
		for i := range labels {
			data[i] = value(i)
		}
		if labels == nil {
			labels = []string{}
		}
		c.JSON(http.StatusOK, model.Series{Labels: labels, Data: data})
	}
}

func (b *Backend) sync(c *gin.Context) {
	id, ok := b.storeID(c)
	if !ok {
		return
	}
	b.mu.Lock()
	msg, found := b.syncMsgs[id]
	b.mu.Unlock()
	if !found {
		msg = fmt.Sprintf("Synced store %d", id)
	}
	c.JSON(http.StatusOK, gin.H{"message": msg})
}

func (b *Backend) createTenant(c *gin.Context) {
	var in struct {
		Name     string `json:"name"`
		StoreURL string `json:"storeUrl"`
		APIToken string `json:"apiToken"`
	}
	if err := c.ShouldBindJSON(&in); err != nil || in.Name == "" || in.StoreURL == "" || in.APIToken == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "name, storeUrl and apiToken are required"})
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	store := model.Store{ID: b.nextID, Name: in.Name, URL: in.StoreURL}
	b.nextID++
	b.stores = append(b.stores, store)
	b.summaries[store.ID] = model.Snapshot{TopCustomers: []model.Customer{}}
	c.JSON(http.StatusCreated, gin.H{"id": store.ID, "name": store.Name, "storeUrl": store.URL})
}
