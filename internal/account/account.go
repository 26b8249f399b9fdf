// Package account holds the form logic around the backend: signup and login
// validation, and registration of new Shopify stores.
package account

import (
	"context"
	"regexp"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/roach88/xenodash/internal/api"
	"github.com/roach88/xenodash/internal/model"
)

// MinPasswordLength is the shortest password signup accepts.
const MinPasswordLength = 6

// User-facing messages.
const (
	MsgPasswordMismatch = "Passwords do not match"
	MsgPasswordTooShort = "Password must be at least 6 characters long"
	MsgEmailRequired    = "Email is required"
	MsgSignupFailed     = "Signup failed"
	MsgLoginFailed      = "Login failed"
	MsgNetwork          = "Network error. Please try again."
	MsgNotLoggedIn      = "You must be logged in to add a Shopify store"
	MsgFieldsRequired   = "Store name, store URL and API token are required"
	MsgTenantFailed     = "Failed to add Shopify store"
	MsgTenantError      = "Error adding Shopify store"
)

// FormError is a failure to show next to a form. Message is ready for
// display; Err is the underlying cause, if any.
type FormError struct {
	Message string
	Err     error
}

func (e *FormError) Error() string {
	return e.Message
}

func (e *FormError) Unwrap() error {
	return e.Err
}

// Backend is the part of the API client used by account flows.
type Backend interface {
	Signup(ctx context.Context, creds api.Credentials) error
	Login(ctx context.Context, creds api.Credentials) (string, error)
	CreateTenant(ctx context.Context, token string, in api.TenantInput) (model.Store, error)
}

// TokenStore receives the token after login and supplies it for tenant
// creation.
type TokenStore interface {
	Login(ctx context.Context, token string) error
	CurrentToken() (string, bool)
}

// Service runs the account flows.
type Service struct {
	backend Backend
	tokens  TokenStore
}

// New creates a Service.
func New(backend Backend, tokens TokenStore) *Service {
	return &Service{backend: backend, tokens: tokens}
}

// ValidateSignup checks the form before any network call.
func ValidateSignup(email, password, confirm string) error {
	if strings.TrimSpace(email) == "" {
		return &FormError{Message: MsgEmailRequired}
	}
	if password != confirm {
		return &FormError{Message: MsgPasswordMismatch}
	}
	if len(password) < MinPasswordLength {
		return &FormError{Message: MsgPasswordTooShort}
	}
	return nil
}

// Signup validates the form and creates the account. It does not log in.
func (s *Service) Signup(ctx context.Context, email, password, confirm string) error {
	if err := ValidateSignup(email, password, confirm); err != nil {
		return err
	}
	err := s.backend.Signup(ctx, api.Credentials{Email: email, Password: password})
	if err == nil {
		return nil
	}
	return backendFormError(err, MsgSignupFailed, MsgNetwork)
}

// Login exchanges credentials for a token and stores it in the session.
func (s *Service) Login(ctx context.Context, email, password string) error {
	token, err := s.backend.Login(ctx, api.Credentials{Email: email, Password: password})
	if err != nil {
		return backendFormError(err, MsgLoginFailed, MsgNetwork)
	}
	if err := s.tokens.Login(ctx, token); err != nil {
		return &FormError{Message: MsgLoginFailed, Err: err}
	}
	return nil
}

var whitespaceRun = regexp.MustCompile(`\s+`)

// StoreURLFor derives the myshopify URL from a store name: lowercased, with
// each whitespace run replaced by a hyphen. A blank name yields "".
func StoreURLFor(name string) string {
	if strings.TrimSpace(name) == "" {
		return ""
	}
	slug := whitespaceRun.ReplaceAllString(cases.Lower(language.Und).String(name), "-")
	return "https://" + slug + ".myshopify.com"
}

// NewTenantInput builds the tenant form, deriving the store URL from the name
// when storeURL is empty.
func NewTenantInput(name, storeURL, apiToken string) api.TenantInput {
	if storeURL == "" {
		storeURL = StoreURLFor(name)
	}
	return api.TenantInput{Name: name, StoreURL: storeURL, APIToken: apiToken}
}

// CreateTenant registers a store for the logged-in account.
func (s *Service) CreateTenant(ctx context.Context, in api.TenantInput) (model.Store, error) {
	token, ok := s.tokens.CurrentToken()
	if !ok {
		return model.Store{}, &FormError{Message: MsgNotLoggedIn}
	}
	if in.Name == "" || in.StoreURL == "" || in.APIToken == "" {
		return model.Store{}, &FormError{Message: MsgFieldsRequired}
	}
	store, err := s.backend.CreateTenant(ctx, token, in)
	if err != nil {
		return model.Store{}, backendFormError(err, MsgTenantFailed, MsgTenantError)
	}
	return store, nil
}

// backendFormError maps an API failure to a form message: the backend's own
// error text for HTTP errors, otherwise the transport message.
func backendFormError(err error, httpFallback, transport string) *FormError {
	if _, ok := api.AsHTTP(err); ok {
		return &FormError{Message: api.ServerMessage(err, httpFallback), Err: err}
	}
	return &FormError{Message: transport, Err: err}
}
