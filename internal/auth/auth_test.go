package auth

import (
	"context"
	"errors"
	"testing"

	"github.com/alanyoungcy/predictledger/internal/domain"
)

func TestContextAuthorizer(t *testing.T) {
	a := NewContextAuthorizer("operator")
	alice := WithPrincipal(context.Background(), "alice")
	op := WithPrincipal(context.Background(), "operator")

	if err := a.RequireAuth(alice, "alice"); err != nil {
		t.Errorf("alice acting for alice: %v", err)
	}
	if err := a.RequireAuth(alice, "bob"); !errors.Is(err, domain.ErrUnauthorized) {
		t.Errorf("alice acting for bob: got %v", err)
	}
	if err := a.RequireAuth(op, "bob"); err != nil {
		t.Errorf("operator acting for bob: %v", err)
	}
	if err := a.RequireAuth(context.Background(), "alice"); !errors.Is(err, domain.ErrUnauthorized) {
		t.Errorf("anonymous: got %v", err)
	}
}

func TestAllowAll(t *testing.T) {
	if err := (AllowAll{}).RequireAuth(context.Background(), "x"); err != nil {
		t.Errorf("got %v", err)
	}
	if err := (AllowAll{}).RequireAuth(context.Background(), ""); !errors.Is(err, domain.ErrUnauthorized) {
		t.Errorf("empty principal: got %v", err)
	}
}
