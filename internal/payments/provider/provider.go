// Package provider turns provider-specific payment callbacks into the
// normalized model.PaymentEvent the reconciler consumes. Every provider
// verifies its signature before the payload is trusted.
package provider

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"sort"

	paymentserrors "slotkeeper/internal/payments/errors"
	"slotkeeper/pkg/model"
)

type Provider interface {
	Name() string
	Parse(header http.Header, body []byte) (*model.PaymentEvent, error)
}

type Registry struct {
	providers map[string]Provider
}

func NewRegistry(providers ...Provider) *Registry {
	r := &Registry{providers: make(map[string]Provider, len(providers))}
	for _, p := range providers {
		r.providers[p.Name()] = p
	}
	return r
}

func (r *Registry) Get(name string) (Provider, error) {
	p, ok := r.providers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", paymentserrors.ErrUnknownProvider, name)
	}
	return p, nil
}

func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func sign(secret string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

func verify(secret string, payload []byte, received string) error {
	if secret == "" {
		return paymentserrors.ErrMissingSecret
	}
	if received == "" || !hmac.Equal([]byte(sign(secret, payload)), []byte(received)) {
		return paymentserrors.ErrBadSignature
	}
	return nil
}
