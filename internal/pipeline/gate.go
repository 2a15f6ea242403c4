package pipeline

import (
	"context"

	"github.com/tphakala/trackid-go/internal/errors"
)

// AccessGate decides whether the current user may start a capture, e.g.
// based on a subscription tier. It is consulted before every attempt.
type AccessGate interface {
	Allow(ctx context.Context, trigger Trigger) error
}

// GateFunc adapts a function to AccessGate.
type GateFunc func(ctx context.Context, trigger Trigger) error

func (f GateFunc) Allow(ctx context.Context, trigger Trigger) error { return f(ctx, trigger) }

// AllowAll is the default gate.
var AllowAll AccessGate = GateFunc(func(context.Context, Trigger) error { return nil })

// ErrAccessDenied matches a gate refusal.
var ErrAccessDenied = errors.Newf("identification not allowed").
	Component("pipeline").
	Category(errors.CategoryValidation).
	Build()

func deniedError(err error, trigger Trigger) error {
	if errors.IsCategory(err, errors.CategoryValidation) {
		return err
	}
	return errors.New(err).
		Component("pipeline").
		Category(errors.CategoryValidation).
		Context("trigger", string(trigger)).
		Context("reason", "access-gate").
		Build()
}
