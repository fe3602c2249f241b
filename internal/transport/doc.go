// Package transport holds the interchangeable HTTP bindings that serve the
// webhook protocol: raw (socket level), chiserver (net/http + chi) and
// fiberserver (fasthttp + fiber). Each binding only extracts the signature
// header, content type and raw body, calls webhook.Flow and writes the Result.
package transport

import (
	"context"
	"fmt"
)

// Binding names.
const (
	BindingRaw   = "raw"
	BindingChi   = "chi"
	BindingFiber = "fiber"
)

// Server is implemented by every binding.
type Server interface {
	// Start serves until ctx is cancelled or the listener fails.
	Start(ctx context.Context) error
}

// ErrUnknownBinding is returned for an unrecognized binding name.
func ErrUnknownBinding(name string) error {
	return fmt.Errorf("unknown binding %q (want raw, chi or fiber)", name)
}
