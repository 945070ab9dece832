package handler

import (
	"storefront-service/internal/multitenant"
)

var (
	router      *multitenant.Router
	provisioner *multitenant.Provisioner
)

// Initialize wires the storage router and tenant provisioner into the
// handler package. Must be called before any handler is served.
func Initialize(r *multitenant.Router, p *multitenant.Provisioner) {
	router = r
	provisioner = p
}
