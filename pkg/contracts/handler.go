package contracts

import "github.com/julienschmidt/httprouter"

type Handler interface {
	RegisterRoutes(*httprouter.Router)
}

// Guard wraps a route with an access check.
type Guard func(httprouter.Handle) httprouter.Handle

// AdminHandler exposes operator routes; every one of them must be wrapped
// with guard.
type AdminHandler interface {
	RegisterAdminRoutes(router *httprouter.Router, guard Guard)
}
