// Package identity resolves who is making a request.
package identity

import (
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
)

// Capabilities the service checks.
const (
	CapRead   = "read"
	CapManage = "manage_options"
)

// Upstream headers set by the host application's gateway.
const (
	HeaderUserID = "X-User-ID"
	HeaderCaps   = "X-User-Caps"
)

// Actor is the authenticated (or anonymous) caller.
type Actor struct {
	ID   int64
	Caps map[string]bool
}

// Anonymous reports whether no user is attached to the request.
func (a Actor) Anonymous() bool {
	return a.ID == 0
}

// Can reports whether the actor holds capability.
func (a Actor) Can(capability string) bool {
	return a.Caps[capability]
}

// Provider extracts the actor from a request.
type Provider interface {
	Actor(c *fiber.Ctx) Actor
}

// Headers trusts identity headers injected by an upstream proxy.
type Headers struct{}

func (Headers) Actor(c *fiber.Ctx) Actor {
	id, err := strconv.ParseInt(strings.TrimSpace(c.Get(HeaderUserID)), 10, 64)
	if err != nil || id <= 0 {
		// Capabilities only attach to a signed-in user.
		return Actor{}
	}

	caps := map[string]bool{CapRead: true}
	for _, cp := range strings.Split(c.Get(HeaderCaps), ",") {
		if cp = strings.TrimSpace(cp); cp != "" {
			caps[cp] = true
		}
	}
	return Actor{ID: id, Caps: caps}
}

// AnonymousOnly treats every caller as anonymous. Used when the host does not forward
// identity headers.
type AnonymousOnly struct{}

func (AnonymousOnly) Actor(*fiber.Ctx) Actor {
	return Actor{}
}
