// Package catalog holds the compiled-in list of share destinations.
package catalog

// Well-known service ids.
const (
	Facebook  = "facebook"
	Twitter   = "twitter"
	LinkedIn  = "linkedin"
	Pinterest = "pinterest"
	Reddit    = "reddit"
	WhatsApp  = "whatsapp"
	Telegram  = "telegram"
	Email     = "email"
	Print     = "print"
	Copy      = "copy"
)

// Service describes one share destination.
type Service struct {
	ID               string `json:"id"`
	Name             string `json:"name"`
	Icon             string `json:"icon"`
	EnabledByDefault bool   `json:"enabled_by_default"`
}

var builtin = []Service{
	{ID: Facebook, Name: "Facebook", Icon: "fab fa-facebook-f", EnabledByDefault: true},
	{ID: Twitter, Name: "X (Twitter)", Icon: "fab fa-x-twitter", EnabledByDefault: true},
	{ID: LinkedIn, Name: "LinkedIn", Icon: "fab fa-linkedin-in", EnabledByDefault: true},
	{ID: Pinterest, Name: "Pinterest", Icon: "fab fa-pinterest-p"},
	{ID: Reddit, Name: "Reddit", Icon: "fab fa-reddit-alien"},
	{ID: WhatsApp, Name: "WhatsApp", Icon: "fab fa-whatsapp", EnabledByDefault: true},
	{ID: Telegram, Name: "Telegram", Icon: "fab fa-telegram-plane"},
	{ID: Email, Name: "Email", Icon: "fas fa-envelope", EnabledByDefault: true},
	{ID: Print, Name: "Print", Icon: "fas fa-print"},
	{ID: Copy, Name: "Copy Link", Icon: "fas fa-link", EnabledByDefault: true},
}

// Catalog is an immutable, ordered set of services.
type Catalog struct {
	order []Service
	byID  map[string]Service
}

// New builds the catalog from the built-in services plus any extra ones registered by
// the embedding application. Extras with an id already present replace the built-in
// entry in place.
func New(extra ...Service) *Catalog {
	c := &Catalog{byID: make(map[string]Service, len(builtin)+len(extra))}
	for _, s := range append(append([]Service(nil), builtin...), extra...) {
		if s.ID == "" {
			continue
		}
		if _, ok := c.byID[s.ID]; ok {
			for i := range c.order {
				if c.order[i].ID == s.ID {
					c.order[i] = s
				}
			}
		} else {
			c.order = append(c.order, s)
		}
		c.byID[s.ID] = s
	}
	return c
}

// Lookup returns the service with the given id.
func (c *Catalog) Lookup(id string) (Service, bool) {
	s, ok := c.byID[id]
	return s, ok
}

// Has reports whether id is a known service.
func (c *Catalog) Has(id string) bool {
	_, ok := c.byID[id]
	return ok
}

// All returns every service in catalog order.
func (c *Catalog) All() []Service {
	return append([]Service(nil), c.order...)
}

// Defaults returns the ids of services enabled by default.
func (c *Catalog) Defaults() []string {
	var ids []string
	for _, s := range c.order {
		if s.EnabledByDefault {
			ids = append(ids, s.ID)
		}
	}
	return ids
}

// Filter keeps known ids in their given order and drops duplicates.
func (c *Catalog) Filter(ids []string) []string {
	out := make([]string, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if !c.Has(id) {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// Resolve maps ids to services, skipping unknown ones.
func (c *Catalog) Resolve(ids []string) []Service {
	out := make([]Service, 0, len(ids))
	for _, id := range c.Filter(ids) {
		out = append(out, c.byID[id])
	}
	return out
}
