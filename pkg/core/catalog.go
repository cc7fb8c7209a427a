package core

// Entity is a named row of the live catalog.
type Entity struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Catalog holds the live entity name lists the resolver matches against.
// A Catalog is loaded per request and never mutated afterwards.
type Catalog struct {
	Employees []Entity
	Machines  []Entity
	Parts     []Entity // Name is the drawing number
	Lots      []Entity // Name is the lot number
}

// EmployeeNames returns the employee display names in catalog order.
func (c *Catalog) EmployeeNames() []string { return names(c.Employees) }

// MachineNames returns the machine names in catalog order.
func (c *Catalog) MachineNames() []string { return names(c.Machines) }

func names(es []Entity) []string {
	out := make([]string, 0, len(es))
	for _, e := range es {
		out = append(out, e.Name)
	}
	return out
}
