package odoo

// Domain is an Odoo search domain in prefix notation.
type Domain []any

// Cond builds a single (field, operator, value) term.
func Cond(field, op string, value any) []any {
	return []any{field, op, value}
}

// Where builds a domain that ANDs the given terms.
func Where(terms ...[]any) Domain {
	d := make(Domain, 0, len(terms))
	for _, t := range terms {
		d = append(d, t)
	}
	return d
}

// AnyOf returns a domain fragment that ORs the given terms. The result is
// spliced into an enclosing domain with And.
func AnyOf(terms ...[]any) Domain {
	if len(terms) == 0 {
		return nil
	}
	d := make(Domain, 0, 2*len(terms)-1)
	for i := 1; i < len(terms); i++ {
		d = append(d, "|")
	}
	for _, t := range terms {
		d = append(d, t)
	}
	return d
}

// And concatenates domain fragments. Adjacent fragments are implicitly ANDed.
func And(parts ...Domain) Domain {
	var d Domain
	for _, p := range parts {
		d = append(d, p...)
	}
	if d == nil {
		d = Domain{}
	}
	return d
}

// All matches every record.
func All() Domain {
	return Domain{}
}
