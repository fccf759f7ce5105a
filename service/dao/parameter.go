package dao

// Parameter is a named List filter. Stores match it against the field the
// entity exposes via its Matcher.
type Parameter struct {
	Name  string
	Value interface{}
}

func NewParameter(name string, values ...string) *Parameter {
	if len(values) == 1 {
		return &Parameter{Name: name, Value: values[0]}
	}
	return &Parameter{Name: name, Value: values}
}

// Matches reports whether candidate satisfies the parameter value. A slice
// value matches any of its elements.
func (p *Parameter) Matches(candidate string) bool {
	switch actual := p.Value.(type) {
	case string:
		return actual == candidate
	case []string:
		for _, v := range actual {
			if v == candidate {
				return true
			}
		}
	}
	return false
}
