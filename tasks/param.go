package tasks

import (
	"fmt"
	"strconv"
	"strings"
)

// Parameter visibility.
const (
	VisibilityUser      = "user"
	VisibilityDeveloper = "developer"
)

// Parameter scope.
const (
	ScopeGlobal   = "global"
	ScopePlan     = "plan"
	ScopeManeuver = "maneuver"
)

// A Param is a named, typed, unit-annotated configuration value bound to a
// task field. Binding an invalid value is fatal at load time; the owning
// task never starts.
type Param struct {
	name       string
	desc       string
	units      string
	def        string
	visibility string
	scope      string

	minValue *float64
	maxValue *float64
	minSize  int
	maxSize  int
	values   []string

	value   string
	loaded  bool
	changed bool

	apply func(string) error
	size  func() int
}

// Name returns the parameter name.
func (p *Param) Name() string { return p.name }

// Value returns the current textual value.
func (p *Param) Value() string { return p.value }

// DefaultValue sets the value used when the configuration has no entry.
func (p *Param) DefaultValue(v string) *Param {
	p.def = v
	return p
}

// Description sets the human-readable description.
func (p *Param) Description(d string) *Param {
	p.desc = d
	return p
}

// Units annotates the parameter with a unit name.
func (p *Param) Units(u string) *Param {
	p.units = u
	return p
}

// MinimumValue constrains scalar parameters from below.
func (p *Param) MinimumValue(v float64) *Param {
	p.minValue = &v
	return p
}

// MaximumValue constrains scalar parameters from above.
func (p *Param) MaximumValue(v float64) *Param {
	p.maxValue = &v
	return p
}

// MinimumSize constrains sequence parameters from below.
func (p *Param) MinimumSize(n int) *Param {
	p.minSize = n
	return p
}

// MaximumSize constrains sequence parameters from above.
func (p *Param) MaximumSize(n int) *Param {
	p.maxSize = n
	return p
}

// Values restricts the parameter to an enumerated set.
func (p *Param) Values(vs ...string) *Param {
	p.values = vs
	return p
}

// Visibility marks the parameter as user- or developer-facing.
func (p *Param) Visibility(v string) *Param {
	p.visibility = v
	return p
}

// Scope marks when the parameter may change.
func (p *Param) Scope(s string) *Param {
	p.scope = s
	return p
}

// Changed reports whether the last load assigned a different value. Reading
// clears the flag.
func (p *Param) Changed() bool {
	old := p.changed
	p.changed = false
	return old
}

func (p *Param) load(raw string, present bool) error {
	if !present {
		raw = p.def
	}

	prev := p.value
	if err := p.apply(raw); err != nil {
		return fmt.Errorf("parameter %q: %w", p.name, err)
	}

	if err := p.validate(raw); err != nil {
		return fmt.Errorf("parameter %q: %w", p.name, err)
	}

	p.value = raw
	p.changed = !p.loaded || prev != raw
	p.loaded = true

	return nil
}

func (p *Param) validate(raw string) error {
	if p.minValue != nil || p.maxValue != nil {
		v, err := parseFloat(raw)
		if err != nil {
			return err
		}
		if p.minValue != nil && v < *p.minValue {
			return fmt.Errorf("value %v below minimum %v", v, *p.minValue)
		}
		if p.maxValue != nil && v > *p.maxValue {
			return fmt.Errorf("value %v above maximum %v", v, *p.maxValue)
		}
	}

	if p.size != nil {
		n := p.size()
		if p.minSize >= 0 && n < p.minSize {
			return fmt.Errorf("size %d below minimum %d", n, p.minSize)
		}
		if p.maxSize >= 0 && n > p.maxSize {
			return fmt.Errorf("size %d above maximum %d", n, p.maxSize)
		}
	}

	if len(p.values) > 0 {
		ok := false
		for _, v := range p.values {
			if raw == v {
				ok = true
				break
			}
		}
		if !ok {
			return fmt.Errorf("value %q not in %v", raw, p.values)
		}
	}

	return nil
}

// parseFloat parses a scalar that may carry a trailing unit tag, e.g.
// "15 deg".
func parseFloat(raw string) (float64, error) {
	fields := strings.Fields(raw)
	if len(fields) == 0 {
		return 0, fmt.Errorf("empty scalar")
	}
	return strconv.ParseFloat(fields[0], 64)
}

func parseList(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		out = append(out, strings.Trim(strings.TrimSpace(p), `"`))
	}

	return out
}

// A ParamSet holds all parameters declared by one task.
type ParamSet struct {
	params []*Param
	byName map[string]*Param
}

// NewParamSet creates an empty parameter set.
func NewParamSet() *ParamSet {
	return &ParamSet{byName: make(map[string]*Param)}
}

// Bind declares a parameter bound to a typed destination. Supported
// destinations: *bool, *int, *uint8, *uint16, *uint32, *float64, *string,
// *[]string, *[]float64, *time-like float seconds.
func (s *ParamSet) Bind(name string, dst interface{}) *Param {
	if _, found := s.byName[name]; found {
		panic("parameter " + name + " already declared")
	}

	p := &Param{name: name, minSize: -1, maxSize: -1,
		visibility: VisibilityDeveloper, scope: ScopeGlobal}

	switch d := dst.(type) {
	case *bool:
		p.apply = func(raw string) error {
			v, err := strconv.ParseBool(strings.TrimSpace(raw))
			if err != nil {
				return err
			}
			*d = v
			return nil
		}
	case *int:
		p.apply = func(raw string) error {
			v, err := strconv.Atoi(strings.TrimSpace(raw))
			if err != nil {
				return err
			}
			*d = v
			return nil
		}
	case *uint8:
		p.apply = func(raw string) error {
			v, err := strconv.ParseUint(strings.TrimSpace(raw), 10, 8)
			if err != nil {
				return err
			}
			*d = uint8(v)
			return nil
		}
	case *uint16:
		p.apply = func(raw string) error {
			v, err := strconv.ParseUint(strings.TrimSpace(raw), 10, 16)
			if err != nil {
				return err
			}
			*d = uint16(v)
			return nil
		}
	case *uint32:
		p.apply = func(raw string) error {
			v, err := strconv.ParseUint(strings.TrimSpace(raw), 10, 32)
			if err != nil {
				return err
			}
			*d = uint32(v)
			return nil
		}
	case *float64:
		p.apply = func(raw string) error {
			v, err := parseFloat(raw)
			if err != nil {
				return err
			}
			*d = v
			return nil
		}
	case *string:
		p.apply = func(raw string) error {
			*d = strings.Trim(strings.TrimSpace(raw), `"`)
			return nil
		}
	case *[]string:
		p.apply = func(raw string) error {
			*d = parseList(raw)
			return nil
		}
		p.size = func() int { return len(*d) }
	case *[]float64:
		p.apply = func(raw string) error {
			parts := parseList(raw)
			vs := make([]float64, 0, len(parts))
			for _, part := range parts {
				v, err := parseFloat(part)
				if err != nil {
					return err
				}
				vs = append(vs, v)
			}
			*d = vs
			return nil
		}
		p.size = func() int { return len(*d) }
	default:
		panic(fmt.Sprintf("unsupported parameter destination %T", dst))
	}

	s.params = append(s.params, p)
	s.byName[name] = p

	return p
}

// Get returns a declared parameter by name.
func (s *ParamSet) Get(name string) *Param {
	return s.byName[name]
}

// All returns the declared parameters in declaration order.
func (s *ParamSet) All() []*Param {
	return s.params
}

// Load binds values from a configuration section. The first invalid value
// aborts the load.
func (s *ParamSet) Load(section map[string]string) error {
	for _, p := range s.params {
		raw, present := section[p.name]
		if err := p.load(raw, present); err != nil {
			return err
		}
	}

	return nil
}
