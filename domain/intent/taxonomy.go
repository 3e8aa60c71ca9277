package intent

import (
	"strings"

	"chatintent/internal/errors"
)

// IntentTemplates is one intent key with its template phrases in order.
type IntentTemplates struct {
	Key       string   `yaml:"key" json:"key"`
	Templates []string `yaml:"templates" json:"templates"`
}

// TaxonomyGroup holds every intent of one user type and the replication
// factor applied to its template lists.
type TaxonomyGroup struct {
	UserType UserType          `yaml:"user_type" json:"user_type"`
	Repeat   int               `yaml:"repeat" json:"repeat"`
	Intents  []IntentTemplates `yaml:"intents" json:"intents"`
}

// Taxonomy maps user types to intent keys to template phrases. Groups and
// intents are slices so enumeration order is fixed.
type Taxonomy struct {
	Groups []TaxonomyGroup `yaml:"user_types" json:"user_types"`
}

// Validate checks user types, repeat factors, template text and that every
// qualified intent name is unique and does not alias another one.
func (t Taxonomy) Validate() error {
	if len(t.Groups) == 0 {
		return errors.Configuration("taxonomy has no user types")
	}

	seen := make(map[string]string)
	for _, g := range t.Groups {
		if _, err := ParseUserType(string(g.UserType)); err != nil {
			return err
		}
		if g.Repeat < 1 {
			return errors.Configuration("user_type %s: repeat must be >= 1, got %d", g.UserType, g.Repeat)
		}
		for _, it := range g.Intents {
			if strings.TrimSpace(it.Key) == "" {
				return errors.Configuration("user_type %s: intent key is empty", g.UserType)
			}
			name := QualifiedName(g.UserType, it.Key)
			norm := normalizeName(name)
			if prev, dup := seen[norm]; dup {
				return errors.Configuration("intent %q collides with %q", name, prev)
			}
			seen[norm] = name

			for i, tpl := range it.Templates {
				if strings.TrimSpace(tpl) == "" {
					return errors.Configuration("intent %q: template %d is blank", name, i)
				}
			}
		}
	}
	return nil
}

// WithRepeat returns a copy with the repeat factor of one user type replaced.
func (t Taxonomy) WithRepeat(userType UserType, repeat int) Taxonomy {
	out := Taxonomy{Groups: make([]TaxonomyGroup, len(t.Groups))}
	copy(out.Groups, t.Groups)
	for i := range out.Groups {
		if out.Groups[i].UserType == userType {
			out.Groups[i].Repeat = repeat
		}
	}
	return out
}

// IntentNames lists qualified names that have at least one template.
func (t Taxonomy) IntentNames() []string {
	var names []string
	for _, g := range t.Groups {
		for _, it := range g.Intents {
			if len(it.Templates) > 0 {
				names = append(names, QualifiedName(g.UserType, it.Key))
			}
		}
	}
	return names
}
