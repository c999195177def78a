// Package ruleset compiles declarative rule documents (YAML or JSON) into
// sealed flowi key maps.
//
// A document looks like:
//
//	convert: true
//	unknown: strip
//	labels: {name: Name}
//	require: [name]
//	keys:
//	  name: {type: string, trim: true, max: 32}
//	  age:
//	    - {type: number, integer: true}
//	    - {type: number, min: 0, message: "age must not be negative"}
//	  address:
//	    require: all
//	    keys:
//	      city: {type: string}
//
// Keys are validated in the order they are written. A key holding a list is
// compiled into a chain; a key holding a mapping with "keys" is a nested key
// map.
package ruleset

import (
	"errors"
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"

	"github.com/reoring/flowi"
	"github.com/reoring/flowi/schema"
)

// ErrInvalidRule reports a malformed rule document.
var ErrInvalidRule = errors.New("ruleset: invalid rule")

// Document is the top-level (or nested) key map definition.
type Document struct {
	Convert        *bool             `yaml:"convert"`
	Unknown        string            `yaml:"unknown"`
	Labels         map[string]string `yaml:"labels"`
	Require        Selector          `yaml:"require"`
	RequireMessage string            `yaml:"require_message"`
	Forbid         Selector          `yaml:"forbid"`
	ForbidMessage  string            `yaml:"forbid_message"`
	Use            []string          `yaml:"use"`
	Message        string            `yaml:"message"`
	Keys           yaml.Node         `yaml:"keys"`
}

// Selector is "all", "none", a boolean, or a list of keys.
type Selector struct {
	set bool
	sel flowi.KeySelector
}

func (s *Selector) UnmarshalYAML(n *yaml.Node) error {
	switch n.Kind {
	case yaml.ScalarNode:
		switch n.Value {
		case "all", "true":
			s.sel = flowi.AllKeys
		case "none", "false":
			s.sel = flowi.NoKeys
		default:
			s.sel = flowi.Only(n.Value)
		}
	case yaml.SequenceNode:
		var keys []string
		if err := n.Decode(&keys); err != nil {
			return err
		}
		s.sel = flowi.Only(keys...)
	default:
		return fmt.Errorf("%w: line %d: require/forbid must be all, none or a key list", ErrInvalidRule, n.Line)
	}
	s.set = true
	return nil
}

// Rule describes one shape.
type Rule struct {
	Type      string    `yaml:"type"`
	Label     string    `yaml:"label"`
	Message   string    `yaml:"message"`
	Min       *float64  `yaml:"min"`
	Max       *float64  `yaml:"max"`
	Len       *int      `yaml:"len"`
	Integer   bool      `yaml:"integer"`
	Positive  bool      `yaml:"positive"`
	Trim      bool      `yaml:"trim"`
	Lowercase bool      `yaml:"lowercase"`
	Uppercase bool      `yaml:"uppercase"`
	UUID      bool      `yaml:"uuid"`
	Email     bool      `yaml:"email"`
	Pattern   string    `yaml:"pattern"`
	Format    string    `yaml:"format"`
	OneOf     []string  `yaml:"one_of"`
	Items     *Rule     `yaml:"items"`
	Required  []string  `yaml:"required"`
	Fields    yaml.Node `yaml:"fields"`
}

// Load reads and compiles the rule file at path.
func Load(path string) (*flowi.KeyMap, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	km, err := Import(b)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return km, nil
}

// Import compiles a rule document.
func Import(doc []byte) (*flowi.KeyMap, error) {
	var d Document
	if err := yaml.Unmarshal(doc, &d); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRule, err)
	}
	b, err := d.builder()
	if err != nil {
		return nil, err
	}
	return b.Build()
}

func (d *Document) builder() (*flowi.KeyMapBuilder, error) {
	fields, err := compileKeys(&d.Keys)
	if err != nil {
		return nil, err
	}
	var b *flowi.KeyMapBuilder
	if len(fields) > 0 {
		b = flowi.NewKeyMap(fields, msgs(d.Message)...)
	} else {
		b = flowi.NewKeyMap(nil)
	}
	if len(d.Labels) > 0 {
		b.Labels(d.Labels)
	}
	if d.Forbid.set {
		b.Forbid(d.Forbid.sel, msgs(d.ForbidMessage)...)
	}
	if d.Require.set {
		b.Require(d.Require.sel, msgs(d.RequireMessage)...)
	}
	if len(d.Use) > 0 {
		b.Use(d.Use...)
	}
	if d.Convert != nil {
		b.Convert(*d.Convert)
	}
	if d.Unknown != "" {
		p, ok := flowi.ParseUnknownPolicy(d.Unknown)
		if !ok {
			return nil, fmt.Errorf("%w: unknown policy %q", ErrInvalidRule, d.Unknown)
		}
		b.Unknown(p)
	}
	return b, nil
}

func msgs(m string) []string {
	if m == "" {
		return nil
	}
	return []string{m}
}

// compileKeys walks a "keys" mapping in document order.
func compileKeys(n *yaml.Node) (flowi.Fields, error) {
	if n.Kind == 0 {
		return nil, nil
	}
	if n.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("%w: line %d: keys must be a mapping", ErrInvalidRule, n.Line)
	}
	fields := make(flowi.Fields, 0, len(n.Content)/2)
	for i := 0; i+1 < len(n.Content); i += 2 {
		key, val := n.Content[i].Value, n.Content[i+1]
		f, err := compileField(key, val)
		if err != nil {
			return nil, fmt.Errorf("key %q: %w", key, err)
		}
		fields = append(fields, f)
	}
	return fields, nil
}

func compileField(key string, n *yaml.Node) (flowi.Field, error) {
	switch n.Kind {
	case yaml.SequenceNode:
		c := flowi.NewChain(nil)
		for _, item := range n.Content {
			var r Rule
			if err := item.Decode(&r); err != nil {
				return flowi.Field{}, fmt.Errorf("%w: %v", ErrInvalidRule, err)
			}
			s, err := r.shape()
			if err != nil {
				return flowi.Field{}, err
			}
			c.And(s, msgs(r.Message)...)
		}
		return flowi.Field{Key: key, Validator: c}, nil
	case yaml.MappingNode:
		if hasKey(n, "keys") {
			var d Document
			if err := n.Decode(&d); err != nil {
				return flowi.Field{}, fmt.Errorf("%w: %v", ErrInvalidRule, err)
			}
			b, err := d.builder()
			if err != nil {
				return flowi.Field{}, err
			}
			return flowi.Field{Key: key, Validator: b}, nil
		}
		var r Rule
		if err := n.Decode(&r); err != nil {
			return flowi.Field{}, fmt.Errorf("%w: %v", ErrInvalidRule, err)
		}
		s, err := r.shape()
		if err != nil {
			return flowi.Field{}, err
		}
		return flowi.Field{Key: key, Validator: s, Message: r.Message}, nil
	}
	return flowi.Field{}, fmt.Errorf("%w: line %d: expected a rule, a rule list or a nested key map", ErrInvalidRule, n.Line)
}

func hasKey(n *yaml.Node, key string) bool {
	for i := 0; i+1 < len(n.Content); i += 2 {
		if n.Content[i].Value == key {
			return true
		}
	}
	return false
}

// shape builds the schema shape described by r.
func (r *Rule) shape() (flowi.Shape, error) {
	switch r.Type {
	case "string":
		s := schema.String().Label(r.Label)
		if r.Min != nil {
			s = s.Min(int(*r.Min))
		}
		if r.Max != nil {
			s = s.Max(int(*r.Max))
		}
		if r.Len != nil {
			s = s.Len(*r.Len)
		}
		if r.Trim {
			s = s.Trim()
		}
		if r.Lowercase {
			s = s.Lowercase()
		}
		if r.Uppercase {
			s = s.Uppercase()
		}
		if r.UUID {
			s = s.UUID()
		}
		if r.Email {
			s = s.Email()
		}
		if r.Pattern != "" {
			re, err := regexp.Compile(r.Pattern)
			if err != nil {
				return nil, fmt.Errorf("%w: pattern: %v", ErrInvalidRule, err)
			}
			s = s.Pattern(re, msgs(r.Format)...)
		}
		if len(r.OneOf) > 0 {
			s = s.OneOf(r.OneOf...)
		}
		return s, nil
	case "number":
		s := schema.Number().Label(r.Label)
		if r.Min != nil {
			s = s.Min(*r.Min)
		}
		if r.Max != nil {
			s = s.Max(*r.Max)
		}
		if r.Integer {
			s = s.Integer()
		}
		if r.Positive {
			s = s.Positive()
		}
		return s, nil
	case "bool", "boolean":
		return schema.Bool().Label(r.Label), nil
	case "time":
		return schema.Time().Label(r.Label), nil
	case "any", "":
		return schema.Any().Label(r.Label), nil
	case "array":
		var item flowi.Shape
		if r.Items != nil {
			s, err := r.Items.shape()
			if err != nil {
				return nil, fmt.Errorf("items: %w", err)
			}
			item = s
		}
		a := schema.Array(item).Label(r.Label)
		if r.Min != nil {
			a = a.Min(int(*r.Min))
		}
		if r.Max != nil {
			a = a.Max(int(*r.Max))
		}
		return a, nil
	case "object":
		fields := schema.Fields{}
		n := &r.Fields
		for i := 0; i+1 < len(n.Content); i += 2 {
			var child Rule
			if err := n.Content[i+1].Decode(&child); err != nil {
				return nil, fmt.Errorf("%w: %v", ErrInvalidRule, err)
			}
			s, err := child.shape()
			if err != nil {
				return nil, fmt.Errorf("field %q: %w", n.Content[i].Value, err)
			}
			fields[n.Content[i].Value] = s
		}
		return schema.Object(fields).Required(r.Required...).Label(r.Label), nil
	}
	return nil, fmt.Errorf("%w: unknown type %q", ErrInvalidRule, r.Type)
}
