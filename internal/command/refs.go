package command

import (
	"fmt"
	"strings"

	"github.com/pitabwire/trialscope/model"
)

// Resolver resolves reference expressions in command fields against the IDs
// saved by earlier commands and the acting request context.
type Resolver struct {
	Refs    map[string]string
	Context *model.RequestContext
}

// Resolve evaluates a reference expression and returns the ID it names.
// Supported expressions:
//   - ref.name           ID saved by an earlier command with save_as: name
//   - context.subject_id from the acting RequestContext
//   - context.actor      display name, falling back to subject ID
//   - context.surface    surface the actor is acting from
//   - 'literal'          single-quoted literal string
//
// Any other value is taken as a literal ID.
func (r *Resolver) Resolve(expr string) (string, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return "", fmt.Errorf("empty expression")
	}

	if len(expr) >= 2 && expr[0] == '\'' && expr[len(expr)-1] == '\'' {
		return expr[1 : len(expr)-1], nil
	}

	prefix, path, ok := strings.Cut(expr, ".")
	if !ok {
		return expr, nil
	}
	switch prefix {
	case "ref":
		return r.resolveRef(path)
	case "context":
		return r.resolveContext(path)
	default:
		return expr, nil
	}
}

// ResolveAll resolves every expression in exprs.
func (r *Resolver) ResolveAll(exprs []string) ([]string, error) {
	out := make([]string, 0, len(exprs))
	for _, e := range exprs {
		v, err := r.Resolve(e)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// Save records id under name for later ref.name expressions. An empty name
// is ignored.
func (r *Resolver) Save(name, id string) {
	if name == "" {
		return
	}
	if r.Refs == nil {
		r.Refs = make(map[string]string)
	}
	r.Refs[name] = id
}

func (r *Resolver) resolveRef(name string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("invalid expression %q: empty path after prefix", "ref.")
	}
	id, ok := r.Refs[name]
	if !ok {
		return "", fmt.Errorf("reference %q was never saved", name)
	}
	return id, nil
}

func (r *Resolver) resolveContext(field string) (string, error) {
	if r.Context == nil {
		return "", fmt.Errorf("request context is nil, cannot resolve %q", "context."+field)
	}
	switch field {
	case "subject_id":
		return r.Context.SubjectID, nil
	case "actor":
		return r.Context.Actor(), nil
	case "surface":
		return r.Context.Surface, nil
	default:
		return "", fmt.Errorf("unknown context field %q", field)
	}
}
