package runtime

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/Jeffail/gabs/v2"
)

// Template expressions have the form {{identifier(.prop|[index])*}} and may
// appear anywhere in a step's input tree: as a whole value, interpolated
// inside a larger string, or nested in objects and arrays.
//
// Resolution precedence: trigger.* resolves against the trigger payload,
// credential.* against the run's credential namespace (user.* is a
// deprecated alias for credential.*), and any other bare identifier against
// previously published step outputs.
var templatePattern = regexp.MustCompile(`\{\{\s*([^{}]+?)\s*\}\}`)

// Reserved leading identifiers satisfied before the run starts. They never
// contribute dependency edges between steps.
const (
	namespaceTrigger    = "trigger"
	namespaceCredential = "credential"
	namespaceUser       = "user" // deprecated alias for credential
)

type refSegment struct {
	key     string
	index   int
	isIndex bool
}

func (s refSegment) String() string {
	if s.isIndex {
		return fmt.Sprintf("[%d]", s.index)
	}
	return s.key
}

// Resolver resolves template expressions against one run's Execution.
type Resolver struct{}

func NewResolver() *Resolver {
	return &Resolver{}
}

// ResolveTree resolves every template expression in a step's input tree,
// recursing through nested objects and arrays. Non-string leaves pass
// through unchanged. The input tree itself is never mutated.
func (r *Resolver) ResolveTree(exec *Execution, stepID string, tree map[string]any) (map[string]any, error) {
	if tree == nil {
		return map[string]any{}, nil
	}
	out := make(map[string]any, len(tree))
	for k, v := range tree {
		resolved, err := r.resolveValue(exec, stepID, v)
		if err != nil {
			return nil, err
		}
		out[k] = resolved
	}
	return out, nil
}

func (r *Resolver) resolveValue(exec *Execution, stepID string, value any) (any, error) {
	switch v := value.(type) {
	case string:
		return r.ResolveString(exec, stepID, v)
	case map[string]any:
		return r.ResolveTree(exec, stepID, v)
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			resolved, err := r.resolveValue(exec, stepID, item)
			if err != nil {
				return nil, err
			}
			out[i] = resolved
		}
		return out, nil
	default:
		return value, nil
	}
}

// ResolveString resolves the templates embedded in s. A string that is
// exactly one template yields the referenced value with its original type;
// a string with surrounding text yields an interpolated string.
func (r *Resolver) ResolveString(exec *Execution, stepID, s string) (any, error) {
	matches := templatePattern.FindAllStringSubmatchIndex(s, -1)
	if len(matches) == 0 {
		return s, nil
	}

	// Whole-string template: preserve the value's type.
	if len(matches) == 1 && matches[0][0] == 0 && matches[0][1] == len(s) {
		expr := s[matches[0][2]:matches[0][3]]
		return r.resolveReference(exec, stepID, expr)
	}

	var b strings.Builder
	last := 0
	for _, m := range matches {
		b.WriteString(s[last:m[0]])
		value, err := r.resolveReference(exec, stepID, s[m[2]:m[3]])
		if err != nil {
			return nil, err
		}
		b.WriteString(stringify(value))
		last = m[1]
	}
	b.WriteString(s[last:])
	return b.String(), nil
}

// resolveReference resolves a single parsed expression like x.y[0].z.
// Failure names the first unresolvable segment; it never silently yields an
// empty value.
func (r *Resolver) resolveReference(exec *Execution, stepID, expr string) (any, error) {
	segments, err := parseReference(expr)
	if err != nil {
		return nil, &ResolutionError{StepID: stepID, Expression: expr, Segment: expr, Reason: err.Error()}
	}

	head := segments[0].key
	var root any
	switch head {
	case namespaceTrigger:
		root = exec.Trigger()
	case namespaceCredential, namespaceUser:
		root = exec.Credentials()
	default:
		v, ok := exec.Output(head)
		if !ok {
			return nil, &ResolutionError{
				StepID:     stepID,
				Expression: expr,
				Segment:    head,
				Reason:     "no completed step has declared this output",
			}
		}
		root = v
	}

	current := gabs.Wrap(root)
	for _, seg := range segments[1:] {
		if seg.isIndex {
			arr, ok := current.Data().([]any)
			if !ok {
				return nil, &ResolutionError{
					StepID:     stepID,
					Expression: expr,
					Segment:    seg.String(),
					Reason:     fmt.Sprintf("cannot index into %T", current.Data()),
				}
			}
			if seg.index < 0 || seg.index >= len(arr) {
				return nil, &ResolutionError{
					StepID:     stepID,
					Expression: expr,
					Segment:    seg.String(),
					Reason:     fmt.Sprintf("index out of range (length %d)", len(arr)),
				}
			}
			current = gabs.Wrap(arr[seg.index])
			continue
		}

		if _, ok := current.Data().(map[string]any); !ok {
			return nil, &ResolutionError{
				StepID:     stepID,
				Expression: expr,
				Segment:    seg.key,
				Reason:     fmt.Sprintf("cannot access property of %T", current.Data()),
			}
		}
		next := current.Search(seg.key)
		if next == nil {
			return nil, &ResolutionError{
				StepID:     stepID,
				Expression: expr,
				Segment:    seg.key,
				Reason:     "no such property",
			}
		}
		current = next
	}

	return current.Data(), nil
}

var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_-]*`)

// parseReference splits an expression into its identifier and property/index
// chain. It rejects malformed chains rather than guessing.
func parseReference(expr string) ([]refSegment, error) {
	rest := expr
	ident := identPattern.FindString(rest)
	if ident == "" {
		return nil, fmt.Errorf("expression must start with an identifier")
	}
	segments := []refSegment{{key: ident}}
	rest = rest[len(ident):]

	for rest != "" {
		switch rest[0] {
		case '.':
			rest = rest[1:]
			prop := identPattern.FindString(rest)
			if prop == "" {
				return nil, fmt.Errorf("expected property name after '.'")
			}
			segments = append(segments, refSegment{key: prop})
			rest = rest[len(prop):]
		case '[':
			end := strings.IndexByte(rest, ']')
			if end < 0 {
				return nil, fmt.Errorf("unterminated index")
			}
			idx, err := strconv.Atoi(rest[1:end])
			if err != nil {
				return nil, fmt.Errorf("invalid index %q", rest[1:end])
			}
			segments = append(segments, refSegment{index: idx, isIndex: true})
			rest = rest[end+1:]
		default:
			return nil, fmt.Errorf("unexpected character %q", rest[0])
		}
	}
	return segments, nil
}

// stringify renders a resolved value for interpolation inside a larger
// string. Containers render as JSON so interpolated payloads stay parseable.
func stringify(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case map[string]any, []any:
		if raw, err := json.Marshal(v); err == nil {
			return string(raw)
		}
		return fmt.Sprintf("%v", v)
	default:
		return fmt.Sprintf("%v", v)
	}
}

// CollectRefs scans an input tree and returns the leading identifiers of
// every template expression, excluding the namespaces satisfied before the
// run starts. The graph builder uses this to derive dependency edges.
func CollectRefs(tree any) []string {
	seen := make(map[string]bool)
	collectRefs(tree, seen)

	out := make([]string, 0, len(seen))
	for name := range seen {
		out = append(out, name)
	}
	return out
}

func collectRefs(value any, seen map[string]bool) {
	switch v := value.(type) {
	case string:
		for _, m := range templatePattern.FindAllStringSubmatch(v, -1) {
			segments, err := parseReference(m[1])
			if err != nil {
				continue // malformed templates fail at resolution time, not here
			}
			head := segments[0].key
			if head == namespaceTrigger || head == namespaceCredential || head == namespaceUser {
				continue
			}
			seen[head] = true
		}
	case map[string]any:
		for _, item := range v {
			collectRefs(item, seen)
		}
	case []any:
		for _, item := range v {
			collectRefs(item, seen)
		}
	}
}
