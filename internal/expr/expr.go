// Package expr implements the small line-based transform language used
// by the data.transform node. A program is a sequence of commands, one
// per line, applied to a map-shaped record (or to every element of a
// slice of records). There is no dynamic code execution: programs are
// parsed once and interpreted, which keeps transforms time-bounded and
// free of host access.
//
//	# promote and normalize a couple of fields
//	set   greeting "hello {user.name}"
//	copy  user.email contact
//	upper contact
//	drop  user.password
package expr

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

type opcode int

const (
	opSet opcode = iota
	opCopy
	opRename
	opDrop
	opDefault
	opUpper
	opLower
	opTrim
	opNumber
	opKeep
)

type step struct {
	op    opcode
	path  string
	to    string
	arg   string
	paths []string
}

// Program is a parsed transform ready to apply.
type Program struct {
	steps []step
}

// Parse compiles src into a Program. Blank lines and lines starting
// with '#' are skipped. Errors carry the 1-based line number.
func Parse(src string) (*Program, error) {
	var steps []step
	for idx, raw := range strings.Split(src, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		name, rest := takeToken(line)
		st, err := parseStep(idx+1, name, strings.TrimSpace(rest))
		if err != nil {
			return nil, err
		}
		steps = append(steps, st)
	}
	if len(steps) == 0 {
		return nil, fmt.Errorf("transform program contains no commands")
	}
	return &Program{steps: steps}, nil
}

func parseStep(line int, name, args string) (step, error) {
	switch strings.ToLower(name) {
	case "set":
		path, rest := takeToken(args)
		if path == "" {
			return step{}, fmt.Errorf("transform line %d: set needs a field path", line)
		}
		value, err := parseStringArgument(rest)
		if err != nil {
			return step{}, fmt.Errorf("transform line %d: %w", line, err)
		}
		return step{op: opSet, path: path, arg: value}, nil
	case "copy":
		from, rest := takeToken(args)
		to, _ := takeToken(rest)
		if from == "" || to == "" {
			return step{}, fmt.Errorf("transform line %d: copy needs source and target paths", line)
		}
		return step{op: opCopy, path: from, to: to}, nil
	case "rename":
		from, rest := takeToken(args)
		to, _ := takeToken(rest)
		if from == "" || to == "" {
			return step{}, fmt.Errorf("transform line %d: rename needs source and target paths", line)
		}
		return step{op: opRename, path: from, to: to}, nil
	case "drop":
		path, _ := takeToken(args)
		if path == "" {
			return step{}, fmt.Errorf("transform line %d: drop needs a field path", line)
		}
		return step{op: opDrop, path: path}, nil
	case "default":
		path, rest := takeToken(args)
		if path == "" {
			return step{}, fmt.Errorf("transform line %d: default needs a field path", line)
		}
		value, err := parseStringArgument(rest)
		if err != nil {
			return step{}, fmt.Errorf("transform line %d: %w", line, err)
		}
		return step{op: opDefault, path: path, arg: value}, nil
	case "upper":
		path, _ := takeToken(args)
		if path == "" {
			return step{}, fmt.Errorf("transform line %d: upper needs a field path", line)
		}
		return step{op: opUpper, path: path}, nil
	case "lower":
		path, _ := takeToken(args)
		if path == "" {
			return step{}, fmt.Errorf("transform line %d: lower needs a field path", line)
		}
		return step{op: opLower, path: path}, nil
	case "trim":
		path, _ := takeToken(args)
		if path == "" {
			return step{}, fmt.Errorf("transform line %d: trim needs a field path", line)
		}
		return step{op: opTrim, path: path}, nil
	case "number":
		path, _ := takeToken(args)
		if path == "" {
			return step{}, fmt.Errorf("transform line %d: number needs a field path", line)
		}
		return step{op: opNumber, path: path}, nil
	case "keep":
		var paths []string
		rest := args
		for {
			var p string
			p, rest = takeToken(rest)
			if p == "" {
				break
			}
			paths = append(paths, p)
		}
		if len(paths) == 0 {
			return step{}, fmt.Errorf("transform line %d: keep needs at least one field path", line)
		}
		return step{op: opKeep, paths: paths}, nil
	default:
		return step{}, fmt.Errorf("transform line %d: unknown command %q", line, name)
	}
}

// Apply runs the program against data. A map input yields a transformed
// copy; a slice input is transformed element-wise. Scalar inputs are
// wrapped as {"value": data} first.
func (p *Program) Apply(data any) (any, error) {
	switch v := data.(type) {
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			r, err := p.applyOne(item)
			if err != nil {
				return nil, fmt.Errorf("item %d: %w", i, err)
			}
			out[i] = r
		}
		return out, nil
	default:
		return p.applyOne(data)
	}
}

func (p *Program) applyOne(data any) (any, error) {
	record := toRecord(data)
	for _, st := range p.steps {
		if err := st.apply(record); err != nil {
			return nil, err
		}
	}
	return map[string]any(record), nil
}

type record map[string]any

func toRecord(data any) record {
	if m, ok := data.(map[string]any); ok {
		out := make(record, len(m))
		for k, v := range m {
			out[k] = v
		}
		return out
	}
	return record{"value": data}
}

func (st step) apply(r record) error {
	switch st.op {
	case opSet:
		setPath(r, st.path, Render(st.arg, r))
	case opCopy:
		if v, ok := Lookup(map[string]any(r), st.path); ok {
			setPath(r, st.to, v)
		}
	case opRename:
		if v, ok := Lookup(map[string]any(r), st.path); ok {
			deletePath(r, st.path)
			setPath(r, st.to, v)
		}
	case opDrop:
		deletePath(r, st.path)
	case opDefault:
		if _, ok := Lookup(map[string]any(r), st.path); !ok {
			setPath(r, st.path, Render(st.arg, r))
		}
	case opUpper:
		mutateString(r, st.path, strings.ToUpper)
	case opLower:
		mutateString(r, st.path, strings.ToLower)
	case opTrim:
		mutateString(r, st.path, strings.TrimSpace)
	case opNumber:
		if v, ok := Lookup(map[string]any(r), st.path); ok {
			n, ok := ToNumber(v)
			if !ok {
				return fmt.Errorf("field %s is not numeric", st.path)
			}
			setPath(r, st.path, n)
		}
	case opKeep:
		kept := record{}
		for _, p := range st.paths {
			if v, ok := Lookup(map[string]any(r), p); ok {
				setPath(kept, p, v)
			}
		}
		for k := range r {
			delete(r, k)
		}
		for k, v := range kept {
			r[k] = v
		}
	}
	return nil
}

func mutateString(r record, path string, fn func(string) string) {
	if v, ok := Lookup(map[string]any(r), path); ok {
		if s, ok := v.(string); ok {
			setPath(r, path, fn(s))
		}
	}
}

// Lookup resolves a dotted path into nested maps. The empty path
// returns the value itself.
func Lookup(value any, path string) (any, bool) {
	if path == "" {
		return value, true
	}
	current := value
	for _, part := range strings.Split(path, ".") {
		m, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		current, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

func setPath(r record, path string, value any) {
	parts := strings.Split(path, ".")
	current := map[string]any(r)
	for _, part := range parts[:len(parts)-1] {
		next, ok := current[part].(map[string]any)
		if !ok {
			next = map[string]any{}
			current[part] = next
		}
		current = next
	}
	current[parts[len(parts)-1]] = value
}

func deletePath(r record, path string) {
	parts := strings.Split(path, ".")
	current := map[string]any(r)
	for _, part := range parts[:len(parts)-1] {
		next, ok := current[part].(map[string]any)
		if !ok {
			return
		}
		current = next
	}
	delete(current, parts[len(parts)-1])
}

// Render substitutes {path} placeholders in template with values from
// the record. Unknown paths render as an empty string.
func Render(template string, r map[string]any) string {
	var b strings.Builder
	rest := template
	for {
		open := strings.IndexByte(rest, '{')
		if open < 0 {
			b.WriteString(rest)
			return b.String()
		}
		closing := strings.IndexByte(rest[open:], '}')
		if closing < 0 {
			b.WriteString(rest)
			return b.String()
		}
		b.WriteString(rest[:open])
		path := rest[open+1 : open+closing]
		if v, ok := Lookup(r, strings.TrimSpace(path)); ok {
			b.WriteString(Stringify(v))
		}
		rest = rest[open+closing+1:]
	}
}

// Stringify renders a value the way templates and substring operators
// see it.
func Stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return fmt.Sprintf("%v", t)
	}
}

// ToNumber coerces a value to float64. Strings are parsed; booleans
// and non-numeric values do not coerce.
func ToNumber(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int32:
		return float64(t), true
	case int64:
		return float64(t), true
	case uint:
		return float64(t), true
	case uint64:
		return float64(t), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

func takeToken(line string) (string, string) {
	line = strings.TrimLeftFunc(line, unicode.IsSpace)
	if line == "" {
		return "", ""
	}

	if line[0] == '"' {
		var builder strings.Builder
		escaping := false
		for i := 1; i < len(line); i++ {
			ch := line[i]
			if escaping {
				builder.WriteByte(ch)
				escaping = false
				continue
			}
			if ch == '\\' {
				escaping = true
				continue
			}
			if ch == '"' {
				return builder.String(), line[i+1:]
			}
			builder.WriteByte(ch)
		}
		return builder.String(), ""
	}

	end := strings.IndexFunc(line, unicode.IsSpace)
	if end < 0 {
		return line, ""
	}
	return line[:end], line[end:]
}

func parseStringArgument(args string) (string, error) {
	args = strings.TrimSpace(args)
	if args == "" {
		return "", fmt.Errorf("missing value")
	}
	value, rest := takeToken(args)
	if strings.TrimSpace(rest) != "" {
		return "", fmt.Errorf("unexpected trailing input %q", strings.TrimSpace(rest))
	}
	return value, nil
}
