package signature

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/gomlx/gopjrt/dtypes"
)

// Op kinds produced by the default rules.
const (
	KindGemm          = "gemm"
	KindConv          = "conv"
	KindConv3D        = "conv3d"
	KindNormalization = "normalization"
)

// ExtraFunc derives the op-specific discriminators of a signature.
type ExtraFunc func(op Op) (map[string]string, error)

// Rule maps op names starting with Prefix to an op kind.
// A prefix matches the whole name or a name continuing with '_'.
type Rule struct {
	Prefix string
	Kind   string
	Extra  ExtraFunc
}

// DefaultRules returns the canonicalization rules for the built-in op families.
func DefaultRules() []Rule {
	return []Rule{
		{Prefix: "gemm", Kind: KindGemm, Extra: gemmExtra},
		{Prefix: "bmm", Kind: KindGemm, Extra: gemmExtra},
		{Prefix: "conv2d", Kind: KindConv, Extra: convExtra},
		{Prefix: "conv3d", Kind: KindConv3D, Extra: convExtra},
		{Prefix: "layernorm", Kind: KindNormalization, Extra: normExtra},
		{Prefix: "groupnorm", Kind: KindNormalization, Extra: normExtra},
		{Prefix: "softmax", Kind: KindNormalization, Extra: normExtra},
	}
}

// Builder turns op instances into signatures.
//
// Contract:
// - Determinism: the same (target, op) always yields the same Signature.
// - Concurrency: Build is safe for concurrent use; Builder is immutable.
// - Errors: unsupported or malformed ops return *Error.
type Builder struct {
	rules []Rule
}

// NewBuilder creates a builder with the default rules plus the given ones.
// A rule whose prefix equals a default prefix replaces it.
func NewBuilder(rules ...Rule) *Builder {
	byPrefix := make(map[string]Rule)
	for _, r := range DefaultRules() {
		byPrefix[r.Prefix] = r
	}
	for _, r := range rules {
		byPrefix[r.Prefix] = r
	}

	all := make([]Rule, 0, len(byPrefix))
	for _, r := range byPrefix {
		all = append(all, r)
	}
	// Longest prefix first; ties sorted for determinism.
	sort.Slice(all, func(i, j int) bool {
		if len(all[i].Prefix) != len(all[j].Prefix) {
			return len(all[i].Prefix) > len(all[j].Prefix)
		}
		return all[i].Prefix < all[j].Prefix
	})
	return &Builder{rules: all}
}

// Kinds returns the distinct op kinds the builder can produce.
func (b *Builder) Kinds() []string {
	seen := make(map[string]bool)
	var kinds []string
	for _, r := range b.rules {
		if !seen[r.Kind] {
			seen[r.Kind] = true
			kinds = append(kinds, r.Kind)
		}
	}
	sort.Strings(kinds)
	return kinds
}

// Build canonicalizes op for target.
func (b *Builder) Build(target string, op Op) (Signature, error) {
	if err := validateTarget(target); err != nil {
		return Signature{}, &Error{Op: op.Name, Reason: err.Error(), Err: ErrInvalidTarget}
	}

	rule, ok := b.match(op.Name)
	if !ok {
		return Signature{}, &Error{Op: op.Name, Err: ErrUnsupportedOp}
	}

	if len(op.Inputs) == 0 {
		return Signature{}, invalidf(op.Name, "no inputs")
	}
	names := make([]string, len(op.Inputs))
	for i, t := range op.Inputs {
		name, err := canonicalDType(t.DType)
		if err != nil {
			return Signature{}, invalidf(op.Name, "input %d: %v", i, err)
		}
		names[i] = name
		for j, d := range t.Shape {
			if err := validateDim(d); err != nil {
				return Signature{}, invalidf(op.Name, "input %d dim %d: %v", i, j, err)
			}
		}
	}

	extra := map[string]string{}
	if rule.Extra != nil {
		e, err := rule.Extra(op)
		if err != nil {
			return Signature{}, invalidf(op.Name, "%v", err)
		}
		for k, v := range e {
			extra[k] = v
		}
	}

	return Signature{
		Target:     target,
		OpKind:     rule.Kind,
		Op:         op.Name,
		ShapeClass: shapeClass(op.Inputs, names),
		Extra:      extra,
	}, nil
}

func (b *Builder) match(name string) (Rule, bool) {
	for _, r := range b.rules {
		if !strings.HasPrefix(name, r.Prefix) {
			continue
		}
		rest := name[len(r.Prefix):]
		if rest == "" || rest[0] == '_' {
			return r, true
		}
	}
	return Rule{}, false
}

func validateTarget(target string) error {
	if strings.TrimSpace(target) == "" {
		return fmt.Errorf("target is empty")
	}
	if strings.ContainsAny(target, "/\\\n\r ") {
		return fmt.Errorf("target %q contains separators or whitespace", target)
	}
	return nil
}

func validateDim(d Dim) error {
	if d.Dynamic {
		if d.Lo < 0 || (d.Hi != 0 && d.Hi < d.Lo) {
			return fmt.Errorf("bad dynamic bounds [%d, %d]", d.Lo, d.Hi)
		}
		return nil
	}
	if d.Value < 0 {
		return fmt.Errorf("negative size %d", d.Value)
	}
	return nil
}

// dtypeNames indexes dtypes.MapOfNames by lower-cased name.
var dtypeNames = func() map[string]dtypes.DType {
	m := make(map[string]dtypes.DType, len(dtypes.MapOfNames))
	for name, dt := range dtypes.MapOfNames {
		m[strings.ToLower(name)] = dt
	}
	return m
}()

func canonicalDType(name string) (string, error) {
	dt, ok := dtypeNames[strings.ToLower(strings.TrimSpace(name))]
	if !ok || dt == dtypes.InvalidDType {
		return "", fmt.Errorf("unknown dtype %q", name)
	}
	return strings.ToLower(dt.String()), nil
}

// gemmExtra handles names like gemm_rcr, gemm_rcr_bias_relu and bmm_rrr.
func gemmExtra(op Op) (map[string]string, error) {
	if len(op.Inputs) < 2 {
		return nil, fmt.Errorf("expected at least 2 operands, got %d", len(op.Inputs))
	}
	parts := strings.Split(op.Name, "_")
	if len(parts) < 2 || !isLayout(parts[1]) {
		return nil, fmt.Errorf("missing row/column layout code")
	}
	epilogue := "none"
	if len(parts) > 2 {
		epilogue = strings.Join(parts[2:], "_")
	}
	return map[string]string{
		"layout":   parts[1],
		"epilogue": epilogue,
	}, nil
}

func isLayout(s string) bool {
	if len(s) != 3 {
		return false
	}
	for _, c := range s {
		if c != 'r' && c != 'c' {
			return false
		}
	}
	return true
}

func convExtra(op Op) (map[string]string, error) {
	if len(op.Inputs) < 2 {
		return nil, fmt.Errorf("expected input and weight operands, got %d", len(op.Inputs))
	}
	extra := map[string]string{
		"stride": "1",
		"pad":    "0",
		"dilate": "1",
		"group":  "1",
	}
	for key := range extra {
		if v, ok := op.Attrs[key]; ok {
			s, err := formatAttr(v)
			if err != nil {
				return nil, fmt.Errorf("attr %s: %w", key, err)
			}
			extra[key] = s
		}
	}
	epilogue := "none"
	if i := strings.IndexByte(op.Name, '_'); i >= 0 {
		epilogue = op.Name[i+1:]
	}
	extra["epilogue"] = epilogue
	return extra, nil
}

func normExtra(op Op) (map[string]string, error) {
	extra := map[string]string{"op": op.Name}
	for _, key := range []string{"axis", "num_groups"} {
		if v, ok := op.Attrs[key]; ok {
			s, err := formatAttr(v)
			if err != nil {
				return nil, fmt.Errorf("attr %s: %w", key, err)
			}
			extra[key] = s
		}
	}
	return extra, nil
}

// formatAttr renders scalar and list attributes as stable strings.
func formatAttr(v any) (string, error) {
	switch val := v.(type) {
	case string:
		return val, nil
	case bool:
		return strconv.FormatBool(val), nil
	case int:
		return strconv.Itoa(val), nil
	case int32:
		return strconv.FormatInt(int64(val), 10), nil
	case int64:
		return strconv.FormatInt(val, 10), nil
	case float64:
		return strconv.FormatFloat(val, 'g', -1, 64), nil
	case []int:
		parts := make([]string, len(val))
		for i, x := range val {
			parts[i] = strconv.Itoa(x)
		}
		return strings.Join(parts, ","), nil
	case []int64:
		parts := make([]string, len(val))
		for i, x := range val {
			parts[i] = strconv.FormatInt(x, 10)
		}
		return strings.Join(parts, ","), nil
	default:
		return "", fmt.Errorf("unsupported attribute type %T", v)
	}
}
