package signature

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"strconv"
	"strings"
)

// DynamicSymbol is how runtime-variable dimensions appear in a shape class.
const DynamicSymbol = "?"

// Dim is one tensor dimension.
type Dim struct {
	// Value is the compile-time size. Ignored for dynamic dims.
	Value int64

	// Dynamic marks a runtime-variable dimension.
	Dynamic bool

	// Name, Lo and Hi describe a dynamic dim. They never enter the key.
	Name string
	Lo   int64
	Hi   int64
}

// Static returns a compile-time fixed dimension.
func Static(v int64) Dim {
	return Dim{Value: v}
}

// Var returns a runtime-variable dimension with inclusive bounds [lo, hi].
func Var(name string, lo, hi int64) Dim {
	return Dim{Dynamic: true, Name: name, Lo: lo, Hi: hi}
}

func (d Dim) String() string {
	if d.Dynamic {
		return DynamicSymbol
	}
	return strconv.FormatInt(d.Value, 10)
}

// Tensor describes one operand of an op.
type Tensor struct {
	Name  string
	DType string
	Shape []Dim
}

// Op is an operation instance as handed over by the compiler.
type Op struct {
	// Name is the fully qualified op name, e.g. "gemm_rcr_bias".
	Name string

	// Inputs are the operands, in operand order.
	Inputs []Tensor

	// Attrs holds op-specific attributes (stride, pad, axis, ...).
	Attrs map[string]any
}

// Signature is the canonical, immutable cache key of an op instance.
type Signature struct {
	Target     string
	OpKind     string
	Op         string
	ShapeClass string
	Extra      map[string]string
}

// Key returns the deterministic serialization of the signature.
// Map entries are emitted in sorted order so the key is stable across
// processes and machines.
func (s Signature) Key() string {
	extra := make(map[string]any, len(s.Extra))
	for k, v := range s.Extra {
		extra[k] = v
	}
	b, err := canonicalize(map[string]any{
		"target": s.Target,
		"kind":   s.OpKind,
		"op":     s.Op,
		"shape":  s.ShapeClass,
		"extra":  extra,
	})
	if err != nil {
		// Only strings reach canonicalize; json.Marshal cannot fail on them.
		panic(err)
	}
	return string(b)
}

// Hash returns the first 16 hex characters of SHA-256(Key()).
func (s Signature) Hash() string {
	sum := sha256.Sum256([]byte(s.Key()))
	return hex.EncodeToString(sum[:8])
}

// Equal reports whether two signatures canonicalize to the same key.
func (s Signature) Equal(o Signature) bool {
	return s.Key() == o.Key()
}

func (s Signature) String() string {
	return s.Target + "/" + s.Op + "/" + s.ShapeClass
}

// shapeClass renders operands as "dtype[d0,d1];dtype[d0]".
func shapeClass(inputs []Tensor, dtypeNames []string) string {
	var sb strings.Builder
	for i, t := range inputs {
		if i > 0 {
			sb.WriteByte(';')
		}
		sb.WriteString(dtypeNames[i])
		sb.WriteByte('[')
		for j, d := range t.Shape {
			if j > 0 {
				sb.WriteByte(',')
			}
			sb.WriteString(d.String())
		}
		sb.WriteByte(']')
	}
	return sb.String()
}

// canonicalize produces a deterministic JSON representation of v.
func canonicalize(v any) ([]byte, error) {
	switch val := v.(type) {
	case nil:
		return []byte("null"), nil
	case map[string]any:
		return canonicalizeMap(val)
	case []any:
		return canonicalizeSlice(val)
	default:
		return json.Marshal(v)
	}
}

func canonicalizeMap(m map[string]any) ([]byte, error) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	result := []byte("{")
	for i, k := range keys {
		if i > 0 {
			result = append(result, ',')
		}
		keyBytes, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		result = append(result, keyBytes...)
		result = append(result, ':')

		valBytes, err := canonicalize(m[k])
		if err != nil {
			return nil, err
		}
		result = append(result, valBytes...)
	}
	return append(result, '}'), nil
}

func canonicalizeSlice(s []any) ([]byte, error) {
	result := []byte("[")
	for i, v := range s {
		if i > 0 {
			result = append(result, ',')
		}
		valBytes, err := canonicalize(v)
		if err != nil {
			return nil, err
		}
		result = append(result, valBytes...)
	}
	return append(result, ']'), nil
}
