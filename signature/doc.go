// Package signature canonicalizes operation instances into cache keys.
//
// A Signature identifies one cacheable benchmarking unit: the target the
// results are valid for, the operation kind that selects a cache table, a
// shape class, and op-specific discriminators. Two op instances that differ
// only in runtime-variable dimensions collapse to the same shape class and
// therefore share one cache entry.
//
// Dimensions built with Var are runtime-variable and render as "?".
// Dimensions built with Static are compile-time constants and render as
// their value:
//
//	b := signature.NewBuilder()
//	sig, err := b.Build("sm80", signature.Op{
//	    Name: "gemm_rcr",
//	    Inputs: []signature.Tensor{
//	        {DType: "float16", Shape: []signature.Dim{signature.Var("batch", 1, 64), signature.Static(128)}},
//	        {DType: "float16", Shape: []signature.Dim{signature.Static(8), signature.Static(128)}},
//	    },
//	})
//	// sig.OpKind == "gemm", sig.ShapeClass == "float16[?,128];float16[8,128]"
package signature
