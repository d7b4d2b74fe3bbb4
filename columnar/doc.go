// Package columnar reads and writes the parquet batch files produced by the
// embedding dispatchers.
//
// Each file holds the columns id, url, code, text and vector, where vector is
// a list of int8 produced by Quantize. Files are immutable once written and
// accumulate in one output directory; readers concatenate across files.
package columnar
