// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package columnar

import (
	"fmt"
	"math"

	"github.com/parquet-go/parquet-go"
)

// QuantizationScale maps embedding components to int8: q = round(v * scale).
// Writers and readers must agree on it.
const QuantizationScale = 100

// Row is one record of a batch file.
type Row struct {
	ID     int64
	URL    string
	Code   string
	Text   string
	Vector []int8
}

// fileRow is the on-disk form of Row. parquet-go cannot encode Go int8
// values, so vector components travel as int32 under an INT(8) annotation.
type fileRow struct {
	ID     int64   `parquet:"id"`
	URL    string  `parquet:"url"`
	Code   string  `parquet:"code"`
	Text   string  `parquet:"text"`
	Vector []int32 `parquet:"vector,list"`
}

// batchSchema is the schema of every batch file.
var batchSchema = parquet.NewSchema("batch", parquet.Group{
	"id":     parquet.Int(64),
	"url":    parquet.String(),
	"code":   parquet.String(),
	"text":   parquet.String(),
	"vector": parquet.List(parquet.Int(8)),
})

func toFileRows(rows []Row) []fileRow {
	out := make([]fileRow, len(rows))
	for i, row := range rows {
		vector := make([]int32, len(row.Vector))
		for j, q := range row.Vector {
			vector[j] = int32(q)
		}
		out[i] = fileRow{ID: row.ID, URL: row.URL, Code: row.Code, Text: row.Text, Vector: vector}
	}
	return out
}

func fromFileRows(rows []fileRow) ([]Row, error) {
	out := make([]Row, len(rows))
	for i, row := range rows {
		vector := make([]int8, len(row.Vector))
		for j, q := range row.Vector {
			if q < math.MinInt8 || q > math.MaxInt8 {
				return nil, fmt.Errorf("%w: row %d component %d is %d", ErrCorruptVector, row.ID, j, q)
			}
			vector[j] = int8(q)
		}
		out[i] = Row{ID: row.ID, URL: row.URL, Code: row.Code, Text: row.Text, Vector: vector}
	}
	return out, nil
}

// Quantize converts a float vector to int8 using QuantizationScale.
// Components outside the representable range are clamped to [-127, 127]; NaN becomes 0.
func Quantize(v []float32) []int8 {
	q := make([]int8, len(v))
	for i, x := range v {
		f := math.Round(float64(x) * QuantizationScale)
		switch {
		case math.IsNaN(f):
			q[i] = 0
		case f > math.MaxInt8:
			q[i] = math.MaxInt8
		case f < -math.MaxInt8:
			q[i] = -math.MaxInt8
		default:
			q[i] = int8(f)
		}
	}
	return q
}

// Dequantize reverses Quantize, up to rounding error of 1/QuantizationScale.
func Dequantize(q []int8) []float32 {
	v := make([]float32, len(q))
	for i, x := range q {
		v[i] = float32(x) / QuantizationScale
	}
	return v
}
