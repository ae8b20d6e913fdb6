package ctc

import (
	"fmt"

	"github.com/unixpickle/anyvec"
	"github.com/unixpickle/anyvec/anyvec64"
)

var internalCreator = anyvec64.DefaultCreator{}

// vectorTo64 creates a vector with []float64 numeric list
// types.
func vectorTo64(v anyvec.Vector) anyvec.Vector {
	switch d := v.Data().(type) {
	case []float64:
		return internalCreator.MakeVectorData(d)
	case []float32:
		s := make([]float64, len(d))
		for i, x := range d {
			s[i] = float64(x)
		}
		return internalCreator.MakeVectorData(s)
	default:
		panic(fmt.Sprintf("unsupported numeric type: %T", d))
	}
}

// vectorRows copies a packed vector into a list of equally
// sized float64 rows.
func vectorRows(v anyvec.Vector, rows int) [][]float64 {
	if rows == 0 {
		return nil
	}
	data := vectorTo64(v).Data().([]float64)
	cols := len(data) / rows
	res := make([][]float64, rows)
	for i := range res {
		res[i] = append([]float64{}, data[i*cols:(i+1)*cols]...)
	}
	return res
}

// rowsFrom64 packs float64 rows into a vector of the
// given creator.
func rowsFrom64(c anyvec.Creator, rows [][]float64) anyvec.Vector {
	var packed []float64
	for _, row := range rows {
		packed = append(packed, row...)
	}
	return c.MakeVectorData(c.MakeNumericList(packed))
}
