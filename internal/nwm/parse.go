package nwm

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/fhs/go-netcdf/netcdf"

	"github.com/driftwise/reach-api/internal/domain"
)

// Column is one decoded variable vector, aligned with the frame's feature
// axis. Values equal to the artifact's declared fill are decoded as NaN.
type Column struct {
	Variable domain.Variable
	Units    string
	Values   []float64
}

// Frame is the tabular output of the Parser: the feature axis plus one
// column per decoded variable. The Parser records no time semantics beyond
// the tags the Fetcher attached.
//
// Spread is the auxiliary ensemble dispersion vector some blend artifacts
// carry, aligned with the feature axis; nil when the artifact has none.
// Member flows themselves are collapsed upstream and never appear here.
type Frame struct {
	Product      Product
	CycleTime    time.Time
	ForecastHour int
	Domain       string
	FeatureIDs   []int64
	Columns      []Column
	Spread       []float64
}

// Column returns the column for a canonical variable.
func (f *Frame) Column(v domain.Variable) (Column, bool) {
	for _, c := range f.Columns {
		if c.Variable == v {
			return c, true
		}
	}
	return Column{}, false
}

// featureAxisNames are the candidate names of the 1-D reach identifier axis.
var featureAxisNames = []string{"feature_id", "feature_ids", "station_id"}

// spreadVarNames are the candidate names of the optional ensemble
// dispersion vector in blend artifacts.
var spreadVarNames = []string{"ensemble_cv", "spread_cv"}

// sourceVarNames maps each canonical variable to its candidate names in the
// artifact, canonical name first, model-native aliases after.
var sourceVarNames = map[domain.Variable][]string{
	domain.VarStreamflow:   {"streamflow"},
	domain.VarVelocity:     {"velocity"},
	domain.VarNudge:        {"nudge"},
	domain.VarQSurface:     {"q_surface", "qSfcLatRunoff"},
	domain.VarQSubsurface:  {"q_subsurface", "qBtmVertRunoff"},
	domain.VarQGroundwater: {"q_groundwater", "qBucket"},
}

// requiredVars lists the variables an artifact must carry per product. The
// assimilation nudge only exists in the assimilating analysis.
func requiredVars(p Product) []domain.Variable {
	base := []domain.Variable{
		domain.VarStreamflow, domain.VarVelocity,
		domain.VarQSurface, domain.VarQSubsurface, domain.VarQGroundwater,
	}
	if p == ProductAnalysis {
		return append(base, domain.VarNudge)
	}
	return base
}

// ParseArtifact decodes one NetCDF artifact into a Frame. It flattens and
// type-checks only: unit strings are recorded verbatim for the Normalizer,
// fill sentinels declared by the artifact become NaN, and no time
// interpretation happens here.
func ParseArtifact(a Artifact) (*Frame, error) {
	nc, err := netcdf.OpenFile(a.Path, netcdf.NOWRITE)
	if err != nil {
		return nil, fmt.Errorf("open artifact %s: %w", a.Path, err)
	}
	defer func() { _ = nc.Close() }()

	features, err := readFeatureAxis(nc)
	if err != nil {
		return nil, fmt.Errorf("artifact %s: %w", a.Path, err)
	}

	frame := &Frame{
		Product:      a.Product,
		CycleTime:    a.CycleTime,
		ForecastHour: a.ForecastHour,
		Domain:       a.Domain,
		FeatureIDs:   features,
	}

	for _, canonical := range domain.Variables() {
		v, name, ok := findVar(nc, sourceVarNames[canonical])
		if !ok {
			continue
		}
		col, err := readColumn(v, len(features))
		if err != nil {
			return nil, fmt.Errorf("artifact %s: variable %s: %w", a.Path, name, err)
		}
		col.Variable = canonical
		frame.Columns = append(frame.Columns, col)
	}

	for _, req := range requiredVars(a.Product) {
		if _, ok := frame.Column(req); !ok {
			return nil, fmt.Errorf("artifact %s: missing expected variable %s", a.Path, req)
		}
	}

	if a.Product == ProductMediumBlend {
		if v, name, ok := findVar(nc, spreadVarNames); ok {
			col, err := readColumn(v, len(features))
			if err != nil {
				return nil, fmt.Errorf("artifact %s: variable %s: %w", a.Path, name, err)
			}
			frame.Spread = col.Values
		}
	}

	sort.Slice(frame.Columns, func(i, j int) bool {
		return frame.Columns[i].Variable < frame.Columns[j].Variable
	})
	return frame, nil
}

// findVar returns the first candidate variable present in the file.
func findVar(nc netcdf.Dataset, candidates []string) (netcdf.Var, string, bool) {
	for _, name := range candidates {
		if v, err := nc.Var(name); err == nil {
			return v, name, true
		}
	}
	return netcdf.Var{}, "", false
}

// readFeatureAxis reads the 1-D reach identifier vector.
func readFeatureAxis(nc netcdf.Dataset) ([]int64, error) {
	v, name, ok := findVar(nc, featureAxisNames)
	if !ok {
		return nil, fmt.Errorf("feature axis not found (tried: %v)", featureAxisNames)
	}
	length, err := varLen1D(v)
	if err != nil {
		return nil, fmt.Errorf("feature axis %s: %w", name, err)
	}

	t, err := v.Type()
	if err != nil {
		return nil, fmt.Errorf("feature axis %s: type: %w", name, err)
	}
	switch t {
	case netcdf.INT64:
		data := make([]int64, length)
		if err := v.ReadInt64s(data); err != nil {
			return nil, fmt.Errorf("feature axis %s: %w", name, err)
		}
		return data, nil
	case netcdf.INT:
		tmp := make([]int32, length)
		if err := v.ReadInt32s(tmp); err != nil {
			return nil, fmt.Errorf("feature axis %s: %w", name, err)
		}
		out := make([]int64, length)
		for i, id := range tmp {
			out[i] = int64(id)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("feature axis %s: unsupported type %v", name, t)
	}
}

// readColumn decodes one variable vector: raw values by type, declared fill
// to NaN, then scale_factor/add_offset applied, units captured.
func readColumn(v netcdf.Var, n int) (Column, error) {
	length, err := varLen1D(v)
	if err != nil {
		return Column{}, err
	}
	if length != n {
		return Column{}, fmt.Errorf("length %d does not match feature axis length %d", length, n)
	}

	raw, err := readFloat64Vector(v, length)
	if err != nil {
		return Column{}, err
	}

	fill, hasFill := fillValue(v)
	scale, offset := packing(v)
	for i, val := range raw {
		if hasFill && val == fill {
			raw[i] = math.NaN()
			continue
		}
		raw[i] = val*scale + offset
	}

	return Column{Units: attrString(v, "units"), Values: raw}, nil
}

// varLen1D returns the length of a strictly 1-D variable.
func varLen1D(v netcdf.Var) (int, error) {
	dims, err := v.Dims()
	if err != nil {
		return 0, fmt.Errorf("get dimensions: %w", err)
	}
	if len(dims) != 1 {
		return 0, fmt.Errorf("expected 1D variable, got %dD", len(dims))
	}
	length, err := dims[0].Len()
	if err != nil {
		return 0, fmt.Errorf("get length: %w", err)
	}
	return int(length), nil
}

// readFloat64Vector reads a 1-D variable of any supported numeric type into
// float64.
func readFloat64Vector(v netcdf.Var, length int) ([]float64, error) {
	t, err := v.Type()
	if err != nil {
		return nil, fmt.Errorf("get var type: %w", err)
	}
	switch t {
	case netcdf.DOUBLE:
		data := make([]float64, length)
		if err := v.ReadFloat64s(data); err != nil {
			return nil, err
		}
		return data, nil
	case netcdf.FLOAT:
		tmp := make([]float32, length)
		if err := v.ReadFloat32s(tmp); err != nil {
			return nil, err
		}
		out := make([]float64, length)
		for i, val := range tmp {
			out[i] = float64(val)
		}
		return out, nil
	case netcdf.INT:
		tmp := make([]int32, length)
		if err := v.ReadInt32s(tmp); err != nil {
			return nil, err
		}
		out := make([]float64, length)
		for i, val := range tmp {
			out[i] = float64(val)
		}
		return out, nil
	case netcdf.SHORT:
		tmp := make([]int16, length)
		if err := v.ReadInt16s(tmp); err != nil {
			return nil, err
		}
		out := make([]float64, length)
		for i, val := range tmp {
			out[i] = float64(val)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported var type: %v", t)
	}
}

// fillValue returns the declared _FillValue or missing_value, if any.
func fillValue(v netcdf.Var) (float64, bool) {
	for _, name := range []string{"_FillValue", "missing_value"} {
		a := v.Attr(name)
		if a == (netcdf.Attr{}) {
			continue
		}
		n, err := a.Len()
		if err != nil || n == 0 {
			continue
		}
		buf64 := make([]float64, 1)
		if err := a.ReadFloat64s(buf64); err == nil {
			return buf64[0], true
		}
		buf32 := make([]float32, 1)
		if err := a.ReadFloat32s(buf32); err == nil {
			return float64(buf32[0]), true
		}
		bufi := make([]int32, 1)
		if err := a.ReadInt32s(bufi); err == nil {
			return float64(bufi[0]), true
		}
	}
	return 0, false
}

// packing returns scale_factor and add_offset, defaulting to identity.
func packing(v netcdf.Var) (scale, offset float64) {
	scale, offset = 1, 0
	if a := v.Attr("scale_factor"); a != (netcdf.Attr{}) {
		buf := make([]float64, 1)
		if err := a.ReadFloat64s(buf); err == nil {
			scale = buf[0]
		} else {
			buf32 := make([]float32, 1)
			if err := a.ReadFloat32s(buf32); err == nil {
				scale = float64(buf32[0])
			}
		}
	}
	if a := v.Attr("add_offset"); a != (netcdf.Attr{}) {
		buf := make([]float64, 1)
		if err := a.ReadFloat64s(buf); err == nil {
			offset = buf[0]
		} else {
			buf32 := make([]float32, 1)
			if err := a.ReadFloat32s(buf32); err == nil {
				offset = float64(buf32[0])
			}
		}
	}
	return scale, offset
}

// attrString reads a text attribute, returning "" when absent.
func attrString(v netcdf.Var, name string) string {
	a := v.Attr(name)
	if a == (netcdf.Attr{}) {
		return ""
	}
	n, err := a.Len()
	if err != nil || n == 0 {
		return ""
	}
	buf := make([]byte, n)
	if err := a.ReadBytes(buf); err != nil {
		return ""
	}
	return string(buf)
}
