package nwm

import (
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/fhs/go-netcdf/netcdf"

	"github.com/driftwise/reach-api/internal/domain"
)

// writeArtifact creates a minimal channel artifact: an int feature axis and
// one float vector per requested variable, with units, fill and packing
// attributes.
func writeArtifact(t *testing.T, path string, features []int32, vars map[string][]float32) {
	t.Helper()

	f, err := netcdf.CreateFile(path, netcdf.CLOBBER)
	if err != nil {
		t.Fatalf("create artifact: %v", err)
	}
	defer func() { _ = f.Close() }()

	dim, err := f.AddDim("feature_id", uint64(len(features)))
	if err != nil {
		t.Fatalf("add dim: %v", err)
	}
	vid, err := f.AddVar("feature_id", netcdf.INT, []netcdf.Dim{dim})
	if err != nil {
		t.Fatalf("add feature_id: %v", err)
	}

	dataVars := make(map[string]netcdf.Var, len(vars))
	for name := range vars {
		v, err := f.AddVar(name, netcdf.FLOAT, []netcdf.Dim{dim})
		if err != nil {
			t.Fatalf("add %s: %v", name, err)
		}
		units := "m3 s-1"
		if name == "velocity" {
			units = "m s-1"
		}
		if err := v.Attr("units").WriteBytes([]byte(units)); err != nil {
			t.Fatalf("write units on %s: %v", name, err)
		}
		if err := v.Attr("_FillValue").WriteFloat32s([]float32{-999900}); err != nil {
			t.Fatalf("write fill on %s: %v", name, err)
		}
		dataVars[name] = v
	}

	if err := f.EndDef(); err != nil {
		t.Fatalf("enddef: %v", err)
	}
	if err := vid.WriteInt32s(features); err != nil {
		t.Fatalf("write feature ids: %v", err)
	}
	for name, values := range vars {
		if err := dataVars[name].WriteFloat32s(values); err != nil {
			t.Fatalf("write %s values: %v", name, err)
		}
	}
}

func fullVariableSet(n int) map[string][]float32 {
	mk := func(base float32) []float32 {
		vals := make([]float32, n)
		for i := range vals {
			vals[i] = base + float32(i)
		}
		return vals
	}
	return map[string][]float32{
		"streamflow":    mk(10),
		"velocity":      mk(0.5),
		"nudge":         mk(0),
		"q_surface":     mk(1),
		"q_subsurface":  mk(2),
		"q_groundwater": mk(3),
	}
}

func testArtifact(t *testing.T, p Product, vars map[string][]float32, features []int32) Artifact {
	t.Helper()
	path := filepath.Join(t.TempDir(), "artifact.nc")
	writeArtifact(t, path, features, vars)
	return Artifact{
		Product:      p,
		CycleTime:    time.Date(2025, 5, 14, 6, 0, 0, 0, time.UTC),
		ForecastHour: 0,
		Domain:       "conus",
		Path:         path,
	}
}

// TestParseArtifact_FullFrame verifies the decoded frame: feature axis,
// canonical variable mapping, units, sorted columns.
func TestParseArtifact_FullFrame(t *testing.T) {
	features := []int32{101, 102, 103}
	frame, err := ParseArtifact(testArtifact(t, ProductAnalysis, fullVariableSet(3), features))
	if err != nil {
		t.Fatalf("ParseArtifact: %v", err)
	}

	if len(frame.FeatureIDs) != 3 {
		t.Fatalf("expected 3 features, got %d", len(frame.FeatureIDs))
	}
	for i, want := range []int64{101, 102, 103} {
		if frame.FeatureIDs[i] != want {
			t.Errorf("feature %d: expected %d, got %d", i, want, frame.FeatureIDs[i])
		}
	}

	if len(frame.Columns) != 6 {
		t.Fatalf("expected 6 columns, got %d", len(frame.Columns))
	}
	for i := 1; i < len(frame.Columns); i++ {
		if frame.Columns[i-1].Variable >= frame.Columns[i].Variable {
			t.Errorf("columns not sorted: %s before %s", frame.Columns[i-1].Variable, frame.Columns[i].Variable)
		}
	}

	sf, ok := frame.Column(domain.VarStreamflow)
	if !ok {
		t.Fatal("streamflow column missing")
	}
	if sf.Units != "m3 s-1" {
		t.Errorf("streamflow units: expected m3 s-1, got %q", sf.Units)
	}
	if math.Abs(sf.Values[2]-12) > 1e-6 {
		t.Errorf("streamflow[2]: expected 12, got %g", sf.Values[2])
	}

	vel, _ := frame.Column(domain.VarVelocity)
	if vel.Units != "m s-1" {
		t.Errorf("velocity units: expected m s-1, got %q", vel.Units)
	}
}

// TestParseArtifact_ModelAliases verifies the model-native runoff component
// names map onto the canonical variables.
func TestParseArtifact_ModelAliases(t *testing.T) {
	vars := fullVariableSet(2)
	vars["qSfcLatRunoff"] = vars["q_surface"]
	vars["qBtmVertRunoff"] = vars["q_subsurface"]
	vars["qBucket"] = vars["q_groundwater"]
	delete(vars, "q_surface")
	delete(vars, "q_subsurface")
	delete(vars, "q_groundwater")

	frame, err := ParseArtifact(testArtifact(t, ProductAnalysis, vars, []int32{1, 2}))
	if err != nil {
		t.Fatalf("ParseArtifact: %v", err)
	}
	for _, v := range []domain.Variable{domain.VarQSurface, domain.VarQSubsurface, domain.VarQGroundwater} {
		if _, ok := frame.Column(v); !ok {
			t.Errorf("canonical column %s missing after alias mapping", v)
		}
	}
}

// TestParseArtifact_FillToNaN verifies declared fill values decode to NaN.
func TestParseArtifact_FillToNaN(t *testing.T) {
	vars := fullVariableSet(3)
	vars["streamflow"][1] = -999900 // the declared fill

	frame, err := ParseArtifact(testArtifact(t, ProductAnalysis, vars, []int32{1, 2, 3}))
	if err != nil {
		t.Fatalf("ParseArtifact: %v", err)
	}
	sf, _ := frame.Column(domain.VarStreamflow)
	if !math.IsNaN(sf.Values[1]) {
		t.Errorf("fill value not decoded as NaN: got %g", sf.Values[1])
	}
	if math.IsNaN(sf.Values[0]) || math.IsNaN(sf.Values[2]) {
		t.Error("non-fill values decoded as NaN")
	}
}

// TestParseArtifact_MissingRequiredVariable verifies a malformed artifact
// fails the parse instead of producing a partial frame.
func TestParseArtifact_MissingRequiredVariable(t *testing.T) {
	vars := fullVariableSet(2)
	delete(vars, "streamflow")

	if _, err := ParseArtifact(testArtifact(t, ProductShortForecast, vars, []int32{1, 2})); err == nil {
		t.Error("artifact without streamflow accepted")
	}
}

// TestParseArtifact_NudgeOnlyRequiredForAnalysis verifies the assimilation
// nudge is optional on forecast products.
func TestParseArtifact_NudgeOnlyRequiredForAnalysis(t *testing.T) {
	vars := fullVariableSet(2)
	delete(vars, "nudge")

	if _, err := ParseArtifact(testArtifact(t, ProductShortForecast, vars, []int32{1, 2})); err != nil {
		t.Errorf("short forecast without nudge rejected: %v", err)
	}
	if _, err := ParseArtifact(testArtifact(t, ProductAnalysis, vars, []int32{1, 2})); err == nil {
		t.Error("analysis without nudge accepted")
	}
}

// TestParseArtifact_Packing verifies scale_factor and add_offset unpacking
// on integer-packed variables.
func TestParseArtifact_Packing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "packed.nc")

	f, err := netcdf.CreateFile(path, netcdf.CLOBBER)
	if err != nil {
		t.Fatalf("create artifact: %v", err)
	}
	dim, _ := f.AddDim("feature_id", 2)
	vid, _ := f.AddVar("feature_id", netcdf.INT, []netcdf.Dim{dim})

	names := []string{"streamflow", "velocity", "q_surface", "q_subsurface", "q_groundwater"}
	packed := make(map[string]netcdf.Var, len(names))
	for _, name := range names {
		v, err := f.AddVar(name, netcdf.INT, []netcdf.Dim{dim})
		if err != nil {
			t.Fatalf("add %s: %v", name, err)
		}
		if err := v.Attr("scale_factor").WriteFloat64s([]float64{0.01}); err != nil {
			t.Fatalf("write scale: %v", err)
		}
		if err := v.Attr("_FillValue").WriteInt32s([]int32{-999900}); err != nil {
			t.Fatalf("write fill: %v", err)
		}
		packed[name] = v
	}
	if err := f.EndDef(); err != nil {
		t.Fatalf("enddef: %v", err)
	}
	if err := vid.WriteInt32s([]int32{7, 8}); err != nil {
		t.Fatalf("write ids: %v", err)
	}
	for _, name := range names {
		if err := packed[name].WriteInt32s([]int32{1234, -999900}); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	if err := f.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	frame, err := ParseArtifact(Artifact{
		Product:   ProductShortForecast,
		CycleTime: time.Date(2025, 5, 14, 6, 0, 0, 0, time.UTC),
		Domain:    "conus",
		Path:      path,
	})
	if err != nil {
		t.Fatalf("ParseArtifact: %v", err)
	}
	sf, _ := frame.Column(domain.VarStreamflow)
	if math.Abs(sf.Values[0]-12.34) > 1e-9 {
		t.Errorf("packed value: expected 12.34, got %g", sf.Values[0])
	}
	if !math.IsNaN(sf.Values[1]) {
		t.Errorf("packed fill not decoded as NaN: got %g", sf.Values[1])
	}
}
