package baseline

import (
	"path/filepath"
	"testing"

	"github.com/standardbeagle/logscope/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fp(levelPct map[types.Level]float64) Fingerprint {
	return Fingerprint{LevelPercentages: levelPct}
}

// S1: baseline levels {error:5, info:95}; current {error:25, info:75}.
// Expect level-shift critical mentioning error.
func TestS1LevelShiftCritical(t *testing.T) {
	base := fp(map[types.Level]float64{types.LevelError: 5, types.LevelInfo: 95})
	cur := fp(map[types.Level]float64{types.LevelError: 25, types.LevelInfo: 75})
	report := Compare(base, cur)

	var found bool
	for _, f := range report.Findings {
		if f.Category == CategoryLevelShift && f.Severity == SeverityCritical {
			assert.Contains(t, f.Title, "error")
			found = true
		}
	}
	assert.True(t, found)
}

// S2: baseline crashes [fatal]; current [fatal, segfault]. Expect
// new-crash critical mentioning segfault.
func TestS2NewCrashCritical(t *testing.T) {
	base := Fingerprint{Crashes: []Crash{{Keyword: "fatal"}}}
	cur := Fingerprint{Crashes: []Crash{{Keyword: "fatal"}, {Keyword: "segfault"}}}
	report := Compare(base, cur)

	require.Len(t, report.Findings, 1)
	assert.Equal(t, CategoryNewCrash, report.Findings[0].Category)
	assert.Equal(t, SeverityCritical, report.Findings[0].Severity)
	assert.Contains(t, report.Findings[0].Title, "segfault")
}

// S3: baseline AudioDriver errorCount 10; current 60. Expect
// error-rate critical (6x).
func TestS3ErrorRateCritical(t *testing.T) {
	base := Fingerprint{FailingComponents: []FailingComponent{{Name: "AudioDriver", ErrorCount: 10}}}
	cur := Fingerprint{FailingComponents: []FailingComponent{{Name: "AudioDriver", ErrorCount: 60}}}
	report := Compare(base, cur)

	require.Len(t, report.Findings, 1)
	assert.Equal(t, CategoryErrorRate, report.Findings[0].Category)
	assert.Equal(t, SeverityCritical, report.Findings[0].Severity)
}

// S4: baseline channel OldModule: 100; current {}. Expect
// missing-component info.
func TestS4MissingComponentInfo(t *testing.T) {
	base := Fingerprint{ChannelCounts: map[string]int{"OldModule": 100}}
	cur := Fingerprint{ChannelCounts: map[string]int{}}
	report := Compare(base, cur)

	require.Len(t, report.Findings, 1)
	assert.Equal(t, CategoryMissingComponent, report.Findings[0].Category)
	assert.Equal(t, SeverityInfo, report.Findings[0].Severity)
}

// S5: identical fingerprints -> empty findings, summary all zero.
func TestS5IdenticalFingerprintsEmpty(t *testing.T) {
	f := Fingerprint{
		LevelPercentages:  map[types.Level]float64{types.LevelError: 5, types.LevelInfo: 95},
		Crashes:           []Crash{{Keyword: "fatal"}},
		FailingComponents: []FailingComponent{{Name: "X", ErrorCount: 10}},
		ChannelCounts:     map[string]int{"X": 20},
		TimestampDensity:  []uint32{10, 12, 10, 11},
	}
	report := Compare(f, f)
	assert.Empty(t, report.Findings)
	assert.Equal(t, 0, report.Summary[SeverityCritical])
	assert.Equal(t, 0, report.Summary[SeverityWarning])
	assert.Equal(t, 0, report.Summary[SeverityInfo])
}

// S6: baseline density low variance; current high variance (>3x).
// Expect time-pattern info.
func TestS6TimePatternInfo(t *testing.T) {
	base := Fingerprint{TimestampDensity: []uint32{10, 12, 10, 11, 10, 12, 10, 11}}
	cur := Fingerprint{TimestampDensity: []uint32{100, 0, 0, 0, 100, 0, 0, 0}}
	report := Compare(base, cur)

	require.Len(t, report.Findings, 1)
	assert.Equal(t, CategoryTimePattern, report.Findings[0].Category)
	assert.Equal(t, SeverityInfo, report.Findings[0].Severity)
}

func TestFindingsSortedBySeverity(t *testing.T) {
	base := Fingerprint{
		LevelPercentages:  map[types.Level]float64{types.LevelError: 5},
		ChannelCounts:     map[string]int{"OldModule": 100},
		FailingComponents: []FailingComponent{{Name: "X", ErrorCount: 10}},
	}
	cur := Fingerprint{
		LevelPercentages:  map[types.Level]float64{types.LevelError: 30},
		ChannelCounts:     map[string]int{},
		FailingComponents: []FailingComponent{{Name: "X", ErrorCount: 60}},
	}
	report := Compare(base, cur)
	for i := 1; i < len(report.Findings); i++ {
		assert.LessOrEqual(t, severityRank(report.Findings[i-1].Severity), severityRank(report.Findings[i].Severity))
	}
}

func TestStoreSaveListGetUpdateDelete(t *testing.T) {
	path := filepath.Join(t.TempDir(), "baselines.json")
	store, err := Open(path)
	require.NoError(t, err)

	rec, err := store.Save("nightly", "desc", []string{"ci"}, "/var/log/app.log", 1000, Fingerprint{})
	require.NoError(t, err)
	assert.NotEmpty(t, rec.ID)

	list := store.List()
	require.Len(t, list, 1)
	assert.Equal(t, rec.ID, list[0].ID)

	got, err := store.Get(rec.ID)
	require.NoError(t, err)
	assert.Equal(t, "nightly", got.Name)

	newName := "nightly-renamed"
	updated, err := store.Update(rec.ID, &newName, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "nightly-renamed", updated.Name)

	require.NoError(t, store.Delete(rec.ID))
	_, err = store.Get(rec.ID)
	assert.Error(t, err)
}

func TestStorePersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "baselines.json")
	store, err := Open(path)
	require.NoError(t, err)
	_, err = store.Save("a", "", nil, "f.log", 10, Fingerprint{})
	require.NoError(t, err)

	reopened, err := Open(path)
	require.NoError(t, err)
	assert.Len(t, reopened.List(), 1)
}

func TestOpenMissingFileStartsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing.json")
	store, err := Open(path)
	require.NoError(t, err)
	assert.Empty(t, store.List())
}

func TestBuilderLevelPercentagesAndCrashes(t *testing.T) {
	b := NewBuilder("f.log", 100, "column-aware", BuilderConfig{TotalLines: 4})
	b.AddLine(BuildLine{LineNumber: 0, Text: "fatal error in [AudioDriver]", Level: types.LevelError, HasLevel: true})
	b.AddLine(BuildLine{LineNumber: 1, Text: "ok", Level: types.LevelInfo, HasLevel: true})
	b.AddLine(BuildLine{LineNumber: 2, Text: "ok", Level: types.LevelInfo, HasLevel: true})
	b.AddLine(BuildLine{LineNumber: 3, Text: "ok", Level: types.LevelInfo, HasLevel: true})
	f := b.Build()

	assert.Equal(t, 25.0, f.LevelPercentages[types.LevelError])
	require.Len(t, f.Crashes, 1)
	assert.Equal(t, "fatal", f.Crashes[0].Keyword)
	require.Len(t, f.FailingComponents, 1)
	assert.Equal(t, "AudioDriver", f.FailingComponents[0].Name)
}

func TestBuilderSampleLinesSkipDuplicateText(t *testing.T) {
	b := NewBuilder("f.log", 100, "column-aware", BuilderConfig{TotalLines: 3})
	b.AddLine(BuildLine{LineNumber: 0, Text: "connection refused", Level: types.LevelWarn, HasLevel: true})
	b.AddLine(BuildLine{LineNumber: 1, Text: "connection refused", Level: types.LevelWarn, HasLevel: true})
	b.AddLine(BuildLine{LineNumber: 2, Text: "connection refused", Level: types.LevelWarn, HasLevel: true})
	f := b.Build()

	assert.Len(t, f.SampleLines[types.LevelWarn], 1)
}

func TestBuilderComponentSamplesSkipDuplicateText(t *testing.T) {
	b := NewBuilder("f.log", 100, "column-aware", BuilderConfig{TotalLines: 3})
	b.AddLine(BuildLine{LineNumber: 0, Text: "timeout in [Uploader]", Level: types.LevelError, HasLevel: true})
	b.AddLine(BuildLine{LineNumber: 1, Text: "timeout in [Uploader]", Level: types.LevelError, HasLevel: true})
	f := b.Build()

	assert.Len(t, f.ComponentSamples["Uploader"], 1)
}
