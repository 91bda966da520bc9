package config

import (
	"errors"
	"fmt"

	"github.com/standardbeagle/logscope/internal/engineerr"
)

// Validator validates a Config and fills in any zero-valued fields
// with engine defaults, mirroring the teacher's per-section validator
// shape (internal/config/validator.go).
type Validator struct{}

// NewValidator creates a new configuration validator.
func NewValidator() *Validator {
	return &Validator{}
}

// ValidateAndSetDefaults validates cfg section by section, applying
// defaults for zero-valued fields so a partially-specified .logscope.kdl
// still produces a usable config.
func (v *Validator) ValidateAndSetDefaults(cfg *Config) error {
	defaults := Default()

	if err := v.validateIndex(&cfg.Index, &defaults.Index); err != nil {
		return engineerr.InvalidInput("config.index", err)
	}
	if err := v.validateSearch(&cfg.Search, &defaults.Search); err != nil {
		return engineerr.InvalidInput("config.search", err)
	}
	if err := v.validateFilter(&cfg.Filter, &defaults.Filter); err != nil {
		return engineerr.InvalidInput("config.filter", err)
	}
	if err := v.validateAnalyzer(&cfg.Analyzer, &defaults.Analyzer); err != nil {
		return engineerr.InvalidInput("config.analyzer", err)
	}
	if err := v.validateBaseline(&cfg.Baseline, &defaults.Baseline); err != nil {
		return engineerr.InvalidInput("config.baseline", err)
	}
	if err := v.validateLive(&cfg.Live, &defaults.Live); err != nil {
		return engineerr.InvalidInput("config.live", err)
	}
	if len(cfg.Exclude) == 0 && cfg.Project.Root != "" {
		cfg.Exclude = detectBuildExcludes(cfg.Project.Root)
	}
	return nil
}

func (v *Validator) validateIndex(idx, def *Index) error {
	if idx.ChunkBytes < 0 {
		return errors.New("index.chunk_bytes cannot be negative")
	}
	if idx.ChunkBytes == 0 {
		idx.ChunkBytes = def.ChunkBytes
	}
	if idx.LineCapBytes < 0 {
		return errors.New("index.line_cap_bytes cannot be negative")
	}
	if idx.LineCapBytes == 0 {
		idx.LineCapBytes = def.LineCapBytes
	}
	if idx.ProgressEveryMs <= 0 {
		idx.ProgressEveryMs = def.ProgressEveryMs
	}
	return nil
}

func (v *Validator) validateSearch(s, def *Search) error {
	if s.MaxMatches < 0 {
		return errors.New("search.max_matches cannot be negative")
	}
	if s.MaxMatches == 0 {
		s.MaxMatches = def.MaxMatches
	}
	if s.BatchLines <= 0 {
		s.BatchLines = def.BatchLines
	}
	if s.ProgressEveryMs <= 0 {
		s.ProgressEveryMs = def.ProgressEveryMs
	}
	return nil
}

func (v *Validator) validateFilter(f, def *Filter) error {
	if f.BatchLines <= 0 {
		f.BatchLines = def.BatchLines
	}
	if f.ProgressEveryMs <= 0 {
		f.ProgressEveryMs = def.ProgressEveryMs
	}
	return nil
}

func (v *Validator) validateAnalyzer(a, def *Analyzer) error {
	if a.SampleBytes <= 0 {
		a.SampleBytes = def.SampleBytes
	}
	if a.MaxPatterns <= 0 {
		a.MaxPatterns = def.MaxPatterns
	}
	if a.PatternMaxChars <= 0 {
		a.PatternMaxChars = def.PatternMaxChars
	}
	if a.NoiseMinCount <= 0 {
		a.NoiseMinCount = def.NoiseMinCount
	}
	if a.NoisePercent <= 0 {
		a.NoisePercent = def.NoisePercent
	}
	if a.ErrorGroupTop <= 0 {
		a.ErrorGroupTop = def.ErrorGroupTop
	}
	if a.AnomalyMaxCount <= 0 {
		a.AnomalyMaxCount = def.AnomalyMaxCount
	}
	if a.HeaderDictionary == nil {
		a.HeaderDictionary = def.HeaderDictionary
	}
	return nil
}

func (v *Validator) validateBaseline(b, def *Baseline) error {
	if b.MaxCrashes <= 0 {
		b.MaxCrashes = def.MaxCrashes
	}
	if b.MaxFailingComponents <= 0 {
		b.MaxFailingComponents = def.MaxFailingComponents
	}
	if b.MaxSampleLinesPerTier <= 0 {
		b.MaxSampleLinesPerTier = def.MaxSampleLinesPerTier
	}
	if b.MaxComponentSamples <= 0 {
		b.MaxComponentSamples = def.MaxComponentSamples
	}
	if b.MaxStringBytes <= 0 {
		b.MaxStringBytes = def.MaxStringBytes
	}
	if b.MaxDensityBuckets <= 0 {
		b.MaxDensityBuckets = def.MaxDensityBuckets
	}
	if b.DiffLineCap <= 0 {
		b.DiffLineCap = def.DiffLineCap
	}
	return nil
}

func (v *Validator) validateLive(l, def *Live) error {
	if l.MaxConnections < 0 {
		return fmt.Errorf("live.max_connections cannot be negative")
	}
	if l.MaxConnections == 0 {
		l.MaxConnections = def.MaxConnections
	}
	if l.MaxConnections > def.MaxConnections {
		return fmt.Errorf("live.max_connections cannot exceed the hard cap of %d", def.MaxConnections)
	}
	if l.TempDirPrefix == "" {
		l.TempDirPrefix = def.TempDirPrefix
	}
	return nil
}
