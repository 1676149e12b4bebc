package harness

import (
	"bytes"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

// ScenarioNotFoundError is returned when a listed scenario file doesn't exist.
type ScenarioNotFoundError struct {
	Path string
}

// Error implements the error interface.
func (e *ScenarioNotFoundError) Error() string {
	return fmt.Sprintf("scenario file %q does not exist", e.Path)
}

// Discover expands paths into scenario files. Directories are walked for
// *.yaml and *.yml files; plain files are taken as given. The result is
// sorted and free of duplicates.
func Discover(paths []string) ([]string, error) {
	var out []string
	for _, p := range paths {
		info, err := os.Stat(p)
		if os.IsNotExist(err) {
			return nil, &ScenarioNotFoundError{Path: p}
		}
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			out = append(out, p)
			continue
		}
		err = filepath.WalkDir(p, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				return nil
			}
			if ext := strings.ToLower(filepath.Ext(path)); ext == ".yaml" || ext == ".yml" {
				out = append(out, path)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("walk %s: %w", p, err)
		}
	}
	slices.Sort(out)
	return slices.Compact(out), nil
}

// SuiteResult summarizes a batch of scenario runs.
type SuiteResult struct {
	Total    int               `json:"total"`
	Passed   int               `json:"passed"`
	Failed   int               `json:"failed"`
	Failures []ScenarioFailure `json:"failures,omitempty"`
}

// ScenarioFailure is one failed or unrunnable scenario.
type ScenarioFailure struct {
	Path   string   `json:"path"`
	Name   string   `json:"name,omitempty"`
	Errors []string `json:"errors"`
}

// Pass reports whether every scenario passed.
func (r *SuiteResult) Pass() bool {
	return r.Failed == 0
}

// SuiteOption configures RunSuite.
type SuiteOption func(*suiteConfig)

type suiteConfig struct {
	filter string
	golden bool
	update bool
}

// WithFilter keeps only scenario files whose base name, without
// extension, matches the filepath.Match pattern.
func WithFilter(pattern string) SuiteOption {
	return func(c *suiteConfig) { c.filter = pattern }
}

// WithGoldenFiles compares each trace against golden/<file>.golden next
// to the scenario file when that file exists. With update set, golden
// files are written instead.
func WithGoldenFiles(update bool) SuiteOption {
	return func(c *suiteConfig) {
		c.golden = true
		c.update = update
	}
}

// RunSuite loads and runs every scenario file. A scenario that fails to
// load or run counts as failed; the suite itself only errors when paths
// cannot be expanded or the filter is malformed.
func RunSuite(paths []string, opts ...SuiteOption) (*SuiteResult, error) {
	var cfg suiteConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	files, err := Discover(paths)
	if err != nil {
		return nil, err
	}
	if cfg.filter != "" {
		if _, err := filepath.Match(cfg.filter, ""); err != nil {
			return nil, fmt.Errorf("invalid filter pattern: %w", err)
		}
		files = slices.DeleteFunc(files, func(path string) bool {
			base := filepath.Base(path)
			ok, _ := filepath.Match(cfg.filter, strings.TrimSuffix(base, filepath.Ext(base)))
			return !ok
		})
	}

	result := &SuiteResult{}
	for _, path := range files {
		result.Total++

		scenario, err := LoadScenario(path)
		if err != nil {
			result.fail(path, "", err.Error())
			continue
		}
		run, err := Run(scenario)
		if err != nil {
			result.fail(path, scenario.Name, err.Error())
			continue
		}
		if cfg.golden {
			if err := checkGoldenFile(path, scenario.Name, run, cfg.update); err != nil {
				run.AddError(err.Error())
			}
		}
		if !run.Pass {
			result.fail(path, scenario.Name, run.Errors...)
			continue
		}
		result.Passed++
	}
	return result, nil
}

func (r *SuiteResult) fail(path, name string, errs ...string) {
	r.Failed++
	r.Failures = append(r.Failures, ScenarioFailure{Path: path, Name: name, Errors: errs})
}

// GoldenFilePath returns where the golden trace of a scenario file lives.
func GoldenFilePath(scenarioFile string) string {
	base := filepath.Base(scenarioFile)
	name := strings.TrimSuffix(base, filepath.Ext(base))
	return filepath.Join(filepath.Dir(scenarioFile), "golden", name+".golden")
}

func checkGoldenFile(scenarioFile, name string, result *Result, update bool) error {
	path := GoldenFilePath(scenarioFile)
	trace, err := MarshalTrace(name, result)
	if err != nil {
		return fmt.Errorf("failed to marshal trace: %w", err)
	}

	if update {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return fmt.Errorf("failed to create golden directory: %w", err)
		}
		if err := os.WriteFile(path, trace, 0o644); err != nil {
			return fmt.Errorf("failed to write golden file: %w", err)
		}
		return nil
	}

	want, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read golden file: %w", err)
	}
	if !bytes.Equal(bytes.TrimSpace(want), trace) {
		return fmt.Errorf("trace does not match %s (run with --update to regenerate)", path)
	}
	return nil
}
