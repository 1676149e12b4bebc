package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"
	"cuelang.org/go/cue/token"

	"github.com/roach88/circuit/internal/blocks"
	"github.com/roach88/circuit/internal/compiler"
	"github.com/roach88/circuit/internal/engine"
	"github.com/roach88/circuit/internal/ir"
)

// LoadMode controls how errors are handled during catalog loading.
type LoadMode int

const (
	// LoadModeFailFast stops on the first error encountered.
	LoadModeFailFast LoadMode = iota
	// LoadModeCollectAll collects all errors before returning.
	LoadModeCollectAll
)

// LoadResult contains the block definitions found in a catalog directory.
type LoadResult struct {
	Defs      []*ir.BlockDef
	CUEValue  cue.Value
	FileCount int
}

// LoadError represents an error that occurred during catalog loading.
type LoadError struct {
	Code    string
	Message string
	Pos     token.Pos // CUE position if available
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// LoadCatalog loads the CUE package in dir and compiles every block under
// its top-level "block" field. Compiled definitions are also checked with
// compiler.Validate. A nil result means the directory itself could not be
// loaded.
func LoadCatalog(dir string, mode LoadMode) (*LoadResult, []error) {
	info, err := os.Stat(dir)
	if os.IsNotExist(err) {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("catalog directory not found: %s", dir)}}
	}
	if err != nil {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("error accessing catalog directory: %v", err)}}
	}
	if !info.IsDir() {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("not a directory: %s", dir)}}
	}

	cueFiles, err := FindCUEFiles(dir)
	if err != nil {
		return nil, []error{&LoadError{Code: ErrCodeScanError, Message: fmt.Sprintf("error scanning directory: %v", err)}}
	}
	if len(cueFiles) == 0 {
		return nil, []error{&LoadError{Code: ErrCodeNoFiles, Message: fmt.Sprintf("no CUE files found in %s", dir)}}
	}

	instances := load.Instances([]string{"."}, &load.Config{Dir: dir})
	if len(instances) == 0 {
		return nil, []error{&LoadError{Code: ErrCodeLoadFailed, Message: "no CUE instances loaded"}}
	}
	inst := instances[0]
	if inst.Err != nil {
		return nil, []error{&LoadError{Code: ErrCodeLoadFailed, Message: fmt.Sprintf("loading CUE files: %v", inst.Err)}}
	}

	value := cuecontext.New().BuildInstance(inst)
	if err := value.Err(); err != nil {
		return nil, []error{&LoadError{Code: ErrCodeBuildFailed, Message: fmt.Sprintf("building CUE value: %v", err)}}
	}

	result := &LoadResult{CUEValue: value, FileCount: len(cueFiles)}

	blocksVal := value.LookupPath(cue.ParsePath("block"))
	if !blocksVal.Exists() {
		return result, []error{&LoadError{Code: ErrCodeNoBlocks, Message: "catalog declares no blocks"}}
	}
	iter, err := blocksVal.Fields()
	if err != nil {
		return result, []error{&LoadError{Code: ErrCodeGeneric, Message: fmt.Sprintf("iterating blocks: %v", err)}}
	}

	var errs []error
	for iter.Next() {
		name := iter.Selector().Unquoted()
		def, err := compiler.CompileBlock(iter.Value())
		if err != nil {
			errs = append(errs, convertCompileError(err, "block."+name))
			if mode == LoadModeFailFast {
				return result, errs
			}
			continue
		}
		if verrs := compiler.Validate(def); len(verrs) > 0 {
			for _, v := range verrs {
				errs = append(errs, &LoadError{Code: v.Code, Message: fmt.Sprintf("block %s: %s: %s", name, v.Field, v.Message)})
			}
			if mode == LoadModeFailFast {
				return result, errs
			}
			continue
		}
		result.Defs = append(result.Defs, def)
	}
	if len(result.Defs) == 0 && len(errs) == 0 {
		errs = append(errs, &LoadError{Code: ErrCodeNoBlocks, Message: "catalog declares no blocks"})
	}
	return result, errs
}

// FindCUEFiles walks the directory and returns all .cue file paths.
func FindCUEFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() && filepath.Ext(path) == ".cue" {
			files = append(files, path)
		}
		return nil
	})
	return files, err
}

// loadRegistry returns the built-in registry when dir is empty, else one
// holding the catalog compiled from dir paired with built-in constructors.
func loadRegistry(dir string) (*engine.Registry, *compiler.Catalog, error) {
	if dir == "" {
		cat, err := blocks.Catalog()
		if err != nil {
			return nil, nil, err
		}
		r, err := blocks.NewRegistry()
		return r, cat, err
	}

	cat, err := loadCatalogStrict(dir)
	if err != nil {
		return nil, nil, err
	}
	r := engine.NewRegistry()
	if err := blocks.RegisterCatalog(r, cat); err != nil {
		return nil, nil, err
	}
	return r, cat, nil
}

// loadDefinitions returns the built-in catalog when dir is empty, else the
// catalog compiled from dir. Unlike loadRegistry it needs no constructors,
// so it serves commands that only resolve configurations.
func loadDefinitions(dir string) (*compiler.Catalog, error) {
	if dir == "" {
		return blocks.Catalog()
	}
	return loadCatalogStrict(dir)
}

// loadCatalogStrict loads dir and fails on the first error.
func loadCatalogStrict(dir string) (*compiler.Catalog, error) {
	res, errs := LoadCatalog(dir, LoadModeFailFast)
	if len(errs) > 0 {
		return nil, errs[0]
	}
	return compiler.NewCatalog(res.Defs)
}

// convertCompileError converts a compiler error to a LoadError with position info.
func convertCompileError(err error, context string) *LoadError {
	var compileErr *compiler.CompileError
	if errors.As(err, &compileErr) {
		return &LoadError{
			Code:    MapFieldToErrorCode(compileErr.Field),
			Message: fmt.Sprintf("%s: %s", context, compileErr.Message),
			Pos:     compileErr.Pos,
		}
	}
	return &LoadError{
		Code:    ErrCodeGeneric,
		Message: fmt.Sprintf("%s: %v", context, err),
	}
}

// Error code constants - unified across all CLI commands.
const (
	ErrCodeGeneric     = "E001" // Generic/unknown error
	ErrCodeScanError   = "E002" // Directory scan error
	ErrCodeNoFiles     = "E003" // No CUE files found
	ErrCodeLoadFailed  = "E004" // CUE load failed
	ErrCodeNotFound    = "E005" // Path not found
	ErrCodeBuildFailed = "E006" // CUE build failed
	ErrCodeWriteFailed = "E007" // File write error
	ErrCodeNoBlocks    = "E008" // Catalog declares no blocks

	// Compile errors
	ErrCodeInvalidKind   = "E130" // Unknown or sentinel kind under types
	ErrCodeInvalidConfig = "E131" // Default payload not concrete or malformed

	// Runtime errors
	ErrCodeUnknownBlock = "E201" // Block type not in catalog
	ErrCodeResolve      = "E202" // Stored config cannot be resolved
	ErrCodeStore        = "E203" // Database error
	ErrCodeSlotFile     = "E204" // Slot file unreadable
	ErrCodeMachine      = "E205" // Machine rejected the layout
)

// MapFieldToErrorCode maps a compiler error field to an error code.
func MapFieldToErrorCode(field string) string {
	switch {
	case field == "cue":
		return ErrCodeBuildFailed
	case field == "config", strings.HasSuffix(field, ".config"):
		return ErrCodeInvalidConfig
	case strings.Contains(field, ".types."):
		return ErrCodeInvalidKind
	default:
		return ErrCodeGeneric
	}
}
