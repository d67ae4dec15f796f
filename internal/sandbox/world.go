package sandbox

import (
	"errors"
	"fmt"
	"slices"
	"sort"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
)

var (
	i32 = api.ValueTypeI32
	f32 = api.ValueTypeF32
)

// Signature is a function type. Strings are passed as (ptr, len) pairs of
// i32 into the guest's exported memory.
type Signature struct {
	Params  []api.ValueType
	Results []api.ValueType
}

func (s Signature) equal(params, results []api.ValueType) bool {
	return slices.Equal(s.Params, params) && slices.Equal(s.Results, results)
}

func (s Signature) String() string {
	return fmt.Sprintf("(%s) -> (%s)", typeList(s.Params), typeList(s.Results))
}

func typeList(types []api.ValueType) string {
	out := ""
	for i, t := range types {
		if i > 0 {
			out += ", "
		}
		out += api.ValueTypeName(t)
	}
	return out
}

// Import is one host function a guest may import.
type Import struct {
	Signature
	// Strings is set when the function reads guest memory.
	Strings bool
}

// World is the contract between host and guest: the functions the host
// provides and the functions the guest must export.
type World struct {
	Name       string
	HostModule string
	Imports    map[string]Import
	Exports    map[string]Signature
	// AllowWASI permits imports from wasi_snapshot_preview1. The module config
	// decides which capabilities those functions actually reach.
	AllowWASI bool
}

// Canvas is the drawing world every guest is loaded against.
var Canvas = World{
	Name:       "portal:canvas@0.1.0",
	HostModule: "portal",
	Imports: map[string]Import{
		"print":           {Signature: Signature{Params: []api.ValueType{i32, i32}}, Strings: true},
		"fill_style":      {Signature: Signature{Params: []api.ValueType{i32, i32}}, Strings: true},
		"fill_rect":       {Signature: Signature{Params: []api.ValueType{f32, f32, f32, f32}}},
		"begin_path":      {},
		"arc":             {Signature: Signature{Params: []api.ValueType{f32, f32, f32, f32, f32}}},
		"close_path":      {},
		"fill":            {},
		"move_to":         {Signature: Signature{Params: []api.ValueType{f32, f32}}},
		"cubic_bezier_to": {Signature: Signature{Params: []api.ValueType{f32, f32, f32, f32, f32, f32}}},
		"label":           {Signature: Signature{Params: []api.ValueType{i32, i32, f32, f32, f32, i32, i32}}, Strings: true},
	},
	Exports: map[string]Signature{
		string(EntrySetup):  {},
		string(EntryUpdate): {},
	},
	AllowWASI: true,
}

// Check validates a compiled module against the world. Every violation is
// reported; the result wraps ErrMissingExport, ErrUnknownImport,
// ErrSignatureMismatch or ErrMissingMemory as appropriate.
func (w World) Check(m wazero.CompiledModule) error {
	var errs []error
	usesStrings := false

	for _, def := range m.ImportedFunctions() {
		module, name, _ := def.Import()
		switch {
		case module == w.HostModule:
			imp, ok := w.Imports[name]
			if !ok {
				errs = append(errs, fmt.Errorf("%w: %s.%s", ErrUnknownImport, module, name))
				continue
			}
			if !imp.equal(def.ParamTypes(), def.ResultTypes()) {
				errs = append(errs, fmt.Errorf("%w: %s.%s is %s, want %s", ErrSignatureMismatch,
					module, name, Signature{def.ParamTypes(), def.ResultTypes()}, imp.Signature))
			}
			usesStrings = usesStrings || imp.Strings
		case module == wasi_snapshot_preview1.ModuleName && w.AllowWASI:
		default:
			errs = append(errs, fmt.Errorf("%w: %s.%s", ErrUnknownImport, module, name))
		}
	}

	for _, def := range m.ImportedMemories() {
		module, name, _ := def.Import()
		errs = append(errs, fmt.Errorf("%w: memory %s.%s", ErrUnknownImport, module, name))
	}

	exported := m.ExportedFunctions()
	names := make([]string, 0, len(w.Exports))
	for name := range w.Exports {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		def, ok := exported[name]
		if !ok {
			errs = append(errs, fmt.Errorf("%w: %s", ErrMissingExport, name))
			continue
		}
		want := w.Exports[name]
		if !want.equal(def.ParamTypes(), def.ResultTypes()) {
			errs = append(errs, fmt.Errorf("%w: export %s is %s, want %s", ErrSignatureMismatch,
				name, Signature{def.ParamTypes(), def.ResultTypes()}, want))
		}
	}

	if usesStrings {
		if _, ok := m.ExportedMemories()["memory"]; !ok {
			errs = append(errs, ErrMissingMemory)
		}
	}

	return errors.Join(errs...)
}

// usesWASI reports whether the module imports anything from WASI.
func usesWASI(m wazero.CompiledModule) bool {
	for _, def := range m.ImportedFunctions() {
		if module, _, _ := def.Import(); module == wasi_snapshot_preview1.ModuleName {
			return true
		}
	}
	return false
}
