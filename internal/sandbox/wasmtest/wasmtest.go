// Package wasmtest assembles small WebAssembly guests in memory for tests.
//
//	m := wasmtest.New()
//	rect := m.ImportPortal("fill_rect")
//	m.ExportFunc("setup", wasmtest.Body(
//		wasmtest.F32(1), wasmtest.F32(2), wasmtest.F32(3), wasmtest.F32(4),
//		wasmtest.Call(rect),
//	))
//	m.ExportFunc("update", nil)
//	binary := m.Bytes()
package wasmtest

import (
	"encoding/binary"
	"fmt"
	"math"

	wabin "github.com/tetratelabs/wabin/binary"
	"github.com/tetratelabs/wabin/leb128"
	"github.com/tetratelabs/wabin/wasm"
	"github.com/tetratelabs/wazero/api"

	"github.com/GriffinCanCode/portal/internal/sandbox"
)

// dataBase keeps string data clear of address zero.
const dataBase = 16

// Module is a guest under construction. All imports must be added before the
// first local function.
type Module struct {
	mod      wasm.Module
	dataNext uint32
}

// New returns an empty module.
func New() *Module {
	return &Module{dataNext: dataBase}
}

func (m *Module) typeIndex(params, results []api.ValueType) wasm.Index {
	for i, t := range m.mod.TypeSection {
		if t.EqualsSignature(params, results) {
			return wasm.Index(i)
		}
	}
	m.mod.TypeSection = append(m.mod.TypeSection, &wasm.FunctionType{Params: params, Results: results})
	return wasm.Index(len(m.mod.TypeSection) - 1)
}

// Import declares a function import and returns its function index.
func (m *Module) Import(module, name string, params, results []api.ValueType) uint32 {
	if len(m.mod.FunctionSection) > 0 {
		panic("wasmtest: imports must precede local functions")
	}
	m.mod.ImportSection = append(m.mod.ImportSection, &wasm.Import{
		Type:     wasm.ExternTypeFunc,
		Module:   module,
		Name:     name,
		DescFunc: m.typeIndex(params, results),
	})
	return m.mod.ImportFuncCount() - 1
}

// ImportPortal imports a Canvas host function with its declared signature.
func (m *Module) ImportPortal(name string) uint32 {
	imp, ok := sandbox.Canvas.Imports[name]
	if !ok {
		panic(fmt.Sprintf("wasmtest: %q is not a canvas import", name))
	}
	return m.Import(sandbox.Canvas.HostModule, name, imp.Params, imp.Results)
}

// Func defines a local function of the given type and returns its index.
func (m *Module) Func(params, results []api.ValueType, body []byte) uint32 {
	m.mod.FunctionSection = append(m.mod.FunctionSection, m.typeIndex(params, results))
	code := append(append([]byte{}, body...), wasm.OpcodeEnd)
	m.mod.CodeSection = append(m.mod.CodeSection, &wasm.Code{Body: code})
	return m.mod.ImportFuncCount() + uint32(len(m.mod.FunctionSection)) - 1
}

// ExportFunc defines a () -> () function and exports it under name.
func (m *Module) ExportFunc(name string, body []byte) uint32 {
	idx := m.Func(nil, nil, body)
	m.Export(name, idx)
	return idx
}

// Export exports an existing function.
func (m *Module) Export(name string, funcIdx uint32) {
	m.mod.ExportSection = append(m.mod.ExportSection, &wasm.Export{Type: wasm.ExternTypeFunc, Name: name, Index: funcIdx})
}

// Memory defines a memory of minPages and optionally exports it as "memory".
func (m *Module) Memory(minPages uint32, exported bool) {
	m.mod.MemorySection = &wasm.Memory{Min: minPages}
	if exported {
		m.mod.ExportSection = append(m.mod.ExportSection, &wasm.Export{Type: wasm.ExternTypeMemory, Name: "memory"})
	}
}

// String places s in a data segment and returns its (ptr, len). The module
// must have a memory.
func (m *Module) String(s string) (uint32, uint32) {
	ptr := m.dataNext
	m.mod.DataSection = append(m.mod.DataSection, &wasm.DataSegment{
		OffsetExpression: &wasm.ConstantExpression{Opcode: wasm.OpcodeI32Const, Data: leb128.EncodeInt32(int32(ptr))},
		Init:             []byte(s),
	})
	m.dataNext += uint32(len(s)) + 1
	return ptr, uint32(len(s))
}

// Bytes encodes the module.
func (m *Module) Bytes() []byte {
	return wabin.EncodeModule(&m.mod)
}

// Body concatenates instructions into a function body.
func Body(instrs ...[]byte) []byte {
	var out []byte
	for _, in := range instrs {
		out = append(out, in...)
	}
	return out
}

// Call calls function idx.
func Call(idx uint32) []byte {
	return append([]byte{wasm.OpcodeCall}, leb128.EncodeUint32(idx)...)
}

// I32 pushes an i32 constant.
func I32(v int32) []byte {
	return append([]byte{wasm.OpcodeI32Const}, leb128.EncodeInt32(v)...)
}

// F32 pushes an f32 constant.
func F32(v float32) []byte {
	return binary.LittleEndian.AppendUint32([]byte{wasm.OpcodeF32Const}, math.Float32bits(v))
}

// Unreachable traps.
func Unreachable() []byte {
	return []byte{wasm.OpcodeUnreachable}
}

// Spin loops forever.
func Spin() []byte {
	const blockTypeEmpty = 0x40
	return []byte{wasm.OpcodeLoop, blockTypeEmpty, wasm.OpcodeBr, 0x00, wasm.OpcodeEnd}
}
