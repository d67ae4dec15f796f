package wasmtest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
)

func TestBytesCompiles(t *testing.T) {
	m := New()
	rect := m.ImportPortal("fill_rect")
	m.Memory(1, true)
	ptr, n := m.String("blue")
	m.ExportFunc("setup", Body(F32(1), F32(2), F32(3), F32(4), Call(rect)))
	m.ExportFunc("update", Body(I32(int32(ptr)), I32(int32(n)), I32(-1), Unreachable()))
	m.ExportFunc("spin", Spin())

	ctx := context.Background()
	r := wazero.NewRuntime(ctx)
	defer r.Close(ctx)

	compiled, err := r.CompileModule(ctx, m.Bytes())
	require.NoError(t, err)

	exports := compiled.ExportedFunctions()
	assert.Contains(t, exports, "setup")
	assert.Contains(t, exports, "update")
	assert.Contains(t, exports, "spin")
	assert.Contains(t, compiled.ExportedMemories(), "memory")

	imports := compiled.ImportedFunctions()
	require.Len(t, imports, 1)
	module, name, ok := imports[0].Import()
	require.True(t, ok)
	assert.Equal(t, "fill_rect", name)
	assert.NotEmpty(t, module)
	assert.Equal(t, []api.ValueType{api.ValueTypeF32, api.ValueTypeF32, api.ValueTypeF32, api.ValueTypeF32}, imports[0].ParamTypes())
}

func TestTypesAreShared(t *testing.T) {
	m := New()
	m.ExportFunc("a", nil)
	m.ExportFunc("b", nil)
	m.Func([]api.ValueType{api.ValueTypeI32}, nil, nil)

	assert.Len(t, m.mod.TypeSection, 2)
	assert.Len(t, m.mod.CodeSection, 3)
}

func TestImportAfterFuncPanics(t *testing.T) {
	m := New()
	m.ExportFunc("setup", nil)
	assert.Panics(t, func() { m.ImportPortal("fill") })
}
