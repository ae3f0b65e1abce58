package telemetry

import (
	"context"
	"testing"

	"github.com/colorfulnotion/bpvm/bytecode"
	"github.com/colorfulnotion/bpvm/jit"
	"github.com/colorfulnotion/bpvm/vm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestInitDisabled(t *testing.T) {
	shutdown, err := Init(context.Background(), "")
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
}

func TestExporterOptions(t *testing.T) {
	assert.Len(t, exporterOptions("localhost:4318"), 2)
	assert.Len(t, exporterOptions("https://collector.example:4318/v1/traces"), 1)
}

func TestRunAndCompileSpans(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	tp := NewProvider(rec)
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	defer otel.SetTracerProvider(prev)

	mb := bytecode.NewModuleBuilder()
	main := mb.Func("main", 0, 2)
	sq := mb.Func("square", 1, 2)
	main.ConstI64(0, 9).Call(1, sq.Index, 0, 1).Ret(1)
	sq.Binary(bytecode.MUL_I64, 1, 0, 0).Ret(1)
	m, err := mb.Build()
	require.NoError(t, err)

	e := jit.NewEngine(jit.Config{Enabled: true, Threshold: 1, CacheBytes: 1 << 16})
	defer e.Close()
	v, err := vm.New(m, vm.DefaultConfig(), vm.WithJIT(e))
	require.NoError(t, err)
	code, err := v.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 81, code)
	require.NoError(t, tp.ForceFlush(context.Background()))

	names := map[string]sdktrace.ReadOnlySpan{}
	for _, s := range rec.Ended() {
		names[s.Name()] = s
	}
	require.Contains(t, names, "vm.run")
	require.Contains(t, names, "jit.compile")
	assert.Equal(t, names["vm.run"].SpanContext().TraceID(), names["jit.compile"].SpanContext().TraceID())
}
