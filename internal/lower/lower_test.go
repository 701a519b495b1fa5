package lower

import (
	"bytes"
	"io"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"golang.org/x/tools/txtar"

	"stencilrtl/internal/diag"
	"stencilrtl/internal/frontend"
	"stencilrtl/internal/ir"
	"stencilrtl/internal/kir"
)

// newBlockBuilder returns a builder with an empty design and a scope inside
// a fresh loop block.
func newBlockBuilder(t *testing.T) (*builder, *scope) {
	t.Helper()
	b := &builder{
		opts:     DefaultOptions(),
		reporter: diag.NewReporter(io.Discard, "text"),
		args:     make(map[string]kir.Arg),
		cache:    make(map[string]string),
		nextTap:  make(map[*ir.ForBlock]int),
	}
	if err := b.kernel(&kir.Kernel{Name: "k"}); err != nil {
		t.Fatalf("empty kernel: %v", err)
	}
	return b, &scope{fb: ir.NewForBlock("FB_test", 1)}
}

func TestExpressionLowering(t *testing.T) {
	i32, u8 := kir.Int(32), kir.UInt(8)
	a, bv := kir.Var(i32, "a"), kir.Var(i32, "b")
	u, v := kir.Var(u8, "u"), kir.Var(u8, "v")

	tests := []struct {
		name string
		expr kir.Expr
		want []string
	}{
		{
			name: "signed add",
			expr: kir.Bin(kir.Add, a, bv),
			want: []string{"node _0 = asSInt(tail(add(a, b), 1))"},
		},
		{
			name: "unsigned mul",
			expr: kir.Bin(kir.Mul, u, v),
			want: []string{"node _0 = bits(mul(u, v), 7, 0)"},
		},
		{
			name: "divide by power of two",
			expr: kir.Bin(kir.Div, u, kir.Imm(u8, 4)),
			want: []string{"node _0 = shr(u, 2)"},
		},
		{
			name: "signed modulo by power of two",
			expr: kir.Bin(kir.Mod, a, kir.I32(8)),
			want: []string{"node _0 = asSInt(and(asUInt(a), UInt<32>(7)))"},
		},
		{
			name: "widening cast changes sign",
			expr: &kir.Cast{T: kir.Int(16), Value: u},
			want: []string{"node _0 = asSInt(pad(u, 16))"},
		},
		{
			name: "narrowing cast",
			expr: &kir.Cast{T: u8, Value: a},
			want: []string{"node _0 = bits(a, 7, 0)"},
		},
		{
			name: "max becomes select",
			expr: kir.Bin(kir.Max, a, bv),
			want: []string{
				"node _0 = gt(a, b)",
				"node _1 = asSInt(mux(_0, asSInt(a), asSInt(b)))",
			},
		},
		{
			name: "shared subexpression",
			expr: kir.Bin(kir.Mul, kir.Bin(kir.Add, a, bv), kir.Bin(kir.Add, a, bv)),
			want: []string{
				"node _0 = asSInt(tail(add(a, b), 1))",
				"node _1 = asSInt(bits(mul(_0, _0), 31, 0))",
			},
		},
		{
			name: "constant shift left",
			expr: kir.Intr(u8, kir.ShiftLeft, u, kir.Imm(u8, 2)),
			want: []string{"node _0 = bits(shl(u, 2), 7, 0)"},
		},
		{
			name: "dynamic shift right",
			expr: kir.Intr(i32, kir.ShiftRight, a, bv),
			want: []string{"node _0 = dshr(a, bits(b, 4, 0))"},
		},
		{
			name: "signed bitwise and",
			expr: kir.Intr(i32, kir.BitwiseAnd, a, bv),
			want: []string{"node _0 = asSInt(and(a, b))"},
		},
		{
			name: "immediate",
			expr: kir.I32(-3),
			want: []string{"node _0 = SInt<32>(-3)"},
		},
		{
			name: "let binding",
			expr: &kir.Let{Name: "t", Value: kir.Bin(kir.Sub, u, v), Body: kir.Bin(kir.Add, kir.Var(u8, "t"), kir.Var(u8, "t"))},
			want: []string{
				"node _0 = tail(sub(u, v), 1)",
				"node _1 = tail(add(_0, _0), 1)",
			},
		},
		{
			name: "load",
			expr: &kir.Load{T: u8, Name: "buf.a0", Index: a},
			want: []string{"node _0 = buf_a0[asUInt(a)]"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, sc := newBlockBuilder(t)
			if _, err := b.expr(sc, tt.expr); err != nil {
				t.Fatalf("expr failed: %v", err)
			}
			if diff := cmp.Diff(tt.want, sc.fb.Body()); diff != "" {
				t.Fatalf("body mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestEuclideanDivisionUsesRoundToZero(t *testing.T) {
	b, sc := newBlockBuilder(t)
	a, d := kir.Var(kir.Int(32), "a"), kir.Var(kir.Int(32), "d")
	if _, err := b.expr(sc, kir.Bin(kir.Div, a, d)); err != nil {
		t.Fatalf("expr failed: %v", err)
	}
	body := strings.Join(sc.fb.Body(), "\n")
	for _, want := range []string{"asSInt(bits(div(a, d), 31, 0))", "pad(shr(", "not("} {
		if !strings.Contains(body, want) {
			t.Fatalf("expected %q in:\n%s", want, body)
		}
	}
}

func TestExpressionOutsideBlockUsesTopWires(t *testing.T) {
	b, _ := newBlockBuilder(t)
	id, err := b.expr(&scope{}, kir.Bin(kir.Add, kir.Var(kir.UInt(8), "p"), kir.Var(kir.UInt(8), "q")))
	if err != nil {
		t.Fatalf("expr failed: %v", err)
	}
	if _, ok := b.top.Wires.Lookup(id); !ok {
		t.Fatalf("expected top wire %s", id)
	}
	if src, _ := b.top.Connects.Source(id); src != "tail(add(p, q), 1)" {
		t.Fatalf("unexpected driver %q", src)
	}
}

func TestLowerFixtures(t *testing.T) {
	files, err := filepath.Glob(filepath.Join("testdata", "*.txtar"))
	if err != nil {
		t.Fatal(err)
	}
	if len(files) == 0 {
		t.Fatal("no fixtures")
	}
	for _, file := range files {
		t.Run(filepath.Base(file), func(t *testing.T) {
			ar, err := txtar.ParseFile(file)
			if err != nil {
				t.Fatal(err)
			}
			sections := make(map[string]string)
			for _, f := range ar.Files {
				sections[f.Name] = string(f.Data)
			}

			var buf bytes.Buffer
			rep := diag.NewReporter(&buf, "text")
			k, err := frontend.ParseKernel([]byte(sections["kernel.yaml"]), rep)
			if err != nil {
				t.Fatalf("parse: %v\n%s", err, buf.String())
			}
			design, err := Lower(k, DefaultOptions(), rep)
			if err != nil {
				t.Fatalf("lower: %v\n%s", err, buf.String())
			}

			var got []string
			for _, m := range design.Top.Children() {
				got = append(got, m.Base().Kind.String()+" "+m.Base().Name)
			}
			if diff := cmp.Diff(lines(sections["components"]), got); diff != "" {
				t.Fatalf("components mismatch (-want +got):\n%s", diff)
			}

			if want, ok := sections["body"]; ok {
				fbs := design.Top.OfKind(ir.KindForBlock)
				if len(fbs) != 1 {
					t.Fatalf("expected one loop block, got %d", len(fbs))
				}
				if diff := cmp.Diff(lines(want), fbs[0].(*ir.ForBlock).Body()); diff != "" {
					t.Fatalf("body mismatch (-want +got):\n%s", diff)
				}
			}

			for _, line := range lines(sections["connects"]) {
				dst, src, ok := strings.Cut(line, " <= ")
				if !ok {
					t.Fatalf("bad connect line %q", line)
				}
				if got, _ := design.Top.Connects.Source(dst); got != src {
					t.Fatalf("connect %s: want %q, got %q", dst, src, got)
				}
			}
		})
	}
}

func lines(s string) []string {
	var out []string
	for _, l := range strings.Split(strings.TrimSpace(s), "\n") {
		if l != "" {
			out = append(out, l)
		}
	}
	return out
}

// convKernel is a 1D convolution against a bus-mapped tap table: one window
// per output, three stencil steps per window and a write on the last step.
func convKernel() *kir.Kernel {
	u8, i32 := kir.UInt(8), kir.Int(32)
	r := kir.Var(i32, "r")
	access := func(name string, idx kir.Expr) kir.Expr {
		return &kir.Call{T: u8, Name: name, Args: []kir.Expr{idx}, Kind: kir.BufferAccess}
	}
	extern := func(name string, args ...kir.Expr) kir.Stmt {
		return &kir.Evaluate{Value: &kir.Call{T: i32, Name: name, Args: args, Kind: kir.Extern}}
	}
	one := []kir.Range{{Min: kir.I32(0), Extent: kir.I32(1)}}
	three := []kir.Range{{Min: kir.I32(0), Extent: kir.I32(3)}}

	stencilLoop := &kir.For{Name: "r", Min: kir.I32(0), Extent: kir.I32(3), Body: &kir.Block{Stmts: []kir.Stmt{
		&kir.Provide{Name: "out.stencil", Args: []kir.Expr{kir.I32(0)}, Values: []kir.Expr{
			kir.Bin(kir.Add, access("out.stencil", kir.I32(0)),
				kir.Bin(kir.Mul, access("in.stencil", r), access("w.tap.stencil", r))),
		}},
		&kir.IfThenElse{
			Cond: kir.Bin(kir.EQ, r, kir.I32(2)),
			Then: extern(kir.WriteStream, kir.Var(i32, "out.stencil.stream"), kir.Var(i32, "out.stencil"), kir.Var(i32, "x"), kir.I32(5)),
		},
	}}}

	body := &kir.ProducerConsumer{Name: "out.stencil.stream", IsProducer: true, Body: &kir.For{
		Name: "x", Min: kir.I32(0), Extent: kir.I32(6),
		Body: &kir.Realize{Name: "out.stencil", Types: []kir.Type{u8}, Bounds: one, Body: &kir.Realize{
			Name: "in.stencil", Types: []kir.Type{u8}, Bounds: three, Body: &kir.Block{Stmts: []kir.Stmt{
				extern(kir.ReadStream, kir.Var(i32, "in.stream"), kir.Var(i32, "in.stencil")),
				&kir.Provide{Name: "out.stencil", Args: []kir.Expr{kir.I32(0)}, Values: []kir.Expr{kir.Imm(u8, 0)}},
				stencilLoop,
			}},
		}},
	}}

	return &kir.Kernel{
		Name: "conv",
		Args: []kir.Arg{
			{Name: "in.stream", Kind: kir.StreamArg, Elem: u8, Bounds: []int{3}, StoreExtents: []int{8}},
			{Name: "w.tap.stencil", Kind: kir.StencilArg, Elem: u8, Bounds: []int{3}},
			{Name: "out.stencil.stream", Kind: kir.StreamArg, Elem: u8, Bounds: []int{1}, StoreExtents: []int{6}, IsOutput: true},
		},
		Body: body,
	}
}

func TestLowerStencilLoopWithTapTable(t *testing.T) {
	var buf bytes.Buffer
	design, err := Lower(convKernel(), DefaultOptions(), diag.NewReporter(&buf, "text"))
	if err != nil {
		t.Fatalf("lower: %v\n%s", err, buf.String())
	}
	m, ok := design.Top.Lookup("FB_out_stencil_stream")
	if !ok {
		t.Fatal("missing loop block")
	}
	fb := m.(*ir.ForBlock)

	wantBody := []string{
		"in_stencil <= in_stream.value",
		"node _0 = UInt<8>(0)",
		"out_stencil[0] <= _0",
		"node _1 = out_stencil[0]",
		"node _2 = in_stencil[asUInt(r)]",
		"w_tap_stencil_rd0.addr[0] <= asUInt(r)",
		"node _3 = w_tap_stencil_rd0.value",
		"node _4 = bits(mul(_2, _3), 7, 0)",
		"node _5 = tail(add(_1, _4), 1)",
		"out_stencil[0] <= _5",
		"node _6 = SInt<32>(2)",
		"node _7 = eq(r, _6)",
		"when _7 :",
		"  write_en <= UInt<1>(1)",
		"  skip",
	}
	if diff := cmp.Diff(wantBody, fb.Body()); diff != "" {
		t.Fatalf("body mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]ir.LoopVar{{Name: "x", Min: 0, Max: 5}}, fb.ScanVars); diff != "" {
		t.Fatalf("scan vars (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]ir.LoopVar{{Name: "r", Min: 0, Max: 2}}, fb.StencilVars); diff != "" {
		t.Fatalf("stencil vars (-want +got):\n%s", diff)
	}
	if !fb.Guarded || !fb.WritePerStep || fb.ReadPerStep {
		t.Fatalf("flags: guarded=%t writePerStep=%t readPerStep=%t", fb.Guarded, fb.WritePerStep, fb.ReadPerStep)
	}
	if !fb.Regs.Has("out_stencil") || !fb.Wires.Has("in_stencil") {
		t.Fatalf("produced stencil must be a register and the consumed one a wire")
	}

	reg, ok := design.SlaveIf.Register("w_tap_stencil")
	if !ok {
		t.Fatal("missing tap table")
	}
	if diff := cmp.Diff([]string{"w_tap_stencil_rd0_FB_out_stencil_stream"}, reg.ReadPorts); diff != "" {
		t.Fatalf("read ports (-want +got):\n%s", diff)
	}
	if src, _ := design.Top.Connects.Source("FB_out_stencil_stream.w_tap_stencil_rd0"); src != "wire_w_tap_stencil_rd0_FB_out_stencil_stream" {
		t.Fatalf("tap port driven by %q", src)
	}
	adapter, ok := design.Top.Lookup("IO_out_stencil_stream")
	if !ok {
		t.Fatal("missing output adapter")
	}
	if diff := cmp.Diff([]int{6}, adapter.Base().StoreExtents); diff != "" {
		t.Fatalf("output extents (-want +got):\n%s", diff)
	}
	wantDone := []string{"IO_in_stream_done", "FB_out_stencil_stream_done", "IO_out_stencil_stream_done"}
	if diff := cmp.Diff(wantDone, design.SlaveIf.DonePorts()); diff != "" {
		t.Fatalf("done ports (-want +got):\n%s", diff)
	}
}

func dispatchKernel(args ...kir.Expr) *kir.Kernel {
	u8 := kir.UInt(8)
	all := append([]kir.Expr{kir.Var(kir.Int(32), "in.stream")}, args...)
	return &kir.Kernel{
		Name: "split",
		Args: []kir.Arg{{Name: "in.stream", Kind: kir.StreamArg, Elem: u8, Bounds: []int{1}, StoreExtents: []int{8}}},
		Body: &kir.Evaluate{Value: &kir.Call{T: kir.Int(32), Name: kir.DispatchStream, Args: all, Kind: kir.Extern}},
	}
}

func ints(vs ...int64) []kir.Expr {
	out := make([]kir.Expr, len(vs))
	for i, v := range vs {
		out[i] = kir.I32(v)
	}
	return out
}

func TestDispatchBuildsRouterAndQueues(t *testing.T) {
	var args []kir.Expr
	args = append(args, ints(1, 1, 1, 8, 2)...)
	args = append(args, &kir.StringImm{Value: "a"})
	args = append(args, ints(0, 0, 4)...)
	args = append(args, &kir.StringImm{Value: "b"})
	args = append(args, ints(3, 4, 4)...)

	design, err := Lower(dispatchKernel(args...), DefaultOptions(), diag.NewReporter(io.Discard, "text"))
	if err != nil {
		t.Fatalf("lower: %v", err)
	}
	m, ok := design.Top.Lookup("DP_in_stream")
	if !ok {
		t.Fatal("missing router")
	}
	dp := m.(*ir.Dispatch)
	want := []ir.DispatchConsumer{
		{Name: "a", Port: "in_stream_to_a", Depth: 1, Offsets: []int{0}, Extents: []int{4}},
		{Name: "b", Port: "in_stream_to_b", Depth: 3, Offsets: []int{4}, Extents: []int{4}},
	}
	if diff := cmp.Diff(want, dp.Consumers); diff != "" {
		t.Fatalf("consumers (-want +got):\n%s", diff)
	}
	for name, depth := range map[string]int{"FIFO_in_stream_to_a": 1, "FIFO_in_stream_to_b": 3} {
		f, ok := design.Top.Lookup(name)
		if !ok {
			t.Fatalf("missing %s", name)
		}
		if got := f.(*ir.FIFO).Depth; got != depth {
			t.Fatalf("%s depth %d, want %d", name, got, depth)
		}
	}
}

func TestDispatchSingleShallowConsumerIsAlias(t *testing.T) {
	args := append(ints(1, 1, 1, 8, 1), &kir.StringImm{Value: "a"})
	args = append(args, ints(0, 0, 8)...)
	design, err := Lower(dispatchKernel(args...), DefaultOptions(), diag.NewReporter(io.Discard, "text"))
	if err != nil {
		t.Fatalf("lower: %v", err)
	}
	if len(design.Top.OfKind(ir.KindDispatch)) != 0 {
		t.Fatal("alias must not create a router")
	}
	if src, _ := design.Top.Connects.Source("wire_in_stream_to_a"); src != "wire_in_stream" {
		t.Fatalf("alias driven by %q", src)
	}
}

func TestLineBufferPlansSharedCore(t *testing.T) {
	u16 := kir.UInt(16)
	k := &kir.Kernel{
		Name: "blur",
		Args: []kir.Arg{{Name: "in.stream", Kind: kir.StreamArg, Elem: u16, Bounds: []int{1, 1}, StoreExtents: []int{8, 6}}},
		Body: &kir.Realize{
			Name:   "win.stream",
			Types:  []kir.Type{u16},
			Bounds: []kir.Range{{Min: kir.I32(0), Extent: kir.I32(3)}, {Min: kir.I32(0), Extent: kir.I32(3)}},
			Body: &kir.Evaluate{Value: &kir.Call{
				T: kir.Int(32), Name: kir.LineBuffer, Kind: kir.Extern,
				Args: append([]kir.Expr{kir.Var(kir.Int(32), "in.stream"), kir.Var(kir.Int(32), "win.stream")}, ints(8, 6)...),
			}},
		},
	}
	design, err := Lower(k, DefaultOptions(), diag.NewReporter(io.Discard, "text"))
	if err != nil {
		t.Fatalf("lower: %v", err)
	}
	m, ok := design.Top.Lookup("LB_win_stream")
	if !ok {
		t.Fatal("missing window buffer")
	}
	lb := m.(*ir.LineBuffer)
	if lb.Core.Name != "LB2D_u16_i1x1x1x1_o3x3x1x1_L8x6x1x1" {
		t.Fatalf("unexpected core %s", lb.Core.Name)
	}
	if n := len(design.LineBuffers.Cores()); n != 2 {
		t.Fatalf("expected a 2D core and its row core, got %d cores", n)
	}
	for dst, src := range map[string]string{
		"LB_win_stream.in_stream": "wire_in_stream",
		"FIFO_win_stream.data_in": "LB_win_stream.win_stream",
		"wire_win_stream":         "FIFO_win_stream.data_out",
	} {
		if got, _ := design.Top.Connects.Source(dst); got != src {
			t.Fatalf("%s driven by %q, want %q", dst, got, src)
		}
	}
}

func TestLowerRejectsUnsupportedConstructs(t *testing.T) {
	i32 := kir.Int(32)
	loop := func(kind kir.ForKind, extent kir.Expr, body kir.Stmt) kir.Stmt {
		return &kir.ProducerConsumer{Name: "o.stream", IsProducer: true,
			Body: &kir.For{Name: "x", Min: kir.I32(0), Extent: extent, Kind: kind, Body: body}}
	}
	tests := []struct {
		name string
		body kir.Stmt
		want string
	}{
		{"parallel loop", loop(kir.Parallel, kir.I32(4), &kir.Block{}), "only serial loops"},
		{"symbolic extent", loop(kir.Serial, kir.Var(i32, "n"), &kir.Block{}), "non-constant extent"},
		{"assert", &kir.AssertStmt{Cond: kir.Imm(kir.Bool(), 1)}, "assertions"},
		{"float", loop(kir.Serial, kir.I32(4), &kir.Evaluate{Value: kir.Bin(kir.Add, &kir.FloatImm{T: kir.Float(32), Value: 1}, &kir.FloatImm{T: kir.Float(32), Value: 2})}), "floating-point"},
		{"general if", loop(kir.Serial, kir.I32(4), &kir.IfThenElse{Cond: kir.Imm(kir.Bool(), 1), Then: &kir.Block{}}), "general if-then-else"},
		{"unknown realize", &kir.Realize{Name: "scratch", Types: []kir.Type{i32}, Bounds: []kir.Range{{Min: kir.I32(0), Extent: kir.I32(1)}}, Body: &kir.Block{}}, "only streams and stencils"},
		{"write outside loop", &kir.Evaluate{Value: &kir.Call{T: i32, Name: kir.WriteStream, Kind: kir.Extern, Args: []kir.Expr{kir.Var(i32, "o.stream"), kir.Var(i32, "o.stencil")}}}, "write_stream outside a loop"},
		{"dispatch step misses last origin", &kir.Evaluate{Value: &kir.Call{T: i32, Name: kir.DispatchStream, Kind: kir.Extern, Args: append(append([]kir.Expr{kir.Var(i32, "o.stream")}, ints(1, 3, 2, 8, 1)...), append([]kir.Expr{&kir.StringImm{Value: "a"}}, ints(1, 0, 8)...)...)}}, "does not reach the last window origin 5"},
		{"dispatch arity", &kir.Evaluate{Value: &kir.Call{T: i32, Name: kir.DispatchStream, Kind: kir.Extern, Args: append([]kir.Expr{kir.Var(i32, "o.stream")}, ints(1, 1, 1, 8, 1)...)}}, "need 10 arguments"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			rep := diag.NewReporter(&buf, "text")
			_, err := Lower(&kir.Kernel{Name: "bad", Body: tt.body}, DefaultOptions(), rep)
			if err == nil {
				t.Fatal("expected an error")
			}
			if !strings.Contains(buf.String(), tt.want) {
				t.Fatalf("expected diagnostic containing %q, got:\n%s", tt.want, buf.String())
			}
		})
	}
}

func TestScalarArgumentWiring(t *testing.T) {
	k := &kir.Kernel{Name: "s", Args: []kir.Arg{{Name: "bias", Kind: kir.ScalarArg, Elem: kir.Int(16)}}}
	design, err := Lower(k, Options{Target: "acc"}, diag.NewReporter(io.Discard, "text"))
	if err != nil {
		t.Fatalf("lower: %v", err)
	}
	if design.Top.Name != "acc" {
		t.Fatalf("top named %q", design.Top.Name)
	}
	if src, _ := design.Top.Connects.Source("wire_bias"); src != "SlaveIf.bias" {
		t.Fatalf("wire_bias driven by %q", src)
	}
	if _, ok := design.SlaveIf.Out.Lookup("bias"); !ok {
		t.Fatal("bus must expose the scalar")
	}

	wide := &kir.Kernel{Name: "w", Args: []kir.Arg{{Name: "big", Kind: kir.ScalarArg, Elem: kir.Int(64)}}}
	var buf bytes.Buffer
	if _, err := Lower(wide, DefaultOptions(), diag.NewReporter(&buf, "text")); err == nil || !strings.Contains(buf.String(), "at most 32") {
		t.Fatalf("expected width error, got %v: %s", err, buf.String())
	}
}

func TestTopLevelLetFeedsLoopBlock(t *testing.T) {
	ar, err := txtar.ParseFile(filepath.Join("testdata", "brighten.txtar"))
	if err != nil {
		t.Fatal(err)
	}
	var src []byte
	for _, f := range ar.Files {
		if f.Name == "kernel.yaml" {
			src = f.Data
		}
	}
	var buf bytes.Buffer
	rep := diag.NewReporter(&buf, "text")
	k, err := frontend.ParseKernel(src, rep)
	if err != nil {
		t.Fatalf("parse: %v\n%s", err, buf.String())
	}
	u8 := kir.UInt(8)
	k.Body = &kir.LetStmt{
		Name:  "g2",
		Value: kir.Bin(kir.Add, kir.Var(u8, "gain"), kir.Imm(u8, 1)),
		Body:  kir.SubstituteStmt("gain", kir.Var(u8, "g2"), k.Body),
	}

	design, err := Lower(k, DefaultOptions(), rep)
	if err != nil {
		t.Fatalf("lower: %v\n%s", err, buf.String())
	}

	var named string
	for _, w := range design.Top.Wires.Items() {
		if src, _ := design.Top.Connects.Source(w.Name); strings.Contains(src, "wire_gain") {
			named = w.Name
		}
	}
	if named == "" {
		t.Fatal("no top-level wire computed from wire_gain")
	}
	m, ok := design.Top.Lookup("FB_out_stencil_stream")
	if !ok {
		t.Fatal("missing loop block")
	}
	fb := m.(*ir.ForBlock)
	if _, ok := fb.In.Lookup(named); !ok {
		t.Fatalf("loop block has no input port %s", named)
	}
	if src, _ := design.Top.Connects.Source(fb.Name + "." + named); src != named {
		t.Fatalf("%s.%s driven by %q", fb.Name, named, src)
	}
	if !strings.Contains(strings.Join(fb.Body(), "\n"), ", "+named+")") {
		t.Fatalf("body does not use %s:\n%s", named, strings.Join(fb.Body(), "\n"))
	}
}
