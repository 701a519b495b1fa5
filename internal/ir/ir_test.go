package ir

import (
	"bytes"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestTypeRendering(t *testing.T) {
	cases := []struct {
		typ  Type
		want string
	}{
		{ScalarOf(SInt(16)), "SInt<16>"},
		{StencilOf(UInt(8), 3, 2), "UInt<8>[3][2]"},
		{StreamOf(UInt(8), []int{1, 1}, []int{4, 4}), "{value : UInt<8>[1][1], valid : UInt<1>, flip ready : UInt<1>}"},
		{StreamOf(UInt(8), []int{2}, nil).WithKind(AxiStream), "{TDATA : UInt<8>[2], TVALID : UInt<1>, flip TREADY : UInt<1>, TLAST : UInt<1>}"},
		{MemReadOf(SInt(12)), "{value : SInt<12>, flip addr : UInt<32>[4]}"},
	}
	for _, tc := range cases {
		if got := tc.typ.String(); got != tc.want {
			t.Fatalf("String()=%q, want %q", got, tc.want)
		}
		if err := tc.typ.Validate(); err != nil {
			t.Fatalf("%s should validate: %v", tc.want, err)
		}
	}
}

func TestTypeValidateRejectsMismatchedBounds(t *testing.T) {
	bad := []Type{
		{Kind: Scalar, Elem: UInt(8), Bounds: []int{2}},
		{Kind: Stencil, Elem: UInt(8)},
		{Kind: Stencil, Elem: UInt(8), Bounds: []int{1, 1, 1, 1, 1}},
		{Kind: Stream, Elem: UInt(8), Bounds: []int{1, 1}, StoreExtents: []int{4}},
		{Kind: Stencil, Elem: UInt(0), Bounds: []int{1}},
		{Kind: Stencil, Elem: UInt(8), Bounds: []int{0}},
	}
	for _, typ := range bad {
		if err := typ.Validate(); err == nil {
			t.Fatalf("expected %+v to be rejected", typ)
		}
	}
}

func TestUnknownKindPanics(t *testing.T) {
	defer func() {
		r := recover()
		if r == nil || !strings.Contains(r.(string), "unhandled type kind") {
			t.Fatalf("expected unhandled kind panic, got %v", r)
		}
	}()
	_ = Type{Kind: Kind(42), Elem: UInt(1)}.String()
}

func TestBitsFor(t *testing.T) {
	cases := map[int]int{0: 1, 1: 1, 2: 1, 3: 2, 4: 2, 5: 3, 8: 3, 9: 4, 64: 6}
	for n, want := range cases {
		if got := BitsFor(n); got != want {
			t.Fatalf("BitsFor(%d)=%d, want %d", n, got, want)
		}
	}
}

func TestConnectListLastWins(t *testing.T) {
	var l ConnectList
	l.Add("a", "x")
	l.Add("b", "y")
	l.Add("a", "z")
	want := []Connect{{Dst: "a", Src: "z"}, {Dst: "b", Src: "y"}}
	if diff := cmp.Diff(want, l.Items()); diff != "" {
		t.Fatalf("connects mismatch (-want +got):\n%s", diff)
	}
	if src, ok := l.Source("a"); !ok || src != "z" {
		t.Fatalf("Source(a)=%q,%v", src, ok)
	}
}

func TestSignalListKeepsFirstDeclaration(t *testing.T) {
	var l SignalList
	if !l.Add(Signal{Name: "in", Type: Bit}) {
		t.Fatalf("first add must succeed")
	}
	if l.Add(Signal{Name: "in", Type: ScalarOf(UInt(8))}) {
		t.Fatalf("second add must be ignored")
	}
	s, _ := l.Lookup("in")
	if s.Type.Elem.Width != 1 || l.Len() != 1 {
		t.Fatalf("redeclaration replaced the signal: %+v", s)
	}
}

func TestTopOwnsChildren(t *testing.T) {
	top := NewTop("hls_target")
	stream := StreamOf(UInt(8), []int{1}, []int{8})
	fb := NewForBlock("FB_out", 1)
	fifo := NewFIFO("FIFO_out", stream, 0)
	sif := NewSlaveIf("SlaveIf")
	for _, m := range []Module{sif, fb, fifo} {
		if err := top.Add(m); err != nil {
			t.Fatalf("Add(%s): %v", m.Base().Name, err)
		}
	}
	if err := top.Add(NewFIFO("FIFO_out", stream, 2)); err == nil {
		t.Fatalf("duplicate instance must be rejected")
	}
	if fifo.Depth != 1 {
		t.Fatalf("depth must clamp to 1, got %d", fifo.Depth)
	}
	if got := top.OfKind(KindFIFO); len(got) != 1 || got[0] != Module(fifo) {
		t.Fatalf("OfKind(FIFO)=%v", got)
	}
	if src, _ := top.Connects.Source("FB_out.clock"); src != "clock" {
		t.Fatalf("clock not tied, got %q", src)
	}
	if _, ok := top.Lookup("SlaveIf"); !ok {
		t.Fatalf("SlaveIf not registered")
	}
}

func TestAddressMapLayout(t *testing.T) {
	sif := NewSlaveIf("SlaveIf")
	if err := sif.AddScalar("bias", SInt(16)); err != nil {
		t.Fatal(err)
	}
	if err := sif.AddMemory("w", UInt(8), []int{3, 2}); err != nil {
		t.Fatal(err)
	}
	if err := sif.AddScalar("gain", UInt(8)); err != nil {
		t.Fatal(err)
	}
	if err := sif.AddScalar("gain", UInt(8)); err == nil {
		t.Fatalf("duplicate register must be rejected")
	}

	m := sif.AddressMap(0x40)
	got := []int{}
	for _, e := range m.Entries {
		got = append(got, e.Offset, e.Range)
	}
	want := []int{0x40, 4, 0x44, 24, 0x5c, 4}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("layout mismatch (-want +got):\n%s", diff)
	}
	if m.End != 0x60 {
		t.Fatalf("End=%#x, want 0x60", m.End)
	}
	elems := m.Entries[1].Elements
	if len(elems) != 6 || elems[0].Name != "w_0_0_0_0" || elems[5].Name != "w_0_0_1_2" || elems[5].Offset != 0x58 {
		t.Fatalf("unexpected elements %+v", elems)
	}
	if e, ok := m.Find(0x50); !ok || e.Register.Name != "w" {
		t.Fatalf("Find(0x50) = %+v, %v", e, ok)
	}
	if _, ok := m.Find(0x60); ok {
		t.Fatalf("address past the map must not resolve")
	}
}

func TestReadPortsAreTrackedPerMemory(t *testing.T) {
	sif := NewSlaveIf("SlaveIf")
	_ = sif.AddMemory("w", UInt(8), []int{3})
	_ = sif.AddMemory("w2", UInt(8), []int{3})
	if err := sif.AddReadPort("w", "w_rd0_FB_a"); err != nil {
		t.Fatal(err)
	}
	if err := sif.AddReadPort("w", "w_rd0_FB_a"); err != nil {
		t.Fatal(err)
	}
	if err := sif.AddReadPort("nope", "x"); err == nil {
		t.Fatalf("read port on an unknown memory must fail")
	}
	r, _ := sif.Register("w")
	r2, _ := sif.Register("w2")
	if len(r.ReadPorts) != 1 || len(r2.ReadPorts) != 0 {
		t.Fatalf("read ports leaked between memories: %v %v", r.ReadPorts, r2.ReadPorts)
	}
	if p, ok := sif.Out.Lookup("w_rd0_FB_a"); !ok || p.Type.Kind != MemRead {
		t.Fatalf("read port not declared as MemRead: %+v", p)
	}
}

func TestLineBufferPlanner(t *testing.T) {
	lib := NewLineBufferLibrary()
	u16 := UInt(16)

	c1, err := lib.Plan(u16, []int{8}, []int{1}, []int{3})
	if err != nil {
		t.Fatal(err)
	}
	if c1.Shape != Shape1D || c1.Buffered(0) != 2 || c1.Windows() != 6 {
		t.Fatalf("1D plan wrong: shape %s buffered %d windows %d", c1.Shape, c1.Buffered(0), c1.Windows())
	}
	if c1.Name != "LB1D_u16_i1x1x1x1_o3x1x1x1_L8x1x1x1" {
		t.Fatalf("unexpected core name %q", c1.Name)
	}
	again, _ := lib.Plan(u16, []int{8, 1}, []int{1, 1}, []int{3, 1})
	if again != c1 {
		t.Fatalf("identical shapes must share one core")
	}

	c2, err := lib.Plan(u16, []int{8, 6}, []int{1, 1}, []int{3, 3})
	if err != nil {
		t.Fatal(err)
	}
	if c2.Shape != Shape2D || c2.Child == nil || c2.Child.Shape != Shape1D {
		t.Fatalf("2D plan wrong: %+v", c2)
	}
	if c2.Child.In != [4]int{1, 3, 1, 1} {
		t.Fatalf("2D child input %v, want [1 3 1 1]", c2.Child.In)
	}
	if c2.Windows() != 6*4 {
		t.Fatalf("2D windows %d, want 24", c2.Windows())
	}

	// Only the vertical window grows: the nested core passes through.
	col, err := lib.Plan(u16, []int{4, 4}, []int{1, 1}, []int{1, 2})
	if err != nil {
		t.Fatal(err)
	}
	if col.Child.Shape != ShapePass || col.Windows() != 4*3 {
		t.Fatalf("column plan wrong: child %s windows %d", col.Child.Shape, col.Windows())
	}

	pass, err := lib.Plan(u16, []int{4, 4}, []int{1, 1}, []int{1, 1})
	if err != nil || pass.Shape != ShapePass || pass.Windows() != 16 {
		t.Fatalf("pass plan wrong: %+v %v", pass, err)
	}

	if len(lib.Cores()) != 6 {
		names := []string{}
		for _, c := range lib.Cores() {
			names = append(names, c.Name)
		}
		t.Fatalf("expected 6 distinct cores, got %v", names)
	}
}

func TestLineBuffer2DWindowHeightNeedNotDivideImage(t *testing.T) {
	for _, tc := range []struct {
		image   []int
		windows int
	}{
		{[]int{8, 8}, 6 * 6},
		{[]int{4, 4}, 2 * 2},
		{[]int{6, 4}, 4 * 2},
	} {
		lib := NewLineBufferLibrary()
		c, err := lib.Plan(UInt(8), tc.image, []int{1, 1}, []int{3, 3})
		if err != nil {
			t.Fatalf("Plan(%v) 3x3: %v", tc.image, err)
		}
		if c.Shape != Shape2D || c.Child.Shape != Shape1D {
			t.Fatalf("Plan(%v): shapes %s/%s", tc.image, c.Shape, c.Child.Shape)
		}
		if c.Child.In != [4]int{1, 3, 1, 1} || c.Child.Image != Pad4(tc.image) {
			t.Fatalf("Plan(%v): child %+v", tc.image, c.Child)
		}
		if got := c.Windows(); got != tc.windows {
			t.Fatalf("Plan(%v): %d windows, want %d", tc.image, got, tc.windows)
		}
	}
}

func TestLineBufferFlattensDegenerate3D(t *testing.T) {
	lib := NewLineBufferLibrary()
	// Dimension 0 spans the image: rows become the merged fast dimension.
	a, err := lib.Plan(UInt(8), []int{4, 8, 8}, []int{4, 1, 1}, []int{4, 3, 3})
	if err != nil {
		t.Fatal(err)
	}
	if a.Shape != ShapeFlatten || a.MinorDim != 0 {
		t.Fatalf("expected flatten on dim 0, got %s/%d", a.Shape, a.MinorDim)
	}
	if a.Child.Image != [4]int{32, 8, 1, 1} || a.Child.In != [4]int{4, 1, 1, 1} || a.Child.Out != [4]int{12, 3, 1, 1} {
		t.Fatalf("flattened child wrong: %+v", a.Child)
	}
	if a.FlatIndex(2, 1, a.In) != 6 {
		t.Fatalf("FlatIndex(2,1)=%d, want 6", a.FlatIndex(2, 1, a.In))
	}
	if a.Windows() != 6*6 {
		t.Fatalf("windows %d, want 36", a.Windows())
	}

	b, err := lib.Plan(UInt(8), []int{8, 2, 8}, []int{1, 2, 1}, []int{3, 2, 3})
	if err != nil {
		t.Fatal(err)
	}
	if b.Shape != ShapeFlatten || b.MinorDim != 1 {
		t.Fatalf("expected flatten on dim 1, got %s/%d", b.Shape, b.MinorDim)
	}
	if b.FlatIndex(2, 1, b.Out) != 5 {
		t.Fatalf("FlatIndex(2,1)=%d, want 5", b.FlatIndex(2, 1, b.Out))
	}
}

func TestLineBufferRejectsUnsupportedShapes(t *testing.T) {
	lib := NewLineBufferLibrary()
	cases := []struct {
		image, in, out []int
		want           string
	}{
		{[]int{8, 8, 8}, []int{1, 1, 1}, []int{3, 3, 3}, "unsupported 3D"},
		{[]int{8, 8, 8, 8}, []int{1, 1, 1, 1}, []int{1, 1, 1, 2}, "unsupported 4D"},
		{[]int{8}, []int{2}, []int{3}, "not a multiple"},
		{[]int{9}, []int{2}, []int{4}, "not a multiple"},
		{[]int{4}, []int{1}, []int{5}, "exceeds image"},
		{[]int{}, []int{1}, []int{1}, "1 to 4 dimensions"},
	}
	for _, tc := range cases {
		_, err := lib.Plan(UInt(8), tc.image, tc.in, tc.out)
		if err == nil || !strings.Contains(err.Error(), tc.want) {
			t.Fatalf("Plan(%v,%v,%v) error %v, want %q", tc.image, tc.in, tc.out, err, tc.want)
		}
	}
}

func TestForBlockBodyScopes(t *testing.T) {
	fb := NewForBlock("FB_x", 0)
	if fb.Depth != 1 {
		t.Fatalf("depth must clamp to 1")
	}
	fb.Print("node _0 = UInt<1>(1)")
	fb.OpenScope("when _0 :")
	fb.Print("write_en <= UInt<1>(1)")
	fb.CloseScope()
	want := []string{
		"node _0 = UInt<1>(1)",
		"when _0 :",
		"  write_en <= UInt<1>(1)",
		"  skip",
	}
	if diff := cmp.Diff(want, fb.Body()); diff != "" {
		t.Fatalf("body mismatch (-want +got):\n%s", diff)
	}
	fb.StencilVars = []LoopVar{{Name: "c", Min: 0, Max: 0}}
	if fb.HasStencilLoop() {
		t.Fatalf("a one-position stencil loop takes a single step")
	}
	fb.StencilVars[0].Max = 2
	if !fb.HasStencilLoop() {
		t.Fatalf("stencil loop not detected")
	}
}

func TestDumpListsComponents(t *testing.T) {
	top := NewTop("hls_target")
	sif := NewSlaveIf("SlaveIf")
	_ = sif.AddScalar("gain", UInt(8))
	_ = top.Add(sif)
	stream := StreamOf(UInt(8), []int{1}, []int{8})
	_ = top.Add(NewFIFO("FIFO_in", stream, 4))
	lib := NewLineBufferLibrary()
	core, _ := lib.Plan(UInt(8), []int{8}, []int{1}, []int{3})
	_ = top.Add(NewLineBuffer("LB_win", "in", stream, "win", StreamOf(UInt(8), []int{3}, []int{8}), core))

	var buf bytes.Buffer
	Dump(&Design{Target: "hls_target", Top: top, SlaveIf: sif, LineBuffers: lib}, &buf)
	out := buf.String()
	for _, want := range []string{
		"TopLevel hls_target",
		"inst FIFO_in of FIFO_in",
		"bus gain scalar UInt<8>",
		"depth 4",
		"core LB1D_u8_i1x1x1x1_o3x1x1x1_L8x1x1x1",
		"out  win",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("dump missing %q:\n%s", want, out)
		}
	}
}
