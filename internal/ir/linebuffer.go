package ir

import (
	"fmt"
	"strings"
)

// LineBufferShape is the structure chosen for a window-buffer core.
type LineBufferShape int

const (
	// ShapePass forwards elements unchanged (input and output windows agree).
	ShapePass LineBufferShape = iota
	// Shape1D keeps a shift register of past elements along dimension 0.
	Shape1D
	// Shape2D keeps row memories along dimension 1 and feeds a 1D core.
	Shape2D
	// ShapeFlatten merges dimensions 0 and 1 and feeds a 2D core.
	ShapeFlatten
)

func (s LineBufferShape) String() string {
	switch s {
	case ShapePass:
		return "Pass"
	case Shape1D:
		return "1D"
	case Shape2D:
		return "2D"
	case ShapeFlatten:
		return "3D"
	default:
		panic(fmt.Sprintf("ir: unhandled line buffer shape %d", int(s)))
	}
}

// LineBufferCore is one shared window-buffer module. All extents are in
// elements and padded to four dimensions.
type LineBufferCore struct {
	Name  string
	Shape LineBufferShape
	Elem  SignalType
	Image [4]int
	In    [4]int
	Out   [4]int
	// Child is the nested core of a 2D or flattened buffer.
	Child *LineBufferCore
	// MinorDim is, for a flattened buffer, the dimension (0 or 1) that
	// varies fastest inside the merged dimension.
	MinorDim int
}

// Buffered returns the number of history slots along dim: out/in - 1.
func (c *LineBufferCore) Buffered(dim int) int {
	return c.Out[dim]/c.In[dim] - 1
}

// Steps returns the number of input elements along dim: image/in.
func (c *LineBufferCore) Steps(dim int) int {
	return c.Image[dim] / c.In[dim]
}

// Windows returns how many output windows one full image produces.
func (c *LineBufferCore) Windows() int {
	switch c.Shape {
	case ShapePass:
		n := 1
		for d := 0; d < 4; d++ {
			n *= c.Steps(d)
		}
		return n
	case Shape1D:
		n := c.Steps(0) - c.Buffered(0)
		for d := 1; d < 4; d++ {
			n *= c.Steps(d)
		}
		return n
	case Shape2D:
		perRow := c.Child.Steps(0) - c.Child.Buffered(0)
		n := perRow * (c.Steps(1) - c.Buffered(1))
		for d := 2; d < 4; d++ {
			n *= c.Steps(d)
		}
		return n
	case ShapeFlatten:
		return c.Child.Windows()
	default:
		panic(fmt.Sprintf("ir: unhandled line buffer shape %d", int(c.Shape)))
	}
}

// FlatIndex maps an element coordinate (i0, i1) of a window with extents
// ext to its index in the merged dimension of a flattened buffer.
func (c *LineBufferCore) FlatIndex(i0, i1 int, ext [4]int) int {
	if c.MinorDim == 0 {
		return i1*ext[0] + i0
	}
	return i0*ext[1] + i1
}

// LineBufferLibrary plans window-buffer cores and shares identical ones.
type LineBufferLibrary struct {
	cores map[string]*LineBufferCore
	order []*LineBufferCore
}

// NewLineBufferLibrary returns an empty library.
func NewLineBufferLibrary() *LineBufferLibrary {
	return &LineBufferLibrary{cores: make(map[string]*LineBufferCore)}
}

// Cores returns every planned core, nested cores before their parents.
func (l *LineBufferLibrary) Cores() []*LineBufferCore { return l.order }

// Plan returns the core that turns a stream of in-sized elements over an
// image into a stream of out-sized windows.
func (l *LineBufferLibrary) Plan(elem SignalType, image, in, out []int) (*LineBufferCore, error) {
	for _, ext := range [][]int{image, in, out} {
		if len(ext) == 0 || len(ext) > 4 {
			return nil, fmt.Errorf("line buffer extents must have 1 to 4 dimensions (got %v)", ext)
		}
		for _, e := range ext {
			if e <= 0 {
				return nil, fmt.Errorf("line buffer extents must be positive (got %v)", ext)
			}
		}
	}
	image4, in4, out4 := Pad4(image), Pad4(in), Pad4(out)
	if err := checkExtents(image4, in4, out4); err != nil {
		return nil, err
	}
	return l.plan(elem, image4, in4, out4)
}

// checkExtents rejects windows the cores cannot produce from the caller's
// input elements. Nested cores retain whole output rows along dimension 1
// and are not held to these rules.
func checkExtents(image, in, out [4]int) error {
	for d := 0; d < 4; d++ {
		if out[d] < in[d] || out[d]%in[d] != 0 {
			return fmt.Errorf("line buffer output window %v is not a multiple of input %v in dimension %d", out, in, d)
		}
		if image[d]%in[d] != 0 {
			return fmt.Errorf("line buffer image %v is not a multiple of input %v in dimension %d", image, in, d)
		}
		if out[d] > image[d] {
			return fmt.Errorf("line buffer output window %v exceeds image %v in dimension %d", out, image, d)
		}
	}
	return nil
}

func (l *LineBufferLibrary) plan(elem SignalType, image, in, out [4]int) (*LineBufferCore, error) {
	dims := 0
	for d := 0; d < 4; d++ {
		if in[d] != out[d] {
			dims = d + 1
		}
	}

	c := &LineBufferCore{Elem: elem, Image: image, In: in, Out: out}
	switch dims {
	case 0:
		c.Shape = ShapePass
	case 1:
		c.Shape = Shape1D
	case 2:
		c.Shape = Shape2D
		childIn := in
		childIn[1] = out[1]
		child, err := l.plan(elem, image, childIn, out)
		if err != nil {
			return nil, err
		}
		c.Child = child
	case 3:
		c.Shape = ShapeFlatten
		switch {
		case in[0] == out[0] && out[0] == image[0]:
			c.MinorDim = 0
		case in[1] == out[1] && out[1] == image[1]:
			c.MinorDim = 1
		default:
			return nil, fmt.Errorf("unsupported 3D line buffer: input %v, output %v, image %v (dimension 0 or 1 must span the image)", in, out, image)
		}
		child, err := l.plan(elem,
			[4]int{image[0] * image[1], image[2], image[3], 1},
			[4]int{in[0] * in[1], in[2], in[3], 1},
			[4]int{out[0] * out[1], out[2], out[3], 1})
		if err != nil {
			return nil, err
		}
		c.Child = child
	default:
		return nil, fmt.Errorf("unsupported 4D line buffer: input %v, output %v", in, out)
	}

	c.Name = coreName(c)
	if shared, ok := l.cores[c.Name]; ok {
		return shared, nil
	}
	l.cores[c.Name] = c
	l.order = append(l.order, c)
	return c, nil
}

func coreName(c *LineBufferCore) string {
	sign := "u"
	if c.Elem.Signed {
		sign = "s"
	}
	return fmt.Sprintf("LB%s_%s%d_i%s_o%s_L%s", c.Shape, sign, c.Elem.Width, extents(c.In), extents(c.Out), extents(c.Image))
}

func extents(e [4]int) string {
	parts := make([]string, len(e))
	for i, v := range e {
		parts[i] = fmt.Sprint(v)
	}
	return strings.Join(parts, "x")
}
