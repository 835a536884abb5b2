package prove

// FloatVector is a dense vector keyed by proof-graph node id. It grows by
// doubling on writes past its length; reads past the length are zero. The
// total is kept up to date by every write.
type FloatVector struct {
	v   []float64
	sum float64
}

// NewFloatVector returns a vector with room for n ids.
func NewFloatVector(n int) *FloatVector {
	if n < 1 {
		n = 1
	}
	return &FloatVector{v: make([]float64, n)}
}

func (f *FloatVector) Get(id int) float64 {
	if id < 0 || id >= len(f.v) {
		return 0
	}
	return f.v[id]
}

func (f *FloatVector) Set(id int, x float64) {
	f.grow(id)
	f.sum += x - f.v[id]
	f.v[id] = x
}

func (f *FloatVector) Add(id int, x float64) {
	f.grow(id)
	f.sum += x
	f.v[id] += x
}

// Len is one past the largest id the vector has room for.
func (f *FloatVector) Len() int { return len(f.v) }

// Sum is the running total over all ids. It may differ from a fresh
// summation by rounding.
func (f *FloatVector) Sum() float64 { return f.sum }

// Clear zeroes the vector in place.
func (f *FloatVector) Clear() {
	for i := range f.v {
		f.v[i] = 0
	}
	f.sum = 0
}

// Distribution copies the non-zero entries.
func (f *FloatVector) Distribution() Distribution {
	d := make(Distribution)
	for id, x := range f.v {
		if x != 0 {
			d[id] = x
		}
	}
	return d
}

func (f *FloatVector) grow(id int) {
	if id < 0 {
		panic("prove: negative node id")
	}
	if id < len(f.v) {
		return
	}
	n := len(f.v)
	if n == 0 {
		n = 1
	}
	for n <= id {
		n *= 2
	}
	v := make([]float64, n)
	copy(v, f.v)
	f.v = v
}
