package matrix

import (
	"errors"
	"fmt"
	"io"

	"github.com/edp1096/sparse"
	"gonum.org/v1/gonum/mat"
)

var ErrIndex = errors.New("matrix index out of bounds")

type entry struct {
	row, col int
}

// YMatrix is a complex nodal admittance matrix. Values are held in a dense
// base plus an ordered list of edits per entry, and copied into a sparse
// matrix for LU factorization whenever the revision changes.
type YMatrix struct {
	Size     int
	base     *mat.CDense
	edits    map[entry][]complex128
	matrix   *sparse.Matrix
	elements map[entry]*sparse.Element
	config   *sparse.Configuration
	rhs      []float64
	solution []float64

	revision     uint64
	factoredRev  uint64
	factored     bool
	patternDirty bool
	refactors    int
}

func NewYMatrix(size int) (*YMatrix, error) {
	if size <= 0 {
		return nil, fmt.Errorf("invalid matrix size: %d", size)
	}

	config := &sparse.Configuration{
		Real:                    true,
		Complex:                 true,
		SeparatedComplexVectors: false,
		Expandable:              true,
		Translate:               false,
		ModifiedNodal:           false,
		TiesMultiplier:          5,
		PrinterWidth:            140,
		Annotate:                0,
	}

	vectorSize := 2 * (size + 1) // interleaved real/imag, 1-based indexing
	return &YMatrix{
		Size:     size,
		base:     mat.NewCDense(size, size, nil),
		edits:    make(map[entry][]complex128),
		config:   config,
		rhs:      make([]float64, vectorSize),
		solution: make([]float64, vectorSize),
	}, nil
}

func (m *YMatrix) inBounds(i, j int) bool {
	return i > 0 && j > 0 && i <= m.Size && j <= m.Size
}

// AddComplexElement adds to the base value of entry (i, j).
func (m *YMatrix) AddComplexElement(i, j int, real, imag float64) {
	if !m.inBounds(i, j) {
		return
	}
	v := m.base.At(i-1, j-1)
	m.base.Set(i-1, j-1, v+complex(real, imag))
	if _, ok := m.elements[entry{i, j}]; !ok {
		m.patternDirty = true
	}
	m.revision++
}

func (m *YMatrix) AddComplexRHS(i int, real, imag float64) {
	if i <= 0 || i > m.Size {
		return
	}
	m.rhs[2*i] += real
	m.rhs[2*i+1] += imag
}

func (m *YMatrix) ClearRHS() {
	for i := range m.rhs {
		m.rhs[i] = 0
	}
}

// Edit records delta at entry (i, j). A delta that exactly cancels an earlier
// edit removes that edit instead, so the entry returns to its previous value
// bit for bit.
func (m *YMatrix) Edit(i, j int, delta complex128) error {
	if !m.inBounds(i, j) {
		return fmt.Errorf("%w (i=%d, j=%d, size=%d)", ErrIndex, i, j, m.Size)
	}

	key := entry{i, j}
	list := m.edits[key]
	for k := len(list) - 1; k >= 0; k-- {
		if list[k] == -delta {
			list = append(list[:k], list[k+1:]...)
			if len(list) == 0 {
				delete(m.edits, key)
			} else {
				m.edits[key] = list
			}
			m.revision++
			return nil
		}
	}

	m.edits[key] = append(list, delta)
	m.revision++
	return nil
}

// At returns the effective value of entry (i, j).
func (m *YMatrix) At(i, j int) complex128 {
	if !m.inBounds(i, j) {
		return 0
	}
	v := m.base.At(i-1, j-1)
	for _, d := range m.edits[entry{i, j}] {
		v += d
	}
	return v
}

// Dense returns a copy of the effective matrix.
func (m *YMatrix) Dense() *mat.CDense {
	d := mat.NewCDense(m.Size, m.Size, nil)
	for i := 1; i <= m.Size; i++ {
		for j := 1; j <= m.Size; j++ {
			d.Set(i-1, j-1, m.At(i, j))
		}
	}
	return d
}

func (m *YMatrix) Revision() uint64 {
	return m.revision
}

func (m *YMatrix) Refactors() int {
	return m.refactors
}

// setupElements creates the sparse structure from the current nonzero pattern.
// Element pointers are captured before the first factorization, since the
// matrix is reordered in place afterwards.
func (m *YMatrix) setupElements() error {
	if m.matrix != nil {
		m.matrix.Destroy()
	}

	sm, err := sparse.Create(int64(m.Size), m.config)
	if err != nil {
		return fmt.Errorf("creating sparse matrix: %v", err)
	}

	m.matrix = sm
	m.elements = make(map[entry]*sparse.Element)
	for i := 1; i <= m.Size; i++ {
		for j := 1; j <= m.Size; j++ {
			_, edited := m.edits[entry{i, j}]
			if i != j && m.base.At(i-1, j-1) == 0 && !edited {
				continue
			}
			element := sm.GetElement(int64(i), int64(j))
			if element == nil {
				return fmt.Errorf("allocating element (%d, %d)", i, j)
			}
			m.elements[entry{i, j}] = element
		}
	}
	return nil
}

func (m *YMatrix) patternCovers() bool {
	for key := range m.edits {
		if _, ok := m.elements[key]; !ok {
			return false
		}
	}
	return true
}

func (m *YMatrix) factor() error {
	if m.factored && m.factoredRev == m.revision {
		return nil
	}

	if m.matrix == nil || m.patternDirty || !m.patternCovers() {
		if err := m.setupElements(); err != nil {
			return err
		}
		m.patternDirty = false
	} else {
		m.matrix.Clear()
	}

	for key, element := range m.elements {
		v := m.At(key.row, key.col)
		element.Real = real(v)
		element.Imag = imag(v)
	}

	if err := m.matrix.Factor(); err != nil {
		m.factored = false
		return fmt.Errorf("matrix factorization failed: %v", err)
	}

	m.factored = true
	m.factoredRev = m.revision
	m.refactors++
	return nil
}

// Solve factors the matrix if it changed since the last factorization and
// solves Y·U = RHS.
func (m *YMatrix) Solve() error {
	if err := m.factor(); err != nil {
		return err
	}

	solution, _, err := m.matrix.SolveComplex(m.rhs, nil)
	if err != nil {
		return fmt.Errorf("matrix solve failed: %v", err)
	}
	m.solution = solution
	return nil
}

func (m *YMatrix) GetComplexSolution(i int) complex128 {
	if i <= 0 || i > m.Size {
		return 0
	}
	return complex(m.solution[2*i], m.solution[2*i+1])
}

func (m *YMatrix) PrintSystem(w io.Writer) {
	fmt.Fprintf(w, "\nAdmittance Matrix (%dx%d), revision %d:\n", m.Size, m.Size, m.revision)
	for i := 1; i <= m.Size; i++ {
		fmt.Fprintf(w, "Row %d:", i)
		for j := 1; j <= m.Size; j++ {
			v := m.At(i, j)
			if v == 0 {
				continue
			}
			fmt.Fprintf(w, "  (%d: %.5f%+.5fj)", j, real(v), imag(v))
		}
		fmt.Fprintln(w)
	}
}

func (m *YMatrix) Destroy() {
	if m.matrix != nil {
		m.matrix.Destroy()
		m.matrix = nil
	}
	m.factored = false
}
