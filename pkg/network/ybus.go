package network

import (
	"fmt"

	"github.com/edp1096/toy-stability/pkg/matrix"
	"github.com/edp1096/toy-stability/pkg/netlist"
)

// BranchStamp is the π-equivalent contribution of one branch.
type BranchStamp struct {
	Yii, Yjj complex128 // diagonal terms at the from and to bus
	Yij      complex128 // off-diagonal term, same in both directions
}

// StampBranch computes the π model of a branch with its off-nominal ratio on
// the from side and the end shunts BI, BJ.
func StampBranch(br netlist.Branch) BranchStamp {
	tap := br.Tap
	if tap == 0 {
		tap = 1
	}

	ys := 1 / complex(br.R, br.X)
	yc := complex(0, 0.5*br.B)
	t := complex(tap, 0)

	return BranchStamp{
		Yii: (ys+yc)/(t*t) + complex(0, br.BI),
		Yjj: ys + yc + complex(0, br.BJ),
		Yij: -ys / t,
	}
}

func stamp(m matrix.DeviceMatrix, i, j int, s BranchStamp, sign float64) {
	m.AddComplexElement(i, i, sign*real(s.Yii), sign*imag(s.Yii))
	m.AddComplexElement(j, j, sign*real(s.Yjj), sign*imag(s.Yjj))
	m.AddComplexElement(i, j, sign*real(s.Yij), sign*imag(s.Yij))
	m.AddComplexElement(j, i, sign*real(s.Yij), sign*imag(s.Yij))
}

// BuildBasicY stamps every branch and fixed bus shunt of the case. index maps
// bus numbers to 1-based matrix indices.
func BuildBasicY(c *netlist.Case, index map[int]int, m matrix.DeviceMatrix) error {
	for _, b := range c.Buses {
		i, ok := index[b.Number]
		if !ok {
			return fmt.Errorf("%w: %d", ErrUnknownBus, b.Number)
		}
		if b.Gs != 0 || b.Bs != 0 {
			m.AddComplexElement(i, i, b.Gs/c.SBASE, b.Bs/c.SBASE)
		}
	}

	for _, br := range c.Branches {
		i, okI := index[br.From]
		j, okJ := index[br.To]
		if !okI || !okJ {
			return fmt.Errorf("%w: branch %d-%d", ErrUnknownBus, br.From, br.To)
		}
		stamp(m, i, j, StampBranch(br), 1)
	}
	return nil
}
