package device

import "fmt"

// NewMachine resolves a generator model record into a typed handle.
func NewMachine(p ModelParam, base Base) (Machine, error) {
	if base.MBASE <= 0 {
		base.MBASE = base.SBASE
	}

	switch p.Type {
	case "GENCLS":
		return NewGENCLS(p, base)
	case "GENTRA":
		return NewGENTRA(p, base)
	case "GENROU", "GENSAL":
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedModel, p.Name())
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownModel, p.Name())
	}
}

func NewExciter(p ModelParam) (Exciter, error) {
	switch p.Type {
	case "SEXS":
		return NewSEXS(p)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownModel, p.Name())
	}
}

func NewGovernor(p ModelParam, base Base) (Governor, error) {
	if base.MBASE <= 0 {
		base.MBASE = base.SBASE
	}

	switch p.Type {
	case "IEEEG1":
		return NewIEEEG1(p, base)
	case "IEEEG3":
		return NewIEEEG3(p, base)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownModel, p.Name())
	}
}

// KindOf classifies a model name. ok is false for names the engine has never heard of.
func KindOf(model string) (kind Kind, ok bool) {
	switch model {
	case "GENCLS", "GENTRA", "GENROU", "GENSAL":
		return GEN, true
	case "SEXS":
		return AVR, true
	case "IEEEG1", "IEEEG3":
		return GOV, true
	}
	return 0, false
}
