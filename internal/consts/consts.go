package consts

const (
	SBASE = 100.0 // System base power (MVA)
	FBASE = 60.0  // System base frequency (Hz)
)

const (
	NetworkTolerance = 1e-12 // Largest bus voltage change accepted as converged (p.u.)
	NetworkMaxIter   = 15
	DefaultTimeStep  = 0.001 // (s)
	DefaultStopTime  = 2.0   // (s)
	ClockTolerance   = 1e-6  // Fraction of a step
)

const (
	RAD2DEG = 57.29577951308232
	DEG2RAD = 0.017453292519943295
)
