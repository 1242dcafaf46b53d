package metrics

// Metric attribute keys shared by all instruments.
const (
	AttrResource = "resource"
	AttrOutcome  = "outcome"
)

const (
	outcomeOK    = "ok"
	outcomeError = "error"
)
