package search

// ValidationError wraps a user-facing validation message. Transport adapters
// map it to a 4xx status; everything else is treated as an infrastructure
// failure.
type ValidationError struct{ Msg string }

func (e *ValidationError) Error() string { return e.Msg }

// ErrInvalidGeoParams signals a partial or degenerate geo triple: some but
// not all of lat/lon/distanceKm provided, a zero lat or lon paired with a
// non-zero radius, or a distance sort without a full triple.
var ErrInvalidGeoParams = &ValidationError{Msg: "latitude, longitude and distanceKm must be provided together and non-degenerate"}

// ErrEmptyNafFilter signals an explicitly empty NAF-code list, which is a
// schema error distinct from omitting the filter.
var ErrEmptyNafFilter = &ValidationError{Msg: "nafCodes must be non-empty when provided"}
