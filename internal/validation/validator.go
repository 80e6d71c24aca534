package validation

import (
	validatorv10 "github.com/go-playground/validator/v10"
)

// New returns a configured validator with custom struct-level validation registered.
func New() *validatorv10.Validate {
	v := validatorv10.New()

	// register struct-level validation for ViewportQuery to ensure the
	// box is not inverted or degenerate.
	v.RegisterStructValidation(viewportStructValidation, ViewportQuery{})

	return v
}

// viewportStructValidation verifies min corners lie strictly below max corners.
func viewportStructValidation(sl validatorv10.StructLevel) {
	q := sl.Current().Interface().(ViewportQuery)

	if q.MinLat >= q.MaxLat {
		sl.ReportError(q.MinLat, "min_lat", "MinLat", "viewport_ordering", "min_lat must be below max_lat")
	}
	if q.MinLon >= q.MaxLon {
		sl.ReportError(q.MinLon, "min_lon", "MinLon", "viewport_ordering", "min_lon must be below max_lon")
	}
}
