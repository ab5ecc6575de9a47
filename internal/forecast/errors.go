package forecast

import "errors"

var (
	// ErrConfiguration marks an invalid Config. Returned by New only.
	ErrConfiguration = errors.New("forecast: invalid configuration")

	// ErrData marks an observation with missing or invalid fields. It is an
	// integration error: the controller state is unchanged, so a caller may
	// choose to skip the observation, but the default is to stop.
	ErrData = errors.New("forecast: malformed observation")

	// ErrPersistenceLoad is returned by New when stored model state exists but
	// cannot be read or restored.
	ErrPersistenceLoad = errors.New("forecast: model state load failed")

	// ErrPersistenceSave wraps save failures. Saves never fail an Update; the
	// error is only logged and counted.
	ErrPersistenceSave = errors.New("forecast: model state save failed")

	// ErrTraining is returned by the Update that triggered a failed training.
	ErrTraining = errors.New("forecast: training failed")

	// ErrInference is returned when a trained model fails on one observation.
	ErrInference = errors.New("forecast: inference failed")

	// ErrFailed is returned for every Update after a training failure.
	ErrFailed = errors.New("forecast: controller failed")
)
