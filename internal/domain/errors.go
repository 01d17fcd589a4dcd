package domain

import "errors"

// Domain errors.
var (
	// ErrStationNotFound is returned when a station cannot be found.
	ErrStationNotFound = errors.New("station not found")

	// ErrJobNotFound is returned when a revalidation job cannot be found.
	ErrJobNotFound = errors.New("job not found")

	// ErrNoJobs is returned when there are no revalidation jobs to process.
	ErrNoJobs = errors.New("no jobs available")

	// ErrNoDirectoryServers is returned when every directory server failed.
	ErrNoDirectoryServers = errors.New("no directory servers reachable")

	// ErrInvalidStreamURL is returned when a stream URL cannot be parsed.
	ErrInvalidStreamURL = errors.New("invalid stream URL")

	// ErrStationNotPlayable is returned when a play or favorite action
	// targets a station whose last validation failed.
	ErrStationNotPlayable = errors.New("station stream is not playable")

	// ErrFavoriteNotFound is returned when a favorite cannot be found.
	ErrFavoriteNotFound = errors.New("favorite not found")

	// ErrDuplicateFavorite is returned when adding a station that is
	// already a favorite.
	ErrDuplicateFavorite = errors.New("station already in favorites")

	// ErrValidationInFlight is returned when a batch validation is started
	// while another one is still running.
	ErrValidationInFlight = errors.New("batch validation already in flight")
)

// StationError wraps an error with station context.
type StationError struct {
	UUID StationUUID
	Op   string
	Err  error
}

func (e *StationError) Error() string {
	if e.UUID != "" {
		return e.Op + " [" + e.UUID.String() + "]: " + e.Err.Error()
	}
	return e.Op + ": " + e.Err.Error()
}

func (e *StationError) Unwrap() error {
	return e.Err
}

// NewStationError creates a new StationError.
func NewStationError(uuid StationUUID, op string, err error) *StationError {
	return &StationError{
		UUID: uuid,
		Op:   op,
		Err:  err,
	}
}
