package pathfinding

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidCoordinate is returned when a start or goal cell lies outside
	// the grid.
	ErrInvalidCoordinate = errors.New("pathfinding: coordinate outside grid")

	// ErrInvalidConfiguration is returned for non-positive radius or timeout
	// and for negative or non-finite cost weights.
	ErrInvalidConfiguration = errors.New("pathfinding: invalid configuration")

	// ErrStaleMaskCache is returned when a mask cache was built for another
	// grid or radius than the search it is handed to.
	ErrStaleMaskCache = fmt.Errorf("%w: mask cache does not match grid or radius", ErrInvalidConfiguration)
)
