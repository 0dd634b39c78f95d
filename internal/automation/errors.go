package automation

import (
	"errors"

	"github.com/san-kum/cosim/internal/dynamo"
)

func isConvergence(err error) bool {
	var ce *dynamo.ConvergenceError
	var se *dynamo.SimulationError
	return errors.As(err, &ce) || errors.As(err, &se)
}
