package netparams

import "github.com/pkg/errors"

func errParamsf(format string, args ...interface{}) error {
	return errors.Errorf(format, args...)
}
