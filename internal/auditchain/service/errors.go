package service

import (
	"errors"

	"rollguard/internal/sentinel"
	dErrors "rollguard/pkg/domain-errors"
)

func translateNotFound(err error, msg string) error {
	if errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.Wrap(err, dErrors.CodeNotFound, msg)
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, msg)
}
