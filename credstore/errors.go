package credstore

import (
	"errors"
	"fmt"
)

type (
	UserNotFound struct {
		Key string
	}

	UserExists struct {
		Username string
	}

	InvalidSchema struct {
		Table  string
		Reason string
	}
)

func (u UserNotFound) Error() string {
	return "user not found"
}

func (u UserExists) Error() string {
	return fmt.Sprintf("username %v is already taken", u.Username)
}

func (i InvalidSchema) Error() string {
	return fmt.Sprintf("table %v has an unexpected schema: %v", i.Table, i.Reason)
}

func IsNotFound(err error) bool {
	var nf UserNotFound
	return errors.As(err, &nf)
}

func IsExists(err error) bool {
	var ue UserExists
	return errors.As(err, &ue)
}
