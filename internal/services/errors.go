package services

import "fmt"

// NotFoundError is returned when an entity does not exist
type NotFoundError struct {
	Message string
	ID      string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s: %s", e.Message, e.ID)
}

// UnauthorizedError is returned on failed logins
type UnauthorizedError struct {
	Message string
}

func (e *UnauthorizedError) Error() string {
	return e.Message
}

// BadRequestError is returned on invalid input
type BadRequestError struct {
	Message string
}

func (e *BadRequestError) Error() string {
	return e.Message
}

// UnavailableError is returned when a dependency cannot serve the request
type UnavailableError struct {
	Message string
}

func (e *UnavailableError) Error() string {
	return e.Message
}

// TooLargeError is returned when an upload exceeds its limit
type TooLargeError struct {
	Limit int64
}

func (e *TooLargeError) Error() string {
	return fmt.Sprintf("image exceeds %d bytes", e.Limit)
}
