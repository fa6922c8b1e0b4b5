package app

import "errors"

var (
	// ErrEmptyMessage indicates the chat request carried no usable message.
	ErrEmptyMessage = errors.New("message is required")
)
