package broker

import "errors"

// ErrMalformedMessage marks a delivery that can never be processed. It is
// rejected without requeue.
var ErrMalformedMessage = errors.New("malformed message")
