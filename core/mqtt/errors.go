package mqtt

import "errors"

var (
	// ErrNotConnected is returned when publishing without a broker connection.
	ErrNotConnected = errors.New("mqtt client not connected")
	// ErrInvalidTopic is returned for topics outside <prefix>/layers/.
	ErrInvalidTopic = errors.New("not a layer topic")
)
