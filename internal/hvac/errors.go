package hvac

import "errors"

var (
	ErrBusy         = errors.New("hvac: request already outstanding")
	ErrNotConnected = errors.New("hvac: link not connected")
	ErrSendFailed   = errors.New("hvac: frame transmit failed")
	ErrLinkClosed   = errors.New("hvac: link closed")

	ErrResponseTimeout             = errors.New("hvac: response timeout")
	ErrConnectionLostDuringRequest = errors.New("hvac: connection lost with request outstanding")
)
