package classifier

import "errors"

var (
	ErrClassifierUnavailable = errors.New("classifier unavailable")
	ErrClassifierTimeout     = errors.New("classifier timeout")
	ErrInvalidResponse       = errors.New("classifier returned invalid response")
)
