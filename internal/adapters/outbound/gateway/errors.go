package gateway

import "errors"

var ErrGatewayStatus = errors.New("remote gateway returned an error status")
