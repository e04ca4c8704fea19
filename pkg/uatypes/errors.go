package uatypes

import "errors"

var (
	ErrNegativeArrayLength  = errors.New("uatypes: array length is negative and not the null-array sentinel")
	ErrArrayTooLarge        = errors.New("uatypes: array length exceeds MaxArrayLength")
	ErrDiagnosticInfoTooDeep = errors.New("uatypes: diagnostic info inner-chain exceeds maximum depth")
)
