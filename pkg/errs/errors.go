package errs

import "errors"

var (
	ErrCANotFound      error = errors.New("certificate authority not found")
	ErrCAAlreadyExists error = errors.New("certificate authority already exists")
	ErrCAStatus        error = errors.New("certificate authority status inconsistent")
	ErrCAType          error = errors.New("certificate authority type inconsistent")
	ErrCADisabled      error = errors.New("certificate authority is disabled")

	ErrValidateBadRequest error = errors.New("struct validation error")

	ErrCertificateNotFound       error = errors.New("certificate not found")
	ErrCertificateAlreadyExists  error = errors.New("certificate already exists")
	ErrCertificateAlreadyRevoked error = errors.New("certificate already revoked")
	ErrCertificateAlreadyRenewed error = errors.New("certificate already renewed")

	ErrProfileNotFound error = errors.New("certificate profile not found")
	ErrProfileCA       error = errors.New("certificate profile does not belong to the certificate authority")

	ErrAppConnectionNotFound error = errors.New("app connection not found")
	ErrAppConnectionType     error = errors.New("app connection type not supported by the certificate authority")

	ErrDirectIssuanceDisabled error = errors.New("direct issuance is disabled for the certificate authority")

	ErrIssuancePending error = errors.New("certificate issuance is still pending")

	//KMS
	ErrKeyNotFound error = errors.New("key not found")
)
