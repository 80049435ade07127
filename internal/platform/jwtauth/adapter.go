package jwtauth

import "invoicevault/internal/platform/middleware"

// Adapter exposes a Validator through the middleware's JWTValidator port.
type Adapter struct {
	validator *Validator
}

func NewAdapter(validator *Validator) *Adapter {
	return &Adapter{validator: validator}
}

func (a *Adapter) ValidateToken(tokenString string) (*middleware.JWTClaims, error) {
	claims, err := a.validator.ValidateToken(tokenString)
	if err != nil {
		return nil, err
	}
	return &middleware.JWTClaims{
		Subject:  claims.Subject,
		ClientID: claims.ClientID,
		JTI:      claims.ID,
	}, nil
}
