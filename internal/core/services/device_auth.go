package services

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DeviceAuthService issues the signed device token carried on the
// signaling dial and the ICE server fetch.
type DeviceAuthService struct {
	secret   []byte
	deviceID string
	ttl      time.Duration
	now      func() time.Time
}

func NewDeviceAuthService(secret, deviceID string, ttl time.Duration) *DeviceAuthService {
	return &DeviceAuthService{
		secret:   []byte(secret),
		deviceID: deviceID,
		ttl:      ttl,
		now:      time.Now,
	}
}

// IssueToken signs a fresh HS256 token with the device id as subject.
func (s *DeviceAuthService) IssueToken() (string, error) {
	now := s.now()
	claims := jwt.RegisteredClaims{
		Subject:   s.deviceID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign device token: %w", err)
	}
	return signed, nil
}

// ParseToken validates a token and returns the device id it was issued to.
func (s *DeviceAuthService) ParseToken(tokenString string) (string, error) {
	token, err := jwt.ParseWithClaims(tokenString, &jwt.RegisteredClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		return "", fmt.Errorf("failed to parse device token: %w", err)
	}

	claims, ok := token.Claims.(*jwt.RegisteredClaims)
	if !ok || !token.Valid {
		return "", fmt.Errorf("invalid device token")
	}
	return claims.Subject, nil
}
