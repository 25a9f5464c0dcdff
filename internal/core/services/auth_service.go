package services

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"soctel/internal/core/domain"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token expired")
)

// DeviceAuthService issues and verifies the tokens handed out at handshake.
// A reconnecting device presents its token to resume the same identity
// instead of re-registering.
type DeviceAuthService interface {
	IssueToken(deviceID domain.DeviceID) (string, error)
	ValidateToken(tokenString string) (*DeviceClaims, error)
}

type DeviceClaims struct {
	DeviceID domain.DeviceID `json:"device_id"`
	jwt.RegisteredClaims
}

type deviceAuthService struct {
	secret   []byte
	tokenTTL time.Duration
}

func NewDeviceAuthService(secret string, tokenTTL time.Duration) DeviceAuthService {
	return &deviceAuthService{
		secret:   []byte(secret),
		tokenTTL: tokenTTL,
	}
}

func (s *deviceAuthService) IssueToken(deviceID domain.DeviceID) (string, error) {
	claims := &DeviceClaims{
		DeviceID: deviceID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(s.tokenTTL)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			NotBefore: jwt.NewNumericDate(time.Now()),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

func (s *deviceAuthService) ValidateToken(tokenString string) (*DeviceClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &DeviceClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return s.secret, nil
	})

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	if claims, ok := token.Claims.(*DeviceClaims); ok && token.Valid {
		return claims, nil
	}

	return nil, ErrInvalidToken
}
