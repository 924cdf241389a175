package api

import (
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"

	"github.com/gardenledger/fieldsync/pkg/kernel"
)

// DeviceClaims identify the field device holding a token.
type DeviceClaims struct {
	DeviceID      kernel.DeviceID `json:"device_id"`
	ContributorID string          `json:"contributor_id"`
	jwt.RegisteredClaims
}

// DeviceTokenService issues and validates the HS256 tokens field devices
// authenticate with.
type DeviceTokenService struct {
	secretKey []byte
	ttl       time.Duration
	issuer    string
}

// NewDeviceTokenService creates a token service. A zero ttl defaults to 30 days;
// field devices stay offline for long stretches.
func NewDeviceTokenService(secretKey, issuer string, ttl time.Duration) *DeviceTokenService {
	if ttl == 0 {
		ttl = 30 * 24 * time.Hour
	}
	if issuer == "" {
		issuer = "fieldsync"
	}
	return &DeviceTokenService{
		secretKey: []byte(secretKey),
		ttl:       ttl,
		issuer:    issuer,
	}
}

// Generate issues a token for a device.
func (s *DeviceTokenService) Generate(deviceID kernel.DeviceID, contributorID string) (string, error) {
	now := time.Now()
	claims := DeviceClaims{
		DeviceID:      deviceID,
		ContributorID: contributorID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   deviceID.String(),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
			NotBefore: jwt.NewNumericDate(now),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secretKey)
	if err != nil {
		return "", apiErrors.NewWithCause(ErrTokenGeneration, err)
	}
	return signed, nil
}

// Validate parses and verifies a token, returning its claims.
func (s *DeviceTokenService) Validate(tokenString string) (*DeviceClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &DeviceClaims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secretKey, nil
	})
	if err != nil {
		return nil, apiErrors.NewWithCause(ErrUnauthorized, err)
	}
	if !token.Valid {
		return nil, apiErrors.New(ErrUnauthorized)
	}

	claims, ok := token.Claims.(*DeviceClaims)
	if !ok {
		return nil, apiErrors.New(ErrUnauthorized)
	}
	return claims, nil
}

// Authenticate is the bearer-token middleware guarding the engine routes.
// Validated claims land in c.Locals("device").
func (s *DeviceTokenService) Authenticate() fiber.Handler {
	return func(c *fiber.Ctx) error {
		authHeader := c.Get("Authorization")
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
			return apiErrors.New(ErrUnauthorized).WithDetail("reason", "missing bearer token")
		}

		claims, err := s.Validate(parts[1])
		if err != nil {
			return err
		}

		c.Locals("device", claims)
		return c.Next()
	}
}

// DeviceFromContext returns the authenticated device claims, if any.
func DeviceFromContext(c *fiber.Ctx) (*DeviceClaims, bool) {
	claims, ok := c.Locals("device").(*DeviceClaims)
	return claims, ok
}
