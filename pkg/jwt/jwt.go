package jwt

import (
	"errors"
	"slices"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token expired")
)

// Claims identify a chat adapter. Guilds limits the guilds it may act for; empty means any.
type Claims struct {
	AdapterID string   `json:"adapterId"`
	Guilds    []string `json:"guilds,omitempty"`
	jwt.RegisteredClaims
}

// AllowsGuild reports whether the adapter may act for the guild.
func (c *Claims) AllowsGuild(guildID string) bool {
	return len(c.Guilds) == 0 || slices.Contains(c.Guilds, guildID)
}

type JWTManager struct {
	secretKey string
	duration  time.Duration
	now       func() time.Time
}

func NewJWTManager(secretKey string, duration time.Duration) *JWTManager {
	return &JWTManager{
		secretKey: secretKey,
		duration:  duration,
		now:       time.Now,
	}
}

func (m *JWTManager) Duration() time.Duration {
	return m.duration
}

// Generate signs an HS256 adapter token.
func (m *JWTManager) Generate(adapterID string, guilds ...string) (string, error) {
	now := m.now()
	claims := Claims{
		AdapterID: adapterID,
		Guilds:    guilds,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   adapterID,
			ExpiresAt: jwt.NewNumericDate(now.Add(m.duration)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(m.secretKey))
}

func (m *JWTManager) Verify(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(
		tokenString,
		&Claims{},
		func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, ErrInvalidToken
			}
			return []byte(m.secretKey), nil
		},
		jwt.WithTimeFunc(m.now),
	)
	if errors.Is(err, jwt.ErrTokenExpired) {
		return nil, ErrExpiredToken
	}
	if err != nil {
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.AdapterID == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
