package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Claims полезная нагрузка токена. Тип принципала определяется тем, какой из ID заполнен.
type Claims struct {
	CompanyID string `json:"company_id,omitempty"`
	ClientID  string `json:"client_id,omitempty"`
	DriverID  string `json:"driver_id,omitempty"`
	UserID    string `json:"user_id,omitempty"`
	AdminID   string `json:"admin_id,omitempty"`
	jwt.RegisteredClaims
}

func CompanyClaims(id uuid.UUID) Claims { return Claims{CompanyID: id.String()} }

// ClientClaims токен клиента несет и компанию
func ClientClaims(clientID, companyID uuid.UUID) Claims {
	return Claims{ClientID: clientID.String(), CompanyID: companyID.String()}
}

func DriverClaims(id uuid.UUID) Claims { return Claims{DriverID: id.String()} }

func UserClaims(id uuid.UUID) Claims { return Claims{UserID: id.String()} }

func AdminClaims(id uuid.UUID) Claims { return Claims{AdminID: id.String()} }

// TokenManager выпускает и проверяет HS256 токены
type TokenManager struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewTokenManager(secret string, ttl time.Duration) *TokenManager {
	return &TokenManager{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// Issue подписывает claims и проставляет время жизни
func (m *TokenManager) Issue(claims Claims) (string, error) {
	now := m.now()
	claims.IssuedAt = jwt.NewNumericDate(now)
	if m.ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(m.ttl))
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// Validate разбирает токен и проверяет подпись и срок
func (m *TokenManager) Validate(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return m.secret, nil
	}, jwt.WithTimeFunc(m.now))

	if err != nil {
		if errors.Is(err, jwt.ErrTokenMalformed) {
			return nil, errors.New("malformed token")
		} else if errors.Is(err, jwt.ErrTokenSignatureInvalid) {
			return nil, errors.New("invalid token signature")
		} else if errors.Is(err, jwt.ErrTokenExpired) || errors.Is(err, jwt.ErrTokenNotValidYet) {
			return nil, errors.New("token expired")
		} else {
			return nil, fmt.Errorf("invalid token: %w", err)
		}
	}

	if claims, ok := token.Claims.(*Claims); ok && token.Valid {
		return claims, nil
	}
	return nil, errors.New("invalid token claims")
}
