package domain

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type CustomClaims struct {
	UserID string          `json:"user_id"`
	Scopes map[string]bool `json:"scopes"` // "audit.read": true, "admin": true
	jwt.RegisteredClaims
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"` // Всегда "Bearer"
	ExpiresIn   int64  `json:"expires_in"`
}

// User — оператор консоли аудита.
type User struct {
	ID           string          `json:"id"`
	Username     string          `json:"username"`
	PasswordHash string          `json:"-"` // Никогда не отправляем на фронт
	Scopes       map[string]bool `json:"scopes"`
	CreatedAt    time.Time       `json:"created_at"`
}

// RequestSummary — строка списка заявок в консоли.
type RequestSummary struct {
	ID        string        `json:"request_id"`
	CreatedAt time.Time     `json:"created_at"`
	Status    RequestStatus `json:"status"`
}

// DashboardStats — агрегаты для дашборда консоли.
type DashboardStats struct {
	TotalRequests    int            `json:"total_requests"`
	ErrorRequests    int            `json:"error_requests"`
	HighRiskLastHour int            `json:"high_risk_last_hour"`
	ByStatus         map[string]int `json:"by_status"`
	ByPriority       map[string]int `json:"by_priority"`
	ByAction         map[string]int `json:"by_action"`
}
