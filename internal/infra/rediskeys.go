package infra

import "fmt"

const (
	// RedisNamespace Базовый префикс для изоляции данных проекта в Redis
	RedisNamespace = "docflow"
)

// GetRequestKey — ключ денормализованного состояния заявки (fast tier).
// Под ключом лежит JSON-блоб Request целиком, включая traces.
func GetRequestKey(requestID string) string {
	return fmt.Sprintf("%s:request:%s", RedisNamespace, requestID)
}
