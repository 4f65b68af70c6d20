package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// RequestStatus — жизненный цикл заявки в пайплайне.
// Переходы строго вперед: initialized -> input_received -> classified ->
// processed -> action_completed. Терминальная альтернатива — error.
type RequestStatus string

const (
	StatusInitialized     RequestStatus = "initialized"
	StatusInputReceived   RequestStatus = "input_received"
	StatusClassified      RequestStatus = "classified"
	StatusProcessed       RequestStatus = "processed"
	StatusActionCompleted RequestStatus = "action_completed"
	StatusError           RequestStatus = "error"
)

// SourceHint — декларированный источник входа (intake boundary).
type SourceHint string

const (
	SourceFile        SourceHint = "file"
	SourceStructured  SourceHint = "structured-data"
	SourceMessage     SourceHint = "message"
	SourceUnspecified SourceHint = "unspecified"
)

// ContentKind — дискриминатор варианта входного содержимого.
// Решение о виде принимается ОДИН раз на intake; дальше по пайплайну
// никакой рантайм-интроспекции типов не происходит.
type ContentKind string

const (
	ContentText       ContentKind = "text"
	ContentStructured ContentKind = "structured"
	ContentBinary     ContentKind = "binary"
)

// Content — tagged union по входному содержимому.
// Заполнено ровно одно из полей-значений в зависимости от Kind.
type Content struct {
	Kind ContentKind `json:"kind"`

	Text       string         `json:"text,omitempty"`
	Structured map[string]any `json:"structured,omitempty"`

	// Binary хранит сырые байты (например, PDF) и в журнал не пишется.
	// Reference — путь/ключ, по которому блоб можно перечитать после
	// рестарта; Digest (sha256) идентифицирует блоб в персистентной записи.
	Binary    []byte `json:"-"`
	Reference string `json:"reference,omitempty"`
	Digest    string `json:"digest,omitempty"`
}

func TextContent(s string) Content {
	return Content{Kind: ContentText, Text: s}
}

func StructuredContent(m map[string]any) Content {
	return Content{Kind: ContentStructured, Structured: m}
}

func BinaryContent(data []byte, ref string) Content {
	c := Content{Kind: ContentBinary, Binary: data, Reference: ref}
	if len(data) > 0 {
		sum := sha256.Sum256(data)
		c.Digest = "sha256:" + hex.EncodeToString(sum[:])
		if c.Reference == "" {
			c.Reference = c.Digest
		}
	}
	return c
}

// Empty — true, если во входе нет никакого пригодного содержимого.
// Такой запрос завершается request-level ошибкой, а не фоллбэком.
func (c Content) Empty() bool {
	switch c.Kind {
	case ContentText:
		return c.Text == ""
	case ContentStructured:
		return len(c.Structured) == 0
	case ContentBinary:
		return len(c.Binary) == 0 && c.Reference == ""
	}
	return true
}

// Request — денормализованное текущее состояние одной заявки.
// Владелец персистентного состояния — Ledger; все остальные компоненты
// держат только транзиентные ссылки в рамках одного прохода пайплайна.
type Request struct {
	ID        string        `json:"request_id"`
	CreatedAt time.Time     `json:"created_at"`
	Status    RequestStatus `json:"status"`

	InputSource SourceHint `json:"input_source,omitempty"`
	Input       *Content   `json:"input,omitempty"`

	Classification *Classification   `json:"classification,omitempty"`
	Processing     *ExtractionResult `json:"processing_result,omitempty"`
	Action         *ActionDecision   `json:"action_result,omitempty"`

	Error string `json:"error,omitempty"`

	// Traces — упорядоченный по времени журнал решений. Append-only.
	Traces []TraceEntry `json:"traces"`
}

// TraceEntry — одна запись аудита: что сделала стадия и почему.
// Конкатенация всех записей заявки восстанавливает полный нарратив решения.
type TraceEntry struct {
	Timestamp time.Time      `json:"timestamp"`
	Stage     string         `json:"stage"`
	Action    string         `json:"action"`
	Payload   map[string]any `json:"payload"`
}
