package models

import "time"

// TelegramConfig holds Telegram bot configuration.
type TelegramConfig struct {
	BotToken       string
	ChatID         int64
	APIURL         string
	MaxRetries     int           // attempts per file, including the first
	RetryDelay     time.Duration // fixed delay between attempts
	RequestTimeout time.Duration
}

// TelegramResult holds the result of a Telegram send.
type TelegramResult struct {
	MessageSent bool
	Attempts    int
	TooLarge    bool
	Error       error
}
