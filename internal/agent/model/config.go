package model

import "time"

// ================ Config ================
type ConversationConfig struct {
	TTL              time.Duration `envconfig:"CONVERSATION_TTL" default:"1h"`
	HistoryMax       int           `envconfig:"CONVERSATION_HISTORY_MAX" default:"50"`
	ModelTurns       int           `envconfig:"CONVERSATION_MODEL_TURNS" default:"10"`
	MaxMessageLength int           `envconfig:"CONVERSATION_MAX_MESSAGE_LENGTH" default:"1000"`
	RepeatWindow     time.Duration `envconfig:"CONVERSATION_REPEAT_WINDOW" default:"30s"`
	Backend          string        `envconfig:"STATE_BACKEND" default:"memory"`
}

type ToolModelConfig struct {
	Model       string  `envconfig:"TOOL_MODEL" default:"gemini-2.5-flash"`
	MaxTokens   int     `envconfig:"TOOL_MAX_TOKENS" default:"1000"`
	Temperature float32 `envconfig:"TOOL_TEMPERATURE" default:"0.7"`
}

type ReplyModelConfig struct {
	Model       string  `envconfig:"REPLY_MODEL" default:"gemini-2.5-flash"`
	MaxTokens   int     `envconfig:"REPLY_MAX_TOKENS" default:"1000"`
	Temperature float32 `envconfig:"REPLY_TEMPERATURE" default:"0.7"`
}

type PromptConfig struct {
	RestaurantName string `envconfig:"PROMPT_RESTAURANT_NAME" default:"GastroBot"`
	Timezone       string `envconfig:"PROMPT_TIMEZONE" default:"Europe/Madrid"`
}
