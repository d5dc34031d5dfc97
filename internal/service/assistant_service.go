package service

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"unicode"

	"github.com/google/uuid"
	"github.com/okdriver/okdriver-backend/internal/domain"
	"github.com/okdriver/okdriver-backend/internal/llm"
	"github.com/okdriver/okdriver-backend/pkg/logger"
)

// ChatCompleter модель, которая отвечает на диалог
type ChatCompleter interface {
	Configured() bool
	Complete(ctx context.Context, req llm.CompletionRequest) (string, error)
}

const (
	LanguageEnglish  = "english"
	LanguageHinglish = "hinglish"

	assistantHistoryTurns = 6
	assistantMaxTokens    = 150
	assistantMaxWords     = 100
	assistantFallback     = "Yo bro! Main yahan hun tumhari help ke liye. Bolo kya chahiye?"
)

type AssistantTurn struct {
	Role    string `json:"role" validate:"required,oneof=user assistant"`
	Content string `json:"content" validate:"required,max=2000"`
}

type AssistantInput struct {
	Message string          `json:"message" validate:"required,max=2000"`
	History []AssistantTurn `json:"history,omitempty" validate:"max=20,dive"`
}

type AssistantReply struct {
	Reply    string `json:"reply"`
	Language string `json:"language"`
}

const assistantPrompt = `You are OkDriver, a friendly assistant for drivers on the road.

Call the user "bro" now and then, in a supportive way. Use casual Hindi-English (Hinglish) and stay positive.

You help with traffic and routes, fuel and parking, vehicle care and breakdowns, food and rest stops, budget tips, music and light conversation on long drives, and emergencies.

Keep every answer between 25 and 50 words so it can be read at a glance. Be solution-oriented. If you do not know something, say so and offer an alternative.

Safety comes first: if the driver sounds tired or sleepy, tell them to stop and rest right away.`

// AssistantService голосовой помощник водителя без синтеза речи
type AssistantService struct {
	model ChatCompleter
	log   *logger.Logger
}

func NewAssistantService(model ChatCompleter, log *logger.Logger) *AssistantService {
	return &AssistantService{model: model, log: log.Named("assistant")}
}

func (s *AssistantService) Chat(ctx context.Context, driverID uuid.UUID, in AssistantInput) (*AssistantReply, error) {
	message := strings.TrimSpace(in.Message)
	if message == "" {
		return nil, domain.Validation("message is required")
	}
	if s.model == nil || !s.model.Configured() {
		return nil, domain.Internal("assistant not configured", llm.ErrNotConfigured)
	}

	language := DetectLanguage(message)
	messages := []llm.Message{{Role: llm.RoleSystem, Content: SystemPrompt(language)}}

	history := in.History
	if len(history) > assistantHistoryTurns-1 {
		history = history[len(history)-(assistantHistoryTurns-1):]
	}
	for _, turn := range history {
		messages = append(messages, llm.Message{Role: turn.Role, Content: turn.Content})
	}
	messages = append(messages, llm.Message{Role: llm.RoleUser, Content: message})

	raw, err := s.model.Complete(ctx, llm.CompletionRequest{
		Messages:    messages,
		MaxTokens:   assistantMaxTokens,
		Temperature: 0.8,
		Stop:        []string{"<think>", "<thinking>"},
	})
	if err != nil {
		if errors.Is(err, llm.ErrNotConfigured) {
			return nil, domain.Internal("assistant not configured", err)
		}
		s.log.Errorw("Assistant completion failed", "driverID", driverID, "error", err)
		return nil, err
	}

	reply := CleanReply(raw)
	s.log.Debugw("Assistant replied", "driverID", driverID, "language", language, "words", len(strings.Fields(reply)))
	return &AssistantReply{Reply: reply, Language: language}, nil
}

// SystemPrompt для английского убирает просьбу писать на хинглише
func SystemPrompt(language string) string {
	if language == LanguageEnglish {
		return strings.ReplaceAll(assistantPrompt, "Hindi-English (Hinglish)", "English")
	}
	return assistantPrompt
}

var hinglishWords = map[string]struct{}{
	"hai": {}, "ka": {}, "ki": {}, "ko": {}, "main": {}, "mein": {}, "kya": {}, "kaise": {},
	"kyun": {}, "bhai": {}, "yaar": {}, "acha": {}, "theek": {}, "ho": {}, "karo": {}, "kar": {},
	"na": {}, "nahi": {}, "haan": {}, "tum": {}, "tumhara": {}, "mera": {}, "tera": {}, "bro": {},
}

// DetectLanguage деванагари или хинглиш-слова дают hinglish,
// больше 70% латинских слов дают english
func DetectLanguage(text string) string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return LanguageHinglish
	}

	latin := 0
	for _, w := range words {
		for _, r := range w {
			if unicode.Is(unicode.Devanagari, r) {
				return LanguageHinglish
			}
		}
		token := strings.ToLower(strings.TrimFunc(w, func(r rune) bool { return !unicode.IsLetter(r) }))
		if _, ok := hinglishWords[token]; ok {
			return LanguageHinglish
		}
		if isLatinWord(token) {
			latin++
		}
	}

	if float64(latin)/float64(len(words)) > 0.7 {
		return LanguageEnglish
	}
	return LanguageHinglish
}

func isLatinWord(w string) bool {
	if w == "" {
		return false
	}
	for _, r := range w {
		if !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z') {
			return false
		}
	}
	return true
}

var (
	thinkBlock     = regexp.MustCompile(`(?is)<think(?:ing)?>.*?</think(?:ing)?>`)
	extraBlank     = regexp.MustCompile(`\n{3,}`)
	reasoningLines = []string{"**thinking**", "alright,", "first,", "i need to", "let me"}
)

// CleanReply убирает рассуждения модели и обрезает ответ до 100 слов
func CleanReply(raw string) string {
	cleaned := thinkBlock.ReplaceAllString(raw, "")

	lines := strings.Split(cleaned, "\n")
	kept := lines[:0]
	for i, line := range lines {
		if i > 0 && isReasoningLine(line) {
			continue
		}
		kept = append(kept, line)
	}
	cleaned = strings.TrimSpace(extraBlank.ReplaceAllString(strings.Join(kept, "\n"), "\n\n"))

	if words := strings.Fields(cleaned); len(words) > assistantMaxWords {
		cleaned = strings.Join(words[:assistantMaxWords], " ")
		if !strings.ContainsAny(cleaned[len(cleaned)-1:], ".!?") {
			cleaned += "."
		}
	}

	if len([]rune(cleaned)) < 3 {
		return assistantFallback
	}
	return cleaned
}

func isReasoningLine(line string) bool {
	trimmed := strings.ToLower(strings.TrimSpace(line))
	for _, prefix := range reasoningLines {
		if strings.HasPrefix(trimmed, prefix) {
			return true
		}
	}
	return false
}
