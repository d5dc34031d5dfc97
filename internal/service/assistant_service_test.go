package service

import (
	"context"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/okdriver/okdriver-backend/internal/domain"
	"github.com/okdriver/okdriver-backend/internal/llm"
	"github.com/okdriver/okdriver-backend/pkg/logger"
)

type stubCompleter struct {
	configured bool
	reply      string
	err        error
	requests   []llm.CompletionRequest
}

func (c *stubCompleter) Configured() bool { return c.configured }

func (c *stubCompleter) Complete(ctx context.Context, req llm.CompletionRequest) (string, error) {
	c.requests = append(c.requests, req)
	return c.reply, c.err
}

func TestDetectLanguage(t *testing.T) {
	tests := []struct {
		text string
		want string
	}{
		{"Where is the nearest petrol pump?", LanguageEnglish},
		{"Bhai traffic kaisa hai aage", LanguageHinglish},
		{"रास्ता बताओ", LanguageHinglish},
		{"NH48 toll 2 km 150 rupees", LanguageHinglish},
		{"", LanguageHinglish},
		{"Is the highway clear", LanguageEnglish},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			if got := DetectLanguage(tt.text); got != tt.want {
				t.Errorf("DetectLanguage(%q) = %s, want %s", tt.text, got, tt.want)
			}
		})
	}
}

func TestCleanReply(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{
			name: "think block removed",
			raw:  "<think>the user wants fuel</think>Bro, 2 km aage HP pump hai.",
			want: "Bro, 2 km aage HP pump hai.",
		},
		{
			name: "reasoning lines removed",
			raw:  "Take the left exit.\nLet me check the map.\nAlright, done.\nThen straight for 1 km.",
			want: "Take the left exit.\nThen straight for 1 km.",
		},
		{
			name: "blank lines collapsed",
			raw:  "Rest now.\n\n\n\nDrive safe.",
			want: "Rest now.\n\nDrive safe.",
		},
		{
			name: "empty falls back",
			raw:  "<thinking>nothing useful</thinking> ",
			want: assistantFallback,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CleanReply(tt.raw); got != tt.want {
				t.Errorf("CleanReply() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestCleanReplyCapsWords(t *testing.T) {
	got := CleanReply(strings.Repeat("word ", 150))
	words := strings.Fields(got)
	if len(words) != assistantMaxWords {
		t.Fatalf("words = %d, want %d", len(words), assistantMaxWords)
	}
	if !strings.HasSuffix(got, ".") {
		t.Fatalf("truncated reply must end with a period: %q", got[len(got)-10:])
	}
}

func TestAssistantChat(t *testing.T) {
	model := &stubCompleter{configured: true, reply: "<think>hmm</think>Haan bro, 5 km pe dhaba hai. Chai pi lo!"}
	svc := NewAssistantService(model, logger.NewNop())

	history := make([]AssistantTurn, 0, 8)
	for i := 0; i < 8; i++ {
		role := llm.RoleUser
		if i%2 == 1 {
			role = llm.RoleAssistant
		}
		history = append(history, AssistantTurn{Role: role, Content: "turn"})
	}

	reply, err := svc.Chat(context.Background(), uuid.New(), AssistantInput{Message: "Bhai dhaba kahan hai", History: history})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if reply.Reply != "Haan bro, 5 km pe dhaba hai. Chai pi lo!" || reply.Language != LanguageHinglish {
		t.Fatalf("reply = %+v", reply)
	}

	req := model.requests[0]
	// системный промпт, пять последних реплик и сообщение
	if len(req.Messages) != 7 {
		t.Fatalf("messages = %d, want 7", len(req.Messages))
	}
	if req.Messages[0].Role != llm.RoleSystem || req.Messages[6].Content != "Bhai dhaba kahan hai" {
		t.Fatalf("messages = %+v", req.Messages)
	}
	if req.MaxTokens != assistantMaxTokens {
		t.Fatalf("max tokens = %d", req.MaxTokens)
	}
}

func TestAssistantEnglishPrompt(t *testing.T) {
	model := &stubCompleter{configured: true, reply: "The highway is clear for the next 10 km."}
	svc := NewAssistantService(model, logger.NewNop())

	reply, err := svc.Chat(context.Background(), uuid.New(), AssistantInput{Message: "Is the highway clear"})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if reply.Language != LanguageEnglish {
		t.Fatalf("language = %s", reply.Language)
	}
	if strings.Contains(model.requests[0].Messages[0].Content, "Hinglish") {
		t.Fatal("english prompt must not ask for Hinglish")
	}
}

func TestAssistantNotConfigured(t *testing.T) {
	svc := NewAssistantService(&stubCompleter{}, logger.NewNop())
	_, err := svc.Chat(context.Background(), uuid.New(), AssistantInput{Message: "hello"})
	if domain.KindOf(err) != domain.KindInternal {
		t.Fatalf("err = %v, want internal", err)
	}

	svc = NewAssistantService(&stubCompleter{configured: true}, logger.NewNop())
	if _, err := svc.Chat(context.Background(), uuid.New(), AssistantInput{Message: "  "}); domain.KindOf(err) != domain.KindValidation {
		t.Fatalf("blank message: err = %v", err)
	}
}
