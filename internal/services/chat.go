package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/casaviva/decora-backend/internal/logger"
	"github.com/casaviva/decora-backend/internal/repos"
	"github.com/casaviva/decora-backend/internal/types"
)

// ChatService keeps the project's conversational transcript: what the user
// submitted and what the assistant reported back. The pipeline writes
// assistant messages; handlers write user messages.
type ChatService interface {
	RecordUserMessage(ctx context.Context, userID, projectID uuid.UUID, content string) (*types.ChatMessage, error)
	RecordAssistantMessage(ctx context.Context, userID, projectID uuid.UUID, content string) (*types.ChatMessage, error)
	Transcript(ctx context.Context, projectID uuid.UUID) ([]*types.ChatMessage, error)
	FormatSuggestions(items []*types.DetectedItem) string
}

type chatService struct {
	log      *logger.Logger
	messages repos.ChatMessageRepo
	notifier DesignNotifier
}

func NewChatService(log *logger.Logger, messages repos.ChatMessageRepo, notifier DesignNotifier) ChatService {
	return &chatService{
		log:      log.With("service", "ChatService"),
		messages: messages,
		notifier: notifier,
	}
}

func (s *chatService) RecordUserMessage(ctx context.Context, userID, projectID uuid.UUID, content string) (*types.ChatMessage, error) {
	return s.record(ctx, userID, projectID, types.ChatRoleUser, content)
}

func (s *chatService) RecordAssistantMessage(ctx context.Context, userID, projectID uuid.UUID, content string) (*types.ChatMessage, error) {
	return s.record(ctx, userID, projectID, types.ChatRoleAssistant, content)
}

func (s *chatService) record(ctx context.Context, userID, projectID uuid.UUID, role, content string) (*types.ChatMessage, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, fmt.Errorf("empty chat message")
	}
	msg, err := s.messages.Create(ctx, nil, &types.ChatMessage{
		ProjectID: projectID,
		Role:      role,
		Content:   content,
	})
	if err != nil {
		return nil, fmt.Errorf("persist chat message: %w", err)
	}
	s.notifier.ChatMessage(userID, msg)
	return msg, nil
}

func (s *chatService) Transcript(ctx context.Context, projectID uuid.UUID) ([]*types.ChatMessage, error) {
	return s.messages.ListByProject(ctx, nil, projectID)
}

// FormatSuggestions renders the analysis outcome as one assistant message.
// Items that matched nothing are reported too; silence would read as a bug.
func (s *chatService) FormatSuggestions(items []*types.DetectedItem) string {
	if len(items) == 0 {
		return "I looked at your photo but could not identify any furniture to replace."
	}

	var b strings.Builder
	b.WriteString("Here is what I found in your photo:\n")
	for _, item := range items {
		slots, err := DecodeSuggestions(item.Suggestions)
		if err != nil || len(slots) == 0 {
			fmt.Fprintf(&b, "- %s: no matching product found in your catalog\n", item.Name)
			continue
		}
		names := make([]string, 0, len(slots))
		for _, slot := range slots {
			names = append(names, slot.ProductName)
		}
		fmt.Fprintf(&b, "- %s: %s\n", item.Name, strings.Join(names, ", "))
	}
	b.WriteString("Pick one suggestion per item and I will render your new room.")
	return b.String()
}
