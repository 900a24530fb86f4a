package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"rtc-service/internal/directory"
	"rtc-service/internal/models"
	"rtc-service/internal/repositories"
)

type MessageRepositoryMock struct {
	mock.Mock
}

func (m *MessageRepositoryMock) CreateMessage(ctx context.Context, kind models.TargetKind, targetID, senderID, content string, media []string, replyTo *int) (models.Message, error) {
	args := m.Called(ctx, kind, targetID, senderID, content, media, replyTo)
	var msg models.Message
	if val := args.Get(0); val != nil {
		msg = val.(models.Message)
	}
	return msg, args.Error(1)
}

func (m *MessageRepositoryMock) GetMessage(ctx context.Context, messageID int) (models.Message, error) {
	args := m.Called(ctx, messageID)
	var msg models.Message
	if val := args.Get(0); val != nil {
		msg = val.(models.Message)
	}
	return msg, args.Error(1)
}

func (m *MessageRepositoryMock) ListMessages(ctx context.Context, kind models.TargetKind, targetID string, beforeID *int, limit int) ([]models.Message, error) {
	args := m.Called(ctx, kind, targetID, beforeID, limit)
	var msgs []models.Message
	if val := args.Get(0); val != nil {
		msgs = val.([]models.Message)
	}
	return msgs, args.Error(1)
}

func (m *MessageRepositoryMock) ListPinned(ctx context.Context, kind models.TargetKind, targetID string) ([]models.Message, error) {
	args := m.Called(ctx, kind, targetID)
	var msgs []models.Message
	if val := args.Get(0); val != nil {
		msgs = val.([]models.Message)
	}
	return msgs, args.Error(1)
}

func (m *MessageRepositoryMock) EditMessage(ctx context.Context, messageID int, content string) (models.Message, error) {
	args := m.Called(ctx, messageID, content)
	var msg models.Message
	if val := args.Get(0); val != nil {
		msg = val.(models.Message)
	}
	return msg, args.Error(1)
}

func (m *MessageRepositoryMock) SoftDeleteMessage(ctx context.Context, messageID int) error {
	args := m.Called(ctx, messageID)
	return args.Error(0)
}

func (m *MessageRepositoryMock) TogglePin(ctx context.Context, messageID int) (models.Message, error) {
	args := m.Called(ctx, messageID)
	var msg models.Message
	if val := args.Get(0); val != nil {
		msg = val.(models.Message)
	}
	return msg, args.Error(1)
}

type ReceiptRepositoryMock struct {
	mock.Mock
}

func (m *ReceiptRepositoryMock) MarkDelivered(ctx context.Context, messageID int, userID string) (models.Receipt, error) {
	args := m.Called(ctx, messageID, userID)
	var receipt models.Receipt
	if val := args.Get(0); val != nil {
		receipt = val.(models.Receipt)
	}
	return receipt, args.Error(1)
}

func (m *ReceiptRepositoryMock) MarkRead(ctx context.Context, messageID int, userID string) (models.Receipt, error) {
	args := m.Called(ctx, messageID, userID)
	var receipt models.Receipt
	if val := args.Get(0); val != nil {
		receipt = val.(models.Receipt)
	}
	return receipt, args.Error(1)
}

func (m *ReceiptRepositoryMock) ListReceipts(ctx context.Context, messageID int) ([]models.Receipt, error) {
	args := m.Called(ctx, messageID)
	var receipts []models.Receipt
	if val := args.Get(0); val != nil {
		receipts = val.([]models.Receipt)
	}
	return receipts, args.Error(1)
}

type ReactionRepositoryMock struct {
	mock.Mock
}

func (m *ReactionRepositoryMock) AddReaction(ctx context.Context, messageID int, userID, emoji string) error {
	args := m.Called(ctx, messageID, userID, emoji)
	return args.Error(0)
}

func (m *ReactionRepositoryMock) RemoveReaction(ctx context.Context, messageID int, userID, emoji string) error {
	args := m.Called(ctx, messageID, userID, emoji)
	return args.Error(0)
}

func (m *ReactionRepositoryMock) ListReactions(ctx context.Context, messageID int) ([]models.ReactionGroup, error) {
	args := m.Called(ctx, messageID)
	var groups []models.ReactionGroup
	if val := args.Get(0); val != nil {
		groups = val.([]models.ReactionGroup)
	}
	return groups, args.Error(1)
}

type TokenValidatorMock struct {
	mock.Mock
}

func (m *TokenValidatorMock) Validate(ctx context.Context, token string) (string, error) {
	args := m.Called(ctx, token)
	return args.String(0), args.Error(1)
}

type ProfileDirectoryMock struct {
	mock.Mock
}

func (m *ProfileDirectoryMock) BulkProfiles(ctx context.Context, ids []string) ([]directory.Profile, error) {
	args := m.Called(ctx, ids)
	var profiles []directory.Profile
	if val := args.Get(0); val != nil {
		profiles = val.([]directory.Profile)
	}
	return profiles, args.Error(1)
}

type RecipientListerMock struct {
	mock.Mock
}

func (m *RecipientListerMock) ListRecipients(ctx context.Context, kind models.TargetKind, targetID string) ([]string, error) {
	args := m.Called(ctx, kind, targetID)
	var ids []string
	if val := args.Get(0); val != nil {
		ids = val.([]string)
	}
	return ids, args.Error(1)
}

type CommunityAuthorizerMock struct {
	mock.Mock
}

func (m *CommunityAuthorizerMock) IsCommunityAdmin(ctx context.Context, kind models.TargetKind, targetID, userID string) (bool, error) {
	args := m.Called(ctx, kind, targetID, userID)
	return args.Bool(0), args.Error(1)
}

var _ repositories.MessageRepository = (*MessageRepositoryMock)(nil)
var _ repositories.ReceiptRepository = (*ReceiptRepositoryMock)(nil)
var _ repositories.ReactionRepository = (*ReactionRepositoryMock)(nil)
var _ directory.TokenValidator = (*TokenValidatorMock)(nil)
var _ directory.ProfileDirectory = (*ProfileDirectoryMock)(nil)
var _ directory.RecipientLister = (*RecipientListerMock)(nil)
var _ directory.CommunityAuthorizer = (*CommunityAuthorizerMock)(nil)
