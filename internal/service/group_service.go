package service

import (
	"context"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/noah-isme/studyquest-api/internal/dto"
	"github.com/noah-isme/studyquest-api/internal/models"
	"github.com/noah-isme/studyquest-api/internal/repository"
)

var (
	// ErrGroupNotFound indicates the requested chat group does not exist.
	ErrGroupNotFound = errors.New("chat group not found")
	// ErrGroupPrivate indicates a join attempt on an invite-only group.
	ErrGroupPrivate = errors.New("chat group is private")
	// ErrGroupNameRequired indicates a group create request without a usable name.
	ErrGroupNameRequired = errors.New("group name is required")
	// ErrNotGroupMember indicates the user does not belong to the group.
	ErrNotGroupMember = errors.New("you are not a member of this group")
)

// GroupDirectoryWarning is surfaced to the client when the directory could not be read.
const GroupDirectoryWarning = "could not load your groups, showing an empty list"

// GroupService manages chat groups and memberships.
type GroupService interface {
	ListForUser(ctx context.Context, userID string) dto.GroupDirectoryResponse
	Get(ctx context.Context, groupID string) (dto.ChatGroupResponse, error)
	Create(ctx context.Context, creatorID string, payload dto.GroupCreateRequest) (dto.ChatGroupResponse, error)
	Join(ctx context.Context, groupID, userID string) (dto.ChatGroupResponse, error)
	Leave(ctx context.Context, groupID, userID string) error
	IsMember(ctx context.Context, groupID, userID string) (bool, error)
}

type groupService struct {
	repo      repository.GroupRepository
	validator *validator.Validate
	logger    zerolog.Logger
}

// NewGroupService constructs a group service.
func NewGroupService(repo repository.GroupRepository, validate *validator.Validate, logger zerolog.Logger) GroupService {
	return &groupService{
		repo:      repo,
		validator: validate,
		logger:    logger.With().Str("component", "group_service").Logger(),
	}
}

// ListForUser never fails: repository errors yield an empty directory and a warning.
func (s *groupService) ListForUser(ctx context.Context, userID string) dto.GroupDirectoryResponse {
	groups, err := s.repo.ListByMember(ctx, userID)
	if err != nil {
		s.logger.Warn().Err(err).Str("user_id", userID).Msg("failed to load group directory")
		return dto.GroupDirectoryResponse{Groups: []dto.ChatGroupResponse{}, Warning: GroupDirectoryWarning}
	}

	response := dto.GroupDirectoryResponse{Groups: make([]dto.ChatGroupResponse, 0, len(groups))}
	for _, group := range groups {
		response.Groups = append(response.Groups, dto.NewChatGroupResponse(group.ChatGroup, group.MemberCount))
	}
	return response
}

func (s *groupService) Get(ctx context.Context, groupID string) (dto.ChatGroupResponse, error) {
	group, err := s.repo.FindByID(ctx, strings.TrimSpace(groupID))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.ChatGroupResponse{}, ErrGroupNotFound
		}
		return dto.ChatGroupResponse{}, err
	}

	return dto.NewChatGroupResponse(group.ChatGroup, group.MemberCount), nil
}

func (s *groupService) Create(ctx context.Context, creatorID string, payload dto.GroupCreateRequest) (dto.ChatGroupResponse, error) {
	payload.Name = strings.TrimSpace(payload.Name)
	payload.Description = strings.TrimSpace(payload.Description)
	if payload.Name == "" {
		return dto.ChatGroupResponse{}, ErrGroupNameRequired
	}
	if err := s.validator.Struct(payload); err != nil {
		return dto.ChatGroupResponse{}, err
	}

	group := models.ChatGroup{
		Name:        payload.Name,
		Description: payload.Description,
		IsPrivate:   payload.IsPrivate,
		CreatedBy:   creatorID,
	}
	if err := s.repo.Create(ctx, &group, creatorID); err != nil {
		return dto.ChatGroupResponse{}, err
	}

	s.logger.Info().Str("group_id", group.ID).Str("user_id", creatorID).Msg("chat group created")
	return dto.NewChatGroupResponse(group, 1), nil
}

func (s *groupService) Join(ctx context.Context, groupID, userID string) (dto.ChatGroupResponse, error) {
	group, err := s.Get(ctx, groupID)
	if err != nil {
		return dto.ChatGroupResponse{}, err
	}

	member, err := s.repo.IsMember(ctx, group.ID, userID)
	if err != nil {
		return dto.ChatGroupResponse{}, err
	}
	if member {
		return group, nil
	}
	if group.IsPrivate {
		return dto.ChatGroupResponse{}, ErrGroupPrivate
	}

	if err := s.repo.AddMember(ctx, models.GroupMember{GroupID: group.ID, UserID: userID, Role: models.GroupRoleMember}); err != nil {
		return dto.ChatGroupResponse{}, err
	}

	return s.Get(ctx, group.ID)
}

func (s *groupService) Leave(ctx context.Context, groupID, userID string) error {
	if _, err := s.Get(ctx, groupID); err != nil {
		return err
	}
	return s.repo.RemoveMember(ctx, strings.TrimSpace(groupID), userID)
}

func (s *groupService) IsMember(ctx context.Context, groupID, userID string) (bool, error) {
	return s.repo.IsMember(ctx, strings.TrimSpace(groupID), userID)
}
