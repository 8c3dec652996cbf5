package repository

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/noah-isme/studyquest-api/internal/models"
)

// GroupWithCount is a chat group annotated with its member count.
type GroupWithCount struct {
	models.ChatGroup
	MemberCount int64
}

// GroupRepository reads and writes chat groups and their memberships.
type GroupRepository interface {
	ListByMember(ctx context.Context, userID string) ([]GroupWithCount, error)
	FindByID(ctx context.Context, id string) (GroupWithCount, error)
	Create(ctx context.Context, group *models.ChatGroup, ownerID string) error
	AddMember(ctx context.Context, member models.GroupMember) error
	RemoveMember(ctx context.Context, groupID, userID string) error
	IsMember(ctx context.Context, groupID, userID string) (bool, error)
}

type groupRepository struct {
	db *gorm.DB
}

// NewGroupRepository constructs a GORM-backed group repository.
func NewGroupRepository(db *gorm.DB) GroupRepository {
	return &groupRepository{db: db}
}

const memberCountSelect = "chat_groups.*, (SELECT COUNT(*) FROM group_members counted WHERE counted.group_id = chat_groups.id) AS member_count"

func (r *groupRepository) ListByMember(ctx context.Context, userID string) ([]GroupWithCount, error) {
	var groups []GroupWithCount
	err := r.db.WithContext(ctx).
		Model(&models.ChatGroup{}).
		Select(memberCountSelect).
		Joins("JOIN group_members ON group_members.group_id = chat_groups.id AND group_members.user_id = ?", userID).
		Order("chat_groups.name ASC, chat_groups.id ASC").
		Scan(&groups).Error
	if err != nil {
		return nil, err
	}

	return groups, nil
}

func (r *groupRepository) FindByID(ctx context.Context, id string) (GroupWithCount, error) {
	var groups []GroupWithCount
	err := r.db.WithContext(ctx).
		Model(&models.ChatGroup{}).
		Select(memberCountSelect).
		Where("chat_groups.id = ?", id).
		Limit(1).
		Scan(&groups).Error
	if err != nil {
		return GroupWithCount{}, err
	}
	if len(groups) == 0 {
		return GroupWithCount{}, gorm.ErrRecordNotFound
	}

	return groups[0], nil
}

func (r *groupRepository) Create(ctx context.Context, group *models.ChatGroup, ownerID string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(group).Error; err != nil {
			return err
		}

		owner := models.GroupMember{
			GroupID:  group.ID,
			UserID:   ownerID,
			Role:     models.GroupRoleOwner,
			JoinedAt: time.Now().UTC(),
		}
		return tx.Create(&owner).Error
	})
}

func (r *groupRepository) AddMember(ctx context.Context, member models.GroupMember) error {
	if member.JoinedAt.IsZero() {
		member.JoinedAt = time.Now().UTC()
	}
	if member.Role == "" {
		member.Role = models.GroupRoleMember
	}

	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&member).Error
}

func (r *groupRepository) RemoveMember(ctx context.Context, groupID, userID string) error {
	return r.db.WithContext(ctx).
		Where("group_id = ? AND user_id = ?", groupID, userID).
		Delete(&models.GroupMember{}).Error
}

func (r *groupRepository) IsMember(ctx context.Context, groupID, userID string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.GroupMember{}).
		Where("group_id = ? AND user_id = ?", groupID, userID).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}
