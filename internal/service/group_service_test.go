package service

import (
	"context"
	"errors"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/studyquest-api/internal/dto"
	"github.com/noah-isme/studyquest-api/internal/models"
	"github.com/noah-isme/studyquest-api/internal/repository"
)

type failingGroupRepo struct {
	calls int
}

func (r *failingGroupRepo) ListByMember(context.Context, string) ([]repository.GroupWithCount, error) {
	r.calls++
	return nil, errors.New("connection refused")
}

func (r *failingGroupRepo) FindByID(context.Context, string) (repository.GroupWithCount, error) {
	r.calls++
	return repository.GroupWithCount{}, errors.New("connection refused")
}

func (r *failingGroupRepo) Create(context.Context, *models.ChatGroup, string) error {
	r.calls++
	return errors.New("connection refused")
}

func (r *failingGroupRepo) AddMember(context.Context, models.GroupMember) error {
	r.calls++
	return errors.New("connection refused")
}

func (r *failingGroupRepo) RemoveMember(context.Context, string, string) error {
	r.calls++
	return errors.New("connection refused")
}

func (r *failingGroupRepo) IsMember(context.Context, string, string) (bool, error) {
	r.calls++
	return false, errors.New("connection refused")
}

func TestGroupServiceListForUserFailsSoft(t *testing.T) {
	repo := &failingGroupRepo{}
	svc := NewGroupService(repo, validator.New(), zerolog.Nop())

	directory := svc.ListForUser(context.Background(), "user-1")
	require.NotNil(t, directory.Groups)
	require.Empty(t, directory.Groups)
	require.Equal(t, GroupDirectoryWarning, directory.Warning)
}

func TestGroupServiceCreateRejectsBlankNameWithoutStoreCall(t *testing.T) {
	repo := &failingGroupRepo{}
	svc := NewGroupService(repo, validator.New(), zerolog.Nop())

	_, err := svc.Create(context.Background(), "user-1", dto.GroupCreateRequest{Name: "   "})
	require.ErrorIs(t, err, ErrGroupNameRequired)
	require.Zero(t, repo.calls)
}

func TestGroupServiceDirectoryOrderedWithCounts(t *testing.T) {
	fixture := newChatFixture(t)
	ctx := context.Background()

	fixture.createGroup(t, "Zoology", "user-1")
	fixture.createGroup(t, "Algebra", "user-1", "user-2")

	directory := fixture.groups.ListForUser(ctx, "user-1")
	require.Empty(t, directory.Warning)
	require.Len(t, directory.Groups, 2)
	require.Equal(t, "Algebra", directory.Groups[0].Name)
	require.Equal(t, int64(2), directory.Groups[0].MemberCount)
	require.Equal(t, "Zoology", directory.Groups[1].Name)

	again := fixture.groups.ListForUser(ctx, "user-1")
	require.Equal(t, directory, again)
}

func TestGroupServiceJoinPrivateGroupRejected(t *testing.T) {
	fixture := newChatFixture(t)
	ctx := context.Background()

	group, err := fixture.groups.Create(ctx, "owner", dto.GroupCreateRequest{Name: "Secret", IsPrivate: true})
	require.NoError(t, err)
	require.Equal(t, int64(1), group.MemberCount)

	_, err = fixture.groups.Join(ctx, group.ID, "stranger")
	require.ErrorIs(t, err, ErrGroupPrivate)

	joined, err := fixture.groups.Join(ctx, group.ID, "owner")
	require.NoError(t, err)
	require.Equal(t, int64(1), joined.MemberCount)
}

func TestGroupServiceJoinAndLeave(t *testing.T) {
	fixture := newChatFixture(t)
	ctx := context.Background()
	group := fixture.createGroup(t, "History", "owner")

	joined, err := fixture.groups.Join(ctx, group.ID, "user-2")
	require.NoError(t, err)
	require.Equal(t, int64(2), joined.MemberCount)

	require.NoError(t, fixture.groups.Leave(ctx, group.ID, "user-2"))
	member, err := fixture.groups.IsMember(ctx, group.ID, "user-2")
	require.NoError(t, err)
	require.False(t, member)

	_, err = fixture.groups.Join(ctx, "missing", "user-2")
	require.ErrorIs(t, err, ErrGroupNotFound)
}
