package services

import (
	"context"

	"kindred_server/utils"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// UserProfilesTable holds profiles owned by the (out-of-scope) profile
// subsystem. This service only reads existence and the active flag.
const UserProfilesTable = "UserProfiles"

// DynamoDirectory answers UserDirectory lookups from the profile table.
type DynamoDirectory struct {
	svc *DynamoService
}

// NewDynamoDirectory wraps a DynamoService as the user directory.
func NewDynamoDirectory(svc *DynamoService) *DynamoDirectory {
	return &DynamoDirectory{svc: svc}
}

func (d *DynamoDirectory) profile(ctx context.Context, userID string) (map[string]types.AttributeValue, error) {
	return d.svc.GetItem(ctx, UserProfilesTable, map[string]types.AttributeValue{
		"userId": &types.AttributeValueMemberS{Value: userID},
	})
}

func (d *DynamoDirectory) Exists(ctx context.Context, userID string) (bool, error) {
	item, err := d.profile(ctx, userID)
	if err != nil {
		return false, err
	}
	return item != nil, nil
}

func (d *DynamoDirectory) IsActive(ctx context.Context, userID string) (bool, error) {
	item, err := d.profile(ctx, userID)
	if err != nil {
		return false, err
	}
	if item == nil {
		return false, nil
	}
	return utils.ExtractBool(item, "isActive"), nil
}
