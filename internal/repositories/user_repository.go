package repositories

import (
	"context"

	"github.com/SAP-F-2025/learning-progress-service/internal/models"
)

// UserRepository reads users from the identity provider. This service never
// writes user data.
type UserRepository interface {
	GetByID(ctx context.Context, id string) (*models.User, error)
	GetByIDs(ctx context.Context, ids []string) ([]*models.User, error)
	ExistsByID(ctx context.Context, id string) (bool, error)
	HasRole(ctx context.Context, id string, role models.UserRole) (bool, error)
}
