package users

import (
	"strings"
	"time"

	"github.com/angelmondragon/ohya-backend/pkg/db/models"
	"github.com/angelmondragon/ohya-backend/pkg/enums"
)

// UserDTO is the transport shape that omits sensitive credentials.
type UserDTO struct {
	ID        int64      `json:"id"`
	Email     string     `json:"email"`
	Name      string     `json:"name"`
	Phone     *string    `json:"phone,omitempty"`
	Address   *string    `json:"address,omitempty"`
	Role      enums.Role `json:"role"`
	CreatedAt time.Time  `json:"createdAt"`
}

// CreateUserDTO holds the data required by the repo to persist a new user.
type CreateUserDTO struct {
	Email        string
	PasswordHash string
	Name         string
	Phone        *string
	Address      *string
	IsAdmin      bool
}

// NormalizeEmail lowercases and trims an address before lookup or storage.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func FromModel(u *models.User) *UserDTO {
	if u == nil {
		return nil
	}
	return &UserDTO{
		ID:        u.ID,
		Email:     u.Email,
		Name:      u.Name,
		Phone:     u.Phone,
		Address:   u.Address,
		Role:      enums.RoleFromAdminFlag(u.IsAdmin),
		CreatedAt: u.CreatedAt,
	}
}

func (dto CreateUserDTO) ToModel() *models.User {
	return &models.User{
		Email:        NormalizeEmail(dto.Email),
		PasswordHash: dto.PasswordHash,
		Name:         strings.TrimSpace(dto.Name),
		Phone:        dto.Phone,
		Address:      dto.Address,
		IsAdmin:      dto.IsAdmin,
	}
}
