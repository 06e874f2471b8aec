package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	domain "github.com/vibek01/ECOM-D1/internal/domain"
	pfirestore "github.com/vibek01/ECOM-D1/internal/platform/firestore"
	"github.com/vibek01/ECOM-D1/internal/repositories"
)

const userCollection = "users"

// UserRepository reads storefront accounts from the users collection.
type UserRepository struct {
	base     *pfirestore.BaseRepository[userDocument]
	provider *pfirestore.Provider
}

var _ repositories.UserRepository = (*UserRepository)(nil)

// NewUserRepository constructs a Firestore-backed user repository.
func NewUserRepository(provider *pfirestore.Provider) (*UserRepository, error) {
	if provider == nil {
		return nil, errors.New("user repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[userDocument](provider, userCollection, nil, nil)
	return &UserRepository{base: base, provider: provider}, nil
}

// FindByID loads the user by id.
func (r *UserRepository) FindByID(ctx context.Context, userID string) (domain.User, error) {
	doc, err := r.base.Get(ctx, userID)
	if err != nil {
		return domain.User{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}

// FindByEmail looks a user up by their lower-cased email address.
func (r *UserRepository) FindByEmail(ctx context.Context, email string) (domain.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return domain.User{}, errors.New("user repository: email is required")
	}
	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("email", "==", email).Limit(1)
	})
	if err != nil {
		return domain.User{}, err
	}
	if len(docs) == 0 {
		return domain.User{}, pfirestore.WrapError("users.find_by_email", status.Error(codes.NotFound, "user not found"))
	}
	return docs[0].Data.toDomain(docs[0].ID), nil
}

// FindByIDs loads the listed users in one batch.
func (r *UserRepository) FindByIDs(ctx context.Context, userIDs []string) (map[string]domain.User, error) {
	docs, err := r.base.GetAll(ctx, uniqueStrings(userIDs))
	if err != nil {
		return nil, err
	}
	users := make(map[string]domain.User, len(docs))
	for _, doc := range docs {
		users[doc.ID] = doc.Data.toDomain(doc.ID)
	}
	return users, nil
}

// UpdateRole changes the role of an existing user inside a transaction.
func (r *UserRepository) UpdateRole(ctx context.Context, userID string, role domain.UserRole) (domain.User, error) {
	var updated domain.User
	err := r.provider.RunInTx(ctx, func(ctx context.Context) error {
		doc, err := r.base.Get(ctx, userID)
		if err != nil {
			return err
		}
		data := doc.Data
		data.Role = string(role)
		data.UpdatedAt = time.Now().UTC()
		if err := r.base.Set(ctx, doc.ID, data); err != nil {
			return err
		}
		updated = data.toDomain(doc.ID)
		return nil
	})
	if err != nil {
		return domain.User{}, err
	}
	return updated, nil
}

type userDocument struct {
	Username  string    `firestore:"username"`
	Email     string    `firestore:"email"`
	Role      string    `firestore:"role"`
	CreatedAt time.Time `firestore:"createdAt"`
	UpdatedAt time.Time `firestore:"updatedAt"`
}

func (d userDocument) toDomain(id string) domain.User {
	role := domain.UserRole(strings.ToUpper(strings.TrimSpace(d.Role)))
	if role == "" {
		role = domain.UserRoleUser
	}
	return domain.User{
		ID:        id,
		Username:  d.Username,
		Email:     d.Email,
		Role:      role,
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}
}

func uniqueStrings(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, value := range values {
		value = strings.TrimSpace(value)
		if value == "" {
			continue
		}
		if _, ok := seen[value]; ok {
			continue
		}
		seen[value] = struct{}{}
		out = append(out, value)
	}
	return out
}
