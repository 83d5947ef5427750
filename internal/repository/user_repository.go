package repository

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"taskboard-server/internal/domain"

	"github.com/go-kivik/kivik/v4"
)

type UserRepository interface {
	Create(ctx context.Context, user *domain.User) error
	FindByID(ctx context.Context, id string) (*domain.User, error)
	FindByEmail(ctx context.Context, email string) (*domain.User, error)
	FindByUsername(ctx context.Context, username string) (*domain.User, error)
	FindByEmailOrUsername(ctx context.Context, email, username string) (*domain.User, error)
	SetRefreshToken(ctx context.Context, userID, token string) error
	ReplaceRefreshToken(ctx context.Context, userID, oldToken, newToken string) error
}

const maxRevisionRetries = 3

type userDoc struct {
	ID           string    `json:"_id"`
	Rev          string    `json:"_rev,omitempty"`
	Type         string    `json:"type"`
	UserID       string    `json:"user_id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	Password     string    `json:"password"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// emailDoc reserves an address. CouchDB rejects a second PUT of the same
// doc id with 409, which makes the reservation the uniqueness constraint.
type emailDoc struct {
	ID     string `json:"_id"`
	Rev    string `json:"_rev,omitempty"`
	Type   string `json:"type"`
	UserID string `json:"user_id"`
}

func userDocID(id string) string     { return fmt.Sprintf("user:%s", id) }
func emailDocID(email string) string { return fmt.Sprintf("email:%s", email) }

func (d *userDoc) toDomain() *domain.User {
	return &domain.User{
		ID:           d.UserID,
		Username:     d.Username,
		Email:        d.Email,
		PasswordHash: d.Password,
		RefreshToken: d.RefreshToken,
		CreatedAt:    d.CreatedAt,
		UpdatedAt:    d.UpdatedAt,
	}
}

type userRepository struct {
	client *kivik.Client
	dbName string
}

func NewUserRepository(client *kivik.Client, dbName string) UserRepository {
	return &userRepository{
		client: client,
		dbName: dbName,
	}
}

func (r *userRepository) Create(ctx context.Context, user *domain.User) error {
	db := r.client.DB(r.dbName)

	reservation := emailDoc{ID: emailDocID(user.Email), Type: "email", UserID: user.ID}
	rev, err := db.Put(ctx, reservation.ID, reservation)
	if err != nil {
		if kivik.HTTPStatus(err) == http.StatusConflict {
			return ErrDuplicate
		}
		return fmt.Errorf("failed to reserve email: %w", err)
	}

	doc := userDoc{
		ID:        userDocID(user.ID),
		Type:      "user",
		UserID:    user.ID,
		Username:  user.Username,
		Email:     user.Email,
		Password:  user.PasswordHash,
		CreatedAt: user.CreatedAt,
		UpdatedAt: user.UpdatedAt,
	}
	if _, err := db.Put(ctx, doc.ID, doc); err != nil {
		err = fmt.Errorf("failed to create user: %w", err)
		if _, delErr := db.Delete(ctx, reservation.ID, rev); delErr != nil {
			err = errors.Join(err, fmt.Errorf("failed to release email reservation: %w", delErr))
		}
		return err
	}

	return nil
}

func (r *userRepository) getDoc(ctx context.Context, id string) (*userDoc, error) {
	var doc userDoc
	if err := r.client.DB(r.dbName).Get(ctx, userDocID(id)).ScanDoc(&doc); err != nil {
		if kivik.HTTPStatus(err) == http.StatusNotFound {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to find user by ID: %w", err)
	}
	return &doc, nil
}

func (r *userRepository) FindByID(ctx context.Context, id string) (*domain.User, error) {
	doc, err := r.getDoc(ctx, id)
	if err != nil {
		return nil, err
	}
	return doc.toDomain(), nil
}

func (r *userRepository) FindByEmail(ctx context.Context, email string) (*domain.User, error) {
	var reservation emailDoc
	if err := r.client.DB(r.dbName).Get(ctx, emailDocID(email)).ScanDoc(&reservation); err != nil {
		if kivik.HTTPStatus(err) == http.StatusNotFound {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to query user by email: %w", err)
	}

	return r.FindByID(ctx, reservation.UserID)
}

func (r *userRepository) FindByUsername(ctx context.Context, username string) (*domain.User, error) {
	db := r.client.DB(r.dbName)

	query := map[string]interface{}{
		"selector": map[string]interface{}{
			"type":     "user",
			"username": username,
		},
		"limit": 1,
	}

	rows := db.Find(ctx, query)
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to query user by username: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, ErrNotFound
	}

	var doc userDoc
	if err := rows.ScanDoc(&doc); err != nil {
		return nil, fmt.Errorf("failed to scan user: %w", err)
	}

	return doc.toDomain(), nil
}

func (r *userRepository) FindByEmailOrUsername(ctx context.Context, email, username string) (*domain.User, error) {
	return findByEmailOrUsername(ctx, r, email, username)
}

func (r *userRepository) SetRefreshToken(ctx context.Context, userID, token string) error {
	return r.update(ctx, userID, func(doc *userDoc) error {
		doc.RefreshToken = token
		return nil
	})
}

func (r *userRepository) ReplaceRefreshToken(ctx context.Context, userID, oldToken, newToken string) error {
	return r.update(ctx, userID, func(doc *userDoc) error {
		if oldToken == "" || doc.RefreshToken != oldToken {
			return ErrNotFound
		}
		doc.RefreshToken = newToken
		return nil
	})
}

// update applies mutate under the document revision, re-reading and
// retrying when a concurrent writer bumped the revision first.
func (r *userRepository) update(ctx context.Context, userID string, mutate func(doc *userDoc) error) error {
	db := r.client.DB(r.dbName)

	for attempt := 0; attempt < maxRevisionRetries; attempt++ {
		doc, err := r.getDoc(ctx, userID)
		if err != nil {
			return err
		}

		if err := mutate(doc); err != nil {
			return err
		}
		doc.UpdatedAt = time.Now()

		_, err = db.Put(ctx, doc.ID, doc)
		if err == nil {
			return nil
		}
		if kivik.HTTPStatus(err) != http.StatusConflict {
			return fmt.Errorf("failed to update user: %w", err)
		}
	}

	return fmt.Errorf("failed to update user: too many revision conflicts")
}

// findByEmailOrUsername mirrors an $or query: the email wins when both
// identifiers are supplied and both match.
func findByEmailOrUsername(ctx context.Context, r UserRepository, email, username string) (*domain.User, error) {
	if email != "" {
		user, err := r.FindByEmail(ctx, email)
		if err == nil {
			return user, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return nil, err
		}
	}

	if username != "" {
		return r.FindByUsername(ctx, username)
	}

	return nil, ErrNotFound
}
