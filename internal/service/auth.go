package service

import (
	"context"
	"errors"

	"golang.org/x/crypto/bcrypt"

	"trapkitchen/internal/apperr"
	"trapkitchen/internal/model"
	"trapkitchen/internal/store"
)

type AuthService struct {
	store store.Store
}

func NewAuthService(st store.Store) *AuthService {
	return &AuthService{store: st}
}

func (s *AuthService) Register(ctx context.Context, login, password string) (*model.User, error) {
	if login == "" || password == "" {
		return nil, apperr.Validationf("login and password required")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, apperr.Wrap(apperr.ErrUpstream, err, "hash password")
	}

	user := &model.User{
		Login:        login,
		PasswordHash: hash,
		Role:         model.RoleCustomer,
	}
	if err := s.store.CreateUser(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

func (s *AuthService) Authenticate(ctx context.Context, login, password string) (*model.User, error) {
	user, err := s.store.GetUserByLogin(ctx, login)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return nil, apperr.Authorizationf("invalid login or password")
		}
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword(user.PasswordHash, []byte(password)); err != nil {
		return nil, apperr.Authorizationf("invalid login or password")
	}

	return user, nil
}
