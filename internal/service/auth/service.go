// Package auth 提供模拟的第三方登录：不访问任何身份服务，只生成本地用户并持久化。
package auth

import (
	"errors"
	"strings"

	"github.com/google/uuid"

	"github.com/wutongtree/backend/internal/model/user"
	"github.com/wutongtree/backend/pkg/log"
)

var (
	ErrUnknownProvider  = errors.New("unknown sign-in provider")
	ErrNotAuthenticated = errors.New("not signed in")
)

// Provider is a supported sign-in provider.
type Provider string

const (
	ProviderApple    Provider = "apple"
	ProviderGoogle   Provider = "google"
	ProviderFacebook Provider = "facebook"
)

// UserStore persists the signed-in user.
type UserStore interface {
	CurrentUser() (user.User, bool, error)
	SaveCurrentUser(u user.User) error
	ClearCurrentUser() error
}

// Service manages the local session.
type Service struct {
	store UserStore
}

// NewService 创建登录服务。
func NewService(store UserStore) *Service {
	return &Service{store: store}
}

// ParseProvider 忽略大小写与首尾空白。
func ParseProvider(raw string) (Provider, error) {
	switch p := Provider(strings.ToLower(strings.TrimSpace(raw))); p {
	case ProviderApple, ProviderGoogle, ProviderFacebook:
		return p, nil
	default:
		return "", ErrUnknownProvider
	}
}

func mockUser(p Provider) user.User {
	u := user.User{
		ID:           uuid.NewString(),
		Interests:    []string{},
		Subscription: user.SubscriptionFree,
	}
	switch p {
	case ProviderApple:
		u.Email, u.Name = "apple@user.com", "Apple User"
	case ProviderGoogle:
		u.Email, u.Name = "user@gmail.com", "Test User"
	case ProviderFacebook:
		u.Email, u.Name = "user@facebook.com", "Test User"
	}
	return u
}

// SignIn creates a mock user for the provider and stores it as current.
func (s *Service) SignIn(provider string) (user.User, error) {
	p, err := ParseProvider(provider)
	if err != nil {
		return user.User{}, err
	}
	u := mockUser(p)
	if err := s.store.SaveCurrentUser(u); err != nil {
		return user.User{}, err
	}
	log.Infof("[auth] signed in %s via %s", u.ID, p)
	return u, nil
}

// Current returns the signed-in user.
func (s *Service) Current() (user.User, error) {
	u, ok, err := s.store.CurrentUser()
	if err != nil {
		return user.User{}, err
	}
	if !ok {
		return user.User{}, ErrNotAuthenticated
	}
	return u, nil
}

// SignOut forgets the current user.
func (s *Service) SignOut() error {
	return s.store.ClearCurrentUser()
}

// CompleteOnboarding 保存兴趣与资料并标记引导完成。
func (s *Service) CompleteOnboarding(profile Onboarding) (user.User, error) {
	u, err := s.Current()
	if err != nil {
		return user.User{}, err
	}

	interests := make([]string, 0, len(profile.Interests))
	for _, interest := range profile.Interests {
		if interest = strings.TrimSpace(interest); interest != "" {
			interests = append(interests, interest)
		}
	}
	u.Interests = interests
	if name := strings.TrimSpace(profile.Name); name != "" {
		u.Name = name
	}
	if profile.Age != nil {
		age := *profile.Age
		u.Age = &age
	}
	if lookingFor := strings.TrimSpace(profile.LookingFor); lookingFor != "" {
		u.LookingFor = lookingFor
	}
	u.OnboardingCompleted = true

	if err := s.store.SaveCurrentUser(u); err != nil {
		return user.User{}, err
	}
	return u, nil
}

// Onboarding carries the profile collected after sign-in.
type Onboarding struct {
	Name       string   `json:"name"`
	Age        *int     `json:"age"`
	Interests  []string `json:"interests"`
	LookingFor string   `json:"lookingFor"`
}
