package user

// Subscription 订阅类型。
type Subscription string

const (
	SubscriptionFree    Subscription = "free"
	SubscriptionPremium Subscription = "premium"
)

// DisplayName 返回订阅在界面上的展示名。
func (s Subscription) DisplayName() string {
	switch s {
	case SubscriptionPremium:
		return "Premium ($10/month)"
	default:
		return "Free (7 days)"
	}
}

// User is the locally cached profile of the signed in user.
type User struct {
	ID                  string       `json:"id"`
	Email               string       `json:"email"`
	Name                string       `json:"name"`
	Age                 *int         `json:"age,omitempty"`
	ProfileImageURL     string       `json:"profileImageURL,omitempty"`
	Interests           []string     `json:"interests"`
	LookingFor          string       `json:"lookingFor,omitempty"`
	OnboardingCompleted bool         `json:"onboardingCompleted"`
	Subscription        Subscription `json:"subscriptionType"`
}
