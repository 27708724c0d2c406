// Package matching 模拟匹配流程：搜索若干秒后给出固定的匹配对象，随后进入加入倒计时。
package matching

import (
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/wutongtree/backend/internal/model/user"
	"github.com/wutongtree/backend/pkg/log"
)

// ErrNoMatch 当前没有可接受或拒绝的匹配。
var ErrNoMatch = errors.New("no active match")

const (
	DefaultJoinWindow = 300
	defaultSearchMin  = 3 * time.Second
	defaultSearchMax  = 8 * time.Second
	matchInterests    = 3
)

var interestPool = []string{"Politics", "Philosophy", "Technology", "Art", "Music"}

// Options tunes the simulated search.
type Options struct {
	SearchMin  time.Duration
	SearchMax  time.Duration
	JoinWindow int
	Tick       time.Duration
	Rand       rand.Source
}

// Status is a consistent view of the matching state.
type Status struct {
	Searching         bool       `json:"isSearching"`
	Matched           bool       `json:"isMatched"`
	Accepted          bool       `json:"accepted"`
	CurrentMatch      *user.User `json:"currentMatch,omitempty"`
	EstimatedWaitTime float64    `json:"estimatedWaitTime"`
	TimeLeftToJoin    int        `json:"timeLeftToJoin"`
	TimeLeft          string     `json:"timeLeft"`
	MatchExpired      bool       `json:"matchExpired"`
}

// Service drives one user's matching flow.
type Service struct {
	opts Options

	mu            sync.Mutex
	rng           *rand.Rand
	generation    uint64
	searching     bool
	matched       bool
	accepted      bool
	expired       bool
	current       *user.User
	estimated     time.Duration
	timeLeft      int
	searchTimer   *time.Timer
	stopCountdown chan struct{}
}

// NewService 创建匹配服务，未设置的选项使用默认值。
func NewService(opts Options) *Service {
	if opts.SearchMin <= 0 {
		opts.SearchMin = defaultSearchMin
	}
	if opts.SearchMax < opts.SearchMin {
		opts.SearchMax = opts.SearchMin
	}
	if opts.JoinWindow <= 0 {
		opts.JoinWindow = DefaultJoinWindow
	}
	if opts.Tick <= 0 {
		opts.Tick = time.Second
	}
	if opts.Rand == nil {
		opts.Rand = rand.NewSource(time.Now().UnixNano())
	}
	return &Service{opts: opts, rng: rand.New(opts.Rand), timeLeft: opts.JoinWindow}
}

// FindMatch starts a simulated search and returns the estimated wait.
func (s *Service) FindMatch() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopTimersLocked()
	s.generation++
	gen := s.generation

	s.searching = true
	s.matched = false
	s.accepted = false
	s.expired = false
	s.current = nil
	s.estimated = s.opts.SearchMin
	if span := s.opts.SearchMax - s.opts.SearchMin; span > 0 {
		s.estimated += time.Duration(s.rng.Int63n(int64(span) + 1))
	}
	s.searchTimer = time.AfterFunc(s.estimated, func() { s.completeMatch(gen) })

	log.Infof("[match] searching, estimated wait %s", s.estimated)
	return s.estimated
}

func (s *Service) completeMatch(gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.generation || !s.searching {
		return
	}

	s.searchTimer = nil
	s.current = s.newPartnerLocked()
	s.matched = true
	s.searching = false
	s.startCountdownLocked(gen)
	log.Infof("[match] matched with %s", s.current.Name)
}

func (s *Service) newPartnerLocked() *user.User {
	age := 20 + s.rng.Intn(16)
	pool := append([]string(nil), interestPool...)
	s.rng.Shuffle(len(pool), func(i, j int) { pool[i], pool[j] = pool[j], pool[i] })

	return &user.User{
		ID:                  uuid.NewString(),
		Email:               "match@example.com",
		Name:                "Alex",
		Age:                 &age,
		Interests:           pool[:matchInterests],
		LookingFor:          "Meaningful conversations",
		OnboardingCompleted: true,
		Subscription:        user.SubscriptionPremium,
	}
}

func (s *Service) startCountdownLocked(gen uint64) {
	s.timeLeft = s.opts.JoinWindow
	s.expired = false
	stop := make(chan struct{})
	s.stopCountdown = stop

	go func() {
		ticker := time.NewTicker(s.opts.Tick)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
			}

			s.mu.Lock()
			if gen != s.generation || s.stopCountdown != stop {
				s.mu.Unlock()
				return
			}
			expired := s.setTimeLeftLocked(s.timeLeft - 1)
			s.mu.Unlock()
			if expired {
				return
			}
		}
	}()
}

// SetTimeLeftToJoin 直接设置剩余秒数；n <= 0 时匹配过期，三个字段在同一把锁内一起翻转。
func (s *Service) SetTimeLeftToJoin(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setTimeLeftLocked(n)
}

func (s *Service) setTimeLeftLocked(n int) bool {
	s.timeLeft = n
	if n > 0 {
		return false
	}
	s.timeLeft = 0
	s.stopCountdownLocked()
	s.expired = true
	s.matched = false
	s.accepted = false
	s.current = nil
	return true
}

// Accept stops the countdown and keeps the match for the room.
func (s *Service) Accept() (user.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.matched || s.current == nil {
		return user.User{}, ErrNoMatch
	}
	s.stopCountdownLocked()
	s.accepted = true
	return *s.current, nil
}

// Decline drops the current match.
func (s *Service) Decline() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.matched {
		return ErrNoMatch
	}
	s.stopCountdownLocked()
	s.matched = false
	s.accepted = false
	s.current = nil
	s.expired = false
	return nil
}

// Cancel aborts a search or a pending match.
func (s *Service) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopTimersLocked()
	s.generation++
	s.searching = false
	s.matched = false
	s.accepted = false
	s.current = nil
	s.expired = false
}

// Accepted returns the accepted match, if any.
func (s *Service) Accepted() (user.User, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.accepted || s.current == nil {
		return user.User{}, false
	}
	return *s.current, true
}

// Status returns a snapshot.
func (s *Service) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := Status{
		Searching:         s.searching,
		Matched:           s.matched,
		Accepted:          s.accepted,
		EstimatedWaitTime: s.estimated.Seconds(),
		TimeLeftToJoin:    s.timeLeft,
		TimeLeft:          FormatTimeLeft(s.timeLeft),
		MatchExpired:      s.expired,
	}
	if s.current != nil {
		match := *s.current
		st.CurrentMatch = &match
	}
	return st
}

// FormatTimeLeft renders seconds as m:ss.
func FormatTimeLeft(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%d:%02d", seconds/60, seconds%60)
}

func (s *Service) stopTimersLocked() {
	if s.searchTimer != nil {
		s.searchTimer.Stop()
		s.searchTimer = nil
	}
	s.stopCountdownLocked()
}

func (s *Service) stopCountdownLocked() {
	if s.stopCountdown != nil {
		close(s.stopCountdown)
		s.stopCountdown = nil
	}
}
