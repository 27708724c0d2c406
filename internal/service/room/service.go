package room

import (
	"context"
	"errors"
	"math/rand"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/wutongtree/backend/internal/config"
	"github.com/wutongtree/backend/internal/model/chat"
	"github.com/wutongtree/backend/internal/model/conversation"
	"github.com/wutongtree/backend/internal/model/persona"
	"github.com/wutongtree/backend/internal/service/llm"
	"github.com/wutongtree/backend/internal/service/personality"
	"github.com/wutongtree/backend/internal/service/speech"
	"github.com/wutongtree/backend/pkg/log"
)

var (
	ErrRoomNotFound         = errors.New("room not found")
	ErrRoomActive           = errors.New("room is still active")
	ErrConversationNotFound = errors.New("conversation not found")
)

const (
	defaultSelfName = "You"
	selfID          = "self"
)

// ConversationStore is the summary record collection used by the registry.
type ConversationStore interface {
	RecordStore
	Conversations() ([]conversation.Record, error)
	// RateConversation 无条件覆盖评分（包括改回 0），ok 表示记录存在
	RateConversation(id string, rating int) (conversation.Record, bool, error)
}

// Deps 注入房间注册表的依赖。
type Deps struct {
	Config   config.RoomConfig
	LLM      llm.Client
	Synth    speech.Synthesizer
	Sink     speech.Sink
	Personas persona.Store
	Records  ConversationStore
	Archive  Archive
	// Rand 为 nil 时每个房间使用随机种子
	Rand func() rand.Source
	Now  func() time.Time
}

// CreateRequest describes the room to open.
type CreateRequest struct {
	SelfName    string `json:"selfName"`
	PartnerName string `json:"partnerName"`
	Topic       string `json:"topic"`
}

// Service keeps the live rooms of the process.
type Service struct {
	deps Deps

	mu    sync.RWMutex
	rooms map[string]*Room
}

// NewService 创建房间注册表。
func NewService(deps Deps) *Service {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Rand == nil {
		deps.Rand = func() rand.Source { return rand.NewSource(time.Now().UnixNano()) }
	}
	if deps.Personas == nil {
		deps.Personas = persona.NewMemoryStore(persona.Seed())
	}
	return &Service{deps: deps, rooms: make(map[string]*Room)}
}

// Create 创建并启动房间：本地用户、对方（由陪聊人设发声）与主持人。
func (s *Service) Create(_ context.Context, req CreateRequest) (*Room, error) {
	host := findPersona(s.deps.Personas, persona.HostID)
	participant := findPersona(s.deps.Personas, persona.ParticipantID)

	selfName := strings.TrimSpace(req.SelfName)
	if selfName == "" {
		selfName = defaultSelfName
	}
	partnerName := strings.TrimSpace(req.PartnerName)
	if partnerName == "" {
		partnerName = participant.Name
	}

	session := chat.Session{
		ID: uuid.NewString(),
		Participants: []chat.Participant{
			{ID: selfID, DisplayName: selfName, Role: chat.RoleSelf},
			{ID: participant.ID, DisplayName: partnerName, Role: chat.RoleOther},
			{ID: host.ID, DisplayName: host.Name, Role: chat.RoleHost},
		},
		Topic:     strings.TrimSpace(req.Topic),
		StartTime: s.deps.Now(),
	}

	feed := speech.NewFeedEngine()
	src := s.deps.Rand()
	r := New(session, Options{
		Config:      s.deps.Config,
		LLM:         s.deps.LLM,
		Playback:    speech.NewPlayback(s.deps.Synth, speech.PlaybackOptions{Sink: s.deps.Sink}),
		Feed:        feed,
		Capture:     speech.NewCapture(feed),
		Policy:      personality.NewPolicy(rand.NewSource(src.Int63())),
		Host:        host,
		Participant: participant,
		Records:     s.deps.Records,
		Archive:     s.deps.Archive,
		Rand:        src,
		Now:         s.deps.Now,
	})

	s.mu.Lock()
	s.rooms[r.ID()] = r
	s.mu.Unlock()

	r.Start()
	log.Infof("[room] created %s (%s with %s)", r.ID(), selfName, partnerName)
	return r, nil
}

// Get returns a live room.
func (s *Service) Get(id string) (*Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.rooms[id]
	if !ok {
		return nil, ErrRoomNotFound
	}
	return r, nil
}

// List returns the ids of live rooms.
func (s *Service) List() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.rooms))
	for id := range s.rooms {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// End closes a room and removes it from the registry. The room stays
// registered until its summary record is saved, so a Rate racing with End
// sees ErrRoomActive rather than a missing record. A concurrent second End
// gets ErrRoomClosed.
func (s *Service) End(id string) (conversation.Record, error) {
	r, err := s.Get(id)
	if err != nil {
		return conversation.Record{}, err
	}

	rec, err := r.End()
	if errors.Is(err, ErrRoomClosed) {
		// 另一个 End 正在收尾，由它负责移除
		return conversation.Record{}, err
	}

	s.mu.Lock()
	if s.rooms[id] == r {
		delete(s.rooms, id)
	}
	s.mu.Unlock()
	return rec, err
}

// Conversations returns the saved summary records.
func (s *Service) Conversations() ([]conversation.Record, error) {
	if s.deps.Records == nil {
		return nil, nil
	}
	return s.deps.Records.Conversations()
}

// Rate 为已结束的对话打分。房间仍在进行时返回 ErrRoomActive。
func (s *Service) Rate(id string, rating int) (conversation.Record, error) {
	if _, err := s.Get(id); err == nil {
		return conversation.Record{}, ErrRoomActive
	}
	if err := conversation.ValidateRating(rating); err != nil {
		return conversation.Record{}, err
	}
	if s.deps.Records == nil {
		return conversation.Record{}, ErrConversationNotFound
	}

	rec, ok, err := s.deps.Records.RateConversation(id, rating)
	if err != nil {
		return conversation.Record{}, err
	}
	if !ok {
		return conversation.Record{}, ErrConversationNotFound
	}
	return rec, nil
}

// Shutdown ends every live room.
func (s *Service) Shutdown() {
	for _, id := range s.List() {
		if _, err := s.End(id); err != nil && !errors.Is(err, ErrRoomNotFound) && !errors.Is(err, ErrRoomClosed) {
			log.Warnf("[room] shutdown %s: %v", id, err)
		}
	}
}

func findPersona(store persona.Store, id string) persona.Persona {
	if p, ok := store.FindByID(id); ok {
		return p
	}
	return persona.Persona{ID: id, Name: id}
}
