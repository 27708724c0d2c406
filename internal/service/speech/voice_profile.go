package speech

import (
	"strings"

	"github.com/wutongtree/backend/internal/model/persona"
)

// VoiceRole 决定使用哪一种音色。
type VoiceRole string

const (
	VoiceHost        VoiceRole = "host"
	VoiceParticipant VoiceRole = "participant"
	VoiceNeutral     VoiceRole = "neutral"
)

var vendorVoices = map[string]map[VoiceRole]string{
	"elevenlabs": {
		VoiceHost:        "21m00Tcm4TlvDq8ikWAM", // Rachel
		VoiceParticipant: "AZnzlk1XvdvUeBnXmlld", // Domi
		VoiceNeutral:     "EXAVITQu4vr4xnSDxMaL", // Bella
	},
	"openai": {
		VoiceHost:        "nova",
		VoiceParticipant: "alloy",
		VoiceNeutral:     "echo",
	},
	"custom": {
		VoiceHost:        "friendly_host_voice",
		VoiceParticipant: "casual_participant_voice",
		VoiceNeutral:     "neutral_voice",
	},
}

// RoleForPersona 把人设角色映射为音色角色。
func RoleForPersona(role persona.Role) VoiceRole {
	switch role {
	case persona.RoleHost:
		return VoiceHost
	case persona.RoleParticipant, persona.RolePartner:
		return VoiceParticipant
	default:
		return VoiceNeutral
	}
}

// ResolveVoice picks the vendor voice for a role. Overrides are keyed by role
// name and win over the built-in table. Unknown roles resolve to the neutral voice.
func ResolveVoice(vendor string, role VoiceRole, overrides map[string]string) string {
	if v := strings.TrimSpace(overrides[string(role)]); v != "" {
		return v
	}

	table, ok := vendorVoices[strings.ToLower(vendor)]
	if !ok {
		return ""
	}
	if v, ok := table[role]; ok {
		return v
	}
	return table[VoiceNeutral]
}

// moodEmotions 主持人情绪到自建 TTS emotion 字段的映射。
var moodEmotions = map[string]string{
	"excited":     "excited",
	"playful":     "happy",
	"encouraging": "happy",
	"empathetic":  "tender",
	"thoughtful":  "calm",
	"curious":     "neutral",
}

// EmotionForMood 返回自建 TTS 服务可以接受的情绪标签，未知情绪退回 neutral。
func EmotionForMood(mood string) string {
	if label, ok := moodEmotions[strings.ToLower(strings.TrimSpace(mood))]; ok {
		return label
	}
	return "neutral"
}
