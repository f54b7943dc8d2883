package utils

import (
	"math/rand/v2"
)

var avatarEmojis = []string{"🌱", "🌿", "🍃", "🌾", "🎋", "🎍", "🌲", "🌳", "🐼", "🦊", "🐨", "🐸"}

// RandomAvatar 返回一个随机 emoji 用于默认头像
func RandomAvatar() string {
	return avatarEmojis[rand.IntN(len(avatarEmojis))]
}

