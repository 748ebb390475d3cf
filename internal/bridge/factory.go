package bridge

import (
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/chatbridge/nexus/internal/nexus"
	"github.com/chatbridge/nexus/internal/platform"
	"github.com/chatbridge/nexus/internal/surrogate"
)

// SurrogateFactory builds the surrogate.Factory used by the bot pool:
// a Euphoria-origin user gets an InstantSendBot surrogate, and vice
// versa, each dialing the corresponding room URL template.
func SurrogateFactory(euphoriaRoomURL, instantRoomURL string, nx *nexus.Nexus, log *logrus.Entry) surrogate.Factory {
	return func(identity string, side platform.Platform, nick string, onReady func()) surrogate.Bot {
		entry := log.WithField("surrogate", identity)
		if side == platform.Euphoria {
			bot, err := NewInstantSendBot(instantRoomURL, nick, nx, onReady, entry)
			if err != nil {
				entry.WithError(err).Error("could not create instant surrogate")
				return nil
			}
			return bot
		}
		bot, err := NewEuphoriaSendBot(euphoriaRoomURL, nick, nx, onReady, entry)
		if err != nil {
			entry.WithError(err).Error("could not create euphoria surrogate")
			return nil
		}
		return bot
	}
}

// FormatRoomURL substitutes roomname into a "{}"-style template, same
// as INSTANT_ROOM_TEMPLATE.format(roomname) in the original.
func FormatRoomURL(template, roomname string) string {
	return strings.Replace(template, "{}", roomname, 1)
}
