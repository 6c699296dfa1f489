package constants

import "time"

const (
	CHANNEL_SIZE          = 100     // websocket outbound buffer per connection
	DEFAULT_PAGE_SIZE     = 30      // messages per window when the client sends no limit
	MAX_PAGE_SIZE         = 200     // upper bound for one message window
	SESSION_PAGE_SIZE     = 50      // sessions fetched per step of the lazy session list
	SESSION_FEED_LIMIT    = 200     // sessions pushed to the admin inbox feed
	MAX_TEXT_RUNES        = 4096    // Telegram message length limit
	PREVIEW_MAX_RUNES     = 120     // lastMessage preview length
	INLINE_PHOTO_MAX_SIZE = 5 << 20 // inline photo payload limit (bytes, encoded)

	STORE_WRITE_TIMEOUT   = 5 * time.Second  // single persistence call
	TELEGRAM_CALL_TIMEOUT = 15 * time.Second // single Bot API call
	NOTIFY_TIMEOUT        = 10 * time.Second // admin notification side channel
)

const (
	WEB_SESSION_PREFIX      = "web-"
	TELEGRAM_SESSION_PREFIX = "tg-"
)
