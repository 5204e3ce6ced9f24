package telegram

// MaxMessageLength is the Bot API hard limit for one text message, in runes.
const MaxMessageLength = 4096

// Update is one item from getUpdates. Only message updates are requested.
type Update struct {
	UpdateID int64    `json:"update_id"`
	Message  *Message `json:"message"`
}

// Message is an incoming or sent Telegram message, trimmed to the fields the
// bot reads.
type Message struct {
	MessageID int64       `json:"message_id"`
	From      *User       `json:"from"`
	Chat      Chat        `json:"chat"`
	Text      string      `json:"text"`
	Voice     *Voice      `json:"voice"`
	Audio     *Audio      `json:"audio"`
	Photo     []PhotoSize `json:"photo"`
}

type User struct {
	ID        int64  `json:"id"`
	FirstName string `json:"first_name"`
	Username  string `json:"username"`
}

type Chat struct {
	ID int64 `json:"id"`
}

// Voice is a voice note recorded in the Telegram client (OGG/Opus).
type Voice struct {
	FileID   string `json:"file_id"`
	Duration int    `json:"duration"`
}

// Audio is an audio file sent as a regular attachment.
type Audio struct {
	FileID   string `json:"file_id"`
	Duration int    `json:"duration"`
}

// PhotoSize is one resolution of a photo; Telegram sends several, smallest
// first.
type PhotoSize struct {
	FileID   string `json:"file_id"`
	Width    int    `json:"width"`
	Height   int    `json:"height"`
	FileSize int64  `json:"file_size"`
}

// File carries the server-side path needed to download an attachment.
type File struct {
	FileID   string `json:"file_id"`
	FilePath string `json:"file_path"`
}

// BotCommand is one entry of the command menu.
type BotCommand struct {
	Command     string `json:"command"`
	Description string `json:"description"`
}

// LargestPhoto picks the highest-resolution variant of a photo message.
func LargestPhoto(sizes []PhotoSize) (PhotoSize, bool) {
	if len(sizes) == 0 {
		return PhotoSize{}, false
	}
	best := sizes[0]
	for _, p := range sizes[1:] {
		if p.Width*p.Height > best.Width*best.Height {
			best = p
		}
	}
	return best, true
}
