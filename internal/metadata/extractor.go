// Package metadata turns inbound platform messages into normalized song
// records. Extraction is pure: it never touches storage or the network.
package metadata

import (
	"strconv"
	"strings"

	"cadenza/pkg/models"

	tgmodels "github.com/go-telegram/bot/models"
)

// MessageFromUpdate picks the message variant carried by an update. Live
// webhook deliveries and historical backfill pages both funnel through here
// so extraction behaves identically on either path.
func MessageFromUpdate(update *tgmodels.Update) *tgmodels.Message {
	if update == nil {
		return nil
	}
	switch {
	case update.Message != nil:
		return update.Message
	case update.ChannelPost != nil:
		return update.ChannelPost
	case update.EditedMessage != nil:
		return update.EditedMessage
	}
	return nil
}

// attachment is the audio-bearing slice of a message, whichever attachment
// kind carried it. Fields a kind does not have stay zero.
type attachment struct {
	fileID    string
	fileName  string
	title     string
	performer string
	duration  int
	mime      string
}

// pickAttachment selects the audio-bearing attachment: a native audio
// attachment wins, then a voice note, then a generic document whose
// declared MIME type starts with "audio".
func pickAttachment(msg *tgmodels.Message) (attachment, bool) {
	switch {
	case msg.Audio != nil:
		a := msg.Audio
		return attachment{
			fileID:    a.FileID,
			fileName:  a.FileName,
			title:     a.Title,
			performer: a.Performer,
			duration:  a.Duration,
			mime:      a.MimeType,
		}, true

	case msg.Voice != nil:
		v := msg.Voice
		return attachment{
			fileID:   v.FileID,
			duration: v.Duration,
			mime:     v.MimeType,
		}, true

	case msg.Document != nil && strings.HasPrefix(msg.Document.MimeType, "audio"):
		d := msg.Document
		return attachment{
			fileID:   d.FileID,
			fileName: d.FileName,
			mime:     d.MimeType,
		}, true
	}

	return attachment{}, false
}

// ExtractSong maps one inbound message to at most one Song. Most messages
// carry no audio; that is reported as ok=false, not an error.
func ExtractSong(msg *tgmodels.Message) (models.Song, bool) {
	if msg == nil {
		return models.Song{}, false
	}
	pick, ok := pickAttachment(msg)
	if !ok {
		return models.Song{}, false
	}

	title := msg.Caption
	if title == "" {
		title = pick.fileName
	}
	if title == "" {
		title = pick.title
	}

	return models.Song{
		FileID:    pick.fileID,
		Title:     title,
		Performer: pick.performer,
		Duration:  pick.duration,
		Mime:      pick.mime,
		FileName:  pick.fileName,
		Date:      int64(msg.Date),
		Chat:      chatRef(msg),
	}, true
}

// chatRef derives the chat reference, falling back to the originating
// broadcast channel when the message carries no chat of its own.
func chatRef(msg *tgmodels.Message) models.Chat {
	var ref models.Chat

	if msg.Chat.ID != 0 {
		ref.ID = strconv.FormatInt(msg.Chat.ID, 10)
	} else if msg.SenderChat != nil && msg.SenderChat.ID != 0 {
		ref.ID = strconv.FormatInt(msg.SenderChat.ID, 10)
	}

	switch {
	case msg.Chat.Title != "":
		ref.Title = msg.Chat.Title
	case msg.Chat.Username != "":
		ref.Title = msg.Chat.Username
	case msg.SenderChat != nil:
		ref.Title = msg.SenderChat.Title
	}

	return ref
}
