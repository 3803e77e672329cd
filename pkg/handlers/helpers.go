package handlers

import (
	"errors"
	"fmt"
	"html"
	"strconv"
	"strings"
	"time"

	"github.com/zuchzub/vcplayer/pkg/core/cache"
	"github.com/zuchzub/vcplayer/pkg/core/queue"
	"github.com/zuchzub/vcplayer/pkg/lang"
	"github.com/zuchzub/vcplayer/pkg/vc"

	"github.com/Laky-64/gologging"
	"github.com/amarnathcjd/gogram/telegram"
)

// getPeerId gets the peer ID from a chat ID.
// It takes a telegram client and a chat ID as input.
// It returns the peer ID and an error if any.
func getPeerId(c *telegram.Client, chatId any) (int64, error) {
	peer, err := c.ResolvePeer(chatId)
	if err != nil {
		gologging.WarnF("failed to resolve Peer for %v", chatId)
		return 0, err
	}

	switch p := peer.(type) {
	case *telegram.InputPeerUser:
		return p.UserID, nil
	case *telegram.InputPeerChat:
		return -p.ChatID, nil
	case *telegram.InputPeerChannel:
		return -1000000000000 - p.ChannelID, nil
	default:
		return 0, fmt.Errorf("unsupported peer type %T", p)
	}
}

// getUrl returns the first link of a message's entities, or "".
func getUrl(m *telegram.NewMessage) string {
	if m == nil || m.Message == nil {
		return ""
	}
	return urlFromEntities(m.Text(), m.Message.Entities)
}

func urlFromEntities(text string, entities []telegram.MessageEntity) string {
	for _, entity := range entities {
		switch e := entity.(type) {
		case *telegram.MessageEntityTextURL:
			return e.URL
		case *telegram.MessageEntityURL:
			if u := utf16Slice(text, int(e.Offset), int(e.Length)); u != "" {
				return u
			}
		default:
			gologging.DebugF("Ignoring entity type: %T", e)
		}
	}
	return ""
}

// utf16Slice cuts text the way Telegram counts entity offsets, in UTF-16 code units.
func utf16Slice(text string, offset, length int) string {
	var (
		b   strings.Builder
		pos int
	)
	for _, r := range text {
		width := 1
		if r >= 0x10000 {
			width = 2
		}
		if pos >= offset && pos < offset+length {
			b.WriteRune(r)
		}
		pos += width
		if pos >= offset+length {
			break
		}
	}
	return b.String()
}

// coalesce returns the first non-empty string.
func coalesce(a, b string) string {
	if a != "" {
		return a
	}
	return b
}

// truncate shortens s to at most max runes.
func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-1]) + "…"
}

var errBadIndex = errors.New("not a queue position")

// parseIndices reads the queue positions given to /skip.
func parseIndices(args string) ([]int, error) {
	fields := strings.Fields(args)
	out := make([]int, 0, len(fields))
	for _, f := range fields {
		n, err := strconv.Atoi(f)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("%w: %q", errBadIndex, f)
		}
		out = append(out, n)
	}
	return out, nil
}

// upload is an audio file found in a message.
type upload struct {
	docID    int64
	fileRef  string
	title    string
	duration int
	link     string
}

// audioUpload extracts the audio file of m. Other media are ignored.
func audioUpload(m *telegram.NewMessage) (*upload, bool) {
	if m == nil || !m.IsMedia() {
		return nil, false
	}
	media, ok := m.Media().(*telegram.MessageMediaDocument)
	if !ok {
		return nil, false
	}
	doc, ok := media.Document.(*telegram.DocumentObj)
	if !ok {
		return nil, false
	}

	var (
		audio    *telegram.DocumentAttributeAudio
		fileName string
	)
	for _, attr := range doc.Attributes {
		switch a := attr.(type) {
		case *telegram.DocumentAttributeAudio:
			audio = a
		case *telegram.DocumentAttributeFilename:
			fileName = a.FileName
		}
	}
	if audio == nil {
		return nil, false
	}

	title := strings.TrimSpace(audio.Title)
	if title != "" && audio.Performer != "" {
		title = audio.Performer + " - " + title
	}
	u := &upload{
		docID:    doc.ID,
		title:    coalesce(title, coalesce(fileName, "Audio")),
		duration: int(audio.Duration),
		link:     m.Link(),
	}
	if m.File != nil {
		u.fileRef = m.File.FileID
	}
	return u, u.fileRef != ""
}

// senderName is what replies call the author of m.
func senderName(m *telegram.NewMessage) string {
	if m.Sender != nil {
		return coalesce(strings.TrimSpace(m.Sender.FirstName+" "+m.Sender.LastName), strconv.FormatInt(m.Sender.ID, 10))
	}
	return strconv.FormatInt(m.SenderID(), 10)
}

// chatTitle is the title of the chat m was posted in.
func chatTitle(m *telegram.NewMessage) string {
	switch {
	case m.Channel != nil:
		return m.Channel.Title
	case m.Chat != nil:
		return m.Chat.Title
	default:
		return strconv.FormatInt(m.ChatID(), 10)
	}
}

// trackLink renders t as an HTML link when it has one.
func trackLink(t *queue.Track) string {
	if t == nil {
		return ""
	}
	title := html.EscapeString(truncate(t.Title, 60))
	if t.Link == "" {
		return "<b>" + title + "</b>"
	}
	return fmt.Sprintf("<a href=\"%s\">%s</a>", html.EscapeString(t.Link), title)
}

func requester(t *queue.Track) string {
	name := coalesce(t.AddedByName, strconv.FormatInt(t.AddedBy, 10))
	return fmt.Sprintf("<a href=\"tg://user?id=%d\">%s</a>", t.AddedBy, html.EscapeString(name))
}

func nowPlayingText(langCode string, t *queue.Track) string {
	return lang.Format(langCode, "now_playing", trackLink(t), cache.SecToMin(t.Duration), requester(t))
}

// currentText describes the playing track and its position.
func currentText(langCode string, st vc.Status, now time.Time) string {
	cur := st.Current()
	if cur == nil {
		return lang.GetString(langCode, "queue_empty")
	}
	elapsed, known := st.Elapsed(now)
	return lang.Format(langCode, "current_text",
		lang.GetString(langCode, "state_"+st.State.String()),
		trackLink(cur),
		cache.Elapsed(elapsed, known),
		cache.SecToMin(cur.Duration),
		requester(cur),
	)
}

// queueText lists every queued track. Positions are the ones /skip takes.
func queueText(langCode string, st vc.Status, now time.Time) string {
	if len(st.Tracks) == 0 {
		return lang.GetString(langCode, "queue_empty")
	}

	var b strings.Builder
	b.WriteString(lang.Format(langCode, "queue_header", html.EscapeString(st.ChatTitle), len(st.Tracks), st.Max))
	b.WriteString(currentText(langCode, st, now))
	if len(st.Tracks) > 1 {
		b.WriteString(lang.GetString(langCode, "queue_next_up"))
		for i, t := range st.Tracks[1:] {
			b.WriteString(lang.Format(langCode, "queue_item", i+1, trackLink(t), cache.SecToMin(t.Duration), requester(t)))
		}
	}
	if st.Muted {
		b.WriteString(lang.GetString(langCode, "queue_muted"))
	}
	return b.String()
}

// skipText summarizes what a skip did.
func skipText(langCode string, rep vc.SkipReport) string {
	var b strings.Builder
	for _, r := range rep.Removals {
		switch {
		case r.Err == nil:
			b.WriteString(lang.Format(langCode, "skip_removed", r.Index, trackLink(r.Track)))
		case errors.Is(r.Err, vc.ErrUnauthorized):
			b.WriteString(lang.Format(langCode, "skip_not_yours", r.Index))
		default:
			b.WriteString(lang.Format(langCode, "skip_invalid", r.Index))
		}
	}
	if rep.Skipped != nil {
		b.WriteString(lang.Format(langCode, "skip_current", trackLink(rep.Skipped)))
	}
	return b.String()
}

// mention links the author of m.
func mention(m *telegram.NewMessage) string {
	return fmt.Sprintf("<a href=\"tg://user?id=%d\">%s</a>", m.SenderID(), html.EscapeString(senderName(m)))
}
