package handlers

import (
	"context"
	"errors"

	"github.com/zuchzub/vcplayer/pkg/core/dl"
	"github.com/zuchzub/vcplayer/pkg/core/queue"
	"github.com/zuchzub/vcplayer/pkg/vc"
	"github.com/zuchzub/vcplayer/pkg/vc/ubot"
)

var errorKeys = []struct {
	err error
	key string
}{
	{queue.ErrQueueFull, "err_queue_full"},
	{queue.ErrDuplicateTail, "err_duplicate"},
	{queue.ErrInvalidIndex, "err_invalid_index"},
	{dl.ErrDurationExceeded, "err_too_long"},
	{dl.ErrUnsupportedLink, "err_unsupported_link"},
	{dl.ErrResolutionFailed, "err_not_found"},
	{dl.ErrDownloadFailed, "err_download"},
	{dl.ErrTranscodeFailed, "err_transcode"},
	{dl.ErrNotReady, "err_not_ready"},
	{vc.ErrAlreadyJoined, "err_already_joined"},
	{vc.ErrNotJoined, "err_not_joined"},
	{vc.ErrUnauthorized, "err_unauthorized"},
	{vc.ErrNothingPlaying, "err_nothing_playing"},
	{vc.ErrNotPlaying, "err_not_playing"},
	{vc.ErrNotPaused, "err_not_paused"},
	{vc.ErrTrackGone, "err_track_gone"},
	{vc.ErrNoAssistant, "err_no_assistant"},
	{ubot.ErrNoVoiceChat, "err_no_voice_chat"},
	{context.DeadlineExceeded, "err_timeout"},
}

// errorKey maps err to the lang key of its user-facing explanation.
func errorKey(err error) string {
	for _, e := range errorKeys {
		if errors.Is(err, e.err) {
			return e.key
		}
	}
	return "err_unknown"
}
