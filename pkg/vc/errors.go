package vc

import "errors"

var (
	ErrAlreadyJoined  = errors.New("already in the voice chat")
	ErrNotJoined      = errors.New("not in the voice chat")
	ErrUnauthorized   = errors.New("only the requester or a moderator can do that")
	ErrNothingPlaying = errors.New("nothing is playing")
	ErrNotPlaying     = errors.New("playback is not running")
	ErrNotPaused      = errors.New("playback is not paused")
	ErrTrackGone      = errors.New("track left the queue before it started")
	ErrNoAssistant    = errors.New("no assistant account is available")
)
