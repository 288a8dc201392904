package model

import "errors"

var (
	// ErrInvalidParameter rejects timeline inputs before any scheduling or analysis.
	ErrInvalidParameter = errors.New("invalid parameter")
	// ErrPlaybackFailed aborts a run after a fatal output device failure.
	ErrPlaybackFailed = errors.New("playback failed")
	// ErrEmptyAudio means the buffer holds no usable frames.
	ErrEmptyAudio = errors.New("empty audio")
	// ErrUnsupportedFormat means the sample rate or channel layout is out of range.
	ErrUnsupportedFormat = errors.New("unsupported audio format")
	// ErrEmptyTimeline means there are no scored events to align.
	ErrEmptyTimeline = errors.New("empty timeline")
	// ErrInsufficientSamples means calibration found too few clean pairs; retry.
	ErrInsufficientSamples = errors.New("insufficient calibration samples")
)
