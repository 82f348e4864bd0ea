package domain

import "errors"

var (
	// ErrAlarmNotFound indicates that the alarm id is unknown to the phone.
	ErrAlarmNotFound = errors.New("alarm not found")

	// ErrPhoneNotLoaded indicates that the configuration entry has no phone yet.
	ErrPhoneNotLoaded = errors.New("phone not loaded")

	// ErrPhoneExists indicates that the entry already mirrors a phone.
	ErrPhoneExists = errors.New("phone already set up for this entry")

	// ErrPhoneMismatch indicates that a request addressed a different phone.
	ErrPhoneMismatch = errors.New("phone id does not match this entry")

	// ErrUnknownEventKind indicates an unsupported alarm or device event kind.
	ErrUnknownEventKind = errors.New("unknown event kind")

	// ErrInvalidAlarm indicates that a sync payload is malformed.
	ErrInvalidAlarm = errors.New("invalid alarm payload")

	// ErrInvalidSnoozeTime indicates a snooze duration outside 1-30 minutes.
	ErrInvalidSnoozeTime = errors.New("snooze time must be between 1 and 30 minutes")

	// ErrSnoozeNotAllowed indicates the alarm does not allow snoozing.
	ErrSnoozeNotAllowed = errors.New("alarm does not allow snooze")

	// ErrInvalidPhoneName indicates a name that slugifies to nothing.
	ErrInvalidPhoneName = errors.New("phone name must contain a letter or digit")

	// ErrOptionsNotFound is returned by stores when nothing was persisted for an entry.
	ErrOptionsNotFound = errors.New("no options stored for entry")
)
