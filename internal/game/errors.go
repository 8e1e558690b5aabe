package game

import (
	"errors"
	"fmt"

	"github.com/containerd/errdefs"
)

// Engine errors. Each wraps an errdefs class so transports can map it.
var (
	ErrUnknownRoom    = fmt.Errorf("unknown room: %w", errdefs.ErrNotFound)
	ErrRoomLocked     = fmt.Errorf("room is locked: %w", errdefs.ErrPermissionDenied)
	ErrNoPersona      = fmt.Errorf("room has no persona: %w", errdefs.ErrFailedPrecondition)
	ErrChatDisabled   = fmt.Errorf("room is unlocked, chat is disabled: %w", errdefs.ErrFailedPrecondition)
	ErrNotAdvanceable = fmt.Errorf("current room cannot be advanced explicitly: %w", errdefs.ErrFailedPrecondition)
	ErrNoSubmission   = fmt.Errorf("scenario has no submission room: %w", errdefs.ErrFailedPrecondition)
	ErrDownloadLocked = fmt.Errorf("download is locked: %w", errdefs.ErrFailedPrecondition)
	ErrEmptyMessage   = fmt.Errorf("message is required: %w", errdefs.ErrInvalidArgument)
	ErrMessageTooLong = fmt.Errorf("your message is too long: %w", errdefs.ErrInvalidArgument)
	ErrUnknownColumn  = fmt.Errorf("unknown column: %w", errdefs.ErrInvalidArgument)
)

// ErrUnstructuredReply is returned by the discovery hook when a reply holds
// no JSON object. It is informational.
var ErrUnstructuredReply = errors.New("reply has no structured object")
