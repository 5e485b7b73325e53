package clipsync

import (
	"clipsync/internal/account"
	"clipsync/internal/allocator"
	"clipsync/internal/clip"
	"clipsync/internal/planner"
	"clipsync/internal/publish"
	"clipsync/internal/retry"
	"clipsync/internal/runner"
	"clipsync/internal/storage"
	"clipsync/internal/youtube"
)

// Error handling types exported for library users.
//
// Using errors.Is() for sentinel errors:
//
//	if errors.Is(rep.Err, clipsync.ErrNoEligibleContent) {
//		fmt.Println("add more source channels")
//	}
//
// Using errors.As() for wrapped errors:
//
//	var agentErr *clipsync.AgentError
//	if errors.As(err, &agentErr) {
//		fmt.Printf("publishing %s at %s failed: %v\n", agentErr.Clip, agentErr.Slot, agentErr.Err)
//	}

// Type aliases for convenient error handling.
type (
	// ScheduleError carries the schedule entry that failed to parse.
	ScheduleError = account.ScheduleError
	// NameError carries the clip file name that failed to parse.
	NameError = clip.NameError
	// AgentError wraps a publish failure with its clip and slot.
	AgentError = publish.AgentError
	// StorageError wraps errors during storage operations.
	StorageError = storage.StorageError
	// ListerError wraps errors during video listing.
	ListerError = youtube.ListerError
	// RetryableError wraps errors that occurred after retries were exhausted.
	RetryableError = retry.RetryableError
)

// Sentinel errors exported from sub-packages.
var (
	// ErrEmptySchedule indicates an account with no posting times.
	ErrEmptySchedule = planner.ErrEmptySchedule
	// ErrInvalidSchedule indicates a malformed posting time.
	ErrInvalidSchedule = account.ErrInvalidSchedule
	// ErrInvalidAccount indicates a structurally invalid account.
	ErrInvalidAccount = account.ErrInvalidAccount
	// ErrNoEligibleContent indicates discovery found nothing left to produce.
	ErrNoEligibleContent = allocator.ErrNoEligibleContent
	// ErrSaturatedSchedule indicates every slot in the horizon is taken.
	ErrSaturatedSchedule = runner.ErrSaturatedSchedule
	// ErrMalformedName indicates a clip file name that does not encode a clip.
	ErrMalformedName = clip.ErrMalformedName
	// ErrPublishFailed is wrapped by every AgentError.
	ErrPublishFailed = publish.ErrPublishFailed

	// Storage errors
	// ErrNotFound indicates an account was not found in storage.
	ErrNotFound = storage.ErrNotFound
	// ErrAlreadyExists indicates an account already exists in storage.
	ErrAlreadyExists = storage.ErrAlreadyExists
	// ErrStorageCorrupt indicates data corruption was detected.
	ErrStorageCorrupt = storage.ErrStorageCorrupt
	// ErrLockTimeout indicates a timeout acquiring a file lock.
	ErrLockTimeout = storage.ErrLockTimeout
	// ErrLocked indicates another run holds the account lock.
	ErrLocked = storage.ErrLocked

	// ErrChannelNotFound indicates a source channel does not exist.
	ErrChannelNotFound = youtube.ErrChannelNotFound
	// ErrYtdlpNotInstalled indicates yt-dlp binary was not found.
	ErrYtdlpNotInstalled = youtube.ErrYtdlpNotInstalled
)

// IsRetryable determines if an error should be retried.
// It returns false for permanent errors like ErrChannelNotFound.
func IsRetryable(err error) bool {
	return retry.IsRetryable(err)
}
