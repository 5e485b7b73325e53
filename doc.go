// Package clipsync sources short-form clips from video channels, schedules
// them into daily posting slots and publishes them.
//
// Overview
//
// Each account names its source channels, its daily posting times and its
// production preferences. A run for one account does the following:
//
//   - plans the open slots between the last published post and the horizon
//   - assigns already rendered clips to those slots, earliest first
//   - discovers and renders new source videos while slots remain
//   - publishes every assignment in slot order, recording each success in
//     the account history before deleting the clip file
//
// Runs of the same account are serialized by a lock, so a clip is never
// published twice.
//
// Command line
//
//	clipsync create --id me@example.com --channel @creator --schedule 09:00
//	clipsync plan me@example.com
//	clipsync run --all
//	clipsync serve
//
// Configuration
//
// Settings load from defaults, then clipsync.yaml (or
// ~/.config/clipsync/clipsync.yaml), then CLIPSYNC_* environment variables.
// A .env file in the working directory is read first.
//
// Error Handling
//
// Sub-package errors are re-exported here:
//
//	if errors.Is(err, clipsync.ErrLocked) {
//		fmt.Println("another run is in progress")
//	}
//
// Sub-packages
//
//   - internal/account: account model and schedule parsing
//   - internal/planner: slot planning
//   - internal/allocator: clip allocation and production triggering
//   - internal/publish: captions and the publish-and-commit cycle
//   - internal/runner: per-account runs and dry-run plans
//   - internal/storage: JSON file and MongoDB stores, file and Redis locks
//   - internal/media: ffmpeg production pipeline
//   - internal/tiktok: browser publish agent
//
// Dependencies
//
// yt-dlp, ffmpeg and ffprobe must be installed and available in PATH or set
// in the configuration. Publishing needs Chrome or Chromium.
package clipsync
