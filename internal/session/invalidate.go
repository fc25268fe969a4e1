package session

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/sonarbridge/sonarbridge-mcp/pkg/types"
)

type didOpenFileParams struct {
	ConfigurationScopeID string `json:"configurationScopeId"`
	FileURI              string `json:"fileUri"`
}

type didUpdateFileSystemParams struct {
	AddedFiles   []types.FileDescriptor `json:"addedFiles"`
	ChangedFiles []types.FileDescriptor `json:"changedFiles"`
	RemovedFiles []string               `json:"removedFiles"`
}

// InvalidateFile makes the backend observe a file mutation that happened
// outside its own analysis loop. The backend's per-file cache is not
// invalidated by its ordinary document-lifecycle notifications, so the
// exact sequence below is required:
//
//  1. Mark the file open under its owning scope. The backend ignores
//     file-system updates for files it tracks as closed.
//  2. Re-read the file from disk and send a file-system update whose
//     changed-file descriptor carries the literal content (null content
//     makes the backend fall back to its own, possibly stale, disk read),
//     the uppercase language tag, and isUserDefined=true.
//  3. Wait the settling delay. The update is asynchronous and the backend
//     exposes no "cache invalidated" acknowledgment; analyzing
//     immediately risks observing pre-invalidation state.
//
// Callers that mutate a file and then need fresh findings must invoke
// this before the next analysis call; nothing does it automatically.
func (s *Session) InvalidateFile(ctx context.Context, scopeID, absPath string) error {
	sc, ok := s.scopes.lookup(scopeID)
	if !ok {
		return fmt.Errorf("invalidate %s: unknown configuration scope %q", absPath, scopeID)
	}

	if err := s.Notify(MethodDidOpenFile, didOpenFileParams{
		ConfigurationScopeID: scopeID,
		FileURI:              types.FileURI(absPath),
	}); err != nil {
		return fmt.Errorf("mark %s open: %w", absPath, err)
	}

	content, err := os.ReadFile(absPath)
	if err != nil {
		return fmt.Errorf("re-read %s: %w", absPath, err)
	}
	desc, err := types.NewFileDescriptor(scopeID, sc.Root, absPath, content)
	if err != nil {
		return err
	}
	if err := desc.Validate(true); err != nil {
		return err
	}
	if err := s.Notify(MethodDidUpdateFS, didUpdateFileSystemParams{
		AddedFiles:   []types.FileDescriptor{},
		ChangedFiles: []types.FileDescriptor{desc},
		RemovedFiles: []string{},
	}); err != nil {
		return fmt.Errorf("announce update of %s: %w", absPath, err)
	}

	return s.settle(ctx)
}

// NotifyFileAdded announces a newly created file (a transient snippet
// file, for one) so the backend picks it up without a full re-listing.
func (s *Session) NotifyFileAdded(ctx context.Context, scopeID, absPath string, content []byte) error {
	sc, ok := s.scopes.lookup(scopeID)
	if !ok {
		return fmt.Errorf("add %s: unknown configuration scope %q", absPath, scopeID)
	}
	desc, err := types.NewFileDescriptor(scopeID, sc.Root, absPath, content)
	if err != nil {
		return err
	}
	if err := desc.Validate(true); err != nil {
		return err
	}
	if err := s.Notify(MethodDidUpdateFS, didUpdateFileSystemParams{
		AddedFiles:   []types.FileDescriptor{desc},
		ChangedFiles: []types.FileDescriptor{},
		RemovedFiles: []string{},
	}); err != nil {
		return err
	}
	return s.settle(ctx)
}

// NotifyFileRemoved announces a deleted file.
func (s *Session) NotifyFileRemoved(scopeID, absPath string) error {
	if _, ok := s.scopes.lookup(scopeID); !ok {
		return fmt.Errorf("remove %s: unknown configuration scope %q", absPath, scopeID)
	}
	return s.Notify(MethodDidUpdateFS, didUpdateFileSystemParams{
		AddedFiles:   []types.FileDescriptor{},
		ChangedFiles: []types.FileDescriptor{},
		RemovedFiles: []string{types.FileURI(absPath)},
	})
}

// settle is the explicit scheduled suspension after a file-system update.
func (s *Session) settle(ctx context.Context) error {
	delay := s.cfg.SettleDelay
	if delay <= 0 {
		return nil
	}
	t := time.NewTimer(delay)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
