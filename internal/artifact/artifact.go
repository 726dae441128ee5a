// Package artifact stores generated README artifacts in object
// storage so the documentation front-end can serve them from a CDN
// instead of hitting the Task Store for every view. The Task Store
// row remains the source of truth; the object copy is best-effort.
package artifact

import (
	"fmt"

	"github.com/qs3c/repoanalyzer/internal/pkg/oss"
)

// Store wraps the OSS client with the readme object-key layout.
type Store struct {
	client *oss.Client
}

func NewStore(client *oss.Client) *Store {
	return &Store{client: client}
}

func readmeKey(taskID int64) string {
	return fmt.Sprintf("readmes/%d/README.md", taskID)
}

// UploadReadme uploads the generated markdown for a task and returns
// its public URL.
func (s *Store) UploadReadme(taskID int64, markdown string) (string, error) {
	if s == nil || s.client == nil {
		return "", nil
	}
	return s.client.UploadFileWithRetry(readmeKey(taskID), []byte(markdown), "text/markdown")
}

// DeleteReadme removes the stored markdown for a task. Deleting a
// missing object is a success.
func (s *Store) DeleteReadme(taskID int64) error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Delete(readmeKey(taskID))
}
