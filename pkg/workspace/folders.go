package workspace

import (
	"fmt"
	"path/filepath"

	"github.com/google/uuid"

	"tanuki/pkg/event"
)

// FolderForThread returns the folder owning the given conversation thread,
// or nil.
func (c *Config) FolderForThread(thread event.ThreadID) *Folder {
	for i := range c.Folders {
		if c.Folders[i].Thread == string(thread) {
			return &c.Folders[i]
		}
	}
	return nil
}

// FolderForTopic returns the folder bound to a chat topic, or nil. Topic 0
// is the group's general timeline and never maps to a folder.
func (c *Config) FolderForTopic(topicID int64) *Folder {
	if topicID == 0 {
		return nil
	}
	for i := range c.Folders {
		if c.Folders[i].TopicID == topicID {
			return &c.Folders[i]
		}
	}
	return nil
}

// FolderByName returns the folder with the given name, or nil.
func (c *Config) FolderByName(name string) *Folder {
	for i := range c.Folders {
		if c.Folders[i].Name == name {
			return &c.Folders[i]
		}
	}
	return nil
}

// AddFolder registers a new folder with a freshly generated thread id.
// Thread ids are never reused, so a folder removed and re-added starts a new
// conversation history rather than inheriting stale resume tokens.
func (c *Config) AddFolder(name, path string, topicID int64) (*Folder, error) {
	if c.FolderByName(name) != nil {
		return nil, fmt.Errorf("folder %q already exists", name)
	}
	if topicID != 0 {
		if other := c.FolderForTopic(topicID); other != nil {
			return nil, fmt.Errorf("topic %d already bound to folder %q", topicID, other.Name)
		}
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve path %q: %w", path, err)
	}
	c.Folders = append(c.Folders, Folder{
		Name:    name,
		Path:    abs,
		TopicID: topicID,
		Thread:  uuid.NewString(),
	})
	return &c.Folders[len(c.Folders)-1], nil
}

// RemoveFolder deletes a folder by name. The thread id it held is retired
// with it.
func (c *Config) RemoveFolder(name string) bool {
	for i := range c.Folders {
		if c.Folders[i].Name == name {
			c.Folders = append(c.Folders[:i], c.Folders[i+1:]...)
			return true
		}
	}
	return false
}

// EngineFor returns the engine id a thread's runs should use: the folder's
// override if set, else the deployment default.
func (c *Config) EngineFor(thread event.ThreadID) string {
	if f := c.FolderForThread(thread); f != nil && f.Engine != "" {
		return f.Engine
	}
	return c.DefaultEngine
}
