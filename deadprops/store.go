// Package deadprops stores the properties set by clients through PROPPATCH.
package deadprops

import (
	"context"
	"encoding/xml"
	"maps"
	"net/http"
	"sync"

	"github.com/bornholm/remotedav/store"
	"golang.org/x/net/webdav"
)

type Store interface {
	Get(ctx context.Context, name string) (map[xml.Name]webdav.Property, error)
	// Patch applies every instruction in order, all of them or none.
	Patch(ctx context.Context, name string, patches []webdav.Proppatch) ([]webdav.Propstat, error)
	// RemoveAll drops the properties of the resource and its descendants.
	RemoveAll(ctx context.Context, name string) error
	Rename(ctx context.Context, oldName, newName string) error
	Copy(ctx context.Context, from, to string, recursive bool) error
}

type MemStore struct {
	mu    sync.RWMutex
	props map[string]map[xml.Name]webdav.Property
}

// Get implements Store.
func (m *MemStore) Get(ctx context.Context, name string) (map[xml.Name]webdav.Property, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	props, exists := m.props[name]
	if !exists {
		return make(map[xml.Name]webdav.Property), nil
	}

	return maps.Clone(props), nil
}

// Patch implements Store.
func (m *MemStore) Patch(ctx context.Context, name string, patches []webdav.Proppatch) ([]webdav.Propstat, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	props := maps.Clone(m.props[name])
	if props == nil {
		props = make(map[xml.Name]webdav.Property)
	}

	applied := make([]webdav.Property, 0)

	for _, patch := range patches {
		for _, prop := range patch.Props {
			if patch.Remove {
				delete(props, prop.XMLName)
			} else {
				props[prop.XMLName] = prop
			}

			applied = append(applied, webdav.Property{XMLName: prop.XMLName})
		}
	}

	if len(props) == 0 {
		delete(m.props, name)
	} else {
		m.props[name] = props
	}

	if len(applied) == 0 {
		return nil, nil
	}

	return []webdav.Propstat{{Props: applied, Status: http.StatusOK}}, nil
}

// RemoveAll implements Store.
func (m *MemStore) RemoveAll(ctx context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for key := range m.props {
		if key == name || store.IsDescendant(key, name) {
			delete(m.props, key)
		}
	}

	return nil
}

// Rename implements Store.
func (m *MemStore) Rename(ctx context.Context, oldName string, newName string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	moved := make(map[string]map[xml.Name]webdav.Property)

	for key, props := range m.props {
		if key == oldName || store.IsDescendant(key, oldName) {
			moved[newName+key[len(oldName):]] = props
			delete(m.props, key)
		}
	}

	// Properties of a replaced destination do not survive
	for key := range m.props {
		if key == newName || store.IsDescendant(key, newName) {
			delete(m.props, key)
		}
	}

	maps.Copy(m.props, moved)

	return nil
}

// Copy implements Store.
func (m *MemStore) Copy(ctx context.Context, from string, to string, recursive bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	copied := make(map[string]map[xml.Name]webdav.Property)

	for key, props := range m.props {
		if key == from || (recursive && store.IsDescendant(key, from)) {
			copied[to+key[len(from):]] = maps.Clone(props)
		}
	}

	delete(m.props, to)
	maps.Copy(m.props, copied)

	return nil
}

// NewMemStore creates a new in-memory dead properties store.
func NewMemStore() *MemStore {
	return &MemStore{
		props: make(map[string]map[xml.Name]webdav.Property),
	}
}

var _ Store = &MemStore{}
