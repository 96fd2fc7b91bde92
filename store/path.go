package store

import (
	"path"
	"strings"
)

// Join joins a collection path and a child name.
func Join(dir, name string) string {
	return path.Join("/", dir, name)
}

// Parent returns the path of the collection containing name.
func Parent(name string) string {
	return path.Dir(path.Join("/", name))
}

// Base returns the last segment of name, or "/" for the root.
func Base(name string) string {
	return path.Base(path.Join("/", name))
}

// IsRoot reports whether name designates the root collection.
func IsRoot(name string) bool {
	return strings.Trim(name, "/") == ""
}

// IsDescendant reports whether child is strictly below parent.
func IsDescendant(child, parent string) bool {
	parent = strings.TrimSuffix(path.Join("/", parent), "/")
	child = path.Join("/", child)

	if parent == "" {
		return child != "/"
	}

	return strings.HasPrefix(child, parent+"/")
}
