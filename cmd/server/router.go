package main

import (
	"net/url"
	"strings"
)

// artifactMountPath returns the path under which locally stored artifacts
// are served, taken from the storage base URL. It is empty when the base URL
// has no usable path or points into the API.
func artifactMountPath(baseURL string) string {
	u, err := url.Parse(baseURL)
	if err != nil {
		return ""
	}
	mount := strings.TrimRight(u.Path, "/")
	if mount == "" || mount == "/api" || strings.HasPrefix(mount, "/api/") || mount == "/health" {
		return ""
	}
	return mount
}
