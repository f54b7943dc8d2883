package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"path/filepath"
)

type savedCookie struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

func loadSession(path string) ([]*http.Cookie, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var saved []savedCookie
	if err := json.Unmarshal(data, &saved); err != nil {
		return nil, err
	}
	cookies := make([]*http.Cookie, 0, len(saved))
	for _, s := range saved {
		cookies = append(cookies, &http.Cookie{Name: s.Name, Value: s.Value})
	}
	return cookies, nil
}

func saveSession(path string, cookies []*http.Cookie) error {
	saved := make([]savedCookie, 0, len(cookies))
	for _, c := range cookies {
		saved = append(saved, savedCookie{Name: c.Name, Value: c.Value})
	}
	data, err := json.MarshalIndent(saved, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}
