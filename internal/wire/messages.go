package wire

import (
	"encoding/json"
	"fmt"
)

// Message types.
const (
	TypeStatusUpdate    = "status_update"
	TypeRecordings      = "recordings"
	TypeRecordingStatus = "recording_status"
	TypeBookmarks       = "bookmarks"

	TypeAuthTune        = "auth_tune"
	TypeSaveSquelch     = "save_squelch"
	TypeStartRecording  = "start_recording"
	TypeStopRecording   = "stop_recording"
	TypeDeleteRecording = "delete_recording"
	TypeAddBookmark     = "add_bookmark"
	TypeEditBookmark    = "edit_bookmark"
	TypeDeleteBookmark  = "delete_bookmark"
)

// Status describes the current reception.
type Status struct {
	Type            string   `json:"type"`
	Freq            uint32   `json:"freq"`
	Mode            string   `json:"mode"`
	BWInfo          string   `json:"bwInfo"`
	SavedNoiseFloor *float64 `json:"savedNoiseFloor"`
	AudioRate       float64  `json:"audioRate"`
}

// Recording is one entry of the recordings list.
type Recording struct {
	Name string `json:"name"`
	Size int64  `json:"size"`
}

// RecordingList is broadcast whenever the recordings directory changes.
type RecordingList struct {
	Type string      `json:"type"`
	Data []Recording `json:"data"`
}

// RecordingStatus reports recorder start, stop and failure.
type RecordingStatus struct {
	Type      string `json:"type"`
	Recording bool   `json:"recording"`
	Filename  string `json:"filename,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Bookmark is a saved tuning, or a folder when IsFolder is set. Freq is
// in MHz. ParentID names the containing folder; nil is the top level.
type Bookmark struct {
	ID       string  `json:"id"`
	Title    string  `json:"title"`
	Freq     float64 `json:"freq,omitempty"`
	Mode     string  `json:"mode,omitempty"`
	IsFolder bool    `json:"isFolder"`
	ParentID *string `json:"parentId"`
}

// BookmarkList is sent on connect and after every bookmark change.
type BookmarkList struct {
	Type string     `json:"type"`
	Data []Bookmark `json:"data"`
}

// Command is any inbound listener message. Only the fields relevant to
// Type are populated.
type Command struct {
	Type     string  `json:"type"`
	Freq     int64   `json:"freq,omitempty"`
	Mode     string  `json:"mode,omitempty"`
	Password string  `json:"password,omitempty"`
	Floor    float64 `json:"floor,omitempty"`
	Filename string  `json:"filename,omitempty"`

	ID       string    `json:"id,omitempty"`
	Bookmark *Bookmark `json:"data,omitempty"`
}

// ParseCommand decodes a listener command.
func ParseCommand(b []byte) (Command, error) {
	var c Command
	if err := json.Unmarshal(b, &c); err != nil {
		return Command{}, fmt.Errorf("wire: decode command: %w", err)
	}
	if c.Type == "" {
		return Command{}, fmt.Errorf("wire: command without type")
	}
	return c, nil
}

// MessageType returns the "type" discriminator of a JSON message.
func MessageType(b []byte) (string, error) {
	var env struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(b, &env); err != nil {
		return "", fmt.Errorf("wire: decode message: %w", err)
	}
	return env.Type, nil
}
