package domain

import (
	"errors"
	"regexp"
	"strings"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

const (
	RoomIDLength   = 6
	roomIDAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"
)

var ErrInvalidRoomID = errors.New("invalid room id")

var roomIDPattern = regexp.MustCompile(`^[a-z0-9]{6}$`)

type RoomID string

// NewRoomID returns a random lowercase alphanumeric room id.
func NewRoomID() (RoomID, error) {
	id, err := gonanoid.Generate(roomIDAlphabet, RoomIDLength)
	if err != nil {
		return "", err
	}
	return RoomID(id), nil
}

// ParseRoomID accepts ids in any letter case and normalizes them to lowercase.
func ParseRoomID(raw string) (RoomID, error) {
	id := strings.ToLower(raw)
	if !roomIDPattern.MatchString(id) {
		return "", ErrInvalidRoomID
	}
	return RoomID(id), nil
}
