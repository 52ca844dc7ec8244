package utils

import (
	"fmt"

	"github.com/google/uuid"
)

// GenerateID generates a prefixed unique ID
func GenerateID(prefix string) string {
	return fmt.Sprintf("%s_%s", prefix, uuid.New().String())
}

// GenerateRecordID generates a unique call record ID
func GenerateRecordID() string {
	return GenerateID("rec")
}

// GenerateAttemptID generates a unique connection attempt ID
func GenerateAttemptID() string {
	return GenerateID("attempt")
}

// GenerateCallID generates a unique call ID for locally initiated sessions
func GenerateCallID() string {
	return uuid.New().String()
}
