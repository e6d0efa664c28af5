package utility

import (
	"strconv"

	"github.com/google/uuid"
)

// ToFloat converts a sampled meter value to a float, zero on garbage input
func ToFloat(s string) float64 {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return f
}

func NewUUID() string {
	return uuid.New().String()
}
