package app

import (
	"fmt"
	"strconv"
)

func parsePositiveInt(s string) (int, error) {
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, err
	}
	if v <= 0 {
		return 0, fmt.Errorf("expected positive integer, got %d", v)
	}
	return v, nil
}
