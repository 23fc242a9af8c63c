// Copyright (c) 2025 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package simulator

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseSlaveIDs parses a string like "1,2,5-10" into a list of slave IDs.
// Duplicates are dropped, first occurrence wins.
func ParseSlaveIDs(input string) ([]byte, error) {
	var ids []byte
	seen := make(map[int]bool)
	add := func(id int) error {
		if id < 1 || id > 247 {
			return fmt.Errorf("id out of range: %d", id)
		}
		if !seen[id] {
			seen[id] = true
			ids = append(ids, byte(id))
		}
		return nil
	}

	for _, part := range strings.Split(input, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if strings.Contains(part, "-") {
			// Range
			ranges := strings.Split(part, "-")
			if len(ranges) != 2 {
				return nil, fmt.Errorf("invalid range: %s", part)
			}
			start, err := strconv.Atoi(strings.TrimSpace(ranges[0]))
			if err != nil {
				return nil, fmt.Errorf("invalid start of range: %w", err)
			}
			end, err := strconv.Atoi(strings.TrimSpace(ranges[1]))
			if err != nil {
				return nil, fmt.Errorf("invalid end of range: %w", err)
			}
			if start > end {
				return nil, fmt.Errorf("start of range %d is greater than end %d", start, end)
			}
			for i := start; i <= end; i++ {
				if err := add(i); err != nil {
					return nil, err
				}
			}
		} else {
			id, err := strconv.Atoi(part)
			if err != nil {
				return nil, fmt.Errorf("invalid id: %w", err)
			}
			if err := add(id); err != nil {
				return nil, err
			}
		}
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("no slave ids in %q", input)
	}
	return ids, nil
}
