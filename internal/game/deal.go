package game

import (
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"math/rand"
)

var (
	ErrDealRangeTooSmall = errors.New("deal_range_too_small")
	ErrDealInvalidRange  = errors.New("deal_invalid_range")
	ErrDealDuplicateID   = errors.New("deal_duplicate_id")
)

// Deal assigns each player a distinct number in [min, max] inclusive. For a
// fixed seed and a fixed playerIDs ordering the result is bit-for-bit
// reproducible, so server and client can agree on a deal by exchanging only
// the seed.
func Deal(playerIDs []string, min, max int, seed string) (map[string]int, error) {
	if min > max {
		return nil, ErrDealInvalidRange
	}
	span := max - min + 1
	if span < len(playerIDs) {
		return nil, ErrDealRangeTooSmall
	}
	seen := make(map[string]struct{}, len(playerIDs))
	for _, id := range playerIDs {
		if _, dup := seen[id]; dup {
			return nil, ErrDealDuplicateID
		}
		seen[id] = struct{}{}
	}

	rnd := rand.New(rand.NewSource(seedSource(seed)))
	out := make(map[string]int, len(playerIDs))
	if span <= 4096 || span <= 4*len(playerIDs) {
		// Small range: shuffle the whole range and take a prefix.
		nums := make([]int, span)
		for i := range nums {
			nums[i] = min + i
		}
		rnd.Shuffle(len(nums), func(i, j int) { nums[i], nums[j] = nums[j], nums[i] })
		for i, id := range playerIDs {
			out[id] = nums[i]
		}
		return out, nil
	}
	// Large range: draw with rejection. Collisions are rare at >4x headroom.
	used := make(map[int]struct{}, len(playerIDs))
	for _, id := range playerIDs {
		for {
			n := min + rnd.Intn(span)
			if _, taken := used[n]; taken {
				continue
			}
			used[n] = struct{}{}
			out[id] = n
			break
		}
	}
	return out, nil
}

// PickTopic selects one entry deterministically from the same seed the deal
// uses, so a redeal with the same seed keeps the same topic.
func PickTopic(options []string, seed string) string {
	if len(options) == 0 {
		return ""
	}
	rnd := rand.New(rand.NewSource(seedSource(seed + ":topic")))
	return options[rnd.Intn(len(options))]
}

func seedSource(seed string) int64 {
	h := sha256.Sum256([]byte(seed))
	return int64(binary.BigEndian.Uint64(h[:8]))
}
