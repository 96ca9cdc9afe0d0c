package domain

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var ErrInvalidEventID = errors.New("invalid event id")

// MakeEventID = "<chain_id>:<tx_hash>:<log_index>", the dedupe key of a chain log
func MakeEventID(chainID uint32, txHash string, logIndex uint32) string {
	return fmt.Sprintf("%d:%s:%d", chainID, strings.ToLower(txHash), logIndex)
}

type ParsedEventID struct {
	ChainID  uint32
	TxHash   string
	LogIndex uint32
}

// Matches reports whether the id names the log described by meta
func (p ParsedEventID) Matches(meta EventMeta) bool {
	return p.ChainID == meta.ChainID &&
		p.TxHash == strings.ToLower(meta.TxHash) &&
		p.LogIndex == meta.LogIndex
}

func ParseEventID(id string) (ParsedEventID, error) {
	var out ParsedEventID
	parts := strings.Split(id, ":")
	if len(parts) != 3 || parts[1] == "" {
		return out, fmt.Errorf("%w: %q", ErrInvalidEventID, id)
	}

	chain, err := strconv.ParseUint(parts[0], 10, 32)
	if err != nil {
		return out, fmt.Errorf("%w: chain_id: %v", ErrInvalidEventID, err)
	}

	logIdx, err := strconv.ParseUint(parts[2], 10, 32)
	if err != nil {
		return out, fmt.Errorf("%w: log_index: %v", ErrInvalidEventID, err)
	}

	out.ChainID = uint32(chain)
	out.TxHash = strings.ToLower(parts[1])
	out.LogIndex = uint32(logIdx)

	return out, nil
}
