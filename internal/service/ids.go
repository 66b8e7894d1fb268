package service

import (
	"context"
	"encoding/hex"
	"strconv"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"github.com/alanyoungcy/predictledger/internal/domain"
	"github.com/alanyoungcy/predictledger/internal/store"
)

// CounterIDs allocates "1", "2", ... from the host's market counter. It is
// the default strategy: collision-free and stable across hosts.
type CounterIDs struct{}

// NextID increments the market counter.
func (CounterIDs) NextID(ctx context.Context, kv domain.KV, _ domain.Market) (string, error) {
	n, err := store.NewTx(kv).NextMarketSeq(ctx)
	if err != nil {
		return "", err
	}
	return strconv.FormatUint(n, 10), nil
}

// HashIDs derives the id from the market's content. Two markets with the same
// creator, question, end time, and creation time collide, so prefer
// CounterIDs.
type HashIDs struct{}

// NextID returns the first 16 bytes of keccak256 over the market content, hex
// encoded.
func (HashIDs) NextID(_ context.Context, _ domain.KV, m domain.Market) (string, error) {
	var buf []byte
	buf = append(buf, m.Creator...)
	buf = append(buf, 0)
	buf = append(buf, m.Question...)
	buf = append(buf, 0)
	buf = strconv.AppendUint(buf, m.EndTime, 10)
	buf = append(buf, 0)
	buf = strconv.AppendUint(buf, m.CreatedAt, 10)
	return hex.EncodeToString(ethcrypto.Keccak256(buf)[:16]), nil
}

// IDStrategy maps a configured strategy name to a generator.
func IDStrategy(name string) (domain.IDGenerator, bool) {
	switch name {
	case "", "counter":
		return CounterIDs{}, true
	case "hash":
		return HashIDs{}, true
	default:
		return nil, false
	}
}
