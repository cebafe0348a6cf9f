package pseudorng

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/raffle-network/raffled/internal/core/ports"
)

// service is an in-process randomness source. It honors the request contract
// of the external oracle: every request is answered exactly once, after a
// delay of confirmations x block time, with the configured number of words.
// The words are pseudo-random, derived from a crypto/rand seed mixed with the
// request id and the clock. Not a substitute for a verifiable source.
type service struct {
	blockTime time.Duration

	chDeliveries chan ports.RandomWordsDelivery
	done         chan struct{}
	wg           sync.WaitGroup
}

func NewRandomnessSource(blockTime time.Duration) ports.RandomnessSource {
	return &service{
		blockTime:    blockTime,
		chDeliveries: make(chan ports.RandomWordsDelivery),
		done:         make(chan struct{}),
	}
}

func (s *service) RequestRandomWords(
	ctx context.Context, req ports.RandomWordsRequest,
) (string, error) {
	if req.NumWords <= 0 {
		return "", fmt.Errorf("invalid word count %d", req.NumWords)
	}

	requestId := uuid.New().String()
	delay := time.Duration(req.RequestConfirmations) * s.blockTime

	s.wg.Add(1)
	go s.fulfill(requestId, req.NumWords, delay)

	return requestId, nil
}

func (s *service) Deliveries() <-chan ports.RandomWordsDelivery {
	return s.chDeliveries
}

func (s *service) Close() {
	close(s.done)
	s.wg.Wait()
	close(s.chDeliveries)
}

func (s *service) fulfill(requestId string, numWords uint32, delay time.Duration) {
	defer s.wg.Done()

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-s.done:
		return
	case <-timer.C:
	}

	words, err := deriveWords(requestId, numWords)
	if err != nil {
		return
	}

	select {
	case <-s.done:
	case s.chDeliveries <- ports.RandomWordsDelivery{
		RequestId:   requestId,
		RandomWords: words,
	}:
	}
}

func deriveWords(requestId string, numWords uint32) ([]uint64, error) {
	seed := make([]byte, 32)
	if _, err := rand.Read(seed); err != nil {
		return nil, err
	}

	entropy := make([]byte, 0, len(seed)+len(requestId)+8)
	entropy = append(entropy, seed...)
	entropy = append(entropy, requestId...)
	entropy = binary.BigEndian.AppendUint64(entropy, uint64(time.Now().UnixNano()))

	words := make([]uint64, 0, numWords)
	digest := sha256.Sum256(entropy)
	for i := uint32(0); i < numWords; i++ {
		words = append(words, binary.BigEndian.Uint64(digest[:8]))
		digest = sha256.Sum256(digest[:])
	}
	return words, nil
}
