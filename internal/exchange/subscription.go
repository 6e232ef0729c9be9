package exchange

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"crypto_api/internal/domain"
)

// ErrSubscriptionClosed is returned by Next after Close.
var ErrSubscriptionClosed = errors.New("subscription closed")

// Source produces candlesticks on demand.
// Next blocks until a sample is ready and returns io.EOF at a clean end.
type Source interface {
	Next(ctx context.Context) (domain.Candlestick, error)
	Close()
}

// Subscription is an ordered backlog-then-live stream of candlesticks for
// one market and interval. It is pull based: nothing is buffered beyond what
// the source itself holds.
type Subscription struct {
	Market   *domain.Market
	Interval domain.Interval

	mu       sync.Mutex
	src      Source
	terminal error
	closed   bool
}

// NewSubscription wraps src with its market/interval tags.
func NewSubscription(market *domain.Market, interval domain.Interval, src Source) *Subscription {
	return &Subscription{Market: market, Interval: interval, src: src}
}

// Next returns the next candlestick. Once the stream ended or failed,
// every later call returns the same error.
func (s *Subscription) Next(ctx context.Context) (domain.Candlestick, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return domain.Candlestick{}, ErrSubscriptionClosed
	}
	if s.terminal != nil {
		err := s.terminal
		s.mu.Unlock()
		return domain.Candlestick{}, err
	}
	src := s.src
	s.mu.Unlock()

	c, err := src.Next(ctx)
	if err != nil {
		if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
			// Cancellation is the caller's, the stream itself is still usable.
			return domain.Candlestick{}, err
		}
		s.mu.Lock()
		if s.closed {
			err = ErrSubscriptionClosed
		} else if s.terminal == nil {
			s.terminal = err
		}
		s.mu.Unlock()
		return domain.Candlestick{}, err
	}
	return c, nil
}

// Close releases the underlying source. Safe to call more than once.
func (s *Subscription) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	src := s.src
	s.mu.Unlock()

	if src != nil {
		src.Close()
	}
}

// String returns e.g. "BTCUSDT@5m".
func (s *Subscription) String() string {
	return fmt.Sprintf("%s@%s", s.Market, s.Interval)
}

// SliceSource replays a fixed list of candlesticks and then reports io.EOF.
type SliceSource struct {
	mu      sync.Mutex
	candles []domain.Candlestick
	pos     int
	closed  bool
}

// NewSliceSource copies candles into a new source.
func NewSliceSource(candles []domain.Candlestick) *SliceSource {
	cp := make([]domain.Candlestick, len(candles))
	copy(cp, candles)
	return &SliceSource{candles: cp}
}

func (s *SliceSource) Next(ctx context.Context) (domain.Candlestick, error) {
	if err := ctx.Err(); err != nil {
		return domain.Candlestick{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return domain.Candlestick{}, ErrSubscriptionClosed
	}
	if s.pos >= len(s.candles) {
		return domain.Candlestick{}, io.EOF
	}
	c := s.candles[s.pos]
	s.pos++
	return c, nil
}

// Last returns the final candlestick of the backlog.
func (s *SliceSource) Last() (domain.Candlestick, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.candles) == 0 {
		return domain.Candlestick{}, false
	}
	return s.candles[len(s.candles)-1], true
}

func (s *SliceSource) Close() {
	s.mu.Lock()
	s.closed = true
	s.candles = nil
	s.mu.Unlock()
}

// ChanSource reads live candlesticks from a channel. The producer closes
// the channel when the transport ends; Err then reports why.
type ChanSource struct {
	ch      <-chan domain.Candlestick
	err     func() error
	onClose func()

	once sync.Once
	done chan struct{}
}

// NewChanSource builds a source from ch. errFn reports the terminal transport
// error after ch is closed (nil means a clean end). onClose is invoked once
// when the consumer closes the source.
func NewChanSource(ch <-chan domain.Candlestick, errFn func() error, onClose func()) *ChanSource {
	return &ChanSource{ch: ch, err: errFn, onClose: onClose, done: make(chan struct{})}
}

func (s *ChanSource) Next(ctx context.Context) (domain.Candlestick, error) {
	select {
	case <-ctx.Done():
		return domain.Candlestick{}, ctx.Err()
	case <-s.done:
		return domain.Candlestick{}, ErrSubscriptionClosed
	case c, ok := <-s.ch:
		if !ok {
			if s.err != nil {
				if err := s.err(); err != nil {
					return domain.Candlestick{}, err
				}
			}
			return domain.Candlestick{}, io.EOF
		}
		return c, nil
	}
}

func (s *ChanSource) Close() {
	s.once.Do(func() {
		close(s.done)
		if s.onClose != nil {
			s.onClose()
		}
	})
}

// chain emits backlog first and then live, skipping live samples that do
// not advance past the last emitted open time.
type chain struct {
	backlog Source
	live    Source

	mu         sync.Mutex
	inBacklog  bool
	lastOpen   int64
	haveLast   bool
	closedOnce sync.Once
}

// Chain joins a backlog and a live source into a single seamless source.
// Live samples whose open time is not after the last backlog open time are
// dropped, so the seam has no duplicate. Close releases both sources.
func Chain(backlog, live Source) Source {
	return &chain{backlog: backlog, live: live, inBacklog: true}
}

func (c *chain) Next(ctx context.Context) (domain.Candlestick, error) {
	c.mu.Lock()
	inBacklog := c.inBacklog
	c.mu.Unlock()

	if inBacklog {
		candle, err := c.backlog.Next(ctx)
		switch {
		case err == nil:
			c.remember(candle)
			return candle, nil
		case errors.Is(err, io.EOF):
			c.mu.Lock()
			c.inBacklog = false
			c.mu.Unlock()
		default:
			return domain.Candlestick{}, err
		}
	}

	for {
		candle, err := c.live.Next(ctx)
		if err != nil {
			return domain.Candlestick{}, err
		}
		if c.stale(candle) {
			continue
		}
		c.remember(candle)
		return candle, nil
	}
}

func (c *chain) stale(candle domain.Candlestick) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.haveLast && candle.OpenTime.UnixNano() <= c.lastOpen
}

func (c *chain) remember(candle domain.Candlestick) {
	c.mu.Lock()
	c.lastOpen = candle.OpenTime.UnixNano()
	c.haveLast = true
	c.mu.Unlock()
}

func (c *chain) Close() {
	c.closedOnce.Do(func() {
		c.backlog.Close()
		c.live.Close()
	})
}
