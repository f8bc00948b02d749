// Package sim drives a concurrent workload against a ledger: one goroutine
// per user account, each performing a run of random transfers, deposits,
// withdrawals, and balance views. It exists to exercise the locking and
// rollback protocol end to end under real contention.
package sim

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/rs/zerolog"

	"github.com/fin-labs/ledgerd/pkg/ledger"
)

// Config controls a simulation run.
type Config struct {
	// Users is the number of concurrent accounts, named User1..UserN.
	Users int

	// OpsPerUser is how many random operations each account performs.
	OpsPerUser int

	// InitialBalance is the balance each account is created with.
	InitialBalance int64

	// MinDelay and MaxDelay bound the jittered sleep between operations.
	MinDelay time.Duration
	MaxDelay time.Duration
}

// DefaultConfig returns a Config matching a short demo run.
func DefaultConfig() Config {
	return Config{
		Users:          3,
		OpsPerUser:     10,
		InitialBalance: 1000,
		MinDelay:       10 * time.Millisecond,
		MaxDelay:       50 * time.Millisecond,
	}
}

// Run pre-creates the accounts, runs every user's operations concurrently,
// and waits for all of them to finish. Domain failures (insufficient funds
// and the like) are expected during a run and are only counted; I/O
// failures are logged.
func Run(ctx context.Context, l *ledger.Ledger, cfg Config, logger zerolog.Logger) error {
	if cfg.Users < 2 {
		return fmt.Errorf("sim: need at least 2 users, got %d", cfg.Users)
	}
	if cfg.OpsPerUser <= 0 {
		return fmt.Errorf("sim: ops per user must be positive, got %d", cfg.OpsPerUser)
	}

	users := make([]string, cfg.Users)
	for i := range users {
		users[i] = fmt.Sprintf("User%d", i+1)
	}

	for _, id := range users {
		if err := l.Create(id, cfg.InitialBalance); err != nil {
			if errors.Is(err, ledger.ErrAccountExists) {
				continue
			}
			return fmt.Errorf("sim: create %s: %w", id, err)
		}
	}
	logger.Info().Int("users", cfg.Users).Int("ops_per_user", cfg.OpsPerUser).Msg("simulation starting")

	done := make(chan struct{}, cfg.Users)
	for i, id := range users {
		go func(seed int64, id string) {
			defer func() { done <- struct{}{} }()
			rng := rand.New(rand.NewSource(seed))
			u := user{ledger: l, id: id, peers: peersOf(users, id), cfg: cfg, rng: rng, log: logger}
			u.run(ctx)
		}(time.Now().UnixNano()+int64(i), id)
	}
	for range users {
		select {
		case <-done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	logger.Info().Msg("simulation finished")
	return nil
}

func peersOf(users []string, self string) []string {
	peers := make([]string, 0, len(users)-1)
	for _, u := range users {
		if u != self {
			peers = append(peers, u)
		}
	}
	return peers
}

type user struct {
	ledger *ledger.Ledger
	id     string
	peers  []string
	cfg    Config
	rng    *rand.Rand
	log    zerolog.Logger
}

func (u *user) run(ctx context.Context) {
	for i := 0; i < u.cfg.OpsPerUser; i++ {
		if ctx.Err() != nil {
			return
		}
		u.step()
		u.sleep(ctx)
	}
}

func (u *user) step() {
	var err error
	switch u.rng.Intn(4) {
	case 0:
		target := u.peers[u.rng.Intn(len(u.peers))]
		amount := int64(u.rng.Intn(991) + 10)
		err = u.ledger.Transfer(u.id, target, amount)
	case 1:
		_, err = u.ledger.Deposit(u.id, int64(u.rng.Intn(491)+10))
	case 2:
		_, err = u.ledger.Withdraw(u.id, int64(u.rng.Intn(491)+10))
	case 3:
		_, err = u.ledger.View(u.id)
	}
	if err == nil {
		return
	}
	// Contention over a shared pot makes these routine, not errors.
	if errors.Is(err, ledger.ErrInsufficientFunds) || errors.Is(err, ledger.ErrNoSuchAccount) {
		u.log.Debug().Err(err).Str("user", u.id).Msg("operation rejected")
		return
	}
	u.log.Warn().Err(err).Str("user", u.id).Msg("operation failed")
}

func (u *user) sleep(ctx context.Context) {
	span := u.cfg.MaxDelay - u.cfg.MinDelay
	d := u.cfg.MinDelay
	if span > 0 {
		d += time.Duration(u.rng.Int63n(int64(span)))
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
