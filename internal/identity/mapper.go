package identity

import (
	"context"
	"errors"
	"fmt"
	"github.com/ariefcatur/woodchain/internal/ledger"
	"github.com/ariefcatur/woodchain/internal/redisx"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/redis/go-redis/v9"
)

var (
	ErrUnbound  = errors.New("no ledger identity bound to user")
	ErrMismatch = errors.New("bound ledger address does not match derived key")
)

// Mapper resolves the ledger identity an actor's writes are sent from.
type Mapper interface {
	Resolve(ctx context.Context, userID int64) (ledger.Identity, error)
}

// Execer is satisfied by *pgxpool.Pool and pgx.Tx, so Bind can join the signup transaction.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

type DB interface {
	Execer
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Registry maps users to addresses bound in ledger_accounts, signing with keys re-derived from the keyring.
type Registry struct {
	DB       DB
	Redis    *redis.Client // optional address cache
	Keys     *Keyring
	Autobind bool // bind on first resolve for users created before bindings existed
}

func (r *Registry) Resolve(ctx context.Context, userID int64) (ledger.Identity, error) {
	addr, err := r.lookup(ctx, userID)
	if errors.Is(err, ErrUnbound) && r.Autobind {
		addr, err = r.Bind(ctx, r.DB, userID)
	}
	if err != nil {
		return ledger.Identity{}, err
	}
	key, err := r.Keys.Derive(userID)
	if err != nil {
		return ledger.Identity{}, err
	}
	if crypto.PubkeyToAddress(key.PublicKey) != addr {
		return ledger.Identity{}, fmt.Errorf("user %d: %w", userID, ErrMismatch)
	}
	return ledger.Identity{Address: addr, Key: key}, nil
}

// Bind stores the user's derived address through q. Binding an already bound user is a no-op.
func (r *Registry) Bind(ctx context.Context, q Execer, userID int64) (common.Address, error) {
	key, err := r.Keys.Derive(userID)
	if err != nil {
		return common.Address{}, err
	}
	addr := crypto.PubkeyToAddress(key.PublicKey)
	if _, err := q.Exec(ctx, `
		INSERT INTO ledger_accounts(user_id, address) VALUES ($1, $2)
		ON CONFLICT (user_id) DO NOTHING`, userID, addr.Hex()); err != nil {
		return common.Address{}, fmt.Errorf("bind ledger address for user %d: %w", userID, err)
	}
	return addr, nil
}

func (r *Registry) lookup(ctx context.Context, userID int64) (common.Address, error) {
	key := fmt.Sprintf(redisx.KeyLedgerAddr, userID)
	if r.Redis != nil {
		if s, err := r.Redis.Get(ctx, key).Result(); err == nil && common.IsHexAddress(s) {
			return common.HexToAddress(s), nil
		}
	}

	var s string
	err := r.DB.QueryRow(ctx, `SELECT address FROM ledger_accounts WHERE user_id = $1`, userID).Scan(&s)
	if errors.Is(err, pgx.ErrNoRows) {
		return common.Address{}, fmt.Errorf("user %d: %w", userID, ErrUnbound)
	}
	if err != nil {
		return common.Address{}, err
	}
	if r.Redis != nil {
		_ = r.Redis.Set(ctx, key, s, redisx.TTLLedgerAddr).Err()
	}
	return common.HexToAddress(s), nil
}

// AccountLister is implemented by *ledger.Client.
type AccountLister interface {
	Accounts(ctx context.Context) ([]common.Address, error)
}

// FirstAccount sends every write from the node's first unlocked account regardless of the actor.
// Only meant for local development chains.
type FirstAccount struct {
	Node AccountLister
}

func (f FirstAccount) Resolve(ctx context.Context, _ int64) (ledger.Identity, error) {
	accs, err := f.Node.Accounts(ctx)
	if err != nil {
		return ledger.Identity{}, err
	}
	if len(accs) == 0 {
		return ledger.Identity{}, ledger.ErrNoNodeAccounts
	}
	return ledger.Identity{Address: accs[0]}, nil
}
