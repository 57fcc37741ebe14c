// Package outbox records approved treasury transfers waiting to be broadcast to the settlement rail.
package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/vadiminshakov/gowal"
	"github.com/vadiminshakov/remit/internal/domain"
	"go.uber.org/zap"
)

const (
	// DefaultDir default location of the outbox WAL.
	DefaultDir      = "./wal/outbox"
	intentKeyPrefix = "transfer_intent_"

	StatusPending = "pending"
	StatusDone    = "done"
	StatusFailed  = "failed"
)

// Intent single broadcast request for a completed multisig transfer.
type Intent struct {
	ID                 string       `json:"id"`
	SettlementID       string       `json:"settlement_id"`
	Status             string       `json:"status"`
	Amount             domain.Money `json:"amount"`
	DestinationAddress string       `json:"destination_address"`
	CreatedAt          time.Time    `json:"created_at"`
	UpdatedAt          time.Time    `json:"updated_at"`
	Error              string       `json:"error,omitempty"`
}

// Journal is a WAL-backed transfer outbox. The settlement engine hands completed transfers to it;
// a downstream executor drains Pending and reports back with MarkDone / MarkFailed.
type Journal struct {
	mu      sync.Mutex
	wal     *gowal.Wal
	l       *zap.Logger
	intents []*Intent
	index   map[string]*Intent
}

// NewJournal opens the outbox under dir and replays recorded intents.
func NewJournal(dir string, l *zap.Logger) (*Journal, error) {
	if dir == "" {
		dir = DefaultDir
	}
	if l == nil {
		l = zap.NewNop()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "failed to ensure outbox directory %s", dir)
	}

	wal, err := gowal.NewWAL(gowal.Config{
		Dir:              dir,
		Prefix:           "outbox_",
		SegmentThreshold: 1000,
		MaxSegments:      1 << 20,
		IsInSyncDiskMode: true,
	})
	if err != nil {
		return nil, errors.Wrap(err, "init outbox WAL")
	}

	j := &Journal{wal: wal, l: l, index: make(map[string]*Intent)}
	for msg := range wal.Iterator() {
		if !strings.HasPrefix(msg.Key, intentKeyPrefix) {
			continue
		}
		var intent Intent
		if err := json.Unmarshal(msg.Value, &intent); err != nil {
			l.Error("failed to unmarshal transfer intent", zap.Error(err), zap.String("key", msg.Key))
			continue
		}
		if existing, ok := j.index[intent.ID]; ok {
			*existing = intent
			continue
		}
		intentCopy := intent
		j.intents = append(j.intents, &intentCopy)
		j.index[intent.ID] = &intentCopy
	}

	return j, nil
}

// BroadcastTransfer records a pending intent for a completed transfer.
func (j *Journal) BroadcastTransfer(_ context.Context, tx domain.MultiSigTransaction) error {
	if tx.Status != domain.SettlementCompleted {
		return domain.ErrInvalidStateTransition.Newf("settlement %s is %s, not completed", tx.ID, tx.Status)
	}

	now := time.Now().UTC()
	intent := &Intent{
		ID:                 uuid.New().String(),
		SettlementID:       tx.ID,
		Status:             StatusPending,
		Amount:             tx.Amount,
		DestinationAddress: tx.DestinationAddress,
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	if err := j.persist(intent); err != nil {
		return err
	}
	j.intents = append(j.intents, intent)
	j.index[intent.ID] = intent

	j.l.Info("transfer queued for broadcast",
		zap.String("intent_id", intent.ID),
		zap.String("settlement_id", tx.ID),
		zap.String("amount", tx.Amount.String()))
	return nil
}

// Pending returns copies of intents not yet broadcast.
func (j *Journal) Pending() []Intent {
	j.mu.Lock()
	defer j.mu.Unlock()

	var out []Intent
	for _, intent := range j.intents {
		if intent.Status == StatusPending {
			out = append(out, *intent)
		}
	}
	return out
}

// MarkDone records a successful broadcast.
func (j *Journal) MarkDone(intentID string) error {
	return j.update(intentID, StatusDone, nil)
}

// MarkFailed records a failed broadcast. The settlement itself stays completed.
func (j *Journal) MarkFailed(intentID string, cause error) error {
	return j.update(intentID, StatusFailed, cause)
}

// Close closes the underlying WAL.
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.wal.Close()
}

func (j *Journal) update(intentID, status string, cause error) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	intent, ok := j.index[intentID]
	if !ok {
		return domain.ErrNotFound.Newf("transfer intent %s", intentID)
	}
	updated := *intent
	updated.Status = status
	updated.UpdatedAt = time.Now().UTC()
	updated.Error = ""
	if cause != nil {
		updated.Error = cause.Error()
	}
	if err := j.persist(&updated); err != nil {
		return err
	}
	*intent = updated
	return nil
}

func (j *Journal) persist(intent *Intent) error {
	data, err := json.Marshal(intent)
	if err != nil {
		return errors.Wrap(err, "failed to marshal transfer intent")
	}
	key := fmt.Sprintf("%s%s", intentKeyPrefix, intent.ID)
	nextIndex := j.wal.CurrentIndex() + 1
	return j.wal.Write(nextIndex, key, data)
}
