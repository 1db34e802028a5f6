package social

import (
	"context"
	"errors"
	"hash/fnv"
	"strings"
	"sync"

	"github.com/duochat/server/model"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	// ErrNotFound means the referenced account does not exist.
	ErrNotFound = errors.New("social: account not found")
	// ErrSelfRequest means an account tried to friend itself.
	ErrSelfRequest = errors.New("social: cannot add self")
	// ErrAlreadyRelated means a request is already pending or the pair are
	// already friends.
	ErrAlreadyRelated = errors.New("social: request already sent or already friends")
	// ErrNoSuchRequest means there is no pending request to accept.
	ErrNoSuchRequest = errors.New("social: no friend request from this user")
)

const lockStripes = 64

// Graph owns the friend / pending-request / blocked state and its
// transition rules. Mutations to any account's relationship rows are
// serialized through striped per-account mutexes; operations touching two
// accounts take both stripes in a fixed order, and the writes themselves
// run in one transaction so the symmetry invariant holds on return.
type Graph struct {
	db     *gorm.DB
	locks  [lockStripes]sync.Mutex
	logger *zap.Logger
}

// NewGraph creates a Graph over the given database.
func NewGraph(db *gorm.DB, logger *zap.Logger) *Graph {
	return &Graph{db: db, logger: logger}
}

func stripe(name string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(name))
	return int(h.Sum32() % lockStripes)
}

// lockPair locks the stripes for both usernames in index order (a single
// stripe is locked once). Returns the unlock function.
func (g *Graph) lockPair(a, b string) func() {
	i, j := stripe(a), stripe(b)
	if i > j {
		i, j = j, i
	}
	g.locks[i].Lock()
	if j != i {
		g.locks[j].Lock()
	}
	return func() {
		if j != i {
			g.locks[j].Unlock()
		}
		g.locks[i].Unlock()
	}
}

// SendRequest records that `from` asked `to` for friendship. The pending
// row is owned by the recipient. Neither side's blocked set is consulted;
// a blocked user may still send a request (documented behavior of the
// original service, kept as-is).
func (g *Graph) SendRequest(ctx context.Context, from, to string) error {
	unlock := g.lockPair(from, to)
	defer unlock()

	var target model.Account
	if err := g.db.WithContext(ctx).Where("username = ?", to).First(&target).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotFound
		}
		return err
	}
	if from == to {
		return ErrSelfRequest
	}

	var count int64
	err := g.db.WithContext(ctx).Model(&model.Relation{}).
		Where("(username = ? AND other = ? AND kind = ?) OR (username = ? AND other = ? AND kind = ?)",
			to, from, model.RelationPending, from, to, model.RelationFriend).
		Count(&count).Error
	if err != nil {
		return err
	}
	if count > 0 {
		return ErrAlreadyRelated
	}

	rel := &model.Relation{Username: to, Other: from, Kind: model.RelationPending}
	if err := g.db.WithContext(ctx).Create(rel).Error; err != nil {
		// Unique index: a concurrent duplicate request lost the race.
		if isUniqueViolation(err) {
			return ErrAlreadyRelated
		}
		return err
	}
	return nil
}

// AcceptRequest removes requester from owner's inbound set and makes the
// pair friends in both directions, as one transaction. Re-running after a
// failed attempt converges: the friend rows are upserts and the pending
// delete gates the whole unit.
func (g *Graph) AcceptRequest(ctx context.Context, owner, requester string) error {
	unlock := g.lockPair(owner, requester)
	defer unlock()

	return g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("username = ? AND other = ? AND kind = ?",
			owner, requester, model.RelationPending).
			Delete(&model.Relation{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNoSuchRequest
		}
		rows := []model.Relation{
			{Username: owner, Other: requester, Kind: model.RelationFriend},
			{Username: requester, Other: owner, Kind: model.RelationFriend},
		}
		return tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&rows).Error
	})
}

// Unfriend removes the friendship in both directions. Idempotent: removing
// a friendship that does not exist is not an error.
func (g *Graph) Unfriend(ctx context.Context, a, b string) error {
	unlock := g.lockPair(a, b)
	defer unlock()

	return g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Where(
			"(username = ? AND other = ?) OR (username = ? AND other = ?)",
			a, b, b, a).
			Where("kind = ?", model.RelationFriend).
			Delete(&model.Relation{}).Error
	})
}

// Block removes any friendship between owner and target and records a
// directed blocked edge owned by the blocker. The target can still send a
// new friend request afterwards; SendRequest does not consult blocks.
func (g *Graph) Block(ctx context.Context, owner, target string) error {
	unlock := g.lockPair(owner, target)
	defer unlock()

	return g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where(
			"(username = ? AND other = ?) OR (username = ? AND other = ?)",
			owner, target, target, owner).
			Where("kind = ?", model.RelationFriend).
			Delete(&model.Relation{}).Error; err != nil {
			return err
		}
		rel := &model.Relation{Username: owner, Other: target, Kind: model.RelationBlocked}
		return tx.Clauses(clause.OnConflict{DoNothing: true}).Create(rel).Error
	})
}

// Snapshot returns the account's friends and inbound pending requests.
// The blocked set is write-only from the subject's perspective and is not
// returned.
func (g *Graph) Snapshot(ctx context.Context, username string) (friends, pending []string, err error) {
	var rels []model.Relation
	err = g.db.WithContext(ctx).
		Where("username = ? AND kind IN ?", username, []int{model.RelationFriend, model.RelationPending}).
		Order("created_at").
		Find(&rels).Error
	if err != nil {
		return nil, nil, err
	}
	friends = make([]string, 0, len(rels))
	pending = make([]string, 0)
	for _, r := range rels {
		switch r.Kind {
		case model.RelationFriend:
			friends = append(friends, r.Other)
		case model.RelationPending:
			pending = append(pending, r.Other)
		}
	}
	return friends, pending, nil
}

// IsBlocked reports whether owner has blocked target.
func (g *Graph) IsBlocked(ctx context.Context, owner, target string) (bool, error) {
	var count int64
	err := g.db.WithContext(ctx).Model(&model.Relation{}).
		Where("username = ? AND other = ? AND kind = ?", owner, target, model.RelationBlocked).
		Count(&count).Error
	return count > 0, err
}

// isUniqueViolation detects duplicate-key errors from common database drivers.
func isUniqueViolation(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique") ||
		strings.Contains(msg, "duplicate") ||
		strings.Contains(msg, "already exists")
}
