package services

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"roast-battle/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var testEpoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "roast.db")
	db, err := gorm.Open(sqlite.Open(path+"?_busy_timeout=5000"), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := db.AutoMigrate(models.AllModels()...); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

// stepClock returns a clock that advances one second per call.
func stepClock() func() time.Time {
	var mu sync.Mutex
	now := testEpoch
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		now = now.Add(time.Second)
		return now
	}
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func seedRound(t *testing.T, db *gorm.DB, status models.RoundStatus) *models.Round {
	t.Helper()
	id := uuid.NewString()
	round := &models.Round{
		ID:        id,
		Slug:      "test-round-" + id[:8],
		Theme:     "Clowns who think they are CEOs",
		StartsAt:  testEpoch.Add(-time.Hour),
		EndsAt:    testEpoch.Add(23 * time.Hour),
		Status:    status,
		EntryFee:  decimal.NewFromInt(50000),
		PoolShare: decimal.NewFromInt(35000),
		PrizePool: decimal.Zero,
	}
	if err := db.Create(round).Error; err != nil {
		t.Fatalf("seed round: %v", err)
	}
	return round
}

// seedEntry inserts an entry directly. A non-empty paymentRef confirms it; a non-nil score scores it.
func seedEntry(t *testing.T, db *gorm.DB, roundID string, participantID int64, createdAt time.Time, paymentRef string, score *int) *models.Entry {
	t.Helper()
	e := &models.Entry{
		ID:            uuid.NewString(),
		RoundID:       roundID,
		ParticipantID: participantID,
		Text:          "you look like a rejected balloon animal",
		CreatedAt:     createdAt,
	}
	if paymentRef != "" {
		ref := paymentRef
		e.PaymentRef = &ref
		at := createdAt
		e.ConfirmedAt = &at
	}
	if score != nil {
		s := *score
		e.Score = &s
	}
	if err := db.Create(e).Error; err != nil {
		t.Fatalf("seed entry: %v", err)
	}
	return e
}

func seedParticipant(t *testing.T, db *gorm.DB, id int64, wallet string) {
	t.Helper()
	p := &models.Participant{ID: id}
	if wallet != "" {
		p.WalletAddress = &wallet
	}
	if err := db.Create(p).Error; err != nil {
		t.Fatalf("seed participant: %v", err)
	}
}

func intPtr(v int) *int { return &v }

func reloadEntry(t *testing.T, db *gorm.DB, id string) *models.Entry {
	t.Helper()
	var e models.Entry
	if err := db.First(&e, "id = ?", id).Error; err != nil {
		t.Fatalf("reload entry %s: %v", id, err)
	}
	return &e
}

func reloadRound(t *testing.T, db *gorm.DB, id string) *models.Round {
	t.Helper()
	var r models.Round
	if err := db.First(&r, "id = ?", id).Error; err != nil {
		t.Fatalf("reload round %s: %v", id, err)
	}
	return &r
}

type fakeVerifier struct {
	mu     sync.Mutex
	status PaymentStatus
	err    error
	calls  []string
}

func (f *fakeVerifier) Verify(_ context.Context, ref string) (PaymentStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, ref)
	return f.status, f.err
}

type fakeEnqueuer struct {
	mu  sync.Mutex
	ids []string
}

func (f *fakeEnqueuer) Enqueue(entryID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ids = append(f.ids, entryID)
	return true
}

type fakeJudge struct {
	mu       sync.Mutex
	requests []JudgeRequest
	judge    func(req JudgeRequest) ([]JudgeVerdict, error)
}

func (f *fakeJudge) Judge(_ context.Context, req JudgeRequest) ([]JudgeVerdict, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()
	return f.judge(req)
}

// uniformJudge returns a judge that gives every entry the same sub-scores.
func uniformJudge(h, c, r, s float64) *fakeJudge {
	return &fakeJudge{judge: func(req JudgeRequest) ([]JudgeVerdict, error) {
		out := make([]JudgeVerdict, 0, len(req.Entries))
		for _, e := range req.Entries {
			out = append(out, JudgeVerdict{EntryID: e.ID, Humor: h, Creativity: c, Relevance: r, Savagery: s, Feedback: "fine"})
		}
		return out, nil
	}}
}

type fakePayments struct {
	mu      sync.Mutex
	openErr error
	payErr  map[string]error // keyed by recipient
	opened  []string
	paid    []string
}

func (f *fakePayments) OpenRound(_ context.Context, roundID string, _ decimal.Decimal) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.openErr != nil {
		return "", f.openErr
	}
	f.opened = append(f.opened, roundID)
	return "0xopen-" + roundID[:8], nil
}

func (f *fakePayments) Pay(_ context.Context, _ string, amount decimal.Decimal, recipient string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.payErr[recipient]; err != nil {
		return "", err
	}
	f.paid = append(f.paid, recipient+":"+amount.String())
	return "0xpay-" + recipient, nil
}
