package store

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/starford/heirloom/internal/apperr"
	"github.com/starford/heirloom/internal/models"
)

const (
	owner = "0x1111111111111111111111111111111111111111"
	heir  = "0x2222222222222222222222222222222222222222"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	f, err := os.CreateTemp("", "heirloom-store-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	f.Close()
	t.Cleanup(func() { os.Remove(f.Name()) })

	db, err := Open(f.Name())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func samplePlan(now time.Time) *models.Plan {
	return &models.Plan{
		OwnerAddress: owner,
		OwnerEmail:   "Owner@Example.com",
		Inheritors: []models.Inheritor{
			{Address: heir, SharePercentage: 60, Email: "a@example.com"},
			{Address: models.ZeroAddress, SharePercentage: 40, Email: "b@example.com",
				SecretQuestion: "pet?", SecretAnswerHash: "0xabc"},
		},
		Tokens:                 []models.Token{{Address: models.ZeroAddress, Type: models.TokenNative}},
		CheckInIntervalSeconds: 3600,
		LastCheckInAt:          now,
		CreatedAt:              now,
		UpdatedAt:              now,
	}
}

func activity(typ models.ActivityType, at time.Time) models.Activity {
	return models.Activity{OwnerAddress: owner, Type: typ, Description: string(typ), Timestamp: at}
}

func TestSchemaCreation(t *testing.T) {
	db := testDB(t)
	for _, table := range []string{"plans", "inheritors", "tokens", "activities", "check_ins"} {
		var count int
		if err := db.conn.QueryRow(`SELECT count(*) FROM ` + table).Scan(&count); err != nil {
			t.Fatalf("%s table missing: %v", table, err)
		}
	}
}

func TestCreateAndGetPlan(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	now := time.UnixMilli(1_700_000_000_000).UTC()

	if err := db.CreatePlan(ctx, samplePlan(now), activity(models.ActivityPlanCreated, now)); err != nil {
		t.Fatalf("CreatePlan: %v", err)
	}
	p, err := db.GetPlan(ctx, owner)
	if err != nil {
		t.Fatalf("GetPlan: %v", err)
	}
	if len(p.Inheritors) != 2 || p.Inheritors[1].SecretAnswerHash != "0xabc" {
		t.Errorf("inheritors = %+v", p.Inheritors)
	}
	if len(p.Tokens) != 1 || p.Tokens[0].Type != models.TokenNative {
		t.Errorf("tokens = %+v", p.Tokens)
	}
	if !p.LastCheckInAt.Equal(now) {
		t.Errorf("LastCheckInAt = %v, want %v", p.LastCheckInAt, now)
	}
	if p.Version != 1 {
		t.Errorf("Version = %d, want 1", p.Version)
	}
}

func TestCreateDuplicate(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	now := time.Now()
	_ = db.CreatePlan(ctx, samplePlan(now), activity(models.ActivityPlanCreated, now))
	err := db.CreatePlan(ctx, samplePlan(now), activity(models.ActivityPlanCreated, now))
	if !errors.Is(err, apperr.ErrAlreadyExists) {
		t.Fatalf("duplicate create err = %v, want ErrAlreadyExists", err)
	}
}

func TestGetPlan_NotFound(t *testing.T) {
	db := testDB(t)
	_, err := db.GetPlan(context.Background(), "0xdead")
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestFindPlanByOwnerEmail(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	now := time.Now()
	_ = db.CreatePlan(ctx, samplePlan(now), activity(models.ActivityPlanCreated, now))

	p, err := db.FindPlanByOwnerEmail(ctx, "  owner@EXAMPLE.com ")
	if err != nil {
		t.Fatalf("FindPlanByOwnerEmail: %v", err)
	}
	if p.OwnerAddress != owner {
		t.Errorf("owner = %q", p.OwnerAddress)
	}
	if _, err := db.FindPlanByOwnerEmail(ctx, "nobody@example.com"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestRecordCheckIn(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	start := time.UnixMilli(1_700_000_000_000).UTC()
	_ = db.CreatePlan(ctx, samplePlan(start), activity(models.ActivityPlanCreated, start))

	at := start.Add(10 * time.Minute)
	p, err := db.RecordCheckIn(ctx, owner, func(p *models.Plan) (models.CheckIn, models.Activity, error) {
		since := int64(at.Sub(p.LastCheckInAt) / time.Second)
		return models.CheckIn{OwnerAddress: owner, Timestamp: at, SecondsSinceLast: since, TriggeredBy: owner},
			activity(models.ActivityCheckIn, at), nil
	})
	if err != nil {
		t.Fatalf("RecordCheckIn: %v", err)
	}
	if !p.LastCheckInAt.Equal(at) {
		t.Errorf("LastCheckInAt = %v, want %v", p.LastCheckInAt, at)
	}
	cis, _ := db.ListCheckIns(ctx, owner, 10)
	if len(cis) != 1 || cis[0].SecondsSinceLast != 600 {
		t.Fatalf("check-ins = %+v", cis)
	}
	acts, _ := db.ListActivities(ctx, owner, 10)
	if len(acts) != 2 || acts[0].Type != models.ActivityPlanCreated || acts[1].Type != models.ActivityCheckIn {
		t.Errorf("activities out of order: %+v", acts)
	}
}

func TestRecordCheckIn_ConcurrentNeverNegative(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	start := time.UnixMilli(1_700_000_000_000).UTC()
	_ = db.CreatePlan(ctx, samplePlan(start), activity(models.ActivityPlanCreated, start))

	var (
		wg  sync.WaitGroup
		mu  sync.Mutex
		seq int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = db.RecordCheckIn(ctx, owner, func(p *models.Plan) (models.CheckIn, models.Activity, error) {
				mu.Lock()
				seq++
				at := start.Add(time.Duration(seq) * time.Second)
				mu.Unlock()
				since := int64(at.Sub(p.LastCheckInAt) / time.Second)
				return models.CheckIn{OwnerAddress: owner, Timestamp: at, SecondsSinceLast: since},
					activity(models.ActivityCheckIn, at), nil
			})
		}()
	}
	wg.Wait()

	cis, err := db.ListCheckIns(ctx, owner, 100)
	if err != nil {
		t.Fatal(err)
	}
	if len(cis) != 8 {
		t.Fatalf("check-ins = %d, want 8", len(cis))
	}
	for _, c := range cis {
		if c.SecondsSinceLast < 0 {
			t.Errorf("negative secondsSinceLast: %+v", c)
		}
	}
}

func TestMarkClaimInitiated_Once(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	now := time.Now()
	_ = db.CreatePlan(ctx, samplePlan(now), activity(models.ActivityPlanCreated, now))

	ok, err := db.MarkClaimInitiated(ctx, owner, activity(models.ActivityClaimTriggered, now))
	if err != nil || !ok {
		t.Fatalf("first mark = %v, %v", ok, err)
	}
	ok, err = db.MarkClaimInitiated(ctx, owner, activity(models.ActivityClaimTriggered, now))
	if err != nil || ok {
		t.Fatalf("second mark = %v, %v; want false, nil", ok, err)
	}
	acts, _ := db.ListActivities(ctx, owner, 10)
	claims := 0
	for _, a := range acts {
		if a.Type == models.ActivityClaimTriggered {
			claims++
		}
	}
	if claims != 1 {
		t.Errorf("CLAIM_TRIGGERED count = %d, want 1", claims)
	}
	unclaimed, _ := db.ListUnclaimed(ctx)
	if len(unclaimed) != 0 {
		t.Errorf("unclaimed = %d, want 0", len(unclaimed))
	}

	_, err = db.RecordCheckIn(ctx, owner, func(p *models.Plan) (models.CheckIn, models.Activity, error) {
		t.Fatal("fn must not run after claim")
		return models.CheckIn{}, models.Activity{}, nil
	})
	if !errors.Is(err, apperr.ErrConflict) {
		t.Errorf("check-in after claim err = %v, want ErrConflict", err)
	}
}

func TestResolveInheritor(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	now := time.Now()
	_ = db.CreatePlan(ctx, samplePlan(now), activity(models.ActivityPlanCreated, now))

	wallet := "0x3333333333333333333333333333333333333333"
	if err := db.ResolveInheritor(ctx, owner, 1, wallet, now); err != nil {
		t.Fatalf("ResolveInheritor: %v", err)
	}
	p, _ := db.GetPlan(ctx, owner)
	if p.Inheritors[1].Address != wallet {
		t.Errorf("address = %q", p.Inheritors[1].Address)
	}
	if err := db.ResolveInheritor(ctx, owner, 1, wallet, now); !errors.Is(err, apperr.ErrConflict) {
		t.Errorf("second resolve err = %v, want ErrConflict", err)
	}
	if err := db.ResolveInheritor(ctx, owner, 0, wallet, now); !errors.Is(err, apperr.ErrConflict) {
		t.Errorf("resolved slot err = %v, want ErrConflict", err)
	}
	if err := db.ResolveInheritor(ctx, owner, 7, wallet, now); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("missing slot err = %v, want ErrNotFound", err)
	}
}

func TestUpdatePlan_VersionCheck(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	now := time.Now()
	_ = db.CreatePlan(ctx, samplePlan(now), activity(models.ActivityPlanCreated, now))

	p, _ := db.GetPlan(ctx, owner)
	stale := *p
	p.CheckInIntervalSeconds = 7200
	p.Tokens = append(p.Tokens, models.Token{Address: "0x4444444444444444444444444444444444444444", Type: models.TokenERC20})
	if err := db.UpdatePlan(ctx, p, activity(models.ActivityPlanUpdated, now)); err != nil {
		t.Fatalf("UpdatePlan: %v", err)
	}
	got, _ := db.GetPlan(ctx, owner)
	if got.CheckInIntervalSeconds != 7200 || len(got.Tokens) != 2 {
		t.Errorf("update not persisted: %+v", got)
	}
	if err := db.UpdatePlan(ctx, &stale, activity(models.ActivityPlanUpdated, now)); !errors.Is(err, apperr.ErrConflict) {
		t.Errorf("stale update err = %v, want ErrConflict", err)
	}
}

func TestListActivities_LimitKeepsNewest(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	now := time.Now()
	_ = db.CreatePlan(ctx, samplePlan(now), activity(models.ActivityPlanCreated, now))
	for i := 0; i < 3; i++ {
		_ = db.AppendActivity(ctx, models.Activity{OwnerAddress: owner, Type: models.ActivityPlanUpdated,
			Metadata: map[string]any{"n": i}, Timestamp: now})
	}
	acts, err := db.ListActivities(ctx, owner, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(acts) != 2 {
		t.Fatalf("len = %d, want 2", len(acts))
	}
	if acts[0].Metadata["n"] != float64(1) || acts[1].Metadata["n"] != float64(2) {
		t.Errorf("unexpected window: %+v", acts)
	}
}
