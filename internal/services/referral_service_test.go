package services

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"hivox/internal/database"
	"hivox/internal/models"
	"hivox/internal/repository"
	"hivox/internal/rewards"
)

func setupTestDB(t testing.TB) *gorm.DB {
	// Each test gets its own named in-memory database; cache=shared lets every
	// pooled connection see it, and a single connection serializes writers.
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", name)), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("failed to connect database: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to get sql.DB: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	if err := database.AutoMigrate(db); err != nil {
		t.Fatalf("failed to migrate database: %v", err)
	}

	return db
}

func testWallet(n int) string {
	return fmt.Sprintf("0x%040x", n)
}

func testTxHash(n int) string {
	return fmt.Sprintf("0x%064x", n)
}

func newReferralService(db *gorm.DB) *ReferralService {
	return NewReferralService(db, rewards.Default(), ReferralOptions{FrontendURL: "https://hivox.app"})
}

func connect(t *testing.T, s *ReferralService, wallet, code string) *models.User {
	t.Helper()
	result, err := s.ConnectWallet(context.Background(), wallet, code)
	if err != nil {
		t.Fatalf("ConnectWallet(%s, %q) failed: %v", wallet, code, err)
	}
	return result.User
}

func loadUser(t *testing.T, db *gorm.DB, wallet string) *models.User {
	t.Helper()
	user, err := repository.NewRepository(db).GetUserByWallet(context.Background(), wallet)
	if err != nil {
		t.Fatalf("failed to load user %s: %v", wallet, err)
	}
	return user
}

func countActivities(t *testing.T, db *gorm.DB, wallet string, activityType models.ActivityType) int64 {
	t.Helper()
	var count int64
	db.Model(&models.Activity{}).
		Where("wallet_address = ? AND activity_type = ?", wallet, activityType).
		Count(&count)
	return count
}

func TestConnectWalletCreatesUser(t *testing.T) {
	db := setupTestDB(t)
	service := newReferralService(db)

	mixedCase := "0x52908400098527886E0F7030069857D2E4169EE7"
	result, err := service.ConnectWallet(context.Background(), mixedCase, "")
	if err != nil {
		t.Fatalf("ConnectWallet failed: %v", err)
	}
	if !result.IsNewUser || result.ReferralApplied {
		t.Errorf("unexpected result flags %+v", result)
	}

	user := result.User
	if user.WalletAddress != strings.ToLower(mixedCase) {
		t.Errorf("expected lowercase wallet, got %s", user.WalletAddress)
	}
	if !regexp.MustCompile(`^[A-Z0-9]{8}$`).MatchString(user.ReferralCode) {
		t.Errorf("unexpected referral code %q", user.ReferralCode)
	}
	if user.TotalConnections != 1 || user.ClaimStatus != models.UserClaimStatusNotClaimed {
		t.Errorf("unexpected initial state %+v", user)
	}
	if user.ReferrerAddress != nil || len(user.ReferralChain) != 0 {
		t.Errorf("expected no referrer, got %v / %v", user.ReferrerAddress, user.ReferralChain)
	}
	if n := countActivities(t, db, user.WalletAddress, models.ActivityWalletConnected); n != 1 {
		t.Errorf("expected 1 wallet_connected activity, got %d", n)
	}

	// Reconnecting only refreshes counters
	again, err := service.ConnectWallet(context.Background(), user.WalletAddress, "")
	if err != nil {
		t.Fatalf("reconnect failed: %v", err)
	}
	if again.IsNewUser || again.User.TotalConnections != 2 || again.User.ReferralCode != user.ReferralCode {
		t.Errorf("unexpected reconnect result %+v", again.User)
	}
}

func TestConnectWalletRejectsInvalidAddress(t *testing.T) {
	service := newReferralService(setupTestDB(t))

	for _, addr := range []string{"", "0x123", "52908400098527886E0F7030069857D2E4169EE7"} {
		_, err := service.ConnectWallet(context.Background(), addr, "")
		var verr *ValidationError
		if !errors.As(err, &verr) || verr.Fields[0].Field != "walletAddress" {
			t.Errorf("%q: expected walletAddress validation error, got %v", addr, err)
		}
	}
}

func TestReferrerIsImmutable(t *testing.T) {
	db := setupTestDB(t)
	service := newReferralService(db)

	a := connect(t, service, testWallet(1), "")
	b := connect(t, service, testWallet(2), "")
	c := connect(t, service, testWallet(3), a.ReferralCode)

	if c.ReferrerAddress == nil || *c.ReferrerAddress != a.WalletAddress {
		t.Fatalf("expected referrer %s, got %v", a.WalletAddress, c.ReferrerAddress)
	}

	result, err := service.ConnectWallet(context.Background(), c.WalletAddress, b.ReferralCode)
	if err != nil {
		t.Fatalf("reconnect failed: %v", err)
	}
	if result.ReferralApplied {
		t.Error("a returning user must not have a referral applied")
	}

	reloaded := loadUser(t, db, c.WalletAddress)
	if reloaded.ReferrerAddress == nil || *reloaded.ReferrerAddress != a.WalletAddress {
		t.Errorf("referrer changed to %v", reloaded.ReferrerAddress)
	}
	if len(reloaded.ReferralChain) != 1 || reloaded.ReferralChain[0].WalletAddress != a.WalletAddress {
		t.Errorf("chain changed: %+v", reloaded.ReferralChain)
	}
}

func TestNoSelfReferral(t *testing.T) {
	db := setupTestDB(t)
	service := newReferralService(db)

	a := connect(t, service, testWallet(1), "")
	connect(t, service, a.WalletAddress, a.ReferralCode)
	if reloaded := loadUser(t, db, a.WalletAddress); reloaded.ReferrerAddress != nil {
		t.Errorf("user became its own referrer")
	}

	// A new wallet using its own address as the code resolves to nobody
	w := testWallet(2)
	user := connect(t, service, w, w)
	if user.ReferrerAddress != nil {
		t.Errorf("expected no referrer, got %s", *user.ReferrerAddress)
	}

	strict := NewReferralService(db, rewards.Default(), ReferralOptions{StrictCodes: true})
	result, err := strict.resolveReferrer(context.Background(), a.WalletAddress, a.ReferralCode)
	var verr *ValidationError
	if result != nil || !errors.As(err, &verr) {
		t.Errorf("strict mode: expected validation error for self referral, got %v / %v", result, err)
	}
}

func TestReferralChainIsBounded(t *testing.T) {
	db := setupTestDB(t)
	service := newReferralService(db)

	users := []*models.User{connect(t, service, testWallet(1), "")}
	for i := 2; i <= 5; i++ {
		users = append(users, connect(t, service, testWallet(i), users[len(users)-1].ReferralCode))
	}

	for i, user := range users {
		want := i
		if want > models.MaxReferralLevels {
			want = models.MaxReferralLevels
		}
		chain := loadUser(t, db, user.WalletAddress).ReferralChain
		if len(chain) != want {
			t.Fatalf("user %d: expected chain length %d, got %d", i+1, want, len(chain))
		}
		for j, entry := range chain {
			if entry.Level != j+1 {
				t.Errorf("user %d: entry %d has level %d", i+1, j, entry.Level)
			}
			if ancestor := users[i-j-1]; entry.WalletAddress != ancestor.WalletAddress || entry.ReferralCode != ancestor.ReferralCode {
				t.Errorf("user %d: level %d is %s, expected %s", i+1, entry.Level, entry.WalletAddress, ancestor.WalletAddress)
			}
		}
	}

	// The fifth user produced one edge and one activity per ancestor level
	fifth := users[4].WalletAddress
	var edges []models.Referral
	db.Where("referred_address = ?", fifth).Order("referral_level").Find(&edges)
	if len(edges) != 3 {
		t.Fatalf("expected 3 referral edges, got %d", len(edges))
	}
	wantPct := []string{"10", "5", "2"}
	for i, edge := range edges {
		if edge.ReferrerAddress != users[3-i].WalletAddress {
			t.Errorf("level %d edge points to %s", edge.ReferralLevel, edge.ReferrerAddress)
		}
		if !edge.RewardPercentage.Equal(decimal.RequireFromString(wantPct[i])) {
			t.Errorf("level %d edge percentage %s", edge.ReferralLevel, edge.RewardPercentage)
		}
		if edge.Status != models.ReferralStatusActive {
			t.Errorf("level %d edge status %s", edge.ReferralLevel, edge.Status)
		}
	}

	// users[1] was notified by users 3, 4 and 5 at levels 1, 2 and 3
	if n := countActivities(t, db, users[1].WalletAddress, models.ActivityReferralCreated); n != 3 {
		t.Errorf("expected 3 referral_created activities, got %d", n)
	}
	// users[0] is beyond level 3 for the fifth user
	if n := countActivities(t, db, users[0].WalletAddress, models.ActivityReferralCreated); n != 3 {
		t.Errorf("expected 3 referral_created activities for the root, got %d", n)
	}
}

func TestUnknownReferralCode(t *testing.T) {
	db := setupTestDB(t)
	service := newReferralService(db)

	result, err := service.ConnectWallet(context.Background(), testWallet(4), "NOPE1234")
	if err != nil {
		t.Fatalf("unknown code must be ignored, got %v", err)
	}
	if result.ReferralApplied || result.User.ReferrerAddress != nil || len(result.User.ReferralChain) != 0 {
		t.Errorf("unexpected referral state %+v", result.User)
	}

	strict := NewReferralService(db, rewards.Default(), ReferralOptions{StrictCodes: true})
	_, err = strict.ConnectWallet(context.Background(), testWallet(5), "NOPE1234")
	var verr *ValidationError
	if !errors.As(err, &verr) || verr.Fields[0].Field != "referralCode" {
		t.Errorf("strict mode: expected referralCode validation error, got %v", err)
	}

	var count int64
	db.Model(&models.User{}).Where("wallet_address = ?", testWallet(5)).Count(&count)
	if count != 0 {
		t.Error("rejected connect must not create the user")
	}
}

func TestReferralCodeMatching(t *testing.T) {
	db := setupTestDB(t)
	service := newReferralService(db)

	a := connect(t, service, testWallet(1), "")

	b := connect(t, service, testWallet(2), "  "+strings.ToLower(a.ReferralCode)+" ")
	if b.ReferrerAddress == nil || *b.ReferrerAddress != a.WalletAddress {
		t.Errorf("lowercase code did not resolve")
	}

	// Links from the address-as-code scheme still resolve
	c := connect(t, service, testWallet(3), strings.ToUpper(a.WalletAddress[2:]))
	if c.ReferrerAddress != nil {
		t.Errorf("an address without 0x is not a code")
	}
	d := connect(t, service, testWallet(4), "0x"+strings.ToUpper(a.WalletAddress[2:]))
	if d.ReferrerAddress == nil || *d.ReferrerAddress != a.WalletAddress {
		t.Errorf("address-as-code did not resolve")
	}
}

func TestWalkUplineStopsOnCycle(t *testing.T) {
	db := setupTestDB(t)
	service := newReferralService(db)

	a := connect(t, service, testWallet(1), "")
	b := connect(t, service, testWallet(2), a.ReferralCode)

	// Corrupt the graph: a now points back at b
	db.Model(&models.User{}).Where("id = ?", a.ID).Update("referrer_address", b.WalletAddress)

	repo := repository.NewRepository(db)
	ancestors, err := walkUpline(context.Background(), repo, b.WalletAddress, &a.WalletAddress, 3)
	if err != nil {
		t.Fatalf("walkUpline failed: %v", err)
	}
	if len(ancestors) != 1 || ancestors[0].WalletAddress != a.WalletAddress {
		t.Errorf("expected only %s, got %d ancestors", a.WalletAddress, len(ancestors))
	}

	// A new user under b sees b and a once each
	c := connect(t, service, testWallet(3), b.ReferralCode)
	if len(c.ReferralChain) != 2 {
		t.Errorf("expected chain of 2 on a cyclic graph, got %+v", c.ReferralChain)
	}
}

func TestGetReferralOverview(t *testing.T) {
	db := setupTestDB(t)
	service := newReferralService(db)

	a := connect(t, service, testWallet(1), "")
	b := connect(t, service, testWallet(2), a.ReferralCode)
	connect(t, service, testWallet(3), b.ReferralCode)
	connect(t, service, testWallet(4), a.ReferralCode)

	overview, err := service.GetReferralOverview(context.Background(), a.WalletAddress)
	if err != nil {
		t.Fatalf("GetReferralOverview failed: %v", err)
	}
	if overview.TotalReferrals != 3 {
		t.Errorf("expected 3 referrals, got %d", overview.TotalReferrals)
	}
	if overview.Levels[0].Count != 2 || overview.Levels[1].Count != 1 || overview.Levels[2].Count != 0 {
		t.Errorf("unexpected level counts %+v", overview.Levels)
	}
	if overview.ReferralLink != "https://hivox.app?ref="+a.ReferralCode {
		t.Errorf("unexpected link %s", overview.ReferralLink)
	}
	if overview.TableVersion != "v2" {
		t.Errorf("unexpected table version %s", overview.TableVersion)
	}

	_, err = service.GetReferralOverview(context.Background(), testWallet(99))
	var nf *NotFoundError
	if !errors.As(err, &nf) {
		t.Errorf("expected NotFoundError, got %v", err)
	}
}
