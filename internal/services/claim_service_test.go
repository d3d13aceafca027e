package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"hivox/internal/blockchain"
	"hivox/internal/models"
	"hivox/internal/rewards"
)

const testContract = "0xde709f2102306220921060314715629080e2fb77"

type testServices struct {
	db        *gorm.DB
	referrals *ReferralService
	rewards   *RewardService
	claims    *ClaimService
}

func newTestServices(t *testing.T, verifier TransactionVerifier) *testServices {
	db := setupTestDB(t)
	table := rewards.Default()
	rewardService := NewRewardService(db, table, 3)
	return &testServices{
		db:        db,
		referrals: NewReferralService(db, table, ReferralOptions{FrontendURL: "https://hivox.app"}),
		rewards:   rewardService,
		claims:    NewClaimService(db, rewardService, verifier),
	}
}

func claimInput(wallet, amount string, tx int) SubmitClaimInput {
	return SubmitClaimInput{
		WalletAddress:   wallet,
		ClaimAmount:     decimal.RequireFromString(amount),
		TransactionHash: testTxHash(tx),
		BlockNumber:     19000000,
		Network:         "ethereum",
		ChainID:         1,
		ContractAddress: testContract,
	}
}

func submit(t *testing.T, s *ClaimService, wallet, amount string, tx int) *models.ClaimHistory {
	t.Helper()
	claim, err := s.SubmitClaim(context.Background(), claimInput(wallet, amount, tx))
	if err != nil {
		t.Fatalf("SubmitClaim(%s) failed: %v", wallet, err)
	}
	return claim
}

func assertRewards(t *testing.T, db *gorm.DB, wallet string, level1, level2, level3 string) {
	t.Helper()
	r := loadUser(t, db, wallet).ReferralRewards
	want := []decimal.Decimal{
		decimal.RequireFromString(level1),
		decimal.RequireFromString(level2),
		decimal.RequireFromString(level3),
	}
	got := []decimal.Decimal{r.Level1, r.Level2, r.Level3}
	for i := range want {
		if !got[i].Equal(want[i]) {
			t.Errorf("%s level %d: expected %s, got %s", wallet, i+1, want[i], got[i])
		}
	}
	if !r.Total.Equal(r.Level1.Add(r.Level2).Add(r.Level3)) {
		t.Errorf("%s total %s is not the sum of its levels", wallet, r.Total)
	}
}

// C signs up with B's code, B with A's code; C claims 1000
func TestSubmitClaimCreditsTwoLevelChain(t *testing.T) {
	s := newTestServices(t, nil)

	a := connect(t, s.referrals, testWallet(1), "")
	b := connect(t, s.referrals, testWallet(2), a.ReferralCode)
	c := connect(t, s.referrals, testWallet(3), b.ReferralCode)

	if len(c.ReferralChain) != 2 || c.ReferralChain[0].WalletAddress != b.WalletAddress || c.ReferralChain[1].WalletAddress != a.WalletAddress {
		t.Fatalf("unexpected chain %+v", c.ReferralChain)
	}

	claim := submit(t, s.claims, c.WalletAddress, "1000", 1)

	assertRewards(t, s.db, b.WalletAddress, "100", "0", "0")
	assertRewards(t, s.db, a.WalletAddress, "0", "50", "0")
	assertRewards(t, s.db, c.WalletAddress, "0", "0", "0")

	claimant := loadUser(t, s.db, c.WalletAddress)
	if !claimant.HasClaimed() || !claimant.TotalTokensClaimed.Equal(decimal.NewFromInt(1000)) || claimant.LastClaimDate == nil {
		t.Errorf("claimant not marked claimed: %+v", claimant)
	}

	if claim.Status != models.ClaimStatusPending || len(claim.ReferralChain) != 2 {
		t.Errorf("unexpected claim %+v", claim)
	}

	credits, err := s.rewards.GetClaimCredits(context.Background(), claim.ID)
	if err != nil || len(credits) != 2 {
		t.Fatalf("expected 2 credits, got %d (%v)", len(credits), err)
	}
	if credits[0].BeneficiaryAddress != b.WalletAddress || credits[1].BeneficiaryAddress != a.WalletAddress {
		t.Errorf("unexpected beneficiaries %+v", credits)
	}

	var edges []models.Referral
	s.db.Where("referred_address = ?", c.WalletAddress).Order("referral_level").Find(&edges)
	if len(edges) != 2 {
		t.Fatalf("expected 2 edges, got %d", len(edges))
	}
	for _, edge := range edges {
		if edge.Status != models.ReferralStatusCompleted || edge.CompletedAt == nil {
			t.Errorf("level %d edge not completed", edge.ReferralLevel)
		}
	}
	if !edges[0].RewardAmount.Equal(decimal.NewFromInt(100)) || !edges[1].RewardAmount.Equal(decimal.NewFromInt(50)) {
		t.Errorf("unexpected edge amounts %s / %s", edges[0].RewardAmount, edges[1].RewardAmount)
	}

	if n := countActivities(t, s.db, b.WalletAddress, models.ActivityReferralReward); n != 1 {
		t.Errorf("expected 1 referral_reward activity for B, got %d", n)
	}
	if n := countActivities(t, s.db, c.WalletAddress, models.ActivityClaimSubmitted); n != 1 {
		t.Errorf("expected 1 claim_submitted activity for C, got %d", n)
	}
}

func TestRewardsStopAtThreeLevels(t *testing.T) {
	s := newTestServices(t, nil)

	users := []*models.User{connect(t, s.referrals, testWallet(1), "")}
	for i := 2; i <= 5; i++ {
		users = append(users, connect(t, s.referrals, testWallet(i), users[len(users)-1].ReferralCode))
	}

	submit(t, s.claims, users[4].WalletAddress, "1000", 1)

	assertRewards(t, s.db, users[3].WalletAddress, "100", "0", "0")
	assertRewards(t, s.db, users[2].WalletAddress, "0", "50", "0")
	assertRewards(t, s.db, users[1].WalletAddress, "0", "0", "20")
	assertRewards(t, s.db, users[0].WalletAddress, "0", "0", "0")
}

func TestRewardsOnlyCreditExistingLevels(t *testing.T) {
	s := newTestServices(t, nil)

	a := connect(t, s.referrals, testWallet(1), "")
	b := connect(t, s.referrals, testWallet(2), a.ReferralCode)
	submit(t, s.claims, b.WalletAddress, "250.5", 1)

	assertRewards(t, s.db, a.WalletAddress, "25.05", "0", "0")

	var credits int64
	s.db.Model(&models.ReferralCredit{}).Count(&credits)
	if credits != 1 {
		t.Errorf("expected 1 credit, got %d", credits)
	}
}

func TestClaimWithUnknownReferralCodeCreditsNobody(t *testing.T) {
	s := newTestServices(t, nil)

	connect(t, s.referrals, testWallet(1), "")
	d := connect(t, s.referrals, testWallet(4), "UNKNOWN1")
	if d.ReferrerAddress != nil || len(d.ReferralChain) != 0 {
		t.Fatalf("unexpected referrer for D")
	}

	claim := submit(t, s.claims, d.WalletAddress, "1000", 1)

	var credits int64
	s.db.Model(&models.ReferralCredit{}).Count(&credits)
	if credits != 0 {
		t.Errorf("expected no credits, got %d", credits)
	}

	var event models.RewardEvent
	s.db.Where("claim_id = ?", claim.ID).First(&event)
	if event.Status != models.RewardEventProcessed {
		t.Errorf("expected processed event, got %s", event.Status)
	}
}

func TestRewardTotalsAccumulate(t *testing.T) {
	s := newTestServices(t, nil)

	a := connect(t, s.referrals, testWallet(1), "")
	b := connect(t, s.referrals, testWallet(2), a.ReferralCode)
	for i := 3; i <= 6; i++ {
		child := connect(t, s.referrals, testWallet(i), b.ReferralCode)
		submit(t, s.claims, child.WalletAddress, "100", i)
	}
	submit(t, s.claims, b.WalletAddress, "300", 2)

	assertRewards(t, s.db, b.WalletAddress, "40", "0", "0")
	assertRewards(t, s.db, a.WalletAddress, "30", "20", "0")

	total := loadUser(t, s.db, a.WalletAddress).ReferralRewards.Total
	if !total.Equal(decimal.NewFromInt(50)) {
		t.Errorf("expected total 50, got %s", total)
	}
}

func TestDuplicateTransactionHashIsRejected(t *testing.T) {
	s := newTestServices(t, nil)

	first := connect(t, s.referrals, testWallet(1), "")
	second := connect(t, s.referrals, testWallet(2), "")

	submit(t, s.claims, first.WalletAddress, "1000", 0xaaaa)

	_, err := s.claims.SubmitClaim(context.Background(), claimInput(second.WalletAddress, "1000", 0xaaaa))
	var conflict *ConflictError
	if !errors.As(err, &conflict) || conflict.Message != "This transaction has already been processed" {
		t.Fatalf("expected duplicate transaction conflict, got %v", err)
	}

	var count int64
	s.db.Model(&models.ClaimHistory{}).Where("transaction_hash = ?", testTxHash(0xaaaa)).Count(&count)
	if count != 1 {
		t.Errorf("expected exactly one claim row, got %d", count)
	}
	if loadUser(t, s.db, second.WalletAddress).HasClaimed() {
		t.Error("rejected claim must not mark the user claimed")
	}
}

func TestUserCanClaimOnlyOnce(t *testing.T) {
	s := newTestServices(t, nil)

	user := connect(t, s.referrals, testWallet(1), "")
	submit(t, s.claims, user.WalletAddress, "1000", 1)

	_, err := s.claims.SubmitClaim(context.Background(), claimInput(user.WalletAddress, "1000", 2))
	var conflict *ConflictError
	if !errors.As(err, &conflict) || conflict.Message != "You have already claimed your airdrop" {
		t.Fatalf("expected already-claimed conflict, got %v", err)
	}

	var count int64
	s.db.Model(&models.ClaimHistory{}).Count(&count)
	if count != 1 {
		t.Errorf("expected one claim, got %d", count)
	}
}

func TestConcurrentClaimsBySameUser(t *testing.T) {
	s := newTestServices(t, nil)
	user := connect(t, s.referrals, testWallet(1), "")

	var wg sync.WaitGroup
	errs := make([]error, 5)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = s.claims.SubmitClaim(context.Background(), claimInput(user.WalletAddress, "10", 100+i))
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
		}
	}
	if succeeded != 1 {
		t.Errorf("expected exactly one successful claim, got %d", succeeded)
	}

	var count int64
	s.db.Model(&models.ClaimHistory{}).Count(&count)
	if count != 1 {
		t.Errorf("expected one claim row, got %d", count)
	}
}

func TestConcurrentSiblingClaims(t *testing.T) {
	s := newTestServices(t, nil)

	a := connect(t, s.referrals, testWallet(1), "")
	b := connect(t, s.referrals, testWallet(2), a.ReferralCode)
	var siblings []*models.User
	for i := 0; i < 8; i++ {
		siblings = append(siblings, connect(t, s.referrals, testWallet(10+i), b.ReferralCode))
	}

	var wg sync.WaitGroup
	for i, sibling := range siblings {
		wg.Add(1)
		go func(i int, wallet string) {
			defer wg.Done()
			if _, err := s.claims.SubmitClaim(context.Background(), claimInput(wallet, "100", 200+i)); err != nil {
				t.Errorf("claim %d failed: %v", i, err)
			}
		}(i, sibling.WalletAddress)
	}
	wg.Wait()

	assertRewards(t, s.db, b.WalletAddress, "80", "0", "0")
	assertRewards(t, s.db, a.WalletAddress, "0", "40", "0")
}

func TestSubmitClaimValidation(t *testing.T) {
	s := newTestServices(t, nil)

	in := SubmitClaimInput{
		WalletAddress:   "0xnope",
		ClaimAmount:     decimal.Zero,
		TransactionHash: "0x1234",
		Network:         "solana",
		ContractAddress: "",
	}
	_, err := s.claims.SubmitClaim(context.Background(), in)

	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	fields := map[string]bool{}
	for _, f := range verr.Fields {
		fields[f.Field] = true
	}
	for _, field := range []string{"walletAddress", "claimAmount", "transactionHash", "network", "chainId", "contractAddress"} {
		if !fields[field] {
			t.Errorf("expected %s to be reported", field)
		}
	}
}

func TestSubmitClaimRejectsExcessPrecision(t *testing.T) {
	s := newTestServices(t, nil)
	user := connect(t, s.referrals, testWallet(1), "")

	_, err := s.claims.SubmitClaim(context.Background(), claimInput(user.WalletAddress, "0.0000000000000000001", 1))
	var verr *ValidationError
	if !errors.As(err, &verr) || len(verr.Fields) != 1 || verr.Fields[0].Field != "claimAmount" {
		t.Fatalf("expected claimAmount error, got %v", err)
	}

	// Trailing zeros beyond the precision are fine
	submit(t, s.claims, user.WalletAddress, "1.00000000000000000000", 2)
}

func TestSubmitClaimChecksAirdropContract(t *testing.T) {
	s := newTestServices(t, nil)
	s.claims.SetAirdropContract("0x" + strings.ToUpper(testContract[2:]))
	user := connect(t, s.referrals, testWallet(1), "")

	in := claimInput(user.WalletAddress, "10", 1)
	in.ContractAddress = testWallet(900)
	_, err := s.claims.SubmitClaim(context.Background(), in)
	var verr *ValidationError
	if !errors.As(err, &verr) || verr.Fields[0].Message != "Claim was not made on the airdrop contract" {
		t.Fatalf("expected contract mismatch, got %v", err)
	}

	submit(t, s.claims, user.WalletAddress, "10", 1)

	s.claims.SetAirdropContract("")
	other := connect(t, s.referrals, testWallet(2), "")
	in = claimInput(other.WalletAddress, "10", 2)
	in.ContractAddress = testWallet(900)
	if _, err := s.claims.SubmitClaim(context.Background(), in); err != nil {
		t.Errorf("an unset airdrop contract accepts any contract, got %v", err)
	}
}

// A two level table pays D's parent and grandparent only, and its version
// is stamped on every credit.
func TestSubmitClaimWithCustomRewardTable(t *testing.T) {
	table, err := rewards.Parse([]byte(`
version: v9
levels:
  - level: 1
    percentage: "15"
  - level: 2
    percentage: "8"
`))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	db := setupTestDB(t)
	referrals := NewReferralService(db, table, ReferralOptions{FrontendURL: "https://hivox.app"})
	rewardService := NewRewardService(db, table, 3)
	claims := NewClaimService(db, rewardService, nil)

	a := connect(t, referrals, testWallet(1), "")
	b := connect(t, referrals, testWallet(2), a.ReferralCode)
	c := connect(t, referrals, testWallet(3), b.ReferralCode)
	d := connect(t, referrals, testWallet(4), c.ReferralCode)

	if len(loadUser(t, db, d.WalletAddress).ReferralChain) != 3 {
		t.Error("the chain snapshot keeps all three ancestors")
	}
	var edges int64
	db.Model(&models.Referral{}).Where("referred_address = ?", d.WalletAddress).Count(&edges)
	if edges != 2 {
		t.Errorf("expected edges for the two paid levels, got %d", edges)
	}
	if n := countActivities(t, db, a.WalletAddress, models.ActivityReferralCreated); n != 2 {
		t.Errorf("A should only hear about B and C, got %d referral_created", n)
	}

	claim := submit(t, claims, d.WalletAddress, "1000", 1)

	assertRewards(t, db, c.WalletAddress, "150", "0", "0")
	assertRewards(t, db, b.WalletAddress, "0", "80", "0")
	assertRewards(t, db, a.WalletAddress, "0", "0", "0")

	credits, err := rewardService.GetClaimCredits(context.Background(), claim.ID)
	if err != nil {
		t.Fatalf("GetClaimCredits failed: %v", err)
	}
	if len(credits) != 2 {
		t.Fatalf("expected 2 credits, got %d", len(credits))
	}
	for _, credit := range credits {
		if credit.TableVersion != "v9" {
			t.Errorf("level %d credit has version %q", credit.Level, credit.TableVersion)
		}
	}

	event, err := rewardService.GetClaimEvent(context.Background(), claim.ID)
	if err != nil || event.Status != models.RewardEventProcessed {
		t.Errorf("expected processed event, got %+v (%v)", event, err)
	}
}

func TestSubmitClaimUnknownUser(t *testing.T) {
	s := newTestServices(t, nil)

	_, err := s.claims.SubmitClaim(context.Background(), claimInput(testWallet(1), "1", 1))
	var nf *NotFoundError
	if !errors.As(err, &nf) || nf.Message != "User not found. Please connect your wallet first." {
		t.Errorf("expected NotFoundError, got %v", err)
	}
}

type fakeVerifier struct {
	details *blockchain.TransactionDetails
	err     error
	calls   int
}

func (f *fakeVerifier) Supports(chainID int64) bool { return chainID == 1 }

func (f *fakeVerifier) VerifyTransaction(ctx context.Context, chainID int64, txHash string) (*blockchain.TransactionDetails, error) {
	f.calls++
	return f.details, f.err
}

func TestConfirmClaim(t *testing.T) {
	s := newTestServices(t, nil)

	user := connect(t, s.referrals, testWallet(1), "")
	claim := submit(t, s.claims, user.WalletAddress, "1000", 1)

	confirmed, err := s.claims.ConfirmClaim(context.Background(), claim.ID.String())
	if err != nil {
		t.Fatalf("ConfirmClaim failed: %v", err)
	}
	if confirmed.Status != models.ClaimStatusConfirmed || confirmed.ConfirmedAt == nil {
		t.Errorf("unexpected claim %+v", confirmed)
	}

	_, err = s.claims.ConfirmClaim(context.Background(), claim.ID.String())
	var conflict *ConflictError
	if !errors.As(err, &conflict) || conflict.Message != "Claim is already confirmed" {
		t.Errorf("expected already-confirmed conflict, got %v", err)
	}

	_, err = s.claims.ConfirmClaim(context.Background(), "0b9e0c7e-2a51-4bd7-9c7c-6b3e7f0f9a11")
	var nf *NotFoundError
	if !errors.As(err, &nf) {
		t.Errorf("expected NotFoundError, got %v", err)
	}

	_, err = s.claims.ConfirmClaim(context.Background(), "not-a-uuid")
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Errorf("expected ValidationError, got %v", err)
	}

	if n := countActivities(t, s.db, user.WalletAddress, models.ActivityClaimConfirmed); n != 1 {
		t.Errorf("expected 1 claim_confirmed activity, got %d", n)
	}
}

func TestConfirmClaimChecksReceipt(t *testing.T) {
	verifier := &fakeVerifier{err: blockchain.ErrReceiptNotFound}
	s := newTestServices(t, verifier)

	user := connect(t, s.referrals, testWallet(1), "")
	claim := submit(t, s.claims, user.WalletAddress, "1000", 1)

	_, err := s.claims.ConfirmClaim(context.Background(), claim.ID.String())
	var upstream *UpstreamError
	if !errors.As(err, &upstream) || upstream.Kind != UpstreamNotFound {
		t.Fatalf("expected upstream not_found, got %v", err)
	}
	if stored, _ := s.claims.GetClaimByTransaction(context.Background(), claim.TransactionHash); stored.Status != models.ClaimStatusPending {
		t.Errorf("claim must stay pending, got %s", stored.Status)
	}

	verifier.err = nil
	verifier.details = &blockchain.TransactionDetails{Success: true, BlockNumber: 19000042}
	confirmed, err := s.claims.ConfirmClaim(context.Background(), claim.ID.String())
	if err != nil {
		t.Fatalf("ConfirmClaim failed: %v", err)
	}
	if confirmed.BlockNumber != 19000042 {
		t.Errorf("expected block number from receipt, got %d", confirmed.BlockNumber)
	}
}

func TestConfirmClaimRevertedTransaction(t *testing.T) {
	verifier := &fakeVerifier{details: &blockchain.TransactionDetails{Success: false}}
	s := newTestServices(t, verifier)

	user := connect(t, s.referrals, testWallet(1), "")
	claim := submit(t, s.claims, user.WalletAddress, "1000", 1)

	_, err := s.claims.ConfirmClaim(context.Background(), claim.ID.String())
	var conflict *ConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("expected conflict for reverted transaction, got %v", err)
	}

	stored, err := s.claims.GetClaimByTransaction(context.Background(), claim.TransactionHash)
	if err != nil {
		t.Fatalf("GetClaimByTransaction failed: %v", err)
	}
	if stored.Status != models.ClaimStatusFailed {
		t.Errorf("expected failed claim, got %s", stored.Status)
	}
	if n := countActivities(t, s.db, user.WalletAddress, models.ActivityClaimFailed); n != 1 {
		t.Errorf("expected 1 claim_failed activity, got %d", n)
	}

	// Claims on chains without an RPC endpoint skip the receipt check
	other := connect(t, s.referrals, testWallet(2), "")
	in := claimInput(other.WalletAddress, "5", 2)
	in.ChainID = 137
	in.Network = "polygon"
	polygonClaim, err := s.claims.SubmitClaim(context.Background(), in)
	if err != nil {
		t.Fatalf("SubmitClaim failed: %v", err)
	}
	calls := verifier.calls
	if _, err := s.claims.ConfirmClaim(context.Background(), polygonClaim.ID.String()); err != nil {
		t.Errorf("ConfirmClaim without RPC failed: %v", err)
	}
	if verifier.calls != calls {
		t.Error("verifier must not be called for an unsupported chain")
	}
}

func TestGetUserClaims(t *testing.T) {
	s := newTestServices(t, nil)

	user := connect(t, s.referrals, testWallet(1), "")
	submit(t, s.claims, user.WalletAddress, "1000", 1)

	claims, err := s.claims.GetUserClaims(context.Background(), user.WalletAddress)
	if err != nil || len(claims) != 1 {
		t.Fatalf("expected 1 claim, got %d (%v)", len(claims), err)
	}

	claims, err = s.claims.GetUserClaims(context.Background(), testWallet(2))
	if err != nil || len(claims) != 0 {
		t.Errorf("expected no claims, got %d (%v)", len(claims), err)
	}

	_, err = s.claims.GetClaimByTransaction(context.Background(), testTxHash(9))
	var nf *NotFoundError
	if !errors.As(err, &nf) {
		t.Errorf("expected NotFoundError, got %v", err)
	}
}
