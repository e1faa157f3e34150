package registration

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hitoshi/eventease/internal/metrics"
	"github.com/hitoshi/eventease/internal/model"
	"github.com/hitoshi/eventease/internal/repository"
	"github.com/hitoshi/eventease/internal/security"
)

// --- テスト用ヘルパー ---

type fakeEvents map[int]model.Event

func (f fakeEvents) GetByID(ctx context.Context, id int) (model.Event, bool) {
	e, ok := f[id]
	return e, ok
}

// mockRegistrationRepo はRegistrationRepositoryのモック。
type mockRegistrationRepo struct {
	loadAllFn func(ctx context.Context) ([]model.Registration, error)
	saveAllFn func(ctx context.Context, registrations []model.Registration) error
}

func (m *mockRegistrationRepo) LoadAll(ctx context.Context) ([]model.Registration, error) {
	if m.loadAllFn != nil {
		return m.loadAllFn(ctx)
	}
	return []model.Registration{}, nil
}

func (m *mockRegistrationRepo) SaveAll(ctx context.Context, registrations []model.Registration) error {
	if m.saveAllFn != nil {
		return m.saveAllFn(ctx, registrations)
	}
	return nil
}

type recordingMetrics struct {
	metrics.Nop
	mu              sync.Mutex
	outcomes        []string
	cancellations   int
	storageFailures []string
}

func (r *recordingMetrics) RecordRegistration(outcome string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes = append(r.outcomes, outcome)
}

func (r *recordingMetrics) RecordCancellation() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cancellations++
}

func (r *recordingMetrics) RecordStorageFailure(key, op string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.storageFailures = append(r.storageFailures, key+":"+op)
}

var fixedNow = time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)

func testCatalog() fakeEvents {
	return fakeEvents{
		1: {ID: 1, Name: "Go Conference", Capacity: 10, Price: 50},
		2: {ID: 2, Name: "Sold Out Show", Capacity: 0, Price: 20},
		3: {ID: 3, Name: "Workshop", Capacity: 100, Price: 0},
	}
}

func newTestCoordinator(repo repository.RegistrationRepository) (*Coordinator, *recordingMetrics) {
	rm := &recordingMetrics{}
	c := NewCoordinator(repo, testCatalog(), security.NewTextSanitizer(), rm, nil, Config{
		Now: func() time.Time { return fixedNow },
	})
	return c, rm
}

func newMemoryCoordinator() (*Coordinator, *recordingMetrics) {
	return newTestCoordinator(repository.NewKVRegistrationRepo(repository.NewMemoryKVStore()))
}

func validRegistration(eventID int, email string, attendees int) model.Registration {
	return model.Registration{
		EventID:           eventID,
		FirstName:         "Taro",
		LastName:          "Yamada",
		Email:             email,
		PhoneNumber:       "+81 90-1234-5678",
		NumberOfAttendees: attendees,
		AgreeToTerms:      true,
	}
}

func assertRejected(t *testing.T, result model.RegistrationResult, code string) {
	t.Helper()
	if result.Accepted {
		t.Fatalf("expected rejection with %s, got accepted: %+v", code, result)
	}
	if result.Err == nil || result.Err.Code != code {
		t.Fatalf("Err = %v, want code %s", result.Err, code)
	}
	if result.Message != result.Err.Message {
		t.Errorf("Message = %q, want error message %q", result.Message, result.Err.Message)
	}
}

// --- 受付 ---

func TestSubmit_Confirmed(t *testing.T) {
	c, rm := newMemoryCoordinator()
	ctx := context.Background()

	result := c.Submit(ctx, validRegistration(1, "taro@example.com", 2))
	if !result.Accepted {
		t.Fatalf("expected accepted, got %+v", result)
	}
	if result.Status != model.RegistrationStatusConfirmed {
		t.Errorf("Status = %s, want Confirmed", result.Status)
	}
	if result.RegistrationID == nil || *result.RegistrationID != 1 {
		t.Errorf("RegistrationID = %v, want 1", result.RegistrationID)
	}
	want := "Registration confirmed for Go Conference! Confirmation details have been sent to taro@example.com."
	if result.Message != want {
		t.Errorf("Message = %q, want %q", result.Message, want)
	}

	reg, ok := c.Get(ctx, 1)
	if !ok {
		t.Fatal("registration 1 should exist")
	}
	if !reg.RegistrationDate.Equal(fixedNow) {
		t.Errorf("RegistrationDate = %v, want %v", reg.RegistrationDate, fixedNow)
	}
	if reg.TotalCost() != 100 {
		t.Errorf("TotalCost = %v, want 100", reg.TotalCost())
	}
	if fmt.Sprint(rm.outcomes) != "[confirmed]" {
		t.Errorf("outcomes = %v", rm.outcomes)
	}
}

// TestSubmit_PartialCapacityRejected は定員10に6人と6人を順に申し込んだ場合を検証する。
func TestSubmit_PartialCapacityRejected(t *testing.T) {
	c, _ := newMemoryCoordinator()
	ctx := context.Background()

	first := c.Submit(ctx, validRegistration(1, "a@example.com", 6))
	if !first.Accepted || first.Status != model.RegistrationStatusConfirmed {
		t.Fatalf("first = %+v, want Confirmed", first)
	}

	second := c.Submit(ctx, validRegistration(1, "b@example.com", 6))
	assertRejected(t, second, model.ErrCodeCapacityExceeded)
	if !strings.Contains(second.Message, "Only 4 seats available") {
		t.Errorf("Message = %q, want remaining seat count", second.Message)
	}

	stats := c.Statistics(ctx, 1)
	if stats.TotalRegistrations != 1 || stats.WaitlistRegistrations != 0 {
		t.Errorf("rejected registration must not be stored: %+v", stats)
	}
}

func TestSubmit_FullyBookedGoesToWaitlist(t *testing.T) {
	c, rm := newMemoryCoordinator()
	ctx := context.Background()

	if r := c.Submit(ctx, validRegistration(1, "a@example.com", 10)); r.Status != model.RegistrationStatusConfirmed {
		t.Fatalf("first = %+v, want Confirmed", r)
	}

	result := c.Submit(ctx, validRegistration(1, "b@example.com", 1))
	if !result.Accepted || result.Status != model.RegistrationStatusWaitList {
		t.Fatalf("result = %+v, want WaitList", result)
	}
	if !strings.Contains(result.Message, "waitlist for Go Conference") {
		t.Errorf("Message = %q", result.Message)
	}

	stats := c.Statistics(ctx, 1)
	if stats.ConfirmedRegistrations != 1 || stats.WaitlistRegistrations != 1 || stats.TotalAttendees != 10 {
		t.Errorf("stats = %+v", stats)
	}
	if fmt.Sprint(rm.outcomes) != "[confirmed waitlist]" {
		t.Errorf("outcomes = %v", rm.outcomes)
	}
}

func TestSubmit_ZeroCapacityEventWaitlists(t *testing.T) {
	c, _ := newMemoryCoordinator()

	result := c.Submit(context.Background(), validRegistration(2, "a@example.com", 3))
	if result.Status != model.RegistrationStatusWaitList {
		t.Errorf("Status = %s, want WaitList", result.Status)
	}
}

func TestSubmit_ExactRemainingCapacityConfirmed(t *testing.T) {
	c, _ := newMemoryCoordinator()
	ctx := context.Background()
	_ = c.Submit(ctx, validRegistration(1, "a@example.com", 6))

	result := c.Submit(ctx, validRegistration(1, "b@example.com", 4))
	if result.Status != model.RegistrationStatusConfirmed {
		t.Errorf("Status = %s, want Confirmed", result.Status)
	}
	if seats, _ := c.AvailableSeats(ctx, 1); seats != 0 {
		t.Errorf("AvailableSeats = %d, want 0", seats)
	}
}

func TestSubmit_WaitlistDoesNotConsumeCapacity(t *testing.T) {
	c, _ := newMemoryCoordinator()
	ctx := context.Background()
	_ = c.Submit(ctx, validRegistration(1, "a@example.com", 10))
	_ = c.Submit(ctx, validRegistration(1, "b@example.com", 5))
	c.Cancel(ctx, 1)

	result := c.Submit(ctx, validRegistration(1, "c@example.com", 10))
	if result.Status != model.RegistrationStatusConfirmed {
		t.Errorf("Status = %s, want Confirmed after cancellation freed seats", result.Status)
	}
	if reg, _ := c.Get(ctx, 2); reg.Status != model.RegistrationStatusWaitList {
		t.Errorf("waitlisted registration should not be promoted, got %s", reg.Status)
	}
}

func TestSubmit_IDsIncrease(t *testing.T) {
	c, _ := newMemoryCoordinator()
	ctx := context.Background()

	var ids []int
	for i := 0; i < 3; i++ {
		r := c.Submit(ctx, validRegistration(3, fmt.Sprintf("u%d@example.com", i), 1))
		ids = append(ids, *r.RegistrationID)
	}
	_ = c.Submit(ctx, validRegistration(3, "u0@example.com", 1))
	r := c.Submit(ctx, validRegistration(3, "u9@example.com", 1))
	ids = append(ids, *r.RegistrationID)

	if fmt.Sprint(ids) != "[1 2 3 4]" {
		t.Errorf("ids = %v, want [1 2 3 4]", ids)
	}
}

// --- 検証 ---

func TestSubmit_ValidationAggregatesErrors(t *testing.T) {
	c, rm := newMemoryCoordinator()

	reg := model.Registration{EventID: 1, FirstName: "A", Email: "not-an-email", NumberOfAttendees: 11}
	result := c.Submit(context.Background(), reg)

	assertRejected(t, result, model.ErrCodeValidationFailed)
	for _, want := range []string{
		"First name must be between 2 and 50 characters.",
		"Last name is required.",
		"Please enter a valid email address.",
		"Phone number is required.",
		"Number of attendees must be between 1 and 10.",
		"You must agree to the terms and conditions.",
	} {
		if !strings.Contains(result.Message, want) {
			t.Errorf("Message %q does not contain %q", result.Message, want)
		}
	}
	if fmt.Sprint(rm.outcomes) != "[rejected]" {
		t.Errorf("outcomes = %v", rm.outcomes)
	}
}

func TestValidate_Fields(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(r *model.Registration)
		wantErr string
	}{
		{"正常", func(r *model.Registration) {}, ""},
		{"名前が長すぎる", func(r *model.Registration) { r.FirstName = strings.Repeat("a", 51) }, "First name must be between 2 and 50 characters."},
		{"表示名付きメール", func(r *model.Registration) { r.Email = "Taro <taro@example.com>" }, "Please enter a valid email address."},
		{"メールが長すぎる", func(r *model.Registration) { r.Email = strings.Repeat("a", 95) + "@x.com" }, "Email address cannot exceed 100 characters."},
		{"電話番号に文字", func(r *model.Registration) { r.PhoneNumber = "call me" }, "Please enter a valid phone number."},
		{"電話番号の桁不足", func(r *model.Registration) { r.PhoneNumber = "123" }, "Please enter a valid phone number."},
		{"電話番号が長すぎる", func(r *model.Registration) { r.PhoneNumber = "+1 (555) 123-4567 890" }, "Phone number cannot exceed 20 characters."},
		{"参加人数0", func(r *model.Registration) { r.NumberOfAttendees = 0 }, "Number of attendees must be between 1 and 10."},
		{"会社名が長すぎる", func(r *model.Registration) { r.Company = strings.Repeat("c", 101) }, "Company name cannot exceed 100 characters."},
		{"役職が長すぎる", func(r *model.Registration) { r.JobTitle = strings.Repeat("j", 51) }, "Job title cannot exceed 50 characters."},
		{"特記事項が長すぎる", func(r *model.Registration) { r.SpecialRequirements = strings.Repeat("s", 501) }, "Special requirements cannot exceed 500 characters."},
		{"コメントが長すぎる", func(r *model.Registration) { r.Comments = strings.Repeat("x", 1001) }, "Additional comments cannot exceed 1000 characters."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := validRegistration(1, "taro@example.com", 1)
			tt.mutate(&r)
			errs := validate(&r)

			if tt.wantErr == "" {
				if len(errs) != 0 {
					t.Errorf("unexpected errors: %v", errs)
				}
				return
			}
			if len(errs) != 1 || errs[0] != tt.wantErr {
				t.Errorf("errors = %v, want [%s]", errs, tt.wantErr)
			}
		})
	}
}

func TestSubmit_SanitizesFreeText(t *testing.T) {
	c, _ := newMemoryCoordinator()
	ctx := context.Background()

	reg := validRegistration(3, "taro@example.com", 1)
	reg.FirstName = "  <b>Taro</b> "
	reg.Comments = `<img src=x onerror="alert(1)">See you`
	result := c.Submit(ctx, reg)
	if !result.Accepted {
		t.Fatalf("expected accepted, got %+v", result)
	}

	stored, _ := c.Get(ctx, *result.RegistrationID)
	if stored.FirstName != "Taro" {
		t.Errorf("FirstName = %q, want Taro", stored.FirstName)
	}
	if stored.Comments != "See you" {
		t.Errorf("Comments = %q, want See you", stored.Comments)
	}
}

func TestSubmit_TagOnlyNameFailsValidation(t *testing.T) {
	c, _ := newMemoryCoordinator()

	reg := validRegistration(3, "taro@example.com", 1)
	reg.LastName = "<script>x</script>"
	assertRejected(t, c.Submit(context.Background(), reg), model.ErrCodeValidationFailed)
}

// --- 重複 / イベント存在 ---

func TestSubmit_DuplicateEmailCaseInsensitive(t *testing.T) {
	c, _ := newMemoryCoordinator()
	ctx := context.Background()
	_ = c.Submit(ctx, validRegistration(3, "Taro@Example.com", 1))

	result := c.Submit(ctx, validRegistration(3, "taro@example.COM", 1))
	assertRejected(t, result, model.ErrCodeDuplicateRegistration)

	if other := c.Submit(ctx, validRegistration(1, "taro@example.com", 1)); !other.Accepted {
		t.Errorf("same email for another event should be accepted: %+v", other)
	}
}

func TestSubmit_DuplicateAllowedAfterCancel(t *testing.T) {
	c, _ := newMemoryCoordinator()
	ctx := context.Background()
	first := c.Submit(ctx, validRegistration(3, "taro@example.com", 1))
	c.Cancel(ctx, *first.RegistrationID)

	if again := c.Submit(ctx, validRegistration(3, "taro@example.com", 1)); !again.Accepted {
		t.Errorf("resubmission after cancel should be accepted: %+v", again)
	}
}

func TestSubmit_ValidationBeforeEventLookup(t *testing.T) {
	c, _ := newMemoryCoordinator()
	ctx := context.Background()

	invalid := validRegistration(99, "taro@example.com", 0)
	assertRejected(t, c.Submit(ctx, invalid), model.ErrCodeValidationFailed)

	assertRejected(t, c.Submit(ctx, validRegistration(99, "taro@example.com", 1)), model.ErrCodeEventNotFound)
}

// --- 取消 ---

func TestCancel(t *testing.T) {
	c, rm := newMemoryCoordinator()
	ctx := context.Background()
	_ = c.Submit(ctx, validRegistration(1, "a@example.com", 6))

	result := c.Cancel(ctx, 1)
	if !result.Accepted || result.Status != model.RegistrationStatusCancelled {
		t.Fatalf("result = %+v", result)
	}
	if result.Message != "Registration cancelled successfully." {
		t.Errorf("Message = %q", result.Message)
	}

	again := c.Cancel(ctx, 1)
	assertRejected(t, again, model.ErrCodeAlreadyCancelled)
	if again.Message != "Registration is already cancelled." {
		t.Errorf("Message = %q", again.Message)
	}

	if seats, _ := c.AvailableSeats(ctx, 1); seats != 10 {
		t.Errorf("AvailableSeats = %d, want 10 (no double credit)", seats)
	}
	if rm.cancellations != 1 {
		t.Errorf("cancellations = %d, want 1", rm.cancellations)
	}
}

func TestCancel_NotFound(t *testing.T) {
	c, _ := newMemoryCoordinator()

	assertRejected(t, c.Cancel(context.Background(), 42), model.ErrCodeRegistrationNotFound)
}

// --- 参照 ---

func TestStatistics(t *testing.T) {
	c, _ := newMemoryCoordinator()
	ctx := context.Background()
	_ = c.Submit(ctx, validRegistration(1, "a@example.com", 4))
	_ = c.Submit(ctx, validRegistration(1, "b@example.com", 6))
	_ = c.Submit(ctx, validRegistration(1, "c@example.com", 2))
	_ = c.Submit(ctx, validRegistration(3, "d@example.com", 2))
	c.Cancel(ctx, 1)

	stats := c.Statistics(ctx, 1)
	want := model.RegistrationStatistics{
		EventID:                1,
		TotalRegistrations:     3,
		ConfirmedRegistrations: 1,
		WaitlistRegistrations:  1,
		CancelledRegistrations: 1,
		TotalAttendees:         6,
	}
	if stats != want {
		t.Errorf("stats = %+v, want %+v", stats, want)
	}
}

func TestListByEventAndEmail(t *testing.T) {
	c, _ := newMemoryCoordinator()
	ctx := context.Background()
	_ = c.Submit(ctx, validRegistration(1, "a@example.com", 1))
	_ = c.Submit(ctx, validRegistration(3, "A@EXAMPLE.com", 1))
	_ = c.Submit(ctx, validRegistration(3, "b@example.com", 1))

	if got := c.ListByEvent(ctx, 3); len(got) != 2 {
		t.Errorf("ListByEvent(3) = %d, want 2", len(got))
	}
	if got := c.ListByEmail(ctx, "a@example.com"); len(got) != 2 {
		t.Errorf("ListByEmail = %d, want 2", len(got))
	}
	if got := c.ListByEvent(ctx, 99); got == nil || len(got) != 0 {
		t.Errorf("ListByEvent(99) = %v, want empty slice", got)
	}
}

func TestAvailableSeats_UnknownEvent(t *testing.T) {
	c, _ := newMemoryCoordinator()

	if _, ok := c.AvailableSeats(context.Background(), 99); ok {
		t.Error("AvailableSeats should report unknown event")
	}
}

// --- 永続化 ---

func TestCoordinator_PersistsAndRestoresNextID(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewKVRegistrationRepo(repository.NewMemoryKVStore())

	first, _ := newTestCoordinator(repo)
	_ = first.Submit(ctx, validRegistration(1, "a@example.com", 6))
	_ = first.Submit(ctx, validRegistration(1, "b@example.com", 2))

	second, _ := newTestCoordinator(repo)
	second.Initialize(ctx)

	result := second.Submit(ctx, validRegistration(1, "c@example.com", 3))
	assertRejected(t, result, model.ErrCodeCapacityExceeded)
	result = second.Submit(ctx, validRegistration(1, "c@example.com", 2))
	if result.RegistrationID == nil || *result.RegistrationID != 3 {
		t.Errorf("RegistrationID = %v, want 3", result.RegistrationID)
	}
}

func TestCoordinator_StorageFailureIsSwallowed(t *testing.T) {
	repo := &mockRegistrationRepo{
		loadAllFn: func(ctx context.Context) ([]model.Registration, error) {
			return nil, errors.New("corrupt")
		},
		saveAllFn: func(ctx context.Context, registrations []model.Registration) error {
			return errors.New("quota exceeded")
		},
	}
	c, rm := newTestCoordinator(repo)
	ctx := context.Background()

	result := c.Submit(ctx, validRegistration(1, "a@example.com", 1))
	if !result.Accepted {
		t.Fatalf("Submit should succeed despite storage failure: %+v", result)
	}
	if _, ok := c.Get(ctx, *result.RegistrationID); !ok {
		t.Error("registration should be kept in memory")
	}
	want := "[" + repository.KeyRegistrations + ":load " + repository.KeyRegistrations + ":save]"
	if fmt.Sprint(rm.storageFailures) != want {
		t.Errorf("storage failures = %v, want %s", rm.storageFailures, want)
	}
}

// TestSubmit_ConcurrentNeverOversells は並行申込でも確定人数が定員を超えないことを検証する。
func TestSubmit_ConcurrentNeverOversells(t *testing.T) {
	c, _ := newMemoryCoordinator()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 30; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c.Submit(ctx, validRegistration(1, fmt.Sprintf("user%d@example.com", i), 1+i%3))
		}(i)
	}
	wg.Wait()

	if stats := c.Statistics(ctx, 1); stats.TotalAttendees > 10 {
		t.Errorf("confirmed attendees = %d, exceeds capacity 10", stats.TotalAttendees)
	}
}
