package testutil

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// TenantFixture represents test tenant data.
type TenantFixture struct {
	ID            string
	Name          string
	Slug          string
	BillingStatus string
	CreatedAt     time.Time
}

// ApiKeyFixture represents test API key data. PlainKey is the value a
// caller would send in the X-API-Key header; KeyHash is what gets stored.
type ApiKeyFixture struct {
	ID        string
	TenantID  string
	PlainKey  string
	KeyHash   string
	Label     string
	Role      string
	IsActive  bool
	CreatedAt time.Time
}

// PatientFixture represents test patient data.
type PatientFixture struct {
	ID        string
	TenantID  string
	FullName  string
	CreatedAt time.Time
}

// CaseFixture represents test case data.
type CaseFixture struct {
	ID              string
	TenantID        string
	PatientID       string
	InputPayload    string
	RandomSeed      string
	Status          string
	ResultSignature *string
	BillingStatus   string
	CreatedAt       time.Time
}

// FeedbackFixture represents test feedback record data.
type FeedbackFixture struct {
	ID            string
	TenantID      string
	CaseID        string
	PredictedTop1 string
	PredictedTop3 []string
	ChosenRemedy  string
	OutcomeType   string
	OutcomeScore  *int
	CreatedAt     time.Time
}

// FixtureFactory creates test fixtures with sensible defaults.
type FixtureFactory struct {
	sequence int
}

// NewFixtureFactory creates a new fixture factory.
func NewFixtureFactory() *FixtureFactory {
	return &FixtureFactory{sequence: 0}
}

// nextSeq returns the next sequence number for unique values.
func (f *FixtureFactory) nextSeq() int {
	f.sequence++
	return f.sequence
}

// hashKey mirrors the production key-hashing scheme (sha256 hex) so
// fixture-generated keys can be looked up through the same code path as
// real ones.
func hashKey(plain string) string {
	sum := sha256.Sum256([]byte(plain))
	return hex.EncodeToString(sum[:])
}

// Tenant creates a tenant fixture with defaults.
func (f *FixtureFactory) Tenant(opts ...func(*TenantFixture)) TenantFixture {
	seq := f.nextSeq()

	tenant := TenantFixture{
		ID:            uuid.New().String(),
		Name:          fmt.Sprintf("Test Clinic %d", seq),
		Slug:          fmt.Sprintf("test-clinic-%d", seq),
		BillingStatus: "free",
		CreatedAt:     time.Now(),
	}

	for _, opt := range opts {
		opt(&tenant)
	}

	return tenant
}

// WithTenantName sets the tenant name.
func WithTenantName(name string) func(*TenantFixture) {
	return func(t *TenantFixture) { t.Name = name }
}

// WithTenantSlug sets the tenant slug.
func WithTenantSlug(slug string) func(*TenantFixture) {
	return func(t *TenantFixture) { t.Slug = slug }
}

// WithTenantBillingStatus sets the tenant's default billing status.
func WithTenantBillingStatus(status string) func(*TenantFixture) {
	return func(t *TenantFixture) { t.BillingStatus = status }
}

// ApiKey creates an API key fixture with defaults, scoped to tenantID.
func (f *FixtureFactory) ApiKey(tenantID string, opts ...func(*ApiKeyFixture)) ApiKeyFixture {
	seq := f.nextSeq()
	plain := fmt.Sprintf("mcare_test_key_%d_%s", seq, uuid.New().String())

	key := ApiKeyFixture{
		ID:        uuid.New().String(),
		TenantID:  tenantID,
		PlainKey:  plain,
		KeyHash:   hashKey(plain),
		Label:     fmt.Sprintf("test key %d", seq),
		Role:      "user",
		IsActive:  true,
		CreatedAt: time.Now(),
	}

	for _, opt := range opts {
		opt(&key)
	}

	return key
}

// WithKeyRole sets the API key's role.
func WithKeyRole(role string) func(*ApiKeyFixture) {
	return func(k *ApiKeyFixture) { k.Role = role }
}

// WithKeyActive sets the API key's active flag.
func WithKeyActive(active bool) func(*ApiKeyFixture) {
	return func(k *ApiKeyFixture) { k.IsActive = active }
}

// AdminApiKey creates an admin-role API key fixture.
func (f *FixtureFactory) AdminApiKey(tenantID string) ApiKeyFixture {
	return f.ApiKey(tenantID, WithKeyRole("admin"))
}

// Patient creates a patient fixture with defaults, scoped to tenantID.
func (f *FixtureFactory) Patient(tenantID string, opts ...func(*PatientFixture)) PatientFixture {
	seq := f.nextSeq()

	patient := PatientFixture{
		ID:        uuid.New().String(),
		TenantID:  tenantID,
		FullName:  fmt.Sprintf("Test Patient %d", seq),
		CreatedAt: time.Now(),
	}

	for _, opt := range opts {
		opt(&patient)
	}

	return patient
}

// WithPatientName sets the patient's full name.
func WithPatientName(name string) func(*PatientFixture) {
	return func(p *PatientFixture) { p.FullName = name }
}

// Case creates a draft case fixture with defaults, scoped to tenantID and
// patientID.
func (f *FixtureFactory) Case(tenantID, patientID string, opts ...func(*CaseFixture)) CaseFixture {
	seq := f.nextSeq()

	c := CaseFixture{
		ID:            uuid.New().String(),
		TenantID:      tenantID,
		PatientID:     patientID,
		InputPayload:  fmt.Sprintf(`{"symptoms":["symptom-%d"]}`, seq),
		RandomSeed:    fmt.Sprintf("%d", seq),
		Status:        "draft",
		BillingStatus: "free",
		CreatedAt:     time.Now(),
	}

	for _, opt := range opts {
		opt(&c)
	}

	return c
}

// WithCaseStatus sets the case status.
func WithCaseStatus(status string) func(*CaseFixture) {
	return func(c *CaseFixture) { c.Status = status }
}

// WithCaseBillingStatus sets the case billing status.
func WithCaseBillingStatus(status string) func(*CaseFixture) {
	return func(c *CaseFixture) { c.BillingStatus = status }
}

// WithResultSignature sets the case result signature, implying a
// finalized case.
func WithResultSignature(signature string) func(*CaseFixture) {
	return func(c *CaseFixture) {
		c.ResultSignature = &signature
		c.Status = "finalized"
	}
}

// Finalized returns a copy of a draft case fixture, finalized with a
// deterministic-looking signature.
func (c CaseFixture) Finalized() CaseFixture {
	sig := hashKey(c.ID + c.RandomSeed)
	c.Status = "finalized"
	c.ResultSignature = &sig
	return c
}

// Feedback creates a feedback record fixture with defaults, scoped to
// tenantID and optionally caseID.
func (f *FixtureFactory) Feedback(tenantID, caseID string, opts ...func(*FeedbackFixture)) FeedbackFixture {
	seq := f.nextSeq()
	score := 7

	fb := FeedbackFixture{
		ID:            uuid.New().String(),
		TenantID:      tenantID,
		CaseID:        caseID,
		PredictedTop1: fmt.Sprintf("Remedy-%d-A", seq),
		PredictedTop3: []string{
			fmt.Sprintf("Remedy-%d-A", seq),
			fmt.Sprintf("Remedy-%d-B", seq),
			fmt.Sprintf("Remedy-%d-C", seq),
		},
		ChosenRemedy: fmt.Sprintf("Remedy-%d-A", seq),
		OutcomeType:  "agree",
		OutcomeScore: &score,
		CreatedAt:    time.Now(),
	}

	for _, opt := range opts {
		opt(&fb)
	}

	return fb
}

// WithOutcomeType sets the feedback outcome type.
func WithOutcomeType(outcomeType string) func(*FeedbackFixture) {
	return func(fb *FeedbackFixture) { fb.OutcomeType = outcomeType }
}

// WithOutcomeScore sets the feedback outcome score (1..10).
func WithOutcomeScore(score int) func(*FeedbackFixture) {
	return func(fb *FeedbackFixture) { fb.OutcomeScore = &score }
}

// DefaultTestTenants returns a set of standard test tenants.
func DefaultTestTenants(factory *FixtureFactory) []TenantFixture {
	return []TenantFixture{
		factory.Tenant(WithTenantName("Praxis Mueller"), WithTenantSlug("praxis-mueller")),
		factory.Tenant(WithTenantName("Praxis Schmidt"), WithTenantSlug("praxis-schmidt")),
		factory.Tenant(WithTenantName("Paid Clinic"), WithTenantSlug("paid-clinic"), WithTenantBillingStatus("paid")),
	}
}
